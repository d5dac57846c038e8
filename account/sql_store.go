package account

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// AccountRecord 账号表
type AccountRecord struct {
	ID          uint          `gorm:"primaryKey"`
	Code        string        `gorm:"size:100;not null;uniqueIndex"` // 对外账号 ID
	DisplayName string        `gorm:"size:200"`
	ProjectID   string        `gorm:"size:200;not null"`
	Priority    int           `gorm:"default:100"` // 数字越小越靠前
	Enabled     bool          `gorm:"default:true"`
	Tokens      []TokenRecord `gorm:"foreignKey:AccountID"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (AccountRecord) TableName() string {
	return "sf_accounts"
}

// TokenRecord 凭证表
type TokenRecord struct {
	ID        uint   `gorm:"primaryKey"`
	AccountID uint   `gorm:"not null;index:idx_account"`
	Value     string `gorm:"type:text;not null"`
	Label     string `gorm:"size:100"`
	Position  int    `gorm:"default:0"` // 账号内的选择顺序
	Revoked   bool   `gorm:"default:false"`
	CreatedAt time.Time
}

func (TokenRecord) TableName() string {
	return "sf_account_tokens"
}

// AutoMigrate 创建凭证存储所需的表结构（仅供初始化使用，运行期只读）
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&AccountRecord{}, &TokenRecord{}); err != nil {
		return fmt.Errorf("auto migrate account tables: %w", err)
	}
	return nil
}

// SQLConfig 数据库凭证存储配置
type SQLConfig struct {
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN 连接串（sqlite 为文件路径）
	DSN string `yaml:"dsn" env:"DSN"`
}

// OpenDB 根据配置打开数据库连接
func OpenDB(cfg SQLConfig, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if logger != nil {
		logger.Info("credential database connected", zap.String("driver", cfg.Driver))
	}
	return db, nil
}

// SQLStore reads accounts and their ordered tokens through GORM. It never writes.
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore 创建数据库账号存储
func NewSQLStore(db *gorm.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, logger: logger}
}

// Load 实现 Store.Load
func (s *SQLStore) Load(ctx context.Context) ([]*Account, error) {
	var records []AccountRecord
	err := s.db.WithContext(ctx).
		Preload("Tokens", func(db *gorm.DB) *gorm.DB {
			return db.Where("revoked = ?", false).Order("position ASC, id ASC")
		}).
		Order("priority ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load accounts from database: %w", err)
	}

	accounts := make([]*Account, 0, len(records))
	for _, rec := range records {
		acc := &Account{
			ID:          rec.Code,
			DisplayName: rec.DisplayName,
			ProjectID:   rec.ProjectID,
			Enabled:     rec.Enabled,
		}
		for _, t := range rec.Tokens {
			acc.Tokens = append(acc.Tokens, Token{Value: t.Value})
		}
		accounts = append(accounts, acc)
	}

	s.logger.Info("accounts loaded", zap.Int("count", len(accounts)))
	return accounts, nil
}
