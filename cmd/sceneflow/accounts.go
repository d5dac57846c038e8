package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/config"
	"github.com/BaSui01/sceneflow/internal/database"
)

// =============================================================================
// 🔑 账号存储
// =============================================================================

// openStore 按配置打开账号存储，返回的 close 函数总是可调用
func openStore(ctx context.Context, cfg config.AccountsConfig, logger *zap.Logger) (account.Store, func(), error) {
	switch cfg.Source {
	case "sql":
		pm, err := openDatabase(ctx, cfg.Database, logger)
		if err != nil {
			return nil, func() {}, err
		}
		return account.NewSQLStore(pm.DB(), logger), func() { _ = pm.Close() }, nil
	default:
		return account.NewFileStore(cfg.File), func() {}, nil
	}
}

// openDatabase 打开凭证数据库，设置连接池并等待数据库可用
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*database.PoolManager, error) {
	db, err := account.OpenDB(cfg.SQLConfig(), logger)
	if err != nil {
		return nil, err
	}

	pm, err := database.NewPoolManager(db, cfg.PoolConfig(), logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	if err := pm.WaitReady(ctx, nil); err != nil {
		_ = pm.Close()
		return nil, err
	}
	return pm, nil
}

// =============================================================================
// 📋 accounts 命令
// =============================================================================

func runAccounts(args []string) int {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := openStore(context.Background(), cfg.Accounts, logger)
	defer closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open account store: %v\n", err)
		return 1
	}

	accounts, err := store.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load accounts: %v\n", err)
		return 1
	}

	printAccounts(os.Stdout, accounts)
	return 0
}

// printAccounts writes one row per account. Token values are always masked.
func printAccounts(w io.Writer, accounts []*account.Account) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROJECT\tENABLED\tTOKENS")
	for _, acc := range accounts {
		masked := make([]string, 0, len(acc.Tokens))
		for _, tok := range acc.Tokens {
			masked = append(masked, tok.Masked())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%v\n", acc.ID, acc.Name(), acc.ProjectID, acc.Enabled, masked)
	}
	_ = tw.Flush()
}

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *dbType != "" {
		cfg.Accounts.Database.Driver = *dbType
	}
	if *dbURL != "" {
		cfg.Accounts.Database.URL = *dbURL
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	if err := migrateDatabase(context.Background(), cfg.Accounts.Database, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}
	fmt.Println("Credential tables are up to date")
	return 0
}

func migrateDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) error {
	pm, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pm.Close() }()
	return account.AutoMigrate(pm.DB().WithContext(ctx))
}
