// =============================================================================
// 📦 SceneFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("sceneflow.yaml").
//	    WithEnvPrefix("SCENEFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 验证器
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/internal/database"
	"github.com/BaSui01/sceneflow/internal/retry"
	"github.com/BaSui01/sceneflow/internal/telemetry"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/request"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 SceneFlow 的完整配置结构
type Config struct {
	// Orchestrator 运行参数
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Remote 远端生成 API
	Remote RemoteConfig `yaml:"remote" env:"REMOTE"`

	// Accounts 账号凭证来源
	Accounts AccountsConfig `yaml:"accounts" env:"ACCOUNTS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics Prometheus 指标
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// OrchestratorConfig 编排运行参数
type OrchestratorConfig struct {
	// 产物输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 并发下载数
	MaxParallelDownloads int `yaml:"max_parallel_downloads" env:"MAX_PARALLEL_DOWNLOADS"`
	// 轮询间隔
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 单次状态查询的操作数
	PollBatchSize int `yaml:"poll_batch_size" env:"POLL_BATCH_SIZE"`
	// 全局运行超时
	GlobalTimeout time.Duration `yaml:"global_timeout" env:"GLOBAL_TIMEOUT"`
	// 默认模型链，按顺序回退
	DefaultModels []string `yaml:"default_models" env:"DEFAULT_MODELS"`
	// 默认画幅
	DefaultAspectRatio string `yaml:"default_aspect_ratio" env:"DEFAULT_ASPECT_RATIO"`
	// 单次提交的副本数上限
	MaxCopies int `yaml:"max_copies" env:"MAX_COPIES"`
	// 每账号每分钟提交上限，0 表示不限制
	RequestsPerMinute int `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	// 过载退避
	Overload BackoffConfig `yaml:"overload" env:"OVERLOAD"`
	// 网络错误重试
	Network BackoffConfig `yaml:"network" env:"NETWORK"`
	// 下载重试
	Download BackoffConfig `yaml:"download" env:"DOWNLOAD"`
	// 状态查询熔断
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`
}

// BackoffConfig 退避策略配置，尝试预算为 MaxRetries+1
type BackoffConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       bool          `yaml:"jitter" env:"JITTER"`
}

// Policy 转换为重试策略
func (b BackoffConfig) Policy() *retry.RetryPolicy {
	return &retry.RetryPolicy{
		MaxRetries:   b.MaxRetries,
		InitialDelay: b.InitialDelay,
		MaxDelay:     b.MaxDelay,
		Multiplier:   b.Multiplier,
		Jitter:       b.Jitter,
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// 连续失败阈值
	Threshold int `yaml:"threshold" env:"THRESHOLD"`
	// 打开状态持续时间
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
}

// RemoteConfig 远端 API 配置
type RemoteConfig struct {
	remote.Config `yaml:",inline" env:""`
	// 请求体字段路径
	RequestFields request.FieldPaths `yaml:"request_fields" env:"REQUEST_FIELDS"`
	// 画幅到枚举值的映射（仅 YAML）
	AspectRatios map[string]string `yaml:"aspect_ratios" env:"-"`
}

// AccountsConfig 账号来源配置
type AccountsConfig struct {
	// 来源: file, sql
	Source string `yaml:"source" env:"SOURCE"`
	// YAML 账号文件路径
	File string `yaml:"file" env:"FILE"`
	// 数据库
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: sqlite, postgres, mysql
	Driver string `yaml:"driver" env:"DRIVER"`
	// 完整连接串，设置后忽略其余连接字段
	URL string `yaml:"url" env:"URL"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否暴露 /metrics
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 监听端口
	Port int `yaml:"port" env:"PORT"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ExportConfig 转换为遥测初始化参数
func (t *TelemetryConfig) ExportConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:      t.Enabled,
		OTLPEndpoint: t.OTLPEndpoint,
		ServiceName:  t.ServiceName,
		SampleRate:   t.SampleRate,
	}
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SCENEFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 嵌入结构体沿用父级前缀
		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, prefix); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	o := c.Orchestrator
	if o.OutputDir == "" {
		errs = append(errs, "output_dir is required")
	}
	if o.MaxParallelDownloads <= 0 {
		errs = append(errs, "max_parallel_downloads must be positive")
	}
	if o.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be positive")
	}
	if o.PollBatchSize <= 0 {
		errs = append(errs, "poll_batch_size must be positive")
	}
	if o.GlobalTimeout <= 0 {
		errs = append(errs, "global_timeout must be positive")
	}
	if len(o.DefaultModels) == 0 {
		errs = append(errs, "default_models must not be empty")
	}
	if o.MaxCopies <= 0 {
		errs = append(errs, "max_copies must be positive")
	}
	if o.RequestsPerMinute < 0 {
		errs = append(errs, "requests_per_minute must not be negative")
	}
	for name, b := range map[string]BackoffConfig{"overload": o.Overload, "network": o.Network, "download": o.Download} {
		if b.MaxRetries < 0 {
			errs = append(errs, name+".max_retries must not be negative")
		}
	}

	if c.Remote.BaseURL == "" {
		errs = append(errs, "remote base_url is required")
	}
	if t := c.Remote.RequestTimeout; t < 60*time.Second || t > 180*time.Second {
		errs = append(errs, "remote request_timeout must be between 60s and 180s")
	}

	switch c.Accounts.Source {
	case "file":
		if c.Accounts.File == "" {
			errs = append(errs, "accounts file is required for source=file")
		}
	case "sql":
		switch c.Accounts.Database.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Accounts.Database.Driver))
		}
		if err := c.Accounts.Database.PoolConfig().Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported accounts source %q", c.Accounts.Source))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("unsupported log format %q", c.Log.Format))
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		errs = append(errs, "invalid metrics port")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// SQLConfig 转换为账号存储的数据库配置
func (d *DatabaseConfig) SQLConfig() account.SQLConfig {
	return account.SQLConfig{Driver: d.Driver, DSN: d.DSN()}
}

// PoolConfig 转换为连接池配置
func (d *DatabaseConfig) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}
