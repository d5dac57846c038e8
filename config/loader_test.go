// 配置加载器与校验测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "output", cfg.Orchestrator.OutputDir)
	assert.Equal(t, 120*time.Second, cfg.Remote.RequestTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sceneflow.yaml")

	yamlContent := `
orchestrator:
  output_dir: "/data/clips"
  max_parallel_downloads: 8
  poll_interval: 3s
  global_timeout: 45m
  default_models: ["veo_fast", "veo_quality"]
  overload:
    max_retries: 2
    initial_delay: 5s

remote:
  base_url: "https://video.example.com"
  request_timeout: 90s
  request_fields:
    image: "referenceImage.id"
  response:
    status: "state"
  aspect_ratios:
    "4:3": "VIDEO_ASPECT_RATIO_CLASSIC"

accounts:
  source: sql
  database:
    driver: postgres
    host: db.internal
    port: 5433

log:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/clips", cfg.Orchestrator.OutputDir)
	assert.Equal(t, 8, cfg.Orchestrator.MaxParallelDownloads)
	assert.Equal(t, 3*time.Second, cfg.Orchestrator.PollInterval)
	assert.Equal(t, 45*time.Minute, cfg.Orchestrator.GlobalTimeout)
	assert.Equal(t, []string{"veo_fast", "veo_quality"}, cfg.Orchestrator.DefaultModels)
	assert.Equal(t, 2, cfg.Orchestrator.Overload.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.Overload.InitialDelay)
	// 未出现的字段保持默认
	assert.Equal(t, 60*time.Second, cfg.Orchestrator.Overload.MaxDelay)

	assert.Equal(t, "https://video.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, "referenceImage.id", cfg.Remote.RequestFields.Image)
	assert.Equal(t, "textInput.prompt", cfg.Remote.RequestFields.Prompt)
	assert.Equal(t, "state", cfg.Remote.Response.Status)
	assert.Equal(t, "VIDEO_ASPECT_RATIO_CLASSIC", cfg.Remote.AspectRatios["4:3"])

	assert.Equal(t, "sql", cfg.Accounts.Source)
	assert.Equal(t, "postgres", cfg.Accounts.Database.Driver)
	assert.Equal(t, 5433, cfg.Accounts.Database.Port)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("SCENEFLOW_ORCHESTRATOR_OUTPUT_DIR", "/tmp/env-out")
	t.Setenv("SCENEFLOW_ORCHESTRATOR_MAX_PARALLEL_DOWNLOADS", "3")
	t.Setenv("SCENEFLOW_ORCHESTRATOR_DEFAULT_MODELS", "m1, m2")
	t.Setenv("SCENEFLOW_ORCHESTRATOR_NETWORK_MAX_RETRIES", "5")
	t.Setenv("SCENEFLOW_REMOTE_BASE_URL", "https://env.example.com")
	t.Setenv("SCENEFLOW_REMOTE_REQUEST_TIMEOUT", "150s")
	t.Setenv("SCENEFLOW_REMOTE_RESPONSE_RESULT_URL", "result.uri")
	t.Setenv("SCENEFLOW_REMOTE_REQUEST_FIELDS_MODEL", "modelKey")
	t.Setenv("SCENEFLOW_ACCOUNTS_DATABASE_URL", "file:creds.db")
	t.Setenv("SCENEFLOW_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("SCENEFLOW_METRICS_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env-out", cfg.Orchestrator.OutputDir)
	assert.Equal(t, 3, cfg.Orchestrator.MaxParallelDownloads)
	assert.Equal(t, []string{"m1", "m2"}, cfg.Orchestrator.DefaultModels)
	assert.Equal(t, 5, cfg.Orchestrator.Network.MaxRetries)
	assert.Equal(t, "https://env.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 150*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, "result.uri", cfg.Remote.Response.ResultURL)
	assert.Equal(t, "modelKey", cfg.Remote.RequestFields.Model)
	assert.Equal(t, "file:creds.db", cfg.Accounts.Database.DSN())
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sceneflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("orchestrator:\n  output_dir: yaml-out\n"), 0o644))
	t.Setenv("SCENEFLOW_ORCHESTRATOR_OUTPUT_DIR", "env-out")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "env-out", cfg.Orchestrator.OutputDir)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("CLIPS_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithEnvPrefix("CLIPS").Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("SCENEFLOW_ORCHESTRATOR_POLL_INTERVAL", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCENEFLOW_ORCHESTRATOR_POLL_INTERVAL")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("SCENEFLOW_REMOTE_REQUEST_TIMEOUT", "30s")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout must be between 60s and 180s")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/sceneflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Orchestrator, cfg.Orchestrator)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("orchestrator: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "zero downloads",
			mutate:  func(c *Config) { c.Orchestrator.MaxParallelDownloads = 0 },
			wantErr: "max_parallel_downloads must be positive",
		},
		{
			name:    "empty model chain",
			mutate:  func(c *Config) { c.Orchestrator.DefaultModels = nil },
			wantErr: "default_models must not be empty",
		},
		{
			name:    "request timeout too long",
			mutate:  func(c *Config) { c.Remote.RequestTimeout = 5 * time.Minute },
			wantErr: "request_timeout must be between 60s and 180s",
		},
		{
			name:    "unknown accounts source",
			mutate:  func(c *Config) { c.Accounts.Source = "vault" },
			wantErr: `unsupported accounts source "vault"`,
		},
		{
			name: "unknown database driver",
			mutate: func(c *Config) {
				c.Accounts.Source = "sql"
				c.Accounts.Database.Driver = "oracle"
			},
			wantErr: `unsupported database driver "oracle"`,
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sample_rate must be between 0 and 1",
		},
		{
			name: "metrics port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "invalid metrics port",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Orchestrator.Overload.MaxRetries = -1 },
			wantErr: "overload.max_retries must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "sf", Password: "pw", Name: "creds", SSLMode: "disable"},
			want: "host=localhost port=5432 user=sf password=pw dbname=creds sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "sf", Password: "pw", Name: "creds"},
			want: "sf:pw@tcp(db:3306)/creds?parseTime=true",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Name: "sceneflow.db"},
			want: "sceneflow.db",
		},
		{
			name: "explicit url wins",
			cfg:  DatabaseConfig{Driver: "postgres", URL: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "unknown driver",
			cfg:  DatabaseConfig{Driver: "oracle"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}

	sqlCfg := (&DatabaseConfig{Driver: "sqlite", Name: "a.db"}).SQLConfig()
	assert.Equal(t, "sqlite", sqlCfg.Driver)
	assert.Equal(t, "a.db", sqlCfg.DSN)
}

func TestMustLoad_Success(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sceneflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log:\n  level: warn\n"), 0o644))

	cfg := MustLoad(configPath)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("remote:\n  request_timeout: 1s\n"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
