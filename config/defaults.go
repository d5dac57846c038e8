// =============================================================================
// 📦 SceneFlow 默认配置
// =============================================================================
// 默认值直接取自各组件的 Default* 函数，保证配置与代码一致
// =============================================================================
package config

import (
	"github.com/BaSui01/sceneflow/download"
	"github.com/BaSui01/sceneflow/internal/retry"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/request"
	"github.com/BaSui01/sceneflow/tracker"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: DefaultOrchestratorConfig(),
		Remote:       DefaultRemoteConfig(),
		Accounts:     DefaultAccountsConfig(),
		Log:          DefaultLogConfig(),
		Metrics:      DefaultMetricsConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultOrchestratorConfig 返回默认运行参数
func DefaultOrchestratorConfig() OrchestratorConfig {
	req := request.DefaultOptions()
	loop := tracker.DefaultLoopConfig()
	dl := download.DefaultConfig()
	return OrchestratorConfig{
		OutputDir:            dl.OutputDir,
		MaxParallelDownloads: dl.Workers,
		PollInterval:         loop.Interval,
		PollBatchSize:        loop.BatchSize,
		GlobalTimeout:        loop.GlobalTimeout,
		DefaultModels:        req.DefaultModels,
		DefaultAspectRatio:   req.DefaultAspectRatio,
		MaxCopies:            req.MaxCopies,
		RequestsPerMinute:    0,
		Overload:             backoffFrom(retry.OverloadRetryPolicy()),
		Network:              backoffFrom(retry.DefaultRetryPolicy()),
		Download:             backoffFrom(dl.Retry),
		Breaker: BreakerConfig{
			Threshold:    loop.Breaker.Threshold,
			ResetTimeout: loop.Breaker.ResetTimeout,
		},
	}
}

func backoffFrom(p *retry.RetryPolicy) BackoffConfig {
	return BackoffConfig{
		MaxRetries:   p.MaxRetries,
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Multiplier:   p.Multiplier,
		Jitter:       p.Jitter,
	}
}

// DefaultRemoteConfig 返回默认远端配置
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Config:        remote.DefaultConfig(),
		RequestFields: request.DefaultFieldPaths(),
		AspectRatios:  request.DefaultOptions().AspectRatios,
	}
}

// DefaultAccountsConfig 返回默认账号来源配置
func DefaultAccountsConfig() AccountsConfig {
	return AccountsConfig{
		Source: "file",
		File:   "accounts.yaml",
		Database: DatabaseConfig{
			Driver:       "sqlite",
			Name:         "sceneflow.db",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Port:      9091,
		Namespace: "sceneflow",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "sceneflow",
		SampleRate:   0.1,
	}
}
