package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/config"
	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/internal/server"
	"github.com/BaSui01/sceneflow/internal/telemetry"
	"github.com/BaSui01/sceneflow/orchestrator"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/types"
)

// =============================================================================
// 🎬 run 命令
// =============================================================================

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	scenesPath := fs.String("scenes", "", "Path to scene list (YAML or JSON)")
	outputDir := fs.String("output", "", "Output directory")
	timeout := fs.Duration("timeout", 0, "Global run timeout")
	_ = fs.Parse(args)

	if *scenesPath == "" && fs.NArg() > 0 {
		*scenesPath = fs.Arg(0)
	}
	if *scenesPath == "" {
		fmt.Fprintln(os.Stderr, "Missing scene list: use --scenes <path>")
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *outputDir != "" {
		cfg.Orchestrator.OutputDir = *outputDir
	}
	if *timeout > 0 {
		cfg.Orchestrator.GlobalTimeout = *timeout
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting SceneFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := execute(ctx, cfg, *scenesPath, logger)
	return report(os.Stdout, summary, err)
}

// report prints the summary and maps the outcome to an exit code.
func report(w io.Writer, summary orchestrator.Summary, err error) int {
	if summary.Total > 0 || err == nil {
		fmt.Fprint(w, summary.String())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}
	if !summary.OK() {
		return 1
	}
	return 0
}

// execute wires the account store, the remote client and the distributor for one batch.
func execute(ctx context.Context, cfg *config.Config, scenesPath string, logger *zap.Logger) (orchestrator.Summary, error) {
	scenes, err := loadScenes(scenesPath)
	if err != nil {
		return orchestrator.Summary{}, err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
		stopServer := startMetricsServer(cfg.Metrics, logger)
		defer stopServer()
	}

	store, closeStore, err := openStore(ctx, cfg.Accounts, logger)
	defer closeStore()
	if err != nil {
		return orchestrator.Summary{}, fmt.Errorf("open account store: %w", err)
	}
	accounts, err := store.Load(ctx)
	if err != nil {
		return orchestrator.Summary{}, fmt.Errorf("load accounts: %w", err)
	}
	pool, err := account.NewPool(accounts, logger)
	if err != nil {
		return orchestrator.Summary{}, err
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry.ExportConfig(), telemetry.RunInfo{
		Version:       Version,
		AccountSource: cfg.Accounts.Source,
		Accounts:      len(pool.Active()),
		Scenes:        len(scenes),
		OutputDir:     cfg.Orchestrator.OutputDir,
		Models:        cfg.Orchestrator.DefaultModels,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	client := remote.NewClient(cfg.Remote.Config, logger, remote.WithMetrics(collector))
	// 在 telemetry.Init 之后创建，默认 Tracer/Meter 取自已注册的全局实现
	dist := orchestrator.NewDistributor(client, logger, orchestrator.WithMetrics(collector))

	opts := cfg.RunOptions()
	opts.Progress = progressLogger(logger)

	start := time.Now()
	results, runErr := dist.Run(ctx, scenes, pool, opts)
	summary := orchestrator.Summarize(results, pool)
	summary.Duration = time.Since(start)

	if types.IsErrorCode(runErr, types.ErrAllAccountsExhausted) && summary.Total > 0 {
		// 每个场景的失败已体现在汇总中
		return summary, nil
	}
	return summary, runErr
}

// startMetricsServer exposes /metrics for the duration of the run.
func startMetricsServer(cfg config.MetricsConfig, logger *zap.Logger) func() {
	srvCfg := server.DefaultConfig()
	srvCfg.Addr = fmt.Sprintf(":%d", cfg.Port)

	mgr := server.NewManager(server.MetricsHandler(prometheus.DefaultGatherer), srvCfg, logger)
	if err := mgr.Start(); err != nil {
		logger.Warn("metrics endpoint unavailable", zap.Error(err))
		return func() {}
	}
	return func() { _ = mgr.Shutdown(context.Background()) }
}

func progressLogger(logger *zap.Logger) types.ProgressFunc {
	log := logger.With(zap.String("component", "progress"))
	return func(sceneIndex int, phase types.Phase, detail string) {
		log.Debug("scene progress",
			zap.Int("scene", sceneIndex),
			zap.String("phase", string(phase)),
			zap.String("detail", detail),
		)
	}
}
