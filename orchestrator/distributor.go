package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/download"
	"github.com/BaSui01/sceneflow/internal/ctxkeys"
	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/internal/telemetry"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/request"
	"github.com/BaSui01/sceneflow/submit"
	"github.com/BaSui01/sceneflow/tracker"
	"github.com/BaSui01/sceneflow/types"
)

// Distributor spreads a batch of scenes over the active accounts of a pool and
// drives them through submission, polling and download.
type Distributor struct {
	api     remote.API
	metrics  *metrics.Collector
	tracer   trace.Tracer
	meter    metric.Meter
	recorder *telemetry.RunRecorder
	logger   *zap.Logger
}

// Option 分发器选项
type Option func(*Distributor)

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Distributor) { d.metrics = m }
}

// WithTracer 替换默认的全局 Tracer
func WithTracer(t trace.Tracer) Option {
	return func(d *Distributor) { d.tracer = t }
}

// WithMeter 替换默认的全局 Meter
func WithMeter(m metric.Meter) Option {
	return func(d *Distributor) { d.meter = m }
}

// NewDistributor 创建场景分发器
func NewDistributor(api remote.API, logger *zap.Logger, opts ...Option) *Distributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Distributor{
		api:    api,
		tracer: telemetry.Tracer(),
		meter:  telemetry.Meter(),
		logger: logger.With(zap.String("component", "scene_distributor")),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.meter != nil {
		rec, err := telemetry.NewRunRecorder(d.meter)
		if err != nil {
			d.logger.Warn("run instruments unavailable", zap.Error(err))
		}
		d.recorder = rec
	}
	return d
}

// Run executes the batch and returns exactly one result per input scene, sorted by scene index.
//
// The returned error is non-nil only for run-level conditions: invalid input,
// ALL_ACCOUNTS_EXHAUSTED, or cancellation. Per-scene failures live in the results.
func (d *Distributor) Run(ctx context.Context, scenes []types.ScenePrompt, pool *account.Pool, opts Options) ([]types.JobBatchResult, error) {
	if err := validateScenes(scenes); err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("account pool is required")
	}
	opts = opts.withDefaults()

	runID := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, telemetry.SpanRun, trace.WithAttributes(
		telemetry.RunIDKey.String(runID),
		telemetry.ScenesKey.Int(len(scenes)),
	))
	defer span.End()

	finish := d.metrics.RunStarted()
	defer finish()
	start := time.Now()

	ctx = ctxkeys.WithRunID(ctx, runID)
	log := d.logger.With(zap.String("run_id", runID))
	r := newRunState(scenes, opts.Progress, d.metrics, log)

	results, err := d.execute(ctx, runID, scenes, pool, opts, r, log)

	summary := Summarize(results, pool)
	summary.RunID = runID
	summary.Duration = time.Since(start)
	summary.Log(log)

	span.SetAttributes(
		telemetry.SucceededKey.Int(len(summary.Succeeded)),
		telemetry.FailedKey.Int(len(summary.Failed)),
	)
	d.recorder.Record(ctx, len(summary.Succeeded), len(summary.Failed), summary.Duration)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return results, err
}

func (d *Distributor) execute(ctx context.Context, runID string, scenes []types.ScenePrompt, pool *account.Pool, opts Options, r *runState, log *zap.Logger) ([]types.JobBatchResult, error) {
	if len(scenes) == 0 {
		return []types.JobBatchResult{}, nil
	}

	active := pool.Active()
	if len(active) == 0 {
		err := types.NewError(types.ErrAllAccountsExhausted, "no healthy account available")
		for _, idx := range r.unfinished() {
			r.fail(idx, err)
		}
		return r.results(), err
	}
	accountIDs := make([]string, 0, len(active))
	for _, acc := range active {
		accountIDs = append(accountIDs, acc.ID)
	}

	builder := request.NewBuilder(opts.Request)
	totalOps := 0
	for _, p := range scenes {
		totalOps += builder.Copies(p)
	}

	log.Info("run started",
		zap.Int("scenes", len(scenes)),
		zap.Int("operations", totalOps),
		zap.Strings("accounts", accountIDs),
	)

	subCfg := opts.Submit
	if subCfg.SessionID == "" {
		subCfg.SessionID = runID
	}
	subOpts := []submit.Option{submit.WithMetrics(d.metrics)}
	dlOpts := []download.Option{download.WithMetrics(d.metrics)}
	if opts.Sleeper != nil {
		subOpts = append(subOpts, submit.WithSleeper(opts.Sleeper))
		dlOpts = append(dlOpts, download.WithSleeper(opts.Sleeper))
	}
	if opts.PostProcess != nil {
		dlOpts = append(dlOpts, download.WithPostProcess(opts.PostProcess))
	}
	submitter := submit.New(d.api, pool, builder, subCfg, d.logger, subOpts...)

	span := trace.SpanFromContext(ctx)
	disp := download.New(d.api, download.Config{
		Workers:   opts.MaxParallelDownloads,
		QueueSize: totalOps,
		OutputDir: opts.OutputDir,
		Retry:     opts.Download,
	}, func(res download.Result) {
		span.AddEvent(telemetry.EventDownload, trace.WithAttributes(
			telemetry.SceneIndexKey.Int(res.Task.SceneIndex),
			telemetry.CopyIndexKey.Int(res.Task.CopyIndex),
			telemetry.BytesKey.Int64(res.Bytes),
			telemetry.OKKey.Bool(res.Err == nil),
		))
		if res.Err != nil {
			r.copyFailed(res.Task.SceneIndex, res.Task.CopyIndex, res.Err)
			return
		}
		r.copyDone(res.Task.SceneIndex, res.Task.CopyIndex, res.Path)
	}, d.logger, dlOpts...)

	tr := tracker.New()
	loop := tracker.NewLoop(tr, d.api, pool, tracker.LoopConfig{
		Interval:      opts.PollInterval,
		BatchSize:     opts.PollBatchSize,
		GlobalTimeout: opts.GlobalTimeout,
		Breaker:       opts.Breaker,
	}, func(op types.Operation) {
		if op.Status != types.OperationSucceeded {
			r.copyFailed(op.SceneIndex, op.CopyIndex, op.Err)
			return
		}
		r.emit(op.SceneIndex, types.PhaseDownloading, op.OperationID)
		err := disp.Enqueue(types.DownloadTask{
			SceneIndex:  op.SceneIndex,
			CopyIndex:   op.CopyIndex,
			OperationID: op.OperationID,
			URL:         op.ResultURL,
			DestPath:    download.DestPath(opts.OutputDir, op.SceneIndex, op.CopyIndex),
			AuthToken:   op.AuthToken,
		})
		if err != nil {
			r.copyFailed(op.SceneIndex, op.CopyIndex,
				types.NewError(types.ErrDownloadFailed, "enqueue download").WithCause(err))
		}
	}, d.logger, tracker.WithMetrics(d.metrics))

	// 提交阶段可被取消或在轮询结束后停止；下载只跟随调用方的 ctx
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	disp.Start(ctx)
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
		cancelRun()
	}()

	sched := newScheduler(accountIDs, scenes)
	stopSched := context.AfterFunc(runCtx, sched.stop)
	defer stopSched()

	var g errgroup.Group
	for _, id := range accountIDs {
		g.Go(func() error {
			d.work(runCtx, id, sched, submitter, tr, r, log)
			return nil
		})
	}
	_ = g.Wait()
	tr.Seal()

	loopErr := <-loopDone
	disp.Close()

	if loopErr != nil {
		log.Warn("polling stopped early", zap.Error(loopErr))
	}

	// 剩余未完成的场景：未提交、提交被中断或轮询被截止
	leftover := sched.unsubmitted()
	if len(leftover) > 0 {
		log.Warn("scenes left unscheduled", zap.Int("count", len(leftover)))
	}
	for _, idx := range r.unfinished() {
		r.fail(idx, d.interruption(ctx, loop))
	}

	runErr := r.runError()
	if runErr == nil && ctx.Err() != nil {
		runErr = types.NewError(types.ErrCancelled, "run cancelled").WithCause(ctx.Err())
	}
	return r.results(), runErr
}

// work is one account's sequential submission loop.
func (d *Distributor) work(ctx context.Context, accountID string, sched *scheduler, submitter *submit.Submitter, tr *tracker.Tracker, r *runState, log *zap.Logger) {
	log = log.With(zap.String("account_id", accountID))
	ctx = ctxkeys.WithAccountID(ctx, accountID)

	for {
		p, ok := sched.next(accountID)
		if !ok {
			return
		}

		sctx, span := d.tracer.Start(ctxkeys.WithSceneIndex(ctx, p.SceneIndex), telemetry.SpanSubmit, trace.WithAttributes(
			telemetry.SceneIndexKey.Int(p.SceneIndex),
			telemetry.AccountIDKey.String(accountID),
		))
		out, err := submitter.Submit(sctx, accountID, p)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(types.CodeOf(err)))
		} else {
			span.SetAttributes(
				telemetry.OperationsKey.Int(len(out.Operations)),
				telemetry.AttemptsKey.Int(out.Attempts),
			)
		}
		span.End()

		switch {
		case err == nil:
			r.submitted(p.SceneIndex, out.Operations, out.Attempts)
			if regErr := tr.Register(out.Operations...); regErr != nil {
				r.fail(p.SceneIndex, types.NewError(types.ErrCancelled, "operations not tracked").WithCause(regErr))
			}
			sched.done()

		case types.IsErrorCode(err, types.ErrAllTokensInvalid):
			log.Warn("account exhausted, redistributing scenes",
				zap.String("scene", types.SceneLabel(p.SceneIndex)),
				zap.Error(err),
			)
			if rest := sched.orphan(accountID, p); rest != nil {
				runErr := types.NewError(types.ErrAllAccountsExhausted, "no healthy account left").WithCause(err)
				r.setRunError(runErr)
				for _, q := range rest {
					r.fail(q.SceneIndex, runErr)
				}
			}
			return

		case types.IsErrorCode(err, types.ErrCancelled):
			// 留给收尾阶段统一判定为取消或超时
			sched.done()

		default:
			r.fail(p.SceneIndex, err)
			sched.done()
		}
	}
}

// interruption explains why a scene never reached an outcome.
func (d *Distributor) interruption(ctx context.Context, loop *tracker.Loop) error {
	switch {
	case ctx.Err() != nil:
		return types.NewError(types.ErrCancelled, "run cancelled").WithCause(ctx.Err())
	case loop.TimedOut():
		return types.NewError(types.ErrTimedOut, "global timeout elapsed before the scene completed")
	default:
		return types.NewError(types.ErrCancelled, "scene was not scheduled")
	}
}

// validateScenes rejects duplicate scene indices.
func validateScenes(scenes []types.ScenePrompt) error {
	seen := make(map[int]struct{}, len(scenes))
	for _, p := range scenes {
		if _, dup := seen[p.SceneIndex]; dup {
			return types.NewError(types.ErrBadRequest, fmt.Sprintf("duplicate scene index %d", p.SceneIndex))
		}
		seen[p.SceneIndex] = struct{}{}
	}
	return nil
}
