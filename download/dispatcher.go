package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/internal/retry"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/types"
)

var (
	ErrDispatcherClosed = errors.New("download dispatcher is closed")
	ErrQueueFull        = errors.New("download queue is full")
)

// Config 下载调度配置
type Config struct {
	Workers   int
	QueueSize int
	OutputDir string
	Retry     *retry.RetryPolicy
}

// DefaultConfig 返回默认下载配置
func DefaultConfig() Config {
	return Config{
		Workers:   5,
		QueueSize: 64,
		OutputDir: "output",
		Retry:     retry.DefaultRetryPolicy(),
	}
}

// Result is the outcome of one DownloadTask.
type Result struct {
	Task  types.DownloadTask
	Path  string
	Bytes int64
	Err   error
}

// ResultHandler receives every task outcome exactly once. It is called from worker goroutines.
type ResultHandler func(Result)

// PostProcessFunc runs after a successful download, e.g. thumbnailing or upload.
type PostProcessFunc func(sceneIndex int, path string)

// Dispatcher is a bounded worker pool fetching artifacts to scene-indexed paths.
type Dispatcher struct {
	cfg         Config
	api         remote.API
	queue       chan types.DownloadTask
	onResult    ResultHandler
	postProcess PostProcessFunc
	retryer     retry.Retryer
	metrics     *metrics.Collector
	logger      *zap.Logger

	mu      sync.Mutex
	seen    map[string]struct{}
	closed  atomic.Bool
	started atomic.Bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// Option 调度器选项
type Option func(*Dispatcher)

// WithPostProcess 设置下载完成后的外部处理钩子
func WithPostProcess(fn PostProcessFunc) Option {
	return func(d *Dispatcher) { d.postProcess = fn }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSleeper 替换重试等待实现
func WithSleeper(sleep retry.Sleeper) Option {
	return func(d *Dispatcher) {
		d.retryer = retry.NewBackoffRetryerWithSleeper(d.retryPolicy(), sleep, d.logger)
	}
}

// New 创建下载调度器
func New(api remote.API, cfg Config, onResult ResultHandler, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Retry == nil {
		cfg.Retry = def.Retry
	}
	if onResult == nil {
		onResult = func(Result) {}
	}

	d := &Dispatcher{
		cfg:      cfg,
		api:      api,
		queue:    make(chan types.DownloadTask, cfg.QueueSize),
		onResult: onResult,
		logger:   logger.With(zap.String("component", "download_dispatcher")),
		seen:     make(map[string]struct{}),
	}
	d.retryer = retry.NewBackoffRetryer(d.retryPolicy(), d.logger)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) retryPolicy() *retry.RetryPolicy {
	p := *d.cfg.Retry
	p.ShouldRetry = types.IsRetryable
	return &p
}

// Start launches the workers. Tasks still queued when ctx ends are reported as cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.started.Swap(true) {
		return
	}
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Enqueue adds a task without blocking. A second task for the same operation is ignored.
func (d *Dispatcher) Enqueue(task types.DownloadTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	if _, dup := d.seen[task.OperationID]; dup {
		d.logger.Debug("duplicate download ignored", zap.String("operation_id", task.OperationID))
		return nil
	}
	if task.DestPath == "" {
		task.DestPath = DestPath(d.cfg.OutputDir, task.SceneIndex, task.CopyIndex)
	}

	select {
	case d.queue <- task:
		d.seen[task.OperationID] = struct{}{}
		d.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits until every queued task has been reported.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed.Swap(true) {
		d.mu.Unlock()
		return
	}
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for task := range d.queue {
		// 取消后只排空队列，不再发起下载
		if ctx.Err() != nil {
			d.cancelled.Add(1)
			d.metrics.RecordDownload("cancelled", 0)
			d.onResult(Result{
				Task: task,
				Path: task.DestPath,
				Err:  types.NewError(types.ErrCancelled, "download cancelled before start").WithCause(ctx.Err()),
			})
			continue
		}

		res := d.execute(ctx, task)
		if res.Err != nil {
			if types.IsErrorCode(res.Err, types.ErrCancelled) {
				d.cancelled.Add(1)
				d.metrics.RecordDownload("cancelled", 0)
			} else {
				d.failed.Add(1)
				d.metrics.RecordDownload("failed", 0)
			}
		} else {
			d.completed.Add(1)
			d.metrics.RecordDownload("ok", res.Bytes)
		}
		d.onResult(res)
	}
}

func (d *Dispatcher) execute(ctx context.Context, task types.DownloadTask) (res Result) {
	res = Result{Task: task, Path: task.DestPath}
	defer func() {
		if r := recover(); r != nil {
			res.Err = types.NewError(types.ErrDownloadFailed, fmt.Sprintf("download panicked: %v", r))
		}
	}()

	n, err := d.fetch(ctx, task)
	if err != nil {
		res.Err = err
		return res
	}
	res.Bytes = n

	d.logger.Debug("artifact written",
		zap.String("scene", types.SceneLabel(task.SceneIndex)),
		zap.Int("copy", task.CopyIndex),
		zap.String("path", task.DestPath),
		zap.Int64("bytes", n),
	)

	if d.postProcess != nil {
		d.runPostProcess(task)
	}
	return res
}

func (d *Dispatcher) runPostProcess(task types.DownloadTask) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("post-process hook panicked",
				zap.String("scene", types.SceneLabel(task.SceneIndex)),
				zap.Any("panic", r),
			)
		}
	}()
	d.postProcess(task.SceneIndex, task.DestPath)
}

// fetch downloads into a temp file next to the destination, then renames it into place.
func (d *Dispatcher) fetch(ctx context.Context, task types.DownloadTask) (int64, error) {
	dir := filepath.Dir(task.DestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, types.NewError(types.ErrDownloadFailed, "create output directory").WithCause(err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(task.DestPath)+".*.part")
	if err != nil {
		return 0, types.NewError(types.ErrDownloadFailed, "create temp file").WithCause(err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := retry.Transfer(ctx, d.retryer, tmp, func(ctx context.Context, w io.Writer) (int64, error) {
		return d.api.Download(ctx, task.URL, task.AuthToken, w)
	})
	if err != nil {
		if ctx.Err() != nil || types.IsErrorCode(err, types.ErrCancelled) {
			return 0, types.NewError(types.ErrCancelled, "download cancelled").WithCause(err)
		}
		return 0, types.NewError(types.ErrDownloadFailed, "fetch "+types.SceneLabel(task.SceneIndex)).WithCause(err)
	}

	if err := tmp.Close(); err != nil {
		return 0, types.NewError(types.ErrDownloadFailed, "close temp file").WithCause(err)
	}
	if err := os.Rename(tmpName, task.DestPath); err != nil {
		return 0, types.NewError(types.ErrDownloadFailed, "move artifact into place").WithCause(err)
	}
	committed = true
	return n, nil
}

// Stats 返回调度统计
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    len(d.queue),
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Cancelled: d.cancelled.Load(),
	}
}

// Stats contains dispatcher statistics.
type Stats struct {
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}
