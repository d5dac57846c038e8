package orchestrator

import (
	"time"

	"github.com/BaSui01/sceneflow/download"
	"github.com/BaSui01/sceneflow/internal/circuitbreaker"
	"github.com/BaSui01/sceneflow/internal/retry"
	"github.com/BaSui01/sceneflow/request"
	"github.com/BaSui01/sceneflow/submit"
	"github.com/BaSui01/sceneflow/tracker"
	"github.com/BaSui01/sceneflow/types"
)

// Options 单次运行的参数
type Options struct {
	// OutputDir 产物输出目录
	OutputDir string
	// MaxParallelDownloads 并发下载数上限
	MaxParallelDownloads int
	// PollInterval 状态轮询间隔
	PollInterval time.Duration
	// PollBatchSize 单次状态查询携带的操作数
	PollBatchSize int
	// GlobalTimeout 整个运行的轮询时限，超时后仍在等待的操作标记为 TIMED_OUT
	GlobalTimeout time.Duration

	Request  request.Options
	Submit   submit.Config
	Download *retry.RetryPolicy
	Breaker  *circuitbreaker.Config

	// Progress 进度回调，可能在多个 goroutine 中被调用
	Progress    types.ProgressFunc
	PostProcess download.PostProcessFunc

	// Sleeper 替换退避等待实现（测试用）
	Sleeper retry.Sleeper
}

// DefaultOptions 返回默认运行参数
func DefaultOptions() Options {
	loop := tracker.DefaultLoopConfig()
	dl := download.DefaultConfig()
	return Options{
		OutputDir:            dl.OutputDir,
		MaxParallelDownloads: dl.Workers,
		PollInterval:         loop.Interval,
		PollBatchSize:        loop.BatchSize,
		GlobalTimeout:        loop.GlobalTimeout,
		Request:              request.DefaultOptions(),
		Submit:               submit.DefaultConfig(),
		Download:             dl.Retry,
		Breaker:              loop.Breaker,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.OutputDir == "" {
		o.OutputDir = def.OutputDir
	}
	if o.MaxParallelDownloads <= 0 {
		o.MaxParallelDownloads = def.MaxParallelDownloads
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollBatchSize <= 0 {
		o.PollBatchSize = def.PollBatchSize
	}
	if o.GlobalTimeout <= 0 {
		o.GlobalTimeout = def.GlobalTimeout
	}
	if o.Download == nil {
		o.Download = def.Download
	}
	if o.Breaker == nil {
		o.Breaker = def.Breaker
	}
	return o
}
