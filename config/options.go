package config

import (
	"github.com/BaSui01/sceneflow/internal/circuitbreaker"
	"github.com/BaSui01/sceneflow/orchestrator"
	"github.com/BaSui01/sceneflow/request"
	"github.com/BaSui01/sceneflow/submit"
)

// RequestOptions 构建请求构建器参数
func (c *Config) RequestOptions() request.Options {
	opts := request.DefaultOptions()
	opts.Fields = c.Remote.RequestFields
	opts.DefaultModels = append([]string(nil), c.Orchestrator.DefaultModels...)
	opts.DefaultAspectRatio = c.Orchestrator.DefaultAspectRatio
	if len(c.Remote.AspectRatios) > 0 {
		opts.AspectRatios = c.Remote.AspectRatios
	}
	opts.MaxCopies = c.Orchestrator.MaxCopies
	return opts
}

// RunOptions 构建一次运行的编排参数
func (c *Config) RunOptions() orchestrator.Options {
	o := c.Orchestrator
	return orchestrator.Options{
		OutputDir:            o.OutputDir,
		MaxParallelDownloads: o.MaxParallelDownloads,
		PollInterval:         o.PollInterval,
		PollBatchSize:        o.PollBatchSize,
		GlobalTimeout:        o.GlobalTimeout,
		Request:              c.RequestOptions(),
		Submit: submit.Config{
			Overload:          o.Overload.Policy(),
			Network:           o.Network.Policy(),
			RequestsPerMinute: o.RequestsPerMinute,
		},
		Download: o.Download.Policy(),
		Breaker: &circuitbreaker.Config{
			Threshold:        o.Breaker.Threshold,
			ResetTimeout:     o.Breaker.ResetTimeout,
			HalfOpenMaxCalls: 1,
		},
	}
}
