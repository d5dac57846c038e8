package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil Collector 的所有记录方法均为空操作。
type Collector struct {
	// 远端 API 指标
	remoteRequestsTotal   *prometheus.CounterVec
	remoteRequestDuration *prometheus.HistogramVec

	// 提交指标
	submitAttemptsTotal *prometheus.CounterVec
	tokensQuarantined   *prometheus.CounterVec
	accountsExhausted   *prometheus.CounterVec
	backoffSeconds      prometheus.Histogram

	// 轮询指标
	operationsPending prometheus.Gauge
	operationsTotal   *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec

	// 下载指标
	downloadsTotal *prometheus.CounterVec
	downloadBytes  prometheus.Counter

	// 运行指标
	scenesTotal  *prometheus.CounterVec
	runDuration  prometheus.Histogram
	runsInFlight prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 远端 API 指标
	c.remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Total number of remote generation API calls",
		},
		[]string{"endpoint", "status"},
	)

	c.remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Remote generation API call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint"},
	)

	// 提交指标
	c.submitAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_attempts_total",
			Help:      "Total number of submission attempts by outcome kind",
		},
		[]string{"account", "kind"},
	)

	c.tokensQuarantined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_quarantined_total",
			Help:      "Total number of credentials quarantined during runs",
		},
		[]string{"account"},
	)

	c.accountsExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_exhausted_total",
			Help:      "Total number of accounts removed from the active pool",
		},
		[]string{"account"},
	)

	c.backoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submit_backoff_seconds",
			Help:      "Overload backoff delays in seconds",
			Buckets:   []float64{1, 5, 10, 20, 40, 60},
		},
	)

	// 轮询指标
	c.operationsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_pending",
			Help:      "Number of remote operations still pending",
		},
	)

	c.operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of remote operations reaching a terminal status",
		},
		[]string{"status"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_breaker_state",
			Help:      "Per-account status-check circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"account"},
	)

	// 下载指标
	c.downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Total number of artifact downloads by outcome",
		},
		[]string{"status"},
	)

	c.downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Total number of artifact bytes written",
		},
	)

	// 运行指标
	c.scenesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenes_total",
			Help:      "Total number of scenes finished by outcome",
		},
		[]string{"status"},
	)

	c.runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Orchestrator run duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	c.runsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Number of orchestrator runs currently executing",
		},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🌐 远端 API 指标记录
// =============================================================================

// RecordRemoteRequest 记录远端调用；status 为 0 表示传输层错误
func (c *Collector) RecordRemoteRequest(endpoint string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.remoteRequestsTotal.WithLabelValues(endpoint, statusCode(status)).Inc()
	c.remoteRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// =============================================================================
// 📤 提交指标记录
// =============================================================================

// RecordSubmitAttempt 记录一次提交尝试
func (c *Collector) RecordSubmitAttempt(account, kind string) {
	if c == nil {
		return
	}
	c.submitAttemptsTotal.WithLabelValues(account, kind).Inc()
}

// RecordTokenQuarantined 记录凭证隔离
func (c *Collector) RecordTokenQuarantined(account string) {
	if c == nil {
		return
	}
	c.tokensQuarantined.WithLabelValues(account).Inc()
}

// RecordAccountExhausted 记录账号耗尽
func (c *Collector) RecordAccountExhausted(account string) {
	if c == nil {
		return
	}
	c.accountsExhausted.WithLabelValues(account).Inc()
}

// RecordBackoff 记录退避时长
func (c *Collector) RecordBackoff(delay time.Duration) {
	if c == nil {
		return
	}
	c.backoffSeconds.Observe(delay.Seconds())
}

// =============================================================================
// 🔁 轮询指标记录
// =============================================================================

// SetOperationsPending 设置待完成任务数
func (c *Collector) SetOperationsPending(n int) {
	if c == nil {
		return
	}
	c.operationsPending.Set(float64(n))
}

// RecordOperationTerminal 记录任务进入终态
func (c *Collector) RecordOperationTerminal(status string) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(status).Inc()
}

// RecordBreakerState 记录熔断器状态
func (c *Collector) RecordBreakerState(account string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(account).Set(float64(state))
}

// =============================================================================
// 📥 下载与运行指标记录
// =============================================================================

// RecordDownload 记录下载结果
func (c *Collector) RecordDownload(status string, bytes int64) {
	if c == nil {
		return
	}
	c.downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		c.downloadBytes.Add(float64(bytes))
	}
}

// RecordScene 记录场景最终结果
func (c *Collector) RecordScene(status string) {
	if c == nil {
		return
	}
	c.scenesTotal.WithLabelValues(status).Inc()
}

// RunStarted 标记一次运行开始，返回结束回调
func (c *Collector) RunStarted() func() {
	if c == nil {
		return func() {}
	}
	start := time.Now()
	c.runsInFlight.Inc()
	return func() {
		c.runsInFlight.Dec()
		c.runDuration.Observe(time.Since(start).Seconds())
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code == 0:
		return "transport_error"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code == 401 || code == 403 || code == 429:
		return strconv.Itoa(code)
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
