package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.remoteRequestsTotal)
	assert.NotNil(t, collector.submitAttemptsTotal)
	assert.NotNil(t, collector.operationsPending)
	assert.NotNil(t, collector.downloadsTotal)
	assert.NotNil(t, collector.scenesTotal)
}

func TestCollector_RecordRemoteRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRemoteRequest("submit", 200, 100*time.Millisecond)
	collector.RecordRemoteRequest("submit", 503, 50*time.Millisecond)
	collector.RecordRemoteRequest("status", 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.remoteRequestsTotal.WithLabelValues("submit", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.remoteRequestsTotal.WithLabelValues("submit", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.remoteRequestsTotal.WithLabelValues("status", "transport_error")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.remoteRequestDuration))
}

func TestCollector_SubmitAndAccounts(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSubmitAttempt("acc-1", "auth")
	collector.RecordSubmitAttempt("acc-1", "auth")
	collector.RecordTokenQuarantined("acc-1")
	collector.RecordAccountExhausted("acc-1")
	collector.RecordBackoff(10 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.submitAttemptsTotal.WithLabelValues("acc-1", "auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tokensQuarantined.WithLabelValues("acc-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.accountsExhausted.WithLabelValues("acc-1")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.backoffSeconds))
}

func TestCollector_PollingAndDownloads(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetOperationsPending(7)
	collector.RecordOperationTerminal("succeeded")
	collector.RecordBreakerState("acc-2", 1)
	collector.RecordDownload("ok", 2048)
	collector.RecordDownload("failed", 0)
	collector.RecordScene("succeeded")

	assert.Equal(t, 7.0, testutil.ToFloat64(collector.operationsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.operationsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.breakerState.WithLabelValues("acc-2")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(collector.downloadBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.scenesTotal.WithLabelValues("succeeded")))
}

func TestCollector_RunStarted(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := collector.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.runsInFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.runsInFlight))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.runDuration))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordRemoteRequest("submit", 200, time.Second)
		collector.RecordSubmitAttempt("a", "ok")
		collector.SetOperationsPending(1)
		collector.RecordDownload("ok", 1)
		collector.RunStarted()()
	})
}

func TestStatusCode(t *testing.T) {
	cases := map[int]string{
		0:   "transport_error",
		200: "2xx",
		302: "3xx",
		400: "4xx",
		401: "401",
		429: "429",
		503: "5xx",
		-1:  "unknown",
	}
	for code, want := range cases {
		assert.Equal(t, want, statusCode(code), "code %d", code)
	}
}
