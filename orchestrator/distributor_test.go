package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/sceneflow/internal/telemetry"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/testutil"
	"github.com/BaSui01/sceneflow/testutil/fixtures"
	"github.com/BaSui01/sceneflow/testutil/mocks"
	"github.com/BaSui01/sceneflow/types"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testOptions(dir string) Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.PollInterval = 5 * time.Millisecond
	opts.GlobalTimeout = 10 * time.Second
	opts.Sleeper = noSleep
	return opts
}

type progressLog struct {
	mu     sync.Mutex
	phases map[int][]types.Phase
}

func newProgressLog() *progressLog {
	return &progressLog{phases: make(map[int][]types.Phase)}
}

func (p *progressLog) record(scene int, phase types.Phase, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phases[scene] = append(p.phases[scene], phase)
}

func (p *progressLog) last(scene int) types.Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	ph := p.phases[scene]
	if len(ph) == 0 {
		return ""
	}
	return ph[len(ph)-1]
}

func (p *progressLog) count(scene int, phase types.Phase) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ph := range p.phases[scene] {
		if ph == phase {
			n++
		}
	}
	return n
}

func TestRun_AllScenesSucceed(t *testing.T) {
	dir := t.TempDir()
	api := mocks.NewFakeAPI().WithPendingPolls(2)
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"), fixtures.Account("b", "b-1"))
	progress := newProgressLog()

	opts := testOptions(dir)
	opts.Progress = progress.record

	d := NewDistributor(api, zaptest.NewLogger(t))
	results, err := d.Run(context.Background(), fixtures.Scenes(4), pool, opts)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, res := range results {
		assert.Equal(t, i+1, res.SceneIndex)
		require.NoError(t, res.Err)
		require.Len(t, res.ArtifactPaths, 1)
		assert.Equal(t, filepath.Join(dir, types.SceneLabel(i+1)+".mp4"), res.ArtifactPaths[0])

		data, err := os.ReadFile(res.ArtifactPaths[0])
		require.NoError(t, err)
		assert.Contains(t, string(data), "video:")

		assert.Equal(t, types.PhaseDone, progress.last(i+1))
		assert.Equal(t, 1, progress.count(i+1, types.PhaseSubmitted))
	}

	// 轮转分配：每个账号各提交两次
	perToken := map[string]int{}
	for _, call := range api.SubmitCalls() {
		perToken[call.Token]++
	}
	assert.Equal(t, map[string]int{"a-1": 2, "b-1": 2}, perToken)
}

func TestRun_CopiesLandAtCopyPaths(t *testing.T) {
	dir := t.TempDir()
	api := mocks.NewFakeAPI()
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))

	scenes := []types.ScenePrompt{{SceneIndex: 3, Text: "a lighthouse at dusk", Copies: 3}}
	results, err := NewDistributor(api, nil).Run(context.Background(), scenes, pool, testOptions(dir))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, []string{
		filepath.Join(dir, "scene_003.mp4"),
		filepath.Join(dir, "scene_003_v2.mp4"),
		filepath.Join(dir, "scene_003_v3.mp4"),
	}, results[0].ArtifactPaths)
	require.Len(t, api.SubmitCalls(), 1)
	assert.Len(t, api.SubmitCalls()[0].SceneIDs, 3)
}

func TestRun_ZeroHealthyAccountsMakesNoCalls(t *testing.T) {
	api := mocks.NewFakeAPI()
	disabled := fixtures.Account("a", "a-1")
	disabled.Enabled = false
	pool := testutil.NewPool(t, disabled)

	progress := newProgressLog()
	opts := testOptions(t.TempDir())
	opts.Progress = progress.record

	results, err := NewDistributor(api, zaptest.NewLogger(t)).Run(context.Background(), fixtures.Scenes(3), pool, opts)
	require.Error(t, err)
	assert.Equal(t, types.ErrAllAccountsExhausted, types.CodeOf(err))
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, types.ErrAllAccountsExhausted, types.CodeOf(res.Err))
		assert.Equal(t, types.PhaseFailed, progress.last(res.SceneIndex))
	}
	assert.Zero(t, api.TotalCalls())
}

func TestRun_ParallelAcrossAccounts(t *testing.T) {
	const delay = 60 * time.Millisecond
	api := mocks.NewFakeAPI().WithSubmitDelay(delay)
	pool := testutil.NewPool(t,
		fixtures.Account("a", "a-1"),
		fixtures.Account("b", "b-1"),
		fixtures.Account("c", "c-1"),
	)

	start := time.Now()
	results, err := NewDistributor(api, nil).Run(context.Background(), fixtures.Scenes(9), pool, testOptions(t.TempDir()))
	elapsed := time.Since(start)
	require.NoError(t, err)
	require.Len(t, results, 9)

	// 串行提交至少需要 9 × delay
	assert.Less(t, elapsed, 6*delay, "submission should run concurrently across accounts")

	perToken := map[string]int{}
	for _, call := range api.SubmitCalls() {
		perToken[call.Token]++
	}
	assert.Equal(t, map[string]int{"a-1": 3, "b-1": 3, "c-1": 3}, perToken)
}

func TestRun_WorkStealingOnTokenExhaustion(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	api := mocks.NewFakeAPI().WithSubmitFunc(func(call mocks.SubmitCall) error {
		if call.Token == "a-bad" {
			return mocks.StatusError(401, "token expired")
		}
		return nil
	})
	pool := testutil.NewPool(t, fixtures.Account("a", "a-bad"), fixtures.Account("b", "b-1"))

	results, err := NewDistributor(api, zap.New(core)).Run(context.Background(), fixtures.Scenes(4), pool, testOptions(t.TempDir()))
	require.NoError(t, err)
	for _, res := range results {
		assert.NoError(t, res.Err, "scene %d", res.SceneIndex)
		assert.Len(t, res.ArtifactPaths, 1)
	}

	succeeded := 0
	for _, call := range api.SubmitCalls() {
		if call.Token == "b-1" {
			succeeded++
		}
	}
	assert.Equal(t, 4, succeeded, "account b should pick up every orphaned scene")

	exhausted := pool.Exhausted()
	require.Len(t, exhausted, 1)
	assert.Equal(t, "a", exhausted[0].ID)
	assert.Equal(t, 1, logs.FilterMessage("account exhausted, redistributing scenes").Len())
}

func TestRun_AllAccountsExhaustedKeepsSubmittedWork(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	api := mocks.NewFakeAPI().WithSubmitFunc(func(mocks.SubmitCall) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil
		}
		return mocks.StatusError(403, "forbidden")
	})
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))

	results, err := NewDistributor(api, zaptest.NewLogger(t)).Run(context.Background(), fixtures.Scenes(3), pool, testOptions(t.TempDir()))
	require.Error(t, err)
	assert.Equal(t, types.ErrAllAccountsExhausted, types.CodeOf(err))
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err, "already submitted scene is still polled and downloaded")
	assert.Len(t, results[0].ArtifactPaths, 1)
	for _, res := range results[1:] {
		assert.Equal(t, types.ErrAllAccountsExhausted, types.CodeOf(res.Err))
	}
	assert.Len(t, api.DownloadCalls(), 1)
}

func TestRun_PermanentFailureIsolatedToScene(t *testing.T) {
	// 单账号顺序提交：第一个场景的两个模型都被拒绝
	api := mocks.NewFakeAPI().WithSubmitFunc(mocks.Sequence(
		mocks.StatusError(400, "invalid prompt"),
		mocks.StatusError(400, "invalid prompt"),
	))
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))

	core, logs := observer.New(zapcore.ErrorLevel)
	results, err := NewDistributor(api, zap.New(core)).Run(context.Background(), fixtures.Scenes(3), pool, testOptions(t.TempDir()))
	require.NoError(t, err)

	require.Error(t, results[0].Err)
	e, ok := types.AsError(results[0].Err)
	require.True(t, ok)
	assert.Equal(t, types.ErrBadRequest, e.Code)
	assert.Equal(t, 2, e.Attempts)
	assert.NoError(t, results[1].Err)
	assert.NoError(t, results[2].Err)

	failed := logs.FilterMessage("scene failed")
	require.Equal(t, 1, failed.Len(), "terminal failure is reported exactly once")
	assert.Equal(t, "scene_001", failed.All()[0].ContextMap()["scene"])
}

func TestRun_GenerationFailureAndPartialCopies(t *testing.T) {
	api := mocks.NewFakeAPI()
	api.WithPollFunc(func(token string, ids []string) ([]remote.StatusResult, error) {
		out := make([]remote.StatusResult, 0, len(ids))
		for _, id := range ids {
			// op-1 属于场景 1 的唯一副本，op-3 是场景 2 的第二个副本
			if id == "op-1" || id == "op-3" {
				out = append(out, remote.StatusResult{OperationID: id, Status: types.OperationFailed, Message: "safety filter"})
				continue
			}
			out = append(out, remote.StatusResult{OperationID: id, Status: types.OperationSucceeded, ResultURL: "https://fake.local/videos/" + id + ".mp4"})
		}
		return out, nil
	})
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))
	scenes := []types.ScenePrompt{
		{SceneIndex: 1, Text: "first"},
		{SceneIndex: 2, Text: "second", Copies: 2},
	}

	results, err := NewDistributor(api, nil).Run(context.Background(), scenes, pool, testOptions(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, types.ErrGenerationFailed, types.CodeOf(results[0].Err))
	require.NoError(t, results[1].Err)
	require.Len(t, results[1].ArtifactPaths, 1)
	assert.Equal(t, "scene_002.mp4", filepath.Base(results[1].ArtifactPaths[0]))
}

func TestRun_GlobalTimeout(t *testing.T) {
	api := mocks.NewFakeAPI().WithPendingPolls(1 << 20)
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))

	opts := testOptions(t.TempDir())
	opts.GlobalTimeout = 80 * time.Millisecond

	results, err := NewDistributor(api, nil).Run(context.Background(), fixtures.Scenes(2), pool, opts)
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, types.ErrTimedOut, types.CodeOf(res.Err))
	}
	assert.Empty(t, api.DownloadCalls())
}

func TestRun_CancelStopsEverything(t *testing.T) {
	api := mocks.NewFakeAPI().WithPendingPolls(1 << 20)
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	results, err := NewDistributor(api, nil).Run(ctx, fixtures.Scenes(3), pool, testOptions(t.TempDir()))
	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.CodeOf(err))
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, types.ErrCancelled, types.CodeOf(res.Err))
	}
}

func TestRun_RejectsDuplicateSceneIndex(t *testing.T) {
	api := mocks.NewFakeAPI()
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))
	scenes := []types.ScenePrompt{{SceneIndex: 1, Text: "x"}, {SceneIndex: 1, Text: "y"}}

	_, err := NewDistributor(api, nil).Run(context.Background(), scenes, pool, testOptions(t.TempDir()))
	require.Error(t, err)
	assert.Equal(t, types.ErrBadRequest, types.CodeOf(err))
	assert.Zero(t, api.TotalCalls())
}

func TestRun_EmptyBatch(t *testing.T) {
	api := mocks.NewFakeAPI()
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))

	results, err := NewDistributor(api, nil).Run(context.Background(), nil, pool, testOptions(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, api.TotalCalls())
}

func TestRun_EndToEndOverHTTP(t *testing.T) {
	fake := mocks.NewFakeAPI().WithPendingPolls(1)
	srv := mocks.NewServer(fake)
	defer srv.Close()

	cfg := remote.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestTimeout = 5 * time.Second
	client := remote.NewClient(cfg, zaptest.NewLogger(t))

	dir := t.TempDir()
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"), fixtures.Account("b", "b-1"))
	scenes := fixtures.Scenes(3)
	scenes[1].Copies = 2

	var (
		mu   sync.Mutex
		post []int
	)
	opts := testOptions(dir)
	opts.PostProcess = func(scene int, path string) {
		mu.Lock()
		defer mu.Unlock()
		post = append(post, scene)
	}

	results, err := NewDistributor(client, zaptest.NewLogger(t)).Run(context.Background(), scenes, pool, opts)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Len(t, results[1].ArtifactPaths, 2)
	for _, res := range results {
		require.NoError(t, res.Err)
		for _, p := range res.ArtifactPaths {
			data, err := os.ReadFile(p)
			require.NoError(t, err)
			assert.Contains(t, string(data), srv.URL+"/videos/")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{1, 2, 2, 3}, post)

	for _, call := range fake.SubmitCalls() {
		assert.Contains(t, []string{"proj-a", "proj-b"}, call.ProjectID)
		assert.Equal(t, "veo_3_1_t2v_fast", call.Model)
	}
}

func TestSummarize(t *testing.T) {
	results := []types.JobBatchResult{
		{SceneIndex: 1, ArtifactPaths: []string{"out/scene_001.mp4", "out/scene_001_v2.mp4"}},
		{SceneIndex: 2, Err: types.NewError(types.ErrOverloaded, "backend overloaded").WithAttempts(5)},
		{SceneIndex: 3, ArtifactPaths: []string{"out/scene_003.mp4"}},
	}

	s := Summarize(results, nil)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, []int{1, 3}, s.Succeeded)
	assert.Equal(t, 3, s.Artifacts)
	require.Len(t, s.Failed, 1)
	assert.Equal(t, FailedScene{SceneIndex: 2, Code: types.ErrOverloaded, Attempts: 5, Reason: "backend overloaded"}, s.Failed[0])
	assert.False(t, s.OK())
	assert.Contains(t, s.String(), "scene_002")

	core, logs := observer.New(zapcore.InfoLevel)
	s.Log(zap.New(core))
	entries := logs.FilterMessage("run summary").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestRun_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	api := mocks.NewFakeAPI()
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))
	d := NewDistributor(api, nil, WithTracer(tp.Tracer("test")))

	_, err := d.Run(context.Background(), fixtures.Scenes(2), pool, testOptions(t.TempDir()))
	require.NoError(t, err)

	names := map[string]int{}
	var run sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		names[s.Name()]++
		if s.Name() == telemetry.SpanRun {
			run = s
		}
	}
	assert.Equal(t, 1, names[telemetry.SpanRun])
	assert.Equal(t, 2, names[telemetry.SpanSubmit])
	require.NotNil(t, run)

	downloads := 0
	for _, ev := range run.Events() {
		if ev.Name == telemetry.EventDownload {
			downloads++
		}
	}
	assert.Equal(t, 2, downloads)
}

func TestRun_RecordsRunInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithView(telemetry.Views()...))

	// 第一个场景两个模型都被拒绝，第二个场景成功
	api := mocks.NewFakeAPI().WithSubmitFunc(mocks.Sequence(
		mocks.StatusError(400, "invalid prompt"),
		mocks.StatusError(400, "invalid prompt"),
	))
	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))
	d := NewDistributor(api, nil, WithMeter(mp.Meter("test")))

	_, err := d.Run(context.Background(), fixtures.Scenes(2), pool, testOptions(t.TempDir()))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	outcomes := map[string]int64{}
	runs := uint64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case telemetry.SceneOutcomeMetric:
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					v, _ := dp.Attributes.Value(telemetry.OutcomeKey)
					outcomes[v.AsString()] += dp.Value
				}
			case telemetry.RunDurationMetric:
				hist, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				for _, dp := range hist.DataPoints {
					runs += dp.Count
				}
			}
		}
	}
	assert.Equal(t, uint64(1), runs)
	assert.Equal(t, map[string]int64{"succeeded": 1, "failed": 1}, outcomes)
}
