package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/types"
)

// sceneState is the coordinator's view of one scene across submission, polling and download.
type sceneState struct {
	prompt   types.ScenePrompt
	pending  int
	paths    map[int]string
	copyErrs map[int]error
	err      error
	finished bool
}

// runState records per-scene outcomes. Every scene finishes exactly once.
type runState struct {
	mu       sync.Mutex
	scenes   map[int]*sceneState
	order    []int
	progress types.ProgressFunc
	metrics  *metrics.Collector
	logger   *zap.Logger
	runErr   error
}

func newRunState(scenes []types.ScenePrompt, progress types.ProgressFunc, m *metrics.Collector, logger *zap.Logger) *runState {
	r := &runState{
		scenes:   make(map[int]*sceneState, len(scenes)),
		progress: progress,
		metrics:  m,
		logger:   logger,
	}
	for _, p := range scenes {
		r.scenes[p.SceneIndex] = &sceneState{
			prompt:   p,
			paths:    make(map[int]string),
			copyErrs: make(map[int]error),
		}
		r.order = append(r.order, p.SceneIndex)
	}
	sort.Ints(r.order)
	return r
}

func (r *runState) emit(index int, phase types.Phase, detail string) {
	if r.progress != nil {
		r.progress(index, phase, detail)
	}
}

// submitted must be called before the operations are handed to the tracker.
func (r *runState) submitted(index int, ops []types.Operation, attempts int) {
	r.mu.Lock()
	st := r.scenes[index]
	st.pending = len(ops)
	r.mu.Unlock()

	account := ""
	if len(ops) > 0 {
		account = ops[0].AccountID
	}
	r.emit(index, types.PhaseSubmitted, fmt.Sprintf("%d operation(s) on %s after %d attempt(s)", len(ops), account, attempts))
	r.emit(index, types.PhasePolling, "")
}

// fail finishes the scene with err unless it already finished.
func (r *runState) fail(index int, err error) {
	r.mu.Lock()
	st, ok := r.scenes[index]
	if !ok || st.finished {
		r.mu.Unlock()
		return
	}
	st.finished = true
	st.err = err
	r.mu.Unlock()

	r.reportFailure(index, err)
}

func (r *runState) reportFailure(index int, err error) {
	fields := []zap.Field{
		zap.String("scene", types.SceneLabel(index)),
		zap.String("code", string(types.CodeOf(err))),
		zap.Error(err),
	}
	if e, ok := types.AsError(err); ok {
		fields = append(fields, zap.Int("attempts", e.Attempts))
		if e.AccountID != "" {
			fields = append(fields, zap.String("account_id", e.AccountID))
		}
	}
	r.logger.Error("scene failed", fields...)
	r.metrics.RecordScene("failed")
	r.emit(index, types.PhaseFailed, err.Error())
}

// copyDone records a downloaded artifact.
func (r *runState) copyDone(index, copyIndex int, path string) {
	r.mu.Lock()
	st, ok := r.scenes[index]
	if !ok || st.finished {
		r.mu.Unlock()
		return
	}
	st.paths[copyIndex] = path
	st.pending--
	r.finishLocked(index, st)
}

// copyFailed records a failed copy. The scene fails only when no copy succeeded.
func (r *runState) copyFailed(index, copyIndex int, err error) {
	r.mu.Lock()
	st, ok := r.scenes[index]
	if !ok || st.finished {
		r.mu.Unlock()
		return
	}
	st.copyErrs[copyIndex] = err
	st.pending--
	if st.prompt.CopyCount() > 1 {
		r.logger.Warn("scene copy failed",
			zap.String("scene", types.SceneLabel(index)),
			zap.Int("copy", copyIndex),
			zap.Error(err),
		)
	}
	r.finishLocked(index, st)
}

// finishLocked is called with r.mu held and releases it.
func (r *runState) finishLocked(index int, st *sceneState) {
	if st.pending > 0 {
		r.mu.Unlock()
		return
	}
	st.finished = true
	if len(st.paths) == 0 {
		st.err = firstByKey(st.copyErrs)
		if st.err == nil {
			st.err = types.NewError(types.ErrGenerationFailed, "no artifact produced")
		}
		err := st.err
		r.mu.Unlock()
		r.reportFailure(index, err)
		return
	}
	paths := orderedPaths(st.paths)
	r.mu.Unlock()

	r.logger.Info("scene completed",
		zap.String("scene", types.SceneLabel(index)),
		zap.Strings("artifacts", paths),
	)
	r.metrics.RecordScene("succeeded")
	r.emit(index, types.PhaseDone, paths[0])
}

func (r *runState) setRunError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runErr == nil {
		r.runErr = err
	}
}

func (r *runState) runError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

// unfinished lists scenes that still have no outcome, ascending.
func (r *runState) unfinished() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, idx := range r.order {
		if !r.scenes[idx].finished {
			out = append(out, idx)
		}
	}
	return out
}

// results returns one result per input scene sorted by scene index.
func (r *runState) results() []types.JobBatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.JobBatchResult, 0, len(r.order))
	for _, idx := range r.order {
		st := r.scenes[idx]
		res := types.JobBatchResult{SceneIndex: idx, Err: st.err}
		if st.err == nil {
			res.ArtifactPaths = orderedPaths(st.paths)
		}
		out = append(out, res)
	}
	return out
}

func orderedPaths(m map[int]string) []string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func firstByKey(m map[int]error) error {
	first := -1
	for k := range m {
		if first < 0 || k < first {
			first = k
		}
	}
	if first < 0 {
		return nil
	}
	return m[first]
}
