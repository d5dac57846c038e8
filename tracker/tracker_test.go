package tracker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/sceneflow/types"
)

func op(id string, scene int) types.Operation {
	return types.Operation{OperationID: id, SceneIndex: scene, AccountID: "acc-1"}
}

func TestTracker_RegisterAndPending(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Register(op("op-1", 1), op("op-2", 2)))

	pending := tr.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "op-1", pending[0].OperationID)
	assert.Equal(t, types.OperationPending, pending[0].Status)

	assert.ErrorContains(t, tr.Register(op("op-1", 1)), "already registered")
	assert.Equal(t, 2, tr.Len())

	select {
	case <-tr.Changed():
	default:
		t.Fatal("expected change notification after register")
	}
}

func TestTracker_SealAndDone(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Register(op("op-1", 1)))
	assert.False(t, tr.Done())

	tr.Seal()
	assert.True(t, tr.Sealed())
	assert.False(t, tr.Done())
	assert.ErrorIs(t, tr.Register(op("op-2", 2)), ErrSealed)

	tr.Apply([]Update{{OperationID: "op-1", Status: types.OperationSucceeded, ResultURL: "u"}})
	assert.True(t, tr.Done())
}

func TestTracker_ApplyIsMonotonicAndIdempotent(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Register(op("op-1", 1), op("op-2", 2)))

	changed := tr.Apply([]Update{
		{OperationID: "op-1", Status: types.OperationSucceeded, ResultURL: "https://cdn/1"},
		{OperationID: "op-2", Status: types.OperationPending},
		{OperationID: "unknown", Status: types.OperationFailed},
	})
	require.Len(t, changed, 1)
	assert.Equal(t, "op-1", changed[0].OperationID)

	// 再次报告成功不会重复返回
	changed = tr.Apply([]Update{{OperationID: "op-1", Status: types.OperationSucceeded, ResultURL: "https://cdn/other"}})
	assert.Empty(t, changed)

	// 终态不可逆
	changed = tr.Apply([]Update{{OperationID: "op-1", Status: types.OperationFailed}})
	assert.Empty(t, changed)

	got, ok := tr.Get("op-1")
	require.True(t, ok)
	assert.Equal(t, types.OperationSucceeded, got.Status)
	assert.Equal(t, "https://cdn/1", got.ResultURL)
}

func TestTracker_FailPending(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Register(op("op-1", 1), op("op-2", 2), op("op-3", 3)))
	tr.Apply([]Update{{OperationID: "op-2", Status: types.OperationSucceeded, ResultURL: "u"}})

	timeout := types.NewError(types.ErrTimedOut, "timeout")
	failed := tr.FailPending(timeout)
	require.Len(t, failed, 2)
	assert.Equal(t, "op-1", failed[0].OperationID)
	assert.Equal(t, "op-3", failed[1].OperationID)
	assert.True(t, types.IsErrorCode(failed[0].Err, types.ErrTimedOut))

	assert.Empty(t, tr.FailPending(timeout))
	assert.Equal(t, 0, tr.PendingCount())

	snap := tr.Snapshot()
	assert.Equal(t, types.OperationSucceeded, snap[1].Status)
}

// 属性：任意更新序列下，每个任务最多一次进入终态，且终态不再改变
func TestProperty_TerminalAtMostOnce(t *testing.T) {
	statuses := []types.OperationStatus{types.OperationPending, types.OperationSucceeded, types.OperationFailed}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(rt, "ops")
		tr := New()
		for i := 0; i < n; i++ {
			if err := tr.Register(op(fmt.Sprintf("op-%d", i), i)); err != nil {
				rt.Fatalf("register: %v", err)
			}
		}

		terminalCount := make(map[string]int)
		final := make(map[string]types.OperationStatus)

		rounds := rapid.IntRange(1, 20).Draw(rt, "rounds")
		for r := 0; r < rounds; r++ {
			size := rapid.IntRange(0, 2*n).Draw(rt, "batch")
			updates := make([]Update, 0, size)
			for j := 0; j < size; j++ {
				idx := rapid.IntRange(0, n-1).Draw(rt, "idx")
				st := rapid.SampledFrom(statuses).Draw(rt, "status")
				updates = append(updates, Update{OperationID: fmt.Sprintf("op-%d", idx), Status: st})
			}
			for _, changed := range tr.Apply(updates) {
				terminalCount[changed.OperationID]++
				final[changed.OperationID] = changed.Status
			}
		}

		for id, c := range terminalCount {
			if c != 1 {
				rt.Fatalf("operation %s became terminal %d times", id, c)
			}
			got, _ := tr.Get(id)
			if got.Status != final[id] {
				rt.Fatalf("operation %s status changed after terminal: %s -> %s", id, final[id], got.Status)
			}
		}
		if tr.PendingCount() != n-len(terminalCount) {
			rt.Fatalf("pending count %d, want %d", tr.PendingCount(), n-len(terminalCount))
		}
	})
}
