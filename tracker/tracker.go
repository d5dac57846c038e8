package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/sceneflow/types"
)

// ErrSealed is returned by Register after Seal.
var ErrSealed = errors.New("tracker is sealed")

// Update is one reported status change.
type Update struct {
	OperationID string
	Status      types.OperationStatus
	ResultURL   string
	Err         error
}

// Tracker is the single synchronized map of remote operations for one run.
// Submission workers only Register; status is changed through Apply by the polling loop.
type Tracker struct {
	mu     sync.Mutex
	ops    map[string]*types.Operation
	order  []string
	sealed bool
	notify chan struct{}
}

// New 创建空的任务追踪表
func New() *Tracker {
	return &Tracker{
		ops:    make(map[string]*types.Operation),
		notify: make(chan struct{}, 1),
	}
}

// Register inserts newly submitted operations as Pending.
func (t *Tracker) Register(ops ...types.Operation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return ErrSealed
	}
	for _, op := range ops {
		if _, dup := t.ops[op.OperationID]; dup {
			return fmt.Errorf("operation %s already registered", op.OperationID)
		}
	}
	for _, op := range ops {
		op.Status = types.OperationPending
		op.ResultURL = ""
		op.Err = nil
		t.ops[op.OperationID] = &op
		t.order = append(t.order, op.OperationID)
	}
	t.signal()
	return nil
}

// Seal marks the end of submission. Once sealed and drained the polling loop exits.
func (t *Tracker) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sealed = true
	t.signal()
}

// Sealed reports whether submission has finished.
func (t *Tracker) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Changed is signalled after Register and Seal.
func (t *Tracker) Changed() <-chan struct{} {
	return t.notify
}

// Done reports whether the tracker is sealed with nothing pending.
func (t *Tracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed && t.pendingLocked() == 0
}

// Apply applies updates with monotonic semantics and returns only the operations
// that became terminal in this call. Updates for unknown or already terminal
// operations are ignored, so re-polling a finished operation is a no-op.
func (t *Tracker) Apply(updates []Update) []types.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []types.Operation
	for _, u := range updates {
		op, ok := t.ops[u.OperationID]
		if !ok || op.Status.IsTerminal() || !u.Status.IsTerminal() {
			continue
		}
		op.Status = u.Status
		op.ResultURL = u.ResultURL
		op.Err = u.Err
		changed = append(changed, *op)
	}
	return changed
}

// FailPending moves every Pending operation to Failed with err and returns them.
func (t *Tracker) FailPending(err error) []types.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failed []types.Operation
	for _, id := range t.order {
		op := t.ops[id]
		if op.Status.IsTerminal() {
			continue
		}
		op.Status = types.OperationFailed
		op.Err = err
		failed = append(failed, *op)
	}
	return failed
}

// Pending returns copies of Pending operations in registration order.
func (t *Tracker) Pending() []types.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []types.Operation
	for _, id := range t.order {
		if op := t.ops[id]; !op.Status.IsTerminal() {
			out = append(out, *op)
		}
	}
	return out
}

// PendingCount returns the number of Pending operations.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked()
}

// Get returns a copy of one operation.
func (t *Tracker) Get(id string) (types.Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return types.Operation{}, false
	}
	return *op, true
}

// Snapshot returns copies of all operations in registration order.
func (t *Tracker) Snapshot() []types.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.Operation, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.ops[id])
	}
	return out
}

// Len returns the number of registered operations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

func (t *Tracker) pendingLocked() int {
	n := 0
	for _, op := range t.ops {
		if !op.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// signal 非阻塞通知，调用方持有锁
func (t *Tracker) signal() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}
