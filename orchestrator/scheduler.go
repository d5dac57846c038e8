package orchestrator

import (
	"sync"

	"github.com/BaSui01/sceneflow/types"
)

// scheduler hands scenes to per-account workers.
//
// Each account owns a queue filled round-robin up front. When an account runs out of
// tokens its current and queued scenes move to the shared orphan queue, where any
// healthy worker may pick them up. Idle workers block on cond until there is work,
// or until no submission is in flight and nothing is queued anywhere.
type scheduler struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[string][]types.ScenePrompt
	orphans  []types.ScenePrompt
	healthy  map[string]bool
	queued   int
	inflight int
	stopped  bool
}

func newScheduler(accountIDs []string, scenes []types.ScenePrompt) *scheduler {
	s := &scheduler{
		queues:  make(map[string][]types.ScenePrompt, len(accountIDs)),
		healthy: make(map[string]bool, len(accountIDs)),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, id := range accountIDs {
		s.healthy[id] = true
	}
	for i, p := range scenes {
		id := accountIDs[i%len(accountIDs)]
		s.queues[id] = append(s.queues[id], p)
	}
	s.queued = len(scenes)
	return s
}

// next blocks until a scene is available for accountID. ok is false when the worker should exit.
func (s *scheduler) next(accountID string) (types.ScenePrompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.stopped || !s.healthy[accountID] {
			return types.ScenePrompt{}, false
		}
		if q := s.queues[accountID]; len(q) > 0 {
			p := q[0]
			s.queues[accountID] = q[1:]
			s.queued--
			s.inflight++
			return p, true
		}
		if len(s.orphans) > 0 {
			p := s.orphans[0]
			s.orphans = s.orphans[1:]
			s.inflight++
			return p, true
		}
		// 没有在途提交且无排队场景时，不会再产生孤儿
		if s.inflight == 0 && s.queued == 0 {
			return types.ScenePrompt{}, false
		}
		s.cond.Wait()
	}
}

// done releases the in-flight slot taken by next.
func (s *scheduler) done() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	s.cond.Broadcast()
}

// orphan retires accountID and moves current plus its queued scenes to the shared queue.
// When no healthy account remains, scheduling stops and every unsubmitted scene is returned.
func (s *scheduler) orphan(accountID string, current types.ScenePrompt) []types.ScenePrompt {
	s.mu.Lock()
	defer s.cond.Broadcast()
	defer s.mu.Unlock()

	s.inflight--
	s.healthy[accountID] = false
	q := s.queues[accountID]
	delete(s.queues, accountID)
	s.queued -= len(q)
	s.orphans = append(s.orphans, current)
	s.orphans = append(s.orphans, q...)

	for _, ok := range s.healthy {
		if ok {
			return nil
		}
	}
	s.stopped = true
	return s.drainLocked()
}

// stop ends scheduling; blocked workers return.
func (s *scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// unsubmitted removes and returns every scene that never left a queue.
func (s *scheduler) unsubmitted() []types.ScenePrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainLocked()
}

func (s *scheduler) drainLocked() []types.ScenePrompt {
	out := s.orphans
	s.orphans = nil
	for id, q := range s.queues {
		out = append(out, q...)
		delete(s.queues, id)
	}
	s.queued = 0
	return out
}
