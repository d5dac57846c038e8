package account

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ExhaustedAccount is reported when an account leaves the active set during a run.
type ExhaustedAccount struct {
	ID     string
	Name   string
	Reason error
}

// Pool is the run-scoped set of configured accounts and their token rings.
// Construct a new Pool per run; quarantine state is never written back to the Store.
type Pool struct {
	mu        sync.RWMutex
	accounts  []*Account
	byID      map[string]*Account
	rings     map[string]*TokenRing
	exhausted map[string]error
	logger    *zap.Logger
}

// NewPool 创建账号池，账号顺序即轮询分配顺序
func NewPool(accounts []*Account, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		byID:      make(map[string]*Account, len(accounts)),
		rings:     make(map[string]*TokenRing, len(accounts)),
		exhausted: make(map[string]error),
		logger:    logger.With(zap.String("component", "account_pool")),
	}

	for _, acc := range accounts {
		if acc == nil {
			continue
		}
		if err := acc.Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.byID[acc.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q", acc.ID)
		}
		p.accounts = append(p.accounts, acc)
		p.byID[acc.ID] = acc
		p.rings[acc.ID] = NewTokenRing(acc)
	}

	return p, nil
}

// Active returns enabled, non-exhausted accounts that still hold a usable token,
// in configured order.
func (p *Pool) Active() []*Account {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := make([]*Account, 0, len(p.accounts))
	for _, acc := range p.accounts {
		if !acc.Enabled {
			continue
		}
		if _, gone := p.exhausted[acc.ID]; gone {
			continue
		}
		if p.rings[acc.ID].Exhausted() {
			continue
		}
		active = append(active, acc)
	}
	return active
}

// All returns every configured account in order.
func (p *Pool) All() []*Account {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Account, len(p.accounts))
	copy(out, p.accounts)
	return out
}

// Account looks up an account by id.
func (p *Pool) Account(id string) (*Account, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	acc, ok := p.byID[id]
	return acc, ok
}

// Ring returns the run-scoped token ring of an account.
func (p *Pool) Ring(id string) (*TokenRing, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	r, ok := p.rings[id]
	return r, ok
}

// NextToken returns the next usable token of the account or ErrAllTokensInvalid.
func (p *Pool) NextToken(id string) (Token, error) {
	ring, ok := p.Ring(id)
	if !ok {
		return Token{}, fmt.Errorf("unknown account %q", id)
	}
	return ring.Next()
}

// MarkInvalid quarantines a token. It reports whether this call performed the quarantine.
// When the last usable token goes, the account is marked exhausted.
func (p *Pool) MarkInvalid(id string, token Token) bool {
	ring, ok := p.Ring(id)
	if !ok {
		return false
	}
	changed := ring.MarkInvalid(token)
	if ring.Exhausted() {
		p.MarkExhausted(id, ErrAllTokensInvalid)
	}
	return changed
}

// MarkExhausted removes an account from the active set for the rest of the run.
// The first reason recorded wins.
func (p *Pool) MarkExhausted(id string, reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, already := p.exhausted[id]; already {
		return
	}
	p.exhausted[id] = reason
	p.logger.Warn("account removed from active pool",
		zap.String("account_id", id),
		zap.Error(reason),
	)
}

// IsExhausted reports whether the account left the active set.
func (p *Pool) IsExhausted(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.exhausted[id]
	return ok
}

// Exhausted lists accounts that left the active set, in configured order.
func (p *Pool) Exhausted() []ExhaustedAccount {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []ExhaustedAccount
	for _, acc := range p.accounts {
		if reason, ok := p.exhausted[acc.ID]; ok {
			out = append(out, ExhaustedAccount{ID: acc.ID, Name: acc.Name(), Reason: reason})
		}
	}
	return out
}
