package account

import (
	"sync"
)

// TokenRing is the run-scoped, ordered view of one account's credentials.
// Quarantined tokens are never handed out again for the lifetime of the ring.
// One ring belongs to exactly one orchestrator run; independent runs never share state.
type TokenRing struct {
	accountID string

	mu      sync.Mutex
	tokens  []Token
	current int
}

// NewTokenRing builds a ring from a copy of the account's tokens.
// Tokens already flagged invalid in the source stay quarantined.
func NewTokenRing(acc *Account) *TokenRing {
	tokens := make([]Token, len(acc.Tokens))
	copy(tokens, acc.Tokens)
	return &TokenRing{
		accountID: acc.ID,
		tokens:    tokens,
	}
}

// AccountID returns the owning account id.
func (r *TokenRing) AccountID() string {
	return r.accountID
}

// Next returns the current usable token: the token at the cursor, or the first usable
// token after it in order. Selection is deterministic.
func (r *TokenRing) Next() (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.seekLocked(r.current)
	if !ok {
		return Token{}, ErrAllTokensInvalid
	}
	r.current = idx
	return r.tokens[idx], nil
}

// Rotate moves the cursor to the next usable token after the current one, wrapping around.
// With a single usable token it returns that token again.
func (r *TokenRing) Rotate() (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.tokens) == 0 {
		return Token{}, ErrAllTokensInvalid
	}
	idx, ok := r.seekLocked((r.current + 1) % len(r.tokens))
	if !ok {
		return Token{}, ErrAllTokensInvalid
	}
	r.current = idx
	return r.tokens[idx], nil
}

// MarkInvalid quarantines the token with the given value. It reports whether the token
// was usable before the call, so callers can emit exactly one diagnostic per quarantine.
func (r *TokenRing) MarkInvalid(token Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for i := range r.tokens {
		if r.tokens[i].Value == token.Value && !r.tokens[i].Invalid {
			r.tokens[i].Invalid = true
			changed = true
		}
	}
	return changed
}

// Usable returns the number of tokens not yet quarantined.
func (r *TokenRing) Usable() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tokens {
		if !t.Invalid {
			n++
		}
	}
	return n
}

// Exhausted reports whether every token has been quarantined.
func (r *TokenRing) Exhausted() bool {
	return r.Usable() == 0
}

// seekLocked finds the first usable token starting at from, wrapping once around the ring.
func (r *TokenRing) seekLocked(from int) (int, bool) {
	n := len(r.tokens)
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if !r.tokens[idx].Invalid {
			return idx, true
		}
	}
	return 0, false
}
