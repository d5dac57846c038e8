package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/types"
)

var errUnavailable = types.NewError(types.ErrOverloaded, "status endpoint unavailable")

func failing(ctx context.Context) error { return errUnavailable }
func ok(ctx context.Context) error      { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	b := newBreaker("acc", &Config{Threshold: 0, ResetTimeout: 0, HalfOpenMaxCalls: -1}, nil)
	assert.Equal(t, 5, b.config.Threshold)
	assert.Equal(t, 60*time.Second, b.config.ResetTimeout)
	assert.Equal(t, 1, b.config.HalfOpenMaxCalls)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker("acc", &Config{Threshold: 3, ResetTimeout: time.Minute}, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Call(ctx, failing), errUnavailable)
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke fn")
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b := newBreaker("acc", &Config{Threshold: 2}, zap.NewNop())
	authErr := types.NewError(types.ErrAuthentication, "token rejected")

	for i := 0; i < 5; i++ {
		_ = b.Call(context.Background(), func(ctx context.Context) error { return authErr })
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	b := newBreaker("acc", &Config{Threshold: 1, ResetTimeout: time.Second}, zap.NewNop())
	b.now = func() time.Time { return now }

	require.Error(t, b.Call(context.Background(), failing))
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, b.Call(context.Background(), ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := newBreaker("acc", &Config{Threshold: 1, ResetTimeout: time.Second}, zap.NewNop())
	b.now = func() time.Time { return now }

	require.Error(t, b.Call(context.Background(), failing))
	now = now.Add(2 * time.Second)
	require.Error(t, b.Call(context.Background(), failing))
	assert.Equal(t, StateOpen, b.State())

	assert.ErrorIs(t, b.Call(context.Background(), ok), ErrCircuitOpen)
}

func TestBreaker_ResetAndStateChangeCallback(t *testing.T) {
	changes := make(chan State, 4)
	b := NewCircuitBreaker("acc", &Config{
		Threshold: 1,
		OnStateChange: func(name string, from, to State) {
			changes <- to
		},
	}, zap.NewNop())

	_ = b.Call(context.Background(), failing)
	b.Reset()
	assert.Equal(t, StateClosed, b.State())

	got := map[State]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-changes:
			got[s] = true
		case <-time.After(time.Second):
			t.Fatal("state change callback not invoked")
		}
	}
	assert.True(t, got[StateOpen])
	assert.True(t, got[StateClosed])
}

func TestRegistry_IsolatesAccounts(t *testing.T) {
	r := NewRegistry(&Config{Threshold: 1}, zap.NewNop())

	_ = r.Get("acc-a").Call(context.Background(), failing)
	assert.Equal(t, StateOpen, r.Get("acc-a").State())
	assert.Equal(t, StateClosed, r.Get("acc-b").State())
	assert.Same(t, r.Get("acc-a"), r.Get("acc-a"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Open", StateOpen.String())
	assert.Equal(t, "HalfOpen", StateHalfOpen.String())
	assert.Equal(t, "Unknown", State(42).String())
	assert.False(t, isClientError(errors.New("boom")))
}
