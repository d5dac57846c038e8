package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/internal/circuitbreaker"
	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/types"
)

// LoopConfig 轮询循环配置
type LoopConfig struct {
	Interval      time.Duration
	BatchSize     int
	GlobalTimeout time.Duration
	Breaker       *circuitbreaker.Config
}

// DefaultLoopConfig 返回默认轮询配置
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Interval:      5 * time.Second,
		BatchSize:     16,
		GlobalTimeout: 30 * time.Minute,
		Breaker: &circuitbreaker.Config{
			Threshold:        3,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

// TerminalHandler receives each operation exactly once when it becomes terminal.
// It runs on the loop goroutine and must not block.
type TerminalHandler func(op types.Operation)

// Loop is the single polling loop of a run. It is the only caller of Tracker.Apply.
type Loop struct {
	tracker  *Tracker
	api      remote.API
	pool     *account.Pool
	cfg      LoopConfig
	handler  TerminalHandler
	breakers *circuitbreaker.Registry
	metrics  *metrics.Collector
	logger   *zap.Logger
	timedOut atomic.Bool
}

// LoopOption 轮询循环选项
type LoopOption func(*Loop)

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop 创建轮询循环
func NewLoop(tr *Tracker, api remote.API, pool *account.Pool, cfg LoopConfig, handler TerminalHandler, logger *zap.Logger, opts ...LoopOption) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultLoopConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = def.GlobalTimeout
	}
	if cfg.Breaker == nil {
		cfg.Breaker = def.Breaker
	}
	if handler == nil {
		handler = func(types.Operation) {}
	}

	l := &Loop{
		tracker: tr,
		api:     api,
		pool:    pool,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("component", "polling_loop")),
	}
	for _, opt := range opts {
		opt(l)
	}

	bc := *cfg.Breaker
	bc.OnStateChange = func(name string, from, to circuitbreaker.State) {
		l.metrics.RecordBreakerState(name, int(to))
		l.logger.Warn("status breaker state changed",
			zap.String("account_id", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	l.breakers = circuitbreaker.NewRegistry(&bc, l.logger)
	return l
}

// Run polls until the tracker is sealed and drained, the global timeout elapses,
// or ctx ends. On timeout remaining operations fail with TIMED_OUT and Run returns nil;
// on cancel they fail with CANCELLED and Run returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	deadline := time.NewTimer(l.cfg.GlobalTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		if l.tracker.Done() {
			l.logger.Debug("polling finished")
			return nil
		}

		select {
		case <-ctx.Done():
			l.failRemaining(types.NewError(types.ErrCancelled, "run cancelled while polling").WithCause(ctx.Err()))
			return ctx.Err()

		case <-deadline.C:
			l.timedOut.Store(true)
			n := l.failRemaining(types.NewError(types.ErrTimedOut, "global timeout elapsed while pending"))
			l.logger.Error("global polling timeout elapsed",
				zap.Duration("timeout", l.cfg.GlobalTimeout),
				zap.Int("timed_out", n),
			)
			return nil

		case <-l.tracker.Changed():

		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// TimedOut reports whether Run ended because the global timeout elapsed.
func (l *Loop) TimedOut() bool {
	return l.timedOut.Load()
}

// tick issues one status call per account per batch, concurrently across accounts,
// then applies every result on the loop goroutine.
func (l *Loop) tick(ctx context.Context) {
	pending := l.tracker.Pending()
	if len(pending) == 0 {
		return
	}

	var accounts []string
	byAccount := make(map[string][]types.Operation)
	for _, op := range pending {
		if _, ok := byAccount[op.AccountID]; !ok {
			accounts = append(accounts, op.AccountID)
		}
		byAccount[op.AccountID] = append(byAccount[op.AccountID], op)
	}

	var (
		mu      sync.Mutex
		updates []Update
		g       errgroup.Group
	)
	for _, accountID := range accounts {
		ops := byAccount[accountID]
		g.Go(func() error {
			got := l.pollAccount(ctx, accountID, ops)
			mu.Lock()
			updates = append(updates, got...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, op := range l.tracker.Apply(updates) {
		l.dispatch(op)
	}
	l.metrics.SetOperationsPending(l.tracker.PendingCount())
}

func (l *Loop) pollAccount(ctx context.Context, accountID string, ops []types.Operation) []Update {
	breaker := l.breakers.Get(accountID)
	var updates []Update

	for start := 0; start < len(ops); start += l.cfg.BatchSize {
		end := min(start+l.cfg.BatchSize, len(ops))
		batch := ops[start:end]

		ids := make([]string, len(batch))
		for i, op := range batch {
			ids[i] = op.OperationID
		}
		token := l.pollToken(accountID, batch[0])

		var results []remote.StatusResult
		err := breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			results, err = l.api.PollStatus(ctx, token, ids)
			return err
		})
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
				l.logger.Debug("status breaker open, skipping account", zap.String("account_id", accountID))
				return updates
			}
			if ctx.Err() != nil {
				return updates
			}
			l.logger.Warn("status check failed",
				zap.String("account_id", accountID),
				zap.Int("operations", len(ids)),
				zap.Error(err),
			)
			continue
		}

		for _, res := range results {
			u := Update{OperationID: res.OperationID, Status: res.Status, ResultURL: res.ResultURL}
			if res.Status == types.OperationFailed {
				msg := res.Message
				if msg == "" {
					msg = "remote reported failure: " + res.RawStatus
				}
				u.Err = types.NewError(types.ErrGenerationFailed, msg).WithAccount(accountID)
			}
			updates = append(updates, u)
		}
	}
	return updates
}

// pollToken prefers the owner's current usable token and falls back to the
// token the operation was submitted with.
func (l *Loop) pollToken(accountID string, op types.Operation) string {
	if l.pool != nil {
		if tok, err := l.pool.NextToken(accountID); err == nil {
			return tok.Value
		}
	}
	return op.AuthToken
}

func (l *Loop) failRemaining(err error) int {
	failed := l.tracker.FailPending(err)
	for _, op := range failed {
		l.dispatch(op)
	}
	l.metrics.SetOperationsPending(0)
	return len(failed)
}

func (l *Loop) dispatch(op types.Operation) {
	l.metrics.RecordOperationTerminal(string(op.Status))
	l.handler(op)
}
