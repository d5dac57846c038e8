package submit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/internal/retry"
	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/request"
	"github.com/BaSui01/sceneflow/types"
)

// Config 提交器配置
type Config struct {
	// Overload 过载退避策略，尝试预算为 MaxRetries+1
	Overload *retry.RetryPolicy
	// Network 网络错误/超时的有限重试策略
	Network *retry.RetryPolicy
	// RequestsPerMinute 每账号提交速率上限，0 表示不限制
	RequestsPerMinute int
	// SessionID 本次运行的会话标识，为空时自动生成
	SessionID string
}

// DefaultConfig 返回默认提交器配置
func DefaultConfig() Config {
	return Config{
		Overload: retry.OverloadRetryPolicy(),
		Network:  retry.DefaultRetryPolicy(),
	}
}

// Outcome is a successful submission: one pending Operation per copy.
type Outcome struct {
	Operations []types.Operation
	Attempts   int
}

// Submitter runs the per-scene retry state machine against one account at a time.
// It is safe for concurrent use by one worker per account.
type Submitter struct {
	api     remote.API
	pool    *account.Pool
	builder *request.Builder
	cfg     Config
	sleep   retry.Sleeper
	newID   func() string
	metrics *metrics.Collector
	logger  *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option 提交器选项
type Option func(*Submitter)

// WithSleeper 替换退避等待实现
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Submitter) { s.sleep = sleep }
}

// WithIDGenerator 替换 sceneId 生成器
func WithIDGenerator(fn func() string) Option {
	return func(s *Submitter) { s.newID = fn }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Submitter) { s.metrics = m }
}

// New 创建提交器
func New(api remote.API, pool *account.Pool, builder *request.Builder, cfg Config, logger *zap.Logger, opts ...Option) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Overload == nil {
		cfg.Overload = def.Overload
	}
	if cfg.Network == nil {
		cfg.Network = def.Network
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	s := &Submitter{
		api:      api,
		pool:     pool,
		builder:  builder,
		cfg:      cfg,
		sleep:    retry.Sleep,
		newID:    uuid.NewString,
		logger:   logger.With(zap.String("component", "submitter")),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// state is the mutable position of one scene inside the machine.
type state struct {
	accountID string
	token     account.Token
	chain     []string
	model     int
	attempts  int
	overloads int
	networks  int
	last      *types.Error
}

// Submit drives one scene to Submitted or a terminal error on the given account.
//
// The returned error is a *types.Error:
//   - ALL_TOKENS_INVALID: the account ran out of tokens; the scene may be retried elsewhere.
//   - CANCELLED: ctx ended.
//   - anything else: permanent failure of this scene, tagged with the attempt count.
//
// Recoverable events are logged once each at WARN; terminal failures are left to the caller.
func (s *Submitter) Submit(ctx context.Context, accountID string, p types.ScenePrompt) (*Outcome, error) {
	acc, ok := s.pool.Account(accountID)
	if !ok {
		return nil, fmt.Errorf("unknown account %q", accountID)
	}

	st := &state{
		accountID: accountID,
		chain:     s.builder.ModelChain(p),
	}
	if len(st.chain) == 0 {
		return nil, types.NewError(types.ErrBadRequest, "empty model chain").WithAccount(accountID)
	}

	tok, err := s.pool.NextToken(accountID)
	if err != nil {
		return nil, s.tokensExhausted(st, err)
	}
	st.token = tok

	sceneIDs := make([]string, s.builder.Copies(p))
	for i := range sceneIDs {
		sceneIDs[i] = s.newID()
	}

	log := s.logger.With(
		zap.String("scene", types.SceneLabel(p.SceneIndex)),
		zap.String("account_id", accountID),
	)

	for {
		if err := s.wait(ctx, accountID); err != nil {
			return nil, s.cancelled(st, err)
		}

		model := st.chain[st.model]
		body, err := s.builder.Build(p, model, request.Envelope{
			ProjectID: acc.ProjectID,
			SessionID: s.cfg.SessionID,
			SceneIDs:  sceneIDs,
		})
		if err != nil {
			return nil, types.NewError(types.ErrBadRequest, "build request").WithCause(err).WithAccount(accountID)
		}

		ops, err := s.api.Submit(ctx, remote.SubmitRequest{
			ProjectID: acc.ProjectID,
			Token:     st.token.Value,
			Body:      body,
			SceneIDs:  sceneIDs,
		})
		st.attempts++
		a := classify(ops, err)
		s.metrics.RecordSubmitAttempt(accountID, a.Kind.String())
		if a.Err != nil {
			st.last = a.Err
		}

		switch a.Kind {
		case KindSubmitted:
			return s.outcome(st, p, model, sceneIDs, a.Operations)

		case KindAuth:
			// 只隔离凭证，不切换模型
			if s.pool.MarkInvalid(accountID, st.token) {
				s.metrics.RecordTokenQuarantined(accountID)
				log.Warn("token rejected, quarantined",
					zap.String("token", st.token.Masked()),
					zap.Int("http_status", a.Err.HTTPStatus),
				)
			}
			next, err := s.pool.NextToken(accountID)
			if err != nil {
				s.metrics.RecordAccountExhausted(accountID)
				return nil, s.tokensExhausted(st, err)
			}
			st.token = next

		case KindBadRequest:
			if st.model+1 >= len(st.chain) {
				return nil, s.permanent(st)
			}
			st.model++
			log.Warn("request rejected, advancing model",
				zap.String("from", model),
				zap.String("to", st.chain[st.model]),
				zap.String("reason", a.Err.Message),
			)

		case KindOverload:
			st.overloads++
			if st.overloads > s.cfg.Overload.MaxRetries {
				return nil, s.permanent(st)
			}
			delay := s.cfg.Overload.Delay(st.overloads)
			s.metrics.RecordBackoff(delay)
			log.Warn("remote overloaded, backing off",
				zap.Int("http_status", a.Err.HTTPStatus),
				zap.Duration("delay", delay),
				zap.Int("overload_attempt", st.overloads),
			)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, s.cancelled(st, err)
			}
			// 过载时也轮换凭证，分散到不同的后端分片
			ring, _ := s.pool.Ring(accountID)
			next, err := ring.Rotate()
			if err != nil {
				return nil, s.tokensExhausted(st, err)
			}
			st.token = next

		case KindNetwork:
			st.networks++
			if st.networks > s.cfg.Network.MaxRetries {
				return nil, s.permanent(st)
			}
			delay := s.cfg.Network.Delay(st.networks)
			log.Warn("network error, retrying",
				zap.Error(a.Err),
				zap.Duration("delay", delay),
			)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, s.cancelled(st, err)
			}

		case KindCancelled:
			return nil, s.cancelled(st, a.Err)

		default:
			return nil, s.permanent(st)
		}
	}
}

func (s *Submitter) outcome(st *state, p types.ScenePrompt, model string, sceneIDs []string, ops []remote.SubmittedOperation) (*Outcome, error) {
	copyIndex := make(map[string]int, len(sceneIDs))
	for i, id := range sceneIDs {
		copyIndex[id] = i
	}

	out := &Outcome{Attempts: st.attempts}
	for _, op := range ops {
		out.Operations = append(out.Operations, types.Operation{
			OperationID: op.OperationID,
			SceneID:     op.SceneID,
			SceneIndex:  p.SceneIndex,
			CopyIndex:   copyIndex[op.SceneID],
			AccountID:   st.accountID,
			AuthToken:   st.token.Value,
			Model:       model,
			Status:      types.OperationPending,
		})
	}
	return out, nil
}

// permanent reports the last classified error, tagged with the attempt count.
func (s *Submitter) permanent(st *state) error {
	final := *st.last
	final.Attempts = st.attempts
	final.AccountID = st.accountID
	return &final
}

func (s *Submitter) tokensExhausted(st *state, cause error) error {
	e := types.NewError(types.ErrAllTokensInvalid, "no usable token left on account").
		WithAttempts(st.attempts).
		WithAccount(st.accountID)
	if st.last != nil {
		return e.WithCause(st.last).WithHTTPStatus(st.last.HTTPStatus)
	}
	return e.WithCause(cause)
}

func (s *Submitter) cancelled(st *state, cause error) error {
	return types.NewError(types.ErrCancelled, "submission cancelled").
		WithCause(cause).
		WithAttempts(st.attempts).
		WithAccount(st.accountID)
}

// wait applies per-account pacing.
func (s *Submitter) wait(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.RequestsPerMinute <= 0 {
		return nil
	}

	s.mu.Lock()
	lim, ok := s.limiters[accountID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.cfg.RequestsPerMinute)), 1)
		s.limiters[accountID] = lim
	}
	s.mu.Unlock()

	return lim.Wait(ctx)
}
