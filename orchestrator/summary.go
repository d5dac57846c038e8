package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/account"
	"github.com/BaSui01/sceneflow/types"
)

// FailedScene is one failed entry of a Summary.
type FailedScene struct {
	SceneIndex int             `json:"scene_index"`
	Code       types.ErrorCode `json:"code"`
	Attempts   int             `json:"attempts,omitempty"`
	Reason     string          `json:"reason"`
}

// Summary is the end-of-run report.
type Summary struct {
	RunID             string                     `json:"run_id,omitempty"`
	Total             int                        `json:"total"`
	Succeeded         []int                      `json:"succeeded"`
	Failed            []FailedScene              `json:"failed,omitempty"`
	Artifacts         int                        `json:"artifacts"`
	ExhaustedAccounts []account.ExhaustedAccount `json:"exhausted_accounts,omitempty"`
	Duration          time.Duration              `json:"duration"`
}

// Summarize builds a Summary from sorted results. pool may be nil.
func Summarize(results []types.JobBatchResult, pool *account.Pool) Summary {
	s := Summary{Total: len(results), Succeeded: []int{}}
	for _, res := range results {
		if res.Err == nil {
			s.Succeeded = append(s.Succeeded, res.SceneIndex)
			s.Artifacts += len(res.ArtifactPaths)
			continue
		}
		f := FailedScene{
			SceneIndex: res.SceneIndex,
			Code:       types.CodeOf(res.Err),
			Reason:     res.Detail(),
		}
		if e, ok := types.AsError(res.Err); ok {
			f.Attempts = e.Attempts
			f.Reason = e.Message
		}
		s.Failed = append(s.Failed, f)
	}
	if pool != nil {
		s.ExhaustedAccounts = pool.Exhausted()
	}
	return s
}

// OK reports whether every scene succeeded.
func (s Summary) OK() bool {
	return len(s.Failed) == 0
}

// Log writes the summary as one structured entry.
func (s Summary) Log(logger *zap.Logger) {
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.Int("total", s.Total),
		zap.Ints("succeeded", s.Succeeded),
		zap.Int("artifacts", s.Artifacts),
		zap.Duration("duration", s.Duration),
	}
	if len(s.Failed) > 0 {
		failed := make([]string, 0, len(s.Failed))
		for _, f := range s.Failed {
			failed = append(failed, fmt.Sprintf("%s:%s", types.SceneLabel(f.SceneIndex), f.Code))
		}
		fields = append(fields, zap.Strings("failed", failed))
	}
	if len(s.ExhaustedAccounts) > 0 {
		ids := make([]string, 0, len(s.ExhaustedAccounts))
		for _, a := range s.ExhaustedAccounts {
			ids = append(ids, a.ID)
		}
		fields = append(fields, zap.Strings("exhausted_accounts", ids))
	}

	if s.OK() {
		logger.Info("run summary", fields...)
		return
	}
	logger.Warn("run summary", fields...)
}

// String renders the summary for terminal output.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenes: %d  succeeded: %d  failed: %d  artifacts: %d  duration: %s\n",
		s.Total, len(s.Succeeded), len(s.Failed), s.Artifacts, s.Duration.Round(time.Millisecond))
	for _, f := range s.Failed {
		fmt.Fprintf(&b, "  %s  %-22s attempts=%d  %s\n", types.SceneLabel(f.SceneIndex), f.Code, f.Attempts, f.Reason)
	}
	for _, a := range s.ExhaustedAccounts {
		fmt.Fprintf(&b, "  account %s (%s) exhausted: %s\n", a.ID, a.Name, a.Reason)
	}
	return b.String()
}
