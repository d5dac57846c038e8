// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	pool := testutil.NewPool(t, fixtures.Account("a", "a-1"))
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/sceneflow/account"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔑 账号辅助
// =============================================================================

// NewPool builds an account pool and fails the test on invalid accounts.
func NewPool(t *testing.T, accounts ...*account.Account) *account.Pool {
	t.Helper()
	pool, err := account.NewPool(accounts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to build account pool: %v", err)
	}
	return pool
}

type accountsFile struct {
	Accounts []accountEntry `yaml:"accounts"`
}

type accountEntry struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name,omitempty"`
	ProjectID   string   `yaml:"project_id"`
	Enabled     bool     `yaml:"enabled"`
	Tokens      []string `yaml:"tokens"`
}

// WriteAccountsFile writes accounts in the FileStore format and returns the path.
func WriteAccountsFile(t *testing.T, dir string, accounts ...*account.Account) string {
	t.Helper()

	doc := accountsFile{Accounts: make([]accountEntry, 0, len(accounts))}
	for _, acc := range accounts {
		entry := accountEntry{
			ID:          acc.ID,
			DisplayName: acc.DisplayName,
			ProjectID:   acc.ProjectID,
			Enabled:     acc.Enabled,
		}
		for _, tok := range acc.Tokens {
			entry.Tokens = append(entry.Tokens, tok.Value)
		}
		doc.Accounts = append(doc.Accounts, entry)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal accounts: %v", err)
	}
	path := filepath.Join(dir, "accounts.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write accounts file: %v", err)
	}
	return path
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// AssertFileContains 断言文件存在且包含子串
func AssertFileContains(t *testing.T, path, substr string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Errorf("failed to read %s: %v", path, err)
		return
	}
	if !strings.Contains(string(data), substr) {
		t.Errorf("expected %s to contain %q", path, substr)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
