// Package ctxkeys carries run-scoped identifiers through context so that
// lower layers (remote client, downloads) can tag their logs without extra parameters.
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey      contextKey = "run_id"
	accountIDKey  contextKey = "account_id"
	sceneIndexKey contextKey = "scene_index"
)

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAccountID 设置当前账号
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountID 获取当前账号
func AccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithSceneIndex 设置当前场景编号
func WithSceneIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, sceneIndexKey, index)
}

// SceneIndex 获取当前场景编号
func SceneIndex(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(sceneIndexKey).(int)
	return v, ok
}

// Fields returns zap fields for every identifier present in ctx.
func Fields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if v, ok := RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", v))
	}
	if v, ok := AccountID(ctx); ok {
		fields = append(fields, zap.String("account_id", v))
	}
	if v, ok := SceneIndex(ctx); ok {
		fields = append(fields, zap.Int("scene", v))
	}
	return fields
}
