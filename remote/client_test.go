package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/sceneflow/internal/ctxkeys"
	"github.com/BaSui01/sceneflow/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, RequestTimeout: 2 * time.Second}, zaptest.NewLogger(t))
}

func TestMapHTTPError(t *testing.T) {
	cases := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{401, types.ErrAuthentication, false},
		{403, types.ErrAuthentication, false},
		{400, types.ErrBadRequest, false},
		{404, types.ErrBadRequest, false},
		{408, types.ErrTimeout, true},
		{429, types.ErrOverloaded, true},
		{500, types.ErrOverloaded, true},
		{502, types.ErrOverloaded, true},
		{503, types.ErrOverloaded, true},
		{504, types.ErrTimeout, true},
	}
	for _, tc := range cases {
		err := MapHTTPError(tc.status, "msg")
		assert.Equal(t, tc.code, err.Code, "status %d", tc.status)
		assert.Equal(t, tc.retryable, err.Retryable, "status %d", tc.status)
		assert.Equal(t, tc.status, err.HTTPStatus)
	}
}

func TestReadErrorMessage(t *testing.T) {
	msg := ReadErrorMessage(strings.NewReader(`{"error":{"message":"Invalid JSON payload","status":"INVALID_ARGUMENT"}}`))
	assert.Equal(t, "Invalid JSON payload (status: INVALID_ARGUMENT)", msg)

	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader(" plain text\n")))
	assert.Equal(t, "empty response body", ReadErrorMessage(strings.NewReader("")))
}

func TestClient_Submit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/proj-1/video:batchGenerate", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "s-1", gjson.GetBytes(body, "requests.0.metadata.sceneId").String())

		_, _ = io.WriteString(w, `{"operations":[
			{"operation":{"name":"op-b"},"sceneId":"s-2","status":"MEDIA_GENERATION_STATUS_PENDING"},
			{"operation":{"name":"op-a"},"sceneId":"s-1","status":"MEDIA_GENERATION_STATUS_PENDING"}
		]}`)
	})

	ops, err := client.Submit(context.Background(), SubmitRequest{
		ProjectID: "proj-1",
		Token:     "tok-1",
		Body:      []byte(`{"requests":[{"metadata":{"sceneId":"s-1"}},{"metadata":{"sceneId":"s-2"}}]}`),
		SceneIDs:  []string{"s-1", "s-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []SubmittedOperation{
		{OperationID: "op-b", SceneID: "s-2"},
		{OperationID: "op-a", SceneID: "s-1"},
	}, ops)
}

func TestClient_SubmitPositionalFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"operations":[{"operation":{"name":"op-1"}},{"operation":{"name":"op-2"}}]}`)
	})

	ops, err := client.Submit(context.Background(), SubmitRequest{ProjectID: "p", SceneIDs: []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, "x", ops[0].SceneID)
	assert.Equal(t, "y", ops[1].SceneID)
}

func TestClient_SubmitBadResponses(t *testing.T) {
	bodies := map[string]string{
		"no operations":  `{"operations":[]}`,
		"missing name":   `{"operations":[{"sceneId":"x"}]}`,
		"unknown scene":  `{"operations":[{"operation":{"name":"op"},"sceneId":"other"}]}`,
		"count mismatch": `{"operations":[{"operation":{"name":"op"}}]}`,
		"repeated scene": `{"operations":[{"operation":{"name":"op-1"},"sceneId":"x"},{"operation":{"name":"op-2"},"sceneId":"x"}]}`,
		"not json":       `<html>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := client.Submit(context.Background(), SubmitRequest{ProjectID: "p", SceneIDs: []string{"x", "y"}})
			assert.True(t, types.IsErrorCode(err, types.ErrBadResponse), "got %v", err)
		})
	}
}

func TestClient_SubmitStatusMapping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"backend busy"}}`)
	})

	_, err := client.Submit(context.Background(), SubmitRequest{ProjectID: "p", SceneIDs: []string{"x"}})
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrOverloaded, e.Code)
	assert.Equal(t, 503, e.HTTPStatus)
	assert.Equal(t, "backend busy", e.Message)
}

func TestClient_PollStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/video:batchCheckStatus", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		names := gjson.GetBytes(body, "operations.#.operation.name").Array()
		assert.Len(t, names, 4)

		_, _ = io.WriteString(w, `{"operations":[
			{"operation":{"name":"op-1","metadata":{"video":{"url":"https://cdn/1.mp4"}}},"status":"MEDIA_GENERATION_STATUS_SUCCESSFUL"},
			{"operation":{"name":"op-2","error":{"message":"policy"}},"status":"MEDIA_GENERATION_STATUS_FAILED"},
			{"operation":{"name":"op-3"},"status":"MEDIA_GENERATION_STATUS_ACTIVE"},
			{"operation":{"name":"op-4"},"status":"MEDIA_GENERATION_STATUS_SUCCESSFUL"}
		]}`)
	})

	results, err := client.PollStatus(context.Background(), "tok", []string{"op-1", "op-2", "op-3", "op-4"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, types.OperationSucceeded, results[0].Status)
	assert.Equal(t, "https://cdn/1.mp4", results[0].ResultURL)
	assert.Equal(t, types.OperationFailed, results[1].Status)
	assert.Equal(t, "policy", results[1].Message)
	assert.Equal(t, types.OperationPending, results[2].Status)
	assert.Equal(t, types.OperationFailed, results[3].Status, "success without url")
}

func TestClient_Download(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "video-bytes")
	})

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), client.cfg.BaseURL+"/file.mp4", "tok", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "video-bytes", buf.String())

	_, err = client.Download(context.Background(), client.cfg.BaseURL+"/file.mp4", "bad", io.Discard)
	assert.True(t, types.IsErrorCode(err, types.ErrAuthentication))
}

func TestClient_TransportErrors(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond}, nil)
	_, err := client.PollStatus(context.Background(), "tok", []string{"op"})
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout), "got %v", err)
	assert.True(t, types.IsRetryable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.PollStatus(ctx, "tok", []string{"op"})
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled), "got %v", err)

	closed := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err = closed.Submit(context.Background(), SubmitRequest{ProjectID: "p"})
	assert.True(t, types.IsErrorCode(err, types.ErrNetwork), "got %v", err)
	var e *types.Error
	assert.True(t, errors.As(err, &e))
}

func TestClient_RejectionLogCarriesRunContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: 2 * time.Second}, zap.New(core))

	ctx := ctxkeys.WithSceneIndex(ctxkeys.WithAccountID(ctxkeys.WithRunID(context.Background(), "run-9"), "acc-a"), 4)
	_, err := c.Submit(ctx, SubmitRequest{ProjectID: "p", Token: "t", Body: []byte(`{}`), SceneIDs: []string{"s"}})
	require.Error(t, err)

	entries := logs.FilterMessage("remote call rejected").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "run-9", fields["run_id"])
	assert.Equal(t, "acc-a", fields["account_id"])
	assert.EqualValues(t, 4, fields["scene"])
	assert.EqualValues(t, 400, fields["status"])
}
