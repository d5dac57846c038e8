// FakeAPI 是远端生成 API 的内存模拟实现。
//
// 默认行为：提交总是成功并回显 sceneId；每个任务在 pendingPolls 次查询后成功；
// 下载返回 "video:<url>"。可通过 With* 方法注入脚本化行为。
package mocks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/BaSui01/sceneflow/remote"
	"github.com/BaSui01/sceneflow/types"
)

// SubmitCall 记录单次提交
type SubmitCall struct {
	ProjectID string
	Token     string
	Model     string
	SceneIDs  []string
	At        time.Time
}

// PollCall 记录单次状态查询
type PollCall struct {
	Token        string
	OperationIDs []string
}

type fakeOp struct {
	sceneID string
	polls   int
}

// FakeAPI implements remote.API in memory.
type FakeAPI struct {
	mu sync.Mutex

	baseURL      string
	submitDelay  time.Duration
	pendingPolls int

	submitFunc   func(call SubmitCall) error
	pollFunc     func(token string, ids []string) ([]remote.StatusResult, error)
	downloadFunc func(url, token string) ([]byte, error)

	opSeq     int
	ops       map[string]*fakeOp
	submits   []SubmitCall
	polls     []PollCall
	downloads []string
}

var _ remote.API = (*FakeAPI)(nil)

// NewFakeAPI 创建新的 FakeAPI
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		baseURL: "https://fake.local",
		ops:     make(map[string]*fakeOp),
	}
}

// WithSubmitFunc 注入提交行为；返回非 nil 错误表示拒绝
func (f *FakeAPI) WithSubmitFunc(fn func(call SubmitCall) error) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitFunc = fn
	return f
}

// WithPollFunc 替换状态查询行为
func (f *FakeAPI) WithPollFunc(fn func(token string, ids []string) ([]remote.StatusResult, error)) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollFunc = fn
	return f
}

// WithDownloadFunc 替换下载行为
func (f *FakeAPI) WithDownloadFunc(fn func(url, token string) ([]byte, error)) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadFunc = fn
	return f
}

// WithSubmitDelay 每次提交前的模拟延迟
func (f *FakeAPI) WithSubmitDelay(d time.Duration) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitDelay = d
	return f
}

// WithPendingPolls 任务在成功前保持 pending 的查询次数
func (f *FakeAPI) WithPendingPolls(n int) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingPolls = n
	return f
}

// Submit 实现 remote.API
func (f *FakeAPI) Submit(ctx context.Context, req remote.SubmitRequest) ([]remote.SubmittedOperation, error) {
	f.mu.Lock()
	delay := f.submitDelay
	submitFunc := f.submitFunc
	call := SubmitCall{
		ProjectID: req.ProjectID,
		Token:     req.Token,
		Model:     gjson.GetBytes(req.Body, "requests.0.videoModelKey").String(),
		SceneIDs:  append([]string(nil), req.SceneIDs...),
		At:        time.Now(),
	}
	f.submits = append(f.submits, call)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, types.NewError(types.ErrCancelled, "request cancelled").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}
	if submitFunc != nil {
		if err := submitFunc(call); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]remote.SubmittedOperation, 0, len(req.SceneIDs))
	for _, sid := range req.SceneIDs {
		f.opSeq++
		id := fmt.Sprintf("op-%d", f.opSeq)
		f.ops[id] = &fakeOp{sceneID: sid}
		ops = append(ops, remote.SubmittedOperation{OperationID: id, SceneID: sid})
	}
	return ops, nil
}

// PollStatus 实现 remote.API
func (f *FakeAPI) PollStatus(ctx context.Context, token string, ids []string) ([]remote.StatusResult, error) {
	f.mu.Lock()
	f.polls = append(f.polls, PollCall{Token: token, OperationIDs: append([]string(nil), ids...)})
	pollFunc := f.pollFunc
	f.mu.Unlock()

	if pollFunc != nil {
		return pollFunc(token, ids)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]remote.StatusResult, 0, len(ids))
	for _, id := range ids {
		op, ok := f.ops[id]
		if !ok {
			results = append(results, remote.StatusResult{OperationID: id, Status: types.OperationFailed, Message: "unknown operation"})
			continue
		}
		op.polls++
		if op.polls <= f.pendingPolls {
			results = append(results, remote.StatusResult{OperationID: id, Status: types.OperationPending})
			continue
		}
		results = append(results, remote.StatusResult{
			OperationID: id,
			Status:      types.OperationSucceeded,
			ResultURL:   f.baseURL + "/videos/" + id + ".mp4",
		})
	}
	return results, nil
}

// Download 实现 remote.API
func (f *FakeAPI) Download(ctx context.Context, url, token string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	downloadFunc := f.downloadFunc
	f.mu.Unlock()

	data := []byte("video:" + url)
	if downloadFunc != nil {
		var err error
		if data, err = downloadFunc(url, token); err != nil {
			return 0, err
		}
	}
	n, err := w.Write(data)
	return int64(n), err
}

// SubmitCalls 返回提交调用记录
func (f *FakeAPI) SubmitCalls() []SubmitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SubmitCall(nil), f.submits...)
}

// PollCalls 返回状态查询记录
func (f *FakeAPI) PollCalls() []PollCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PollCall(nil), f.polls...)
}

// DownloadCalls 返回下载 URL 记录
func (f *FakeAPI) DownloadCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

// TotalCalls 返回全部网络调用次数
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits) + len(f.polls) + len(f.downloads)
}

// =============================================================================
// 🔧 脚本辅助
// =============================================================================

// StatusError 构造与真实客户端一致的 HTTP 错误
func StatusError(status int, msg string) error {
	return remote.MapHTTPError(status, msg)
}

// Sequence 按调用顺序依次返回 errs 中的结果，用尽后一律成功
func Sequence(errs ...error) func(SubmitCall) error {
	var mu sync.Mutex
	i := 0
	return func(SubmitCall) error {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(errs) {
			return nil
		}
		err := errs[i]
		i++
		return err
	}
}

// =============================================================================
// 🌐 HTTP 形式的模拟服务
// =============================================================================

// NewServer exposes the fake over HTTP with the default wire shape, so that
// remote.Client can be exercised end to end. Result URLs point at the server.
func NewServer(f *FakeAPI) *httptest.Server {
	mux := http.NewServeMux()
	srv := httptest.NewUnstartedServer(mux)

	mux.HandleFunc("POST /v1/projects/{project}/video:batchGenerate", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var sceneIDs []string
		for _, id := range gjson.GetBytes(body, "requests.#.metadata.sceneId").Array() {
			sceneIDs = append(sceneIDs, id.String())
		}
		ops, err := f.Submit(r.Context(), remote.SubmitRequest{
			ProjectID: r.PathValue("project"),
			Token:     bearer(r),
			Body:      body,
			SceneIDs:  sceneIDs,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		out := []byte(`{"operations":[]}`)
		for _, op := range ops {
			item, _ := sjson.SetBytes([]byte(`{}`), "operation.name", op.OperationID)
			item, _ = sjson.SetBytes(item, "sceneId", op.SceneID)
			item, _ = sjson.SetBytes(item, "status", "MEDIA_GENERATION_STATUS_PENDING")
			out, _ = sjson.SetRawBytes(out, "operations.-1", item)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	})

	mux.HandleFunc("POST /v1/video:batchCheckStatus", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ids []string
		for _, id := range gjson.GetBytes(body, "operations.#.operation.name").Array() {
			ids = append(ids, id.String())
		}
		results, err := f.PollStatus(r.Context(), bearer(r), ids)
		if err != nil {
			writeError(w, err)
			return
		}
		out := []byte(`{"operations":[]}`)
		for _, res := range results {
			item, _ := sjson.SetBytes([]byte(`{}`), "operation.name", res.OperationID)
			item, _ = sjson.SetBytes(item, "status", wireStatus(res.Status))
			if res.ResultURL != "" {
				item, _ = sjson.SetBytes(item, "operation.metadata.video.url", res.ResultURL)
			}
			if res.Message != "" {
				item, _ = sjson.SetBytes(item, "operation.error.message", res.Message)
			}
			out, _ = sjson.SetRawBytes(out, "operations.-1", item)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	})

	mux.HandleFunc("GET /videos/", func(w http.ResponseWriter, r *http.Request) {
		url := srv.URL + r.URL.Path
		if _, err := f.Download(r.Context(), url, bearer(r), w); err != nil {
			writeError(w, err)
		}
	})

	srv.Start()
	f.mu.Lock()
	f.baseURL = srv.URL
	f.mu.Unlock()
	return srv
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func wireStatus(s types.OperationStatus) string {
	switch s {
	case types.OperationSucceeded:
		return "MEDIA_GENERATION_STATUS_SUCCESSFUL"
	case types.OperationFailed:
		return "MEDIA_GENERATION_STATUS_FAILED"
	default:
		return "MEDIA_GENERATION_STATUS_ACTIVE"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	if e, ok := types.AsError(err); ok {
		msg = e.Message
		if e.HTTPStatus != 0 {
			status = e.HTTPStatus
		}
	}
	body, _ := sjson.SetBytes([]byte(`{}`), "error.message", msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
