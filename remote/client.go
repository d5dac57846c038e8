package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/BaSui01/sceneflow/internal/ctxkeys"
	"github.com/BaSui01/sceneflow/internal/metrics"
	"github.com/BaSui01/sceneflow/internal/tlsutil"
	"github.com/BaSui01/sceneflow/types"
)

// maxConnsPerHost covers per-account submitters plus parallel downloads.
const maxConnsPerHost = 16

// Endpoint labels used for logs and metrics.
const (
	EndpointSubmit   = "submit"
	EndpointStatus   = "status"
	EndpointDownload = "download"
)

// SubmitRequest is one batch submission for a single scene.
type SubmitRequest struct {
	ProjectID string
	Token     string
	Body      []byte
	// SceneIDs are the ids embedded in Body, in copy order.
	SceneIDs []string
}

// SubmittedOperation pairs a remote operation with the scene id it was created for.
type SubmittedOperation struct {
	OperationID string
	SceneID     string
}

// StatusResult is the reported state of one operation.
type StatusResult struct {
	OperationID string
	Status      types.OperationStatus
	RawStatus   string
	ResultURL   string
	Message     string
}

// API is the remote generation service as seen by the orchestrator.
type API interface {
	Submit(ctx context.Context, req SubmitRequest) ([]SubmittedOperation, error)
	PollStatus(ctx context.Context, token string, operationIDs []string) ([]StatusResult, error)
	Download(ctx context.Context, resultURL, token string, w io.Writer) (int64, error)
}

// Client is the HTTP implementation of API. Every call carries its own timeout
// derived from the caller's context.
type Client struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient 创建远端 API 客户端
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg.withDefaults(),
		http:   tlsutil.SecureHTTPClient(maxConnsPerHost),
		logger: logger.With(zap.String("component", "remote_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit 实现 API.Submit
func (c *Client) Submit(ctx context.Context, req SubmitRequest) ([]SubmittedOperation, error) {
	path := strings.ReplaceAll(c.cfg.SubmitPath, "{projectId}", url.PathEscape(req.ProjectID))
	data, err := c.postJSON(ctx, EndpointSubmit, c.cfg.BaseURL+path, req.Token, req.Body)
	if err != nil {
		return nil, err
	}
	return c.parseSubmit(data, req.SceneIDs)
}

func (c *Client) parseSubmit(data []byte, sceneIDs []string) ([]SubmittedOperation, error) {
	rp := c.cfg.Response
	items := gjson.GetBytes(data, rp.Operations).Array()
	if len(items) == 0 {
		return nil, types.NewError(types.ErrBadResponse, "submit response carries no operations")
	}

	wanted := make(map[string]bool, len(sceneIDs))
	for _, id := range sceneIDs {
		wanted[id] = true
	}

	ops := make([]SubmittedOperation, 0, len(items))
	seen := make(map[string]bool, len(items))
	echoed := true
	for _, item := range items {
		name := item.Get(rp.OperationName).String()
		if name == "" {
			return nil, types.NewError(types.ErrBadResponse, "submit response operation without name")
		}
		sid := item.Get(rp.SceneID).String()
		if sid == "" {
			echoed = false
		} else if !wanted[sid] {
			return nil, types.NewError(types.ErrBadResponse, fmt.Sprintf("submit response references unknown scene id %q", sid))
		} else if seen[sid] {
			return nil, types.NewError(types.ErrBadResponse, fmt.Sprintf("submit response repeats scene id %q", sid))
		}
		seen[sid] = true
		ops = append(ops, SubmittedOperation{OperationID: name, SceneID: sid})
	}

	if echoed {
		return ops, nil
	}
	// 未回显 sceneId 时只有数量一致才能按位置对应
	if len(ops) != len(sceneIDs) {
		return nil, types.NewError(types.ErrBadResponse,
			fmt.Sprintf("submit response has %d operations for %d scene ids and no scene id echo", len(ops), len(sceneIDs)))
	}
	for i := range ops {
		ops[i].SceneID = sceneIDs[i]
	}
	return ops, nil
}

// PollStatus 实现 API.PollStatus
func (c *Client) PollStatus(ctx context.Context, token string, operationIDs []string) ([]StatusResult, error) {
	body := []byte(`{"operations":[]}`)
	var err error
	for _, id := range operationIDs {
		if body, err = sjson.SetBytes(body, "operations.-1.operation.name", id); err != nil {
			return nil, fmt.Errorf("build status request: %w", err)
		}
	}

	data, err := c.postJSON(ctx, EndpointStatus, c.cfg.BaseURL+c.cfg.StatusPath, token, body)
	if err != nil {
		return nil, err
	}

	rp := c.cfg.Response
	items := gjson.GetBytes(data, rp.Operations).Array()
	results := make([]StatusResult, 0, len(items))
	for _, item := range items {
		raw := item.Get(rp.Status).String()
		res := StatusResult{
			OperationID: item.Get(rp.OperationName).String(),
			RawStatus:   raw,
			Status:      c.classifyStatus(raw),
			ResultURL:   item.Get(rp.ResultURL).String(),
			Message:     item.Get(rp.ErrorMessage).String(),
		}
		if res.OperationID == "" {
			continue
		}
		// 成功但没有下载地址视为失败
		if res.Status == types.OperationSucceeded && res.ResultURL == "" {
			res.Status = types.OperationFailed
			res.Message = "operation succeeded without a result url"
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Client) classifyStatus(raw string) types.OperationStatus {
	rp := c.cfg.Response
	switch {
	case raw == "":
		return types.OperationPending
	case rp.SuccessSuffix != "" && strings.HasSuffix(raw, rp.SuccessSuffix):
		return types.OperationSucceeded
	case rp.FailureSuffix != "" && strings.HasSuffix(raw, rp.FailureSuffix):
		return types.OperationFailed
	default:
		return types.OperationPending
	}
}

// Download 实现 API.Download，将产物写入 w
func (c *Client) Download(ctx context.Context, resultURL, token string, w io.Writer) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, resultURL, nil)
	if err != nil {
		return 0, types.NewError(types.ErrDownloadFailed, "failed to create request").WithCause(err)
	}
	c.setHeaders(httpReq, token)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordRemoteRequest(EndpointDownload, 0, time.Since(start))
		return 0, mapTransportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordRemoteRequest(EndpointDownload, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		msg := ReadErrorMessage(resp.Body)
		return 0, MapHTTPError(resp.StatusCode, msg)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, mapTransportError(ctx, callCtx, err)
	}
	return n, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint, target, token string, body []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrBadRequest, "failed to create request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq, token)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordRemoteRequest(endpoint, 0, time.Since(start))
		return nil, mapTransportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordRemoteRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		msg := ReadErrorMessage(resp.Body)
		c.logger.Debug("remote call rejected", append(ctxkeys.Fields(ctx),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)...)
		return nil, MapHTTPError(resp.StatusCode, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapTransportError(ctx, callCtx, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, types.NewError(types.ErrBadResponse, "response is not valid JSON").WithHTTPStatus(resp.StatusCode)
	}
	return data, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
}
