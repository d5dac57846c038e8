package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/sceneflow/types"
)

const maxErrorBody = 4 << 10

// MapHTTPError 将远端 HTTP 状态码映射为提交失败类型
//
//	401, 403                      -> AUTHENTICATION
//	408, 504                      -> TIMEOUT (retryable)
//	429, 500, 502, 503, other 5xx -> OVERLOADED (retryable)
//	400, other 4xx                -> BAD_REQUEST
func MapHTTPError(status int, msg string) *types.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrTimeout, msg).WithHTTPStatus(status).WithRetryable(true)
	case status == http.StatusTooManyRequests || status >= 500:
		return types.NewError(types.ErrOverloaded, msg).WithHTTPStatus(status).WithRetryable(true)
	case status >= 400:
		return types.NewError(types.ErrBadRequest, msg).WithHTTPStatus(status)
	default:
		return types.NewError(types.ErrBadResponse, msg).WithHTTPStatus(status)
	}
}

// ReadErrorMessage 读取响应体中的错误消息，优先使用 error.message
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() && msg.String() != "" {
		if status := gjson.GetBytes(data, "error.status"); status.Exists() {
			return msg.String() + " (status: " + status.String() + ")"
		}
		return msg.String()
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "empty response body"
	}
	return text
}

// mapTransportError classifies an error returned by http.Client.Do.
// callCtx is the per-call context; parent is the caller's context.
func mapTransportError(parent, callCtx context.Context, err error) *types.Error {
	switch {
	case parent.Err() != nil:
		return types.NewError(types.ErrCancelled, "request cancelled").WithCause(err)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded), isTimeout(err):
		return types.NewError(types.ErrTimeout, "request timed out").WithCause(err).WithRetryable(true)
	default:
		return types.NewError(types.ErrNetwork, "transport error").WithCause(err).WithRetryable(true)
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
