package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout 远程通道单次调用超时
const DefaultTimeout = 15 * time.Second

// ErrInvalidRequest 调用前的参数校验失败（不会发起网络请求）
var ErrInvalidRequest = errors.New("invalid channel request")

// UpstreamError 远程调用传输层失败（超时、连接错误）
type UpstreamError struct {
	Channel string
	URL     string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream call failed: %v", e.Channel, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Response 远程响应：能解析为 JSON 对象时原样返回，否则包装为 {"response": <原始文本>}
type Response map[string]any

// newRestyClient 单次调用、固定超时、不重试
func newRestyClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)
}

// parseOrPassthrough 解析上游响应；非 2xx 或非 JSON 不视为错误
func parseOrPassthrough(body []byte) Response {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{"response": string(body)}
	}
	if obj, ok := parsed.(map[string]any); ok {
		return Response(obj)
	}
	return Response{"response": parsed}
}
