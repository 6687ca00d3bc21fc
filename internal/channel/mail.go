package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultMailBaseURL Apps Script Web App 地址前缀（/{id}/exec）
const DefaultMailBaseURL = "https://script.google.com/macros/s"

// MailClient Webhook 中继客户端（通过 Apps Script 发送邮件）
type MailClient struct {
	httpClient *resty.Client
	baseURL    string
	logger     *zap.Logger
}

// NewMailClient 创建邮件中继客户端
func NewMailClient(baseURL string, timeout time.Duration, logger *zap.Logger) *MailClient {
	if baseURL == "" {
		baseURL = DefaultMailBaseURL
	}
	client := newRestyClient(timeout).
		SetHeader("Content-Type", "application/json")

	return &MailClient{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// URLFor 根据脚本 ID 构建目标地址
func (c *MailClient) URLFor(scriptID string) string {
	return fmt.Sprintf("%s/%s/exec", c.baseURL, url.PathEscape(scriptID))
}

// Send 将 data 作为 JSON 发送到 id 对应的 webhook
func (c *MailClient) Send(ctx context.Context, scriptID string, data json.RawMessage) (Response, error) {
	if scriptID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	if len(data) == 0 || !json.Valid(data) {
		return nil, fmt.Errorf("%w: data must be valid JSON", ErrInvalidRequest)
	}

	target := c.URLFor(scriptID)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody([]byte(data)).
		Post(target)
	if err != nil {
		c.logger.Error("Mail relay call failed",
			zap.String("script_id", scriptID),
			zap.Error(err),
		)
		return nil, &UpstreamError{Channel: "mail", URL: target, Err: err}
	}

	c.logger.Info("Mail relay responded",
		zap.String("script_id", scriptID),
		zap.Int("status_code", resp.StatusCode()),
	)

	return parseOrPassthrough(resp.Body()), nil
}
