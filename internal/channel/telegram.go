package channel

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTelegramBaseURL Bot API 地址前缀（/{id}/sendPhoto）
const DefaultTelegramBaseURL = "https://api.telegram.org"

// evidenceFilename 上传图片时使用的文件名
const evidenceFilename = "evidence"

// PhotoRequest Telegram 图片发送请求
type PhotoRequest struct {
	BotPath  string // bot 路径 ID，如 "bot<token>"
	ChatID   string
	Caption  string
	Image    []byte
	MimeType string
}

// Validate 在任何网络调用之前校验参数
func (r PhotoRequest) Validate() error {
	switch {
	case len(r.Image) == 0:
		return fmt.Errorf("%w: missing image", ErrInvalidRequest)
	case r.BotPath == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	case r.ChatID == "":
		return fmt.Errorf("%w: missing chat_id", ErrInvalidRequest)
	case r.Caption == "":
		return fmt.Errorf("%w: missing content", ErrInvalidRequest)
	}
	return nil
}

// TelegramClient 聊天机器人图片发送客户端
type TelegramClient struct {
	httpClient *resty.Client
	baseURL    string
	logger     *zap.Logger
}

// NewTelegramClient 创建 Telegram 客户端
func NewTelegramClient(baseURL string, timeout time.Duration, logger *zap.Logger) *TelegramClient {
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	return &TelegramClient{
		httpClient: newRestyClient(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// URLFor 根据 bot 路径构建目标地址
func (c *TelegramClient) URLFor(botPath string) string {
	return fmt.Sprintf("%s/%s/sendPhoto", c.baseURL, url.PathEscape(botPath))
}

// SendPhoto 以 multipart 形式发送证据图片
func (c *TelegramClient) SendPhoto(ctx context.Context, req PhotoRequest) (Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	target := c.URLFor(req.BotPath)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"chat_id": req.ChatID,
			"caption": req.Caption,
		}).
		SetMultipartField("photo", evidenceFilename, mimeType, bytes.NewReader(req.Image)).
		Post(target)
	if err != nil {
		c.logger.Error("Telegram call failed",
			zap.String("chat_id", req.ChatID),
			zap.Error(err),
		)
		return nil, &UpstreamError{Channel: "telegram", URL: target, Err: err}
	}

	c.logger.Info("Telegram responded",
		zap.String("chat_id", req.ChatID),
		zap.Int("status_code", resp.StatusCode()),
	)

	return parseOrPassthrough(resp.Body()), nil
}
