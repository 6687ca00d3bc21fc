package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrSourceClosed 画面源已关闭（监控循环正常结束）
	ErrSourceClosed = errors.New("frame source closed")
	// ErrBadFrame 单帧内容无法解析，跳过该帧
	ErrBadFrame = errors.New("bad frame")
)

// Frame 一帧画面（只解析宽高，不解码像素）
type Frame struct {
	Image      []byte
	MimeType   string
	Width      int
	Height     int
	CapturedAt time.Time
}

// FrameSource 画面来源
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// SnapshotSource 通过 HTTP 快照地址逐帧拉取画面
type SnapshotSource struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewSnapshotSource 创建快照画面源
func NewSnapshotSource(url string, timeout time.Duration, logger *zap.Logger) *SnapshotSource {
	client := resty.New().SetRetryCount(0)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &SnapshotSource{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Next 拉取下一帧
func (s *SnapshotSource) Next(ctx context.Context) (Frame, error) {
	var frame Frame

	resp, err := s.httpClient.R().SetContext(ctx).Get(s.url)
	if err != nil {
		if ctx.Err() != nil {
			return frame, ErrSourceClosed
		}
		return frame, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone {
		return frame, ErrSourceClosed
	}
	if resp.IsError() {
		return frame, fmt.Errorf("snapshot returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return frame, fmt.Errorf("%w: failed to read frame dimensions: %v", ErrBadFrame, err)
	}

	frame = Frame{
		Image:      body,
		MimeType:   "image/" + format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		CapturedAt: time.Now(),
	}
	return frame, nil
}
