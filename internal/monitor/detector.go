package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrDetection 检测服务返回失败
var ErrDetection = errors.New("detection failed")

// Detector 姿态检测服务
type Detector interface {
	DetectPose(ctx context.Context, image []byte, mimeType string, normalized bool) (models.FrameDetection, error)
}

// detectorEnvelope 检测服务响应
type detectorEnvelope struct {
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Detections json.RawMessage `json:"detections"`
}

// DetectorClient 外部姿态检测服务 HTTP 客户端
// POST {base}/vision/pose, POST {base}/vision/segment
type DetectorClient struct {
	httpClient *resty.Client
	baseURL    string
	logger     *zap.Logger
}

// NewDetectorClient 创建检测服务客户端；timeout 为 0 表示不设超时
func NewDetectorClient(baseURL string, timeout time.Duration, logger *zap.Logger) *DetectorClient {
	client := resty.New().SetRetryCount(0)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &DetectorClient{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// DetectPose 检测一帧中的人体姿态
func (c *DetectorClient) DetectPose(ctx context.Context, image []byte, mimeType string, normalized bool) (models.FrameDetection, error) {
	var detection models.FrameDetection

	raw, err := c.post(ctx, "/vision/pose", image, mimeType, map[string]string{
		"normalized": strconv.FormatBool(normalized),
	})
	if err != nil {
		return detection, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return detection, nil
	}
	if err := json.Unmarshal(raw, &detection.Subjects); err != nil {
		return detection, fmt.Errorf("%w: invalid detections: %v", ErrDetection, err)
	}
	return detection, nil
}

// SegmentTouch 以单个触点分割图像，原样返回检测结果
func (c *DetectorClient) SegmentTouch(ctx context.Context, image []byte, mimeType string, x, y float64, normalized bool) (json.RawMessage, error) {
	return c.post(ctx, "/vision/segment", image, mimeType, map[string]string{
		"x":          strconv.FormatFloat(x, 'f', -1, 64),
		"y":          strconv.FormatFloat(y, 'f', -1, 64),
		"normalized": strconv.FormatBool(normalized),
	})
}

func (c *DetectorClient) post(ctx context.Context, path string, image []byte, mimeType string, fields map[string]string) (json.RawMessage, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDetection)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetMultipartFormData(fields).
		SetMultipartField("image", "frame", mimeType, bytes.NewReader(image)).
		Post(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDetection, path, err)
	}

	var env detectorEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: %s returned status %d with non-JSON body", ErrDetection, path, resp.StatusCode())
	}
	if resp.IsError() || env.Status == "fail" {
		msg := env.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrDetection, path, msg)
	}

	c.logger.Debug("Detector responded",
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode()),
	)
	return env.Detections, nil
}
