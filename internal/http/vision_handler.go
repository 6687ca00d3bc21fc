package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

	"go.uber.org/zap"
)

// trackWarning 单人检测提示
const trackWarning = "Body pose detects only one people result, prefering the closer person."

// VisionDetector 检测服务
type VisionDetector interface {
	DetectPose(ctx context.Context, image []byte, mimeType string, normalized bool) (models.FrameDetection, error)
	SegmentTouch(ctx context.Context, image []byte, mimeType string, x, y float64, normalized bool) (json.RawMessage, error)
}

// VisionHandler 姿态检测与触点分割代理
type VisionHandler struct {
	detector VisionDetector
	logger   *zap.Logger
}

// NewVisionHandler 创建检测代理处理器
func NewVisionHandler(d VisionDetector, logger *zap.Logger) *VisionHandler {
	return &VisionHandler{detector: d, logger: logger}
}

// Pose POST /vision/pose multipart {image, normalized, track}
func (h *VisionHandler) Pose(w http.ResponseWriter, r *http.Request) {
	image, mimeType, ok := h.readImage(w, r)
	if !ok {
		return
	}
	normalized := parseFormBool(r.PostForm.Get("normalized"))
	track := parseFormBool(r.PostForm.Get("track"))

	detection, err := h.detector.DetectPose(r.Context(), image, mimeType, normalized)
	if err != nil {
		h.logger.Error("Pose detection error", zap.Error(err))
		serverError(w, fmt.Sprintf("Pose detection error: %v", err))
		return
	}

	subjects := detection.Subjects
	if subjects == nil {
		subjects = []models.PoseDetection{}
	}
	fields := map[string]any{"detections": subjects}
	if track {
		fields["warning"] = trackWarning
	}
	success(w, fields)
}

// Segment POST /vision/segment multipart {image, x, y, normalized}
func (h *VisionHandler) Segment(w http.ResponseWriter, r *http.Request) {
	image, mimeType, ok := h.readImage(w, r)
	if !ok {
		return
	}

	var coords [2]float64
	for i, field := range []string{"x", "y"} {
		if !formHas(r, field) {
			userError(w, fmt.Sprintf("Required param '%s' not found.", field))
			return
		}
		v, err := strconv.ParseFloat(r.PostForm.Get(field), 64)
		if err != nil {
			userError(w, fmt.Sprintf("Param '%s' must be a number.", field))
			return
		}
		coords[i] = v
	}
	normalized := parseFormBool(r.PostForm.Get("normalized"))

	detections, err := h.detector.SegmentTouch(r.Context(), image, mimeType, coords[0], coords[1], normalized)
	if err != nil {
		h.logger.Error("Touch segmentation error", zap.Error(err))
		serverError(w, fmt.Sprintf("Touch segmentation error: %v", err))
		return
	}
	if len(detections) == 0 {
		detections = json.RawMessage("null")
	}
	success(w, map[string]any{"detections": detections})
}

// readImage 解析 multipart 并读取 image 字段；失败时已写入响应
func (h *VisionHandler) readImage(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := parseMultipart(w, r); err != nil {
		userError(w, "Required param 'image' not found.")
		return nil, "", false
	}
	image, mimeType, ok, err := formFile(r, "image")
	if err != nil || !ok {
		userError(w, "Required param 'image' not found.")
		return nil, "", false
	}
	return image, mimeType, true
}
