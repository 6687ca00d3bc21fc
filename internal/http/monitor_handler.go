package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/monitor"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"

	"go.uber.org/zap"
)

// EventLister 风险事件审计查询
type EventLister interface {
	ListRecent(ctx context.Context, cameraID string, limit int) ([]models.RiskEvent, error)
}

// MonitorHandler 监控状态与风险事件查询
// kv 或 events 为 nil 时对应功能未启用（503）
type MonitorHandler struct {
	kv       store.KV
	events   EventLister
	cameraID string
	logger   *zap.Logger
}

// NewMonitorHandler 创建监控查询处理器
func NewMonitorHandler(kv store.KV, events EventLister, cameraID string, logger *zap.Logger) *MonitorHandler {
	return &MonitorHandler{kv: kv, events: events, cameraID: cameraID, logger: logger}
}

// Status GET /monitor/status?camera_id=
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.kv == nil {
		fail(w, http.StatusServiceUnavailable, "Monitor status cache is not enabled.")
		return
	}

	cameraID := r.URL.Query().Get("camera_id")
	if cameraID == "" {
		cameraID = h.cameraID
	}

	status, err := monitor.ReadStatus(r.Context(), h.kv, cameraID)
	if err != nil {
		if errors.Is(err, monitor.ErrNoStatus) {
			fail(w, http.StatusNotFound, fmt.Sprintf("No status for camera %q.", cameraID))
			return
		}
		h.logger.Error("Read monitor status failed", zap.String("camera_id", cameraID), zap.Error(err))
		serverError(w, fmt.Sprintf("Monitor status error: %v", err))
		return
	}
	success(w, map[string]any{"data": status})
}

// Events GET /monitor/events?camera_id=&limit=
func (h *MonitorHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		fail(w, http.StatusServiceUnavailable, "Risk event log is not enabled.")
		return
	}

	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 0)
	if limit < 0 {
		userError(w, `Parameter "limit" must be positive.`)
		return
	}

	events, err := h.events.ListRecent(r.Context(), q.Get("camera_id"), limit)
	if err != nil {
		h.logger.Error("List risk events failed", zap.Error(err))
		serverError(w, fmt.Sprintf("Risk events error: %v", err))
		return
	}
	success(w, map[string]any{"data": events})
}
