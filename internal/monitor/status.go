package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"
)

// ErrNoStatus 尚无监控状态（监控未运行或已过期）
var ErrNoStatus = errors.New("monitor status not available")

// statusWriteTimeout 状态写入超时
const statusWriteTimeout = 2 * time.Second

// StatusReporter 将最新一帧的状态快照写入 KV（带 TTL）
type StatusReporter struct {
	kv  store.KV
	ttl time.Duration
}

// NewStatusReporter 创建状态上报器
func NewStatusReporter(kv store.KV, ttl time.Duration) *StatusReporter {
	return &StatusReporter{kv: kv, ttl: ttl}
}

// Report 写入状态快照
func (r *StatusReporter) Report(ctx context.Context, status models.MonitorStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, statusWriteTimeout)
	defer cancel()

	if err := r.kv.Set(ctx, store.StatusKey(status.CameraID), string(payload), r.ttl); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// ReadStatus 读取指定摄像头的最新状态
func ReadStatus(ctx context.Context, kv store.KV, cameraID string) (*models.MonitorStatus, error) {
	raw, err := kv.Get(ctx, store.StatusKey(cameraID))
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, ErrNoStatus
		}
		return nil, fmt.Errorf("failed to read status: %w", err)
	}

	var status models.MonitorStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &status, nil
}
