package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/evaluator"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/metrics"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

	"go.uber.org/zap"
)

// EventHandler 风险事件的本地响应（提示音），必须立即返回
type EventHandler interface {
	HandleEvents(events []models.RiskEvent)
}

// RiskPublisher 风险事件发布
type RiskPublisher interface {
	PublishRisk(ctx context.Context, cameraID string, events []models.RiskEvent) error
}

// EventRecorder 风险事件审计
type EventRecorder interface {
	InsertEvents(ctx context.Context, events []models.RiskEvent) error
}

// StatusWriter 状态快照输出
type StatusWriter interface {
	Report(ctx context.Context, status models.MonitorStatus) error
}

// Config 监控循环参数
type Config struct {
	CameraID string
	Fence    models.Geofence
	// Normalized 为 true 时向检测服务请求归一化坐标
	Normalized bool
	// MaxConsecutiveSourceErrors 允许的连续读帧失败次数，超过后退出（0 表示首次失败即退出）
	MaxConsecutiveSourceErrors int
	// SinkTimeout 发布/审计单次调用上限，0 使用 DefaultSinkTimeout
	SinkTimeout time.Duration
}

// DefaultSinkTimeout 发布/审计默认超时
const DefaultSinkTimeout = 500 * time.Millisecond

// Monitor 单线程监控循环：取帧 → 检测 → 评估 → 分发
type Monitor struct {
	cfg       Config
	source    FrameSource
	detector  Detector
	evaluator *evaluator.Evaluator
	handler   EventHandler

	publisher RiskPublisher
	recorder  EventRecorder
	status    StatusWriter

	metrics *metrics.Metrics
	logger  *zap.Logger

	framesTotal uint64
}

// Option 监控可选组件
type Option func(*Monitor)

// WithPublisher 设置风险事件发布器
func WithPublisher(p RiskPublisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithRecorder 设置审计仓库
func WithRecorder(r EventRecorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithStatusWriter 设置状态快照输出
func WithStatusWriter(w StatusWriter) Option {
	return func(m *Monitor) { m.status = w }
}

// New 创建监控循环
func New(
	cfg Config,
	source FrameSource,
	detector Detector,
	eval *evaluator.Evaluator,
	handler EventHandler,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *Monitor {
	mon := &Monitor{
		cfg:       cfg,
		source:    source,
		detector:  detector,
		evaluator: eval,
		handler:   handler,
		metrics:   m,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(mon)
	}
	if mon.metrics == nil {
		mon.metrics = metrics.New()
	}
	if mon.cfg.SinkTimeout <= 0 {
		mon.cfg.SinkTimeout = DefaultSinkTimeout
	}
	return mon
}

// Run 运行监控循环，直到 ctx 取消或画面源出现致命错误
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Monitor loop started",
		zap.String("camera_id", m.cfg.CameraID),
		zap.Int("fence_x1", m.cfg.Fence.X1),
		zap.Int("fence_y1", m.cfg.Fence.Y1),
		zap.Int("fence_x2", m.cfg.Fence.X2),
		zap.Int("fence_y2", m.cfg.Fence.Y2),
	)

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor loop stopped")
			return nil
		default:
		}

		frame, err := m.source.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceClosed) || ctx.Err() != nil {
				m.logger.Info("Frame source closed, monitor loop stopped")
				return nil
			}
			if errors.Is(err, ErrBadFrame) {
				m.metrics.BadFrames.Add(1)
				m.logger.Warn("Unreadable frame skipped", zap.Error(err))
				continue
			}
			consecutiveErrors++
			m.metrics.SourceErrors.Add(1)
			m.logger.Error("Can't access frame capture",
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.Error(err),
			)
			if consecutiveErrors > m.cfg.MaxConsecutiveSourceErrors {
				return fmt.Errorf("frame source failed: %w", err)
			}
			continue
		}
		consecutiveErrors = 0
		m.metrics.FramesRead.Add(1)
		m.framesTotal++

		m.ProcessFrame(ctx, frame)
	}
}

// ProcessFrame 处理一帧；任何失败都在帧边界内记录并吞掉
func (m *Monitor) ProcessFrame(ctx context.Context, frame Frame) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Frame processing panicked", zap.Any("panic", r))
		}
		m.metrics.UpdateFrameLatency(time.Since(start))
	}()

	detection, err := m.detector.DetectPose(ctx, frame.Image, frame.MimeType, m.cfg.Normalized)
	if err != nil {
		m.metrics.DetectionFailures.Add(1)
		m.logger.Warn("Body pose detection failed, frame skipped", zap.Error(err))
		m.reportStatus(ctx, frame, models.FrameDetection{}, evaluator.Result{}, err)
		return
	}

	result := m.evaluator.Evaluate(detection, frame.Width, frame.Height, m.cfg.Fence)
	m.metrics.FramesEvaluated.Add(1)

	for _, e := range result.Events {
		m.metrics.ObserveRiskEvent(string(e.Kind))
		if e.Kind == models.RiskOutOfBounds {
			m.logger.Info("Keypoint out of bed geofence",
				zap.Int("subject", e.Subject),
				zap.String("name", e.Keypoint.Name),
				zap.Float64("x", e.Keypoint.X),
				zap.Float64("y", e.Keypoint.Y),
				zap.Float64("z", e.Keypoint.Z),
			)
		}
	}

	if len(result.Events) > 0 {
		m.handler.HandleEvents(result.Events)

		if m.publisher != nil {
			m.withSinkTimeout(ctx, "Failed to publish risk events", func(ctx context.Context) error {
				return m.publisher.PublishRisk(ctx, m.cfg.CameraID, result.Events)
			})
		}
		if m.recorder != nil {
			m.withSinkTimeout(ctx, "Failed to record risk events", func(ctx context.Context) error {
				return m.recorder.InsertEvents(ctx, result.Events)
			})
		}
	}

	m.reportStatus(ctx, frame, detection, result, nil)
}

// withSinkTimeout 在超时上限内调用外部输出；超时后不再等待，失败只记录日志
func (m *Monitor) withSinkTimeout(ctx context.Context, msg string, call func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.SinkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- call(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Warn(msg, zap.Error(err))
		}
	case <-ctx.Done():
		m.metrics.SinkTimeouts.Add(1)
		m.logger.Warn(msg, zap.Error(ctx.Err()))
	}
}

func (m *Monitor) reportStatus(ctx context.Context, frame Frame, detection models.FrameDetection, result evaluator.Result, frameErr error) {
	if m.status == nil {
		return
	}

	status := models.MonitorStatus{
		CameraID:     m.cfg.CameraID,
		FrameWidth:   frame.Width,
		FrameHeight:  frame.Height,
		Geofence:     m.cfg.Fence,
		SubjectCount: len(detection.Subjects),
		Events:       result.Events,
		Keypoints:    result.Annotated,
		FramesTotal:  m.framesTotal,
		Timestamp:    time.Now().Unix(),
	}
	if frameErr != nil {
		status.LastError = frameErr.Error()
	}

	if err := m.status.Report(ctx, status); err != nil {
		m.logger.Debug("Failed to report monitor status", zap.Error(err))
	}
}
