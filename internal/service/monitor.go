package service

import (
	"context"
	"fmt"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/audio"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/config"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/dispatch"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/evaluator"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/metrics"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/monitor"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/publisher"

	"go.uber.org/zap"
)

// MonitorService 床位监控服务
type MonitorService struct {
	config      *config.Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	infra       *infra
	publisher   *publisher.MQTTPublisher
	coordinator *dispatch.Coordinator
	monitor     *monitor.Monitor
}

// NewMonitorService 创建床位监控服务
func NewMonitorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 围栏只按配置的画面尺寸计算一次
	fence, err := models.NewCenteredGeofence(
		cfg.Camera.FrameWidth, cfg.Camera.FrameHeight,
		cfg.Geofence.WidthFraction, cfg.Geofence.HeightFraction,
	)
	if err != nil {
		return nil, fmt.Errorf("invalid geofence: %w", err)
	}

	in, err := openInfra(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	space := models.CoordinateSpace(cfg.Geofence.CoordinateSpace)

	player := audio.NewCommandPlayer(cfg.Audio.Player, cfg.Audio.PlayerArgs, logger)
	coordinator := dispatch.NewCoordinator(m, logger,
		dispatch.WithPlayer(player, dispatch.CueFiles{
			Attention: cfg.Audio.AttentionCue,
			Warning:   cfg.Audio.WarningCue,
		}),
		dispatch.WithCooldown(cfg.Audio.AlertCooldown),
	)

	var opts []monitor.Option
	var pub *publisher.MQTTPublisher
	if cfg.MQTTEnabled {
		pub, err = publisher.NewMQTTPublisher(&cfg.MQTT, logger)
		if err != nil {
			in.close()
			return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		opts = append(opts, monitor.WithPublisher(pub))
	}
	if in.events != nil {
		opts = append(opts, monitor.WithRecorder(in.events))
	}
	if kv := in.kv(); kv != nil {
		opts = append(opts, monitor.WithStatusWriter(monitor.NewStatusReporter(kv, cfg.Monitor.StatusTTL)))
	}

	mon := monitor.New(
		monitor.Config{
			CameraID:                   cfg.Monitor.CameraID,
			Fence:                      fence,
			Normalized:                 space == models.SpaceNormalized,
			MaxConsecutiveSourceErrors: cfg.Monitor.MaxConsecutiveSourceErrors,
		},
		monitor.NewSnapshotSource(cfg.Camera.SnapshotURL, cfg.Camera.Timeout, logger),
		monitor.NewDetectorClient(cfg.Detector.URL, cfg.Detector.Timeout, logger),
		evaluator.NewEvaluator(cfg.Monitor.CameraID, space),
		coordinator,
		m,
		logger,
		opts...,
	)

	return &MonitorService{
		config:      cfg,
		logger:      logger,
		metrics:     m,
		infra:       in,
		publisher:   pub,
		coordinator: coordinator,
		monitor:     mon,
	}, nil
}

// Start 启动指标服务并运行监控循环（阻塞）
func (s *MonitorService) Start(ctx context.Context) error {
	if addr := s.config.Monitor.MetricsAddr; addr != "" {
		go func() {
			if err := s.metrics.StartServer(ctx, addr); err != nil {
				s.logger.Warn("Metrics server stopped", zap.Error(err))
			}
		}()
	}
	return s.monitor.Run(ctx)
}

// Stop 等待正在播放的提示音结束并释放连接
func (s *MonitorService) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.coordinator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Audio playback still running at shutdown")
	}

	if s.publisher != nil {
		s.publisher.Close()
	}
	s.infra.close()
	return nil
}

// Metrics 返回指标实例
func (s *MonitorService) Metrics() *metrics.Metrics {
	return s.metrics
}
