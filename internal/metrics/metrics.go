package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控与告警分发指标
type Metrics struct {
	// 帧处理计数
	FramesRead        atomic.Uint64
	FramesEvaluated   atomic.Uint64
	SourceErrors      atomic.Uint64
	DetectionFailures atomic.Uint64
	BadFrames         atomic.Uint64
	SinkTimeouts      atomic.Uint64

	// 播放槽计数
	PlaybackStarted atomic.Uint64
	PlaybackDropped atomic.Uint64

	// 最近一帧处理耗时
	FrameLatencyMs atomic.Uint64

	riskEvents *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	storeOps   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New 创建指标实例（独立 Registry）
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		riskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fallguard_risk_events_total",
			Help: "Risk events emitted by the evaluator",
		}, []string{"kind"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fallguard_remote_dispatch_total",
			Help: "Remote channel calls by outcome",
		}, []string{"channel", "outcome"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fallguard_definition_mutations_total",
			Help: "Definition store mutations",
		}, []string{"namespace", "op"}),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"fallguard_frames_read_total", "Frames read from the camera source", &m.FramesRead},
		{"fallguard_frames_evaluated_total", "Frames evaluated by the risk rules", &m.FramesEvaluated},
		{"fallguard_source_errors_total", "Frame source read failures", &m.SourceErrors},
		{"fallguard_detection_failures_total", "Frames skipped because detection failed", &m.DetectionFailures},
		{"fallguard_bad_frames_total", "Frames skipped because the image could not be read", &m.BadFrames},
		{"fallguard_sink_timeouts_total", "Publish or audit calls abandoned after the sink timeout", &m.SinkTimeouts},
		{"fallguard_playback_started_total", "Audio cues rendered", &m.PlaybackStarted},
		{"fallguard_playback_dropped_total", "Audio cue requests dropped while the slot was busy", &m.PlaybackDropped},
	}
	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fallguard_frame_latency_ms",
			Help: "Processing latency of the last frame in milliseconds",
		},
		func() float64 { return float64(m.FrameLatencyMs.Load()) },
	))

	m.registry.MustRegister(m.riskEvents, m.dispatches, m.storeOps)
}

// ObserveRiskEvent 按类型计数风险事件
func (m *Metrics) ObserveRiskEvent(kind string) {
	m.riskEvents.WithLabelValues(kind).Inc()
}

// ObserveDispatch 记录一次远程调用结果（ok / invalid / upstream_error）
func (m *Metrics) ObserveDispatch(channel, outcome string) {
	m.dispatches.WithLabelValues(channel, outcome).Inc()
}

// ObserveStoreMutation 记录定义存储写操作
func (m *Metrics) ObserveStoreMutation(namespace, op string) {
	m.storeOps.WithLabelValues(namespace, op).Inc()
}

// UpdateFrameLatency 更新最近一帧耗时
func (m *Metrics) UpdateFrameLatency(d time.Duration) {
	m.FrameLatencyMs.Store(uint64(d.Milliseconds()))
}

// Registry 返回底层 Registry（测试用）
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer 启动独立的指标服务，ctx 结束时关闭
func (m *Metrics) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
