package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/evaluator"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/metrics"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedSource 按顺序返回帧或错误，耗尽后返回 ErrSourceClosed
type scriptedSource struct {
	steps []sourceStep
	calls int
}

type sourceStep struct {
	frame Frame
	err   error
}

func (s *scriptedSource) Next(ctx context.Context) (Frame, error) {
	if s.calls >= len(s.steps) {
		return Frame{}, ErrSourceClosed
	}
	step := s.steps[s.calls]
	s.calls++
	return step.frame, step.err
}

type mockDetector struct{ mock.Mock }

func (d *mockDetector) DetectPose(ctx context.Context, image []byte, mimeType string, normalized bool) (models.FrameDetection, error) {
	args := d.Called(ctx, image, mimeType, normalized)
	det, _ := args.Get(0).(models.FrameDetection)
	return det, args.Error(1)
}

type recordingHandler struct {
	mu     sync.Mutex
	frames [][]models.RiskEvent
}

func (h *recordingHandler) HandleEvents(events []models.RiskEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, events)
}

type fakeSink struct {
	published [][]models.RiskEvent
	recorded  [][]models.RiskEvent
	err       error
}

func (f *fakeSink) PublishRisk(ctx context.Context, cameraID string, events []models.RiskEvent) error {
	f.published = append(f.published, events)
	return f.err
}

func (f *fakeSink) InsertEvents(ctx context.Context, events []models.RiskEvent) error {
	f.recorded = append(f.recorded, events)
	return f.err
}

var defaultFence = models.Geofence{X1: 112, Y1: 12, X2: 528, Y2: 468}

func frame640() Frame {
	return Frame{Image: []byte("img"), MimeType: "image/jpeg", Width: 640, Height: 480}
}

func insideSubject() models.PoseDetection {
	return models.PoseDetection{Keypoints: []models.Keypoint{
		{Name: models.Nose, X: 320, Y: 100},
		{Name: models.LeftElbow, X: 300, Y: 200},
		{Name: models.LeftWrist, X: 300, Y: 250},
	}}
}

func outsideSubject() models.PoseDetection {
	return models.PoseDetection{Keypoints: []models.Keypoint{
		{Name: models.Nose, X: 320, Y: 100},
		{Name: models.LeftAnkle, X: 600, Y: 300},
	}}
}

func newTestMonitor(src FrameSource, det Detector, h EventHandler, m *metrics.Metrics, maxErrors int, opts ...Option) *Monitor {
	eval := evaluator.NewEvaluator("bed-1", models.SpacePixel)
	cfg := Config{CameraID: "bed-1", Fence: defaultFence, MaxConsecutiveSourceErrors: maxErrors}
	return New(cfg, src, det, eval, h, m, zap.NewNop(), opts...)
}

func TestMonitor_ProcessesFramesUntilSourceCloses(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}, {frame: frame640()}}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, []byte("img"), "image/jpeg", false).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{insideSubject()}}, nil).Once()
	det.On("DetectPose", mock.Anything, []byte("img"), "image/jpeg", false).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil).Once()

	handler := &recordingHandler{}
	sink := &fakeSink{}
	m := metrics.New()
	mon := newTestMonitor(src, det, handler, m, 0, WithPublisher(sink), WithRecorder(sink))

	require.NoError(t, mon.Run(context.Background()))

	det.AssertExpectations(t)
	require.Len(t, handler.frames, 1)
	require.Len(t, handler.frames[0], 1)
	assert.Equal(t, models.RiskOutOfBounds, handler.frames[0][0].Kind)
	assert.Equal(t, models.LeftAnkle, handler.frames[0][0].Keypoint.Name)
	assert.Len(t, sink.published, 1)
	assert.Len(t, sink.recorded, 1)
	assert.Equal(t, uint64(2), m.FramesRead.Load())
	assert.Equal(t, uint64(2), m.FramesEvaluated.Load())
}

func TestMonitor_DetectionFailureSkipsFrame(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}, {frame: frame640()}}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("model crashed")).Once()
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil).Once()

	handler := &recordingHandler{}
	m := metrics.New()
	mon := newTestMonitor(src, det, handler, m, 0)

	require.NoError(t, mon.Run(context.Background()))
	assert.Equal(t, uint64(1), m.DetectionFailures.Load())
	assert.Len(t, handler.frames, 1)
}

func TestMonitor_SourceFailureIsFatalByDefault(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{err: errors.New("camera unplugged")}, {frame: frame640()}}}
	det := &mockDetector{}
	mon := newTestMonitor(src, det, &recordingHandler{}, metrics.New(), 0)

	err := mon.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera unplugged")
	det.AssertNotCalled(t, "DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMonitor_ToleratesConfiguredSourceErrors(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{frame: frame640()},
		{err: errors.New("timeout")},
	}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{}, nil)
	m := metrics.New()
	mon := newTestMonitor(src, det, &recordingHandler{}, m, 2)

	require.NoError(t, mon.Run(context.Background()))
	assert.Equal(t, uint64(3), m.SourceErrors.Load())
	assert.Equal(t, uint64(1), m.FramesRead.Load())

	src = &scriptedSource{steps: []sourceStep{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
	}}
	mon = newTestMonitor(src, det, &recordingHandler{}, metrics.New(), 2)
	assert.Error(t, mon.Run(context.Background()))
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}}}
	det := &mockDetector{}
	mon := newTestMonitor(src, det, &recordingHandler{}, metrics.New(), 0)

	require.NoError(t, mon.Run(ctx))
	assert.Equal(t, 0, src.calls)
}

func TestMonitor_SinkErrorsDoNotStopLoop(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}, {frame: frame640()}}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil)

	handler := &recordingHandler{}
	sink := &fakeSink{err: errors.New("broker down")}
	mon := newTestMonitor(src, det, handler, metrics.New(), 0, WithPublisher(sink), WithRecorder(sink))

	require.NoError(t, mon.Run(context.Background()))
	assert.Len(t, handler.frames, 2)
}

type panickingHandler struct{}

func (panickingHandler) HandleEvents(events []models.RiskEvent) { panic("boom") }

func TestMonitor_PanicIsContainedToFrame(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}, {frame: frame640()}}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil)
	m := metrics.New()
	mon := newTestMonitor(src, det, panickingHandler{}, m, 0)

	require.NoError(t, mon.Run(context.Background()))
	assert.Equal(t, uint64(2), m.FramesEvaluated.Load())
}

func TestMonitor_ReportsStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	kv := store.NewRedisKV(client)

	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil)
	mon := newTestMonitor(src, det, &recordingHandler{}, metrics.New(), 0,
		WithStatusWriter(NewStatusReporter(kv, 30*time.Second)))

	require.NoError(t, mon.Run(context.Background()))

	status, err := ReadStatus(context.Background(), kv, "bed-1")
	require.NoError(t, err)
	assert.Equal(t, "bed-1", status.CameraID)
	assert.Equal(t, 640, status.FrameWidth)
	assert.Equal(t, defaultFence, status.Geofence)
	assert.Equal(t, 1, status.SubjectCount)
	assert.Equal(t, uint64(1), status.FramesTotal)
	require.Len(t, status.Events, 1)
	assert.Len(t, status.Keypoints, 2)
	assert.Empty(t, status.LastError)

	assert.True(t, mr.TTL(store.StatusKey("bed-1")) > 0)

	_, err = ReadStatus(context.Background(), kv, "bed-2")
	assert.ErrorIs(t, err, ErrNoStatus)
}

func TestMonitor_BadFrameSkippedWithoutEndingLoop(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{
		{err: fmt.Errorf("%w: image: unknown format", ErrBadFrame)},
		{frame: frame640()},
	}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil).Once()

	handler := &recordingHandler{}
	m := metrics.New()
	mon := newTestMonitor(src, det, handler, m, 0)

	require.NoError(t, mon.Run(context.Background()))
	assert.Equal(t, uint64(1), m.BadFrames.Load())
	assert.Zero(t, m.SourceErrors.Load())
	assert.Equal(t, uint64(1), m.FramesRead.Load())
	assert.Len(t, handler.frames, 1)
}

func TestSnapshotSource_GarbageFrameDoesNotStopMonitor(t *testing.T) {
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) > 1 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("garbage frame"))
	}))
	defer srv.Close()

	m := metrics.New()
	src := NewSnapshotSource(srv.URL, time.Second, zap.NewNop())
	mon := newTestMonitor(src, &mockDetector{}, &recordingHandler{}, m, 0)

	require.NoError(t, mon.Run(context.Background()))
	assert.Equal(t, int32(2), served.Load())
	assert.Equal(t, uint64(1), m.BadFrames.Load())
}

// blockingRecorder 直到 ctx 结束才返回
type blockingRecorder struct {
	calls atomic.Int32
}

func (b *blockingRecorder) InsertEvents(ctx context.Context, events []models.RiskEvent) error {
	b.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestMonitor_BlockingRecorderDoesNotStallLoop(t *testing.T) {
	src := &scriptedSource{steps: []sourceStep{{frame: frame640()}, {frame: frame640()}, {frame: frame640()}}}
	det := &mockDetector{}
	det.On("DetectPose", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.FrameDetection{Subjects: []models.PoseDetection{outsideSubject()}}, nil)

	handler := &recordingHandler{}
	recorder := &blockingRecorder{}
	m := metrics.New()
	eval := evaluator.NewEvaluator("bed-1", models.SpacePixel)
	cfg := Config{CameraID: "bed-1", Fence: defaultFence, SinkTimeout: 20 * time.Millisecond}
	mon := New(cfg, src, det, eval, handler, m, zap.NewNop(), WithRecorder(recorder))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, mon.Run(ctx))
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, handler.frames, 3)
	assert.Equal(t, int32(3), recorder.calls.Load())
	assert.Equal(t, uint64(3), m.SinkTimeouts.Load())
}

func TestMonitor_DefaultSinkTimeout(t *testing.T) {
	mon := newTestMonitor(&scriptedSource{}, &mockDetector{}, &recordingHandler{}, nil, 0)
	assert.Equal(t, DefaultSinkTimeout, mon.cfg.SinkTimeout)
}
