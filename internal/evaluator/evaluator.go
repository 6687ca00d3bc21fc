package evaluator

import (
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

	"github.com/google/uuid"
)

// Result 单帧评估结果
type Result struct {
	Events    []models.RiskEvent
	Annotated []models.AnnotatedKeypoint
}

// Evaluator 风险评估器
// 规则评估是输入的纯函数；事件 ID 和时间戳由注入的生成器提供
type Evaluator struct {
	cameraID string
	space    models.CoordinateSpace

	newID func() string
	now   func() time.Time

	// 规则评估器
	bounds  *OutOfBoundsRule // 越界检测
	posture *PostureRule     // 举手姿态检测
}

// Option 评估器选项
type Option func(*Evaluator)

// WithIDGenerator 替换事件 ID 生成器
func WithIDGenerator(f func() string) Option {
	return func(e *Evaluator) { e.newID = f }
}

// WithClock 替换时钟
func WithClock(f func() time.Time) Option {
	return func(e *Evaluator) { e.now = f }
}

// NewEvaluator 创建评估器
func NewEvaluator(cameraID string, space models.CoordinateSpace, opts ...Option) *Evaluator {
	e := &Evaluator{
		cameraID: cameraID,
		space:    space,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.bounds = NewOutOfBoundsRule()
	e.posture = NewPostureRule()

	return e
}

// Evaluate 评估一帧检测结果，返回风险事件和标注后的关键点
// 多个检测对象独立评估，事件按对象顺序、关键点顺序拼接
func (e *Evaluator) Evaluate(detection models.FrameDetection, frameWidth, frameHeight int, fence models.Geofence) Result {
	var result Result
	detectedAt := e.now()

	for subject, pose := range detection.Subjects {
		points := e.usablePoints(pose.Keypoints, frameWidth, frameHeight)

		for _, p := range points {
			inside := fence.Contains(p.x, p.y)
			result.Annotated = append(result.Annotated, models.AnnotatedKeypoint{
				Subject:  subject,
				Keypoint: p.original,
				Inside:   inside,
			})
			if !inside {
				result.Events = append(result.Events, e.buildEvent(models.RiskOutOfBounds, "", subject, p.original, detectedAt))
			}
		}

		for _, side := range e.posture.Evaluate(points) {
			kp := points.last(wristOf(side)).original
			result.Events = append(result.Events, e.buildEvent(models.RiskPosture, side, subject, kp, detectedAt))
		}
	}

	return result
}

// usablePoints 过滤掉检测伪影（超出画面的点），并转换到像素坐标
func (e *Evaluator) usablePoints(keypoints []models.Keypoint, frameWidth, frameHeight int) pointSet {
	points := make(pointSet, 0, len(keypoints))
	for _, kp := range keypoints {
		x, y := kp.X, kp.Y
		if e.space == models.SpaceNormalized {
			x *= float64(frameWidth)
			y *= float64(frameHeight)
		}
		if e.bounds.Skip(x, y, frameWidth, frameHeight) {
			continue
		}
		points = append(points, point{original: kp, x: x, y: y})
	}
	return points
}

func (e *Evaluator) buildEvent(kind models.RiskKind, side models.Side, subject int, kp models.Keypoint, at time.Time) models.RiskEvent {
	return models.RiskEvent{
		EventID:    e.newID(),
		CameraID:   e.cameraID,
		Kind:       kind,
		Side:       side,
		Subject:    subject,
		Keypoint:   kp,
		DetectedAt: at,
	}
}

// point 像素坐标下的关键点
type point struct {
	original models.Keypoint
	x, y     float64
}

type pointSet []point

// last 按名称查找关键点，重复时取最后一个
func (ps pointSet) last(name string) *point {
	var found *point
	for i := range ps {
		if ps[i].original.Name == name {
			found = &ps[i]
		}
	}
	return found
}
