package models

import "time"

// RiskKind 风险事件类型
type RiskKind string

const (
	RiskOutOfBounds RiskKind = "OutOfBounds" // 关键点超出床位围栏
	RiskPosture     RiskKind = "PostureRisk" // 手腕高于手肘
)

// Side 身体侧
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// RiskEvent 单帧风险事件（同一帧内不去重）
type RiskEvent struct {
	EventID    string    `json:"event_id" db:"event_id"`
	CameraID   string    `json:"camera_id" db:"camera_id"`
	Kind       RiskKind  `json:"kind" db:"kind"`
	Side       Side      `json:"side,omitempty" db:"side"` // 仅 PostureRisk
	Subject    int       `json:"subject" db:"subject"`
	Keypoint   Keypoint  `json:"keypoint" db:"keypoint"` // JSONB
	DetectedAt time.Time `json:"detected_at" db:"detected_at"`
}

// HasKind 判断事件列表中是否存在指定类型
func HasKind(events []RiskEvent, kind RiskKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// MonitorStatus 监控最新状态快照（写入 Redis，供管理端查询）
type MonitorStatus struct {
	CameraID     string              `json:"camera_id"`
	FrameWidth   int                 `json:"frame_width"`
	FrameHeight  int                 `json:"frame_height"`
	Geofence     Geofence            `json:"geofence"`
	SubjectCount int                 `json:"subject_count"`
	Events       []RiskEvent         `json:"events"`
	Keypoints    []AnnotatedKeypoint `json:"keypoints"`
	FramesTotal  uint64              `json:"frames_total"`
	LastError    string              `json:"last_error,omitempty"`
	Timestamp    int64               `json:"timestamp"`
}
