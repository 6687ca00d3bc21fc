package models

// 33 个人体关键点名称（与姿态检测服务输出一致）
const (
	Nose           = "nose"
	LeftEyeInner   = "leftEyeInner"
	LeftEye        = "leftEye"
	LeftEyeOuter   = "leftEyeOuter"
	RightEyeInner  = "rightEyeInner"
	RightEye       = "rightEye"
	RightEyeOuter  = "rightEyeOuter"
	LeftEar        = "leftEar"
	RightEar       = "rightEar"
	MouthLeft      = "mouthLeft"
	MouthRight     = "mouthRight"
	LeftShoulder   = "leftShoulder"
	RightShoulder  = "rightShoulder"
	LeftElbow      = "leftElbow"
	RightElbow     = "rightElbow"
	LeftWrist      = "leftWrist"
	RightWrist     = "rightWrist"
	LeftPinky      = "leftPinky"
	RightPinky     = "rightPinky"
	LeftIndex      = "leftIndex"
	RightIndex     = "rightIndex"
	LeftThumb      = "leftThumb"
	RightThumb     = "rightThumb"
	LeftHip        = "leftHip"
	RightHip       = "rightHip"
	LeftKnee       = "leftKnee"
	RightKnee      = "rightKnee"
	LeftAnkle      = "leftAnkle"
	RightAnkle     = "rightAnkle"
	LeftHeel       = "leftHeel"
	RightHeel      = "rightHeel"
	LeftFootIndex  = "leftFootIndex"
	RightFootIndex = "rightFootIndex"
)

// BodyLandmarks 关键点名称，按检测模型输出顺序
var BodyLandmarks = []string{
	Nose, LeftEyeInner, LeftEye, LeftEyeOuter, RightEyeInner, RightEye, RightEyeOuter,
	LeftEar, RightEar, MouthLeft, MouthRight, LeftShoulder, RightShoulder,
	LeftElbow, RightElbow, LeftWrist, RightWrist, LeftPinky, RightPinky,
	LeftIndex, RightIndex, LeftThumb, RightThumb, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle, LeftHeel, RightHeel,
	LeftFootIndex, RightFootIndex,
}

// CoordinateSpace 关键点坐标空间
type CoordinateSpace string

const (
	SpacePixel      CoordinateSpace = "pixel"      // 画面像素坐标
	SpaceNormalized CoordinateSpace = "normalized" // 归一化 [0,1]
)

// Keypoint 单个人体关键点
type Keypoint struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

// PoseDetection 单个检测对象（一帧中可能有多人）
type PoseDetection struct {
	SegmentationMask string     `json:"segmentation_mask,omitempty"` // base64 data URL
	Keypoints        []Keypoint `json:"keypoints"`
	WorldKeypoints   []Keypoint `json:"world_keypoints"`
}

// FrameDetection 一帧的检测结果
type FrameDetection struct {
	Subjects []PoseDetection `json:"detections"`
}

// AnnotatedKeypoint 带围栏内外标记的关键点（用于画面渲染）
type AnnotatedKeypoint struct {
	Subject  int      `json:"subject"`
	Keypoint Keypoint `json:"keypoint"`
	Inside   bool     `json:"inside"`
}
