package evaluator

import "github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

// PostureRule 举手姿态规则：手腕高于手肘（y 更小）时产生 PostureRisk
// 坐标原点在左上角；相等不触发
type PostureRule struct{}

// NewPostureRule 创建姿态规则
func NewPostureRule() *PostureRule {
	return &PostureRule{}
}

// Evaluate 返回触发风险的身体侧，先左后右
func (r *PostureRule) Evaluate(points pointSet) []models.Side {
	var sides []models.Side
	for _, side := range []models.Side{models.SideLeft, models.SideRight} {
		wrist := points.last(wristOf(side))
		elbow := points.last(elbowOf(side))
		if wrist == nil || elbow == nil {
			continue
		}
		if wrist.y < elbow.y {
			sides = append(sides, side)
		}
	}
	return sides
}

func wristOf(side models.Side) string {
	if side == models.SideLeft {
		return models.LeftWrist
	}
	return models.RightWrist
}

func elbowOf(side models.Side) string {
	if side == models.SideLeft {
		return models.LeftElbow
	}
	return models.RightElbow
}
