package evaluator

// OutOfBoundsRule 越界规则：围栏外的关键点产生 OutOfBounds 事件
type OutOfBoundsRule struct{}

// NewOutOfBoundsRule 创建越界规则
func NewOutOfBoundsRule() *OutOfBoundsRule {
	return &OutOfBoundsRule{}
}

// Skip 超出画面右侧或下方的关键点视为检测伪影，既不算围栏内也不算围栏外
func (r *OutOfBoundsRule) Skip(x, y float64, frameWidth, frameHeight int) bool {
	return y > float64(frameHeight) || x > float64(frameWidth)
}
