package models

import (
	"fmt"
	"math"
)

// Geofence 床位围栏（画面像素坐标下的轴对齐矩形）
type Geofence struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// NewCenteredGeofence 按画面宽高比例构建居中的围栏
// widthFraction / heightFraction 取值 (0,1]
func NewCenteredGeofence(frameWidth, frameHeight int, widthFraction, heightFraction float64) (Geofence, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return Geofence{}, fmt.Errorf("invalid frame size %dx%d", frameWidth, frameHeight)
	}
	if widthFraction <= 0 || widthFraction > 1 || heightFraction <= 0 || heightFraction > 1 {
		return Geofence{}, fmt.Errorf("geofence fractions must be in (0,1], got %v x %v", widthFraction, heightFraction)
	}

	w := float64(frameWidth)
	h := float64(frameHeight)

	x1 := roundHalfEven((w - widthFraction*w) / 2)
	x2 := roundHalfEven(float64(x1) + widthFraction*w)
	y1 := roundHalfEven((h - heightFraction*h) / 2)
	y2 := roundHalfEven(float64(y1) + heightFraction*h)

	g := Geofence{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if g.X1 >= g.X2 || g.Y1 >= g.Y2 {
		return Geofence{}, fmt.Errorf("degenerate geofence %+v for frame %dx%d", g, frameWidth, frameHeight)
	}
	return g, nil
}

// Contains 严格包含判断，边界上的点视为在围栏外
func (g Geofence) Contains(x, y float64) bool {
	return float64(g.X1) < x && x < float64(g.X2) && float64(g.Y1) < y && y < float64(g.Y2)
}

// roundHalfEven 与检测服务侧的四舍六入五成双保持一致
func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}
