package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCenteredGeofence_DefaultBed(t *testing.T) {
	g, err := NewCenteredGeofence(640, 480, 0.65, 0.95)
	require.NoError(t, err)

	assert.Equal(t, Geofence{X1: 112, Y1: 12, X2: 528, Y2: 468}, g)
}

func TestNewCenteredGeofence_InsideFrame(t *testing.T) {
	sizes := [][2]int{{640, 480}, {1280, 720}, {1920, 1080}, {3, 3}}
	fractions := []float64{0.1, 0.33, 0.5, 0.65, 0.95, 1}

	for _, s := range sizes {
		for _, wf := range fractions {
			for _, hf := range fractions {
				g, err := NewCenteredGeofence(s[0], s[1], wf, hf)
				if err != nil {
					// 极小画面可能退化
					continue
				}
				assert.Less(t, g.X1, g.X2)
				assert.Less(t, g.Y1, g.Y2)
				assert.GreaterOrEqual(t, g.X1, 0)
				assert.GreaterOrEqual(t, g.Y1, 0)
				assert.LessOrEqual(t, g.X2, s[0])
				assert.LessOrEqual(t, g.Y2, s[1])
			}
		}
	}
}

func TestNewCenteredGeofence_InvalidInput(t *testing.T) {
	_, err := NewCenteredGeofence(0, 480, 0.5, 0.5)
	assert.Error(t, err)

	_, err = NewCenteredGeofence(640, 480, 0, 0.5)
	assert.Error(t, err)

	_, err = NewCenteredGeofence(640, 480, 0.5, 1.2)
	assert.Error(t, err)
}

func TestGeofence_ContainsIsStrict(t *testing.T) {
	g := Geofence{X1: 10, Y1: 20, X2: 100, Y2: 200}

	cases := []struct {
		name string
		x, y float64
		want bool
	}{
		{"center", 50, 100, true},
		{"left edge", 10, 100, false},
		{"right edge", 100, 100, false},
		{"top edge", 50, 20, false},
		{"bottom edge", 50, 200, false},
		{"corner", 10, 20, false},
		{"just inside", 10.001, 20.001, true},
		{"outside", 5, 100, false},
		{"below", 50, 250, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, g.Contains(tc.x, tc.y))
		})
	}
}

func TestHasKind(t *testing.T) {
	events := []RiskEvent{{Kind: RiskPosture, Side: SideLeft}}
	assert.True(t, HasKind(events, RiskPosture))
	assert.False(t, HasKind(events, RiskOutOfBounds))
	assert.False(t, HasKind(nil, RiskPosture))
}
