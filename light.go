package glowstage

import (
	"github.com/go-gl/mathgl/mgl32"
)

type LightType uint32

const (
	LightTypePoint       LightType = 0
	LightTypeDirectional LightType = 1
	LightTypeSpot        LightType = 2
	LightTypeAmbient     LightType = 3
	LightTypeRectArea    LightType = 4
)

func (t LightType) String() string {
	switch t {
	case LightTypePoint:
		return "point"
	case LightTypeDirectional:
		return "directional"
	case LightTypeSpot:
		return "spot"
	case LightTypeAmbient:
		return "ambient"
	case LightTypeRectArea:
		return "rect-area"
	}
	return "unknown"
}

type Light struct {
	Type      LightType
	Position  mgl32.Vec3
	Target    mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Range     float32 // point/spot
	ConeAngle float32 // full cone angle in degrees (spot)
}

// Lights holds the fixed scene lights. The first one is the key light.
type Lights struct {
	List []Light
}

func (l *Lights) KeyLight() (Light, bool) {
	if l == nil || len(l.List) == 0 {
		return Light{}, false
	}
	return l.List[0], true
}

// defaultLights is the four light rig: key spot, rim spot, area fill and a
// low point light grazing the grid.
func defaultLights(p Palette) []Light {
	return []Light{
		{Type: LightTypeSpot, Position: mgl32.Vec3{4, 6, 3}, Color: p.A, Intensity: 8, Range: 25, ConeAngle: 45},
		{Type: LightTypeSpot, Position: mgl32.Vec3{-4, 5, -4}, Color: p.Rim, Intensity: 5, Range: 20, ConeAngle: 36},
		{Type: LightTypeRectArea, Position: mgl32.Vec3{0, 3, 0}, Color: p.B, Intensity: 2},
		{Type: LightTypePoint, Position: mgl32.Vec3{0, -0.8, 0}, Color: p.A, Intensity: 1.5, Range: 10},
	}
}
