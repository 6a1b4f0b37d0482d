package glowstage

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

const MaxParticleStep = 0.1

// ParticleField is a fixed set of points that fall and wrap back to the top.
// It is created once and mutated in place every frame.
type ParticleField struct {
	Positions     []mgl32.Vec3
	FallSpeed     float32
	RecycleHeight float32
	ResetHeight   float32

	Renderable *Renderable
}

type ParticleConfig struct {
	Count     int
	Spread    float32
	FallSpeed float32
	Size      float32
	Opacity   float32
}

func DefaultParticleConfig() ParticleConfig {
	return ParticleConfig{
		Count:     400,
		Spread:    20,
		FallSpeed: 0.8,
		Size:      0.05,
		Opacity:   0.6,
	}
}

// NewParticleField scatters particles over a Spread x Spread square, between
// the recycle height and 10 units above it.
func NewParticleField(cfg ParticleConfig, color mgl32.Vec3, rng *rand.Rand) *ParticleField {
	field := &ParticleField{
		Positions:     make([]mgl32.Vec3, cfg.Count),
		FallSpeed:     cfg.FallSpeed,
		RecycleHeight: -2,
		ResetHeight:   10,
	}
	for i := range field.Positions {
		field.Positions[i] = mgl32.Vec3{
			(rng.Float32() - 0.5) * cfg.Spread,
			rng.Float32()*10 + field.RecycleHeight,
			(rng.Float32() - 0.5) * cfg.Spread,
		}
	}

	mat := NewMaterial(color, cfg.Opacity, BlendAdditive)
	mat.PointSize = cfg.Size
	field.Renderable = &Renderable{
		Name:      "particles",
		Geometry:  PointsGeometry(field.Positions),
		Material:  mat,
		Transform: IdentityTransform(),
		Layer:     LayerParticles,
	}
	return field
}

// Update moves every particle down by FallSpeed*dt, wrapping those that pass
// below RecycleHeight to ResetHeight. dt is capped at MaxParticleStep.
func (f *ParticleField) Update(dt float32) {
	if dt <= 0 {
		return
	}
	if dt > MaxParticleStep {
		dt = MaxParticleStep
	}
	for i := range f.Positions {
		y := f.Positions[i][1] - f.FallSpeed*dt
		if y < f.RecycleHeight {
			y = f.ResetHeight
		}
		f.Positions[i][1] = y
	}
	f.sync()
}

func (f *ParticleField) sync() {
	if f.Renderable == nil || f.Renderable.Geometry == nil {
		return
	}
	g := f.Renderable.Geometry
	for i, p := range f.Positions {
		if i < len(g.Vertices) {
			g.Vertices[i].Position = p
		}
	}
	g.MarkDirty()
}

func particleSystem(t *Time, field *ParticleField) {
	field.Update(t.DeltaSeconds())
}
