package glowstage

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
	FovY     float32 // degrees
	Aspect   float32
	Near     float32
	Far      float32
}

func NewCamera(aspect float32) *Camera {
	return &Camera{
		Position: mgl32.Vec3{0, 1.5, 7},
		Target:   mgl32.Vec3{0, 1, 0},
		Up:       mgl32.Vec3{0, 1, 0},
		FovY:     60,
		Aspect:   aspect,
		Near:     0.1,
		Far:      1000,
	}
}

func (c *Camera) LookAt(target mgl32.Vec3) {
	c.Target = target
}

func (c *Camera) SetAspect(aspect float32) {
	if aspect > 0 {
		c.Aspect = aspect
	}
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

// Projection uses the OpenGL clip convention; the GPU backend remaps depth.
func (c *Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), c.Aspect, c.Near, c.Far)
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection().Mul4(c.View())
}

// Project maps a world point to normalized device coordinates.
func (c *Camera) Project(p mgl32.Vec3) mgl32.Vec3 {
	clip := c.ViewProjection().Mul4x1(p.Vec4(1))
	if clip.W() == 0 {
		return mgl32.Vec3{}
	}
	return clip.Vec3().Mul(1 / clip.W())
}
