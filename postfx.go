package glowstage

import (
	"github.com/go-gl/mathgl/mgl32"
)

type BloomSettings struct {
	Strength  float32
	Radius    float32
	Threshold float32
}

type LensFlareSettings struct {
	// LightPosition is in screen UV space, (0,0) bottom left.
	LightPosition mgl32.Vec2
	Intensity     float32
}

// Align projects the light into screen space and stores it as UV.
func (f *LensFlareSettings) Align(cam *Camera, light mgl32.Vec3) {
	ndc := cam.Project(light)
	f.LightPosition = mgl32.Vec2{(ndc.X() + 1) / 2, (ndc.Y() + 1) / 2}
}

// Composer is the post-processing chain state: bloom, lens flare and the
// loading overlay drawn over the scene.
type Composer struct {
	Width, Height int

	Bloom     BloomSettings
	LensFlare LensFlareSettings

	// OverlayOpacity is the loading curtain, 1 until the mascot settles.
	OverlayOpacity float32
	Exposure       float32
}

func NewComposer(width, height int, bloom BloomSettings, flareIntensity float32) *Composer {
	return &Composer{
		Width:  width,
		Height: height,
		Bloom:  bloom,
		LensFlare: LensFlareSettings{
			LightPosition: mgl32.Vec2{0.5, 0.5},
			Intensity:     flareIntensity,
		},
		OverlayOpacity: 1,
		Exposure:       1,
	}
}

func (c *Composer) SetSize(width, height int) {
	c.Width = width
	c.Height = height
}

func lensFlareSystem(cam *Camera, lights *Lights, composer *Composer) {
	key, ok := lights.KeyLight()
	if !ok {
		return
	}
	composer.LensFlare.Align(cam, key.Position)
}
