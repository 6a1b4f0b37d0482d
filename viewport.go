package glowstage

// Viewport is the current drawable size. Window events queue a resize, and
// the resize system applies it to the camera, composer and backend together.
type Viewport struct {
	Width  int
	Height int

	pending    bool
	nextWidth  int
	nextHeight int
}

// RequestResize queues a new size. Zero or negative sizes are ignored.
func (v *Viewport) RequestResize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.pending = true
	v.nextWidth = width
	v.nextHeight = height
}

func (v *Viewport) Aspect() float32 {
	if v.Height == 0 {
		return 1
	}
	return float32(v.Width) / float32(v.Height)
}

// OnResize applies a size: camera aspect w/h, post-processing targets and
// the render surface all become (w,h). Zero sizes leave everything as is.
func OnResize(v *Viewport, cam *Camera, composer *Composer, target *RenderTarget, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	v.Width = width
	v.Height = height
	cam.SetAspect(float32(width) / float32(height))
	composer.SetSize(width, height)
	if target != nil && target.Backend != nil {
		target.Backend.Resize(width, height)
	}
}

func resizeSystem(v *Viewport, cam *Camera, composer *Composer, target *RenderTarget) {
	if !v.pending {
		return
	}
	v.pending = false
	OnResize(v, cam, composer, target, v.nextWidth, v.nextHeight)
}
