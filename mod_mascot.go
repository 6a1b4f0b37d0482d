package glowstage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

type MascotState int

const (
	MascotPending MascotState = iota
	MascotLoaded
	MascotFailed
)

func (s MascotState) String() string {
	switch s {
	case MascotPending:
		return "pending"
	case MascotLoaded:
		return "loaded"
	case MascotFailed:
		return "failed"
	}
	return fmt.Sprintf("MascotState(%d)", int(s))
}

const (
	mascotBobDepth    = 0.08
	mascotBobPeriod   = 2500 * time.Millisecond
	mascotSpinPeriod  = 25 * time.Second
	overlayFadeDelay  = 500 * time.Millisecond
	overlayFadeLength = time.Second
)

type mascotResult struct {
	mesh *MeshData
	err  error
}

// Mascot is the one external model. It is fetched on its own goroutine; the
// result crosses back through a buffered channel drained by the frame loop,
// which is the only place the scene is touched. A failed load is permanent.
type Mascot struct {
	Location string
	Scale    float32
	OffsetY  float32
	Emissive mgl32.Vec3
	Palette  Palette

	Renderable *Renderable
	Entity     EntityId
	Err        error

	state  MascotState
	result chan mascotResult
	cancel context.CancelFunc
	tweens []TweenHandle
}

func NewMascot(cfg MascotConfig, palette Palette) *Mascot {
	return &Mascot{
		Location: cfg.URL,
		Scale:    cfg.Scale,
		OffsetY:  cfg.OffsetY,
		Emissive: palette.MascotEmissive,
		Palette:  palette,
		result:   make(chan mascotResult, 1),
	}
}

func (m *Mascot) State() MascotState {
	return m.state
}

func (m *Mascot) Loaded() bool {
	return m.state == MascotLoaded
}

func (m *Mascot) Failed() bool {
	return m.state == MascotFailed
}

// Position is the mascot's world position, only while loaded.
func (m *Mascot) Position() (mgl32.Vec3, bool) {
	if m == nil || m.state != MascotLoaded || m.Renderable == nil {
		return mgl32.Vec3{}, false
	}
	return m.Renderable.WorldPosition(), true
}

// Load starts the fetch and decode in the background.
func (m *Mascot) Load(ctx context.Context, fetcher AssetFetcher) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		data, err := fetcher.Fetch(ctx, m.Location)
		if err != nil {
			m.result <- mascotResult{err: err}
			return
		}
		mesh, err := decodeMascot(data)
		if err != nil {
			m.result <- mascotResult{err: fmt.Errorf("decode %s: %w", m.Location, err)}
			return
		}
		m.result <- mascotResult{mesh: mesh}
	}()
}

// decodeMascot turns a decoder panic into ErrInvalidGLB so a bad asset only
// fails the mascot.
func decodeMascot(data []byte) (mesh *MeshData, err error) {
	defer func() {
		if r := recover(); r != nil {
			mesh = nil
			err = fmt.Errorf("%w: %v", ErrInvalidGLB, r)
		}
	}()
	return DecodeGLB(data)
}

// Cancel aborts an in-flight fetch and stops the idle animation.
func (m *Mascot) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
	for _, tw := range m.tweens {
		tw.Cancel()
	}
	m.tweens = nil
}

// poll settles the mascot if the loader has finished. It reports whether the
// state changed on this call.
func (m *Mascot) poll(registry *SceneRegistry, tl *Timeline, logger Logger) bool {
	if m.state != MascotPending {
		return false
	}
	var res mascotResult
	select {
	case res = <-m.result:
	default:
		return false
	}

	if res.err != nil {
		m.state = MascotFailed
		m.Err = res.err
		logger.Warnf("mascot unavailable, continuing without it: %v", res.err)
		return true
	}

	mat := NewMaterial(mgl32.Vec3{0.8, 0.8, 0.85}, 1, BlendOpaque)
	mat.Lit = true
	mat.Emissive = m.Emissive
	mat.EmissiveIntensity = 0.3

	r := &Renderable{
		Name:      "mascot",
		Geometry:  res.mesh.Geometry(),
		Material:  mat,
		Transform: IdentityTransform(),
		Layer:     LayerMascot,
	}
	r.Transform.Position = mgl32.Vec3{0, m.OffsetY, 0}
	r.Transform.Scale = mgl32.Vec3{m.Scale, m.Scale, m.Scale}

	m.Renderable = r
	m.Entity = registry.Add(r)
	m.state = MascotLoaded
	logger.Infof("mascot loaded: %d vertices, %d triangles", len(res.mesh.Vertices), len(res.mesh.Indices)/3)

	baseY := m.OffsetY
	m.tweens = append(m.tweens,
		tl.Add(Tween{
			Duration: mascotBobPeriod,
			Ease:     EaseSineInOut,
			Repeat:   -1,
			Yoyo:     true,
			OnUpdate: func(p float32) {
				r.Transform.Position[1] = baseY - mascotBobDepth*p
			},
		}),
		tl.Add(Tween{
			Duration: mascotSpinPeriod,
			Repeat:   -1,
			OnUpdate: func(p float32) {
				r.Transform.Rotation = mgl32.QuatRotate(p*2*math.Pi, mgl32.Vec3{0, 1, 0})
			},
		}),
	)
	return true
}

func fadeOverlay(tl *Timeline, composer *Composer) TweenHandle {
	start := composer.OverlayOpacity
	return tl.Add(Tween{
		Delay:    overlayFadeDelay,
		Duration: overlayFadeLength,
		OnUpdate: func(p float32) {
			composer.OverlayOpacity = start * (1 - p)
		},
	})
}

func mascotSystem(cmd *Commands, m *Mascot, registry *SceneRegistry, tl *Timeline, composer *Composer) {
	if m.poll(registry, tl, cmd.Logger().Scoped("mascot")) {
		m.tweens = append(m.tweens, fadeOverlay(tl, composer))
	}
}

// sceneEndpoints feeds the arc generator from the label ring and the mascot.
type sceneEndpoints struct {
	labels *LabelRing
	mascot *Mascot
}

func (s sceneEndpoints) LabelPositions() []mgl32.Vec3 {
	return s.labels.LabelPositions()
}

func (s sceneEndpoints) MascotPosition() (mgl32.Vec3, bool) {
	return s.mascot.Position()
}
