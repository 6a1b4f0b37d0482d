package glowstage

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/font"
)

// StageModule assembles the whole scene from a preset: lights, grid, label
// ring, mascot, particles, the effects session, camera motion and the
// post-processing state, plus the systems that drive them each frame.
// TimeModule must be installed first; a backend may be installed before or
// after.
type StageModule struct {
	Preset  *Preset
	Fetcher AssetFetcher
	Context context.Context
	Seed    int64
	Width   int
	Height  int
}

func (mod StageModule) Install(app *App, cmd *Commands) {
	preset := mod.Preset
	if preset == nil {
		var err error
		preset, err = PresetByName("tron")
		if err != nil {
			panic(err)
		}
	}
	palette, err := preset.Palette.Resolve()
	if err != nil {
		panic(err)
	}
	logger := app.Logger()

	width, height := mod.Width, mod.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}
	seed := mod.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	if Resource[Timeline](app) == nil {
		app.UseModules(TweenModule{})
	}
	if Resource[SceneRegistry](app) == nil {
		app.UseModules(LifecycleModule{})
	}
	tl := Resource[Timeline](app)
	registry := Resource[SceneRegistry](app)
	hook := Resource[DisposalHook](app)

	target := Resource[RenderTarget](app)
	if target == nil {
		target = &RenderTarget{}
		cmd.AddResources(target)
	}
	hook.Releaser = target

	viewport := &Viewport{Width: width, Height: height}
	app.UseModules(CameraModule{
		Mode:      preset.Camera.Mode,
		Waypoints: preset.Waypoints(),
		Aspect:    viewport.Aspect(),
	})

	composer := NewComposer(width, height, preset.PostFX.Bloom, preset.PostFX.Flare)
	composer.Exposure = preset.PostFX.Exposure
	lights := &Lights{List: defaultLights(palette)}
	settings := &SceneSettings{
		Fog:        Fog{Color: palette.Background, Density: preset.Fog},
		ClearColor: palette.Background,
		FlareTint:  palette.FlareTint,
	}

	grid := newGroundGrid(palette)
	registry.Add(grid)

	var face font.Face
	if preset.Labels.Font != "" {
		face, err = LoadLabelFace(preset.Labels.Font)
		if err != nil {
			logger.Warnf("label font %s unavailable, using built-in face: %v", preset.Labels.Font, err)
			face = nil
		}
	}
	labels := NewLabelRing(preset.Labels.Texts, preset.Labels.Radius, face, palette.A)
	labels.Attach(registry, tl)

	particles := NewParticleField(preset.ParticleConfig(), palette.A, rng)
	registry.Add(particles.Renderable)

	mascot := NewMascot(preset.Mascot, palette)
	ctx := mod.Context
	if ctx == nil {
		ctx = context.Background()
	}
	fetcher := mod.Fetcher
	if fetcher == nil {
		fetcher = NewDefaultFetcher()
	}
	mascot.Load(ctx, fetcher)

	factory := &EffectFactory{
		Registry:  registry,
		Timeline:  tl,
		Hook:      hook,
		Palette:   palette,
		Endpoints: sceneEndpoints{labels: labels, mascot: mascot},
		Rand:      rng,
	}
	session := NewEffectsSession(factory, preset.EffectSchedules(), preset.Effects.MaxLive, logger)

	cmd.AddResources(preset, viewport, composer, lights, settings, labels, particles, mascot, session)

	app.UseSystem(
		System(resizeSystem).
			InStage(PreUpdate),
	)
	app.UseSystem(
		System(mascotSystem).
			InStage(Update),
	)
	app.UseSystem(
		System(effectsSystem).
			InStage(Update),
	)
	app.UseSystem(
		System(particleSystem).
			InStage(Update),
	)
	app.UseSystem(
		System(lensFlareSystem).
			InStage(PreRender),
	)
	app.UseSystem(
		System(renderSystem).
			InStage(Render),
	)

	session.Start()
	logger.Infof("Stage %q ready: %d labels, %d particles, seed %d", preset.Name, len(labels.Nodes), len(particles.Positions), seed)

	app.OnExit(func() {
		session.Stop()
		session.logStats()
		mascot.Cancel()
		labels.Detach(registry, target)
		tl.CancelAll()

		var rest []EntityId
		registry.Each(func(id EntityId, _ *Renderable) bool {
			rest = append(rest, id)
			return true
		})
		for _, id := range rest {
			if obj, ok := registry.Remove(id); ok {
				releaseRenderable(target, obj)
			}
		}
	})
}

func newGroundGrid(p Palette) *Renderable {
	mat := NewMaterial(p.A, 0.15, BlendAlpha)
	mat.Lit = true
	grid := &Renderable{
		Name:      "ground",
		Geometry:  GridGeometry(50, 50, 50, 50),
		Material:  mat,
		Transform: IdentityTransform(),
		Layer:     LayerGround,
	}
	grid.Transform.Position = mgl32.Vec3{0, -1, 0}
	return grid
}

// ReleaseGeometry forwards to the installed backend, if any.
func (t *RenderTarget) ReleaseGeometry(id AssetId) {
	if t.Backend != nil {
		t.Backend.ReleaseGeometry(id)
	}
}

func (t *RenderTarget) ReleaseMaterial(id AssetId) {
	if t.Backend != nil {
		t.Backend.ReleaseMaterial(id)
	}
}
