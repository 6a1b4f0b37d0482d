package glowstage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeadlessStage(t *testing.T, presetName string, fetcher AssetFetcher) (*App, *HeadlessBackend) {
	t.Helper()
	preset, err := PresetByName(presetName)
	require.NoError(t, err)

	app := NewApp()
	backend := NewHeadlessBackend(1280, 720)
	app.UseModules(TimeModule{FixedStep: 16 * time.Millisecond})
	app.UseBackend(backend)
	app.UseModules(StageModule{
		Preset:  preset,
		Fetcher: fetcher,
		Context: context.Background(),
		Seed:    42,
		Width:   1280,
		Height:  720,
	})
	return app, backend
}

func stepUntilSettled(t *testing.T, app *App) *Mascot {
	t.Helper()
	m := Resource[Mascot](app)
	require.NotNil(t, m)
	deadline := time.Now().Add(2 * time.Second)
	for m.State() == MascotPending && time.Now().Before(deadline) {
		app.Step()
		time.Sleep(time.Millisecond)
	}
	require.NotEqual(t, MascotPending, m.State())
	return m
}

func TestStageModule_InstallsScene(t *testing.T) {
	app, _ := newHeadlessStage(t, "tron", &fakeFetcher{err: errors.New("offline")})

	registry := Resource[SceneRegistry](app)
	require.NotNil(t, registry)
	// ground grid, four labels, particle field
	assert.Equal(t, 6, registry.Len())

	for _, res := range []any{
		Resource[Camera](app), Resource[Composer](app), Resource[Lights](app),
		Resource[Viewport](app), Resource[LabelRing](app), Resource[ParticleField](app),
		Resource[EffectsSession](app), Resource[Preset](app), Resource[SceneSettings](app),
	} {
		assert.NotNil(t, res)
	}
	assert.True(t, Resource[EffectsSession](app).Running())
	assert.Nil(t, Resource[CameraPathPlayer](app), "tron sways")
	assert.Same(t, Resource[RenderTarget](app), Resource[DisposalHook](app).Releaser)
}

func TestStageModule_HeadlessRunAndTeardown(t *testing.T) {
	glb := triangleGLB(t, map[string]any{}, []uint16{0, 1, 2})
	app, backend := newHeadlessStage(t, "tron", &fakeFetcher{data: glb})

	m := stepUntilSettled(t, app)
	require.True(t, m.Loaded())

	for i := 0; i < 600; i++ {
		app.Step()
	}
	target := Resource[RenderTarget](app)
	assert.Equal(t, 0, target.Errors)
	assert.Equal(t, int(app.Frame()), backend.Frames)

	frame := backend.LastFrame
	require.NotNil(t, frame)
	assert.Equal(t, "ground", frame.Items[0].Renderable.Name)
	assert.Equal(t, "particles", frame.Items[len(frame.Items)-1].Renderable.Name)
	assert.InDelta(t, 0, frame.PostFX.OverlayOpacity, 1e-6, "overlay gone once the mascot is in")

	session := Resource[EffectsSession](app)
	spawned := 0
	for _, k := range effectKinds {
		spawned += session.Stats(k).Spawned
	}
	assert.Greater(t, spawned, 3)
	assert.Greater(t, session.Stats(EffectArc).Spawned, 0)

	app.Shutdown()
	assert.Equal(t, 0, Resource[SceneRegistry](app).Len())
	assert.Equal(t, 0, session.LiveCount())
	assert.False(t, session.Running())
	assert.Equal(t, 0, backend.Resident(), "every uploaded geometry is released")
	assert.Equal(t, 0, Resource[Timeline](app).Len())
	for id, n := range backend.GeometryReleases {
		assert.Equal(t, 1, n, "geometry %s released once", id)
	}
}

func TestStageModule_SurvivesMascotFailure(t *testing.T) {
	app, backend := newHeadlessStage(t, "tron", &fakeFetcher{err: errors.New("404")})
	m := stepUntilSettled(t, app)
	assert.True(t, m.Failed())

	for i := 0; i < 300; i++ {
		app.Step()
	}
	assert.Equal(t, 0, Resource[RenderTarget](app).Errors)
	assert.Greater(t, backend.Frames, 300)
	assert.InDelta(t, 0, Resource[Composer](app).OverlayOpacity, 1e-6)
	app.Shutdown()
}

func TestStageModule_ResizeReachesBackend(t *testing.T) {
	app, backend := newHeadlessStage(t, "tron", &fakeFetcher{err: errors.New("404")})
	app.Step()

	Resource[Viewport](app).RequestResize(800, 600)
	app.Step()

	assert.Equal(t, 800, backend.Width)
	assert.Equal(t, 600, backend.Height)
	assert.Equal(t, 800, backend.LastFrame.Width)
	assert.InDelta(t, 800.0/600.0, Resource[Camera](app).Aspect, 1e-6)
	assert.Equal(t, 0, Resource[RenderTarget](app).Errors)
	app.Shutdown()
}

func TestStageModule_FlythroughUsesCameraPath(t *testing.T) {
	app, _ := newHeadlessStage(t, "flythrough", &fakeFetcher{block: true})
	player := Resource[CameraPathPlayer](app)
	require.NotNil(t, player)
	assert.Equal(t, 48, Resource[EffectsSession](app).MaxLive)
	assert.Equal(t, 800, len(Resource[ParticleField](app).Positions))

	for i := 0; i < 400; i++ { // 6.4s, past the first 6s leg
		app.Step()
	}
	assert.GreaterOrEqual(t, player.CompletedLegs(), 1)
	assert.LessOrEqual(t, Resource[EffectsSession](app).LiveCount(), 48)

	app.Shutdown()
	assert.Equal(t, 0, Resource[SceneRegistry](app).Len(), "shutdown does not wait on the pending fetch")
}
