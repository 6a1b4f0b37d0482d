package glowstage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data  []byte
	err   error
	block bool
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.data, f.err
}

func settleMascot(t *testing.T, m *Mascot, registry *SceneRegistry, tl *Timeline) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.poll(registry, tl, NewNopLogger()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("mascot still %v after 2s", m.State())
}

func testMascotConfig() MascotConfig {
	return MascotConfig{URL: "mascot.glb", Scale: 2.2, OffsetY: -1}
}

func TestMascot_LoadSuccess(t *testing.T) {
	registry := NewSceneRegistry()
	tl := NewTimeline()
	m := NewMascot(testMascotConfig(), testPalette)
	assert.Equal(t, MascotPending, m.State())
	_, ok := m.Position()
	assert.False(t, ok)

	m.Load(context.Background(), &fakeFetcher{data: triangleGLB(t, map[string]any{}, []uint16{0, 1, 2})})
	settleMascot(t, m, registry, tl)

	require.True(t, m.Loaded())
	assert.Equal(t, 1, registry.Len())
	r := m.Renderable
	assert.Equal(t, LayerMascot, r.Layer)
	assert.Equal(t, mgl32.Vec3{2.2, 2.2, 2.2}, r.Transform.Scale)
	assert.InDelta(t, 0.3, r.Material.EmissiveIntensity, 1e-6)
	assert.True(t, r.Material.Lit)

	pos, ok := m.Position()
	require.True(t, ok)
	assert.InDelta(t, -1, pos.Y(), 1e-6)

	// bob dips by 0.08 at the far end of its 2.5s swing
	tl.Advance(2500 * time.Millisecond)
	assert.InDelta(t, -1.08, r.Transform.Position.Y(), 1e-5)
	assert.Equal(t, 2, tl.Len(), "bob and spin loop forever")

	assert.False(t, m.poll(registry, tl, NewNopLogger()), "settles once")

	m.Cancel()
	assert.Equal(t, 0, tl.Len())
}

func TestMascot_LoadFailureIsPermanent(t *testing.T) {
	registry := NewSceneRegistry()
	tl := NewTimeline()
	m := NewMascot(testMascotConfig(), testPalette)
	m.Load(context.Background(), &fakeFetcher{err: errors.New("404")})
	settleMascot(t, m, registry, tl)

	assert.True(t, m.Failed())
	assert.Error(t, m.Err)
	assert.Equal(t, 0, registry.Len())
	_, ok := m.Position()
	assert.False(t, ok)
	assert.Equal(t, "failed", m.State().String())
}

func TestMascot_DecodeFailure(t *testing.T) {
	m := NewMascot(testMascotConfig(), testPalette)
	m.Load(context.Background(), &fakeFetcher{data: []byte("not a glb at all")})
	settleMascot(t, m, NewSceneRegistry(), NewTimeline())
	assert.ErrorIs(t, m.Err, ErrInvalidGLB)
}

func TestMascot_CancelAbortsFetch(t *testing.T) {
	m := NewMascot(testMascotConfig(), testPalette)
	m.Load(context.Background(), &fakeFetcher{block: true})
	m.Cancel()
	settleMascot(t, m, NewSceneRegistry(), NewTimeline())
	assert.ErrorIs(t, m.Err, context.Canceled)
}

func TestMascotSystem_FadesOverlayEitherWay(t *testing.T) {
	for name, fetcher := range map[string]*fakeFetcher{
		"loaded": {data: triangleGLB(t, map[string]any{}, []uint16{0, 1, 2})},
		"failed": {err: errors.New("offline")},
	} {
		t.Run(name, func(t *testing.T) {
			app := NewApp()
			app.UseModules(TimeModule{FixedStep: 100 * time.Millisecond}, TweenModule{}, LifecycleModule{})
			composer := NewComposer(10, 10, BloomSettings{}, 0)
			m := NewMascot(testMascotConfig(), testPalette)
			app.addResources(composer, m)
			app.UseSystem(System(mascotSystem).InStage(Update))

			m.Load(context.Background(), fetcher)
			deadline := time.Now().Add(2 * time.Second)
			for m.State() == MascotPending && time.Now().Before(deadline) {
				app.Step()
				time.Sleep(time.Millisecond)
			}
			require.NotEqual(t, MascotPending, m.State())
			assert.Equal(t, float32(1), composer.OverlayOpacity)

			for i := 0; i < 16; i++ {
				app.Step()
			}
			assert.InDelta(t, 0, composer.OverlayOpacity, 1e-6)
		})
	}
}

func TestSceneEndpoints(t *testing.T) {
	ring := NewLabelRing(testLabelTexts[:2], 4.5, nil, mgl32.Vec3{1, 1, 1})
	m := NewMascot(testMascotConfig(), testPalette)
	ep := sceneEndpoints{labels: ring, mascot: m}

	assert.Len(t, ep.LabelPositions(), 2)
	_, ok := ep.MascotPosition()
	assert.False(t, ok, "no mascot until loaded")
}

func TestMascot_MalformedAssetFailsQuietly(t *testing.T) {
	data := positionsGLB(t, map[string]any{"count": -1}, nil)
	registry := NewSceneRegistry()
	m := NewMascot(testMascotConfig(), testPalette)
	m.Load(context.Background(), &fakeFetcher{data: data})
	settleMascot(t, m, registry, NewTimeline())

	assert.True(t, m.Failed())
	assert.ErrorIs(t, m.Err, ErrInvalidGLB)
	assert.Equal(t, 0, registry.Len())
}
