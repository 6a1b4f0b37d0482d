package glowstage

import (
	"math/rand"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReleaser struct {
	geometries map[AssetId]int
	materials  map[AssetId]int
}

func newCountingReleaser() *countingReleaser {
	return &countingReleaser{
		geometries: make(map[AssetId]int),
		materials:  make(map[AssetId]int),
	}
}

func (c *countingReleaser) ReleaseGeometry(id AssetId) { c.geometries[id]++ }
func (c *countingReleaser) ReleaseMaterial(id AssetId) { c.materials[id]++ }

type fixedEndpoints struct {
	labels    []mgl32.Vec3
	mascot    mgl32.Vec3
	hasMascot bool
}

func (f fixedEndpoints) LabelPositions() []mgl32.Vec3 { return f.labels }
func (f fixedEndpoints) MascotPosition() (mgl32.Vec3, bool) {
	return f.mascot, f.hasMascot
}

var testPalette = Palette{
	A:          mgl32.Vec3{0, 1, 0.666},
	B:          mgl32.Vec3{0, 0.83, 1},
	Rim:        mgl32.Vec3{0.48, 0.23, 0.93},
	Background: mgl32.Vec3{},
}

type effectFixture struct {
	registry *SceneRegistry
	timeline *Timeline
	hook     *DisposalHook
	releaser *countingReleaser
	factory  *EffectFactory
}

func newEffectFixture(endpoints EndpointSource, seed int64) *effectFixture {
	registry := NewSceneRegistry()
	releaser := newCountingReleaser()
	hook := &DisposalHook{Registry: registry, Releaser: releaser}
	tl := NewTimeline()
	return &effectFixture{
		registry: registry,
		timeline: tl,
		hook:     hook,
		releaser: releaser,
		factory: &EffectFactory{
			Registry:  registry,
			Timeline:  tl,
			Hook:      hook,
			Palette:   testPalette,
			Endpoints: endpoints,
			Rand:      rand.New(rand.NewSource(seed)),
		},
	}
}

func fourLabels() []mgl32.Vec3 {
	return []mgl32.Vec3{{4.5, 1.5, 0}, {0, 2, 4.5}, {-4.5, 1.3, 0}, {0, 1, -4.5}}
}

func TestEffectFactory_DescribeOrbitRanges(t *testing.T) {
	f := newEffectFixture(nil, 1)
	for i := 0; i < 200; i++ {
		d, err := f.factory.Describe(EffectOrbit)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d.Radius, float32(3))
		assert.Less(t, d.Radius, float32(5))
		assert.GreaterOrEqual(t, d.Height, float32(-2))
		assert.Less(t, d.Height, float32(2))
		assert.GreaterOrEqual(t, d.SpinPeriod, 10*time.Second)
		assert.Less(t, d.SpinPeriod, 20*time.Second)
		assert.Equal(t, 2*time.Second, d.FadeDelay)
		assert.GreaterOrEqual(t, d.FadeDuration, 8*time.Second)
		assert.Less(t, d.FadeDuration, 12*time.Second)
		assert.Equal(t, d.FadeDelay+d.FadeDuration, d.Lifetime)
	}
}

func TestEffectFactory_DescribeBeam(t *testing.T) {
	f := newEffectFixture(nil, 2)
	for i := 0; i < 100; i++ {
		d, err := f.factory.Describe(EffectBeam)
		require.NoError(t, err)
		assert.Equal(t, ColorA, d.Color)
		assert.LessOrEqual(t, abs32(d.Origin.X()), float32(5))
		assert.LessOrEqual(t, abs32(d.Origin.Z()), float32(5))
		assert.InDelta(t, 3, d.Origin.Y(), 1e-6)
		assert.Equal(t, 4*time.Second, d.Lifetime)
	}
}

func TestEffectFactory_ArcNeedsTwoLabels(t *testing.T) {
	for _, labels := range [][]mgl32.Vec3{nil, {{1, 1, 1}}} {
		f := newEffectFixture(fixedEndpoints{labels: labels}, 3)
		_, err := f.factory.Describe(EffectArc)
		assert.ErrorIs(t, err, ErrNoLabels)
		assert.Equal(t, 0, f.registry.Len(), "no renderable for a skipped arc")
	}

	f := newEffectFixture(nil, 3)
	_, err := f.factory.Describe(EffectArc)
	assert.ErrorIs(t, err, ErrNoLabels)
}

func TestEffectFactory_ArcEndpoints(t *testing.T) {
	labels := fourLabels()
	f := newEffectFixture(fixedEndpoints{labels: labels}, 4)
	for i := 0; i < 100; i++ {
		d, err := f.factory.Describe(EffectArc)
		require.NoError(t, err)
		assert.Equal(t, ColorB, d.Color)
		assert.Contains(t, labels, d.Path[0])
		end := d.Path[3].Sub(mgl32.Vec3{0, 1, 0})
		assert.Contains(t, labels, end)
		assert.NotEqual(t, d.Path[0], end, "arc joins two distinct labels")
		assert.Equal(t, arcFlickerTime*(arcFlickerCount+1), d.Lifetime)
	}

	mascot := mgl32.Vec3{0, -1, 0}
	f = newEffectFixture(fixedEndpoints{labels: labels, mascot: mascot, hasMascot: true}, 5)
	d, err := f.factory.Describe(EffectArc)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, d.Path[3], "arc ends one unit above the mascot")
}

func TestBuildEffect_Shapes(t *testing.T) {
	orbit := BuildEffect(EffectDescriptor{Kind: EffectOrbit, Radius: 4, Color: ColorB}, testPalette)
	assert.Equal(t, PrimitiveTriangles, orbit.Geometry.Primitive)
	assert.Equal(t, testPalette.B, orbit.Material.Color)
	assert.InDelta(t, 0.8, orbit.Material.Opacity, 1e-6)
	assert.Equal(t, LayerEffects, orbit.Layer)

	beam := BuildEffect(EffectDescriptor{Kind: EffectBeam, Height: 8, Origin: mgl32.Vec3{1, 3, 2}}, testPalette)
	assert.Equal(t, float32(0), beam.Transform.Scale.Y(), "beams grow from nothing")
	assert.Equal(t, mgl32.Vec3{1, 3, 2}, beam.Transform.Position)

	arc := BuildEffect(EffectDescriptor{Kind: EffectArc, Color: ColorB, Path: [4]mgl32.Vec3{{0, 0, 0}, {1, 1, 0}, {2, 1, 0}, {3, 0, 0}}}, testPalette)
	assert.Equal(t, PrimitiveLines, arc.Geometry.Primitive)
	assert.Len(t, arc.Geometry.Vertices, arcDivisions+1)
	assert.Equal(t, BlendAdditive, arc.Material.Blend)
}

func TestEffectLifecycle_DisposedExactlyOnceAfterLifetime(t *testing.T) {
	for _, kind := range effectKinds {
		t.Run(kind.String(), func(t *testing.T) {
			f := newEffectFixture(fixedEndpoints{labels: fourLabels()}, 6)
			baseline := f.registry.Len()

			d, err := f.factory.Describe(kind)
			require.NoError(t, err)
			live := f.factory.Spawn(d)
			assert.Equal(t, baseline+1, f.registry.Len())

			disposals := 0
			f.hook.OnDisposed = func(e *LiveEffect) {
				assert.Same(t, live, e)
				disposals++
			}

			step := 16 * time.Millisecond
			for elapsed := time.Duration(0); elapsed < d.Lifetime-step; elapsed += step {
				f.timeline.Advance(step)
			}
			assert.False(t, live.Disposed(), "alive until its lifetime ends")

			for i := 0; i < 10; i++ {
				f.timeline.Advance(step)
			}
			assert.True(t, live.Disposed())
			assert.Equal(t, 1, disposals)
			assert.Equal(t, baseline, f.registry.Len())
			assert.Equal(t, 1, f.releaser.geometries[live.Renderable.Geometry.Handle])
			assert.Equal(t, 1, f.releaser.materials[live.Renderable.Material.Handle])
			assert.Equal(t, 0, f.timeline.Len(), "no tween outlives the effect")
		})
	}
}

func TestEffectLifecycle_BeamGrowsThenFades(t *testing.T) {
	f := newEffectFixture(nil, 7)
	d, err := f.factory.Describe(EffectBeam)
	require.NoError(t, err)
	live := f.factory.Spawn(d)
	r := live.Renderable

	f.timeline.Advance(beamGrowTime)
	assert.InDelta(t, 1, r.Transform.Scale.Y(), 1e-5)
	assert.InDelta(t, beamOpacity, r.Material.Opacity, 1e-6, "fade waits for its delay")

	f.timeline.Advance(d.FadeDelay - beamGrowTime + d.FadeDuration/2)
	assert.Less(t, r.Material.Opacity, float32(beamOpacity))
	assert.Greater(t, r.Material.Opacity, float32(0))
}

func TestDisposalHook_Idempotent(t *testing.T) {
	f := newEffectFixture(nil, 8)
	d, err := f.factory.Describe(EffectOrbit)
	require.NoError(t, err)
	live := f.factory.Spawn(d)

	assert.True(t, f.hook.Dispose(live))
	assert.False(t, f.hook.Dispose(live))
	assert.False(t, f.hook.Dispose(nil))

	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 1, f.releaser.geometries[live.Renderable.Geometry.Handle])

	// the fade tween was cancelled with the effect
	f.timeline.Advance(time.Minute)
	assert.Equal(t, 1, f.releaser.materials[live.Renderable.Material.Handle])
}

func TestParseEffectKind(t *testing.T) {
	for _, k := range effectKinds {
		got, err := ParseEffectKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseEffectKind("laser")
	assert.Error(t, err)
}
