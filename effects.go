package glowstage

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

type EffectKind int

const (
	EffectOrbit EffectKind = iota
	EffectBeam
	EffectArc
)

var effectKinds = []EffectKind{EffectOrbit, EffectBeam, EffectArc}

func (k EffectKind) String() string {
	switch k {
	case EffectOrbit:
		return "orbit"
	case EffectBeam:
		return "beam"
	case EffectArc:
		return "arc"
	}
	return fmt.Sprintf("EffectKind(%d)", int(k))
}

func ParseEffectKind(s string) (EffectKind, error) {
	for _, k := range effectKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown effect kind %q", s)
}

type ColorChoice int

const (
	ColorA ColorChoice = iota
	ColorB
)

var ErrNoLabels = errors.New("fewer than two label nodes")

const (
	orbitSegments       = 64
	orbitTubeRadius     = 0.02
	orbitRadialSegments = 8
	orbitOpacity        = 0.8

	beamHeight         = 8
	beamRadiusTop      = 0.01
	beamRadiusBottom   = 0.05
	beamRadialSegments = 8
	beamOpacity        = 0.6
	beamGrowTime       = 500 * time.Millisecond

	arcDivisions    = 50
	arcOpacity      = 0.9
	arcFlickerTime  = 300 * time.Millisecond
	arcFlickerCount = 3
)

// EffectDescriptor is the immutable recipe for one transient light effect.
// Lifetime is the total time from spawn until disposal.
type EffectDescriptor struct {
	Kind   EffectKind
	Origin mgl32.Vec3
	Radius float32
	Height float32
	Color  ColorChoice

	Lifetime     time.Duration
	FadeDelay    time.Duration
	FadeDuration time.Duration
	FadeRepeats  int

	// orbit only
	SpinPeriod time.Duration

	// arc only: start, two control points, end
	Path [4]mgl32.Vec3
}

func (d EffectDescriptor) totalLifetime() time.Duration {
	return d.FadeDelay + d.FadeDuration*time.Duration(d.FadeRepeats+1)
}

// LiveEffect is a descriptor that has been turned into a registered renderable.
type LiveEffect struct {
	Descriptor EffectDescriptor
	Entity     EntityId
	Renderable *Renderable

	disposed bool
	tweens   []TweenHandle
}

func (e *LiveEffect) Disposed() bool {
	return e.disposed
}

// EndpointSource tells the arc generator where the label nodes and the mascot are.
type EndpointSource interface {
	LabelPositions() []mgl32.Vec3
	MascotPosition() (mgl32.Vec3, bool)
}

// EffectFactory turns descriptors into live effects. Describe draws the random
// parameters, Spawn builds, registers and animates.
type EffectFactory struct {
	Registry  *SceneRegistry
	Timeline  *Timeline
	Hook      *DisposalHook
	Palette   Palette
	Endpoints EndpointSource
	Rand      *rand.Rand
}

func (f *EffectFactory) rnd() float32 {
	return f.Rand.Float32()
}

func (f *EffectFactory) pickColor() ColorChoice {
	if f.rnd() > 0.5 {
		return ColorA
	}
	return ColorB
}

func seconds(s float32) time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// Describe samples a descriptor for kind. Arc descriptors fail with
// ErrNoLabels when fewer than two label nodes exist.
func (f *EffectFactory) Describe(kind EffectKind) (EffectDescriptor, error) {
	switch kind {
	case EffectOrbit:
		d := EffectDescriptor{
			Kind:         EffectOrbit,
			Radius:       3 + f.rnd()*2,
			Height:       f.rnd()*4 - 2,
			Color:        f.pickColor(),
			SpinPeriod:   seconds(10 + f.rnd()*10),
			FadeDelay:    2 * time.Second,
			FadeDuration: seconds(8 + f.rnd()*4),
		}
		d.Lifetime = d.totalLifetime()
		return d, nil

	case EffectBeam:
		d := EffectDescriptor{
			Kind:         EffectBeam,
			Origin:       mgl32.Vec3{(f.rnd() - 0.5) * 10, beamHeight/2 - 1, (f.rnd() - 0.5) * 10},
			Radius:       beamRadiusBottom,
			Height:       beamHeight,
			Color:        ColorA,
			FadeDelay:    time.Second,
			FadeDuration: 3 * time.Second,
		}
		d.Lifetime = d.totalLifetime()
		return d, nil

	case EffectArc:
		if f.Endpoints == nil {
			return EffectDescriptor{}, ErrNoLabels
		}
		labels := f.Endpoints.LabelPositions()
		if len(labels) < 2 {
			return EffectDescriptor{}, ErrNoLabels
		}
		i := f.Rand.Intn(len(labels))
		start := labels[i]
		end, ok := f.Endpoints.MascotPosition()
		if !ok {
			j := f.Rand.Intn(len(labels) - 1)
			if j >= i {
				j++
			}
			end = labels[j]
		}
		end = end.Add(mgl32.Vec3{0, 1, 0})

		jitter := func() mgl32.Vec3 {
			return mgl32.Vec3{f.rnd() - 0.5, f.rnd() * 2, f.rnd() - 0.5}
		}
		c1 := lerpVec3(start, end, 0.3).Add(jitter())
		c2 := lerpVec3(start, end, 0.7).Add(jitter())

		d := EffectDescriptor{
			Kind:         EffectArc,
			Origin:       start,
			Color:        ColorB,
			FadeDuration: arcFlickerTime,
			FadeRepeats:  arcFlickerCount,
			Path:         [4]mgl32.Vec3{start, c1, c2, end},
		}
		d.Lifetime = d.totalLifetime()
		return d, nil
	}
	return EffectDescriptor{}, fmt.Errorf("describe %v: unknown effect kind", kind)
}

func lerpVec3(a, b mgl32.Vec3, t float32) mgl32.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// orbitPoints lays segments points on a rippled ring.
func orbitPoints(radius, height float32, segments int) []mgl32.Vec3 {
	points := make([]mgl32.Vec3, segments)
	for i := range points {
		a := float64(i) / float64(segments) * 2 * math.Pi
		points[i] = mgl32.Vec3{
			float32(math.Cos(a)) * radius,
			height + float32(math.Sin(a*3))*0.3,
			float32(math.Sin(a)) * radius,
		}
	}
	return points
}

// BuildEffect creates the renderable for a descriptor without registering it.
func BuildEffect(d EffectDescriptor, palette Palette) *Renderable {
	color := palette.Pick(d.Color)
	r := &Renderable{
		Name:      d.Kind.String(),
		Transform: IdentityTransform(),
		Layer:     LayerEffects,
	}
	r.Transform.Position = d.Origin

	switch d.Kind {
	case EffectOrbit:
		curve := CatmullRomCurve{Points: orbitPoints(d.Radius, d.Height, orbitSegments), Closed: true}
		r.Transform.Position = mgl32.Vec3{}
		r.Geometry = TubeGeometry(curve, orbitSegments, orbitTubeRadius, orbitRadialSegments)
		r.Material = NewMaterial(color, orbitOpacity, BlendAlpha)
		r.Material.Emissive = color
		r.Material.EmissiveIntensity = 0.3
		r.Material.DoubleSided = true

	case EffectBeam:
		r.Geometry = CylinderGeometry(beamRadiusTop, beamRadiusBottom, d.Height, beamRadialSegments)
		r.Material = NewMaterial(color, beamOpacity, BlendAlpha)
		r.Material.Emissive = color
		r.Material.EmissiveIntensity = 0.5
		r.Transform.Scale = mgl32.Vec3{1, 0, 1}

	case EffectArc:
		curve := CatmullRomCurve{Points: d.Path[:]}
		r.Transform.Position = mgl32.Vec3{}
		r.Geometry = PolylineGeometry(curve.Sample(arcDivisions))
		r.Material = NewMaterial(color, arcOpacity, BlendAdditive)
	}
	return r
}

// Spawn registers the effect and schedules its animation. The fade tween's
// completion hands the effect to the disposal hook.
func (f *EffectFactory) Spawn(d EffectDescriptor) *LiveEffect {
	r := BuildEffect(d, f.Palette)
	live := &LiveEffect{
		Descriptor: d,
		Renderable: r,
	}
	live.Entity = f.Registry.Add(r)

	baseOpacity := r.Material.Opacity

	switch d.Kind {
	case EffectOrbit:
		live.tweens = append(live.tweens, f.Timeline.Add(Tween{
			Duration: d.SpinPeriod,
			Repeat:   -1,
			OnUpdate: func(p float32) {
				r.Transform.Rotation = mgl32.QuatRotate(p*2*math.Pi, mgl32.Vec3{0, 1, 0})
			},
		}))
	case EffectBeam:
		live.tweens = append(live.tweens, f.Timeline.Add(Tween{
			Duration: beamGrowTime,
			Ease:     EasePower2Out,
			OnUpdate: func(p float32) {
				r.Transform.Scale[1] = p
			},
		}))
	}

	live.tweens = append(live.tweens, f.Timeline.Add(Tween{
		Delay:    d.FadeDelay,
		Duration: d.FadeDuration,
		Ease:     EasePower1Out,
		Repeat:   d.FadeRepeats,
		Yoyo:     d.FadeRepeats > 0,
		OnUpdate: func(p float32) {
			r.Material.Opacity = baseOpacity * (1 - p)
		},
		OnComplete: func() {
			f.Hook.Dispose(live)
		},
	}))

	return live
}
