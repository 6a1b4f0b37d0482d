package glowstage

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

var ErrUnknownPreset = errors.New("unknown preset")

// Preset is one look of the scene. The two shipped presets differ only in
// data: palette, camera motion, intensities and densities.
type Preset struct {
	Name      string          `yaml:"name"`
	Palette   PaletteConfig   `yaml:"palette"`
	Fog       float32         `yaml:"fog"`
	Camera    CameraConfig    `yaml:"camera"`
	PostFX    PostFXConfig    `yaml:"postfx"`
	Particles ParticlesConfig `yaml:"particles"`
	Effects   EffectsConfig   `yaml:"effects"`
	Mascot    MascotConfig    `yaml:"mascot"`
	Labels    LabelsConfig    `yaml:"labels"`
}

type PaletteConfig struct {
	A              string `yaml:"a"`
	B              string `yaml:"b"`
	Rim            string `yaml:"rim"`
	MascotEmissive string `yaml:"mascotEmissive"`
	Background     string `yaml:"background"`
}

type CameraConfig struct {
	Mode CameraMode       `yaml:"mode"`
	Path []WaypointConfig `yaml:"path"`
}

type WaypointConfig struct {
	Position mgl32.Vec3    `yaml:"position"`
	LookAt   mgl32.Vec3    `yaml:"lookAt"`
	Duration time.Duration `yaml:"duration"`
}

type PostFXConfig struct {
	Bloom    BloomSettings `yaml:"bloom"`
	Flare    float32       `yaml:"flare"`
	Exposure float32       `yaml:"exposure"`
}

type ParticlesConfig struct {
	Count     int     `yaml:"count"`
	Spread    float32 `yaml:"spread"`
	FallSpeed float32 `yaml:"fallSpeed"`
	Size      float32 `yaml:"size"`
	Opacity   float32 `yaml:"opacity"`
}

type EffectsConfig struct {
	MaxLive   int              `yaml:"maxLive"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

type ScheduleConfig struct {
	Kind     string        `yaml:"kind"`
	MinDelay time.Duration `yaml:"minDelay"`
	Jitter   time.Duration `yaml:"jitter"`
}

type MascotConfig struct {
	URL     string  `yaml:"url"`
	Scale   float32 `yaml:"scale"`
	OffsetY float32 `yaml:"offsetY"`
}

type LabelsConfig struct {
	Texts  []string `yaml:"texts"`
	Radius float32  `yaml:"radius"`
	// Font is an optional TTF/OTF path; the built-in bitmap face is used otherwise.
	Font string `yaml:"font"`
}

// Palette is the resolved preset colors in linear 0..1 RGB.
type Palette struct {
	A, B           mgl32.Vec3
	Rim            mgl32.Vec3
	MascotEmissive mgl32.Vec3
	Background     mgl32.Vec3
	FlareTint      mgl32.Vec3
}

func (p Palette) Pick(c ColorChoice) mgl32.Vec3 {
	if c == ColorB {
		return p.B
	}
	return p.A
}

func toVec3(c colorful.Color) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}
}

// Resolve parses the hex colors.
func (pc PaletteConfig) Resolve() (Palette, error) {
	parse := func(field, hex string) (colorful.Color, error) {
		c, err := colorful.Hex(hex)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("palette %s %q: %w", field, hex, err)
		}
		return c, nil
	}

	a, err := parse("a", pc.A)
	if err != nil {
		return Palette{}, err
	}
	b, err := parse("b", pc.B)
	if err != nil {
		return Palette{}, err
	}
	rim, err := parse("rim", pc.Rim)
	if err != nil {
		return Palette{}, err
	}
	emissive, err := parse("mascotEmissive", pc.MascotEmissive)
	if err != nil {
		return Palette{}, err
	}
	bg, err := parse("background", pc.Background)
	if err != nil {
		return Palette{}, err
	}

	return Palette{
		A:              toVec3(a),
		B:              toVec3(b),
		Rim:            toVec3(rim),
		MascotEmissive: toVec3(emissive),
		Background:     toVec3(bg),
		FlareTint:      toVec3(a.BlendLuv(b, 0.5).Clamped()),
	}, nil
}

// PresetNames lists the embedded presets.
func PresetNames() []string {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// PresetByName returns an embedded preset.
func PresetByName(name string) (*Preset, error) {
	data, err := presetFS.ReadFile("presets/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownPreset, name, strings.Join(PresetNames(), ", "))
	}
	return ParsePreset(data)
}

// LoadPreset reads a preset from a YAML file.
func LoadPreset(filename string) (*Preset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}
	return ParsePreset(data)
}

func ParsePreset(data []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preset %q: %w", p.Name, err)
	}
	return &p, nil
}

func (p *Preset) applyDefaults() {
	if p.Palette.A == "" {
		p.Palette.A = "#00ffaa"
	}
	if p.Palette.B == "" {
		p.Palette.B = "#00d4ff"
	}
	if p.Palette.Rim == "" {
		p.Palette.Rim = "#7c3aed"
	}
	if p.Palette.MascotEmissive == "" {
		p.Palette.MascotEmissive = "#003322"
	}
	if p.Palette.Background == "" {
		p.Palette.Background = "#000000"
	}
	if p.Camera.Mode == "" {
		p.Camera.Mode = CameraModeSway
	}
	if p.PostFX.Bloom == (BloomSettings{}) {
		p.PostFX.Bloom = BloomSettings{Strength: 1.2, Radius: 0.4, Threshold: 0.85}
	}
	if p.PostFX.Exposure == 0 {
		p.PostFX.Exposure = 1
	}

	def := DefaultParticleConfig()
	if p.Particles.Count == 0 {
		p.Particles.Count = def.Count
	}
	if p.Particles.Spread == 0 {
		p.Particles.Spread = def.Spread
	}
	if p.Particles.FallSpeed == 0 {
		p.Particles.FallSpeed = def.FallSpeed
	}
	if p.Particles.Size == 0 {
		p.Particles.Size = def.Size
	}
	if p.Particles.Opacity == 0 {
		p.Particles.Opacity = def.Opacity
	}

	if len(p.Effects.Schedules) == 0 {
		for _, s := range DefaultEffectSchedules() {
			p.Effects.Schedules = append(p.Effects.Schedules, ScheduleConfig{
				Kind:     s.Kind.String(),
				MinDelay: s.MinDelay,
				Jitter:   s.Jitter,
			})
		}
	}

	if p.Mascot.Scale == 0 {
		p.Mascot.Scale = 2.2
	}
	if p.Labels.Radius == 0 {
		p.Labels.Radius = 4.5
	}
}

func (p *Preset) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if _, err := p.Palette.Resolve(); err != nil {
		return err
	}
	switch p.Camera.Mode {
	case CameraModeSway:
	case CameraModePath:
		if len(p.Camera.Path) == 0 {
			return ErrEmptyCameraPath
		}
		for i, wp := range p.Camera.Path {
			if wp.Duration <= 0 {
				return fmt.Errorf("camera path entry %d: duration must be positive", i)
			}
		}
	default:
		return fmt.Errorf("camera mode %q", p.Camera.Mode)
	}
	if p.Fog < 0 {
		return errors.New("fog density must not be negative")
	}
	if p.Particles.Count < 0 {
		return errors.New("particle count must not be negative")
	}
	if p.Effects.MaxLive < 0 {
		return errors.New("effects.maxLive must not be negative")
	}
	for i, s := range p.Effects.Schedules {
		if _, err := ParseEffectKind(s.Kind); err != nil {
			return fmt.Errorf("effects schedule %d: %w", i, err)
		}
		if s.MinDelay <= 0 {
			return fmt.Errorf("effects schedule %d: minDelay must be positive", i)
		}
		if s.Jitter < 0 {
			return fmt.Errorf("effects schedule %d: jitter must not be negative", i)
		}
	}
	return nil
}

func (p *Preset) EffectSchedules() []EffectSchedule {
	out := make([]EffectSchedule, 0, len(p.Effects.Schedules))
	for _, s := range p.Effects.Schedules {
		kind, err := ParseEffectKind(s.Kind)
		if err != nil {
			continue
		}
		out = append(out, EffectSchedule{Kind: kind, MinDelay: s.MinDelay, Jitter: s.Jitter})
	}
	return out
}

func (p *Preset) Waypoints() []CameraWaypoint {
	out := make([]CameraWaypoint, len(p.Camera.Path))
	for i, wp := range p.Camera.Path {
		out[i] = CameraWaypoint{Position: wp.Position, LookAt: wp.LookAt, Duration: wp.Duration}
	}
	return out
}

func (p *Preset) ParticleConfig() ParticleConfig {
	return ParticleConfig{
		Count:     p.Particles.Count,
		Spread:    p.Particles.Spread,
		FallSpeed: p.Particles.FallSpeed,
		Size:      p.Particles.Size,
		Opacity:   p.Particles.Opacity,
	}
}
