package glowstage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Backend draws frames. Implementations upload geometry and materials lazily
// on first sight and when Geometry.Version moves, and free them on release.
type Backend interface {
	ResourceReleaser
	Name() string
	Resize(width, height int)
	Draw(frame *Frame) error
}

type DrawItem struct {
	Renderable *Renderable
	World      mgl32.Mat4
}

type Fog struct {
	Color   mgl32.Vec3
	Density float32
}

// SceneSettings is the static look of the scene.
type SceneSettings struct {
	Fog        Fog
	ClearColor mgl32.Vec3
	FlareTint  mgl32.Vec3
}

// Frame is everything a backend needs for one image.
type Frame struct {
	Index          uint64
	Width, Height  int
	View           mgl32.Mat4
	Projection     mgl32.Mat4
	CameraPosition mgl32.Vec3
	Items          []DrawItem
	Lights         []Light
	Fog            Fog
	ClearColor     mgl32.Vec3
	FlareTint      mgl32.Vec3
	PostFX         Composer
}

// BuildFrame snapshots the registry in layer order. Hidden renderables and
// renderables without geometry are left out.
func BuildFrame(index uint64, registry *SceneRegistry, cam *Camera, lights *Lights, settings *SceneSettings, composer *Composer) *Frame {
	frame := &Frame{
		Index:          index,
		Width:          composer.Width,
		Height:         composer.Height,
		View:           cam.View(),
		Projection:     cam.Projection(),
		CameraPosition: cam.Position,
		PostFX:         *composer,
	}
	if lights != nil {
		frame.Lights = append(frame.Lights, lights.List...)
	}
	if settings != nil {
		frame.Fog = settings.Fog
		frame.ClearColor = settings.ClearColor
		frame.FlareTint = settings.FlareTint
	}

	registry.Each(func(id EntityId, r *Renderable) bool {
		if r.Hidden || r.Geometry == nil || r.Material == nil {
			return true
		}
		frame.Items = append(frame.Items, DrawItem{Renderable: r, World: r.WorldMatrix()})
		return true
	})
	sort.SliceStable(frame.Items, func(i, j int) bool {
		return frame.Items[i].Renderable.Layer < frame.Items[j].Renderable.Layer
	})
	return frame
}

// RenderTarget holds the backend the scene draws into.
type RenderTarget struct {
	Backend Backend
	Errors  int
}

func renderSystem(cmd *Commands, target *RenderTarget, registry *SceneRegistry, cam *Camera, lights *Lights, settings *SceneSettings, composer *Composer) {
	if target.Backend == nil {
		return
	}
	frame := BuildFrame(cmd.Frame(), registry, cam, lights, settings, composer)
	if err := target.Backend.Draw(frame); err != nil {
		target.Errors++
		cmd.Logger().Errorf("draw frame %d on %s: %v", frame.Index, target.Backend.Name(), err)
	}
}

// HeadlessBackend keeps the bookkeeping of a real backend without a GPU. It
// is used for CI runs and tests.
type HeadlessBackend struct {
	mu sync.Mutex

	Width, Height int

	geometries map[AssetId]uint64
	materials  map[AssetId]bool

	Uploads          int
	GeometryReleases map[AssetId]int
	MaterialReleases map[AssetId]int
	Frames           int
	LastFrame        *Frame
}

func NewHeadlessBackend(width, height int) *HeadlessBackend {
	return &HeadlessBackend{
		Width:            width,
		Height:           height,
		geometries:       make(map[AssetId]uint64),
		materials:        make(map[AssetId]bool),
		GeometryReleases: make(map[AssetId]int),
		MaterialReleases: make(map[AssetId]int),
	}
}

func (b *HeadlessBackend) Name() string {
	return "headless"
}

func (b *HeadlessBackend) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Width = width
	b.Height = height
}

func (b *HeadlessBackend) Draw(frame *Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range frame.Items {
		g := item.Renderable.Geometry
		if v, ok := b.geometries[g.Handle]; !ok || v != g.Version {
			b.geometries[g.Handle] = g.Version
			b.Uploads++
		}
		m := item.Renderable.Material
		if !b.materials[m.Handle] {
			b.materials[m.Handle] = true
		}
	}
	if frame.Width != b.Width || frame.Height != b.Height {
		return fmt.Errorf("frame is %dx%d, surface is %dx%d", frame.Width, frame.Height, b.Width, b.Height)
	}
	b.Frames++
	b.LastFrame = frame
	return nil
}

func (b *HeadlessBackend) ReleaseGeometry(id AssetId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.geometries, id)
	b.GeometryReleases[id]++
}

func (b *HeadlessBackend) ReleaseMaterial(id AssetId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.materials, id)
	b.MaterialReleases[id]++
}

// Resident reports how many geometries are currently uploaded.
func (b *HeadlessBackend) Resident() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.geometries)
}
