package glowstage

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

type Primitive uint32

const (
	PrimitiveTriangles Primitive = iota
	PrimitiveLines
	PrimitivePoints
)

type BlendMode uint32

const (
	BlendOpaque BlendMode = iota
	BlendAlpha
	BlendAdditive
)

// Vertex matches the WGSL vertex layout: position, normal, uv.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

type Geometry struct {
	Handle    AssetId
	Primitive Primitive
	Vertices  []Vertex
	Indices   []uint32

	// Version increments whenever Vertices change after upload.
	Version uint64
}

func NewGeometry(primitive Primitive, vertices []Vertex, indices []uint32) *Geometry {
	return &Geometry{
		Handle:    makeAssetId(),
		Primitive: primitive,
		Vertices:  vertices,
		Indices:   indices,
	}
}

func (g *Geometry) MarkDirty() {
	g.Version++
}

type Texture struct {
	Handle AssetId
	Image  *image.RGBA
}

type Material struct {
	Handle            AssetId
	Color             mgl32.Vec3
	Emissive          mgl32.Vec3
	EmissiveIntensity float32
	Opacity           float32
	Blend             BlendMode
	Lit               bool
	DoubleSided       bool
	PointSize         float32
	Texture           *Texture
}

func NewMaterial(color mgl32.Vec3, opacity float32, blend BlendMode) *Material {
	return &Material{
		Handle:  makeAssetId(),
		Color:   color,
		Opacity: opacity,
		Blend:   blend,
	}
}

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (t Transform) Matrix() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return translate.Mul4(t.Rotation.Normalize().Mat4()).Mul4(scale)
}

// Draw layers, lowest first.
const (
	LayerGround = iota
	LayerMascot
	LayerLabels
	LayerEffects
	LayerParticles
)

// Renderable is anything the backend can draw: a mesh, a line or a point cloud.
type Renderable struct {
	Name      string
	Geometry  *Geometry
	Material  *Material
	Transform Transform
	Layer     int
	Hidden    bool

	// Parent, when set, is the transform of the group this renderable hangs from.
	Parent *Transform
}

func (r *Renderable) WorldMatrix() mgl32.Mat4 {
	local := r.Transform.Matrix()
	if r.Parent == nil {
		return local
	}
	return r.Parent.Matrix().Mul4(local)
}

func (r *Renderable) WorldPosition() mgl32.Vec3 {
	return r.WorldMatrix().Col(3).Vec3()
}

// ResourceReleaser frees the GPU side of geometry and materials.
type ResourceReleaser interface {
	ReleaseGeometry(id AssetId)
	ReleaseMaterial(id AssetId)
}
