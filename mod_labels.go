package glowstage

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	LabelTextureWidth  = 1024
	LabelTextureHeight = 128

	labelPlaneWidth  = 4
	labelPlaneHeight = 0.5
	labelOpacity     = 0.8
	labelFontSize    = 52
	labelSpinPeriod  = 20 * time.Second
)

var labelFocus = mgl32.Vec3{0, 1.5, 0}

// LoadLabelFace opens a TTF/OTF file at the label font size.
func LoadLabelFace(path string) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    labelFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create face: %w", err)
	}
	return face, nil
}

// RasterizeLabel renders upper-cased text centered on a transparent
// 1024x128 canvas. Small faces are drawn at native size and scaled up so the
// glyphs fill about half the canvas height.
func RasterizeLabel(text string, face font.Face, c color.Color) *image.RGBA {
	if face == nil {
		face = basicfont.Face7x13
	}
	text = strings.ToUpper(text)
	dst := image.NewRGBA(image.Rect(0, 0, LabelTextureWidth, LabelTextureHeight))

	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := (metrics.Ascent + metrics.Descent).Ceil()
	advance := font.MeasureString(face, text).Ceil()
	if advance == 0 || lineHeight == 0 {
		return dst
	}

	src := image.NewRGBA(image.Rect(0, 0, advance, lineHeight))
	d := &font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(text)

	scale := min(
		float64(LabelTextureHeight)/2/float64(lineHeight),
		float64(LabelTextureWidth-16)/float64(advance),
	)
	w := int(math.Round(float64(advance) * scale))
	h := int(math.Round(float64(lineHeight) * scale))
	x0 := (LabelTextureWidth - w) / 2
	y0 := (LabelTextureHeight - h) / 2
	xdraw.BiLinear.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// facingRotation turns a +Z facing plane at pos toward target.
func facingRotation(pos, target mgl32.Vec3) mgl32.Quat {
	d := target.Sub(pos)
	horiz := float32(math.Hypot(float64(d.X()), float64(d.Z())))
	yaw := float32(math.Atan2(float64(d.X()), float64(d.Z())))
	pitch := -float32(math.Atan2(float64(d.Y()), float64(horiz)))
	return mgl32.QuatRotate(yaw, mgl32.Vec3{0, 1, 0}).Mul(mgl32.QuatRotate(pitch, mgl32.Vec3{1, 0, 0}))
}

// LabelRing is the spinning group of text planes. Its nodes are the arc
// endpoints.
type LabelRing struct {
	Group    Transform
	Nodes    []*Renderable
	Entities []EntityId

	spin TweenHandle
}

// NewLabelRing builds one textured plane per text, spaced evenly on a ring
// of the given radius with a sinusoidal height offset.
func NewLabelRing(texts []string, radius float32, face font.Face, c mgl32.Vec3) *LabelRing {
	ring := &LabelRing{Group: IdentityTransform()}
	ink := color.NRGBA{
		R: uint8(mgl32.Clamp(c.X(), 0, 1) * 255),
		G: uint8(mgl32.Clamp(c.Y(), 0, 1) * 255),
		B: uint8(mgl32.Clamp(c.Z(), 0, 1) * 255),
		A: 255,
	}

	for i, txt := range texts {
		ang := float64(i) / float64(len(texts)) * 2 * math.Pi
		pos := mgl32.Vec3{
			float32(math.Cos(ang)) * radius,
			1.5 + float32(math.Sin(float64(i)*3))*0.6,
			float32(math.Sin(ang)) * radius,
		}

		mat := NewMaterial(mgl32.Vec3{1, 1, 1}, labelOpacity, BlendAlpha)
		mat.DoubleSided = true
		mat.Texture = &Texture{
			Handle: makeAssetId(),
			Image:  RasterizeLabel(txt, face, ink),
		}

		node := &Renderable{
			Name:      "label:" + txt,
			Geometry:  PlaneGeometry(labelPlaneWidth, labelPlaneHeight),
			Material:  mat,
			Transform: IdentityTransform(),
			Layer:     LayerLabels,
			Parent:    &ring.Group,
		}
		node.Transform.Position = pos
		node.Transform.Rotation = facingRotation(pos, labelFocus)
		ring.Nodes = append(ring.Nodes, node)
	}
	return ring
}

// LabelPositions returns the world position of every label node.
func (r *LabelRing) LabelPositions() []mgl32.Vec3 {
	if r == nil {
		return nil
	}
	out := make([]mgl32.Vec3, len(r.Nodes))
	for i, n := range r.Nodes {
		out[i] = n.WorldPosition()
	}
	return out
}

// Attach registers the nodes and starts the ring spin.
func (r *LabelRing) Attach(registry *SceneRegistry, tl *Timeline) {
	for _, n := range r.Nodes {
		r.Entities = append(r.Entities, registry.Add(n))
	}
	r.spin = tl.Add(Tween{
		Duration: labelSpinPeriod,
		Repeat:   -1,
		OnUpdate: func(p float32) {
			r.Group.Rotation = mgl32.QuatRotate(p*2*math.Pi, mgl32.Vec3{0, 1, 0})
		},
	})
}

// Detach stops the spin and removes the nodes, releasing their resources.
func (r *LabelRing) Detach(registry *SceneRegistry, releaser ResourceReleaser) {
	r.spin.Cancel()
	for _, id := range r.Entities {
		if obj, ok := registry.Remove(id); ok {
			releaseRenderable(releaser, obj)
		}
	}
	r.Entities = nil
}
