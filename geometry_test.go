package glowstage

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatmullRomCurve_PassesThroughControlPoints(t *testing.T) {
	points := []mgl32.Vec3{{0, 0, 0}, {1, 2, 0}, {3, 2, 1}, {4, 0, 0}}
	open := CatmullRomCurve{Points: points}

	for i, p := range points {
		got := open.Point(float32(i) / float32(len(points)-1))
		assert.InDeltaSlice(t, vec(p), vec(got), 1e-4, "open point %d", i)
	}

	closed := CatmullRomCurve{Points: points, Closed: true}
	for i, p := range points {
		got := closed.Point(float32(i) / float32(len(points)))
		assert.InDeltaSlice(t, vec(p), vec(got), 1e-4, "closed point %d", i)
	}
	assert.InDeltaSlice(t, vec(points[0]), vec(closed.Point(1)), 1e-4, "closed curve wraps")
}

func TestCatmullRomCurve_SampleAndTangent(t *testing.T) {
	line := CatmullRomCurve{Points: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}}
	samples := line.Sample(4)
	require.Len(t, samples, 5)
	assert.InDeltaSlice(t, []float32{2, 0, 0}, vec(samples[4]), 1e-5)

	tan := line.Tangent(0.5)
	assert.InDeltaSlice(t, []float32{1, 0, 0}, vec(tan), 1e-3)

	assert.Equal(t, mgl32.Vec3{}, CatmullRomCurve{}.Point(0.3))
}

func TestTubeGeometry_Counts(t *testing.T) {
	curve := CatmullRomCurve{Points: orbitPoints(4, 0, 16), Closed: true}
	g := TubeGeometry(curve, 32, 0.02, 8)

	assert.Equal(t, PrimitiveTriangles, g.Primitive)
	assert.Len(t, g.Vertices, 33*9)
	assert.Len(t, g.Indices, 32*8*6)
	for _, idx := range g.Indices {
		require.Less(t, int(idx), len(g.Vertices))
	}

	// every ring vertex sits radius away from the curve
	center := curve.Point(0)
	d := mgl32.Vec3(g.Vertices[3].Position).Sub(center).Len()
	assert.InDelta(t, 0.02, d, 1e-4)
}

func TestCylinderGeometry_TaperAndCaps(t *testing.T) {
	g := CylinderGeometry(0.01, 0.05, 8, 8)
	var minY, maxY float32
	for _, v := range g.Vertices {
		minY = min(minY, v.Position[1])
		maxY = max(maxY, v.Position[1])
	}
	assert.InDelta(t, -4, minY, 1e-5)
	assert.InDelta(t, 4, maxY, 1e-5)
	assert.Equal(t, 0, len(g.Indices)%3)

	top := mgl32.Vec3(g.Vertices[0].Position)
	assert.InDelta(t, 0.01, mgl32.Vec2{top.X(), top.Z()}.Len(), 1e-5)
}

func TestGridAndPlaneGeometry(t *testing.T) {
	grid := GridGeometry(50, 50, 50, 50)
	assert.Equal(t, PrimitiveLines, grid.Primitive)
	assert.Len(t, grid.Indices, 2*(51+51))

	plane := PlaneGeometry(4, 0.5)
	assert.Len(t, plane.Vertices, 4)
	assert.Equal(t, []uint32{0, 2, 1, 2, 3, 1}, plane.Indices)
	assert.InDelta(t, 2, plane.Vertices[1].Position[0], 1e-6)
	assert.InDelta(t, 0.25, plane.Vertices[1].Position[1], 1e-6)
}

func TestPolylineAndPoints(t *testing.T) {
	pts := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}
	line := PolylineGeometry(pts)
	assert.Equal(t, []uint32{0, 1, 1, 2}, line.Indices)

	cloud := PointsGeometry(pts)
	assert.Equal(t, PrimitivePoints, cloud.Primitive)
	assert.Nil(t, cloud.Indices)
	assert.Len(t, cloud.Vertices, 3)

	g := PointsGeometry(pts)
	assert.NotEqual(t, cloud.Handle, g.Handle, "every geometry gets its own handle")
	v := g.Version
	g.MarkDirty()
	assert.Equal(t, v+1, g.Version)
}
