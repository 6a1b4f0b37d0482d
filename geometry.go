package glowstage

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CatmullRomCurve is a uniform Catmull-Rom spline through Points. Open curves
// extrapolate their end tangents.
type CatmullRomCurve struct {
	Points []mgl32.Vec3
	Closed bool
}

// Point returns the curve position at t in [0,1].
func (c CatmullRomCurve) Point(t float32) mgl32.Vec3 {
	l := len(c.Points)
	switch l {
	case 0:
		return mgl32.Vec3{}
	case 1:
		return c.Points[0]
	}

	segments := l - 1
	if c.Closed {
		segments = l
	}
	p := float32(segments) * t
	intPoint := int(math.Floor(float64(p)))
	weight := p - float32(intPoint)

	if c.Closed {
		intPoint = ((intPoint % l) + l) % l
	} else if intPoint >= l-1 {
		intPoint = l - 2
		weight = 1
	} else if intPoint < 0 {
		intPoint = 0
		weight = 0
	}

	var p0, p3 mgl32.Vec3
	if c.Closed || intPoint > 0 {
		p0 = c.Points[(intPoint-1+l)%l]
	} else {
		p0 = c.Points[0].Mul(2).Sub(c.Points[1])
	}
	p1 := c.Points[intPoint%l]
	p2 := c.Points[(intPoint+1)%l]
	if c.Closed || intPoint+2 < l {
		p3 = c.Points[(intPoint+2)%l]
	} else {
		p3 = c.Points[l-1].Mul(2).Sub(c.Points[l-2])
	}

	return catmullRom(p0, p1, p2, p3, weight)
}

func catmullRom(p0, p1, p2, p3 mgl32.Vec3, t float32) mgl32.Vec3 {
	t2 := t * t
	t3 := t2 * t
	a := p1.Mul(2)
	b := p2.Sub(p0).Mul(t)
	c := p0.Mul(2).Sub(p1.Mul(5)).Add(p2.Mul(4)).Sub(p3).Mul(t2)
	d := p1.Mul(3).Sub(p0).Sub(p2.Mul(3)).Add(p3).Mul(t3)
	return a.Add(b).Add(c).Add(d).Mul(0.5)
}

// Tangent returns the unit tangent at t using a central difference.
func (c CatmullRomCurve) Tangent(t float32) mgl32.Vec3 {
	const delta = 1e-4
	t1 := t - delta
	t2 := t + delta
	if !c.Closed {
		if t1 < 0 {
			t1 = 0
		}
		if t2 > 1 {
			t2 = 1
		}
	}
	d := c.Point(t2).Sub(c.Point(t1))
	if d.Len() == 0 {
		return mgl32.Vec3{0, 0, 1}
	}
	return d.Normalize()
}

// Sample returns divisions+1 evenly spaced points along the curve.
func (c CatmullRomCurve) Sample(divisions int) []mgl32.Vec3 {
	if divisions < 1 {
		divisions = 1
	}
	points := make([]mgl32.Vec3, 0, divisions+1)
	for i := 0; i <= divisions; i++ {
		points = append(points, c.Point(float32(i)/float32(divisions)))
	}
	return points
}

// TubeGeometry sweeps a circle of radius along the curve. Frames are carried by
// parallel transport so the tube does not twist on flat curves.
func TubeGeometry(curve CatmullRomCurve, tubularSegments int, radius float32, radialSegments int) *Geometry {
	if tubularSegments < 1 {
		tubularSegments = 1
	}
	if radialSegments < 3 {
		radialSegments = 3
	}

	tangents := make([]mgl32.Vec3, tubularSegments+1)
	normals := make([]mgl32.Vec3, tubularSegments+1)
	for i := range tangents {
		tangents[i] = curve.Tangent(float32(i) / float32(tubularSegments))
	}
	normals[0] = perpendicular(tangents[0])
	for i := 1; i <= tubularSegments; i++ {
		normals[i] = normals[i-1]
		axis := tangents[i-1].Cross(tangents[i])
		if axis.Len() > 1e-6 {
			axis = axis.Normalize()
			dot := mgl32.Clamp(tangents[i-1].Dot(tangents[i]), -1, 1)
			angle := float32(math.Acos(float64(dot)))
			normals[i] = mgl32.QuatRotate(angle, axis).Rotate(normals[i-1]).Normalize()
		}
	}

	vertices := make([]Vertex, 0, (tubularSegments+1)*(radialSegments+1))
	for i := 0; i <= tubularSegments; i++ {
		u := float32(i) / float32(tubularSegments)
		center := curve.Point(u)
		n := normals[i]
		b := tangents[i].Cross(n).Normalize()
		for j := 0; j <= radialSegments; j++ {
			v := float32(j) / float32(radialSegments)
			theta := float64(v) * 2 * math.Pi
			sin := float32(math.Sin(theta))
			cos := float32(-math.Cos(theta))
			dir := n.Mul(cos).Add(b.Mul(sin)).Normalize()
			pos := center.Add(dir.Mul(radius))
			vertices = append(vertices, Vertex{
				Position: pos,
				Normal:   dir,
				UV:       [2]float32{u, v},
			})
		}
	}

	indices := make([]uint32, 0, tubularSegments*radialSegments*6)
	stride := uint32(radialSegments + 1)
	for i := uint32(1); i <= uint32(tubularSegments); i++ {
		for j := uint32(1); j <= uint32(radialSegments); j++ {
			a := stride*(i-1) + (j - 1)
			b := stride*i + (j - 1)
			c := stride*i + j
			d := stride*(i-1) + j
			indices = append(indices, a, b, d, b, c, d)
		}
	}

	return NewGeometry(PrimitiveTriangles, vertices, indices)
}

func perpendicular(t mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	ax, ay, az := abs32(t.X()), abs32(t.Y()), abs32(t.Z())
	if ay <= ax && ay <= az {
		axis = mgl32.Vec3{0, 1, 0}
	} else if az <= ax && az <= ay {
		axis = mgl32.Vec3{0, 0, 1}
	}
	return t.Cross(axis).Normalize()
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// CylinderGeometry builds a capped, possibly tapered cylinder centered on the
// origin with its axis along Y.
func CylinderGeometry(radiusTop, radiusBottom, height float32, radialSegments int) *Geometry {
	if radialSegments < 3 {
		radialSegments = 3
	}
	half := height / 2
	slope := (radiusBottom - radiusTop) / height

	var vertices []Vertex
	var indices []uint32

	// side
	for row := 0; row <= 1; row++ {
		y := half - float32(row)*height
		r := radiusTop + float32(row)*(radiusBottom-radiusTop)
		for j := 0; j <= radialSegments; j++ {
			u := float32(j) / float32(radialSegments)
			theta := float64(u) * 2 * math.Pi
			sin := float32(math.Sin(theta))
			cos := float32(math.Cos(theta))
			vertices = append(vertices, Vertex{
				Position: [3]float32{r * sin, y, r * cos},
				Normal:   mgl32.Vec3{sin, slope, cos}.Normalize(),
				UV:       [2]float32{u, float32(row)},
			})
		}
	}
	stride := uint32(radialSegments + 1)
	for j := uint32(0); j < uint32(radialSegments); j++ {
		a := j
		b := stride + j
		c := stride + j + 1
		d := j + 1
		indices = append(indices, a, b, d, b, c, d)
	}

	// caps
	for _, top := range []bool{true, false} {
		y, r, ny := half, radiusTop, float32(1)
		if !top {
			y, r, ny = -half, radiusBottom, -1
		}
		center := uint32(len(vertices))
		vertices = append(vertices, Vertex{Position: [3]float32{0, y, 0}, Normal: [3]float32{0, ny, 0}, UV: [2]float32{0.5, 0.5}})
		for j := 0; j <= radialSegments; j++ {
			theta := float64(j) / float64(radialSegments) * 2 * math.Pi
			sin := float32(math.Sin(theta))
			cos := float32(math.Cos(theta))
			vertices = append(vertices, Vertex{
				Position: [3]float32{r * sin, y, r * cos},
				Normal:   [3]float32{0, ny, 0},
				UV:       [2]float32{cos*0.5 + 0.5, sin*0.5*ny + 0.5},
			})
		}
		for j := uint32(0); j < uint32(radialSegments); j++ {
			if top {
				indices = append(indices, center, center+1+j, center+2+j)
			} else {
				indices = append(indices, center, center+2+j, center+1+j)
			}
		}
	}

	return NewGeometry(PrimitiveTriangles, vertices, indices)
}

// GridGeometry is a wireframe plane in XZ centered on the origin.
func GridGeometry(width, depth float32, segmentsX, segmentsZ int) *Geometry {
	var vertices []Vertex
	var indices []uint32
	addLine := func(a, b mgl32.Vec3) {
		base := uint32(len(vertices))
		vertices = append(vertices,
			Vertex{Position: a, Normal: [3]float32{0, 1, 0}},
			Vertex{Position: b, Normal: [3]float32{0, 1, 0}},
		)
		indices = append(indices, base, base+1)
	}
	hw, hd := width/2, depth/2
	for i := 0; i <= segmentsX; i++ {
		x := -hw + width*float32(i)/float32(segmentsX)
		addLine(mgl32.Vec3{x, 0, -hd}, mgl32.Vec3{x, 0, hd})
	}
	for i := 0; i <= segmentsZ; i++ {
		z := -hd + depth*float32(i)/float32(segmentsZ)
		addLine(mgl32.Vec3{-hw, 0, z}, mgl32.Vec3{hw, 0, z})
	}
	return NewGeometry(PrimitiveLines, vertices, indices)
}

// PlaneGeometry is a quad in XY facing +Z.
func PlaneGeometry(width, height float32) *Geometry {
	hw, hh := width/2, height/2
	n := [3]float32{0, 0, 1}
	vertices := []Vertex{
		{Position: [3]float32{-hw, hh, 0}, Normal: n, UV: [2]float32{0, 0}},
		{Position: [3]float32{hw, hh, 0}, Normal: n, UV: [2]float32{1, 0}},
		{Position: [3]float32{-hw, -hh, 0}, Normal: n, UV: [2]float32{0, 1}},
		{Position: [3]float32{hw, -hh, 0}, Normal: n, UV: [2]float32{1, 1}},
	}
	return NewGeometry(PrimitiveTriangles, vertices, []uint32{0, 2, 1, 2, 3, 1})
}

// PolylineGeometry joins consecutive points with line segments.
func PolylineGeometry(points []mgl32.Vec3) *Geometry {
	vertices := make([]Vertex, len(points))
	for i, p := range points {
		vertices[i] = Vertex{Position: p}
	}
	var indices []uint32
	for i := 1; i < len(points); i++ {
		indices = append(indices, uint32(i-1), uint32(i))
	}
	return NewGeometry(PrimitiveLines, vertices, indices)
}

// PointsGeometry is an unindexed point cloud.
func PointsGeometry(points []mgl32.Vec3) *Geometry {
	vertices := make([]Vertex, len(points))
	for i, p := range points {
		vertices[i] = Vertex{Position: p}
	}
	return NewGeometry(PrimitivePoints, vertices, nil)
}
