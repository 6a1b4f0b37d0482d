package glowstage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbVersion   = 2
	glbChunkJSON = 0x4E4F534A
	glbChunkBIN  = 0x004E4942

	componentUnsignedByte  = 5121
	componentUnsignedShort = 5123
	componentUnsignedInt   = 5125
	componentFloat         = 5126

	modeTriangles = 4
)

var ErrInvalidGLB = errors.New("invalid GLB")

type glbHeader struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

type glbChunkHeader struct {
	ChunkLength uint32
	ChunkType   uint32
}

type gltfDoc struct {
	Scene       *int             `json:"scene"`
	Scenes      []gltfSceneDoc   `json:"scenes"`
	Nodes       []gltfNodeDoc    `json:"nodes"`
	Meshes      []gltfMeshDoc    `json:"meshes"`
	Accessors   []gltfAccessor   `json:"accessors"`
	BufferViews []gltfBufferView `json:"bufferViews"`
}

type gltfSceneDoc struct {
	Nodes []int `json:"nodes"`
}

type gltfNodeDoc struct {
	Mesh        *int      `json:"mesh"`
	Children    []int     `json:"children"`
	Matrix      []float32 `json:"matrix"`
	Translation []float32 `json:"translation"`
	Rotation    []float32 `json:"rotation"`
	Scale       []float32 `json:"scale"`
}

type gltfMeshDoc struct {
	Primitives []gltfPrimitiveDoc `json:"primitives"`
}

type gltfPrimitiveDoc struct {
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices"`
	Mode       *int           `json:"mode"`
}

type gltfAccessor struct {
	BufferView    *int   `json:"bufferView"`
	ByteOffset    int    `json:"byteOffset"`
	ComponentType int    `json:"componentType"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
}

type gltfBufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride"`
}

// MeshData is every triangle primitive of a GLB flattened into one indexed
// mesh in scene space.
type MeshData struct {
	Vertices []Vertex
	Indices  []uint32
	Min, Max mgl32.Vec3
}

type glbReader struct {
	doc *gltfDoc
	bin []byte
}

// DecodeGLB reads a binary glTF 2.0 container. Only triangle primitives with
// float POSITION are kept; missing normals are computed per face.
func DecodeGLB(data []byte) (*MeshData, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: file too small", ErrInvalidGLB)
	}
	r := bytes.NewReader(data)

	var header glbHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidGLB, err)
	}
	if header.Magic != glbMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidGLB, header.Magic)
	}
	if header.Version != glbVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidGLB, header.Version)
	}

	var jsonData, binData []byte
	for {
		var chunk glbChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: read chunk header: %v", ErrInvalidGLB, err)
		}
		if int64(chunk.ChunkLength) > int64(r.Len()) {
			return nil, fmt.Errorf("%w: chunk length %d exceeds file", ErrInvalidGLB, chunk.ChunkLength)
		}
		payload := make([]byte, chunk.ChunkLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: read chunk: %v", ErrInvalidGLB, err)
		}
		switch chunk.ChunkType {
		case glbChunkJSON:
			jsonData = payload
		case glbChunkBIN:
			binData = payload
		}
	}
	if jsonData == nil {
		return nil, fmt.Errorf("%w: missing JSON chunk", ErrInvalidGLB)
	}

	var doc gltfDoc
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse JSON: %v", ErrInvalidGLB, err)
	}

	g := &glbReader{doc: &doc, bin: binData}
	mesh := &MeshData{}
	if err := g.collect(mesh); err != nil {
		return nil, err
	}
	if len(mesh.Indices) == 0 {
		return nil, fmt.Errorf("%w: no triangle geometry", ErrInvalidGLB)
	}
	mesh.computeBounds()
	return mesh, nil
}

func (g *glbReader) collect(mesh *MeshData) error {
	var roots []int
	if len(g.doc.Scenes) > 0 {
		scene := 0
		if g.doc.Scene != nil && *g.doc.Scene < len(g.doc.Scenes) {
			scene = *g.doc.Scene
		}
		roots = g.doc.Scenes[scene].Nodes
	}

	if len(roots) == 0 {
		// no scene graph: take every mesh as is
		for i := range g.doc.Meshes {
			if err := g.appendMesh(mesh, i, mgl32.Ident4()); err != nil {
				return err
			}
		}
		return nil
	}

	visited := make(map[int]bool)
	var walk func(idx int, parent mgl32.Mat4) error
	walk = func(idx int, parent mgl32.Mat4) error {
		if idx < 0 || idx >= len(g.doc.Nodes) {
			return fmt.Errorf("%w: node %d out of range", ErrInvalidGLB, idx)
		}
		if visited[idx] {
			return fmt.Errorf("%w: node %d visited twice", ErrInvalidGLB, idx)
		}
		visited[idx] = true

		node := g.doc.Nodes[idx]
		world := parent.Mul4(node.localMatrix())
		if node.Mesh != nil {
			if err := g.appendMesh(mesh, *node.Mesh, world); err != nil {
				return err
			}
		}
		for _, child := range node.Children {
			if err := walk(child, world); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root, mgl32.Ident4()); err != nil {
			return err
		}
	}
	return nil
}

func (n gltfNodeDoc) localMatrix() mgl32.Mat4 {
	if len(n.Matrix) == 16 {
		var m mgl32.Mat4
		copy(m[:], n.Matrix)
		return m
	}
	t := mgl32.Ident4()
	if len(n.Translation) == 3 {
		t = mgl32.Translate3D(n.Translation[0], n.Translation[1], n.Translation[2])
	}
	r := mgl32.Ident4()
	if len(n.Rotation) == 4 {
		q := mgl32.Quat{W: n.Rotation[3], V: mgl32.Vec3{n.Rotation[0], n.Rotation[1], n.Rotation[2]}}
		r = q.Normalize().Mat4()
	}
	s := mgl32.Ident4()
	if len(n.Scale) == 3 {
		s = mgl32.Scale3D(n.Scale[0], n.Scale[1], n.Scale[2])
	}
	return t.Mul4(r).Mul4(s)
}

func (g *glbReader) appendMesh(mesh *MeshData, meshIdx int, world mgl32.Mat4) error {
	if meshIdx < 0 || meshIdx >= len(g.doc.Meshes) {
		return fmt.Errorf("%w: mesh %d out of range", ErrInvalidGLB, meshIdx)
	}
	normalMat := world.Mat3().Inv().Transpose()

	for pi, prim := range g.doc.Meshes[meshIdx].Primitives {
		if prim.Mode != nil && *prim.Mode != modeTriangles {
			continue
		}
		posIdx, ok := prim.Attributes["POSITION"]
		if !ok {
			continue
		}
		positions, err := g.readVec3(posIdx)
		if err != nil {
			return fmt.Errorf("mesh %d primitive %d positions: %w", meshIdx, pi, err)
		}

		var normals [][3]float32
		if nIdx, ok := prim.Attributes["NORMAL"]; ok {
			normals, err = g.readVec3(nIdx)
			if err != nil {
				return fmt.Errorf("mesh %d primitive %d normals: %w", meshIdx, pi, err)
			}
			if len(normals) != len(positions) {
				normals = nil
			}
		}

		var indices []uint32
		if prim.Indices != nil {
			indices, err = g.readIndices(*prim.Indices)
			if err != nil {
				return fmt.Errorf("mesh %d primitive %d indices: %w", meshIdx, pi, err)
			}
		} else {
			indices = make([]uint32, len(positions))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		base := uint32(len(mesh.Vertices))
		for i, p := range positions {
			v := Vertex{Position: world.Mul4x1(mgl32.Vec3(p).Vec4(1)).Vec3()}
			if normals != nil {
				n := normalMat.Mul3x1(mgl32.Vec3(normals[i]))
				if n.Len() > 0 {
					n = n.Normalize()
				}
				v.Normal = n
			}
			mesh.Vertices = append(mesh.Vertices, v)
		}
		for _, idx := range indices {
			if int(idx) >= len(positions) {
				return fmt.Errorf("%w: index %d out of range in mesh %d", ErrInvalidGLB, idx, meshIdx)
			}
		}
		usable := len(indices) - len(indices)%3
		for _, idx := range indices[:usable] {
			mesh.Indices = append(mesh.Indices, base+idx)
		}
		if normals == nil {
			computeFaceNormals(mesh.Vertices[base:], indices[:usable])
		}
	}
	return nil
}

func (g *glbReader) view(accIdx int, elemSize int) ([]byte, int, *gltfAccessor, error) {
	if accIdx < 0 || accIdx >= len(g.doc.Accessors) {
		return nil, 0, nil, fmt.Errorf("%w: accessor %d out of range", ErrInvalidGLB, accIdx)
	}
	acc := &g.doc.Accessors[accIdx]
	if acc.BufferView == nil {
		return nil, 0, nil, fmt.Errorf("%w: accessor %d has no buffer view", ErrInvalidGLB, accIdx)
	}
	if *acc.BufferView < 0 || *acc.BufferView >= len(g.doc.BufferViews) {
		return nil, 0, nil, fmt.Errorf("%w: buffer view %d out of range", ErrInvalidGLB, *acc.BufferView)
	}
	bv := g.doc.BufferViews[*acc.BufferView]
	if bv.Buffer != 0 {
		return nil, 0, nil, fmt.Errorf("%w: external buffers are not supported", ErrInvalidGLB)
	}
	if acc.Count < 0 || acc.ByteOffset < 0 || bv.ByteOffset < 0 || bv.ByteLength < 0 {
		return nil, 0, nil, fmt.Errorf("%w: accessor %d has negative count or offset", ErrInvalidGLB, accIdx)
	}
	if bv.ByteStride < 0 || (bv.ByteStride > 0 && bv.ByteStride < elemSize) {
		return nil, 0, nil, fmt.Errorf("%w: buffer view %d stride %d for %d-byte elements", ErrInvalidGLB, *acc.BufferView, bv.ByteStride, elemSize)
	}
	stride := bv.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	start := bv.ByteOffset + acc.ByteOffset
	end := start
	if acc.Count > 0 {
		end = start + (acc.Count-1)*stride + elemSize
	}
	if start < 0 || end > len(g.bin) || end > bv.ByteOffset+bv.ByteLength {
		return nil, 0, nil, fmt.Errorf("%w: accessor %d exceeds buffer", ErrInvalidGLB, accIdx)
	}
	return g.bin[start:end], stride, acc, nil
}

func (g *glbReader) readVec3(accIdx int) ([][3]float32, error) {
	data, stride, acc, err := g.view(accIdx, 12)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != componentFloat || acc.Type != "VEC3" {
		return nil, fmt.Errorf("%w: accessor %d is %s/%d, want VEC3 float", ErrInvalidGLB, accIdx, acc.Type, acc.ComponentType)
	}
	out := make([][3]float32, acc.Count)
	for i := range out {
		off := i * stride
		for c := 0; c < 3; c++ {
			bits := binary.LittleEndian.Uint32(data[off+c*4:])
			out[i][c] = math.Float32frombits(bits)
		}
	}
	return out, nil
}

func (g *glbReader) readIndices(accIdx int) ([]uint32, error) {
	if accIdx < 0 || accIdx >= len(g.doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d out of range", ErrInvalidGLB, accIdx)
	}
	var size int
	switch g.doc.Accessors[accIdx].ComponentType {
	case componentUnsignedByte:
		size = 1
	case componentUnsignedShort:
		size = 2
	case componentUnsignedInt:
		size = 4
	default:
		return nil, fmt.Errorf("%w: index component type %d", ErrInvalidGLB, g.doc.Accessors[accIdx].ComponentType)
	}
	data, stride, acc, err := g.view(accIdx, size)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, acc.Count)
	for i := range out {
		off := i * stride
		switch size {
		case 1:
			out[i] = uint32(data[off])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(data[off:]))
		case 4:
			out[i] = binary.LittleEndian.Uint32(data[off:])
		}
	}
	return out, nil
}

func computeFaceNormals(vertices []Vertex, indices []uint32) {
	acc := make([]mgl32.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		pa := mgl32.Vec3(vertices[a].Position)
		pb := mgl32.Vec3(vertices[b].Position)
		pc := mgl32.Vec3(vertices[c].Position)
		n := pb.Sub(pa).Cross(pc.Sub(pa))
		acc[a] = acc[a].Add(n)
		acc[b] = acc[b].Add(n)
		acc[c] = acc[c].Add(n)
	}
	for i, n := range acc {
		if n.Len() > 0 {
			vertices[i].Normal = n.Normalize()
		} else {
			vertices[i].Normal = [3]float32{0, 1, 0}
		}
	}
}

func (m *MeshData) computeBounds() {
	if len(m.Vertices) == 0 {
		return
	}
	m.Min = m.Vertices[0].Position
	m.Max = m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		for c := 0; c < 3; c++ {
			m.Min[c] = min(m.Min[c], v.Position[c])
			m.Max[c] = max(m.Max[c], v.Position[c])
		}
	}
}

// Geometry turns the mesh into a renderable geometry.
func (m *MeshData) Geometry() *Geometry {
	return NewGeometry(PrimitiveTriangles, m.Vertices, m.Indices)
}
