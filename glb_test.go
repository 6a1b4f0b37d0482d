package glowstage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGLB packs a glTF JSON document and a binary buffer into a GLB container.
func buildGLB(t *testing.T, doc map[string]any, bin []byte) []byte {
	t.Helper()
	js, err := json.Marshal(doc)
	require.NoError(t, err)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	for len(bin)%4 != 0 {
		bin = append(bin, 0)
	}

	var buf bytes.Buffer
	total := 12 + 8 + len(js)
	if len(bin) > 0 {
		total += 8 + len(bin)
	}
	write := func(v any) { require.NoError(t, binary.Write(&buf, binary.LittleEndian, v)) }
	write(uint32(glbMagic))
	write(uint32(glbVersion))
	write(uint32(total))
	write(uint32(len(js)))
	write(uint32(glbChunkJSON))
	buf.Write(js)
	if len(bin) > 0 {
		write(uint32(len(bin)))
		write(uint32(glbChunkBIN))
		buf.Write(bin)
	}
	return buf.Bytes()
}

func floatBytes(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// triangleGLB is one CCW triangle in the XY plane with uint16 indices.
func triangleGLB(t *testing.T, node map[string]any, indices []uint16) []byte {
	positions := floatBytes(0, 0, 0, 1, 0, 0, 0, 1, 0)
	bin := append([]byte{}, positions...)
	idxOffset := len(bin)
	for _, i := range indices {
		bin = binary.LittleEndian.AppendUint16(bin, i)
	}

	node["mesh"] = 0
	doc := map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": []int{0}}},
		"nodes":  []any{node},
		"meshes": []any{map[string]any{
			"primitives": []any{map[string]any{
				"attributes": map[string]int{"POSITION": 0},
				"indices":    1,
			}},
		}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": componentFloat, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": componentUnsignedShort, "count": len(indices), "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": len(positions)},
			map[string]any{"buffer": 0, "byteOffset": idxOffset, "byteLength": 2 * len(indices)},
		},
		"buffers": []any{map[string]any{"byteLength": len(bin)}},
	}
	return buildGLB(t, doc, bin)
}

func TestDecodeGLB_TriangleWithNodeTransform(t *testing.T) {
	data := triangleGLB(t, map[string]any{"translation": []float32{0, 1, 0}}, []uint16{0, 1, 2})

	mesh, err := DecodeGLB(data)
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)

	assert.InDeltaSlice(t, []float32{1, 1, 0}, mesh.Vertices[1].Position[:], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1, 0}, mesh.Min[:], 1e-6)
	assert.InDeltaSlice(t, []float32{1, 2, 0}, mesh.Max[:], 1e-6)

	// normals are computed from the CCW winding
	for _, v := range mesh.Vertices {
		assert.InDeltaSlice(t, []float32{0, 0, 1}, v.Normal[:], 1e-6)
	}

	g := mesh.Geometry()
	assert.Equal(t, PrimitiveTriangles, g.Primitive)
	assert.Len(t, g.Indices, 3)
}

func TestDecodeGLB_ScaleAppliesToPositions(t *testing.T) {
	data := triangleGLB(t, map[string]any{"scale": []float32{2, 2, 2}}, []uint16{0, 1, 2})
	mesh, err := DecodeGLB(data)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 2, 0}, mesh.Vertices[2].Position[:], 1e-6)
}

func TestDecodeGLB_IndexOutOfRange(t *testing.T) {
	data := triangleGLB(t, map[string]any{}, []uint16{0, 1, 7})
	_, err := DecodeGLB(data)
	assert.ErrorIs(t, err, ErrInvalidGLB)
}

func TestDecodeGLB_UnindexedMeshWithoutScene(t *testing.T) {
	bin := floatBytes(0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 1, 0)
	doc := map[string]any{
		"meshes": []any{map[string]any{
			"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": 0}}},
		}},
		"accessors":   []any{map[string]any{"bufferView": 0, "componentType": componentFloat, "count": 4, "type": "VEC3"}},
		"bufferViews": []any{map[string]any{"buffer": 0, "byteLength": len(bin)}},
	}
	mesh, err := DecodeGLB(buildGLB(t, doc, bin))
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices, "trailing vertex that does not close a triangle is dropped")
}

func TestDecodeGLB_Rejects(t *testing.T) {
	_, err := DecodeGLB([]byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidGLB)

	good := triangleGLB(t, map[string]any{}, []uint16{0, 1, 2})
	bad := append([]byte{}, good...)
	binary.LittleEndian.PutUint32(bad[0:], 0xdeadbeef)
	_, err = DecodeGLB(bad)
	assert.ErrorIs(t, err, ErrInvalidGLB)

	_, err = DecodeGLB(good[:len(good)-8])
	assert.ErrorIs(t, err, ErrInvalidGLB, "truncated BIN chunk")

	noGeometry := buildGLB(t, map[string]any{"asset": map[string]any{"version": "2.0"}}, nil)
	_, err = DecodeGLB(noGeometry)
	assert.ErrorIs(t, err, ErrInvalidGLB)

	// a non-triangle primitive alone yields no geometry
	lines := buildGLB(t, map[string]any{
		"meshes": []any{map[string]any{
			"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": 0}, "mode": 1}},
		}},
	}, nil)
	_, err = DecodeGLB(lines)
	assert.ErrorIs(t, err, ErrInvalidGLB)
}

// positionsGLB is a single unindexed triangle whose accessor and view fields
// can be overridden.
func positionsGLB(t *testing.T, accessor, bufferView map[string]any) []byte {
	bin := floatBytes(0, 0, 0, 1, 0, 0, 0, 1, 0)
	acc := map[string]any{"bufferView": 0, "componentType": componentFloat, "count": 3, "type": "VEC3"}
	bv := map[string]any{"buffer": 0, "byteLength": len(bin)}
	for k, v := range accessor {
		acc[k] = v
	}
	for k, v := range bufferView {
		bv[k] = v
	}
	doc := map[string]any{
		"meshes": []any{map[string]any{
			"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": 0}}},
		}},
		"accessors":   []any{acc},
		"bufferViews": []any{bv},
	}
	return buildGLB(t, doc, bin)
}

func TestDecodeGLB_RejectsBadLayout(t *testing.T) {
	cases := map[string][]byte{
		"negative count":        positionsGLB(t, map[string]any{"count": -1}, nil),
		"negative stride":       positionsGLB(t, nil, map[string]any{"byteStride": -12}),
		"stride under element":  positionsGLB(t, nil, map[string]any{"byteStride": 4}),
		"negative view offset":  positionsGLB(t, nil, map[string]any{"byteOffset": -4}),
		"negative accessor off": positionsGLB(t, map[string]any{"byteOffset": -8}, nil),
		"negative view length":  positionsGLB(t, nil, map[string]any{"byteLength": -1}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = DecodeGLB(data) })
			assert.ErrorIs(t, err, ErrInvalidGLB)
		})
	}

	_, err := DecodeGLB(positionsGLB(t, nil, map[string]any{"byteStride": 12}))
	assert.NoError(t, err, "explicit tight stride is fine")
}
