package kernel

import (
	"errors"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square returns two triangles sharing the diagonal of the unit square,
// given as a soup with the shared vertices duplicated.
func square() []v3.Vec {
	return []v3.Vec{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1},
		{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
	}
}

func TestMeshCounts(t *testing.T) {
	tests := []struct {
		name      string
		mesh      *Mesh
		verts     int
		triangles int
		empty     bool
	}{
		{"nil", nil, 0, 0, true},
		{"zero", &Mesh{}, 0, 0, true},
		{"vertices only", &Mesh{V: []v3.Vec{{}}}, 1, 0, true},
		{"one triangle", &Mesh{V: []v3.Vec{{}, {X: 1}, {Y: 1}}, F: [][3]int{{0, 1, 2}}}, 3, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, tt.mesh.IsEmpty())
			if tt.mesh == nil {
				return
			}
			assert.Equal(t, tt.verts, tt.mesh.VertexCount())
			assert.Equal(t, tt.triangles, tt.mesh.TriangleCount())
		})
	}
}

func TestFromSoupWelds(t *testing.T) {
	m, err := FromSoup(square(), DefaultWeldEpsilon)
	require.NoError(t, err)
	assert.Equal(t, 4, m.VertexCount())
	assert.Equal(t, 2, m.TriangleCount())
	// The shared diagonal maps to the same vertex ids in both faces.
	assert.Equal(t, m.F[0][0], m.F[1][0])
	assert.Equal(t, m.F[0][2], m.F[1][1])
}

func TestWeldWithinEpsilon(t *testing.T) {
	soup := square()
	soup[3] = v3.Vec{X: 5e-5}
	m, err := FromSoup(soup, DefaultWeldEpsilon)
	require.NoError(t, err)
	assert.Equal(t, 4, m.VertexCount())

	// Exact-only welding keeps the nudged vertex apart.
	m, err = FromSoup(soup, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, m.VertexCount())
}

func TestNewMeshRejectsBadIndex(t *testing.T) {
	_, err := NewMesh([]v3.Vec{{}, {X: 1}}, [][3]int{{0, 1, 2}}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFaceIndex))
}

func TestFaceNormalAndBounds(t *testing.T) {
	m, err := FromSoup(square(), 0)
	require.NoError(t, err)
	n := m.FaceNormal(0)
	assert.Equal(t, v3.Vec{Z: 1}, n)

	bb := m.BoundingBox()
	assert.Equal(t, v3.Vec{}, bb.Min)
	assert.Equal(t, v3.Vec{X: 1, Y: 1}, bb.Max)
	assert.Equal(t, 0.0, m.GroundLevel())
}

func TestDropDegenerate(t *testing.T) {
	m := &Mesh{
		V: []v3.Vec{{}, {X: 1}, {Y: 1}},
		F: [][3]int{{0, 1, 2}, {0, 0, 1}, {2, 1, 2}},
	}
	assert.Equal(t, 2, m.DropDegenerate())
	assert.Equal(t, [][3]int{{0, 1, 2}}, m.F)
}

func TestValidate(t *testing.T) {
	m := &Mesh{
		V: []v3.Vec{{}, {X: 1}, {Y: 1}, {X: 2}, {X: 9, Y: 9}},
		F: [][3]int{
			{0, 1, 2}, // fine
			{0, 0, 1}, // repeats a vertex
			{0, 1, 3}, // colinear
			{0, 1, 7}, // out of range
		},
	}
	r := m.Validate()
	assert.False(t, r.OK())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "FACE_INDEX", r.Errors[0].Code)
	assert.Equal(t, 3, r.Errors[0].Face)
	assert.Contains(t, r.Errors[0].Error(), "face 3")

	codes := map[string]int{}
	for _, w := range r.Warnings {
		codes[w.Code]++
	}
	assert.Equal(t, 1, codes["DEGENERATE_FACE"])
	assert.Equal(t, 1, codes["ZERO_AREA_FACE"])
	assert.Equal(t, 1, codes["UNREFERENCED_VERTEX"])
}
