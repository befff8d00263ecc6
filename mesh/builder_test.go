package mesh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gohalo/transform"
)

// rowMesh is a 4x1x1 box: cells 0..3 along x with centers 0.5, 1.5, 2.5,
// 3.5 and a single translational periodicity wrapping x.
func rowMesh(t *testing.T) (*Box, *transform.Registry, []Periodicity) {
	b := NewBox(4, 1, 1, 4, 1, 1)
	rg := transform.NewRegistry()
	tid, err := rg.DefineTranslation([3]float64{4, 0, 0})
	assert.NoError(t, err)
	perios := []Periodicity{{
		Transform:   tid,
		SourceFaces: b.BoundaryFaces("xmin"),
		TargetFaces: b.BoundaryFaces("xmax"),
	}}
	return b, rg, perios
}

func TestBoxMesh(t *testing.T) {
	b := NewBox(2, 2, 1, 2, 2, 1)
	assert.Equal(t, 4, b.NumCells())
	assert.Equal(t, [3]float64{0.5, 0.5, 0.5}, b.Coords[0])
	assert.Equal(t, [3]float64{1.5, 1.5, 0.5}, b.Coords[3])
	// cell 0 is adjacent to 1 (x) and 2 (y)
	assert.ElementsMatch(t, []int{1, 2}, b.Adjacency[0])

	faces := b.BoundaryFaces("xmin")
	assert.Equal(t, 2, len(faces))
	assert.Equal(t, [3]float64{0, 0.5, 0.5}, faces[0].Center)
	assert.Equal(t, 0, faces[0].Cell)

	faces = b.BoundaryFaces("xmax")
	assert.Equal(t, [3]float64{2, 0.5, 0.5}, faces[0].Center)
	assert.Equal(t, 1, faces[0].Cell)
}

func TestBuildHalosSingleRank(t *testing.T) {
	b, rg, perios := rowMesh(t)
	halos, err := BuildHalos(&b.Mesh, []int{0, 0, 0, 0}, 1, rg, perios, 1.e-8)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(halos))

	h := halos[0]
	assert.Equal(t, 4, h.NReal)
	// one standard periodic ghost (image of cell 0 behind cell 3), one
	// extended ghost (image of cell 0's neighbor, cell 1)
	assert.Equal(t, 1, h.NGhostStd)
	assert.Equal(t, 1, h.NGhostExt)
	assert.Equal(t, 5, h.BufferLen(false))
	assert.Equal(t, 6, h.BufferLen(true))

	assert.Equal(t, []int{0, 0}, h.GhostTransforms)
	assert.Equal(t, []int{0, 1}, h.GhostSources)

	assert.Equal(t, []Couple{
		{Real: 0, Ghost: 0, Transform: 0, Extended: false},
		{Real: 1, Ghost: 1, Transform: 0, Extended: true},
	}, h.Local)
	assert.Empty(t, h.Sends)
	assert.Empty(t, h.Recvs)
}

func TestBuildHalosTwoRanks(t *testing.T) {
	b, rg, perios := rowMesh(t)
	halos, err := BuildHalos(&b.Mesh, []int{0, 0, 1, 1}, 2, rg, perios, 1.e-8)
	assert.NoError(t, err)

	// rank 0 owns cells 0,1; rank 1 owns cells 2,3.
	h0, h1 := halos[0], halos[1]
	assert.Equal(t, []int{0, 1}, h0.RealGlobals)
	assert.Equal(t, []int{2, 3}, h1.RealGlobals)

	// rank 0: parallel ghost of cell 2 (standard) and cell 3 (extended).
	assert.Equal(t, 1, h0.NGhostStd)
	assert.Equal(t, 1, h0.NGhostExt)
	assert.Equal(t, []int{-1, -1}, h0.GhostTransforms)
	assert.Equal(t, []int{2, 3}, h0.GhostSources)
	assert.Empty(t, h0.Local)

	// rank 1: standard ghosts of cell 1 (parallel) and cell 0 (periodic
	// image); extended ghosts of cell 0 (parallel) and cell 1 (periodic).
	assert.Equal(t, 2, h1.NGhostStd)
	assert.Equal(t, 2, h1.NGhostExt)
	assert.Equal(t, []int{-1, 0, -1, 0}, h1.GhostTransforms)
	assert.Equal(t, []int{1, 0, 0, 1}, h1.GhostSources)
	assert.Empty(t, h1.Local)

	// schedules: everything rank 1 needs comes from rank 0 and vice
	// versa, in matching pack order (local real indices on the send
	// side, ghost slots on the receive side).
	assert.Equal(t, 1, len(h0.Sends))
	assert.Equal(t, []PeerList{{Peer: 1, Std: []int{1, 0}, Ext: []int{0, 1}}}, h0.Sends)
	assert.Equal(t, []PeerList{{Peer: 0, Std: []int{0, 1}, Ext: []int{2, 3}}}, h1.Recvs)

	assert.Equal(t, []PeerList{{Peer: 0, Std: []int{0}, Ext: []int{1}}}, h1.Sends)
	assert.Equal(t, []PeerList{{Peer: 1, Std: []int{0}, Ext: []int{1}}}, h0.Recvs)

	// send and receive counts agree at both extents
	assert.Equal(t, h0.Sends[0].Count(false), h1.Recvs[0].Count(false))
	assert.Equal(t, h0.Sends[0].Count(true), h1.Recvs[0].Count(true))
}

func TestBuildHalosAmbiguousMatch(t *testing.T) {
	b, rg, perios := rowMesh(t)
	// duplicate target face at the same center: equidistant candidates
	perios[0].TargetFaces = append(perios[0].TargetFaces, Face{
		Center: perios[0].TargetFaces[0].Center,
		Cell:   2,
	})
	_, err := BuildHalos(&b.Mesh, []int{0, 0, 0, 0}, 1, rg, perios, 1.e-8)
	assert.ErrorIs(t, err, ErrAmbiguousMatch)
}

func TestBuildHalosNoMatch(t *testing.T) {
	b, rg, _ := rowMesh(t)
	// wrong displacement: no target face within tolerance
	tid, _ := rg.DefineTranslation([3]float64{3.5, 0, 0})
	perios := []Periodicity{{
		Transform:   tid,
		SourceFaces: b.BoundaryFaces("xmin"),
		TargetFaces: b.BoundaryFaces("xmax"),
	}}
	_, err := BuildHalos(&b.Mesh, []int{0, 0, 0, 0}, 1, rg, perios, 1.e-8)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestBuildHalosValidation(t *testing.T) {
	b, rg, perios := rowMesh(t)
	{
		_, err := BuildHalos(&b.Mesh, []int{0, 0}, 1, rg, perios, 1.e-8)
		assert.Error(t, err)
	}
	{
		_, err := BuildHalos(&b.Mesh, []int{0, 0, 0, 2}, 2, rg, perios, 1.e-8)
		assert.Error(t, err)
	}
	{
		_, err := BuildHalos(&b.Mesh, []int{0, 0, 0, 0}, 1, rg, perios, 0)
		assert.Error(t, err)
	}
}

func TestRotationalMatch(t *testing.T) {
	// two-cell 90 degree wedge about z: the outer face of cell 0 at
	// theta=0 maps onto the face of cell 1 at theta=90.
	m := &Mesh{
		Coords:    [][3]float64{{0.9, 0, 0}, {0, 0.9, 0}},
		Adjacency: [][]int{{1}, {0}},
	}
	rg := transform.NewRegistry()
	rid, err := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.Pi/2)
	assert.NoError(t, err)
	perios := []Periodicity{{
		Transform:   rid,
		SourceFaces: []Face{{Center: [3]float64{1, 0, 0}, Cell: 0}},
		TargetFaces: []Face{{Center: [3]float64{0, 1, 0}, Cell: 1}},
	}}
	halos, err := BuildHalos(m, []int{0, 0}, 1, rg, perios, 1.e-6)
	assert.NoError(t, err)
	h := halos[0]
	assert.Equal(t, 1, h.NGhostStd)
	assert.Equal(t, []Couple{
		{Real: 0, Ghost: 0, Transform: rid, Extended: false},
		{Real: 1, Ghost: 1, Transform: rid, Extended: true},
	}, h.Local)
}

func TestHaloStats(t *testing.T) {
	b, rg, perios := rowMesh(t)
	halos, err := BuildHalos(&b.Mesh, []int{0, 0, 1, 1}, 2, rg, perios, 1.e-8)
	assert.NoError(t, err)
	stats := halos[1].Stats()
	assert.Equal(t, 2, stats["real_cells"])
	assert.Equal(t, 2, stats["ghost_standard"])
	assert.Equal(t, 2, stats["ghost_extended"])
	assert.Equal(t, 4, stats["recv_entries"])
	assert.Equal(t, 1, stats["neighbor_ranks"])
}
