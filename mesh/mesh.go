// Package mesh holds the minimal mesh connectivity consumed by the halo
// machinery and builds, from transform definitions and geometry, the
// per-rank periodic couple lists and send/receive schedules.
package mesh

// Mesh is the connectivity the couple builder needs: cell centers for
// geometric matching and cell-to-cell adjacency for the parallel halo and
// the extended (least-squares reconstruction) neighborhood.
type Mesh struct {
	Coords    [][3]float64
	Adjacency [][]int
}

func (m *Mesh) NumCells() int {
	return len(m.Coords)
}

// Face is a boundary face candidate for periodic matching: its center is
// what gets transformed and matched, its adjacent cell is what gets
// coupled.
type Face struct {
	Center [3]float64
	Cell   int // global index of the adjacent cell
}

// Periodicity pairs the two boundary face sets related by one transform:
// applying the transform to every source face center must reproduce a
// target face center within the matching tolerance.
type Periodicity struct {
	Transform   int
	SourceFaces []Face
	TargetFaces []Face
}
