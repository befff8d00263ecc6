package mesh

import (
	"fmt"
	"log"

	metis "github.com/notargets/go-metis"
)

// PartitionConfig holds configuration for cell partitioning
type PartitionConfig struct {
	NumPartitions   int32
	ImbalanceFactor float32 // e.g., 1.05 for 5% imbalance
	Objective       string  // "cut" or "vol"
}

// DefaultPartitionConfig returns default partitioning configuration
func DefaultPartitionConfig(nparts int32) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions:   nparts,
		ImbalanceFactor: 1.05,
		Objective:       "vol", // minimize communication volume
	}
}

// PartitionCells assigns each cell to a rank using METIS k-way
// partitioning of the cell adjacency graph.
func PartitionCells(m *Mesh, config *PartitionConfig) ([]int, error) {
	var (
		n     = m.NumCells()
		owner = make([]int, n)
	)
	if config.NumPartitions <= 1 {
		return owner, nil
	}
	log.Printf("Partitioning %d cells into %d ranks", n, config.NumPartitions)

	xadj, adjncy := buildMetisGraph(m)

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if config.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{config.ImbalanceFactor}

	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil,
		config.NumPartitions, nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	for i := 0; i < n; i++ {
		owner[i] = int(part[i])
	}
	log.Printf("Partition objective value: %d", objval)
	return owner, nil
}

// buildMetisGraph converts cell adjacency to METIS CSR format
func buildMetisGraph(m *Mesh) (xadj, adjncy []int32) {
	n := m.NumCells()
	xadj = make([]int32, n+1)
	adjncy = []int32{}
	for i := 0; i < n; i++ {
		for _, j := range m.Adjacency[i] {
			if j != i {
				adjncy = append(adjncy, int32(j))
			}
		}
		xadj[i+1] = int32(len(adjncy))
	}
	return xadj, adjncy
}
