package mesh

import "fmt"

// NewBox builds a structured nx*ny*nz cell-centered box mesh over
// [0,lx]x[0,ly]x[0,lz] with 6-point adjacency. Synthetic scaffolding for
// demos and tests; real meshes arrive from the partitioning collaborator.
func NewBox(nx, ny, nz int, lx, ly, lz float64) *Box {
	var (
		dx, dy, dz = lx / float64(nx), ly / float64(ny), lz / float64(nz)
		n          = nx * ny * nz
	)
	b := &Box{
		Mesh: Mesh{
			Coords:    make([][3]float64, n),
			Adjacency: make([][]int, n),
		},
		Nx: nx, Ny: ny, Nz: nz,
		Lx: lx, Ly: ly, Lz: lz,
	}
	id := func(i, j, k int) int { return i + nx*(j+ny*k) }
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				c := id(i, j, k)
				b.Coords[c] = [3]float64{
					(float64(i) + 0.5) * dx,
					(float64(j) + 0.5) * dy,
					(float64(k) + 0.5) * dz,
				}
				if i > 0 {
					b.Adjacency[c] = append(b.Adjacency[c], id(i-1, j, k))
				}
				if i < nx-1 {
					b.Adjacency[c] = append(b.Adjacency[c], id(i+1, j, k))
				}
				if j > 0 {
					b.Adjacency[c] = append(b.Adjacency[c], id(i, j-1, k))
				}
				if j < ny-1 {
					b.Adjacency[c] = append(b.Adjacency[c], id(i, j+1, k))
				}
				if k > 0 {
					b.Adjacency[c] = append(b.Adjacency[c], id(i, j, k-1))
				}
				if k < nz-1 {
					b.Adjacency[c] = append(b.Adjacency[c], id(i, j, k+1))
				}
			}
		}
	}
	return b
}

// Box is a structured box mesh that can enumerate its boundary faces per
// side for periodic matching.
type Box struct {
	Mesh
	Nx, Ny, Nz int
	Lx, Ly, Lz float64
}

// BoundaryFaces returns the boundary faces of one side of the box:
// "xmin", "xmax", "ymin", "ymax", "zmin" or "zmax". Face centers sit on
// the boundary plane, offset half a cell from the adjacent cell center.
func (b *Box) BoundaryFaces(side string) []Face {
	var (
		faces []Face
		id    = func(i, j, k int) int { return i + b.Nx*(j+b.Ny*k) }
	)
	addFace := func(cell int, axis int, plane float64) {
		f := Face{Center: b.Coords[cell], Cell: cell}
		f.Center[axis] = plane
		faces = append(faces, f)
	}
	switch side {
	case "xmin", "xmax":
		i, plane := 0, 0.
		if side == "xmax" {
			i, plane = b.Nx-1, b.Lx
		}
		for k := 0; k < b.Nz; k++ {
			for j := 0; j < b.Ny; j++ {
				addFace(id(i, j, k), 0, plane)
			}
		}
	case "ymin", "ymax":
		j, plane := 0, 0.
		if side == "ymax" {
			j, plane = b.Ny-1, b.Ly
		}
		for k := 0; k < b.Nz; k++ {
			for i := 0; i < b.Nx; i++ {
				addFace(id(i, j, k), 1, plane)
			}
		}
	case "zmin", "zmax":
		k, plane := 0, 0.
		if side == "zmax" {
			k, plane = b.Nz-1, b.Lz
		}
		for j := 0; j < b.Ny; j++ {
			for i := 0; i < b.Nx; i++ {
				addFace(id(i, j, k), 2, plane)
			}
		}
	default:
		panic(fmt.Sprintf("unknown box side %q", side))
	}
	return faces
}
