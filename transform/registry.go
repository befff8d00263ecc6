// Package transform defines the rigid-body periodicity transforms
// (translations, rotations and their compositions) relating real cells to
// their periodic ghost images.
package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidTransform flags a periodicity definition that cannot form a
// rigid-body transform: zero rotation axis, non-finite angle or
// displacement.
var ErrInvalidTransform = errors.New("invalid transform")

const (
	// orthoTol bounds ||Rt*R - I||_max for every stored rotation matrix
	orthoTol = 1.e-10
	// identTol below which a rotation or translation part is treated as absent
	identTol = 1.e-12
)

type Kind uint8

const (
	Translation Kind = iota
	Rotation
	Mixed // composite with both a rotation and a translation part
)

func (k Kind) String() string {
	switch k {
	case Translation:
		return "translation"
	case Rotation:
		return "rotation"
	case Mixed:
		return "mixed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Transform is one periodicity relation. The matrix R is built and
// verified orthonormal once at definition time; apply-time code never
// normalizes.
type Transform struct {
	Id           int
	Kind         Kind
	Displacement [3]float64
	Center       [3]float64 // rotation center, zero for translations and composites
	Axis         [3]float64 // unit rotation axis, zero for translations
	Angle        float64    // radians, counterclockwise about Axis (right-hand rule)
	R            *mat.Dense // 3x3 orthonormal, identity for pure translations
	Rinv         *mat.Dense // transpose of R
	Components   []int      // constituent ids, non-nil only for composites
}

// ApplyToPoint maps a real entity position to its periodic image:
// x' = R*(x - c) + c + d.
func (t *Transform) ApplyToPoint(p [3]float64) (q [3]float64) {
	for i := 0; i < 3; i++ {
		q[i] = t.Center[i] + t.Displacement[i]
		for j := 0; j < 3; j++ {
			q[i] += t.R.At(i, j) * (p[j] - t.Center[j])
		}
	}
	return
}

// ApplyInverseToPoint maps a ghost position back to its real source:
// x = Rt*(x' - c - d) + c.
func (t *Transform) ApplyInverseToPoint(q [3]float64) (p [3]float64) {
	for i := 0; i < 3; i++ {
		p[i] = t.Center[i]
		for j := 0; j < 3; j++ {
			p[i] += t.Rinv.At(i, j) * (q[j] - t.Center[j] - t.Displacement[j])
		}
	}
	return
}

// RotateVector applies the rotation part only: v' = R*v.
func (t *Transform) RotateVector(v [3]float64) (w [3]float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			w[i] += t.R.At(i, j) * v[j]
		}
	}
	return
}

// RotateTensor applies the similarity transform T' = R*T*Rt.
func (t *Transform) RotateTensor(v [3][3]float64) (w [3][3]float64) {
	var (
		tm  = mat.NewDense(3, 3, []float64{
			v[0][0], v[0][1], v[0][2],
			v[1][0], v[1][1], v[1][2],
			v[2][0], v[2][1], v[2][2],
		})
		tmp, res mat.Dense
	)
	tmp.Mul(t.R, tm)
	res.Mul(&tmp, t.R.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			w[i][j] = res.At(i, j)
		}
	}
	return
}

// RotateDiagonal rotates a tensor known only by its diagonal: the full
// similarity transform is computed from the assumed-diagonal input and
// the off-diagonal terms the rotation generates are discarded.
func (t *Transform) RotateDiagonal(d [3]float64) (w [3]float64) {
	full := t.RotateTensor([3][3]float64{
		{d[0], 0, 0},
		{0, d[1], 0},
		{0, 0, d[2]},
	})
	w[0], w[1], w[2] = full[0][0], full[1][1], full[2][2]
	return
}

// Registry stores the periodicity transforms defined for a case. It is
// built once at setup and read-only afterwards.
type Registry struct {
	transforms []*Transform
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (rg *Registry) Count() int {
	return len(rg.transforms)
}

// Get panics on an unknown id: transform ids come from this registry, so
// a bad one is a programming error, not a configuration error.
func (rg *Registry) Get(id int) *Transform {
	if id < 0 || id >= len(rg.transforms) {
		panic(fmt.Sprintf("transform id %d out of range [0,%d)", id, len(rg.transforms)))
	}
	return rg.transforms[id]
}

// IsRotation reports whether the transform has a rotation part. Mixed
// composites count as rotations for halo treatment purposes.
func (rg *Registry) IsRotation(id int) bool {
	return rg.Get(id).Kind != Translation
}

func (rg *Registry) RotationMatrix(id int) mat.Matrix {
	return rg.Get(id).R
}

// DefineTranslation registers a translation periodicity and returns its id.
func (rg *Registry) DefineTranslation(displacement [3]float64) (id int, err error) {
	for _, v := range displacement {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return -1, fmt.Errorf("%w: non-finite displacement %v", ErrInvalidTransform, displacement)
		}
	}
	t := &Transform{
		Id:           len(rg.transforms),
		Kind:         Translation,
		Displacement: displacement,
		R:            identity(),
		Rinv:         identity(),
	}
	rg.transforms = append(rg.transforms, t)
	return t.Id, nil
}

// DefineRotation registers a rotation periodicity about an axis through
// center. The angle is in radians, counterclockwise about the axis viewed
// from its tip, so a +90 degree rotation about z maps (1,0,0) to (0,1,0).
func (rg *Registry) DefineRotation(center, axis [3]float64, angle float64) (id int, err error) {
	var (
		norm = math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return -1, fmt.Errorf("%w: rotation axis %v", ErrInvalidTransform, axis)
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return -1, fmt.Errorf("%w: rotation angle %v", ErrInvalidTransform, angle)
	}
	for _, v := range center {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return -1, fmt.Errorf("%w: rotation center %v", ErrInvalidTransform, center)
		}
	}
	unit := [3]float64{axis[0] / norm, axis[1] / norm, axis[2] / norm}
	R := rodrigues(unit, angle)
	if err = checkOrthonormal(R); err != nil {
		return -1, err
	}
	var Rinv mat.Dense
	Rinv.CloneFrom(R.T())
	t := &Transform{
		Id:     len(rg.transforms),
		Kind:   Rotation,
		Center: center,
		Axis:   unit,
		Angle:  angle,
		R:      R,
		Rinv:   &Rinv,
	}
	rg.transforms = append(rg.transforms, t)
	return t.Id, nil
}

// Compose registers the composition of previously defined transforms,
// applied in list order: each constituent maps x to Ri*(x-ci)+ci+di, and
// the composite is the resulting net affine transform. Used for
// multi-level periodicity where a ghost is the image of a real cell under
// a chain of transforms.
func (rg *Registry) Compose(ids []int) (id int, err error) {
	if len(ids) == 0 {
		return -1, fmt.Errorf("%w: empty composition", ErrInvalidTransform)
	}
	var (
		A = identity()
		b [3]float64
	)
	for _, cid := range ids {
		if cid < 0 || cid >= len(rg.transforms) {
			return -1, fmt.Errorf("%w: unknown constituent id %d", ErrInvalidTransform, cid)
		}
		t := rg.transforms[cid]
		// step offset: c + d - R*c
		var off [3]float64
		for i := 0; i < 3; i++ {
			off[i] = t.Center[i] + t.Displacement[i]
			for j := 0; j < 3; j++ {
				off[i] -= t.R.At(i, j) * t.Center[j]
			}
		}
		// accumulate: A <- R*A, b <- R*b + off
		var nb [3]float64
		for i := 0; i < 3; i++ {
			nb[i] = off[i]
			for j := 0; j < 3; j++ {
				nb[i] += t.R.At(i, j) * b[j]
			}
		}
		b = nb
		var nA mat.Dense
		nA.Mul(t.R, A)
		A.CloneFrom(&nA)
	}
	if err = checkOrthonormal(A); err != nil {
		return -1, err
	}
	var Ainv mat.Dense
	Ainv.CloneFrom(A.T())
	comps := make([]int, len(ids))
	copy(comps, ids)
	t := &Transform{
		Id:           len(rg.transforms),
		Kind:         compositeKind(A, b),
		Displacement: b,
		R:            A,
		Rinv:         &Ainv,
		Components:   comps,
	}
	rg.transforms = append(rg.transforms, t)
	return t.Id, nil
}

func compositeKind(A *mat.Dense, b [3]float64) Kind {
	var (
		hasRot, hasTrans bool
	)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.
			if i == j {
				want = 1.
			}
			if math.Abs(A.At(i, j)-want) > identTol {
				hasRot = true
			}
		}
		if math.Abs(b[i]) > identTol {
			hasTrans = true
		}
	}
	switch {
	case hasRot && hasTrans:
		return Mixed
	case hasRot:
		return Rotation
	default:
		return Translation
	}
}

func identity() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// rodrigues builds the rotation matrix for a unit axis k and angle theta:
// R = cos(theta)*I + sin(theta)*[k]x + (1-cos(theta))*k*kt.
func rodrigues(k [3]float64, theta float64) *mat.Dense {
	var (
		c  = math.Cos(theta)
		s  = math.Sin(theta)
		c1 = 1 - c
	)
	return mat.NewDense(3, 3, []float64{
		c + c1*k[0]*k[0], c1*k[0]*k[1] - s*k[2], c1*k[0]*k[2] + s*k[1],
		c1*k[1]*k[0] + s*k[2], c + c1*k[1]*k[1], c1*k[1]*k[2] - s*k[0],
		c1*k[2]*k[0] - s*k[1], c1*k[2]*k[1] + s*k[0], c + c1*k[2]*k[2],
	})
}

func checkOrthonormal(R *mat.Dense) error {
	var rtr mat.Dense
	rtr.Mul(R.T(), R)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.
			if i == j {
				want = 1.
			}
			if math.Abs(rtr.At(i, j)-want) > orthoTol {
				return fmt.Errorf("%w: rotation matrix not orthonormal, |RtR-I|[%d][%d] = %g",
					ErrInvalidTransform, i, j, math.Abs(rtr.At(i, j)-want))
			}
		}
	}
	return nil
}
