package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRotationMatrixOrthonormality(t *testing.T) {
	rg := NewRegistry()
	cases := []struct {
		axis  [3]float64
		angle float64
	}{
		{[3]float64{0, 0, 1}, math.Pi / 2},
		{[3]float64{1, 0, 0}, math.Pi / 3},
		{[3]float64{1, 1, 1}, 1.234567},
		{[3]float64{0, 2, -1}, -math.Pi / 7},
		{[3]float64{3, -4, 12}, 2 * math.Pi / 5},
	}
	for _, c := range cases {
		id, err := rg.DefineRotation([3]float64{0, 0, 0}, c.axis, c.angle)
		assert.NoError(t, err)
		R := rg.RotationMatrix(id)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				dot := 0.
				for k := 0; k < 3; k++ {
					dot += R.At(k, i) * R.At(k, j)
				}
				want := 0.
				if i == j {
					want = 1.
				}
				assert.InDelta(t, want, dot, 1.e-10)
			}
		}
	}
}

func TestRotationSignConvention(t *testing.T) {
	// +90 degrees about z maps x-hat to y-hat (right-hand rule)
	rg := NewRegistry()
	id, err := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.Pi/2)
	assert.NoError(t, err)
	v := rg.Get(id).RotateVector([3]float64{1, 0, 0})
	assert.InDelta(t, 0, v[0], 1.e-14)
	assert.InDelta(t, 1, v[1], 1.e-14)
	assert.InDelta(t, 0, v[2], 1.e-14)
}

func TestInvalidTransforms(t *testing.T) {
	rg := NewRegistry()
	// zero axis
	{
		_, err := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 0}, 1)
		assert.ErrorIs(t, err, ErrInvalidTransform)
	}
	// non-finite angle
	{
		_, err := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.NaN())
		assert.ErrorIs(t, err, ErrInvalidTransform)
		_, err = rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.Inf(1))
		assert.ErrorIs(t, err, ErrInvalidTransform)
	}
	// non-finite displacement
	{
		_, err := rg.DefineTranslation([3]float64{1, math.Inf(-1), 0})
		assert.ErrorIs(t, err, ErrInvalidTransform)
	}
	// bad compositions
	{
		_, err := rg.Compose(nil)
		assert.ErrorIs(t, err, ErrInvalidTransform)
		_, err = rg.Compose([]int{42})
		assert.ErrorIs(t, err, ErrInvalidTransform)
	}
	assert.Equal(t, 0, rg.Count())
}

func TestPointRoundTrip(t *testing.T) {
	rg := NewRegistry()
	tid, _ := rg.DefineTranslation([3]float64{1.5, -2, 0.25})
	rid, err := rg.DefineRotation([3]float64{1, 1, 0}, [3]float64{1, 2, 3}, 0.7)
	assert.NoError(t, err)

	pts := [][3]float64{
		{0, 0, 0},
		{1, 2, 3},
		{-0.5, 4, 1.25},
	}
	for _, id := range []int{tid, rid} {
		tr := rg.Get(id)
		for _, p := range pts {
			q := tr.ApplyToPoint(p)
			back := tr.ApplyInverseToPoint(q)
			for i := 0; i < 3; i++ {
				assert.InDelta(t, p[i], back[i], 1.e-12)
			}
		}
	}
}

func TestVectorAndTensorRoundTrip(t *testing.T) {
	rg := NewRegistry()
	fwd, _ := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{1, -1, 2}, 0.9)
	rev, _ := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{1, -1, 2}, -0.9)
	var (
		tf = rg.Get(fwd)
		tr = rg.Get(rev)
	)
	// vector
	{
		v := [3]float64{0.3, -1.2, 2.5}
		back := tr.RotateVector(tf.RotateVector(v))
		for i := 0; i < 3; i++ {
			assert.InDelta(t, v[i], back[i], 1.e-12)
		}
	}
	// tensor
	{
		T := [3][3]float64{
			{1, 2, 3},
			{2, 5, -1},
			{3, -1, 4},
		}
		back := tr.RotateTensor(tf.RotateTensor(T))
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				assert.InDelta(t, T[i][j], back[i][j], 1.e-12)
			}
		}
	}
}

func TestRotateTensorSymmetry(t *testing.T) {
	rg := NewRegistry()
	id, _ := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{1, 1, 0}, 1.1)
	T := [3][3]float64{
		{2, 0.5, -1},
		{0.5, 3, 0.25},
		{-1, 0.25, 7},
	}
	R := rg.Get(id).RotateTensor(T)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, R[i][j], R[j][i], 1.e-12)
		}
	}
}

func TestRotateDiagonal(t *testing.T) {
	rg := NewRegistry()
	id, _ := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.Pi/2)
	tr := rg.Get(id)
	// isotropic diagonal is invariant under any rotation
	{
		d := tr.RotateDiagonal([3]float64{5, 5, 5})
		for i := 0; i < 3; i++ {
			assert.InDelta(t, 5, d[i], 1.e-12)
		}
	}
	// a 90 degree rotation about z swaps the xx and yy entries
	{
		d := tr.RotateDiagonal([3]float64{1, 2, 3})
		assert.InDelta(t, 2, d[0], 1.e-12)
		assert.InDelta(t, 1, d[1], 1.e-12)
		assert.InDelta(t, 3, d[2], 1.e-12)
	}
}

func TestCompose(t *testing.T) {
	rg := NewRegistry()
	// two translations collapse to their sum
	{
		a, _ := rg.DefineTranslation([3]float64{1, 0, 0})
		b, _ := rg.DefineTranslation([3]float64{0, 2, 0})
		cid, err := rg.Compose([]int{a, b})
		assert.NoError(t, err)
		ct := rg.Get(cid)
		assert.Equal(t, Translation, ct.Kind)
		assert.False(t, rg.IsRotation(cid))
		q := ct.ApplyToPoint([3]float64{0.5, 0.5, 0.5})
		assert.InDelta(t, 1.5, q[0], 1.e-14)
		assert.InDelta(t, 2.5, q[1], 1.e-14)
		assert.InDelta(t, 0.5, q[2], 1.e-14)
	}
	// rotation then translation: composite equals sequential application
	{
		r, _ := rg.DefineRotation([3]float64{1, 0, 0}, [3]float64{0, 0, 1}, math.Pi/2)
		d, _ := rg.DefineTranslation([3]float64{0, 0, 3})
		cid, err := rg.Compose([]int{r, d})
		assert.NoError(t, err)
		ct := rg.Get(cid)
		assert.Equal(t, Mixed, ct.Kind)
		assert.True(t, rg.IsRotation(cid))

		p := [3]float64{2, 1, -1}
		want := rg.Get(d).ApplyToPoint(rg.Get(r).ApplyToPoint(p))
		got := ct.ApplyToPoint(p)
		for i := 0; i < 3; i++ {
			assert.InDelta(t, want[i], got[i], 1.e-12)
		}
	}
	// a rotation composed with its reverse is the identity
	{
		r, _ := rg.DefineRotation([3]float64{0, 1, 0}, [3]float64{1, 2, -1}, 0.6)
		rrev, _ := rg.DefineRotation([3]float64{0, 1, 0}, [3]float64{1, 2, -1}, -0.6)
		cid, err := rg.Compose([]int{r, rrev})
		assert.NoError(t, err)
		assert.Equal(t, Translation, rg.Get(cid).Kind)
		p := [3]float64{4, -3, 0.5}
		q := rg.Get(cid).ApplyToPoint(p)
		for i := 0; i < 3; i++ {
			assert.InDelta(t, p[i], q[i], 1.e-12)
		}
	}
	// composite rotation matrix is the product of the constituents
	{
		r1, _ := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.Pi/4)
		r2, _ := rg.DefineRotation([3]float64{0, 0, 0}, [3]float64{0, 0, 1}, math.Pi/4)
		cid, _ := rg.Compose([]int{r1, r2})
		v := rg.Get(cid).RotateVector([3]float64{1, 0, 0})
		assert.InDelta(t, 0, v[0], 1.e-12)
		assert.InDelta(t, 1, v[1], 1.e-12)
	}
}

func TestGetPanicsOnBadId(t *testing.T) {
	rg := NewRegistry()
	assert.Panics(t, func() { rg.Get(0) })
}
