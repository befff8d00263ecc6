// Package halo synchronizes field values on ghost cells with their real
// periodic/parallel sources: a distributed exchange engine plus the
// rank-aware rotation treatment for scalars, vectors and tensors.
package halo

import (
	"errors"
	"fmt"
	"sync"

	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/transform"
)

// ErrOutOfBounds flags a caller contract violation: a field buffer too
// small for the requested extent and stride, or an invalid stride.
var ErrOutOfBounds = errors.New("buffer out of bounds")

// Extent selects how much of the halo a sync covers.
type Extent uint8

const (
	// Standard covers only the first ghost layer.
	Standard Extent = iota
	// Extended also covers the neighborhood used for least-squares
	// gradient reconstruction.
	Extended
)

func (e Extent) extended() bool { return e == Extended }

// RotaMode governs ghost values generated by rotation transforms.
// Translation-only ghosts always receive plain copies regardless of mode.
type RotaMode uint8

const (
	// RotaCopy applies the rotation appropriate for the field's rank
	// (no-op for scalars).
	RotaCopy RotaMode = iota
	// RotaReset forces rotation ghosts to zero. Used to suppress
	// ill-defined implicit contributions when solving vector/tensor
	// systems by increments.
	RotaReset
	// RotaIgnore leaves rotation ghosts untouched; the caller fills them
	// separately, typically from reconstructed gradients.
	RotaIgnore
)

type rotGhost struct {
	slot int
	t    *transform.Transform
}

// Sync is the halo synchronization context for one rank: the transform
// registry, the rank's halo descriptor and its communicator, with the
// rotation-ghost tables precomputed. Constructed once per case by the
// solver driver and shared read-only; individual sync calls are
// collective across ranks and must be issued in the same order on every
// rank.
type Sync struct {
	Reg  *transform.Registry
	H    *mesh.Halo
	Comm comm.Communicator

	rotStd   []rotGhost // rotation ghosts in the standard section
	rotAll   []rotGhost // standard + extended
	perioStd []rotGhost // all periodic ghosts (rotation and translation)
	perioAll []rotGhost

	seq int // per-call message tag; advances identically on every rank
}

// New validates that the halo descriptor and communicator agree and
// precomputes the rotation-ghost tables.
func New(reg *transform.Registry, h *mesh.Halo, c comm.Communicator) (*Sync, error) {
	if h.Rank != c.Rank() || h.NRanks != c.Size() {
		return nil, fmt.Errorf("%w: halo built for rank %d of %d, communicator is rank %d of %d",
			comm.ErrProtocol, h.Rank, h.NRanks, c.Rank(), c.Size())
	}
	if len(h.GhostTransforms) != h.NGhost(true) {
		return nil, fmt.Errorf("%w: halo lists %d ghost transforms for %d ghost slots",
			comm.ErrProtocol, len(h.GhostTransforms), h.NGhost(true))
	}
	s := &Sync{Reg: reg, H: h, Comm: c}
	for slot, tid := range h.GhostTransforms {
		if tid < 0 {
			continue // plain parallel ghost
		}
		rg := rotGhost{slot: slot, t: reg.Get(tid)}
		s.perioAll = append(s.perioAll, rg)
		if slot < h.NGhostStd {
			s.perioStd = append(s.perioStd, rg)
		}
		if reg.IsRotation(tid) {
			s.rotAll = append(s.rotAll, rg)
			if slot < h.NGhostStd {
				s.rotStd = append(s.rotStd, rg)
			}
		}
	}
	return s, nil
}

func (s *Sync) rotation(extent Extent) []rotGhost {
	if extent.extended() {
		return s.rotAll
	}
	return s.rotStd
}

func (s *Sync) periodic(extent Extent) []rotGhost {
	if extent.extended() {
		return s.perioAll
	}
	return s.perioStd
}

func (s *Sync) checkBuffer(buf []float64, stride int, extent Extent) error {
	if stride < 1 {
		return fmt.Errorf("%w: invalid stride %d", ErrOutOfBounds, stride)
	}
	if need := s.H.BufferLen(extent.extended()) * stride; len(buf) < need {
		return fmt.Errorf("%w: buffer holds %d values, need %d (rank %d)",
			ErrOutOfBounds, len(buf), need, s.H.Rank)
	}
	return nil
}

// Exchange copies, for every couple within the requested extent, the
// stride contiguous values at the real-entity offset into the ghost
// slot: direct copies for local couples, packed non-blocking messages
// for couples crossing rank boundaries. Fully completes before
// returning; a payload size mismatch is fatal.
func (s *Sync) Exchange(buf []float64, stride int, extent Extent) error {
	if err := s.checkBuffer(buf, stride, extent); err != nil {
		return err
	}
	var (
		h   = s.H
		ext = extent.extended()
	)
	for _, c := range h.Local {
		if c.Extended && !ext {
			continue
		}
		var (
			src = c.Real * stride
			dst = (h.NReal + c.Ghost) * stride
		)
		copy(buf[dst:dst+stride], buf[src:src+stride])
	}
	if len(h.Sends) == 0 && len(h.Recvs) == 0 {
		return nil
	}

	tag := s.seq
	s.seq++

	// Post all receives, then all sends, then wait for the lot. The
	// barrier is only with respect to the neighbor ranks involved.
	var (
		wg       sync.WaitGroup
		recvBufs = make([][]float64, len(h.Recvs))
		errs     = make([]error, len(h.Recvs)+len(h.Sends))
	)
	for i := range h.Recvs {
		pl := &h.Recvs[i]
		n := pl.Count(ext)
		if n == 0 {
			continue
		}
		recvBufs[i] = make([]float64, n*stride)
		wg.Add(1)
		go func(i, peer int, rb []float64) {
			defer wg.Done()
			errs[i] = s.Comm.Recv(peer, tag, rb)
		}(i, pl.Peer, recvBufs[i])
	}
	for i := range h.Sends {
		pl := &h.Sends[i]
		idx := pl.Indices(ext)
		if len(idx) == 0 {
			continue
		}
		sb := make([]float64, len(idx)*stride)
		for j, ri := range idx {
			copy(sb[j*stride:(j+1)*stride], buf[ri*stride:ri*stride+stride])
		}
		wg.Add(1)
		go func(i, peer int, sb []float64) {
			defer wg.Done()
			errs[len(h.Recvs)+i] = s.Comm.Send(peer, tag, sb)
		}(i, pl.Peer, sb)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("halo exchange failed on rank %d (tag %d): %w", h.Rank, tag, err)
		}
	}
	for i := range h.Recvs {
		var (
			pl  = &h.Recvs[i]
			idx = pl.Indices(ext)
			rb  = recvBufs[i]
		)
		for j, slot := range idx {
			dst := (h.NReal + slot) * stride
			copy(buf[dst:dst+stride], rb[j*stride:(j+1)*stride])
		}
	}
	return nil
}

// saveRotation snapshots the rotation-ghost values so RotaIgnore can put
// them back after the exchange.
func (s *Sync) saveRotation(buf []float64, stride int, extent Extent) []float64 {
	rot := s.rotation(extent)
	saved := make([]float64, len(rot)*stride)
	for i, rg := range rot {
		off := (s.H.NReal + rg.slot) * stride
		copy(saved[i*stride:(i+1)*stride], buf[off:off+stride])
	}
	return saved
}

func (s *Sync) restoreRotation(buf []float64, stride int, extent Extent, saved []float64) {
	for i, rg := range s.rotation(extent) {
		off := (s.H.NReal + rg.slot) * stride
		copy(buf[off:off+stride], saved[i*stride:(i+1)*stride])
	}
}

// SyncScalar updates ghost values of a scalar field (or of stride
// independent scalars interleaved per entity). Rotation ghosts follow
// mode: a scalar has no direction, so RotaCopy keeps the plain copy,
// RotaReset zeroes and RotaIgnore leaves the pre-call values.
func (s *Sync) SyncScalar(v []float64, mode RotaMode, extent Extent, stride int) error {
	if err := s.checkBuffer(v, stride, extent); err != nil {
		return err
	}
	var saved []float64
	if mode == RotaIgnore {
		saved = s.saveRotation(v, stride, extent)
	}
	if err := s.Exchange(v, stride, extent); err != nil {
		return err
	}
	switch mode {
	case RotaCopy:
		// the plain copy stands
	case RotaReset:
		for _, rg := range s.rotation(extent) {
			off := (s.H.NReal + rg.slot) * stride
			for k := 0; k < stride; k++ {
				v[off+k] = 0
			}
		}
	case RotaIgnore:
		s.restoreRotation(v, stride, extent, saved)
	default:
		return fmt.Errorf("unknown rotation mode %d", mode)
	}
	return nil
}

// SyncVector updates ghost values of a vector field held as three
// component buffers. Rotation ghosts get v' = R*v under RotaCopy, zeros
// under RotaReset, and keep their pre-call values under RotaIgnore.
func (s *Sync) SyncVector(vx, vy, vz []float64, mode RotaMode, extent Extent) error {
	bufs := [3][]float64{vx, vy, vz}
	for _, b := range bufs {
		if err := s.checkBuffer(b, 1, extent); err != nil {
			return err
		}
	}
	var saved [3][]float64
	if mode == RotaIgnore {
		for i, b := range bufs {
			saved[i] = s.saveRotation(b, 1, extent)
		}
	}
	for _, b := range bufs {
		if err := s.Exchange(b, 1, extent); err != nil {
			return err
		}
	}
	switch mode {
	case RotaCopy:
		for _, rg := range s.rotation(extent) {
			i := s.H.NReal + rg.slot
			w := rg.t.RotateVector([3]float64{vx[i], vy[i], vz[i]})
			vx[i], vy[i], vz[i] = w[0], w[1], w[2]
		}
	case RotaReset:
		for _, rg := range s.rotation(extent) {
			i := s.H.NReal + rg.slot
			vx[i], vy[i], vz[i] = 0, 0, 0
		}
	case RotaIgnore:
		for i, b := range bufs {
			s.restoreRotation(b, 1, extent, saved[i])
		}
	default:
		return fmt.Errorf("unknown rotation mode %d", mode)
	}
	return nil
}

// SyncTensor updates ghost values of a rank-2 tensor held as nine
// component buffers. Rotation ghosts always get the full similarity
// transform T' = R*T*Rt; there is no mode parameter because tensor sync
// always rotates explicitly.
func (s *Sync) SyncTensor(v11, v12, v13, v21, v22, v23, v31, v32, v33 []float64, extent Extent) error {
	bufs := [9][]float64{v11, v12, v13, v21, v22, v23, v31, v32, v33}
	for _, b := range bufs {
		if err := s.checkBuffer(b, 1, extent); err != nil {
			return err
		}
	}
	for _, b := range bufs {
		if err := s.Exchange(b, 1, extent); err != nil {
			return err
		}
	}
	for _, rg := range s.rotation(extent) {
		i := s.H.NReal + rg.slot
		w := rg.t.RotateTensor([3][3]float64{
			{v11[i], v12[i], v13[i]},
			{v21[i], v22[i], v23[i]},
			{v31[i], v32[i], v33[i]},
		})
		v11[i], v12[i], v13[i] = w[0][0], w[0][1], w[0][2]
		v21[i], v22[i], v23[i] = w[1][0], w[1][1], w[1][2]
		v31[i], v32[i], v33[i] = w[2][0], w[2][1], w[2][2]
	}
	return nil
}

// SyncDiag updates ghost values of a rank-2 tensor known only by its
// diagonal: the similarity transform is computed from the
// assumed-diagonal input and only the diagonal of the result is kept,
// since the caller has chosen not to track the off-diagonal terms a
// rotation generates.
func (s *Sync) SyncDiag(v11, v22, v33 []float64, extent Extent) error {
	bufs := [3][]float64{v11, v22, v33}
	for _, b := range bufs {
		if err := s.checkBuffer(b, 1, extent); err != nil {
			return err
		}
	}
	for _, b := range bufs {
		if err := s.Exchange(b, 1, extent); err != nil {
			return err
		}
	}
	for _, rg := range s.rotation(extent) {
		i := s.H.NReal + rg.slot
		w := rg.t.RotateDiagonal([3]float64{v11[i], v22[i], v33[i]})
		v11[i], v22[i], v33[i] = w[0], w[1], w[2]
	}
	return nil
}

// SyncCoords updates ghost entity positions (x,y,z interleaved, stride
// 3): every periodic ghost, translational or rotational, gets the full
// point transform applied to its source position. Called once at setup
// to place ghost cell centers.
func (s *Sync) SyncCoords(coords []float64, extent Extent) error {
	if err := s.Exchange(coords, 3, extent); err != nil {
		return err
	}
	for _, pg := range s.periodic(extent) {
		i := (s.H.NReal + pg.slot) * 3
		p := pg.t.ApplyToPoint([3]float64{coords[i], coords[i+1], coords[i+2]})
		coords[i], coords[i+1], coords[i+2] = p[0], p[1], p[2]
	}
	return nil
}

// TransformCount reports the number of transform definitions available
// to this halo.
func (s *Sync) TransformCount() int {
	return s.Reg.Count()
}

// LocalCouples returns this rank's local couples for one transform id as
// (real index, ghost buffer index) pairs, for callers building custom
// enforcement on periodic pairs.
func (s *Sync) LocalCouples(tid int) [][2]int {
	var out [][2]int
	for _, c := range s.H.Local {
		if c.Transform == tid {
			out = append(out, [2]int{c.Real, s.H.NReal + c.Ghost})
		}
	}
	return out
}

// GhostSlots returns the buffer indices of every ghost slot generated by
// transform tid within the extent.
func (s *Sync) GhostSlots(tid int, extent Extent) []int {
	var out []int
	for slot, id := range s.H.GhostTransforms {
		if id != tid {
			continue
		}
		if slot >= s.H.NGhostStd && !extent.extended() {
			continue
		}
		out = append(out, s.H.NReal+slot)
	}
	return out
}
