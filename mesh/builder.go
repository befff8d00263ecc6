package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gohalo/transform"
)

var (
	// ErrAmbiguousMatch flags two target faces equidistant from a
	// transformed source face within tolerance: a degenerate or
	// too-coarse mesh that must be surfaced, not silently resolved.
	ErrAmbiguousMatch = errors.New("ambiguous periodic match")
	// ErrNoMatch flags a listed source face with no image among the
	// target faces within tolerance.
	ErrNoMatch = errors.New("unmatched periodic face")
)

// matchSlack is the fraction of the tolerance below which two candidate
// distances are treated as equidistant.
const matchSlack = 1.e-6

// BuildHalos derives, from mesh geometry, rank ownership and the
// periodicity definitions, one Halo per rank: ghost slot layout, local
// couples and matched send/receive schedules. Setup-time only; the
// resulting halos are read-only afterwards.
func BuildHalos(m *Mesh, owner []int, nRanks int, reg *transform.Registry,
	perios []Periodicity, tol float64) ([]*Halo, error) {

	var (
		nCells = m.NumCells()
	)
	if len(owner) != nCells {
		return nil, fmt.Errorf("owner list has %d entries for %d cells", len(owner), nCells)
	}
	if nRanks < 1 {
		return nil, fmt.Errorf("invalid rank count %d", nRanks)
	}
	if tol <= 0 || math.IsNaN(tol) {
		return nil, fmt.Errorf("invalid matching tolerance %g", tol)
	}
	for i, r := range owner {
		if r < 0 || r >= nRanks {
			return nil, fmt.Errorf("cell %d owned by rank %d, have %d ranks", i, r, nRanks)
		}
	}

	// Local numbering: real cells of each rank ordered by ascending
	// global id.
	locals := make([][]int, nRanks)
	localIdx := make([]int, nCells)
	for i := 0; i < nCells; i++ {
		localIdx[i] = len(locals[owner[i]])
		locals[owner[i]] = append(locals[owner[i]], i)
	}

	// Ghost requests per rank, keyed by (transform, source cell) so a
	// source imaged by several faces of the same periodicity gets a
	// single slot. A standard request absorbs an extended one.
	type reqKey struct {
		tid, src int
	}
	reqs := make([]map[reqKey]bool, nRanks) // value: extended only
	for r := range reqs {
		reqs[r] = make(map[reqKey]bool)
	}
	addReq := func(r, tid, src int, ext bool) {
		k := reqKey{tid, src}
		if prev, exists := reqs[r][k]; exists {
			if prev && !ext {
				reqs[r][k] = false
			}
			return
		}
		reqs[r][k] = ext
	}

	// Plain parallel halo: a rank needs ghosts for every distant cell
	// adjacent to one of its own.
	if nRanks > 1 {
		for i, nbrs := range m.Adjacency {
			for _, j := range nbrs {
				if owner[j] != owner[i] {
					addReq(owner[j], -1, i, false)
				}
			}
		}
		// Extended layer: neighbors of the standard halo cells.
		for r := 0; r < nRanks; r++ {
			var std []int
			for k, ext := range reqs[r] {
				if !ext && k.tid == -1 {
					std = append(std, k.src)
				}
			}
			for _, src := range std {
				for _, n := range m.Adjacency[src] {
					if owner[n] != r {
						addReq(r, -1, n, true)
					}
				}
			}
		}
	}

	// Periodic couples from geometric matching.
	for _, p := range perios {
		t := reg.Get(p.Transform)
		pairs, err := matchFaces(t, p.SourceFaces, p.TargetFaces, tol)
		if err != nil {
			return nil, err
		}
		for _, pr := range pairs {
			var (
				src = p.SourceFaces[pr[0]].Cell
				tgt = p.TargetFaces[pr[1]].Cell
				r   = owner[tgt]
			)
			addReq(r, p.Transform, src, false)
			for _, n := range m.Adjacency[src] {
				addReq(r, p.Transform, n, true)
			}
		}
	}

	// Allocate ghost slots in deterministic order and derive couples and
	// exchange schedules. Slot order is: standard before extended, then
	// (transform id, ascending source global id) with parallel (-1)
	// couples first. Both sides of every peer schedule are built from
	// this same ordering, so packed payloads line up without any
	// runtime negotiation.
	halos := make([]*Halo, nRanks)
	for r := 0; r < nRanks; r++ {
		halos[r] = &Halo{
			Rank:        r,
			NRanks:      nRanks,
			NReal:       len(locals[r]),
			RealGlobals: locals[r],
		}
	}
	type entry struct {
		tid, src int
		ext      bool
	}
	sendLists := make([]map[int]*PeerList, nRanks)
	recvLists := make([]map[int]*PeerList, nRanks)
	for r := 0; r < nRanks; r++ {
		sendLists[r] = make(map[int]*PeerList)
		recvLists[r] = make(map[int]*PeerList)
	}
	for r := 0; r < nRanks; r++ {
		h := halos[r]
		ordered := make([]entry, 0, len(reqs[r]))
		for k, ext := range reqs[r] {
			ordered = append(ordered, entry{k.tid, k.src, ext})
		}
		sort.Slice(ordered, func(i, j int) bool {
			a, b := ordered[i], ordered[j]
			if a.ext != b.ext {
				return !a.ext
			}
			if a.tid != b.tid {
				return a.tid < b.tid
			}
			return a.src < b.src
		})
		for slot, e := range ordered {
			h.GhostTransforms = append(h.GhostTransforms, e.tid)
			h.GhostSources = append(h.GhostSources, e.src)
			if e.ext {
				h.NGhostExt++
			} else {
				h.NGhostStd++
			}
			sr := owner[e.src]
			if sr == r {
				h.Local = append(h.Local, Couple{
					Real:      localIdx[e.src],
					Ghost:     slot,
					Transform: e.tid,
					Extended:  e.ext,
				})
				continue
			}
			send := peerListOf(sendLists[sr], r)
			recv := peerListOf(recvLists[r], sr)
			if e.ext {
				send.Ext = append(send.Ext, localIdx[e.src])
				recv.Ext = append(recv.Ext, slot)
			} else {
				send.Std = append(send.Std, localIdx[e.src])
				recv.Std = append(recv.Std, slot)
			}
		}
	}
	for r := 0; r < nRanks; r++ {
		halos[r].Sends = sortedPeerLists(sendLists[r])
		halos[r].Recvs = sortedPeerLists(recvLists[r])
	}
	return halos, nil
}

func peerListOf(lists map[int]*PeerList, peer int) *PeerList {
	pl, exists := lists[peer]
	if !exists {
		pl = &PeerList{Peer: peer}
		lists[peer] = pl
	}
	return pl
}

func sortedPeerLists(lists map[int]*PeerList) []PeerList {
	out := make([]PeerList, 0, len(lists))
	for _, pl := range lists {
		out = append(out, *pl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// matchFaces pairs every source face with the target face its transformed
// center lands on, using a spatial hash over target centers for O(n log n)
// behavior. The nearest candidate within tolerance wins; two equidistant
// candidates abort with ErrAmbiguousMatch.
func matchFaces(t *transform.Transform, src, tgt []Face, tol float64) ([][2]int, error) {
	var (
		hash  = newPointHash(tgt, 2*tol)
		pairs = make([][2]int, 0, len(src))
	)
	for i, f := range src {
		q := t.ApplyToPoint(f.Center)
		best, second, dBest, dSecond := hash.twoNearest(q)
		if best < 0 || dBest > tol {
			return nil, fmt.Errorf("%w: transform %d, source face %d (cell %d) has no target within %g",
				ErrNoMatch, t.Id, i, f.Cell, tol)
		}
		if second >= 0 && dSecond <= tol && dSecond-dBest <= matchSlack*tol {
			return nil, fmt.Errorf("%w: transform %d, source face %d (cell %d): targets %d and %d at distances %g and %g",
				ErrAmbiguousMatch, t.Id, i, f.Cell, best, second, dBest, dSecond)
		}
		pairs = append(pairs, [2]int{i, best})
	}
	return pairs, nil
}

// pointHash buckets face centers on a uniform grid; a query inspects the
// 27 cells around the query point, which covers every candidate within
// one grid spacing.
type pointHash struct {
	h     float64
	cells map[[3]int][]int
	faces []Face
}

func newPointHash(faces []Face, h float64) *pointHash {
	ph := &pointHash{
		h:     h,
		cells: make(map[[3]int][]int),
		faces: faces,
	}
	for i, f := range faces {
		k := ph.key(f.Center)
		ph.cells[k] = append(ph.cells[k], i)
	}
	return ph
}

func (ph *pointHash) key(p [3]float64) (k [3]int) {
	for i := 0; i < 3; i++ {
		k[i] = int(math.Floor(p[i] / ph.h))
	}
	return
}

// twoNearest returns the two closest candidate faces to q (indices -1
// when absent) among the 27 surrounding grid cells.
func (ph *pointHash) twoNearest(q [3]float64) (best, second int, dBest, dSecond float64) {
	best, second = -1, -1
	dBest, dSecond = math.Inf(1), math.Inf(1)
	k := ph.key(q)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			for dk := -1; dk <= 1; dk++ {
				for _, i := range ph.cells[[3]int{k[0] + di, k[1] + dj, k[2] + dk}] {
					c := ph.faces[i].Center
					var d2 float64
					for n := 0; n < 3; n++ {
						d2 += (c[n] - q[n]) * (c[n] - q[n])
					}
					d := math.Sqrt(d2)
					switch {
					case d < dBest:
						second, dSecond = best, dBest
						best, dBest = i, d
					case d < dSecond:
						second, dSecond = i, d
					}
				}
			}
		}
	}
	return
}
