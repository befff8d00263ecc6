package mesh

// Couple relates one ghost slot on this rank to its real source cell.
// For local couples the source is a local real index; couples whose
// source lives on another rank appear in the Sends/Recvs schedules
// instead.
type Couple struct {
	Real      int  // local real cell index
	Ghost     int  // ghost slot; buffer index is NReal + Ghost
	Transform int  // transform registry id, -1 for a plain parallel couple
	Extended  bool // belongs to the extended neighborhood only
}

// PeerList is one side of the exchange schedule with a neighbor rank.
// For sends the indices are local real cell indices in pack order; for
// receives they are ghost slots in the matching unpack order. Standard
// entries always precede extended ones.
type PeerList struct {
	Peer int
	Std  []int
	Ext  []int
}

// Count returns the number of entries exchanged at the given extent.
func (pl *PeerList) Count(extended bool) int {
	if extended {
		return len(pl.Std) + len(pl.Ext)
	}
	return len(pl.Std)
}

// Indices returns the pack/unpack order at the given extent: standard
// entries first, then extended.
func (pl *PeerList) Indices(extended bool) []int {
	if !extended {
		return pl.Std
	}
	idx := make([]int, 0, len(pl.Std)+len(pl.Ext))
	idx = append(idx, pl.Std...)
	idx = append(idx, pl.Ext...)
	return idx
}

// Halo is the per-rank halo descriptor: ghost slot layout, local couples
// and the deterministic exchange schedules with every neighbor rank.
// Built once at setup and read-only afterwards.
type Halo struct {
	Rank   int
	NRanks int
	NReal  int

	// Ghost slots: standard slots occupy [0, NGhostStd), extended slots
	// [NGhostStd, NGhostStd+NGhostExt).
	NGhostStd int
	NGhostExt int

	RealGlobals     []int // global cell id per local real index, ascending
	GhostTransforms []int // per ghost slot: transform id or -1
	GhostSources    []int // per ghost slot: global id of the source cell

	Local []Couple
	Sends []PeerList // sorted by Peer
	Recvs []PeerList // sorted by Peer
}

func (h *Halo) NGhost(extended bool) int {
	if extended {
		return h.NGhostStd + h.NGhostExt
	}
	return h.NGhostStd
}

// BufferLen is the entity count a field buffer must cover at the given
// extent (stride 1).
func (h *Halo) BufferLen(extended bool) int {
	return h.NReal + h.NGhost(extended)
}

// Stats summarizes the halo for diagnostics.
func (h *Halo) Stats() map[string]int {
	var nSend, nRecv int
	for i := range h.Sends {
		nSend += h.Sends[i].Count(true)
	}
	for i := range h.Recvs {
		nRecv += h.Recvs[i].Count(true)
	}
	return map[string]int{
		"real_cells":     h.NReal,
		"ghost_standard": h.NGhostStd,
		"ghost_extended": h.NGhostExt,
		"local_couples":  len(h.Local),
		"send_entries":   nSend,
		"recv_entries":   nRecv,
		"neighbor_ranks": len(h.Recvs),
	}
}
