package manager

import (
	"strings"

	"github.com/google/uuid"
)

// LoadReasons are bitflags describing why a chunk must stay loaded. A chunk
// whose union of reasons over all loadshares becomes empty moves to
// purgatory and is eventually freed.
type LoadReasons uint16

const (
	// LoadReasonManual marks force-loaded chunks. The engine never touches
	// this flag; whoever set it must clear it.
	LoadReasonManual LoadReasons = 1 << iota
	// LoadReasonRender keeps a chunk loaded for rendering; removed when the
	// chunk passes out of render distance.
	LoadReasonRender
	// LoadReasonCollision keeps a chunk loaded for physics; removed when
	// the chunk passes out of physics distance.
	LoadReasonCollision
)

// Has reports whether all bits of q are set.
func (r LoadReasons) Has(q LoadReasons) bool {
	return r&q == q
}

// Empty reports whether no reason bits are set.
func (r LoadReasons) Empty() bool {
	return r == 0
}

// Union returns the combined reasons.
func (r LoadReasons) Union(q LoadReasons) LoadReasons {
	return r | q
}

// Remove returns r without the bits of q.
func (r LoadReasons) Remove(q LoadReasons) LoadReasons {
	return r &^ q
}

func (r LoadReasons) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	if r.Has(LoadReasonManual) {
		parts = append(parts, "manual")
	}
	if r.Has(LoadReasonRender) {
		parts = append(parts, "render")
	}
	if r.Has(LoadReasonCollision) {
		parts = append(parts, "collision")
	}
	return strings.Join(parts, "|")
}

// LoadshareID identifies an independent subsystem (rendering, physics, a
// debug tool) holding load reasons on chunks. Loadshares only unload a
// chunk by consensus: it stays loaded until every loadshare has dropped its
// reasons.
type LoadshareID = uuid.UUID

// NewLoadshare allocates a fresh loadshare identity.
func NewLoadshare() LoadshareID {
	return uuid.New()
}
