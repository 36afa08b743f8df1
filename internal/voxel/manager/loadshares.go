package manager

// chunkLoadshares tracks which loadshares hold which reasons on one chunk,
// with a cached union. The overwhelmingly common case is a single
// loadshare, which is stored inline; the map is only allocated for chunks
// claimed by two or more.
type chunkLoadshares struct {
	single  LoadshareID
	reasons LoadReasons                 // single's reasons while many == nil
	many    map[LoadshareID]LoadReasons // nil in the single-loadshare case
	cached  LoadReasons
}

func newChunkLoadshares(share LoadshareID, reasons LoadReasons) *chunkLoadshares {
	return &chunkLoadshares{single: share, reasons: reasons, cached: reasons}
}

// union recomputes and caches the union of all reasons.
func (l *chunkLoadshares) union() LoadReasons {
	if l.many == nil {
		l.cached = l.reasons
		return l.cached
	}
	var u LoadReasons
	for _, r := range l.many {
		u = u.Union(r)
	}
	l.cached = u
	return u
}

// insert adds reasons for a loadshare, spilling to the map representation
// when a second loadshare appears.
func (l *chunkLoadshares) insert(share LoadshareID, reasons LoadReasons) {
	if l.many == nil {
		if l.single == share {
			l.reasons = l.reasons.Union(reasons)
		} else {
			l.many = map[LoadshareID]LoadReasons{
				l.single: l.reasons,
				share:    reasons,
			}
		}
	} else {
		l.many[share] = l.many[share].Union(reasons)
	}
	l.union()
}

// remove drops reasons for a loadshare, collapsing back to the inline
// representation when only one remains. Returns the new cached union.
func (l *chunkLoadshares) remove(share LoadshareID, reasons LoadReasons) LoadReasons {
	if l.many == nil {
		if l.single == share {
			l.reasons = l.reasons.Remove(reasons)
		}
		return l.union()
	}

	if r, ok := l.many[share]; ok {
		r = r.Remove(reasons)
		if r.Empty() {
			delete(l.many, share)
		} else {
			l.many[share] = r
		}
	}
	if len(l.many) == 1 {
		for share, r := range l.many {
			l.single = share
			l.reasons = r
		}
		l.many = nil
	}
	return l.union()
}

// has reports whether the loadshare still holds any reasons on the chunk.
func (l *chunkLoadshares) has(share LoadshareID) bool {
	if l.many == nil {
		return l.single == share && !l.reasons.Empty()
	}
	_, ok := l.many[share]
	return ok
}

// shares lists the loadshares currently holding reasons on the chunk.
func (l *chunkLoadshares) shareIDs() []LoadshareID {
	if l.many == nil {
		if l.reasons.Empty() {
			return nil
		}
		return []LoadshareID{l.single}
	}
	ids := make([]LoadshareID, 0, len(l.many))
	for share := range l.many {
		ids = append(ids, share)
	}
	return ids
}
