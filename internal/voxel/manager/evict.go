package manager

import "time"

// EvictionPolicy decides when a purgatory chunk gives up its chance of
// revival and is actually freed. Policies see one entry at a time plus the
// current purgatory size, so both age- and pressure-based strategies fit.
type EvictionPolicy interface {
	// ShouldEvict reports whether the entry should be freed. total is the
	// purgatory population at the start of the sweep.
	ShouldEvict(pos PurgatoryEntry, now time.Time, total int) bool
}

// PurgatoryEntry describes one staged-for-unload chunk to the policy.
type PurgatoryEntry struct {
	// Since is when the chunk entered purgatory.
	Since time.Time
}

// AgeSizePolicy frees purgatory chunks older than MaxAge, and everything
// once the purgatory population exceeds MaxCount. Zero fields disable the
// respective limit.
type AgeSizePolicy struct {
	MaxAge   time.Duration
	MaxCount int
}

func (p AgeSizePolicy) ShouldEvict(e PurgatoryEntry, now time.Time, total int) bool {
	if p.MaxCount > 0 && total > p.MaxCount {
		return true
	}
	if p.MaxAge > 0 && now.Sub(e.Since) >= p.MaxAge {
		return true
	}
	return false
}

// EvictNever retains purgatory chunks indefinitely; useful in tests and for
// manual purge control.
type EvictNever struct{}

func (EvictNever) ShouldEvict(PurgatoryEntry, time.Time, int) bool { return false }

// EvictImmediately frees every purgatory chunk at the next sweep.
type EvictImmediately struct{}

func (EvictImmediately) ShouldEvict(PurgatoryEntry, time.Time, int) bool { return true }
