package manager

import "errors"

var (
	// ErrOutOfBounds reports a chunk position outside the world dimensions.
	// Every manager operation validates bounds uniformly.
	ErrOutOfBounds = errors.New("chunk position out of world bounds")

	// ErrAlreadyLoaded reports a load of a position that is already loaded.
	// Mostly a warning to the caller that the operation had no effect.
	ErrAlreadyLoaded = errors.New("chunk already loaded")

	// ErrNotLoaded reports an operation on a position with no loaded chunk.
	ErrNotLoaded = errors.New("chunk not loaded")

	// ErrNoReasons reports a load with empty load reasons. Chunks without
	// load reasons belong in purgatory, so such a load is a caller bug.
	ErrNoReasons = errors.New("cannot load chunk with no load reasons")

	// ErrAlreadyPurged reports a purge of a chunk already in purgatory.
	ErrAlreadyPurged = errors.New("chunk already in purgatory")

	// ErrUnloaded reports access through a stale ChunkRef whose chunk has
	// been freed.
	ErrUnloaded = errors.New("chunk ref is stale, chunk was unloaded")

	// ErrGloballyLocked reports that the manager is under a structural lock
	// for bulk changes. Recoverable: retry later.
	ErrGloballyLocked = errors.New("chunk storage is globally locked")
)
