// Package storage provides the interchangeable voxel containers behind the
// engine's read/write access contracts. A backend is a performance and
// memory decision only: for the same writes, every backend answers every
// read identically.
package storage

import (
	"errors"
	"fmt"

	"voxelforge.dev/internal/voxel/grid"
)

// ErrOutOfBounds reports a position outside the addressable domain of a
// storage structure. Always recoverable.
var ErrOutOfBounds = errors.New("position out of bounds")

// OutOfBounds wraps ErrOutOfBounds with the offending position.
func OutOfBounds(pos grid.Point) error {
	return fmt.Errorf("%w: %v", ErrOutOfBounds, pos)
}

// ReadAccess is the read half of the voxel access contract.
type ReadAccess[T any] interface {
	// Get returns the value at pos, or an ErrOutOfBounds-kind error when pos
	// is outside Bounds.
	Get(pos grid.Point) (T, error)
}

// WriteAccess is the write half of the voxel access contract.
type WriteAccess[T any] interface {
	// Set writes the value at pos, or returns an ErrOutOfBounds-kind error
	// when pos is outside Bounds.
	Set(pos grid.Point, data T) error
}

// HasBounds exposes the addressable domain of an access.
type HasBounds interface {
	Bounds() grid.BoundingBox
}

// Access bundles both halves of the contract with its bounds.
type Access[T any] interface {
	ReadAccess[T]
	WriteAccess[T]
	HasBounds
}
