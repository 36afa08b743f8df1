package snapshot

import (
	"fmt"
	"time"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
	"voxelforge.dev/internal/voxel/manager"
)

// Capture snapshots every loaded chunk under the manager's structural lock,
// so the chunk set cannot shift mid-capture. Individual chunk contents are
// still read under their own locks.
func Capture(mgr *manager.Manager, worldID string, seed int64, def chunk.Block) (SnapshotV1, error) {
	snap := SnapshotV1{
		Header: Header{
			Version:     1,
			WorldID:     worldID,
			CreatedUnix: time.Now().Unix(),
		},
		Seed: seed,
		DefaultBlock: BlockV1{
			Transparency: uint8(def.Transparency),
			ModelID:      def.Model.ID,
			ModelRot:     def.Model.Rotation,
		},
	}

	var capErr error
	mgr.StructuralAccess(func(s *manager.Structural) {
		s.ForEachLoaded(func(pos grid.ChunkPos, c *chunk.Chunk) bool {
			var entry ChunkV1
			err := c.WithReadAccess(func(a chunk.ReadAccess) error {
				var err error
				entry, err = CaptureChunk(pos, c.Flags(), a)
				return err
			})
			if err != nil {
				capErr = fmt.Errorf("capture chunk %v: %w", pos, err)
				return false
			}
			snap.Chunks = append(snap.Chunks, entry)
			return true
		})
	})
	return snap, capErr
}

// Restore loads every snapshotted chunk into the manager under the given
// loadshare and fills it with the captured data. Positions already loaded
// are overwritten in place.
func Restore(mgr *manager.Manager, snap SnapshotV1, share manager.LoadshareID, reasons manager.LoadReasons) error {
	for _, entry := range snap.Chunks {
		pos := entry.ChunkPos()
		ref, err := mgr.Load(pos, share, reasons)
		if err != nil {
			ref, err = mgr.LoadedChunk(pos)
			if err != nil {
				return fmt.Errorf("restore chunk %v: %w", pos, err)
			}
		}
		if err := ref.WithAccess(func(a chunk.Access) error {
			return RestoreChunk(entry, a)
		}); err != nil {
			return fmt.Errorf("restore chunk %v: %w", pos, err)
		}
		if _, err := ref.UpdateFlags(func(chunk.Flags) chunk.Flags {
			return chunk.Flags(entry.Flags)
		}); err != nil {
			return fmt.Errorf("restore chunk flags %v: %w", pos, err)
		}
	}
	return nil
}
