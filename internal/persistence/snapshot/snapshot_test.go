package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
	"voxelforge.dev/internal/voxel/manager"
)

func TestChunkCaptureRestoreRoundTrip(t *testing.T) {
	pos := grid.ChunkPos{X: 2, Y: -1, Z: 3}
	src := chunk.New(pos, chunk.Block{}, chunk.FlagOpaque)

	want := map[grid.Point]chunk.Block{
		{X: 0, Y: 0, Z: 0}:    {Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 1}},
		{X: 15, Y: 15, Z: 15}: {Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 2, Rotation: 3}},
		{X: 7, Y: 3, Z: 11}:   {Transparency: chunk.Transparent, Model: chunk.BlockModel{ID: 9}},
	}
	err := src.WithAccess(func(a chunk.Access) error {
		for p, b := range want {
			if err := a.Set(p, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("populate: %v", err)
	}

	var entry ChunkV1
	err = src.WithReadAccess(func(a chunk.ReadAccess) error {
		var err error
		entry, err = CaptureChunk(pos, src.Flags(), a)
		return err
	})
	if err != nil {
		t.Fatalf("CaptureChunk: %v", err)
	}
	if entry.ChunkPos() != pos {
		t.Fatalf("captured pos = %v, want %v", entry.ChunkPos(), pos)
	}

	dst := chunk.New(pos, chunk.Block{}, 0)
	if err := dst.WithAccess(func(a chunk.Access) error { return RestoreChunk(entry, a) }); err != nil {
		t.Fatalf("RestoreChunk: %v", err)
	}

	err = dst.WithReadAccess(func(a chunk.ReadAccess) error {
		for p, b := range want {
			got, err := a.Get(p)
			if err != nil {
				return err
			}
			if got != b {
				t.Fatalf("restored %v = %v, want %v", p, got, b)
			}
		}
		// A cell never written must still read as the default.
		got, err := a.Get(grid.Point{X: 8, Y: 8, Z: 8})
		if err != nil {
			return err
		}
		if got != (chunk.Block{}) {
			t.Fatalf("untouched cell = %v, want default", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestWorldSnapshotFileRoundTrip(t *testing.T) {
	mgr := manager.NewManager(manager.Params{Policy: manager.EvictNever{}})
	share := manager.NewLoadshare()

	positions := []grid.ChunkPos{{X: 0}, {X: 1, Y: 2, Z: 3}, {X: -4, Y: 0, Z: 7}}
	for i, pos := range positions {
		ref, err := mgr.Load(pos, share, manager.LoadReasonManual)
		if err != nil {
			t.Fatalf("Load %v: %v", pos, err)
		}
		err = ref.WithAccess(func(a chunk.Access) error {
			return a.Set(grid.Point{X: int32(i), Y: 1, Z: 1}, chunk.Block{
				Transparency: chunk.Opaque,
				Model:        chunk.BlockModel{ID: uint32(100 + i)},
			})
		})
		if err != nil {
			t.Fatalf("populate %v: %v", pos, err)
		}
	}

	snap, err := Capture(mgr, "test-world", 42, chunk.Block{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(snap.Chunks) != len(positions) {
		t.Fatalf("captured %d chunks, want %d", len(snap.Chunks), len(positions))
	}

	path := filepath.Join(t.TempDir(), "world", "snap.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	loaded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if loaded.Header.WorldID != "test-world" || loaded.Seed != 42 {
		t.Fatalf("header round trip: %+v", loaded.Header)
	}

	fresh := manager.NewManager(manager.Params{Policy: manager.EvictNever{}})
	if err := Restore(fresh, loaded, manager.NewLoadshare(), manager.LoadReasonManual); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for i, pos := range positions {
		ref, err := fresh.LoadedChunk(pos)
		if err != nil {
			t.Fatalf("restored chunk %v not loaded: %v", pos, err)
		}
		err = ref.WithReadAccess(func(a chunk.ReadAccess) error {
			got, err := a.Get(grid.Point{X: int32(i), Y: 1, Z: 1})
			if err != nil {
				return err
			}
			want := chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: uint32(100 + i)}}
			if got != want {
				t.Fatalf("restored %v reads %v, want %v", pos, got, want)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("verify %v: %v", pos, err)
		}
	}
}

func TestWriteSnapshotReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.snap.zst")

	// A torn file at the final path, as a crashed writer would have left
	// before the rename step existed.
	if err := os.WriteFile(path, []byte("torn"), 0o644); err != nil {
		t.Fatalf("seed torn file: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("torn file unexpectedly readable")
	}

	snap := SnapshotV1{Header: Header{Version: 1, WorldID: "w", CreatedUnix: 7}, Seed: 9}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	loaded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot after rewrite: %v", err)
	}
	if loaded.Header.WorldID != "w" || loaded.Seed != 9 {
		t.Fatalf("round trip: %+v", loaded)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestRestoreRejectsCorruptLayer(t *testing.T) {
	entry := ChunkV1{
		Transparency: "definitely not rle",
		ModelIDs:     "",
		ModelRots:    "",
	}
	c := chunk.New(grid.ChunkPos{}, chunk.Block{}, 0)
	err := c.WithAccess(func(a chunk.Access) error { return RestoreChunk(entry, a) })
	if err == nil {
		t.Fatalf("restore of corrupt layer succeeded")
	}
}
