package manager

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(Params{Policy: EvictNever{}})
}

func TestLoadAndReadBack(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 1, Y: 2, Z: 3}

	ref, err := m.Load(pos, share, LoadReasonRender)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !m.IsLoaded(pos) {
		t.Fatalf("chunk not reported loaded after Load")
	}
	if m.LoadedCount() != 1 {
		t.Fatalf("LoadedCount = %d, want 1", m.LoadedCount())
	}

	flags, err := ref.Flags()
	if err != nil {
		t.Fatalf("Flags: %v", err)
	}
	if !flags.Has(chunk.FlagPrimordial) {
		t.Fatalf("fresh chunk flags = %v, want primordial set", flags)
	}

	want := chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 9}}
	err = ref.WithAccess(func(a chunk.Access) error {
		return a.Set(grid.Point{X: 4, Y: 5, Z: 6}, want)
	})
	if err != nil {
		t.Fatalf("WithAccess: %v", err)
	}

	err = ref.WithReadAccess(func(a chunk.ReadAccess) error {
		got, err := a.Get(grid.Point{X: 4, Y: 5, Z: 6})
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("read back %v, want %v", got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithReadAccess: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 0, Y: 0, Z: 0}

	if _, err := m.Load(pos, share, 0); !errors.Is(err, ErrNoReasons) {
		t.Fatalf("Load with no reasons: %v, want ErrNoReasons", err)
	}
	if _, err := m.Load(grid.ChunkPos{Y: WorldVerticalMax}, share, LoadReasonManual); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Load above world: %v, want ErrOutOfBounds", err)
	}
	if _, err := m.Load(grid.ChunkPos{X: WorldHorizontalMin - 1}, share, LoadReasonManual); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Load west of world: %v, want ErrOutOfBounds", err)
	}

	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := m.Load(pos, share, LoadReasonRender); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second Load: %v, want ErrAlreadyLoaded", err)
	}
}

func TestReasonUnionAcrossLoadshares(t *testing.T) {
	m := newTestManager(t)
	render := NewLoadshare()
	physics := NewLoadshare()
	pos := grid.ChunkPos{X: 7, Y: 0, Z: -7}

	if _, err := m.Load(pos, render, LoadReasonRender); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.AddReasons(pos, physics, LoadReasonCollision); err != nil {
		t.Fatalf("AddReasons: %v", err)
	}

	union, err := m.CachedReasons(pos)
	if err != nil {
		t.Fatalf("CachedReasons: %v", err)
	}
	if union != LoadReasonRender|LoadReasonCollision {
		t.Fatalf("union = %v, want render|collision", union)
	}

	// Dropping one loadshare's reasons must not unload the chunk.
	if err := m.RemoveReasons(pos, render, LoadReasonRender); err != nil {
		t.Fatalf("RemoveReasons: %v", err)
	}
	if !m.IsLoaded(pos) {
		t.Fatalf("chunk unloaded while another loadshare still holds reasons")
	}

	// Dropping the last reason moves it to purgatory.
	if err := m.RemoveReasons(pos, physics, LoadReasonCollision); err != nil {
		t.Fatalf("RemoveReasons: %v", err)
	}
	if m.IsLoaded(pos) {
		t.Fatalf("chunk still loaded with no reasons left")
	}
	if m.PurgatoryCount() != 1 {
		t.Fatalf("PurgatoryCount = %d, want 1", m.PurgatoryCount())
	}
}

func TestPurgatoryRevivalKeepsData(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: -3, Y: 1, Z: 12}
	p := grid.Point{X: 1, Y: 2, Z: 3}
	want := chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 42}}

	ref, err := m.Load(pos, share, LoadReasonManual)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := ref.WithAccess(func(a chunk.Access) error { return a.Set(p, want) }); err != nil {
		t.Fatalf("WithAccess: %v", err)
	}

	if err := m.RemoveReasons(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("RemoveReasons: %v", err)
	}
	if _, err := m.LoadedChunk(pos); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("LoadedChunk of purgatory chunk: %v, want ErrNotLoaded", err)
	}

	// The old ref still resolves while the chunk sits in purgatory.
	if !ref.Valid() {
		t.Fatalf("ref died while chunk is in purgatory")
	}

	revived, err := m.Load(pos, share, LoadReasonRender)
	if err != nil {
		t.Fatalf("reviving Load: %v", err)
	}
	err = revived.WithReadAccess(func(a chunk.ReadAccess) error {
		got, err := a.Get(p)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("revived chunk reads %v, want %v", got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read after revival: %v", err)
	}

	// And the pre-purgatory ref is still the same chunk.
	if !ref.Valid() {
		t.Fatalf("ref died across a purgatory round trip")
	}
}

func TestEvictionFreesAndStalesRefs(t *testing.T) {
	m := NewManager(Params{Policy: EvictImmediately{}})
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 5, Y: 5, Z: 5}

	ref, err := m.Load(pos, share, LoadReasonManual)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Purge(pos); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n := m.Sweep(time.Now()); n != 1 {
		t.Fatalf("Sweep freed %d chunks, want 1", n)
	}
	if m.PurgatoryCount() != 0 {
		t.Fatalf("PurgatoryCount = %d after sweep, want 0", m.PurgatoryCount())
	}

	if err := ref.WithReadAccess(func(chunk.ReadAccess) error { return nil }); !errors.Is(err, ErrUnloaded) {
		t.Fatalf("stale ref access: %v, want ErrUnloaded", err)
	}

	// Reloading the position creates a new chunk; the old ref stays dead.
	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ref.Valid() {
		t.Fatalf("ref to freed chunk revalidated against its replacement")
	}
}

func TestAgeSizePolicySweep(t *testing.T) {
	m := NewManager(Params{Policy: AgeSizePolicy{MaxAge: time.Minute}})
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 1, Y: 1, Z: 1}

	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Purge(pos); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	if n := m.Sweep(time.Now()); n != 0 {
		t.Fatalf("young purgatory entry swept: %d", n)
	}
	if n := m.Sweep(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("old purgatory entry not swept: %d", n)
	}
}

func TestPurgeErrors(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 2, Y: 0, Z: 2}

	if err := m.Purge(pos); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("Purge of unloaded: %v, want ErrNotLoaded", err)
	}
	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Purge(pos); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if err := m.Purge(pos); !errors.Is(err, ErrAlreadyPurged) {
		t.Fatalf("double Purge: %v, want ErrAlreadyPurged", err)
	}
}

func TestUnloadLoadshare(t *testing.T) {
	m := newTestManager(t)
	mine := NewLoadshare()
	other := NewLoadshare()

	positions := []grid.ChunkPos{{X: 0}, {X: 1}, {X: 2}}
	for _, pos := range positions {
		if _, err := m.Load(pos, mine, LoadReasonRender); err != nil {
			t.Fatalf("Load %v: %v", pos, err)
		}
	}
	// The last chunk is co-owned and must survive.
	if err := m.AddReasons(positions[2], other, LoadReasonCollision); err != nil {
		t.Fatalf("AddReasons: %v", err)
	}

	if n := m.UnloadLoadshare(mine); n != 3 {
		t.Fatalf("UnloadLoadshare removed from %d chunks, want 3", n)
	}
	if m.IsLoaded(positions[0]) || m.IsLoaded(positions[1]) {
		t.Fatalf("solely owned chunks still loaded after loadshare unload")
	}
	if !m.IsLoaded(positions[2]) {
		t.Fatalf("co-owned chunk unloaded with the other loadshare still holding reasons")
	}
}

func TestStatusesFollowFlags(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 4, Y: 4, Z: 4}

	ref, err := m.Load(pos, share, LoadReasonRender)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := ref.UpdateFlags(func(f chunk.Flags) chunk.Flags { return f | chunk.FlagRemesh }); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	if got := m.Statuses().NeedsRemesh(); len(got) != 1 || got[0] != pos {
		t.Fatalf("NeedsRemesh = %v, want [%v]", got, pos)
	}

	if _, err := ref.UpdateFlags(func(f chunk.Flags) chunk.Flags { return f &^ chunk.FlagRemesh }); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	if n := m.Statuses().RemeshCount(); n != 0 {
		t.Fatalf("RemeshCount = %d after flag cleared, want 0", n)
	}

	// Leaving the loaded set drops the position from every status set.
	if _, err := ref.UpdateFlags(func(f chunk.Flags) chunk.Flags { return f | chunk.FlagRemesh }); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	if err := m.Purge(pos); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n := m.Statuses().RemeshCount(); n != 0 {
		t.Fatalf("RemeshCount = %d after purge, want 0", n)
	}
}

func TestStatusesIgnorePurgatoryFlagUpdates(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 6, Y: 1, Z: 6}

	ref, err := m.Load(pos, share, LoadReasonRender)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.Purge(pos); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	// The ref still resolves into purgatory; updating flags there must not
	// resurrect the position in the status sets.
	flags, err := ref.UpdateFlags(func(f chunk.Flags) chunk.Flags { return f | chunk.FlagRemesh })
	if err != nil {
		t.Fatalf("UpdateFlags in purgatory: %v", err)
	}
	if !flags.Has(chunk.FlagRemesh) {
		t.Fatalf("flag update lost: %b", flags)
	}
	if n := m.Statuses().RemeshCount(); n != 0 {
		t.Fatalf("RemeshCount = %d for unloaded chunk, want 0", n)
	}

	// Revival folds the flags the chunk carries back into the sets.
	if _, err := m.Load(pos, share, LoadReasonRender); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := m.Statuses().NeedsRemesh(); len(got) != 1 || got[0] != pos {
		t.Fatalf("NeedsRemesh after revival = %v, want [%v]", got, pos)
	}
}

func TestStructuralAccessBlocksOperations(t *testing.T) {
	m := newTestManager(t)
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 9, Y: 0, Z: 9}
	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("Load: %v", err)
	}

	m.StructuralAccess(func(s *Structural) {
		if _, err := m.Load(grid.ChunkPos{X: 10}, share, LoadReasonManual); !errors.Is(err, ErrGloballyLocked) {
			t.Errorf("Load under structural lock: %v, want ErrGloballyLocked", err)
		}
		if _, err := m.LoadedChunk(pos); !errors.Is(err, ErrGloballyLocked) {
			t.Errorf("LoadedChunk under structural lock: %v, want ErrGloballyLocked", err)
		}

		n := 0
		s.ForEachLoaded(func(grid.ChunkPos, *chunk.Chunk) bool { n++; return true })
		if n != 1 {
			t.Errorf("ForEachLoaded visited %d chunks, want 1", n)
		}
	})

	// Normal operation resumes once the structural lock is released.
	if _, err := m.LoadedChunk(pos); err != nil {
		t.Fatalf("LoadedChunk after structural access: %v", err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	var mu sync.Mutex
	var kinds []EventKind
	m := NewManager(Params{
		Policy: EvictImmediately{},
		OnEvent: func(e Event) {
			mu.Lock()
			kinds = append(kinds, e.Kind)
			mu.Unlock()
		},
	})
	share := NewLoadshare()
	pos := grid.ChunkPos{X: 3, Y: 3, Z: 3}

	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := m.RemoveReasons(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("RemoveReasons: %v", err)
	}
	if _, err := m.Load(pos, share, LoadReasonManual); err != nil {
		t.Fatalf("reviving Load: %v", err)
	}
	if err := m.Purge(pos); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	m.Sweep(time.Now())

	want := []EventKind{EventLoaded, EventPurgatoried, EventRevived, EventPurgatoried, EventEvicted}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestConcurrentLoadUnload(t *testing.T) {
	m := newTestManager(t)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			share := NewLoadshare()
			for i := 0; i < 200; i++ {
				pos := grid.ChunkPos{X: int32(i % 16), Y: 0, Z: int32(i % 7)}
				ref, err := m.Load(pos, share, LoadReasonRender)
				if errors.Is(err, ErrAlreadyLoaded) {
					if err := m.AddReasons(pos, share, LoadReasonRender); err != nil && !errors.Is(err, ErrNotLoaded) {
						t.Errorf("AddReasons: %v", err)
					}
					continue
				}
				if err != nil {
					t.Errorf("Load: %v", err)
					continue
				}
				_ = ref.WithAccess(func(a chunk.Access) error {
					return a.Set(grid.Point{X: int32(g), Y: 0, Z: 0}, chunk.Block{Transparency: chunk.Opaque})
				})
				if err := m.RemoveReasons(pos, share, LoadReasonRender); err != nil && !errors.Is(err, ErrNotLoaded) {
					t.Errorf("RemoveReasons: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()
}
