package worldgen

import (
	"log"
	"os"
	"testing"
	"time"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
	"voxelforge.dev/internal/voxel/manager"
)

func testPalette() Palette {
	return Palette{
		Air:   chunk.Block{},
		Stone: chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 1}},
		Dirt:  chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 2}},
		Grass: chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 3}},
		Sand:  chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 4}},
		Ore:   chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 5}},
	}
}

func TestHashTerrainDeterministic(t *testing.T) {
	gen := HashTerrain{Seed: 1234, Palette: testPalette()}
	pos := grid.ChunkPos{X: 3, Y: 0, Z: -2}

	a := chunk.New(pos, chunk.Block{}, 0)
	b := chunk.New(pos, chunk.Block{}, 0)
	for _, c := range []*chunk.Chunk{a, b} {
		err := c.WithAccess(func(acc chunk.Access) error { return gen.Generate(pos, acc) })
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}

	err := a.WithReadAccess(func(ra chunk.ReadAccess) error {
		return b.WithReadAccess(func(rb chunk.ReadAccess) error {
			for z := int32(0); z < grid.Size; z++ {
				for y := int32(0); y < grid.Size; y++ {
					for x := int32(0); x < grid.Size; x++ {
						p := grid.Point{X: x, Y: y, Z: z}
						va, err := ra.Get(p)
						if err != nil {
							return err
						}
						vb, err := rb.Get(p)
						if err != nil {
							return err
						}
						if va != vb {
							t.Fatalf("generation not deterministic at %v: %v vs %v", p, va, vb)
						}
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestHashTerrainMatchesHeightmap(t *testing.T) {
	// Generated chunks must agree with the world-coordinate heightmap, so
	// neighboring chunks produce seamless terrain.
	gen := HashTerrain{Seed: 99, Palette: testPalette()}
	pos := grid.ChunkPos{X: 1, Y: 0, Z: -1}
	c := chunk.New(pos, chunk.Block{}, 0)
	if err := c.WithAccess(func(a chunk.Access) error { return gen.Generate(pos, a) }); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	min := pos.WorldspaceMin()
	err := c.WithReadAccess(func(a chunk.ReadAccess) error {
		for z := int32(0); z < grid.Size; z++ {
			for x := int32(0); x < grid.Size; x++ {
				height := gen.heightAt(min.X+x, min.Z+z)
				for y := int32(0); y < grid.Size; y++ {
					wy := min.Y + y
					b, err := a.Get(grid.Point{X: x, Y: y, Z: z})
					if err != nil {
						return err
					}
					if wy > height && b != gen.Palette.Air {
						t.Fatalf("block above surface at local (%d,%d,%d): %v", x, y, z, b)
					}
					if wy <= height && b.Transparency != chunk.Opaque {
						t.Fatalf("non-solid block below surface at local (%d,%d,%d): %v", x, y, z, b)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestQueueOrderAndSupersession(t *testing.T) {
	q := NewQueue()
	q.Push(Job{Pos: grid.ChunkPos{X: 1}, Priority: 10})
	q.Push(Job{Pos: grid.ChunkPos{X: 2}, Priority: 5})
	q.Push(Job{Pos: grid.ChunkPos{X: 3}, Priority: 7})
	// Supersede: position 1 jumps the queue.
	q.Push(Job{Pos: grid.ChunkPos{X: 1}, Priority: 1})

	if q.Len() != 3 {
		t.Fatalf("Len = %d after supersession, want 3", q.Len())
	}

	wantOrder := []int32{1, 2, 3}
	for i, want := range wantOrder {
		job, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop %d: queue empty", i)
		}
		if job.Pos.X != want {
			t.Fatalf("pop %d = %v, want X=%d", i, job.Pos, want)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("queue not empty after draining")
	}
}

func TestQueueRecalculatePriorities(t *testing.T) {
	q := NewQueue()
	for x := int32(0); x < 10; x++ {
		q.Push(Job{Pos: grid.ChunkPos{X: x}, Priority: int64(x)})
	}
	// Invert the order.
	q.RecalculatePriorities(func(pos grid.ChunkPos) int64 {
		return int64(-pos.X)
	})

	job, ok := q.TryPop()
	if !ok {
		t.Fatalf("TryPop: queue empty")
	}
	if job.Pos.X != 9 {
		t.Fatalf("best job after recalc = %v, want X=9", job.Pos)
	}
}

func TestQueueRemove(t *testing.T) {
	q := NewQueue()
	q.Push(Job{Pos: grid.ChunkPos{X: 4}, Priority: 1})
	if !q.Remove(grid.ChunkPos{X: 4}) {
		t.Fatalf("Remove of queued job reported false")
	}
	if q.Remove(grid.ChunkPos{X: 4}) {
		t.Fatalf("Remove of absent job reported true")
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d after remove, want 0", q.Len())
	}
}

func TestPoolGeneratesLoadedChunks(t *testing.T) {
	mgr := manager.NewManager(manager.Params{Policy: manager.EvictNever{}})
	share := manager.NewLoadshare()
	queue := NewQueue()
	logger := log.New(os.Stderr, "[worldgen-test] ", log.LstdFlags)
	pool := NewPool(mgr, HashTerrain{Seed: 7, Palette: testPalette()}, queue, 4, logger)
	go pool.Run()

	observer := grid.ChunkPos{}
	refs := make(map[grid.ChunkPos]manager.ChunkRef)
	for x := int32(-2); x <= 2; x++ {
		pos := grid.ChunkPos{X: x, Y: 0, Z: 0}
		ref, err := mgr.Load(pos, share, manager.LoadReasonRender)
		if err != nil {
			t.Fatalf("Load %v: %v", pos, err)
		}
		refs[pos] = ref
		queue.Push(Job{Pos: pos, Priority: pos.DistSq(observer)})
	}

	deadline := time.After(10 * time.Second)
	for pos, ref := range refs {
		for {
			flags, err := ref.Flags()
			if err != nil {
				t.Fatalf("Flags %v: %v", pos, err)
			}
			if !flags.Has(chunk.FlagPrimordial) {
				if !flags.Has(chunk.FlagFreshlyGenerated) || !flags.Has(chunk.FlagRemesh) {
					t.Fatalf("generated chunk %v flags = %v, want freshly-generated and remesh", pos, flags)
				}
				break
			}
			select {
			case <-deadline:
				t.Fatalf("chunk %v never generated", pos)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	pool.Shutdown()

	// Ground level of the generated terrain must be solid somewhere.
	solid := false
	err := refs[grid.ChunkPos{}].WithReadAccess(func(a chunk.ReadAccess) error {
		for z := int32(0); z < grid.Size && !solid; z++ {
			for x := int32(0); x < grid.Size && !solid; x++ {
				b, err := a.Get(grid.Point{X: x, Y: 0, Z: z})
				if err != nil {
					return err
				}
				if b.Transparency == chunk.Opaque {
					solid = true
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read generated chunk: %v", err)
	}
	if !solid {
		t.Fatalf("generated origin chunk has no solid block at y=0")
	}
}
