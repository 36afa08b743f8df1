package worldgen

import (
	"log"
	"sync"

	"github.com/alitto/pond/v2"

	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
	"voxelforge.dev/internal/voxel/manager"
)

// Pool drains the generation queue into a bounded worker pool. Each worker
// resolves the chunk through the manager, generates into it under the
// chunk's write lock and flips the lifecycle flags so meshing picks it up.
// Chunks unloaded between enqueue and execution are skipped quietly.
type Pool struct {
	mgr   *manager.Manager
	gen   Generator
	queue *Queue
	pool  pond.Pool
	log   *log.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewPool creates a generation pool with the given worker count. Call Run
// to start draining and Shutdown to stop.
func NewPool(mgr *manager.Manager, gen Generator, queue *Queue, workers int, logger *log.Logger) *Pool {
	return &Pool{
		mgr:   mgr,
		gen:   gen,
		queue: queue,
		pool:  pond.NewPool(workers),
		log:   logger,
		stop:  make(chan struct{}),
	}
}

// Run drains the queue until Shutdown. Blocks; run it on its own goroutine.
func (p *Pool) Run() {
	p.wg.Add(1)
	defer p.wg.Done()
	for {
		job, ok := p.queue.Pop()
		if !ok {
			return
		}
		select {
		case <-p.stop:
			return
		default:
		}
		p.pool.Submit(func() {
			if err := p.generate(job.Pos); err != nil {
				p.log.Printf("generate %v: %v", job.Pos, err)
			}
		})
	}
}

func (p *Pool) generate(pos grid.ChunkPos) error {
	ref, err := p.mgr.LoadedChunk(pos)
	if err != nil {
		// Unloaded since it was queued. Not an error.
		return nil
	}

	// Claim the chunk. Another worker, or a superseded duplicate, may have
	// gotten here first.
	claimed := false
	_, err = ref.UpdateFlags(func(f chunk.Flags) chunk.Flags {
		if !f.Has(chunk.FlagPrimordial) || f.Has(chunk.FlagGenerating) {
			return f
		}
		claimed = true
		return f | chunk.FlagGenerating
	})
	if err != nil || !claimed {
		return err
	}

	genErr := ref.WithAccess(func(a chunk.Access) error {
		return p.gen.Generate(pos, a)
	})

	_, flagErr := ref.UpdateFlags(func(f chunk.Flags) chunk.Flags {
		f = f.Remove(chunk.FlagGenerating)
		if genErr != nil {
			// Leave it primordial so a later pass can retry.
			return f
		}
		f = f.Remove(chunk.FlagPrimordial)
		return f | chunk.FlagFreshlyGenerated | chunk.FlagRemesh | chunk.FlagRemeshNeighbors
	})
	if genErr != nil {
		return genErr
	}
	return flagErr
}

// Shutdown stops the drain loop, waits for in-flight generation to finish
// and releases the workers.
func (p *Pool) Shutdown() {
	close(p.stop)
	p.queue.Close()
	p.wg.Wait()
	p.pool.StopAndWait()
}
