package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelforge.dev/internal/engine/config"
	"voxelforge.dev/internal/persistence/indexdb"
	persistlog "voxelforge.dev/internal/persistence/log"
	"voxelforge.dev/internal/persistence/snapshot"
	"voxelforge.dev/internal/voxel/chunk"
	"voxelforge.dev/internal/voxel/grid"
	"voxelforge.dev/internal/voxel/manager"
	"voxelforge.dev/internal/voxel/worldgen"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to engine.yaml (empty for defaults)")
		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		radius     = flag.Int("keep_radius", 4, "chunk radius kept loaded around the origin")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[engined] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	worldDir := filepath.Join(cfg.DataDir, "worlds", cfg.WorldID)
	_ = os.MkdirAll(worldDir, 0o755)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	lifecycleLog := persistlog.NewLifecycleLogger(worldDir)
	defer lifecycleLog.Close()

	defaultBlock := chunk.Block{
		Model: chunk.BlockModel{ID: cfg.DefaultBlock.ModelID, Rotation: cfg.DefaultBlock.ModelRot},
	}
	if cfg.DefaultBlock.Opaque {
		defaultBlock.Transparency = chunk.Opaque
	}

	mgr := manager.NewManager(manager.Params{
		DefaultBlock: defaultBlock,
		Policy: manager.AgeSizePolicy{
			MaxAge:   time.Duration(cfg.Eviction.MaxAgeSeconds) * time.Second,
			MaxCount: cfg.Eviction.MaxCount,
		},
		OnEvent: func(ev manager.Event) {
			if err := lifecycleLog.WriteEvent(ev); err != nil {
				logger.Printf("lifecycle log: %v", err)
			}
			idx.RecordLifecycle(ev)
		},
	})

	ctx, cancel := signalContext()
	defer cancel()

	// Resume from snapshot if one is available.
	resumeShare := manager.NewLoadshare()
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.WorldID {
			logger.Fatalf("snapshot world id mismatch: config=%s snap=%s", cfg.WorldID, snap.Header.WorldID)
		}
		if err := snapshot.Restore(mgr, snap, resumeShare, manager.LoadReasonManual); err != nil {
			logger.Fatalf("restore snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s chunks=%d", filepath.Base(snapshotToLoad), len(snap.Chunks))
	}

	// World generation.
	queue := worldgen.NewQueue()
	gen := worldgen.HashTerrain{
		Seed:       cfg.Seed,
		BaseHeight: cfg.Worldgen.BaseHeight,
		HeightVar:  cfg.Worldgen.HeightVar,
		Palette: worldgen.Palette{
			Stone: chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 1}},
			Dirt:  chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 2}},
			Grass: chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 3}},
			Sand:  chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 4}},
			Ore:   chunk.Block{Transparency: chunk.Opaque, Model: chunk.BlockModel{ID: 5}},
		},
	}
	pool := worldgen.NewPool(mgr, gen, queue, cfg.Worldgen.Workers, logger)
	go pool.Run()

	// Keep a block of chunks around the origin loaded and generated. A real
	// client integration would drive this from observer positions instead.
	renderShare := manager.NewLoadshare()
	origin := grid.ChunkPos{}
	r := int32(*radius)
	for z := -r; z <= r; z++ {
		for y := int32(-1); y <= 1; y++ {
			for x := -r; x <= r; x++ {
				pos := grid.ChunkPos{X: x, Y: y, Z: z}
				ref, err := mgr.Load(pos, renderShare, manager.LoadReasonRender)
				if err != nil {
					logger.Printf("load %v: %v", pos, err)
					continue
				}
				flags, _ := ref.Flags()
				if flags.Has(chunk.FlagPrimordial) {
					queue.Push(worldgen.Job{Pos: pos, Priority: pos.DistSq(origin)})
				}
			}
		}
	}

	// Purgatory sweeper.
	go func() {
		t := time.NewTicker(time.Duration(cfg.Eviction.SweepEverySeconds) * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if n := mgr.Sweep(now); n > 0 {
					logger.Printf("sweep freed %d chunks (loaded=%d purgatory=%d)",
						n, mgr.LoadedCount(), mgr.PurgatoryCount())
				}
			}
		}
	}()

	// Periodic snapshots.
	go func() {
		t := time.NewTicker(time.Duration(cfg.Snapshot.EverySeconds) * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				writeSnapshot(mgr, cfg, worldDir, defaultBlock, idx, logger)
			}
		}
	}()

	logger.Printf("engine up: world=%s seed=%d loaded=%d", cfg.WorldID, cfg.Seed, mgr.LoadedCount())
	<-ctx.Done()

	pool.Shutdown()
	writeSnapshot(mgr, cfg, worldDir, defaultBlock, idx, logger)
	logger.Printf("shutdown complete")
}

func writeSnapshot(mgr *manager.Manager, cfg config.Config, worldDir string, def chunk.Block, idx *indexdb.SQLiteIndex, logger *log.Logger) {
	snap, err := snapshot.Capture(mgr, cfg.WorldID, cfg.Seed, def)
	if err != nil {
		logger.Printf("snapshot capture: %v", err)
		return
	}
	path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.CreatedUnix))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	idx.RecordSnapshot(path, snap)
	logger.Printf("snapshot written: %s chunks=%d", filepath.Base(path), len(snap.Chunks))
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		// Names are <created_unix>.snap.zst, so lexical order is creation
		// order for same-width timestamps.
		if best == "" || e.Name() > filepath.Base(best) {
			best = filepath.Join(dir, e.Name())
		}
	}
	return best
}
