// Package indexdb keeps a queryable sqlite index next to the snapshot
// files: which snapshots exist and the chunk lifecycle audit trail. All
// writes funnel through a single writer goroutine with batched
// transactions, so the engine never blocks on disk.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelforge.dev/internal/persistence/snapshot"
	"voxelforge.dev/internal/voxel/manager"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders enqueues against Close: senders hold the read lock across
	// the channel send, Close flips closed under the write lock before
	// closing the channel, so no send can race the close.
	mu     sync.RWMutex
	closed atomic.Bool
}

type reqKind int

const (
	reqLifecycle reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	lifecycle manager.Event
	snapshot  SnapshotRow
}

type SnapshotRow struct {
	Path        string
	WorldID     string
	Seed        int64
	Chunks      int
	CreatedUnix int64
}

// LifecycleRow is one recorded chunk lifecycle transition.
type LifecycleRow struct {
	Seq     int64
	AtNano  int64
	Kind    string
	X, Y, Z int32
	Share   string
	Reasons uint16
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: lifecycle events burst when an observer moves fast.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			created_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_world_created ON snapshots(world_id, created_unix);`,
		`CREATE TABLE IF NOT EXISTS lifecycle (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at_nano INTEGER NOT NULL,
			kind TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			share TEXT NOT NULL,
			reasons INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_pos ON lifecycle(x, z, y, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_kind ON lifecycle(kind, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		s.mu.Unlock()
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// enqueue hands a request to the writer goroutine, dropping it when the
// buffer is full or the index is closed.
func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
	}
}

// RecordLifecycle enqueues a lifecycle event for indexing. Safe to hand
// directly to manager.Params.OnEvent. Drops events if the indexer falls
// behind; the JSONL log remains the source of truth.
func (s *SQLiteIndex) RecordLifecycle(ev manager.Event) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqLifecycle, lifecycle: ev})
}

// RecordSnapshot indexes a written snapshot file.
func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: SnapshotRow{
		Path:        path,
		WorldID:     snap.Header.WorldID,
		Seed:        snap.Seed,
		Chunks:      len(snap.Chunks),
		CreatedUnix: snap.Header.CreatedUnix,
	}})
}

// LatestSnapshot returns the newest indexed snapshot for a world.
func (s *SQLiteIndex) LatestSnapshot(worldID string) (SnapshotRow, error) {
	var r SnapshotRow
	row := s.db.QueryRow(
		`SELECT path, world_id, seed, chunks, created_unix FROM snapshots
		 WHERE world_id = ? ORDER BY created_unix DESC LIMIT 1`, worldID)
	err := row.Scan(&r.Path, &r.WorldID, &r.Seed, &r.Chunks, &r.CreatedUnix)
	if err != nil {
		return SnapshotRow{}, err
	}
	return r, nil
}

// LifecycleHistory returns the recorded transitions for one chunk position
// in sequence order.
func (s *SQLiteIndex) LifecycleHistory(x, y, z int32) ([]LifecycleRow, error) {
	rows, err := s.db.Query(
		`SELECT seq, at_nano, kind, x, y, z, share, reasons FROM lifecycle
		 WHERE x = ? AND z = ? AND y = ? ORDER BY seq`, x, z, y)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LifecycleRow
	for rows.Next() {
		var r LifecycleRow
		if err := rows.Scan(&r.Seq, &r.AtNano, &r.Kind, &r.X, &r.Y, &r.Z, &r.Share, &r.Reasons); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertLifecycle, _ := s.db.Prepare(`INSERT INTO lifecycle(at_nano,kind,x,y,z,share,reasons) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world_id,seed,chunks,created_unix) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertLifecycle != nil {
			_ = insertLifecycle.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqLifecycle:
			ev := r.lifecycle
			if insertLifecycle != nil {
				if _, err := tx.Stmt(insertLifecycle).Exec(
					ev.At.UnixNano(),
					string(ev.Kind),
					ev.Pos.X, ev.Pos.Y, ev.Pos.Z,
					ev.Share.String(),
					uint16(ev.Reasons),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.Path,
					sn.WorldID,
					sn.Seed,
					sn.Chunks,
					sn.CreatedUnix,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
