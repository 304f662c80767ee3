// Package journal keeps a durable history of engine events in SQLite.
//
// Writes are queued and applied by a single writer goroutine; when the queue
// is full new events are dropped and counted rather than stalling the engine.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/star/wwtengine/internal/metrics"
)

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal: closed")

const (
	queueSize = 4096
	batchMax  = 256
)

// Event is one journaled engine event.
type Event struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	SurfaceID  string    `json:"surface_id"`
	RA         float64   `json:"ra"`
	Dec        float64   `json:"dec"`
	Zoom       float64   `json:"zoom"`
	SimTime    time.Time `json:"sim_time"`
	RecordedAt time.Time `json:"recorded_at"`
}

type req struct {
	ev   Event
	sync chan struct{}
}

// Journal is a SQLite-backed event log.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger

	// mu orders sends against close(ch).
	mu     sync.RWMutex
	closed bool
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once

	dropped atomic.Uint64
}

// Open opens or creates the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
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

	j := &Journal{
		db:     db,
		logger: logger.With("component", "journal"),
		ch:     make(chan req, queueSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			surface_id TEXT NOT NULL,
			ra REAL NOT NULL,
			dec REAL NOT NULL,
			zoom REAL NOT NULL,
			sim_time TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Record queues ev for writing. It never blocks; events are dropped when
// the writer falls behind.
func (j *Journal) Record(ev Event) {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- req{ev: ev}:
	default:
		j.dropped.Add(1)
		metrics.IncJournalWrites("dropped")
	}
}

// Sync blocks until every event queued before the call has been written.
func (j *Journal) Sync(ctx context.Context) error {
	done := make(chan struct{})

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	select {
	case j.ch <- req{sync: done}:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// Recent returns up to limit events, newest first. An empty kind matches
// every kind.
func (j *Journal) Recent(ctx context.Context, kind string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, surface_id, ra, dec, zoom, sim_time, recorded_at
		 FROM events WHERE (?1 = '' OR kind = ?1) ORDER BY id DESC LIMIT ?2`,
		kind, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var simTime, recordedAt string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.SurfaceID, &ev.RA, &ev.Dec, &ev.Zoom, &simTime, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.SimTime, _ = time.Parse(time.RFC3339Nano, simTime)
		ev.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close flushes pending events and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()

		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *Journal) loop() {
	ctx := context.Background()
	insert, err := j.db.Prepare(`INSERT INTO events(kind, surface_id, ra, dec, zoom, sim_time, recorded_at) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		j.logger.Error("preparing insert failed, journal disabled", "error", err)
		for r := range j.ch {
			if r.sync != nil {
				close(r.sync)
			}
		}
		return
	}
	defer insert.Close()

	batch := make([]req, 0, batchMax)
	for first := range j.ch {
		batch = append(batch[:0], first)
	drain:
		for len(batch) < batchMax {
			select {
			case r, ok := <-j.ch:
				if !ok {
					break drain
				}
				batch = append(batch, r)
			default:
				break drain
			}
		}
		j.writeBatch(ctx, insert, batch)
	}
}

func (j *Journal) writeBatch(ctx context.Context, insert *sql.Stmt, batch []req) {
	defer func() {
		for _, r := range batch {
			if r.sync != nil {
				close(r.sync)
			}
		}
	}()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		j.logger.Warn("journal batch dropped", "error", err, "events", len(batch))
		metrics.IncJournalWrites("error")
		return
	}
	stmt := tx.StmtContext(ctx, insert)
	written := 0
	for _, r := range batch {
		if r.sync != nil {
			continue
		}
		ev := r.ev
		if _, err := stmt.ExecContext(ctx, ev.Kind, ev.SurfaceID, ev.RA, ev.Dec, ev.Zoom,
			ev.SimTime.UTC().Format(time.RFC3339Nano), ev.RecordedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			j.logger.Warn("journal insert failed", "error", err, "kind", ev.Kind)
			metrics.IncJournalWrites("error")
			continue
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		j.logger.Warn("journal commit failed", "error", err)
		metrics.IncJournalWrites("error")
		return
	}
	for i := 0; i < written; i++ {
		metrics.IncJournalWrites("ok")
	}
}
