// Package audit persists a queryable history of per-batch summaries to
// SQLite. It does not store row data and is never read back to
// reconstruct table state — it exists purely as an observability sink
// alongside the plain CSV metrics flush.
//
// Grounded on internal/storage/store.go's EventStore: WAL-mode SQLite
// opened through the pure-Go glebarez/go-sqlite driver, a metadata KV
// table, and an append-only log table keyed by an increasing id — the
// same shape, repurposed for batch audit rows instead of event replay.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"tradingengine/internal/applier"
	"tradingengine/internal/infra"
)

// Sink writes a row per applied batch to a local SQLite database. Every
// write goes through a CircuitBreaker so a wedged or corrupted database
// file degrades to "stop auditing" rather than stalling the applier
// that feeds it.
type Sink struct {
	db *sql.DB
	cb *infra.CircuitBreaker
}

// Open creates (or reopens) the audit database at path, in WAL mode,
// and ensures its schema exists.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("audit: set pragma %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`); err != nil {
		return nil, fmt.Errorf("audit: create metadata table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS batch_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			applied_at_ms INTEGER NOT NULL,
			batch_size INTEGER NOT NULL,
			orders_inserted INTEGER NOT NULL,
			orders_updated INTEGER NOT NULL,
			orders_deleted INTEGER NOT NULL,
			trades_inserted INTEGER NOT NULL,
			trades_updated INTEGER NOT NULL,
			trades_deleted INTEGER NOT NULL,
			parse_errors INTEGER NOT NULL DEFAULT 0,
			batch_latency_ms INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return nil, fmt.Errorf("audit: create batch_summaries table: %w", err)
	}

	cb := infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("audit-sqlite"))
	return &Sink{db: db, cb: cb}, nil
}

// Close releases the underlying database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}

// RecordBatch inserts one row summarizing an applied batch. If the
// circuit breaker is open (repeated prior write failures), the batch is
// silently skipped rather than retried, matching the "advisory, never
// blocks the hot path" discipline the metrics CSV flush also follows.
func (s *Sink) RecordBatch(ctx context.Context, appliedAtMs int64, parseErrors uint64, applied applier.BatchApplied) {
	if !s.cb.Allow() {
		return
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_summaries
			(applied_at_ms, batch_size, orders_inserted, orders_updated, orders_deleted,
			 trades_inserted, trades_updated, trades_deleted, parse_errors, batch_latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		appliedAtMs, applied.Total,
		applied.Counters.OrdersInserted, applied.Counters.OrdersUpdated, applied.Counters.OrdersDeleted,
		applied.Counters.TradesInserted, applied.Counters.TradesUpdated, applied.Counters.TradesDeleted,
		parseErrors, applied.BatchLatencyMs,
	)
	if err != nil {
		s.cb.RecordFailure()
		return
	}
	s.cb.RecordSuccess()
}

// CircuitState reports the audit write circuit breaker's current state,
// for dashboards/ops visibility into whether auditing has degraded.
func (s *Sink) CircuitState() infra.State {
	return s.cb.GetState()
}

// UpsertMetadata stores a key-value pair, e.g. the server's start time
// or build version, for later inspection alongside the batch history.
func (s *Sink) UpsertMetadata(ctx context.Context, key, value string, updatedAtMs int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, updatedAtMs,
	)
	return err
}

// BatchCount returns the number of batch_summaries rows recorded so
// far, for diagnostics and tests.
func (s *Sink) BatchCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_summaries").Scan(&n)
	return n, err
}
