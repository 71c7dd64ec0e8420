// Package applier is the single-writer component that dispatches each
// batch from internal/ingest onto the OrderBook and TradeBook tables
// (§4.5): one goroutine, panic-recover-dump-then-halt on an
// unrecoverable error, and a post-batch hook for downstream consumers.
package applier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tradingengine/internal/domain"
	"tradingengine/internal/event"
	"tradingengine/internal/metrics"
	"tradingengine/internal/table"
	"tradingengine/pkg/safe"
)

// Counters tallies the six per-batch outcomes named in §4.5: each of
// {OrderBook, TradeBook} crossed with {inserted, updated, deleted}.
type Counters struct {
	OrdersInserted uint64
	OrdersUpdated  uint64
	OrdersDeleted  uint64
	TradesInserted uint64
	TradesUpdated  uint64
	TradesDeleted  uint64
}

// BatchApplied is emitted once per processed batch (§4.5), carrying the
// batch's outcome tally, total message count, and latency for metrics
// and the websocket hub.
type BatchApplied struct {
	Counters       Counters
	Total          int
	BatchLatencyMs int64 // apply_ts[last] - queue_ts[first]
	AppliedAt      time.Time
}

// Applier owns both tables and applies batches to them one at a time.
// It is not safe to call Apply from more than one goroutine — batches
// must be serialized onto a single inbox, exactly like any other
// single-writer dispatch loop.
type Applier struct {
	orderBook *table.Table
	tradeBook *table.Table

	onBatchApplied func(BatchApplied)
	metrics        *metrics.Pipeline

	dumpPath string
}

// New creates an Applier over the two fixed tables.
func New(orderBook, tradeBook *table.Table, onBatchApplied func(BatchApplied)) *Applier {
	return &Applier{
		orderBook:      orderBook,
		tradeBook:      tradeBook,
		onBatchApplied: onBatchApplied,
		dumpPath:       "applier_panic_dump.json",
	}
}

// SetMetrics attaches a pipeline that Apply will feed one Record per
// non-delete message to, once that message's batch has applied (§4.8).
// A nil pipeline (the default) disables per-message recording.
func (a *Applier) SetMetrics(p *metrics.Pipeline) {
	a.metrics = p
}

// Run pulls batches from next, applying each in turn, until next reports
// ok=false; ctx is only passed through to next, so it is next that
// decides how cancellation ends the loop. A panic while applying a batch is recovered, the table state is
// dumped for post-mortem, and the goroutine halts by re-panicking, since
// continuing after a corrupted batch risks silently diverging state.
func (a *Applier) Run(ctx context.Context, next func(ctx context.Context) ([]*domain.DataMessage, bool)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("applier panic, dumping state", slog.Any("panic", r))
			a.DumpState(a.dumpPath)
			panic(fmt.Sprintf("applier halted: %v", r))
		}
	}()

	for {
		batch, ok := next(ctx)
		if !ok {
			return
		}
		a.Apply(batch)
	}
}

// Apply processes one batch: Insert/Update rows and Delete keys are
// staged per table, then applied with one table.BatchUpsert and one
// table.BatchDelete call per table, so the writer-lock hold and
// alive-row rebuild are paid once per call instead of once per message
// (§4.2, §4.5). A concurrent reader can run between a table's
// BatchUpsert and its BatchDelete. Staged upserts are applied before staged
// deletes, so a key that is both written and deleted within the same
// batch ends up deleted — the common "placed then cancelled within one
// flush window" case — at the cost of the rarer reverse ordering within
// a single batch not round-tripping to re-inserted. This is a
// deliberate, one-directional departure from strict per-key
// last-writer-wins within a batch, not just a gap in the reverse case.
func (a *Applier) Apply(batch []*domain.DataMessage) {
	if len(batch) == 0 {
		return
	}

	var counters Counters
	now := domain.TimestampMs(time.Now().UnixMilli())
	queueFirst := batch[0].QueueTsMs

	var orderRows, tradeRows []domain.Row
	var orderDeletes, tradeDeletes []string

	for _, m := range batch {
		m.ApplyTsMs = now
		schema := domain.SchemaFor(m.Table)

		switch m.Op {
		case domain.OpDelete:
			if m.Table == domain.TradeBook {
				tradeDeletes = append(tradeDeletes, m.Key)
			} else {
				orderDeletes = append(orderDeletes, m.Key)
			}
		default:
			row := m.ToRow(schema)
			if m.Table == domain.TradeBook {
				tradeRows = append(tradeRows, row)
			} else {
				orderRows = append(orderRows, row)
			}
			a.recordMetric(m)
		}
		event.Release(m)
	}

	if len(orderRows) > 0 {
		res := a.orderBook.BatchUpsert(orderRows)
		counters.OrdersInserted = uint64(res.Inserted)
		counters.OrdersUpdated = uint64(res.Updated)
		if res.Rejected > 0 {
			slog.Warn("dropping rows over capacity", slog.String("table", domain.OrderBook.String()), slog.Int("rejected", res.Rejected))
		}
	}
	if len(tradeRows) > 0 {
		res := a.tradeBook.BatchUpsert(tradeRows)
		counters.TradesInserted = uint64(res.Inserted)
		counters.TradesUpdated = uint64(res.Updated)
		if res.Rejected > 0 {
			slog.Warn("dropping rows over capacity", slog.String("table", domain.TradeBook.String()), slog.Int("rejected", res.Rejected))
		}
	}
	if len(orderDeletes) > 0 {
		counters.OrdersDeleted = uint64(a.orderBook.BatchDelete(orderDeletes))
	}
	if len(tradeDeletes) > 0 {
		counters.TradesDeleted = uint64(a.tradeBook.BatchDelete(tradeDeletes))
	}

	for _, m := range batch {
		if m.Op != domain.OpDelete {
			a.recordMetric(m)
		}
		event.Release(m)
	}

	if a.onBatchApplied != nil {
		a.onBatchApplied(BatchApplied{
			Counters:       counters,
			Total:          len(batch),
			BatchLatencyMs: safe.SafeSub(int64(now), int64(queueFirst)),
			AppliedAt:      time.Now(),
		})
	}
}

// recordMetric feeds one latency sample for a non-delete message that
// just applied successfully (§4.8: "for every non-delete message after
// its batch applies"). Render timestamps are left at zero unless an
// external consumer stamped them before the message reached the
// applier; the derived render/end-to-end metrics degrade accordingly
// when no renderer is attached.
func (a *Applier) recordMetric(m *domain.DataMessage) {
	if a.metrics == nil {
		return
	}
	a.metrics.Record(metrics.Record{
		Timestamp:     int64(m.ApplyTsMs),
		MessageType:   m.Table.String() + ":" + m.Op.String(),
		SendTs:        int64(m.SendTsMs),
		ReceiveTs:     int64(m.ReceiveTsMs),
		QueueTs:       int64(m.QueueTsMs),
		ApplyTs:       int64(m.ApplyTsMs),
		RenderStartTs: int64(m.RenderStartMs),
		RenderEndTs:   int64(m.RenderEndMs),
	})
}

// DumpState writes a JSON snapshot of both tables' row counts for
// post-mortem inspection after a panic.
func (a *Applier) DumpState(path string) {
	data := struct {
		OrderBookRows int `json:"order_book_rows"`
		TradeBookRows int `json:"trade_book_rows"`
	}{
		OrderBookRows: a.orderBook.RowCount(),
		TradeBookRows: a.tradeBook.RowCount(),
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("failed to marshal applier state dump", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		slog.Error("failed to write applier state dump", slog.Any("error", err))
	}
}
