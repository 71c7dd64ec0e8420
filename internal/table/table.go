// Package table implements the fixed-width columnar store described in
// spec §4.2: stable slot indices, a key→slot index, tombstoned deletes,
// and a bounded substring search.
package table

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"tradingengine/internal/domain"
	"tradingengine/pkg/cell"
)

// ErrCapacityExceeded is returned when an Upsert would allocate a new
// slot beyond domain.MaxSlots (§4.2, §7).
var ErrCapacityExceeded = errors.New("table: capacity exceeded")

// UpsertResult reports whether an Upsert created a new slot or replaced
// an existing one.
type UpsertResult uint8

const (
	Inserted UpsertResult = iota
	Updated
)

// Table is a named, fixed-schema columnar store. Reads (RowByKey,
// RowBySlot, Cell, Search, AliveRows) take the shared lock; every
// mutation (Upsert, BatchUpsert, Delete) takes the exclusive lock for
// its whole duration, matching §4.2's "many concurrent readers, single
// writer" discipline. RowCount is observable without the lock via an
// atomic counter.
type Table struct {
	name   domain.TableName
	schema *domain.Schema

	mu        sync.RWMutex
	slots     []domain.Row
	keyIndex  map[string]int
	aliveRows []int

	rowCount atomic.Uint64 // number of slots, including tombstones
}

// New creates an empty table for the given schema.
func New(name domain.TableName) *Table {
	return &Table{
		name:     name,
		schema:   domain.SchemaFor(name),
		keyIndex: make(map[string]int),
	}
}

// Name returns the table's identity.
func (t *Table) Name() domain.TableName { return t.name }

// RowCount returns the number of allocated slots (including
// tombstones), observable without acquiring the lock (§4.2).
func (t *Table) RowCount() int {
	return int(t.rowCount.Load())
}

// Upsert inserts a new row or replaces an existing one keyed by the
// row's column-0 value. O(1) expected (§4.2).
func (t *Table) Upsert(row domain.Row) (UpsertResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upsertLocked(row)
}

func (t *Table) upsertLocked(row domain.Row) (UpsertResult, error) {
	key := row.Key()
	if slot, ok := t.keyIndex[key]; ok {
		t.slots[slot] = row
		return Updated, nil
	}

	if len(t.slots) >= domain.MaxSlots {
		return 0, ErrCapacityExceeded
	}

	slot := len(t.slots)
	t.slots = append(t.slots, row)
	t.keyIndex[key] = slot
	t.rowCount.Store(uint64(len(t.slots)))
	return Inserted, nil
}

// BatchResult tallies the outcome of a BatchUpsert call (§4.2, §4.5).
type BatchResult struct {
	Inserted int
	Updated  int
	Rejected int // rows that did not fit under the capacity cap
}

// BatchUpsert applies every row under a single exclusive lock
// acquisition. It processes as many rows as fit under the capacity cap
// and reports the shortfall rather than failing the whole batch (§4.2).
func (t *Table) BatchUpsert(rows []domain.Row) BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res BatchResult
	for _, row := range rows {
		outcome, err := t.upsertLocked(row)
		if err != nil {
			res.Rejected++
			continue
		}
		if outcome == Inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	t.refreshAliveRowsLocked()
	return res
}

// Delete tombstones the slot holding key, if present: its column-0 cell
// is nulled and its key index entry removed (§3, §4.2). It returns
// whether a row was actually removed.
func (t *Table) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ok := t.deleteLocked(key)
	t.refreshAliveRowsLocked()
	return ok
}

func (t *Table) deleteLocked(key string) bool {
	slot, ok := t.keyIndex[key]
	if !ok {
		return false
	}
	t.slots[slot].Cells[domain.KeyColumn] = cell.Null()
	delete(t.keyIndex, key)
	return true
}

// BatchDelete tombstones every key present in keys under a single
// exclusive lock acquisition and a single alive-row rebuild, instead of
// the per-key lock-and-rebuild cost of calling Delete in a loop (§4.2,
// §4.5). It returns the number of keys that actually held a live row.
func (t *Table) BatchDelete(keys []string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if t.deleteLocked(key) {
			removed++
		}
	}
	t.refreshAliveRowsLocked()
	return removed
}

// RowByKey returns a copy of the live row for key, or ok=false if no
// live row has that key (§4.2).
func (t *Table) RowByKey(key string) (domain.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	slot, ok := t.keyIndex[key]
	if !ok {
		return domain.Row{}, false
	}
	return t.slots[slot], true
}

// RowBySlot returns the row at a slot index. Out-of-range slots return
// ok=false; tombstoned slots return ok=true with an empty/zeroed row
// (§4.2 — the alive-row projection is authoritative for enumeration, so
// callers in steady state do not query tombstoned slots directly).
func (t *Table) RowBySlot(slot int) (domain.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if slot < 0 || slot >= len(t.slots) {
		return domain.Row{}, false
	}
	row := t.slots[slot]
	if row.IsTombstoned() {
		return domain.Row{}, true
	}
	return row, true
}

// Cell returns the value at (slot, col). Bounds are checked on both
// axes; a tombstoned slot yields null (§4.2).
func (t *Table) Cell(slot, col int) (cell.Cell, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if slot < 0 || slot >= len(t.slots) || col < 0 || col >= domain.ColumnCount {
		return cell.Cell{}, false
	}
	row := &t.slots[slot]
	if row.IsTombstoned() {
		return cell.Null(), true
	}
	return row.Cells[col], true
}

// Search scans live slots in ascending slot order and returns the first
// limit indices whose cell at col, rendered as text and lower-cased,
// contains needle's lower-cased form (§4.6). An empty needle always
// returns an empty result.
func (t *Table) Search(needle string, col, limit int) []int {
	if needle == "" || limit <= 0 {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	lowerNeedle := strings.ToLower(needle)
	if col < 0 || col >= domain.ColumnCount {
		return nil
	}

	results := make([]int, 0, min(limit, 64))
	for slot := 0; slot < len(t.slots); slot++ {
		row := &t.slots[slot]
		if row.IsTombstoned() {
			continue
		}
		if row.Cells[col].Contains(lowerNeedle) {
			results = append(results, slot)
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

// RefreshAliveRows rebuilds the alive-row projection. Upsert (unlike
// BatchUpsert and Delete) does not rebuild it automatically, since
// callers applying many individual Upserts in a batch want to rebuild
// once at the end; call this after such a sequence (§4.7).
func (t *Table) RefreshAliveRows() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshAliveRowsLocked()
}

// AliveRows returns a copy of the current alive-row projection: the
// ordered list of slot indices whose column-0 is non-null (§4.7).
func (t *Table) AliveRows() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]int, len(t.aliveRows))
	copy(out, t.aliveRows)
	return out
}

// refreshAliveRowsLocked rebuilds the alive-row projection by a single
// pass over every slot. Must be called with the write lock held; it is
// the caller's (BatchUpsert/Delete's) responsibility to invoke this
// after mutating slots so the rebuild is amortized over the batch (§4.7).
func (t *Table) refreshAliveRowsLocked() {
	alive := make([]int, 0, len(t.aliveRows))
	for slot := 0; slot < len(t.slots); slot++ {
		if !t.slots[slot].IsTombstoned() {
			alive = append(alive, slot)
		}
	}
	t.aliveRows = alive
}

// MemoryEstimate returns a coarse byte-count for diagnostics (§4.2): the
// row storage plus a rough per-entry overhead for the key index and
// alive-row projection.
func (t *Table) MemoryEstimate() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	const cellSize = 56 // sizeof(cell.Cell) on 64-bit, incl. decimal.Decimal's inline part
	rowBytes := uint64(len(t.slots)) * domain.ColumnCount * cellSize
	keyIndexBytes := uint64(len(t.keyIndex)) * 32
	aliveBytes := uint64(len(t.aliveRows)) * 8
	return rowBytes + keyIndexBytes + aliveBytes
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
