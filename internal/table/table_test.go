package table

import (
	"fmt"
	"testing"

	"tradingengine/internal/domain"
	"tradingengine/pkg/cell"
)

func orderRow(key, symbol string) domain.Row {
	var row domain.Row
	row.Cells[domain.KeyColumn] = cell.Text(key)
	row.Cells[domain.SymbolColumn] = cell.Text(symbol)
	for i := 2; i < domain.ColumnCount; i++ {
		row.Cells[i] = cell.Text("x")
	}
	return row
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	tb := New(domain.OrderBook)

	outcome, err := tb.Upsert(orderRow("ORD1", "AAPL"))
	if err != nil || outcome != Inserted {
		t.Fatalf("expected Inserted, got outcome=%v err=%v", outcome, err)
	}

	outcome, err = tb.Upsert(orderRow("ORD1", "MSFT"))
	if err != nil || outcome != Updated {
		t.Fatalf("expected Updated, got outcome=%v err=%v", outcome, err)
	}

	if tb.RowCount() != 1 {
		t.Errorf("expected 1 slot after overwrite, got %d", tb.RowCount())
	}
	row, ok := tb.RowByKey("ORD1")
	if !ok || row.Cells[domain.SymbolColumn].String() != "MSFT" {
		t.Errorf("expected updated symbol MSFT, got ok=%v symbol=%q", ok, row.Cells[domain.SymbolColumn].String())
	}
}

func TestDelete_TombstonesAndIsIdempotent(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.Upsert(orderRow("ORD1", "AAPL"))

	if !tb.Delete("ORD1") {
		t.Fatal("expected first delete to remove the row")
	}
	if tb.Delete("ORD1") {
		t.Fatal("expected second delete to be a no-op")
	}

	if _, ok := tb.RowByKey("ORD1"); ok {
		t.Error("deleted row must not be visible via RowByKey")
	}
	alive := tb.AliveRows()
	if len(alive) != 0 {
		t.Errorf("expected no alive rows after delete, got %d", len(alive))
	}
	// the slot still exists, just tombstoned
	if tb.RowCount() != 1 {
		t.Errorf("expected slot to remain allocated, got RowCount=%d", tb.RowCount())
	}
}

func TestBatchDelete_RemovesKeysUnderOneRebuildAndSkipsUnknownKeys(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.BatchUpsert([]domain.Row{orderRow("A", "AAPL"), orderRow("B", "MSFT"), orderRow("C", "GOOG")})

	removed := tb.BatchDelete([]string{"A", "C", "NOPE"})
	if removed != 2 {
		t.Fatalf("expected 2 keys actually removed, got %d", removed)
	}

	alive := tb.AliveRows()
	if len(alive) != 1 {
		t.Fatalf("expected 1 alive row, got %d", len(alive))
	}
	if _, ok := tb.RowByKey("B"); !ok {
		t.Error("expected B to remain live")
	}
	if _, ok := tb.RowByKey("A"); ok {
		t.Error("expected A to be gone")
	}
}

func TestAliveRows_KeyIndexMatchesLiveCount(t *testing.T) {
	tb := New(domain.OrderBook)
	rows := []domain.Row{orderRow("A", "AAPL"), orderRow("B", "MSFT"), orderRow("C", "GOOG")}
	tb.BatchUpsert(rows)
	tb.Delete("B")

	alive := tb.AliveRows()
	if len(alive) != 2 {
		t.Fatalf("expected 2 alive rows, got %d", len(alive))
	}
	for i := 1; i < len(alive); i++ {
		if alive[i] <= alive[i-1] {
			t.Errorf("alive row projection must be strictly increasing, got %v", alive)
		}
	}
}

func TestBatchUpsert_ReportsCapacityShortfallWithoutFailingWholeBatch(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.slots = make([]domain.Row, domain.MaxSlots-1)
	for i := range tb.slots {
		tb.slots[i] = orderRow("existing", "X")
	}
	tb.keyIndex = map[string]int{}
	tb.rowCount.Store(uint64(len(tb.slots)))

	res := tb.BatchUpsert([]domain.Row{orderRow("NEW1", "AAPL"), orderRow("NEW2", "MSFT")})
	if res.Inserted != 1 || res.Rejected != 1 {
		t.Fatalf("expected 1 inserted and 1 rejected, got %+v", res)
	}
}

func TestRowBySlot_OutOfRangeAndTombstoned(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.Upsert(orderRow("ORD1", "AAPL"))
	tb.Delete("ORD1")

	if _, ok := tb.RowBySlot(99); ok {
		t.Error("out-of-range slot should report ok=false")
	}
	row, ok := tb.RowBySlot(0)
	if !ok {
		t.Fatal("tombstoned slot should still report ok=true")
	}
	if !row.IsTombstoned() {
		t.Error("expected zeroed/tombstoned row for a deleted slot")
	}
}

func TestCell_BoundsCheckedAndTombstoneYieldsNull(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.Upsert(orderRow("ORD1", "AAPL"))

	if _, ok := tb.Cell(0, -1); ok {
		t.Error("negative column should report ok=false")
	}
	if _, ok := tb.Cell(0, domain.ColumnCount); ok {
		t.Error("out-of-range column should report ok=false")
	}

	tb.Delete("ORD1")
	c, ok := tb.Cell(0, domain.SymbolColumn)
	if !ok || !c.IsNull() {
		t.Errorf("expected null cell for tombstoned slot, got ok=%v cell=%v", ok, c)
	}
}

func TestSearch_SubstringMatchOnSymbolColumn(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.BatchUpsert([]domain.Row{
		orderRow("A", "AAPL"),
		orderRow("B", "MSFT"),
		orderRow("C", "GOOGL"),
	})
	tb.Delete("B")

	got := tb.Search("apl", domain.SymbolColumn, 10)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected [0], got %v", got)
	}

	// deleted rows must never surface in search results
	got = tb.Search("msft", domain.SymbolColumn, 10)
	if len(got) != 0 {
		t.Errorf("expected no matches on a deleted row, got %v", got)
	}
}

func TestSearch_LimitBoundsResultCount(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.BatchUpsert([]domain.Row{
		orderRow("A", "AAPL"),
		orderRow("B", "AAPM"),
		orderRow("C", "AAPZ"),
	})

	got := tb.Search("aap", domain.SymbolColumn, 2)
	if len(got) != 2 {
		t.Fatalf("expected search to stop at limit=2, got %d results", len(got))
	}
}

func TestSearch_BoundedAcrossLargeMixedPopulation(t *testing.T) {
	tb := New(domain.OrderBook)
	rows := make([]domain.Row, 0, 1000)
	for i := 0; i < 500; i++ {
		rows = append(rows, orderRow(fmt.Sprintf("A%d", i), "AAPL"))
	}
	for i := 0; i < 500; i++ {
		rows = append(rows, orderRow(fmt.Sprintf("M%d", i), "MSFT"))
	}
	tb.BatchUpsert(rows)

	got := tb.Search("aap", domain.SymbolColumn, 100)
	if len(got) != 100 {
		t.Fatalf("expected exactly 100 results, got %d", len(got))
	}
	for i, slot := range got {
		if i > 0 && slot <= got[i-1] {
			t.Fatalf("expected strictly increasing slot order, got %v", got)
		}
		row, ok := tb.RowBySlot(slot)
		if !ok || row.IsTombstoned() {
			t.Fatalf("expected slot %d to be live", slot)
		}
		if !row.Cells[domain.SymbolColumn].Contains("aap") {
			t.Fatalf("slot %d column 1 does not contain \"aap\": %v", slot, row.Cells[domain.SymbolColumn])
		}
	}
}

func TestUpsert_CapacityExceeded(t *testing.T) {
	tb := New(domain.OrderBook)
	tb.slots = make([]domain.Row, domain.MaxSlots)
	tb.keyIndex = map[string]int{}
	tb.rowCount.Store(uint64(len(tb.slots)))

	_, err := tb.Upsert(orderRow("OVERFLOW", "X"))
	if err != ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}
