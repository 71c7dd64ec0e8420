package wire

import (
	"strings"
	"testing"

	"tradingengine/internal/domain"
	"tradingengine/internal/event"
)

func fiftyFields(key, symbol string) string {
	fields := make([]string, domain.ColumnCount)
	fields[0] = key
	fields[1] = symbol
	for i := 2; i < domain.ColumnCount; i++ {
		fields[i] = "x"
	}
	return strings.Join(fields, ",")
}

func TestDecoder_InsertThenRead(t *testing.T) {
	d := NewDecoder()
	line := "OrderBook,Insert,1000," + fiftyFields("ORD1", "AAPL") + "\n"

	msgs := d.Feed([]byte(line))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Table != domain.OrderBook || m.Op != domain.OpInsert {
		t.Errorf("got table=%v op=%v", m.Table, m.Op)
	}
	if m.Key != "ORD1" || m.Fields[1] != "AAPL" {
		t.Errorf("got key=%q symbol=%q", m.Key, m.Fields[1])
	}
	event.Release(m)
}

func TestDecoder_PartialFrameAcrossFeeds(t *testing.T) {
	d := NewDecoder()
	full := "OrderBook,Insert,1000," + fiftyFields("ORD1", "AAPL") + "\n"
	mid := len(full) / 2

	if msgs := d.Feed([]byte(full[:mid])); len(msgs) != 0 {
		t.Fatalf("expected no messages from a partial frame, got %d", len(msgs))
	}
	msgs := d.Feed([]byte(full[mid:]))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message once the frame completes, got %d", len(msgs))
	}
	event.Release(msgs[0])
}

func TestDecoder_UnknownTableAndOpDefault(t *testing.T) {
	d := NewDecoder()
	line := "Weird,Mystery,1000," + fiftyFields("K1", "S1") + "\n"
	msgs := d.Feed([]byte(line))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Table != domain.OrderBook {
		t.Errorf("unknown table should default to OrderBook, got %v", msgs[0].Table)
	}
	if msgs[0].Op != domain.OpInsert {
		t.Errorf("unknown op should default to Insert, got %v", msgs[0].Op)
	}
	event.Release(msgs[0])
}

func TestDecoder_BadFrameIsSkippedAndCounted(t *testing.T) {
	d := NewDecoder()
	line := "OrderBook,Insert,3000,only,three,fields\n"
	msgs := d.Feed([]byte(line))
	if len(msgs) != 0 {
		t.Fatalf("expected frame to be dropped, got %d messages", len(msgs))
	}
	if d.ParseErrors() != 1 {
		t.Errorf("expected 1 parse error, got %d", d.ParseErrors())
	}
}

func TestDecoder_DeletePayloadIsJustTheKey(t *testing.T) {
	d := NewDecoder()
	line := "OrderBook,Delete,2000,ORD1\n"
	msgs := d.Feed([]byte(line))
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Op != domain.OpDelete || msgs[0].Key != "ORD1" {
		t.Errorf("got op=%v key=%q", msgs[0].Op, msgs[0].Key)
	}
	event.Release(msgs[0])
}

func TestDecoder_JSONFrameRejected(t *testing.T) {
	d := NewDecoder()
	line := `{"table":"OrderBook"}` + "\n"
	msgs := d.Feed([]byte(line))
	if len(msgs) != 0 {
		t.Fatalf("expected JSON frame to be rejected by the CSV-only decoder, got %d", len(msgs))
	}
	if d.ParseErrors() != 1 {
		t.Errorf("expected 1 parse error, got %d", d.ParseErrors())
	}
}

func TestFormatFrame_RoundTrip(t *testing.T) {
	d := NewDecoder()
	original := "OrderBook,Insert,1000," + fiftyFields("ORD1", "AAPL") + "\n"
	msgs := d.Feed([]byte(original))
	if len(msgs) != 1 {
		t.Fatalf("setup: expected 1 message, got %d", len(msgs))
	}

	formatted := FormatFrame(msgs[0])
	event.Release(msgs[0])

	d2 := NewDecoder()
	reparsed := d2.Feed([]byte(formatted + "\n"))
	if len(reparsed) != 1 {
		t.Fatalf("expected round-tripped frame to parse, got %d messages", len(reparsed))
	}
	if reparsed[0].Key != "ORD1" || reparsed[0].Fields[1] != "AAPL" {
		t.Errorf("round trip mismatch: key=%q symbol=%q", reparsed[0].Key, reparsed[0].Fields[1])
	}
	event.Release(reparsed[0])
}

func TestFormatFrame_DeleteRoundTrip(t *testing.T) {
	d := NewDecoder()
	msgs := d.Feed([]byte("OrderBook,Delete,2000,ORD1\n"))
	formatted := FormatFrame(msgs[0])
	event.Release(msgs[0])

	if formatted != "OrderBook,Delete,2000,ORD1" {
		t.Errorf("got %q", formatted)
	}
}
