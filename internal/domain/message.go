package domain

import "tradingengine/pkg/cell"

// TimestampMs is a Unix-millisecond timestamp, the unit every wire and
// internal timestamp in this system uses (§3).
type TimestampMs int64

// Row is one table row: a fixed-width vector of cells in schema column
// order. Row is a value type — a row is replaced wholesale on update
// (§4.2: "the row vector is replaced wholesale").
type Row struct {
	Cells [ColumnCount]cell.Cell
}

// Key returns the row's business key (column 0), or "" if that cell is
// not text (should not happen for well-formed rows) or null.
func (r *Row) Key() string {
	c := r.Cells[KeyColumn]
	if c.Kind != cell.KindText {
		return ""
	}
	return c.Text
}

// IsTombstoned reports whether the row's column-0 has been nulled,
// marking the slot deleted while the slot index stays allocated (§3).
func (r *Row) IsTombstoned() bool {
	return r.Cells[KeyColumn].IsNull()
}

// DataMessage carries one row-level change event through the pipeline.
// The six timestamps decorate the message through its life (§3); only
// SendTsMs arrives over the wire, the rest are stamped in-process.
type DataMessage struct {
	Table  TableName
	Op     Op
	Key    string // business key; populated for every op, used directly by Delete
	Fields [ColumnCount]string
	Parsed bool // whether Fields has been split out of the raw payload yet

	SendTsMs       TimestampMs
	ReceiveTsMs    TimestampMs
	QueueTsMs      TimestampMs
	ApplyTsMs      TimestampMs
	RenderStartMs  TimestampMs
	RenderEndMs    TimestampMs
}

// Reset clears a DataMessage back to its zero value so it is safe to
// reuse from a pool (see internal/event).
func (m *DataMessage) Reset() {
	*m = DataMessage{}
}

// ToRow converts a parsed Insert/Update message into a Row using the
// table's schema. Unparseable cells coerce to the declared type's zero
// value rather than failing the row (§3, §4.1).
func (m *DataMessage) ToRow(schema *Schema) Row {
	var row Row
	for i := 0; i < ColumnCount; i++ {
		row.Cells[i] = cell.ParseField(m.Fields[i], schema.Types[i])
	}
	return row
}
