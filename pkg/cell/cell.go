// Package cell implements the tagged-union value stored at every
// (slot, column) position of a table: text, signed integer, decimal,
// timestamp, or null.
package cell

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies which variant of a Cell is populated.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindInt
	KindDecimal
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindTimestamp:
		return "timestamp"
	default:
		return "null"
	}
}

// Cell is a single column value. Only the field matching Kind is
// meaningful; the others are zero. Cell is intentionally small and
// copyable — rows are stored as []Cell, not []interface{}, so there is
// no per-cell heap allocation for the common numeric/timestamp cases.
type Cell struct {
	Kind Kind
	Text string
	Int  int64
	Dec  decimal.Decimal
	// TsMillis is a Unix millisecond timestamp, per the wire format's
	// send_ts_ms convention.
	TsMillis int64
}

// Null returns the null cell.
func Null() Cell { return Cell{Kind: KindNull} }

// IsNull reports whether the cell is the null variant.
func (c Cell) IsNull() bool { return c.Kind == KindNull }

func Text(s string) Cell { return Cell{Kind: KindText, Text: s} }

func Int(v int64) Cell { return Cell{Kind: KindInt, Int: v} }

func Decimal(d decimal.Decimal) Cell { return Cell{Kind: KindDecimal, Dec: d} }

func Timestamp(unixMillis int64) Cell { return Cell{Kind: KindTimestamp, TsMillis: unixMillis} }

// String renders the cell as text for display and for substring search
// (§4.6: "rendered as text and lower-cased").
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindInt:
		return strconv.FormatInt(c.Int, 10)
	case KindDecimal:
		return c.Dec.String()
	case KindTimestamp:
		return time.UnixMilli(c.TsMillis).UTC().Format("2006-01-02 15:04:05.000")
	default:
		return ""
	}
}

// Contains reports whether the cell's text rendering, lower-cased,
// contains needle (already expected to be lower-cased by the caller).
func (c Cell) Contains(lowerNeedle string) bool {
	if lowerNeedle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(c.String()), lowerNeedle)
}

// Declared field types for the fixed 50-column schemas. ParseField uses
// this to decide how to interpret a raw CSV field; unparseable cells
// coerce to the type's zero value rather than failing the whole row
// (spec §3: "Parsing failures store a zero/empty of the declared type").
type FieldType uint8

const (
	FieldText FieldType = iota
	FieldInt
	FieldDecimal
	FieldTimestamp
)

// ParseField converts a raw CSV field into a Cell of the declared type.
// An empty string always yields Null for non-text fields so that
// "missing" and "zero" remain distinguishable in the common case, while
// still satisfying the "never drop the row" policy.
func ParseField(raw string, ft FieldType) Cell {
	switch ft {
	case FieldText:
		return Text(raw)
	case FieldInt:
		if raw == "" {
			return Null()
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Int(0)
		}
		return Int(v)
	case FieldDecimal:
		if raw == "" {
			return Null()
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Decimal(decimal.Zero)
		}
		return Decimal(d)
	case FieldTimestamp:
		if raw == "" {
			return Null()
		}
		ms, err := parseTimestampMillis(raw)
		if err != nil {
			return Timestamp(0)
		}
		return Timestamp(ms)
	default:
		return Text(raw)
	}
}

// parseTimestampMillis accepts either a raw Unix-millisecond integer or
// the "2006-01-02 15:04:05.000"-style layout the reference generator in
// §6 emits, so both synthetic and hand-written test fixtures parse.
func parseTimestampMillis(raw string) (int64, error) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, nil
	}
	layouts := []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02T15:04:05.000Z",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, strconv.ErrSyntax
}
