package domain

import "tradingengine/pkg/cell"

// ColumnCount is the fixed width every table schema must have (§3).
const ColumnCount = 50

// MaxSlots is the hard capacity cap on live+tombstoned slots per table (§3, §4.2).
const MaxSlots = 2_000_000

// TableName identifies one of the two fixed tables.
type TableName uint8

const (
	OrderBook TableName = iota
	TradeBook
)

func (t TableName) String() string {
	switch t {
	case TradeBook:
		return "TradeBook"
	default:
		return "OrderBook"
	}
}

// ParseTableName maps a wire token to a TableName. Unknown tokens
// default to OrderBook — the decoder is permissive by design (§4.1, §9).
func ParseTableName(s string) TableName {
	if s == "TradeBook" {
		return TradeBook
	}
	return OrderBook
}

// Op identifies the kind of row mutation a message carries.
type Op uint8

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpUpdate:
		return "Update"
	case OpDelete:
		return "Delete"
	default:
		return "Insert"
	}
}

// ParseOp maps a wire token to an Op. Unknown tokens default to Insert
// (§4.1, §9).
func ParseOp(s string) Op {
	switch s {
	case "Update":
		return OpUpdate
	case "Delete":
		return OpDelete
	default:
		return OpInsert
	}
}

// Schema describes one table's fixed column layout: column 0 is always
// the business key, column 1 is always the secondary searchable column
// (§3).
type Schema struct {
	Table   TableName
	Columns [ColumnCount]string
	Types   [ColumnCount]cell.FieldType
}

// ColumnIndex returns the zero-based index of a column name, or -1 if
// the schema has no such column.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// KeyColumn and SymbolColumn are fixed per §3: column 0 is the business
// key, column 1 is the symbol.
const (
	KeyColumn    = 0
	SymbolColumn = 1
)

var orderBookColumns = [ColumnCount]string{
	"OrderId", "Symbol", "Side", "Price", "Quantity", "Timestamp", "Status",
	"OrderType", "TimeInForce", "StopPrice", "LimitPrice", "FilledQuantity",
	"RemainingQuantity", "AvgFillPrice", "Exchange", "ClientId", "AccountId",
	"TraderId", "Strategy", "Portfolio", "RiskLimit", "ExposureAmount",
	"RiskGroup", "MarginRequirement", "Currency", "BidPrice", "AskPrice",
	"MidPrice", "SpreadBps", "BidSize", "AskSize", "LastPrice", "Volume",
	"VWAP",
	"Tag1", "Tag2", "Tag3", "Tag4", "Tag5", "Tag6", "Tag7", "Tag8", "Tag9", "Tag10",
	"Value1", "Value2", "Value3", "Value4", "Value5",
	"Counter1",
}

var tradeBookColumns = [ColumnCount]string{
	"TradeId", "Symbol", "Side", "Price", "Quantity", "Timestamp", "Status",
	"BuyOrderId", "SellOrderId", "Commission", "Fees", "NetAmount",
	"SettlementDate", "ClearingFirm", "Exchange", "BuyerId", "SellerId",
	"BuyerAccount", "SellerAccount", "ExecutingBroker", "RiskGroup",
	"ExposureImpact", "ComplianceStatus", "RegReportingStatus", "Currency",
	"MarketPrice", "PriceDeviation", "MarketImpact", "MarketVolume", "VWAP",
	"TWAPPrice", "TradeCondition",
	"Tag1", "Tag2", "Tag3", "Tag4", "Tag5", "Tag6", "Tag7", "Tag8", "Tag9", "Tag10",
	"Value1", "Value2", "Value3", "Value4", "Value5",
	"Counter1", "Counter2", "Counter3",
}

// decimalColumns and intColumns name the columns of each schema whose
// declared type is not plain text. Everything else in the 50-column
// layout is text — the schemas are dominated by identifiers, enums and
// free-text tags, per §6.
var orderBookDecimalColumns = map[string]bool{
	"Price": true, "StopPrice": true, "LimitPrice": true, "AvgFillPrice": true,
	"MarginRequirement": true, "BidPrice": true, "AskPrice": true, "MidPrice": true,
	"LastPrice": true, "VWAP": true, "ExposureAmount": true,
}
var orderBookIntColumns = map[string]bool{
	"Quantity": true, "FilledQuantity": true, "RemainingQuantity": true,
	"RiskLimit": true, "SpreadBps": true, "BidSize": true, "AskSize": true,
	"Volume": true, "Counter1": true,
}
var orderBookTimestampColumns = map[string]bool{
	"Timestamp": true,
}

var tradeBookDecimalColumns = map[string]bool{
	"Price": true, "Commission": true, "Fees": true, "NetAmount": true,
	"MarketPrice": true, "PriceDeviation": true, "VWAP": true, "TWAPPrice": true,
	"ExposureImpact": true,
}
var tradeBookIntColumns = map[string]bool{
	"Quantity": true, "MarketVolume": true, "Counter1": true, "Counter2": true,
	"Counter3": true,
}
var tradeBookTimestampColumns = map[string]bool{
	"Timestamp": true, "SettlementDate": true,
}

func buildSchema(table TableName, columns [ColumnCount]string, decimals, ints, timestamps map[string]bool) Schema {
	s := Schema{Table: table, Columns: columns}
	for i, name := range columns {
		switch {
		case decimals[name]:
			s.Types[i] = cell.FieldDecimal
		case ints[name]:
			s.Types[i] = cell.FieldInt
		case timestamps[name]:
			s.Types[i] = cell.FieldTimestamp
		default:
			s.Types[i] = cell.FieldText
		}
	}
	return s
}

// OrderBookSchema and TradeBookSchema are the two fixed 50-column
// layouts (§6). The canonical OrderBook width is 50 columns — see the
// Open Question resolution in SPEC_FULL.md §1.
var (
	OrderBookSchema = buildSchema(OrderBook, orderBookColumns, orderBookDecimalColumns, orderBookIntColumns, orderBookTimestampColumns)
	TradeBookSchema = buildSchema(TradeBook, tradeBookColumns, tradeBookDecimalColumns, tradeBookIntColumns, tradeBookTimestampColumns)
)

// SchemaFor returns the fixed schema for a table.
func SchemaFor(t TableName) *Schema {
	if t == TradeBook {
		return &TradeBookSchema
	}
	return &OrderBookSchema
}
