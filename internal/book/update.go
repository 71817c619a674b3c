package book

import "lob_go/pkg/quant"

// Side selects one half of the book.
type Side uint8

const (
	Bid Side = iota
	Ask
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// L2Update is an absolute statement: slot Level on Side now holds (Price, Qty).
// It is not a delta. Qty == quant.QtyZero empties the slot.
type L2Update struct {
	Ts     quant.TimeStamp
	Symbol string
	Side   Side
	Price  quant.Px
	Qty    quant.Qty
	Level  uint8
}

// Level is one (price, quantity) slot.
type Level struct {
	Px  quant.Px  `json:"px,string"`
	Qty quant.Qty `json:"qty,string"`
}

// TopOfBook is the outbound best-bid/best-ask summary broadcast to consumers.
type TopOfBook struct {
	Symbol   string          `json:"symbol"`
	Ts       quant.TimeStamp `json:"ts,string"`
	Sequence uint64          `json:"seq"`
	Bid      Level           `json:"bid"`
	HasBid   bool            `json:"has_bid"`
	Ask      Level           `json:"ask"`
	HasAsk   bool            `json:"has_ask"`

	// Set only when both sides are present.
	Mid        quant.Px `json:"mid,string"`
	Microprice quant.Px `json:"microprice,string"`
}
