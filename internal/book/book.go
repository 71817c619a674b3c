// Package book is the in-memory L2 limit order book for a single instrument.
//
// An OrderBook mirrors exchange-visible depth; it never matches or originates
// trades. It is a single-owner value: Apply must be called from one goroutine
// in feed order. It performs no I/O, takes no locks and does not allocate after
// construction.
package book

import (
	"fmt"
	"math/bits"

	"lob_go/pkg/quant"
)

const (
	// DefaultDepth is the number of levels tracked per side when none is configured.
	DefaultDepth = 20

	// MaxDepth is bounded by the uint8 level index of L2Update.
	MaxDepth = 256
)

// OrderBook owns the bid and ask sides of one instrument.
type OrderBook struct {
	symbol       string
	lastUpdateTs quant.TimeStamp
	sequence     uint64
	bids         SideBook
	asks         SideBook
}

// NewOrderBook creates an empty book tracking depth levels per side.
func NewOrderBook(symbol string, depth int) *OrderBook {
	if depth <= 0 || depth > MaxDepth {
		panic(fmt.Sprintf("book: depth %d out of range [1, %d]", depth, MaxDepth))
	}
	return &OrderBook{
		symbol: symbol,
		bids:   NewSideBook(depth),
		asks:   NewSideBook(depth),
	}
}

// Apply writes one update and then checks the crossed-book invariant.
//
// The write is committed before validation and is not rolled back: on a
// *CrossedBookError the slot already holds the new value and the caller must
// resynchronize (Clear + fresh snapshot). An out-of-range level is rejected
// before anything changes, including the sequence. So is a side other than
// Bid or Ask.
func (b *OrderBook) Apply(u L2Update) error {
	var side *SideBook
	switch u.Side {
	case Bid:
		side = &b.bids
	case Ask:
		side = &b.asks
	default:
		return &InvalidSideError{Side: u.Side}
	}
	if int(u.Level) >= side.Cap() {
		return &InvalidLevelError{Level: u.Level, Depth: side.Cap()}
	}

	b.lastUpdateTs = u.Ts
	b.sequence++
	side.Set(int(u.Level), u.Price, u.Qty)

	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	if okBid && okAsk && bid.Px >= ask.Px {
		return &CrossedBookError{Bid: bid.Px, Ask: ask.Px}
	}
	return nil
}

// BestBid returns bid slot 0.
func (b *OrderBook) BestBid() (Level, bool) { return b.bids.Best() }

// BestAsk returns ask slot 0.
func (b *OrderBook) BestAsk() (Level, bool) { return b.asks.Best() }

// Mid returns (bid + ask) >> 1, flooring for odd sums.
func (b *OrderBook) Mid() (quant.Px, bool) {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Px + ask.Px) >> 1, true
}

// Microprice returns the size-weighted mid
// (bidPx*askQty + askPx*bidQty) / (bidQty + askQty), truncated toward zero.
// The numerator is formed in 128 bits: price times quantity in ticks
// overflows int64 on ordinary books. Falls back to Mid when the combined
// quantity is zero.
func (b *OrderBook) Microprice() (quant.Px, bool) {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	if !okBid || !okAsk {
		return 0, false
	}
	total := int64(bid.Qty) + int64(ask.Qty)
	if total == 0 {
		return b.Mid()
	}
	hi1, lo1 := mul128(int64(bid.Px), int64(ask.Qty))
	hi2, lo2 := mul128(int64(ask.Px), int64(bid.Qty))
	lo, carry := bits.Add64(lo1, lo2, 0)
	hi, _ := bits.Add64(hi1, hi2, carry)
	return quant.Px(div128(hi, lo, total)), true
}

// mul128 returns a*b as a two's complement 128-bit value.
func mul128(a, b int64) (hi, lo uint64) {
	hi, lo = bits.Mul64(abs64(a), abs64(b))
	if (a < 0) != (b < 0) {
		hi, lo = neg128(hi, lo)
	}
	return hi, lo
}

// div128 divides a signed 128-bit value by d, truncating toward zero. The
// quotient must fit in int64.
func div128(hi, lo uint64, d int64) int64 {
	neg := int64(hi) < 0
	if neg {
		hi, lo = neg128(hi, lo)
	}
	if d < 0 {
		neg = !neg
	}
	ud := abs64(d)
	q, _ := bits.Div64(hi%ud, lo, ud)
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func neg128(hi, lo uint64) (uint64, uint64) {
	lo, borrow := bits.Sub64(0, lo, 0)
	hi, _ = bits.Sub64(0, hi, borrow)
	return hi, lo
}

func abs64(x int64) uint64 {
	if x < 0 {
		return uint64(^x) + 1
	}
	return uint64(x)
}

// SpreadTicks returns ask - bid.
func (b *OrderBook) SpreadTicks() (quant.Px, bool) {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Px - bid.Px, true
}

// Imbalance returns (bidQty - askQty) / (bidQty + askQty) over the first depth
// levels of each side. It is a dimensionless ratio, the only float in the book.
func (b *OrderBook) Imbalance(depth int) (float64, bool) {
	bq := int64(b.bids.TotalQty(depth))
	aq := int64(b.asks.TotalQty(depth))
	total := bq + aq
	if total == 0 {
		return 0, false
	}
	return float64(bq-aq) / float64(total), true
}

// IsCrossed reports best bid >= best ask. False when a side is empty.
func (b *OrderBook) IsCrossed() bool {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	return okBid && okAsk && bid.Px >= ask.Px
}

// IsLocked reports best bid == best ask. False when a side is empty.
func (b *OrderBook) IsLocked() bool {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	return okBid && okAsk && bid.Px == ask.Px
}

// Clear empties both sides and resets the sequence. Used for resubscription
// and resync.
func (b *OrderBook) Clear() {
	b.bids.Clear()
	b.asks.Clear()
	b.sequence = 0
}

// ToUpdate projects the current best bid and ask, with mid and microprice
// when both are present.
func (b *OrderBook) ToUpdate() TopOfBook {
	tob := TopOfBook{
		Symbol:   b.symbol,
		Ts:       b.lastUpdateTs,
		Sequence: b.sequence,
	}
	tob.Bid, tob.HasBid = b.bids.Best()
	tob.Ask, tob.HasAsk = b.asks.Best()
	if tob.HasBid && tob.HasAsk {
		tob.Mid, _ = b.Mid()
		tob.Microprice, _ = b.Microprice()
	}
	return tob
}

// Symbol returns the instrument the book mirrors.
func (b *OrderBook) Symbol() string { return b.symbol }

// Sequence counts applied updates since construction or the last Clear.
func (b *OrderBook) Sequence() uint64 { return b.sequence }

// LastUpdateTs is the timestamp of the last applied update.
func (b *OrderBook) LastUpdateTs() quant.TimeStamp { return b.lastUpdateTs }

// Depth is the slot count of each side.
func (b *OrderBook) Depth() int { return b.bids.Cap() }

// Bids exposes the bid side for read-only inspection.
func (b *OrderBook) Bids() *SideBook { return &b.bids }

// Asks exposes the ask side for read-only inspection.
func (b *OrderBook) Asks() *SideBook { return &b.asks }
