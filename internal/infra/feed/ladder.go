// Package feed holds the venue-independent half of the feed adapters: the
// snapshot-to-slot differ, the reconnect supervisor and the resync router.
package feed

import (
	"sync"

	"lob_go/internal/book"
	"lob_go/internal/event"
	"lob_go/pkg/quant"
)

type sideState struct {
	slots []book.Level
	n     int // slots emitted for the current snapshot
	high  int // highest slot count emitted since the last full re-emit
}

type ladderState struct {
	bids  sideState
	asks  sideState
	valid bool
}

// Ladder remembers the slots last emitted per symbol and turns full top-N
// venue snapshots into positional L2 updates for the slots that changed.
type Ladder struct {
	mu       sync.Mutex
	exchange string
	books    map[string]*ladderState
}

func NewLadder(exchange string) *Ladder {
	return &Ladder{exchange: exchange, books: make(map[string]*ladderState)}
}

// Track registers symbol with a fixed depth. Snapshots for untracked symbols are ignored.
func (l *Ladder) Track(symbol string, depth int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.books[symbol] = &ladderState{
		bids: sideState{slots: make([]book.Level, depth)},
		asks: sideState{slots: make([]book.Level, depth)},
	}
}

// Reset forces the next snapshot for symbol to be emitted in full.
func (l *Ladder) Reset(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.books[symbol]; ok {
		st.valid = false
	}
}

// Diff appends to dst one pooled event per changed slot. bids must be
// descending and asks ascending; levels past the tracked depth are cut.
//
// Ordering keeps every intermediate book uncrossed: when the best ask moves
// away the ask side goes first, otherwise the bid side does.
func (l *Ladder) Diff(dst []*event.L2UpdateEvent, symbol string, ts quant.TimeStamp, bids, asks []book.Level) []*event.L2UpdateEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.books[symbol]
	if !ok {
		return dst
	}
	full := !st.valid
	st.valid = true

	if asksFirst(&st.asks, asks) {
		dst = l.diffSide(dst, &st.asks, book.Ask, symbol, ts, asks, full)
		dst = l.diffSide(dst, &st.bids, book.Bid, symbol, ts, bids, full)
	} else {
		dst = l.diffSide(dst, &st.bids, book.Bid, symbol, ts, bids, full)
		dst = l.diffSide(dst, &st.asks, book.Ask, symbol, ts, asks, full)
	}
	return dst
}

func asksFirst(old *sideState, asks []book.Level) bool {
	if len(asks) == 0 || asks[0].Qty == quant.QtyZero {
		return true
	}
	if old.n == 0 || old.slots[0].Qty == quant.QtyZero {
		return false
	}
	return asks[0].Px > old.slots[0].Px
}

func (l *Ladder) diffSide(dst []*event.L2UpdateEvent, st *sideState, side book.Side, symbol string, ts quant.TimeStamp, levels []book.Level, full bool) []*event.L2UpdateEvent {
	depth := len(st.slots)
	if len(levels) > depth {
		levels = levels[:depth]
	}

	for i, lv := range levels {
		if !full && i < st.n && st.slots[i] == lv {
			continue
		}
		st.slots[i] = lv
		dst = append(dst, l.newEvent(symbol, ts, side, uint8(i), lv))
	}

	// Slots the venue no longer reports are zeroed.
	stale := st.n
	if full {
		stale = st.high
	}
	for i := len(levels); i < stale; i++ {
		st.slots[i] = book.Level{}
		dst = append(dst, l.newEvent(symbol, ts, side, uint8(i), book.Level{}))
	}

	st.n = len(levels)
	if full || st.n > st.high {
		st.high = st.n
	}
	return dst
}

func (l *Ladder) newEvent(symbol string, ts quant.TimeStamp, side book.Side, level uint8, lv book.Level) *event.L2UpdateEvent {
	ev := event.AcquireL2UpdateEvent()
	ev.Ts = ts
	ev.Symbol = symbol
	ev.Side = side
	ev.Price = lv.Px
	ev.Qty = lv.Qty
	ev.Level = level
	ev.Exchange = l.exchange
	return ev
}
