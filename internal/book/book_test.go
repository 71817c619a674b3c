package book

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"lob_go/pkg/quant"
)

func bidAt(level uint8, px quant.Px, qty quant.Qty) L2Update {
	return L2Update{Symbol: "BTC-USD", Side: Bid, Level: level, Price: px, Qty: qty}
}

func askAt(level uint8, px quant.Px, qty quant.Qty) L2Update {
	return L2Update{Symbol: "BTC-USD", Side: Ask, Level: level, Price: px, Qty: qty}
}

func mustApply(t *testing.T, b *OrderBook, u L2Update) {
	t.Helper()
	if err := b.Apply(u); err != nil {
		t.Fatalf("Apply(%+v) failed: %v", u, err)
	}
}

// Prices in cents: 99.50 -> 9950.
func scenarioA(t *testing.T) *OrderBook {
	b := NewOrderBook("BTC-USD", 10)
	mustApply(t, b, bidAt(0, 9950, 100))
	mustApply(t, b, askAt(0, 10050, 150))
	return b
}

func TestOrderBook_ScenarioA(t *testing.T) {
	b := scenarioA(t)

	bid, ok := b.BestBid()
	if !ok || bid != (Level{Px: 9950, Qty: 100}) {
		t.Errorf("Expected best bid (9950,100), got %+v ok=%v", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask != (Level{Px: 10050, Qty: 150}) {
		t.Errorf("Expected best ask (10050,150), got %+v ok=%v", ask, ok)
	}
	spread, ok := b.SpreadTicks()
	if !ok || spread != 100 {
		t.Errorf("Expected spread 100, got %d ok=%v", spread, ok)
	}
	if b.IsCrossed() {
		t.Error("Book should not be crossed")
	}
	if b.Sequence() != 2 {
		t.Errorf("Expected sequence 2, got %d", b.Sequence())
	}
}

func TestOrderBook_ScenarioB_CrossedWriteIsCommitted(t *testing.T) {
	b := scenarioA(t)

	err := b.Apply(bidAt(0, 10100, 100))

	var crossed *CrossedBookError
	if !errors.As(err, &crossed) {
		t.Fatalf("Expected CrossedBookError, got %v", err)
	}
	if crossed.Bid != 10100 || crossed.Ask != 10050 {
		t.Errorf("Expected bid=10100 ask=10050, got bid=%d ask=%d", crossed.Bid, crossed.Ask)
	}
	if !errors.Is(err, ErrCrossedBook) {
		t.Error("CrossedBookError should unwrap to ErrCrossedBook")
	}

	bid, _ := b.BestBid()
	if bid != (Level{Px: 10100, Qty: 100}) {
		t.Errorf("Crossed write should stay committed, got %+v", bid)
	}
	if !b.IsCrossed() {
		t.Error("IsCrossed should report the committed state")
	}
	if b.Sequence() != 3 {
		t.Errorf("Sequence should advance on a crossed write, got %d", b.Sequence())
	}
}

func TestOrderBook_ScenarioC_Microprice(t *testing.T) {
	b := NewOrderBook("BTC-USD", 5)
	mustApply(t, b, bidAt(0, 995000, 1000000))
	mustApply(t, b, askAt(0, 1005000, 2000000))

	mp, ok := b.Microprice()
	if !ok {
		t.Fatal("Microprice should be available")
	}
	if mp != 998333 {
		t.Errorf("Expected microprice 998333, got %d", mp)
	}
}

func TestOrderBook_MicropriceLargeQuantities(t *testing.T) {
	tests := []struct {
		name           string
		bidPx, askPx   quant.Px
		bidQty, askQty quant.Qty
		want           quant.Px
	}{
		// KRW book at price scale 0, qty scale 8: 1 BTC bid against 700 BTC ask.
		{"krw heavy ask", 150000000, 150001000, 100000000, 70000000000, 150000001},
		{"krw balanced", 150000000, 150001000, 70000000000, 70000000000, 150000500},
		{"near int64 limits", 9000000000000000, 9000000000000002, 900000000000000000, 900000000000000000, 9000000000000001},
		{"negative prices truncate toward zero", -10, -5, 1, 3, -8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewOrderBook("BTC-KRW", 5)
			mustApply(t, b, bidAt(0, tt.bidPx, tt.bidQty))
			mustApply(t, b, askAt(0, tt.askPx, tt.askQty))

			mp, ok := b.Microprice()
			if !ok {
				t.Fatal("Microprice should be available")
			}
			if mp < tt.bidPx || mp > tt.askPx {
				t.Errorf("Microprice %d outside [%d, %d]", mp, tt.bidPx, tt.askPx)
			}
			if mp != tt.want {
				t.Errorf("Expected microprice %d, got %d", tt.want, mp)
			}
		})
	}
}

func TestOrderBook_ScenarioD_Imbalance(t *testing.T) {
	b := NewOrderBook("BTC-USD", 5)
	mustApply(t, b, bidAt(0, 100, 300))
	mustApply(t, b, askAt(0, 101, 50))

	imb, ok := b.Imbalance(1)
	if !ok {
		t.Fatal("Imbalance should be available")
	}
	if math.Abs(imb-0.714) > 0.001 {
		t.Errorf("Expected imbalance ~0.714, got %f", imb)
	}
}

func TestOrderBook_Imbalance(t *testing.T) {
	t.Run("empty book", func(t *testing.T) {
		b := NewOrderBook("X", 5)
		if _, ok := b.Imbalance(5); ok {
			t.Error("Imbalance should be absent on an empty book")
		}
	})

	t.Run("bounded by depth", func(t *testing.T) {
		b := NewOrderBook("X", 5)
		mustApply(t, b, bidAt(0, 100, 10))
		mustApply(t, b, bidAt(1, 99, 1000))
		mustApply(t, b, askAt(0, 101, 10))
		imb, _ := b.Imbalance(1)
		if imb != 0 {
			t.Errorf("Expected 0 at depth 1, got %f", imb)
		}
		imb, _ = b.Imbalance(2)
		if imb <= 0.9 || imb > 1.0 {
			t.Errorf("Expected bid-heavy imbalance at depth 2, got %f", imb)
		}
	})

	t.Run("one sided", func(t *testing.T) {
		b := NewOrderBook("X", 5)
		mustApply(t, b, askAt(0, 101, 10))
		imb, ok := b.Imbalance(5)
		if !ok || imb != -1.0 {
			t.Errorf("Expected -1.0, got %f ok=%v", imb, ok)
		}
	})
}

func TestOrderBook_ZeroQtyHidesBestWithoutPromotion(t *testing.T) {
	b := NewOrderBook("BTC-USD", 5)
	mustApply(t, b, bidAt(0, 100, 10))
	mustApply(t, b, bidAt(1, 99, 20))
	mustApply(t, b, askAt(0, 101, 10))

	mustApply(t, b, bidAt(0, 100, quant.QtyZero))

	if _, ok := b.BestBid(); ok {
		t.Error("Best bid should be hidden after zeroing slot 0")
	}
	lvl, ok := b.Bids().At(1)
	if !ok || lvl.Px != 99 {
		t.Errorf("Slot 1 should be untouched, got %+v", lvl)
	}
	if _, ok := b.Mid(); ok {
		t.Error("Mid should be absent with an empty best bid")
	}
	if b.IsCrossed() || b.IsLocked() {
		t.Error("One-sided book is neither crossed nor locked")
	}
	if got := b.Bids().TotalQty(5); got != 20 {
		t.Errorf("Zeroed slot should contribute nothing, total=%d", got)
	}
}

func TestOrderBook_InvalidLevel(t *testing.T) {
	b := NewOrderBook("BTC-USD", 5)
	mustApply(t, b, bidAt(0, 100, 10))
	before := b.StateHash()

	err := b.Apply(bidAt(5, 90, 10))

	var invalid *InvalidLevelError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidLevelError, got %v", err)
	}
	if invalid.Level != 5 || invalid.Depth != 5 {
		t.Errorf("Unexpected error fields: %+v", invalid)
	}
	if !errors.Is(err, ErrInvalidLevel) {
		t.Error("InvalidLevelError should unwrap to ErrInvalidLevel")
	}
	if b.Sequence() != 1 {
		t.Errorf("Rejected update must not advance sequence, got %d", b.Sequence())
	}
	if b.StateHash() != before {
		t.Error("Rejected update must not change state")
	}
}

func TestOrderBook_InvalidSide(t *testing.T) {
	b := NewOrderBook("BTC-USD", 5)
	mustApply(t, b, askAt(0, 101, 10))
	before := b.StateHash()

	err := b.Apply(L2Update{Side: Side(7), Level: 0, Price: 90, Qty: 10})

	var invalid *InvalidSideError
	if !errors.As(err, &invalid) || invalid.Side != 7 {
		t.Fatalf("Expected InvalidSideError for side 7, got %v", err)
	}
	if !errors.Is(err, ErrInvalidSide) {
		t.Error("InvalidSideError should unwrap to ErrInvalidSide")
	}
	if b.Sequence() != 1 || b.StateHash() != before {
		t.Error("Rejected side must not change the book")
	}
}

func TestOrderBook_MidFloors(t *testing.T) {
	tests := []struct {
		name     string
		bid, ask quant.Px
		want     quant.Px
	}{
		{"even", 100, 102, 101},
		{"odd", 100, 101, 100},
		{"negative odd", -3, 0, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewOrderBook("X", 2)
			mustApply(t, b, bidAt(0, tt.bid, 1))
			mustApply(t, b, askAt(0, tt.ask, 1))
			got, ok := b.Mid()
			if !ok || got != tt.want {
				t.Errorf("Mid() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOrderBook_Locked(t *testing.T) {
	b := NewOrderBook("X", 2)
	mustApply(t, b, askAt(0, 100, 1))
	err := b.Apply(bidAt(0, 100, 1))
	if !errors.Is(err, ErrCrossedBook) {
		t.Errorf("Locked book should be reported as crossed, got %v", err)
	}
	if !b.IsLocked() || !b.IsCrossed() {
		t.Error("Expected locked and crossed")
	}
}

func TestOrderBook_Clear(t *testing.T) {
	b := scenarioA(t)
	mustApply(t, b, bidAt(1, 9940, 5))
	mustApply(t, b, bidAt(2, 9930, 5))

	b.Clear()

	if b.Sequence() != 0 {
		t.Errorf("Expected sequence 0 after clear, got %d", b.Sequence())
	}
	if _, ok := b.BestBid(); ok {
		t.Error("Best bid should be empty after clear")
	}
	if b.StateHash() != 0 {
		t.Error("Cleared book should hash to 0")
	}

	// Writing slot 2 after a clear must not resurrect stale slots 0 and 1.
	mustApply(t, b, bidAt(2, 9000, 1))
	fresh := NewOrderBook("BTC-USD", 10)
	mustApply(t, fresh, bidAt(2, 9000, 1))
	if b.StateHash() != fresh.StateHash() {
		t.Error("Stale slots leaked into state after clear")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("Slot 0 should read as empty")
	}
}

func TestOrderBook_ToUpdateMatchesBest(t *testing.T) {
	b := scenarioA(t)
	b.Apply(L2Update{Ts: 42, Side: Bid, Level: 1, Price: 9900, Qty: 7})

	tob := b.ToUpdate()
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if tob.Bid != bid || tob.HasBid != hasBid || tob.Ask != ask || tob.HasAsk != hasAsk {
		t.Errorf("Projection mismatch: %+v", tob)
	}
	if tob.Ts != 42 || tob.Sequence != 3 || tob.Symbol != "BTC-USD" {
		t.Errorf("Unexpected header fields: %+v", tob)
	}

	mid, _ := b.Mid()
	mp, _ := b.Microprice()
	if tob.Mid != mid || tob.Microprice != mp {
		t.Errorf("Expected mid %d microprice %d, got %d %d", mid, mp, tob.Mid, tob.Microprice)
	}

	empty := NewOrderBook("ETH-USD", 3).ToUpdate()
	if empty.HasBid || empty.HasAsk || empty.Mid != 0 || empty.Microprice != 0 {
		t.Error("Empty book projection should carry no levels")
	}
}

func TestNewOrderBook_DepthBounds(t *testing.T) {
	for _, depth := range []int{0, -1, MaxDepth + 1} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("NewOrderBook(depth=%d) should panic", depth)
				}
			}()
			NewOrderBook("X", depth)
		}()
	}
	if b := NewOrderBook("X", MaxDepth); b.Depth() != MaxDepth {
		t.Errorf("Expected depth %d, got %d", MaxDepth, b.Depth())
	}
}

// randomLadder produces slot-consistent updates: bids descend and asks ascend
// from a moving mid, so no update crosses the book.
func randomLadder(seed int64, n, depth int) []L2Update {
	rng := rand.New(rand.NewSource(seed))
	out := make([]L2Update, 0, n)
	for i := 0; i < n; i++ {
		level := uint8(rng.Intn(depth))
		qty := quant.Qty(rng.Intn(50))
		u := L2Update{Ts: quant.TimeStamp(i + 1), Symbol: "BTC-USD", Level: level, Qty: qty}
		if rng.Intn(2) == 0 {
			u.Side = Bid
			u.Price = quant.Px(10000 - 10*int(level))
		} else {
			u.Side = Ask
			u.Price = quant.Px(10010 + 10*int(level))
		}
		out = append(out, u)
	}
	return out
}

func TestOrderBook_NeverCrossedAfterOk(t *testing.T) {
	b := NewOrderBook("BTC-USD", 10)
	for i, u := range randomLadder(7, 5000, 10) {
		if err := b.Apply(u); err != nil {
			t.Fatalf("update %d: unexpected error %v", i, err)
		}
		if b.IsCrossed() {
			t.Fatalf("update %d: book crossed after Ok", i)
		}
		bid, okBid := b.BestBid()
		if slot, ok := b.Bids().At(0); okBid && (!ok || slot != bid) {
			t.Fatalf("update %d: best bid %+v is not slot 0 %+v", i, bid, slot)
		}
	}
}

func TestOrderBook_StateHashDeterministic(t *testing.T) {
	updates := randomLadder(99, 2000, 20)

	live := NewOrderBook("BTC-USD", 20)
	replayed := NewOrderBook("BTC-USD", 20)
	for _, u := range updates {
		live.Apply(u)
	}
	for _, u := range updates {
		replayed.Apply(u)
	}

	if live.StateHash() != replayed.StateHash() {
		t.Errorf("Hash mismatch: live=%x replayed=%x", live.StateHash(), replayed.StateHash())
	}

	replayed.Apply(bidAt(0, 1, 1))
	if live.StateHash() == replayed.StateHash() {
		t.Error("Diverged books should hash differently")
	}
}

func TestOrderBook_StateHashKnownValue(t *testing.T) {
	b := NewOrderBook("X", 2)
	mustApply(t, b, bidAt(0, -1, 2))

	// h = ((0*31 + uint64(-1)) * 31) + 2 with wrapping.
	h := uint64(math.MaxUint64)
	want := h*31 + 2
	if got := b.StateHash(); got != want {
		t.Errorf("StateHash() = %d, want %d", got, want)
	}
}
