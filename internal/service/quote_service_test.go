package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"lob_go/internal/book"
	"lob_go/internal/domain"
	"lob_go/pkg/quant"
)

var testInstruments = []domain.Instrument{
	{Symbol: "BTCUSDT", Exchange: "BITGET", PriceScale: 2, QtyScale: 6},
	{Symbol: "BTC-KRW", Exchange: "UPBIT", PriceScale: 0, QtyScale: 8},
}

// tob builds the projection through a real book so mid and microprice are
// the book's own.
func tob(symbol string, bid, ask int64) book.TopOfBook {
	b := book.NewOrderBook(symbol, 5)
	if bid > 0 {
		b.Apply(book.L2Update{Side: book.Bid, Price: quant.Px(bid), Qty: 1500000})
	}
	if ask > 0 {
		b.Apply(book.L2Update{Side: book.Ask, Price: quant.Px(ask), Qty: 250000})
	}
	t := b.ToUpdate()
	t.Ts = quant.FromUnixMilli(1700000000000)
	t.Sequence = 7
	return t
}

func TestQuoteService_Render(t *testing.T) {
	svc := NewQuoteService(testInstruments)
	svc.Update(tob("BTCUSDT", 3000001, 3000004))

	q, ok := svc.Get("BTCUSDT")
	if !ok {
		t.Fatal("BTCUSDT quote should exist")
	}
	if q.Bid.String() != "30000.01" || q.Ask.String() != "30000.04" {
		t.Errorf("Expected 30000.01/30000.04, got %s/%s", q.Bid, q.Ask)
	}
	if q.BidQty.String() != "1.5" || q.AskQty.String() != "0.25" {
		t.Errorf("Expected qty 1.5/0.25, got %s/%s", q.BidQty, q.AskQty)
	}
	// (3000001 + 3000004) >> 1 = 3000002
	if q.Mid.String() != "30000.02" || q.Spread.String() != "0.03" {
		t.Errorf("Expected mid 30000.02 spread 0.03, got %s %s", q.Mid, q.Spread)
	}
	// (3000001*250000 + 3000004*1500000) / 1750000 = 3000003.57
	if q.Microprice.String() != "30000.03" {
		t.Errorf("Expected microprice 30000.03, got %s", q.Microprice)
	}
	if q.Exchange != "BITGET" || q.Sequence != 7 {
		t.Errorf("Unexpected quote header: %+v", q)
	}
}

func TestQuoteService_OneSided(t *testing.T) {
	svc := NewQuoteService(testInstruments)
	svc.Update(tob("BTC-KRW", 50000000, 0))

	q, _ := svc.Get("BTC-KRW")
	if q.Bid == nil || q.Ask != nil || q.Mid != nil || q.Microprice != nil {
		t.Errorf("Expected bid only, got %+v", q)
	}
}

func TestQuoteService_AllSorted(t *testing.T) {
	svc := NewQuoteService(testInstruments)
	svc.Update(tob("BTCUSDT", 1, 2))
	svc.Update(tob("BTC-KRW", 1, 2))
	svc.Update(tob("BTCUSDT", 3, 4))

	all := svc.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(all))
	}
	if all[0].Symbol != "BTC-KRW" || all[1].Symbol != "BTCUSDT" {
		t.Errorf("Expected sorted symbols, got %s, %s", all[0].Symbol, all[1].Symbol)
	}
	if raw, _ := svc.GetTopOfBook("BTCUSDT"); raw.Bid.Px != 3 {
		t.Errorf("Expected latest update to win, got %d", raw.Bid.Px)
	}
}

func TestQuoteService_ConcurrentReaders(t *testing.T) {
	svc := NewQuoteService(testInstruments)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 1000; i++ {
			svc.Update(tob("BTCUSDT", i, i+1))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if q, ok := svc.Get("BTCUSDT"); ok && q.Bid.GreaterThanOrEqual(*q.Ask) {
					t.Errorf("Torn read: %s >= %s", q.Bid, q.Ask)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestQuoteService_Handler(t *testing.T) {
	svc := NewQuoteService(testInstruments)
	svc.Update(tob("BTCUSDT", 3000001, 3000004))
	h := svc.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/books", nil))
	var all []Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil || len(all) != 1 {
		t.Fatalf("Expected 1 quote, got %s (err %v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/books?symbol=BTCUSDT", nil))
	var one Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil || one.Ask.String() != "30000.04" {
		t.Errorf("Unexpected single quote: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/books?symbol=NOPE", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
