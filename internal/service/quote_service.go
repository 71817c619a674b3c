package service

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"lob_go/internal/book"
	"lob_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Quote is a top of book rendered in venue units.
type Quote struct {
	Symbol     string           `json:"symbol"`
	Exchange   string           `json:"exchange,omitempty"`
	Bid        *decimal.Decimal `json:"bid"`
	BidQty     *decimal.Decimal `json:"bid_qty"`
	Ask        *decimal.Decimal `json:"ask"`
	AskQty     *decimal.Decimal `json:"ask_qty"`
	Mid        *decimal.Decimal `json:"mid,omitempty"`
	Microprice *decimal.Decimal `json:"microprice,omitempty"`
	Spread     *decimal.Decimal `json:"spread,omitempty"`
	Sequence   uint64           `json:"seq"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// QuoteService keeps the latest top of book per symbol for any number of
// concurrent readers. The engine is its only writer.
type QuoteService struct {
	mu          sync.RWMutex
	tops        map[string]book.TopOfBook
	instruments map[string]domain.Instrument
}

func NewQuoteService(instruments []domain.Instrument) *QuoteService {
	s := &QuoteService{
		tops:        make(map[string]book.TopOfBook),
		instruments: make(map[string]domain.Instrument, len(instruments)),
	}
	for _, in := range instruments {
		s.instruments[in.Symbol] = in
	}
	return s
}

// Update stores tob. Matches the engine's OnUpdate signature.
func (s *QuoteService) Update(tob book.TopOfBook) {
	s.mu.Lock()
	s.tops[tob.Symbol] = tob
	s.mu.Unlock()
}

// GetTopOfBook returns the raw tick view.
func (s *QuoteService) GetTopOfBook(symbol string) (book.TopOfBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tob, ok := s.tops[symbol]
	return tob, ok
}

// Get returns the quote for symbol.
func (s *QuoteService) Get(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tob, ok := s.tops[symbol]
	if !ok {
		return Quote{}, false
	}
	return s.render(tob), true
}

// All returns every quote sorted by symbol.
func (s *QuoteService) All() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Quote, 0, len(s.tops))
	for _, tob := range s.tops {
		result = append(result, s.render(tob))
	}

	// Sort by symbol for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// must be called with lock held
func (s *QuoteService) render(tob book.TopOfBook) Quote {
	in := s.instruments[tob.Symbol]
	pxScale, qtyScale := in.Scales()

	q := Quote{
		Symbol:    tob.Symbol,
		Exchange:  in.Exchange,
		Sequence:  tob.Sequence,
		UpdatedAt: tob.Ts.Time(),
	}
	if tob.HasBid {
		q.Bid = ptr(pxScale.Decimal(int64(tob.Bid.Px)))
		q.BidQty = ptr(qtyScale.Decimal(int64(tob.Bid.Qty)))
	}
	if tob.HasAsk {
		q.Ask = ptr(pxScale.Decimal(int64(tob.Ask.Px)))
		q.AskQty = ptr(qtyScale.Decimal(int64(tob.Ask.Qty)))
	}
	if tob.HasBid && tob.HasAsk {
		q.Mid = ptr(pxScale.Decimal(int64(tob.Mid)))
		q.Microprice = ptr(pxScale.Decimal(int64(tob.Microprice)))
		q.Spread = ptr(pxScale.Decimal(int64(tob.Ask.Px - tob.Bid.Px)))
	}
	return q
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// Handler serves quotes as JSON: all of them, or one with ?symbol=.
func (s *QuoteService) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if sym := r.URL.Query().Get("symbol"); sym != "" {
			q, ok := s.Get(sym)
			if !ok {
				http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(q)
			return
		}
		json.NewEncoder(w).Encode(s.All())
	})
}

