package upbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"lob_go/internal/book"
	"lob_go/internal/domain"
	"lob_go/internal/event"
	"lob_go/internal/infra"
	"lob_go/internal/infra/feed"
	"lob_go/pkg/quant"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	DefaultWSURL = "wss://api.upbit.com/websocket/v1"
	Exchange     = "UPBIT"
	maxCodes     = 50
)

// orderbookResponse is one Upbit orderbook snapshot (DEFAULT format).
type orderbookResponse struct {
	Type      string          `json:"type"` // orderbook
	Code      string          `json:"code"` // KRW-BTC
	Timestamp int64           `json:"timestamp"`
	Units     []orderbookUnit `json:"orderbook_units"`
}

type orderbookUnit struct {
	AskPrice decimal.Decimal `json:"ask_price"`
	BidPrice decimal.Decimal `json:"bid_price"`
	AskSize  decimal.Decimal `json:"ask_size"`
	BidSize  decimal.Decimal `json:"bid_size"`
}

type instrument struct {
	symbol   string
	pxScale  quant.Scale
	qtyScale quant.Scale
}

// Worker streams Upbit orderbook snapshots into the engine inbox.
type Worker struct {
	url     string
	codes   []string
	symbols []string
	byCode  map[string]instrument
	inbox   chan<- event.Event
	ladder  *feed.Ladder
	metrics *infra.Metrics
	conn    feed.WSConn

	// scratch buffers, owned by the read goroutine
	evs        []*event.L2UpdateEvent
	bids, asks []book.Level
}

// NewWorker creates a worker for the given instruments, keyed by Upbit market code.
func NewWorker(url string, instruments []domain.Instrument, inbox chan<- event.Event, m *infra.Metrics) *Worker {
	if url == "" {
		url = DefaultWSURL
	}
	w := &Worker{
		url:     url,
		byCode:  make(map[string]instrument, len(instruments)),
		inbox:   inbox,
		ladder:  feed.NewLadder(Exchange),
		metrics: m,
	}
	for _, in := range instruments {
		if len(w.codes) == maxCodes {
			slog.Warn("Upbit subscription limit reached", slog.String("skipped", in.Symbol))
			continue
		}
		px, qty := in.Scales()
		w.byCode[in.VenueSymbol] = instrument{symbol: in.Symbol, pxScale: px, qtyScale: qty}
		w.codes = append(w.codes, in.VenueSymbol)
		w.symbols = append(w.symbols, in.Symbol)
		w.ladder.Track(in.Symbol, in.Depth)
	}
	return w
}

func (w *Worker) Name() string      { return Exchange }
func (w *Worker) Symbols() []string { return w.symbols }

func (w *Worker) Connect(ctx context.Context) error {
	return w.conn.Dial(ctx, w.url, make(http.Header))
}

// Subscribe sends the orderbook subscription with a fresh ticket.
func (w *Worker) Subscribe(ctx context.Context) error {
	msg := []map[string]interface{}{
		{"ticket": uuid.NewString()},
		{"type": "orderbook", "codes": w.codes},
		{"format": "DEFAULT"},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return domain.NewFatalNetworkError("subscribe", err)
	}
	return w.conn.Write(websocket.TextMessage, b)
}

// Run reads until the connection fails or ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := w.conn.CloseOnDone(ctx)
	defer stop()
	go w.conn.PingLoop(ctx, feed.PingInterval, nil)

	for {
		msg, err := w.conn.Read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := w.handleMessage(msg); err != nil {
			slog.Warn("Upbit message dropped", slog.Any("error", err))
		}
	}
}

func (w *Worker) Close() error { return w.conn.Close() }

func (w *Worker) RequestResync(symbol string) { w.ladder.Reset(symbol) }

func (w *Worker) handleMessage(msg []byte) error {
	var resp orderbookResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return err
	}
	if resp.Type != "orderbook" {
		return nil
	}
	in, ok := w.byCode[resp.Code]
	if !ok {
		return fmt.Errorf("%s: %w", resp.Code, domain.ErrInvalidSymbol)
	}

	w.bids = w.bids[:0]
	w.asks = w.asks[:0]
	for _, u := range resp.Units {
		bid, err := toLevel(in, u.BidPrice, u.BidSize)
		if err != nil {
			return err
		}
		ask, err := toLevel(in, u.AskPrice, u.AskSize)
		if err != nil {
			return err
		}
		w.bids = append(w.bids, bid)
		w.asks = append(w.asks, ask)
	}

	w.evs = w.ladder.Diff(w.evs[:0], in.symbol, quant.FromUnixMilli(resp.Timestamp), w.bids, w.asks)
	feed.Emit(w.inbox, w.evs, w.ladder, in.symbol, w.metrics)
	return nil
}

func toLevel(in instrument, price, size decimal.Decimal) (book.Level, error) {
	px, err := in.pxScale.Px(price)
	if err != nil {
		return book.Level{}, fmt.Errorf("%s price %s: %w", in.symbol, price, err)
	}
	qty, err := in.qtyScale.Qty(size)
	if err != nil {
		return book.Level{}, fmt.Errorf("%s size %s: %w", in.symbol, size, err)
	}
	return book.Level{Px: px, Qty: qty}, nil
}
