package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"lob_go/internal/book"
	"lob_go/internal/domain"
	"lob_go/internal/event"
	"lob_go/internal/infra"
	"lob_go/internal/infra/feed"
	"lob_go/pkg/quant"

	"github.com/gorilla/websocket"
)

type instrument struct {
	symbol   string
	pxScale  quant.Scale
	qtyScale quant.Scale
}

// Worker streams Bitget books15 snapshots for one instType (SPOT or USDT-FUTURES).
type Worker struct {
	url      string
	instType string
	symbols  []string
	byInstId map[string]instrument
	inbox    chan<- event.Event
	ladder   *feed.Ladder
	metrics  *infra.Metrics
	conn     feed.WSConn

	seqMu   sync.Mutex
	lastSeq map[string]int64

	// scratch buffers, owned by the read goroutine
	evs        []*event.L2UpdateEvent
	bids, asks []book.Level
}

func NewWorker(url, instType string, instruments []domain.Instrument, inbox chan<- event.Event, m *infra.Metrics) *Worker {
	if url == "" {
		url = DefaultWSURL
	}
	if instType == "" {
		instType = InstTypeSpot
	}
	w := &Worker{
		url:      url,
		instType: instType,
		byInstId: make(map[string]instrument, len(instruments)),
		inbox:    inbox,
		ladder:   feed.NewLadder(Exchange),
		metrics:  m,
		lastSeq:  make(map[string]int64),
	}
	for _, in := range instruments {
		px, qty := in.Scales()
		w.byInstId[in.VenueSymbol] = instrument{symbol: in.Symbol, pxScale: px, qtyScale: qty}
		w.symbols = append(w.symbols, in.Symbol)
		w.ladder.Track(in.Symbol, in.Depth)
	}
	return w
}

func (w *Worker) Name() string      { return Exchange + "_" + w.instType }
func (w *Worker) Symbols() []string { return w.symbols }

func (w *Worker) Connect(ctx context.Context) error {
	w.seqMu.Lock()
	clear(w.lastSeq)
	w.seqMu.Unlock()
	return w.conn.Dial(ctx, w.url, nil)
}

func (w *Worker) Subscribe(ctx context.Context) error {
	args := make([]subscribeArg, 0, len(w.byInstId))
	for id := range w.byInstId {
		args = append(args, subscribeArg{InstType: w.instType, Channel: booksChannel, InstId: id})
	}
	b, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: args})
	if err != nil {
		return domain.NewFatalNetworkError("subscribe", err)
	}
	return w.conn.Write(websocket.TextMessage, b)
}

// Run reads until the connection fails or ctx ends. Bitget expects a text
// "ping" at least every 30 seconds.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := w.conn.CloseOnDone(ctx)
	defer stop()
	go w.conn.PingLoop(ctx, feed.PingInterval, []byte("ping"))

	for {
		msg, err := w.conn.Read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if string(msg) == "pong" {
			continue
		}
		if err := w.handleMessage(msg); err != nil {
			var ne *domain.NetworkError
			if errors.As(err, &ne) {
				return err
			}
			slog.Debug("Bitget message dropped", slog.String("feed", w.Name()), slog.Any("error", err))
		}
	}
}

func (w *Worker) Close() error { return w.conn.Close() }

func (w *Worker) RequestResync(symbol string) { w.ladder.Reset(symbol) }

func (w *Worker) handleMessage(msg []byte) error {
	var resp pushMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		return err
	}
	if resp.Event == "error" {
		// Rejected subscriptions do not recover by reconnecting.
		return domain.NewFatalNetworkError("subscribe", fmt.Errorf("code=%s msg=%s: %w", resp.Code, resp.Msg, domain.ErrInvalidSymbol))
	}
	if resp.Arg.Channel != booksChannel || len(resp.Data) == 0 {
		return nil
	}

	in, ok := w.byInstId[resp.Arg.InstId]
	if !ok {
		return fmt.Errorf("%s: %w", resp.Arg.InstId, domain.ErrInvalidSymbol)
	}

	for i := range resp.Data {
		if err := w.handleSnapshot(in, &resp.Data[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) handleSnapshot(in instrument, snap *booksSnapshot) error {
	ms, err := strconv.ParseInt(snap.Ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%s ts %q: %w", in.symbol, snap.Ts, err)
	}

	w.seqMu.Lock()
	if last, ok := w.lastSeq[in.symbol]; ok && snap.Seq <= last {
		w.seqMu.Unlock()
		return fmt.Errorf("%s seq %d <= %d: %w", in.symbol, snap.Seq, last, domain.ErrStaleSnapshot)
	}
	w.lastSeq[in.symbol] = snap.Seq
	w.seqMu.Unlock()

	if w.bids, err = toLevels(w.bids[:0], in, snap.Bids); err != nil {
		return err
	}
	if w.asks, err = toLevels(w.asks[:0], in, snap.Asks); err != nil {
		return err
	}

	w.evs = w.ladder.Diff(w.evs[:0], in.symbol, quant.FromUnixMilli(ms), w.bids, w.asks)
	feed.Emit(w.inbox, w.evs, w.ladder, in.symbol, w.metrics)
	return nil
}

func toLevels(dst []book.Level, in instrument, raw [][2]string) ([]book.Level, error) {
	for _, pair := range raw {
		px, err := in.pxScale.ParsePx(pair[0])
		if err != nil {
			return dst, fmt.Errorf("%s price %q: %w", in.symbol, pair[0], err)
		}
		qty, err := in.qtyScale.ParseQty(pair[1])
		if err != nil {
			return dst, fmt.Errorf("%s size %q: %w", in.symbol, pair[1], err)
		}
		dst = append(dst, book.Level{Px: px, Qty: qty})
	}
	return dst, nil
}
