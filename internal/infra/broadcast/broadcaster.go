// Package broadcast conflates top-of-book updates and ships them to a sink.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"lob_go/internal/book"
)

// MessageVersion is bumped on incompatible payload changes.
const MessageVersion = 1

// Message is the outbound payload, keyed by symbol.
type Message struct {
	V    int    `json:"v"`
	Type string `json:"type"`
	book.TopOfBook
}

func newMessage(tob book.TopOfBook) Message {
	return Message{V: MessageVersion, Type: "top_of_book", TopOfBook: tob}
}

// Encode returns the record key and JSON value.
func (m Message) Encode() (key, value []byte, err error) {
	value, err = json.Marshal(m)
	return []byte(m.Symbol), value, err
}

// Sink delivers a batch. Messages within a batch have distinct symbols.
type Sink interface {
	Send(ctx context.Context, batch []Message) error
	Close() error
}

// Broadcaster keeps only the latest top of book per symbol between flushes,
// so Publish never blocks the engine no matter how slow the sink is.
type Broadcaster struct {
	sink     Sink
	interval time.Duration

	mu      sync.Mutex
	pending map[string]book.TopOfBook
}

func New(sink Sink, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Broadcaster{
		sink:     sink,
		interval: interval,
		pending:  make(map[string]book.TopOfBook),
	}
}

// Publish records tob; a later update for the same symbol replaces it.
func (b *Broadcaster) Publish(tob book.TopOfBook) {
	b.mu.Lock()
	b.pending[tob.Symbol] = tob
	b.mu.Unlock()
}

// Run flushes every interval until ctx ends, then flushes once more.
func (b *Broadcaster) Run(ctx context.Context) {
	slog.Info("Broadcaster started", slog.Duration("interval", b.interval))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.Flush(flushCtx)
			cancel()
			slog.Info("Broadcaster stopped")
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// Flush sends everything pending. On failure the batch is put back unless
// a newer update arrived meanwhile.
func (b *Broadcaster) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := make([]Message, 0, len(b.pending))
	for _, tob := range b.pending {
		batch = append(batch, newMessage(tob))
	}
	clear(b.pending)
	b.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Symbol < batch[j].Symbol })

	if err := b.sink.Send(ctx, batch); err != nil {
		slog.Warn("Broadcast failed, will retry", slog.Int("messages", len(batch)), slog.Any("error", err))
		b.mu.Lock()
		for _, m := range batch {
			if _, newer := b.pending[m.Symbol]; !newer {
				b.pending[m.Symbol] = m.TopOfBook
			}
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Pending returns the number of symbols waiting for the next flush.
func (b *Broadcaster) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broadcaster) Close() error {
	return b.sink.Close()
}

// LogSink writes batches to the debug log. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("module", "broadcast")}
}

func (s *LogSink) Send(ctx context.Context, batch []Message) error {
	for _, m := range batch {
		s.logger.Debug("top_of_book",
			slog.String("symbol", m.Symbol),
			slog.Uint64("seq", m.Sequence),
			slog.String("bid", m.Bid.Px.String()),
			slog.String("ask", m.Ask.Px.String()))
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
