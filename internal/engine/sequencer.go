package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"lob_go/internal/book"
	"lob_go/internal/event"
	"lob_go/internal/infra"
	"lob_go/internal/infra/storage"
)

// ErrSequenceGap is returned by ReplayEvent for an out-of-order journal entry.
var ErrSequenceGap = errors.New("sequence gap")

// Publisher receives the top of book after every applied event.
type Publisher interface {
	Publish(tob book.TopOfBook)
}

// CheckpointWriter stores book state hashes pinned to journal positions.
type CheckpointWriter interface {
	Put(c storage.Checkpoint) error
}

// Options configures a Sequencer. Zero values disable the optional parts.
type Options struct {
	InboxSize    int
	DefaultDepth int
	Depths       map[string]int // per-symbol depth, DefaultDepth otherwise

	Journal         Journal
	SyncInterval    time.Duration
	Checkpoints     CheckpointWriter
	CheckpointEvery uint64

	Publisher Publisher
	OnUpdate  func(book.TopOfBook)
	// OnResync is called after a crossed book was cleared. The feed must
	// re-emit a full snapshot for the symbol.
	OnResync func(symbol string)

	Metrics  *infra.Metrics
	DumpPath string
}

// Sequencer is the core single-threaded event processor. It owns every
// book, stamps a gapless journal sequence on each accepted event and
// journals it before the book sees it.
type Sequencer struct {
	opts    Options
	inbox   chan event.Event
	books   map[string]*book.OrderBook
	nextSeq uint64

	sinceCkpt map[string]uint64

	// tops is the only state readable from other goroutines.
	mu   sync.RWMutex
	tops map[string]book.TopOfBook
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(opts Options) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 4096
	}
	if opts.DefaultDepth <= 0 {
		opts.DefaultDepth = book.DefaultDepth
	}
	if opts.Metrics == nil {
		opts.Metrics = &infra.Metrics{}
	}
	if opts.DumpPath == "" {
		opts.DumpPath = "panic_dump.json"
	}
	return &Sequencer{
		opts:      opts,
		inbox:     make(chan event.Event, opts.InboxSize),
		books:     make(map[string]*book.OrderBook),
		nextSeq:   1,
		sinceCkpt: make(map[string]uint64),
		tops:      make(map[string]book.TopOfBook),
	}
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// NextSeq is the journal sequence the next accepted event will carry.
func (s *Sequencer) NextSeq() uint64 { return s.nextSeq }

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (Single-Thread Hotpath)", slog.Uint64("next_seq", s.nextSeq))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.opts.DumpPath)
			// Halt after dump.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	var syncC <-chan time.Time
	if s.opts.Journal != nil && s.opts.SyncInterval > 0 {
		ticker := time.NewTicker(s.opts.SyncInterval)
		defer ticker.Stop()
		syncC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.Uint64("next_seq", s.nextSeq))
			s.syncJournal()
			return
		case <-syncC:
			s.syncJournal()
		case ev := <-s.inbox:
			s.processEvent(ev)
		}
	}
}

func (s *Sequencer) syncJournal() {
	if s.opts.Journal == nil {
		return
	}
	if err := s.opts.Journal.Sync(); err != nil {
		s.opts.Metrics.RecordJournalError()
		slog.Error("Journal sync failed", slog.Any("error", err))
	}
}

type seqStamper interface {
	SetSeq(seq uint64)
}

func (s *Sequencer) processEvent(ev event.Event) {
	defer event.Release(ev)

	st, ok := ev.(seqStamper)
	if !ok {
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return
	}

	// 1. Stamp
	seq := s.nextSeq
	st.SetSeq(seq)

	// 2. WAL-first: Persistence
	if s.opts.Journal != nil {
		if err := s.opts.Journal.Append(ev); err != nil {
			s.opts.Metrics.RecordJournalError()
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}
	s.nextSeq++

	// 3. Logic Dispatch
	b, crossed := s.dispatch(ev, true)

	// 4. Projection and checkpoints see the state right after this entry.
	tob := b.ToUpdate()
	s.mu.Lock()
	s.tops[tob.Symbol] = tob
	s.mu.Unlock()
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(tob)
	}
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(tob)
	}
	s.maybeCheckpoint(b, seq, ev)

	// 5. A crossed write stays in the book until the resync entry clears it.
	if crossed {
		s.resync(b.Symbol(), event.ReasonCrossed)
	}
}

// dispatch applies ev to its book. crossed reports a CrossedBookError.
func (s *Sequencer) dispatch(ev event.Event, live bool) (b *book.OrderBook, crossed bool) {
	b = s.bookFor(ev.GetSymbol())

	switch e := ev.(type) {
	case *event.L2UpdateEvent:
		start := time.Now()
		err := b.Apply(e.Update())
		if !live {
			var cbe *book.CrossedBookError
			return b, errors.As(err, &cbe)
		}
		s.opts.Metrics.RecordApply(time.Since(start).Nanoseconds())

		var ile *book.InvalidLevelError
		var cbe *book.CrossedBookError
		switch {
		case err == nil:
		case errors.Is(err, book.ErrInvalidSide):
			s.opts.Metrics.RecordInvalidLevel()
			slog.Warn("Invalid side", slog.String("symbol", e.Symbol), slog.Any("error", err))
		case errors.As(err, &ile):
			s.opts.Metrics.RecordInvalidLevel()
			slog.Warn("Invalid level", slog.String("symbol", e.Symbol), slog.Int("level", int(ile.Level)), slog.Int("depth", ile.Depth))
		case errors.As(err, &cbe):
			s.opts.Metrics.RecordCrossed()
			slog.Warn("Crossed book", slog.String("symbol", e.Symbol), slog.String("bid", cbe.Bid.String()), slog.String("ask", cbe.Ask.String()))
			crossed = true
		}
	case *event.ResyncEvent:
		b.Clear()
		if live {
			s.opts.Metrics.RecordResync()
			slog.Info("Book resync", slog.String("symbol", e.Symbol), slog.String("reason", e.Reason))
		}
	}
	return b, crossed
}

// resync journals a synthetic ResyncEvent, which clears the book, then asks
// the feed for a fresh snapshot.
func (s *Sequencer) resync(symbol, reason string) {
	s.processEvent(&event.ResyncEvent{
		BaseEvent: event.BaseEvent{Ts: s.books[symbol].LastUpdateTs()},
		Symbol:    symbol,
		Reason:    reason,
	})
	if s.opts.OnResync != nil {
		s.opts.OnResync(symbol)
	}
}

func (s *Sequencer) bookFor(symbol string) *book.OrderBook {
	b, ok := s.books[symbol]
	if !ok {
		depth, ok := s.opts.Depths[symbol]
		if !ok {
			depth = s.opts.DefaultDepth
		}
		b = book.NewOrderBook(symbol, depth)
		s.books[symbol] = b
	}
	return b
}

func (s *Sequencer) maybeCheckpoint(b *book.OrderBook, seq uint64, ev event.Event) {
	if s.opts.Checkpoints == nil || s.opts.CheckpointEvery == 0 {
		return
	}
	symbol := b.Symbol()
	s.sinceCkpt[symbol]++
	if s.sinceCkpt[symbol] < s.opts.CheckpointEvery {
		return
	}
	s.sinceCkpt[symbol] = 0

	c := storage.Checkpoint{
		Symbol:     symbol,
		JournalSeq: seq,
		BookSeq:    b.Sequence(),
		Hash:       b.StateHash(),
		Ts:         ev.GetTs(),
	}
	if err := s.opts.Checkpoints.Put(c); err != nil {
		slog.Error("Checkpoint failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

// ReplayEvent applies a journaled event without journaling, publishing or
// checkpointing. Events must arrive in journal order.
func (s *Sequencer) ReplayEvent(ev event.Event) error {
	if ev.GetSeq() != s.nextSeq {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, s.nextSeq, ev.GetSeq())
	}
	s.dispatch(ev, false)
	s.nextSeq++
	return nil
}

// GetTopOfBook returns the latest projection (safe for any goroutine).
func (s *Sequencer) GetTopOfBook(symbol string) (book.TopOfBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tob, ok := s.tops[symbol]
	return tob, ok
}

// The accessors below read books directly. Call them only when Run is not
// active: before start, after it returned, or on a replay sequencer.

// Book returns the book for symbol.
func (s *Sequencer) Book(symbol string) (*book.OrderBook, bool) {
	b, ok := s.books[symbol]
	return b, ok
}

// StateHash returns the state hash of symbol's book.
func (s *Sequencer) StateHash(symbol string) (uint64, bool) {
	b, ok := s.books[symbol]
	if !ok {
		return 0, false
	}
	return b.StateHash(), true
}

// Symbols returns all book symbols, sorted.
func (s *Sequencer) Symbols() []string {
	out := make([]string, 0, len(s.books))
	for sym := range s.books {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Hashes returns the state hash of every book.
func (s *Sequencer) Hashes() map[string]uint64 {
	out := make(map[string]uint64, len(s.books))
	for sym, b := range s.books {
		out[sym] = b.StateHash()
	}
	return out
}

type bookDump struct {
	Top  book.TopOfBook `json:"top"`
	Hash uint64         `json:"hash"`
	Bids []book.Level   `json:"bids"`
	Asks []book.Level   `json:"asks"`
}

func levelsOf(side *book.SideBook) []book.Level {
	out := make([]book.Level, 0, side.Len())
	for i := 0; i < side.Len(); i++ {
		lv, _ := side.At(i)
		out = append(out, lv)
	}
	return out
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	books := make(map[string]bookDump, len(s.books))
	for sym, b := range s.books {
		books[sym] = bookDump{
			Top:  b.ToUpdate(),
			Hash: b.StateHash(),
			Bids: levelsOf(b.Bids()),
			Asks: levelsOf(b.Asks()),
		}
	}

	data := struct {
		NextSeq uint64              `json:"next_seq"`
		Books   map[string]bookDump `json:"books"`
	}{
		NextSeq: s.nextSeq,
		Books:   books,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
