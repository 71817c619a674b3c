package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"lob_go/internal/domain"
	"lob_go/internal/engine"
	"lob_go/internal/event"
	"lob_go/internal/infra"
	"lob_go/internal/infra/bitget"
	"lob_go/internal/infra/broadcast"
	"lob_go/internal/infra/feed"
	"lob_go/internal/infra/storage"
	"lob_go/internal/infra/upbit"
	"lob_go/internal/service"
)

const settingLastSeq = "engine.last_seq"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config      *infra.Config
	Logger      *slog.Logger
	Storage     *storage.Storage
	Instruments []domain.Instrument

	Journal     *engine.WALJournal
	Checkpoints *storage.CheckpointStore
	Sequencer   *engine.Sequencer
	Broadcaster *broadcast.Broadcaster
	Quotes      *service.QuoteService
	Router      *feed.Router
	Metrics     *infra.Metrics

	adapters []domain.FeedAdapter
	server   *http.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, opens storage and rebuilds the books from the journal.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	slog.Info("🚀 Bootstrapping LOB...", slog.String("version", cfg.App.Version))

	// 3. Instruments (DB registry mirrors config)
	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store

	b.Instruments = instrumentsFrom(cfg)
	if cfg.Feeds.Bitget.Enabled && cfg.Feeds.Bitget.DiscoverScales {
		if err := b.discoverBitgetScales(ctx); err != nil {
			return err
		}
	}
	if err := store.SyncInstruments(b.Instruments); err != nil {
		return err
	}
	slog.Info("✅ Instruments registered", slog.Int("count", len(b.Instruments)))

	// 4. Journal & Checkpoints
	journal, err := engine.OpenJournal(cfg.WAL.Dir, cfg.WALSegmentSize())
	if err != nil {
		return err
	}
	b.Journal = journal

	ckpts, err := storage.OpenCheckpointStore(cfg.Checkpoint.Dir)
	if err != nil {
		return err
	}
	b.Checkpoints = ckpts

	// 5. Engine
	event.Warmup()
	b.Metrics = infra.GlobalMetrics
	b.Quotes = service.NewQuoteService(b.Instruments)
	b.Router = feed.NewRouter()

	sink, err := b.newSink()
	if err != nil {
		return err
	}
	b.Broadcaster = broadcast.New(sink, cfg.BroadcastInterval())

	depths := make(map[string]int, len(b.Instruments))
	for _, in := range b.Instruments {
		depths[in.Symbol] = in.Depth
	}
	b.Sequencer = engine.NewSequencer(engine.Options{
		InboxSize:       cfg.Engine.InboxSize,
		DefaultDepth:    cfg.Book.DefaultDepth,
		Depths:          depths,
		Journal:         journal,
		SyncInterval:    cfg.WALSyncInterval(),
		Checkpoints:     ckpts,
		CheckpointEvery: cfg.Checkpoint.Every,
		Publisher:       b.Broadcaster,
		OnUpdate:        b.Quotes.Update,
		OnResync:        b.Router.Resync,
		Metrics:         b.Metrics,
	})

	if _, err := b.Sequencer.Recover(cfg.WAL.Dir); err != nil {
		return fmt.Errorf("recover journal: %w", err)
	}
	for _, sym := range b.Sequencer.Symbols() {
		if tob, ok := b.Sequencer.GetTopOfBook(sym); ok {
			b.Quotes.Update(tob)
		}
	}

	b.adapters = b.newAdapters()
	for _, a := range b.adapters {
		b.Router.Register(a)
	}
	return nil
}

func instrumentsFrom(cfg *infra.Config) []domain.Instrument {
	out := make([]domain.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		venue := ic.VenueSymbol
		if venue == "" {
			venue = ic.Symbol
		}
		out = append(out, domain.Instrument{
			Symbol:      ic.Symbol,
			Exchange:    ic.Exchange,
			VenueSymbol: venue,
			PriceScale:  ic.PriceScale,
			QtyScale:    ic.QtyScale,
			Depth:       ic.Depth,
			IsActive:    true,
		})
	}
	return out
}

func (b *Bootstrap) discoverBitgetScales(ctx context.Context) error {
	var targets []domain.Instrument
	var idx []int
	for i, in := range b.Instruments {
		if in.Exchange == infra.ExchangeBitget {
			targets = append(targets, in)
			idx = append(idx, i)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	client := bitget.NewClient(b.Config.Feeds.Bitget.RESTURL)
	if err := client.Discover(ctx, b.Config.Feeds.Bitget.InstType, targets); err != nil {
		return fmt.Errorf("discover bitget scales: %w", err)
	}
	for j, i := range idx {
		b.Instruments[i] = targets[j]
	}
	return nil
}

func (b *Bootstrap) newSink() (broadcast.Sink, error) {
	bc := b.Config.Broadcast
	switch bc.Driver {
	case infra.DriverKafka:
		return broadcast.NewKafkaSink(bc.Brokers, bc.Topic), nil
	case infra.DriverSarama:
		return broadcast.NewSaramaSink(bc.Brokers, bc.Topic)
	default:
		return broadcast.NewLogSink(b.Logger), nil
	}
}

func (b *Bootstrap) newAdapters() []domain.FeedAdapter {
	cfg := b.Config
	inbox := b.Sequencer.Inbox()
	var out []domain.FeedAdapter

	if cfg.Feeds.Upbit.Enabled {
		if ins := b.instrumentsFor(infra.ExchangeUpbit); len(ins) > 0 {
			out = append(out, upbit.NewWorker(cfg.Feeds.Upbit.WSURL, ins, inbox, b.Metrics))
		}
	}
	if cfg.Feeds.Bitget.Enabled {
		if ins := b.instrumentsFor(infra.ExchangeBitget); len(ins) > 0 {
			out = append(out, bitget.NewWorker(cfg.Feeds.Bitget.WSURL, cfg.Feeds.Bitget.InstType, ins, inbox, b.Metrics))
		}
	}
	return out
}

func (b *Bootstrap) instrumentsFor(exchange string) []domain.Instrument {
	var out []domain.Instrument
	for _, in := range b.Instruments {
		if in.Exchange == exchange {
			out = append(out, in)
		}
	}
	return out
}

// Run starts the sequencer, broadcaster, feeds and debug server, and blocks
// until ctx is cancelled and every component has drained.
func (b *Bootstrap) Run(ctx context.Context) {
	seqDone := make(chan struct{})
	go func() {
		defer close(seqDone)
		b.Sequencer.Run(ctx)
	}()
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started")

	bcastCtx, stopBcast := context.WithCancel(context.Background())
	bcastDone := make(chan struct{})
	go func() {
		defer close(bcastDone)
		b.Broadcaster.Run(bcastCtx)
	}()

	var feeds sync.WaitGroup
	for _, a := range b.adapters {
		feeds.Add(1)
		go func(a domain.FeedAdapter) {
			defer feeds.Done()
			// A non-retriable error is logged by the supervisor; the other
			// feeds keep running.
			_ = feed.NewSupervisor(a, b.Sequencer.Inbox(), b.Metrics).Run(ctx)
		}(a)
		slog.InfoContext(ctx, "✅ Feed started", slog.String("feed", a.Name()), slog.Int("symbols", len(a.Symbols())))
	}

	b.startServer()
	slog.InfoContext(ctx, "✨ LOB fully operational. Press Ctrl+C to exit.")

	<-ctx.Done()
	slog.Info("👋 Shutting down gracefully...")

	feeds.Wait()
	<-seqDone
	// Publishing has stopped; drain what is left.
	stopBcast()
	<-bcastDone
}

func (b *Bootstrap) startServer() {
	reg := infra.NewRegistry(b.Metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", infra.MetricsHandler(reg))
	mux.Handle("/debug/books", b.Quotes.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	b.server = &http.Server{
		Addr:              b.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("🕵️ Debug server started", slog.String("addr", b.server.Addr))
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Debug server failed", slog.Any("error", err))
		}
	}()
}

// Shutdown releases everything Initialize opened. Safe to call after a
// partial Initialize.
func (b *Bootstrap) Shutdown() {
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = b.server.Shutdown(ctx)
		cancel()
	}
	if b.Broadcaster != nil {
		if err := b.Broadcaster.Close(); err != nil {
			slog.Error("Failed to close broadcaster", slog.Any("error", err))
		}
	}
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Error("Failed to close journal", slog.Any("error", err))
		}
	}
	if b.Checkpoints != nil {
		if err := b.Checkpoints.Close(); err != nil {
			slog.Error("Failed to close checkpoint store", slog.Any("error", err))
		}
	}
	if b.Storage != nil {
		if b.Sequencer != nil {
			last := b.Sequencer.NextSeq() - 1
			if err := b.Storage.SaveSetting(settingLastSeq, strconv.FormatUint(last, 10)); err != nil {
				slog.Error("Failed to save last sequence", slog.Any("error", err))
			}
		}
		if err := b.Storage.Close(); err != nil {
			slog.Error("Failed to close storage", slog.Any("error", err))
		}
	}
}
