package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lob_go/internal/book"
	"lob_go/internal/event"
	"lob_go/internal/infra/broadcast"
	"lob_go/pkg/quant"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
app:
  name: lob-test
instruments:
  - symbol: BTC-KRW
    exchange: upbit
    venue_symbol: KRW-BTC
    price_scale: 0
    qty_scale: 8
    depth: 5
feeds:
  upbit:
    enabled: false
wal:
  dir: %[1]s/wal
  sync_interval_ms: 10
checkpoint:
  dir: %[1]s/ckpt
  every: 1
broadcast:
  flush_interval_ms: 10
metrics:
  addr: 127.0.0.1:0
storage:
  db_path: %[1]s/lob.db
logging:
  level: error
  dir: %[1]s/logs
`, dir)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func update(side book.Side, px, qty int64) *event.L2UpdateEvent {
	return &event.L2UpdateEvent{
		BaseEvent: event.BaseEvent{Ts: quant.TimeStamp(px)},
		Symbol:    "BTC-KRW",
		Side:      side,
		Price:     quant.Px(px),
		Qty:       quant.Qty(qty),
		Exchange:  "UPBIT",
	}
}

func TestBootstrap_InitializeDefaults(t *testing.T) {
	dir := t.TempDir()
	b := NewBootstrap()
	if err := b.Initialize(context.Background(), writeConfig(t, dir)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer b.Shutdown()

	if len(b.Instruments) != 1 {
		t.Fatalf("Expected 1 instrument, got %d", len(b.Instruments))
	}
	in := b.Instruments[0]
	if in.Exchange != "UPBIT" || in.VenueSymbol != "KRW-BTC" || in.Depth != 5 || !in.IsActive {
		t.Errorf("Unexpected instrument %+v", in)
	}
	if len(b.adapters) != 0 {
		t.Errorf("Expected no adapters with feeds disabled, got %d", len(b.adapters))
	}
	sink, err := b.newSink()
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if _, ok := sink.(*broadcast.LogSink); !ok {
		t.Errorf("Expected LogSink for driver none")
	}

	stored, err := b.Storage.ListInstruments(true)
	if err != nil {
		t.Fatalf("list instruments: %v", err)
	}
	if len(stored) != 1 || stored[0].Symbol != "BTC-KRW" {
		t.Errorf("Expected BTC-KRW registered, got %+v", stored)
	}
}

func TestBootstrap_RunAndRecover(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	b := NewBootstrap()
	if err := b.Initialize(context.Background(), path); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	b.Sequencer.Inbox() <- update(book.Bid, 100, 5)
	b.Sequencer.Inbox() <- update(book.Ask, 101, 7)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if q, ok := b.Quotes.GetTopOfBook("BTC-KRW"); ok && q.Sequence == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for updates")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	b.Shutdown()

	// Restart on the same directories.
	b2 := NewBootstrap()
	if err := b2.Initialize(context.Background(), path); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	defer b2.Shutdown()

	if b2.Sequencer.NextSeq() != 3 {
		t.Errorf("Expected next seq 3, got %d", b2.Sequencer.NextSeq())
	}
	tob, ok := b2.Quotes.GetTopOfBook("BTC-KRW")
	if !ok {
		t.Fatal("Expected recovered quote")
	}
	if tob.Bid.Px != 100 || tob.Ask.Px != 101 || tob.Ask.Qty != 7 {
		t.Errorf("Unexpected recovered top %+v", tob)
	}

	settings, err := b2.Storage.LoadSettings()
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings[settingLastSeq] != "2" {
		t.Errorf("Expected last seq 2, got %q", settings[settingLastSeq])
	}
}
