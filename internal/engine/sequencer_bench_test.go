package engine

import (
	"testing"

	"lob_go/internal/book"
	"lob_go/internal/event"
	"lob_go/pkg/quant"
)

// BenchmarkSequencer_ProcessEvent measures the hot path without a journal.
func BenchmarkSequencer_ProcessEvent(b *testing.B) {
	s := NewSequencer(Options{})
	evs := make([]*event.L2UpdateEvent, b.N)
	for i := range evs {
		ev := event.AcquireL2UpdateEvent()
		ev.Symbol = "BTCUSDT"
		ev.Side = book.Side(i & 1)
		ev.Level = uint8(i % 10)
		if ev.Side == book.Bid {
			ev.Price = quant.Px(50000 - 10*(i%10))
		} else {
			ev.Price = quant.Px(50010 + 10*(i%10))
		}
		ev.Qty = 100
		evs[i] = ev
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		s.processEvent(evs[i])
	}
}

// BenchmarkSequencer_WithJournal includes encoding and the buffered WAL append.
func BenchmarkSequencer_WithJournal(b *testing.B) {
	j, err := OpenJournal(b.TempDir(), 0)
	if err != nil {
		b.Fatal(err)
	}
	defer j.Close()
	s := NewSequencer(Options{Journal: j})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev := event.AcquireL2UpdateEvent()
		ev.Symbol = "BTCUSDT"
		ev.Side = book.Bid
		ev.Price = 50000
		ev.Qty = 100
		s.processEvent(ev)
	}
}
