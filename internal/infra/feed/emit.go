package feed

import (
	"log/slog"

	"lob_go/internal/event"
	"lob_go/internal/infra"
)

// Emit hands evs to the engine inbox without blocking. On a full inbox the
// rest of the batch is dropped and the symbol's ladder reset, so the next
// snapshot rewrites the whole book. Returns false if anything was dropped.
func Emit(inbox chan<- event.Event, evs []*event.L2UpdateEvent, ladder *Ladder, symbol string, m *infra.Metrics) bool {
	for i, ev := range evs {
		select {
		case inbox <- ev:
			continue
		default:
		}

		for _, rest := range evs[i:] {
			event.ReleaseL2UpdateEvent(rest)
		}
		ladder.Reset(symbol)
		if m != nil {
			m.RecordDropped()
		}
		slog.Warn("Inbox full, dropping snapshot", slog.String("symbol", symbol), slog.Int("dropped", len(evs)-i))
		return false
	}
	return true
}
