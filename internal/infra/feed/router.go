package feed

import (
	"log/slog"
	"sync"

	"lob_go/internal/domain"
)

// Router maps symbols to the adapter that feeds them. Its Resync method is
// the engine's resync hook.
type Router struct {
	mu       sync.RWMutex
	adapters map[string]domain.FeedAdapter
}

func NewRouter() *Router {
	return &Router{adapters: make(map[string]domain.FeedAdapter)}
}

// Register routes every symbol of a to it. A later registration wins.
func (r *Router) Register(a domain.FeedAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range a.Symbols() {
		r.adapters[s] = a
	}
}

// Resync asks the owning adapter for a full snapshot of symbol.
func (r *Router) Resync(symbol string) {
	r.mu.RLock()
	a, ok := r.adapters[symbol]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("Resync for unrouted symbol", slog.String("symbol", symbol))
		return
	}
	a.RequestResync(symbol)
}

// Adapter returns the adapter routed for symbol.
func (r *Router) Adapter(symbol string) (domain.FeedAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[symbol]
	return a, ok
}
