package feed

import (
	"context"
	"log/slog"
	"time"

	"lob_go/internal/domain"
	"lob_go/internal/event"
	"lob_go/internal/infra"
	"lob_go/pkg/quant"
)

// Supervisor keeps one adapter connected. Every session is
// Connect, Subscribe, a ResyncEvent per symbol, then Run until it fails.
type Supervisor struct {
	adapter domain.FeedAdapter
	inbox   chan<- event.Event
	metrics *infra.Metrics

	// backoff is swapped in tests.
	backoff func(retry int) time.Duration
}

func NewSupervisor(adapter domain.FeedAdapter, inbox chan<- event.Event, m *infra.Metrics) *Supervisor {
	return &Supervisor{
		adapter: adapter,
		inbox:   inbox,
		metrics: m,
		backoff: infra.CalculateBackoff,
	}
}

// Run blocks until ctx is done or the adapter reports a non-retriable error.
func (s *Supervisor) Run(ctx context.Context) error {
	name := s.adapter.Name()
	retryCount := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		subscribed, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			retryCount = 0
		}

		if domain.IsFatal(err) {
			slog.Error("Feed stopped", slog.String("feed", name), slog.Any("error", err))
			return err
		}

		delay := s.backoff(retryCount)
		slog.Warn("Feed disconnected", slog.String("feed", name), slog.Any("error", err),
			slog.Int("retry", retryCount), slog.Duration("delay", delay))
		retryCount++

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *Supervisor) session(ctx context.Context) (bool, error) {
	if err := s.adapter.Connect(ctx); err != nil {
		return false, err
	}
	if s.metrics != nil {
		s.metrics.IncrementConnections()
		defer s.metrics.DecrementConnections()
	}
	defer s.adapter.Close()

	if err := s.adapter.Subscribe(ctx); err != nil {
		return false, err
	}

	// Books may have missed anything while disconnected.
	now := quant.Now()
	for _, symbol := range s.adapter.Symbols() {
		s.adapter.RequestResync(symbol)
		ev := &event.ResyncEvent{BaseEvent: event.BaseEvent{Ts: now}, Symbol: symbol, Reason: event.ReasonConnect}
		select {
		case s.inbox <- ev:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}

	slog.Info("Feed connected", slog.String("feed", s.adapter.Name()), slog.Int("symbols", len(s.adapter.Symbols())))
	return true, s.adapter.Run(ctx)
}
