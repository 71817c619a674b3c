package domain

import (
	"context"
)

// FeedAdapter is one venue connection producing book events.
// Connect and Subscribe are called in order, then Run blocks until the
// connection drops or ctx is done. Close is safe to call at any time.
type FeedAdapter interface {
	Name() string
	Symbols() []string
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
	// RequestResync asks the adapter to re-emit the full ladder for symbol
	// on its next snapshot.
	RequestResync(symbol string)
}
