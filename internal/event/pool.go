package event

import (
	"sync"
)

// l2UpdatePool provides sync.Pool for high-frequency event allocation.
// Use this to reduce GC pressure in the hotpath.
//
// Usage:
//
//	ev := AcquireL2UpdateEvent()
//	ev.Symbol = "BTC"
//	// ... use event ...
//	ReleaseL2UpdateEvent(ev)  // Return to pool after processing
var l2UpdatePool = sync.Pool{
	New: func() interface{} {
		return &L2UpdateEvent{}
	},
}

// AcquireL2UpdateEvent gets an L2UpdateEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireL2UpdateEvent() *L2UpdateEvent {
	return l2UpdatePool.Get().(*L2UpdateEvent)
}

// ReleaseL2UpdateEvent returns an L2UpdateEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseL2UpdateEvent(ev *L2UpdateEvent) {
	if ev == nil {
		return
	}
	*ev = L2UpdateEvent{}
	l2UpdatePool.Put(ev)
}

// Release returns pooled events to their pool. Other event types are left to the GC.
func Release(ev Event) {
	if e, ok := ev.(*L2UpdateEvent); ok {
		ReleaseL2UpdateEvent(e)
	}
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
// It acquires and releases a batch of events.
func Warmup() {
	const batchSize = 1000

	evs := make([]*L2UpdateEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireL2UpdateEvent())
	}
	for _, ev := range evs {
		ReleaseL2UpdateEvent(ev)
	}
}
