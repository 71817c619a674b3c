package infra

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the hot-path counter set. Atomic only; prometheus reads it through Collector.
type Metrics struct {
	// Counters
	eventsApplied  atomic.Uint64
	crossedBooks   atomic.Uint64
	invalidLevels  atomic.Uint64
	resyncs        atomic.Uint64
	droppedUpdates atomic.Uint64
	journalErrors  atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordApply records one applied update and its latency.
func (m *Metrics) RecordApply(latencyNs int64) {
	m.eventsApplied.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

func (m *Metrics) RecordCrossed() { m.crossedBooks.Add(1) }
func (m *Metrics) RecordInvalidLevel() { m.invalidLevels.Add(1) }
func (m *Metrics) RecordResync() { m.resyncs.Add(1) }
func (m *Metrics) RecordDropped() { m.droppedUpdates.Add(1) }
func (m *Metrics) RecordJournalError() { m.journalErrors.Add(1) }
func (m *Metrics) IncrementConnections() { m.activeConnections.Add(1) }
func (m *Metrics) DecrementConnections() { m.activeConnections.Add(-1) }

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsApplied     uint64
	CrossedBooks      uint64
	InvalidLevels     uint64
	Resyncs           uint64
	DroppedUpdates    uint64
	JournalErrors     uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		EventsApplied:     m.eventsApplied.Load(),
		CrossedBooks:      m.crossedBooks.Load(),
		InvalidLevels:     m.invalidLevels.Load(),
		Resyncs:           m.resyncs.Load(),
		DroppedUpdates:    m.droppedUpdates.Load(),
		JournalErrors:     m.journalErrors.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsApplied.Store(0)
	m.crossedBooks.Store(0)
	m.invalidLevels.Store(0)
	m.resyncs.Store(0)
	m.droppedUpdates.Store(0)
	m.journalErrors.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
}

var (
	descEventsApplied = prometheus.NewDesc("lob_events_applied_total", "Book updates applied", nil, nil)
	descCrossed       = prometheus.NewDesc("lob_crossed_books_total", "Updates that left a book crossed", nil, nil)
	descInvalidLevel  = prometheus.NewDesc("lob_invalid_level_total", "Updates rejected for an out of range level", nil, nil)
	descResyncs       = prometheus.NewDesc("lob_resyncs_total", "Book resyncs", nil, nil)
	descDropped       = prometheus.NewDesc("lob_dropped_updates_total", "Updates dropped on a full engine inbox", nil, nil)
	descJournalErrors = prometheus.NewDesc("lob_journal_errors_total", "Journal append or sync failures", nil, nil)
	descAvgLatency    = prometheus.NewDesc("lob_apply_latency_avg_ns", "Average apply latency in nanoseconds", nil, nil)
	descConnections   = prometheus.NewDesc("lob_active_connections", "Open feed connections", nil, nil)
)

// Collector exports a Metrics snapshot on every scrape.
type Collector struct {
	m *Metrics
}

func NewCollector(m *Metrics) *Collector {
	return &Collector{m: m}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descEventsApplied
	ch <- descCrossed
	ch <- descInvalidLevel
	ch <- descResyncs
	ch <- descDropped
	ch <- descJournalErrors
	ch <- descAvgLatency
	ch <- descConnections
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(descEventsApplied, prometheus.CounterValue, float64(s.EventsApplied))
	ch <- prometheus.MustNewConstMetric(descCrossed, prometheus.CounterValue, float64(s.CrossedBooks))
	ch <- prometheus.MustNewConstMetric(descInvalidLevel, prometheus.CounterValue, float64(s.InvalidLevels))
	ch <- prometheus.MustNewConstMetric(descResyncs, prometheus.CounterValue, float64(s.Resyncs))
	ch <- prometheus.MustNewConstMetric(descDropped, prometheus.CounterValue, float64(s.DroppedUpdates))
	ch <- prometheus.MustNewConstMetric(descJournalErrors, prometheus.CounterValue, float64(s.JournalErrors))
	ch <- prometheus.MustNewConstMetric(descAvgLatency, prometheus.GaugeValue, float64(s.AvgLatencyNs))
	ch <- prometheus.MustNewConstMetric(descConnections, prometheus.GaugeValue, float64(s.ActiveConnections))
}

// NewRegistry registers the collector along with the go and process collectors.
func NewRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MetricsHandler serves the registry in the prometheus exposition format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
