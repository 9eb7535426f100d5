// Package metrics exposes Prometheus counters for the release monitor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeChanged   = "changed"
	OutcomeFailed    = "failed"
)

// Snapshot load failure reasons.
const (
	LoadSchema = "schema"
	LoadError  = "error"
)

// Recorder is the subset of metrics the poll loop reports.
type Recorder interface {
	RecordCycle(outcome string)
	RecordScraped(count int)
	RecordChanges(added, removed int)
	RecordNotification(err error)
	RecordSaveFailure()
	RecordLoadFailure(reason string)
	RecordFetchLatency(duration time.Duration)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	cycles        *prometheus.CounterVec
	scraped       prometheus.Gauge
	added         prometheus.Counter
	removed       prometheus.Counter
	notifications *prometheus.CounterVec
	saveFail      prometheus.Counter
	loadFail      *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "release_notifier_cycles_total",
			Help: "Monitor cycles by outcome",
		}, []string{"outcome"}),
		scraped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "release_notifier_scraped_records",
			Help: "Records in the most recent scrape",
		}),
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_notifier_added_total",
			Help: "Records that appeared since the previous snapshot",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_notifier_removed_total",
			Help: "Records that disappeared since the previous snapshot",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "release_notifier_notifications_total",
			Help: "Notification attempts by result",
		}, []string{"result"}),
		saveFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "release_notifier_save_failures_total",
			Help: "Snapshot saves that failed",
		}),
		loadFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "release_notifier_load_failures_total",
			Help: "Snapshot loads that failed, by reason",
		}, []string{"reason"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "release_notifier_fetch_latency_seconds",
			Help:    "Listing fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.scraped,
		c.added,
		c.removed,
		c.notifications,
		c.saveFail,
		c.loadFail,
		c.fetchLatency,
	)

	return c
}

// RecordCycle counts one finished cycle.
func (c *Collector) RecordCycle(outcome string) {
	c.cycles.WithLabelValues(outcome).Inc()
}

// RecordScraped sets the size of the latest scrape.
func (c *Collector) RecordScraped(count int) {
	c.scraped.Set(float64(count))
}

// RecordChanges adds the diff sizes of one cycle.
func (c *Collector) RecordChanges(added, removed int) {
	c.added.Add(float64(added))
	c.removed.Add(float64(removed))
}

// RecordNotification counts a notification attempt.
func (c *Collector) RecordNotification(err error) {
	if err != nil {
		c.notifications.WithLabelValues("failed").Inc()
		return
	}
	c.notifications.WithLabelValues("sent").Inc()
}

// RecordSaveFailure counts a failed snapshot save.
func (c *Collector) RecordSaveFailure() {
	c.saveFail.Inc()
}

// RecordLoadFailure counts a failed snapshot load.
func (c *Collector) RecordLoadFailure(reason string) {
	c.loadFail.WithLabelValues(reason).Inc()
}

// RecordFetchLatency observes the duration of one listing fetch.
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used when metrics are not wired.
type Nop struct{}

func (Nop) RecordCycle(string) {}
func (Nop) RecordScraped(int) {}
func (Nop) RecordChanges(int, int) {}
func (Nop) RecordNotification(error) {}
func (Nop) RecordSaveFailure() {}
func (Nop) RecordLoadFailure(string) {}
func (Nop) RecordFetchLatency(time.Duration) {}
