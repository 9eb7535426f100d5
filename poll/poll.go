// Package poll runs the fetch, diff, notify and persist cycle.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"release-notifier/metrics"
	"release-notifier/pkg/release"
	"release-notifier/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// saveTimeout bounds the snapshot write, which runs detached from the
// caller's cancellation once the listing has been fetched.
const saveTimeout = 2 * time.Minute

var tracer = otel.Tracer("release-notifier/poll")

// Scraper interface for fetching the current listing.
type Scraper interface {
	Fetch(ctx context.Context) (release.Snapshot, error)
}

// Store interface for snapshot persistence.
type Store interface {
	Load(ctx context.Context) (release.Snapshot, error)
	Save(ctx context.Context, snap release.Snapshot) error
}

// Notifier interface for sending release alerts.
type Notifier interface {
	SendReleases(ctx context.Context, alerts []release.Alert) error
}

// Result describes one completed cycle.
type Result struct {
	CycleID  string
	Scraped  int
	Added    release.Snapshot
	Removed  release.Snapshot
	Alerts   []release.Alert
	Notified bool
}

// Monitor handles release polling logic.
type Monitor struct {
	mu       sync.Mutex // one cycle at a time; the store has a single writer
	scraper  Scraper
	store    Store
	notifier Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a new poll monitor. A nil recorder disables metrics.
func New(scraper Scraper, store Store, notifier Notifier, recorder metrics.Recorder, logger *slog.Logger) *Monitor {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Monitor{
		scraper:  scraper,
		store:    store,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce performs a single cycle.
//
// A scrape or load failure aborts the cycle before anything is written.
// Otherwise the scraped snapshot always replaces the stored one, even when
// the notification fails or ctx is cancelled mid-cycle; notify and save
// errors are joined.
func (m *Monitor) RunOnce(ctx context.Context) (res *Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res = &Result{CycleID: uuid.NewString()}
	ctx, span := tracer.Start(ctx, "poll.cycle", trace.WithAttributes(attribute.String("cycle_id", res.CycleID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cycle failed")
		}
		span.End()
	}()

	log := m.logger.With("cycle_id", res.CycleID)
	log.Info("Cycle starting")

	start := time.Now()
	current, err := m.scraper.Fetch(ctx)
	m.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		m.metrics.RecordCycle(metrics.OutcomeFailed)
		log.Warn("Fetch failed, snapshot left unchanged", "error", err)
		return res, fmt.Errorf("fetch listing: %w", err)
	}
	res.Scraped = len(current)
	m.metrics.RecordScraped(len(current))

	previous, err := m.store.Load(ctx)
	if err != nil {
		m.metrics.RecordCycle(metrics.OutcomeFailed)
		var schemaErr *storage.SchemaError
		if errors.As(err, &schemaErr) {
			m.metrics.RecordLoadFailure(metrics.LoadSchema)
			log.Error("Snapshot columns do not match; every cycle fails until the snapshot is removed or repaired",
				"header", schemaErr.Header, "error", err)
		} else {
			m.metrics.RecordLoadFailure(metrics.LoadError)
			log.Warn("Snapshot load failed", "error", err)
		}
		return res, fmt.Errorf("load snapshot: %w", err)
	}

	changes := release.Diff(previous, current)
	res.Added = changes.Added
	res.Removed = changes.Removed
	m.metrics.RecordChanges(len(changes.Added), len(changes.Removed))

	log.Info("Snapshot compared",
		"previous", len(previous),
		"current", len(current),
		"added", len(changes.Added),
		"removed", len(changes.Removed))
	for _, r := range changes.Removed {
		log.Debug("Release removed", "product", r.Product, "available_date", r.AvailableDate)
	}

	var notifyErr error
	if len(changes.Added) > 0 {
		now := m.now()
		res.Alerts = make([]release.Alert, 0, len(changes.Added))
		for _, rec := range changes.Added {
			alert := release.Annotate(rec, now)
			if alert.Err != nil {
				log.Warn("Unparseable release date", "product", rec.Product, "error", alert.Err)
			}
			res.Alerts = append(res.Alerts, alert)
		}

		notifyErr = m.notifier.SendReleases(ctx, res.Alerts)
		m.metrics.RecordNotification(notifyErr)
		if notifyErr != nil {
			var credErr *release.MissingCredentialsError
			if errors.As(notifyErr, &credErr) {
				log.Error("Notification not configured", "provider", credErr.Provider, "missing", credErr.Missing)
			} else {
				log.Error("Notification failed", "error", notifyErr)
			}
			notifyErr = fmt.Errorf("notify: %w", notifyErr)
		} else {
			res.Notified = true
			log.Info("Notification sent", "releases", len(res.Alerts))
		}
	}

	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	saveErr := m.store.Save(saveCtx, current)
	cancelSave()
	if saveErr != nil {
		m.metrics.RecordSaveFailure()
		log.Error("Snapshot save failed", "error", saveErr)
		saveErr = fmt.Errorf("save snapshot: %w", saveErr)
	}

	err = errors.Join(notifyErr, saveErr)
	switch {
	case err != nil:
		m.metrics.RecordCycle(metrics.OutcomeFailed)
	case len(changes.Added) > 0 || len(changes.Removed) > 0:
		m.metrics.RecordCycle(metrics.OutcomeChanged)
	default:
		m.metrics.RecordCycle(metrics.OutcomeUnchanged)
	}

	log.Info("Cycle completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"notified", res.Notified,
		"success", err == nil)
	return res, err
}

// Run executes a cycle immediately and then waits interval after each cycle
// finishes before starting the next, until ctx is cancelled. Cycle errors are
// logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.logger.Info("Release monitor started", "interval", interval.String())

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if _, err := m.RunOnce(ctx); err != nil {
			m.logger.Error("Cycle failed", "error", err)
		}

		// Reset discards any expiry that happened during a long cycle.
		timer.Reset(interval)
		select {
		case <-ctx.Done():
			m.logger.Info("Release monitor stopped", "reason", ctx.Err())
			return
		case <-timer.C:
		}
	}
}
