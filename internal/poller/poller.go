// Package poller implements one polling cycle: read preferences, fetch
// opportunities, filter out seen signals, notify, persist history.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/signalwatch/internal/dedup"
	"github.com/rewired-gh/signalwatch/internal/logger"
	"github.com/rewired-gh/signalwatch/internal/models"
	"github.com/rewired-gh/signalwatch/internal/notify"
	"github.com/rewired-gh/signalwatch/internal/scheduler"
	"github.com/rewired-gh/signalwatch/internal/signalapi"
)

// DefaultLimit is the number of opportunities requested per cycle.
const DefaultLimit = 20

// Store is the persistence the cycle needs.
type Store interface {
	Preferences(ctx context.Context) (models.Preferences, error)
	LoadHistory(ctx context.Context) (*dedup.History, error)
	SaveHistory(ctx context.Context, h *dedup.History) error
	SaveLastCycle(ctx context.Context, r models.CycleReport) error
}

// Fetcher retrieves candidate signals.
type Fetcher interface {
	FetchOpportunities(ctx context.Context, limit int) ([]models.Signal, error)
}

// FetcherFactory builds a fetcher for the server URL read from preferences.
type FetcherFactory func(baseURL string) Fetcher

// HTTPFetchers returns a factory producing signalapi clients.
func HTTPFetchers(timeout time.Duration) FetcherFactory {
	return func(baseURL string) Fetcher {
		return signalapi.NewClient(baseURL, timeout)
	}
}

// Poller runs polling cycles.
type Poller struct {
	store      Store
	newFetcher FetcherFactory
	sink       notify.Sink
	limit      int
}

// New creates a Poller.
func New(store Store, newFetcher FetcherFactory, sink notify.Sink, limit int) *Poller {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Poller{store: store, newFetcher: newFetcher, sink: sink, limit: limit}
}

// Job adapts RunCycle to the scheduler.
func (p *Poller) Job() scheduler.Job {
	return func(ctx context.Context) error {
		_, err := p.RunCycle(ctx)
		return err
	}
}

// RunCycle executes one fetch, filter, notify, persist pass. A fetch failure
// returns an error wrapping scheduler.ErrRetry; storage and notification
// failures are logged and do not fail the cycle.
func (p *Poller) RunCycle(ctx context.Context) (report models.CycleReport, retErr error) {
	report = models.CycleReport{ID: uuid.NewString(), StartedAt: time.Now()}
	log := logger.With("cycle_id", report.ID)
	log.Debug().Msg("Starting polling cycle")

	defer func() {
		report.Duration = time.Since(report.StartedAt)
		if err := p.store.SaveLastCycle(ctx, report); err != nil {
			log.Warn().Err(err).Msg("Failed to save cycle report")
		}
	}()

	prefs, err := p.store.Preferences(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read preferences; using defaults")
	}
	if !prefs.NotificationsEnabled {
		report.Skipped = true
		log.Info().Msg("Notifications disabled; skipping cycle")
		return report, nil
	}

	signals, err := p.newFetcher(prefs.ServerURL).FetchOpportunities(ctx, p.limit)
	if err != nil {
		report.Error = err.Error()
		if signalapi.IsParse(err) {
			log.Error().Err(err).Str("server", prefs.ServerURL).Msg("Signal payload did not match expected shape")
		} else {
			log.Error().Err(err).Str("server", prefs.ServerURL).Msg("Failed to fetch opportunities")
		}
		return report, fmt.Errorf("%w: %w", scheduler.ErrRetry, err)
	}
	report.Fetched = len(signals)

	history, err := p.store.LoadHistory(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load seen history; starting empty")
	}

	res := dedup.FilterNew(signals, history, prefs.StrongSignalsOnly, prefs.MinScore)
	report.New = len(res.NewSignals)
	report.HistoryLen = res.History.Len()
	log.Info().Msgf("Fetched %d signals, %d new (strong_only=%t, min_score=%.1f)",
		len(signals), len(res.NewSignals), prefs.StrongSignalsOnly, prefs.MinScore)

	for i, s := range res.NewSignals {
		id := res.Fingerprints[i].NotificationID()
		if err := p.sink.Notify(ctx, notify.Title, notify.FormatSignal(s), id); err != nil {
			log.Warn().Err(err).Str("signal", s.Label()).Msg("Failed to deliver notification")
			continue
		}
		report.Notified++
	}

	if res.Changed() {
		if err := p.store.SaveHistory(ctx, res.History); err != nil {
			log.Warn().Err(err).Msg("Failed to save seen history")
		}
	}

	log.Debug().Msgf("Polling cycle completed in %v", time.Since(report.StartedAt))
	return report, nil
}
