// Package control implements the operator actions shared by the Telegram
// and HTTP surfaces: reading and changing preferences, browsing signals and
// triggering a cycle.
package control

import (
	"context"
	"errors"
	"time"

	"github.com/rewired-gh/signalwatch/internal/dedup"
	"github.com/rewired-gh/signalwatch/internal/models"
	"github.com/rewired-gh/signalwatch/internal/signalapi"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var (
	// ErrCycleRunning is returned by TriggerCycle while a cycle is in flight.
	ErrCycleRunning = errors.New("a polling cycle is already running")
	// ErrSchedulerUnavailable is returned by TriggerCycle when no scheduler
	// is accepting jobs.
	ErrSchedulerUnavailable = errors.New("scheduler is not running")
)

// Store is the settings store as seen by operators.
type Store interface {
	Preferences(ctx context.Context) (models.Preferences, error)
	Set(ctx context.Context, key, value string) error
	LoadHistory(ctx context.Context) (*dedup.History, error)
	LastCycle(ctx context.Context) (*models.CycleReport, error)
}

// Client reads from the signal service.
type Client interface {
	FetchLatest(ctx context.Context, limit int) ([]models.Signal, error)
	FetchOpportunities(ctx context.Context, limit int) ([]models.Signal, error)
	Health(ctx context.Context) (*signalapi.HealthResponse, error)
}

// ClientFactory builds a client for the configured server.
type ClientFactory func(baseURL string) Client

// HTTPClients returns a factory producing signalapi clients.
func HTTPClients(timeout time.Duration) ClientFactory {
	return func(baseURL string) Client {
		return signalapi.NewClient(baseURL, timeout)
	}
}

// Jobs is the subset of the scheduler used for manual triggers.
type Jobs interface {
	Trigger(name string) bool
	Running(name string) bool
	Next(name string) time.Time
}

// Status describes the polling pipeline.
type Status struct {
	LastCycle       *models.CycleReport `json:"last_cycle,omitempty"`
	HistoryLen      int                 `json:"history_len"`
	HistoryCapacity int                 `json:"history_capacity"`
	Running         bool                `json:"running"`
	NextRun         time.Time           `json:"next_run"`
}

// Controller executes operator actions.
type Controller struct {
	store   Store
	clients ClientFactory
	jobs    Jobs
	jobName string
}

// New creates a Controller. jobs may be nil when no scheduler is running.
func New(store Store, clients ClientFactory, jobs Jobs, jobName string) *Controller {
	return &Controller{store: store, clients: clients, jobs: jobs, jobName: jobName}
}

// Preferences returns the current preferences, falling back to defaults for
// keys that could not be read.
func (c *Controller) Preferences(ctx context.Context) (models.Preferences, error) {
	return c.store.Preferences(ctx)
}

// Set changes one preference and returns the resulting preferences.
func (c *Controller) Set(ctx context.Context, key, value string) (models.Preferences, error) {
	if err := c.store.Set(ctx, key, value); err != nil {
		return models.Preferences{}, err
	}
	return c.store.Preferences(ctx)
}

// Latest fetches the most recent signals from the configured server.
func (c *Controller) Latest(ctx context.Context, limit int) ([]models.Signal, error) {
	return c.client(ctx).FetchLatest(ctx, clampLimit(limit))
}

// Opportunities fetches the current opportunities from the configured server.
func (c *Controller) Opportunities(ctx context.Context, limit int) ([]models.Signal, error) {
	return c.client(ctx).FetchOpportunities(ctx, clampLimit(limit))
}

// Health queries the configured server's health endpoint.
func (c *Controller) Health(ctx context.Context) (*signalapi.HealthResponse, error) {
	return c.client(ctx).Health(ctx)
}

// TriggerCycle starts a polling cycle now.
func (c *Controller) TriggerCycle() error {
	if c.jobs == nil {
		return ErrSchedulerUnavailable
	}
	if c.jobs.Trigger(c.jobName) {
		return nil
	}
	if c.jobs.Running(c.jobName) {
		return ErrCycleRunning
	}
	return ErrSchedulerUnavailable
}

// Status reports the last cycle and history usage.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	var st Status
	last, err := c.store.LastCycle(ctx)
	if err != nil {
		return st, err
	}
	st.LastCycle = last

	h, err := c.store.LoadHistory(ctx)
	if err != nil {
		return st, err
	}
	st.HistoryLen = h.Len()
	st.HistoryCapacity = h.Capacity()

	if c.jobs != nil {
		st.Running = c.jobs.Running(c.jobName)
		st.NextRun = c.jobs.Next(c.jobName)
	}
	return st, nil
}

// client builds a client for the server preference. A storage failure still
// yields a client for the default server.
func (c *Controller) client(ctx context.Context) Client {
	prefs, _ := c.store.Preferences(ctx)
	return c.clients(prefs.ServerURL)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
