package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Rediscovery reloads a registry on a cron schedule so that processes
// sharing a plugins directory pick up each other's installs.
type Rediscovery struct {
	cron     *cron.Cron
	registry *Registry
	logger   *slog.Logger
	entry    cron.EntryID
}

// NewRediscovery schedules reloads of reg. schedule is a five-field cron
// expression or a descriptor such as "@every 5m".
func NewRediscovery(reg *Registry, schedule string, logger *slog.Logger) (*Rediscovery, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rediscovery{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		registry: reg,
		logger:   logger,
	}

	id, err := r.cron.AddFunc(schedule, r.run)
	if err != nil {
		return nil, fmt.Errorf("invalid rediscover schedule %q: %w", schedule, err)
	}
	r.entry = id
	return r, nil
}

func (r *Rediscovery) run() {
	r.logger.Debug("scheduled rediscovery", "path", r.registry.Root())
	r.registry.Reload(context.Background())
}

// Start begins running the schedule in the background.
func (r *Rediscovery) Start() {
	r.cron.Start()
}

// Stop stops the schedule. The returned context is done once a running
// reload finishes.
func (r *Rediscovery) Stop() context.Context {
	return r.cron.Stop()
}

// Next returns when the next reload is due, or the zero time before Start.
func (r *Rediscovery) Next() time.Time {
	return r.cron.Entry(r.entry).Next
}
