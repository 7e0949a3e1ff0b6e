// Package reaper runs message group expiry on a cron schedule.
//
// A Reaper is an operational convenience around Store.ExpireMessageGroups:
// each tick expires the groups of every configured region that are older
// than the reaper's threshold.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/stash"
)

// DefaultSchedule is the schedule used when none is configured.
const DefaultSchedule = "@every 30s"

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Option configures a Reaper.
type Option func(*Reaper)

// WithSchedule sets the cron expression the reaper runs on.
func WithSchedule(expr string) Option {
	return func(r *Reaper) { r.expr = expr }
}

// WithRegions sets the regions swept on each run. The store's own region is
// swept when none are given.
func WithRegions(regions ...string) Option {
	return func(r *Reaper) { r.regions = regions }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) { r.logger = logger }
}

// Reaper periodically expires message groups.
type Reaper struct {
	store     *stash.Store
	threshold time.Duration
	expr      string
	regions   []string
	logger    *slog.Logger

	schedule cronlib.Schedule

	mu   sync.Mutex
	cron *cronlib.Cron
}

// New creates a Reaper that expires groups older than threshold.
func New(store *stash.Store, threshold time.Duration, opts ...Option) (*Reaper, error) {
	r := &Reaper{
		store:     store,
		threshold: threshold,
		expr:      DefaultSchedule,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.regions) == 0 {
		r.regions = []string{store.Region()}
	}

	sched, err := cronParser.Parse(r.expr)
	if err != nil {
		return nil, fmt.Errorf("reaper: invalid schedule %q: %w", r.expr, err)
	}
	r.schedule = sched
	return r, nil
}

// Start begins running on the schedule. Starting a running reaper is a no-op.
func (r *Reaper) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cronlib.New(cronlib.WithParser(cronParser))
	c.Schedule(r.schedule, cronlib.FuncJob(r.tick))
	c.Start()
	r.cron = c

	r.logger.Info("reaper started",
		slog.String("schedule", r.expr),
		slog.Duration("threshold", r.threshold),
		slog.Any("regions", r.regions),
	)
	return nil
}

// Stop stops the schedule and waits for a run in progress, or for ctx.
func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		r.logger.Info("reaper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sweeps every configured region now and returns how many groups
// each region expired. A failing region does not stop the others; their
// errors are joined.
func (r *Reaper) RunOnce(ctx context.Context) (map[string]int, error) {
	expired := make(map[string]int, len(r.regions))
	var errs []error

	for _, region := range r.regions {
		n, err := r.store.InRegion(region).ExpireMessageGroups(ctx, r.threshold)
		if err != nil {
			r.logger.WarnContext(ctx, "reaper sweep failed",
				slog.String("region", region),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		expired[region] = n
		if n > 0 {
			r.logger.InfoContext(ctx, "reaper expired message groups",
				slog.String("region", region),
				slog.Int("expired", n),
			)
		}
	}
	return expired, errors.Join(errs...)
}

func (r *Reaper) tick() {
	_, _ = r.RunOnce(context.Background()) //nolint:errcheck // failures are logged per region
}
