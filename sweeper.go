package stash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/store"
)

// maxExpireAttempts bounds how often one group is re-read after its guarded
// delete lost to a concurrent write.
const maxExpireAttempts = 8

// Sweeper is the group expiry policy. It holds no state between sweeps: each
// Sweep scans a region's groups and removes those older than a threshold.
type Sweeper struct {
	backend store.Store
	clock   func() time.Time
	cascade bool
	logger  *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperClock overrides the time source used to compute group age.
func WithSweeperClock(clock func() time.Time) SweeperOption {
	return func(sw *Sweeper) { sw.clock = clock }
}

// WithSweeperCascade makes the sweeper also remove the member messages of
// every group it expires.
func WithSweeperCascade(enabled bool) SweeperOption {
	return func(sw *Sweeper) { sw.cascade = enabled }
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(sw *Sweeper) { sw.logger = logger }
}

// NewSweeper creates a Sweeper over backend.
func NewSweeper(backend store.Store, opts ...SweeperOption) *Sweeper {
	sw := &Sweeper{
		backend: backend,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// SweepResult describes one sweep.
type SweepResult struct {
	// Scanned is the number of groups examined.
	Scanned int

	// Expired holds the groups removed, as they were when scanned.
	Expired []*group.Group

	// MessagesRemoved counts member messages removed by cascading expiry.
	MessagesRemoved int
}

// Sweep removes every group in region whose age exceeds threshold. Age is
// measured from the group's creation timestamp, so a negative threshold
// expires every group.
//
// Each delete is guarded by the snapshot it was judged on. A group written
// since the scan is read again and judged again; one removed or recreated
// since is skipped unless its new incarnation has expired too. Any other
// backend failure aborts the sweep.
func (sw *Sweeper) Sweep(ctx context.Context, region string, threshold time.Duration) (*SweepResult, error) {
	groups, err := sw.backend.ScanGroups(ctx, region)
	if err != nil {
		return nil, storageErr("scan groups", region, err)
	}

	now := sw.clock()
	res := &SweepResult{Scanned: len(groups)}

	for _, scanned := range groups {
		g, err := sw.expire(ctx, region, scanned, now, threshold)
		if err != nil {
			return res, err
		}
		if g == nil {
			continue
		}
		res.Expired = append(res.Expired, g)

		if sw.cascade {
			for _, id := range g.Members {
				if _, err := sw.backend.DeleteMessage(ctx, region, id); err != nil {
					if errors.Is(err, ErrMessageNotFound) {
						continue
					}
					return res, storageErr("expire group message", region, err)
				}
				res.MessagesRemoved++
			}
		}

		sw.logger.DebugContext(ctx, "message group expired",
			"correlation_id", g.CorrelationID,
			"region", region,
			"members", g.Size(),
			"age", g.Age(now),
		)
	}

	if len(res.Expired) > 0 {
		sw.logger.InfoContext(ctx, "expired message groups",
			"region", region,
			"scanned", res.Scanned,
			"expired", len(res.Expired),
			"messages_removed", res.MessagesRemoved,
		)
	}
	return res, nil
}

// expire deletes g if it is older than threshold and returns the snapshot
// that was deleted, or nil if the group survives or is already gone.
func (sw *Sweeper) expire(ctx context.Context, region string, g *group.Group, now time.Time, threshold time.Duration) (*group.Group, error) {
	for range maxExpireAttempts {
		if g.Age(now) <= threshold {
			return nil, nil
		}

		err := sw.backend.DeleteGroupIf(ctx, g)
		switch {
		case err == nil:
			return g, nil
		case errors.Is(err, ErrGroupNotFound):
			return nil, nil
		case !errors.Is(err, ErrVersionConflict):
			return nil, storageErr("expire group", region, err)
		}

		g, err = sw.backend.GetGroup(ctx, region, g.CorrelationID)
		if err != nil {
			if errors.Is(err, ErrGroupNotFound) {
				return nil, nil
			}
			return nil, storageErr("expire group", region, err)
		}
	}

	sw.logger.WarnContext(ctx, "compare-and-swap attempts exhausted",
		"op", "expire group",
		"key", g.CorrelationID,
		"region", region,
		"attempts", maxExpireAttempts,
	)
	return nil, fmt.Errorf("%w: expire group %s", ErrConcurrentModification, g.CorrelationID)
}
