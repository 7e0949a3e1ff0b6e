package stash

import "time"

// DefaultRegion is the region a Store is bound to unless told otherwise.
const DefaultRegion = "DEFAULT"

// Config holds the configuration for a Store.
type Config struct {
	// Region is the partition every operation of the handle is scoped to.
	Region string

	// MaxCASAttempts bounds the compare-and-swap rounds a single write may
	// take under contention before failing with ErrConcurrentModification.
	MaxCASAttempts int

	// CascadeExpiry makes ExpireMessageGroups also remove the member
	// messages of every expired group.
	CascadeExpiry bool

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Region:         DefaultRegion,
		MaxCASAttempts: 32,
		Clock:          time.Now,
	}
}
