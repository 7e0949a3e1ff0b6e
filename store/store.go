// Package store defines the composite backend interface for Stash persistence.
//
// Each aggregate defines its own store interface and the composite Store
// embeds them all. Every method is scoped by region, so one backend serves
// any number of isolated regions.
package store

import (
	"context"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
)

// Store is the aggregate persistence interface a Stash backend implements.
type Store interface {
	message.Store
	group.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the backend connection.
	Close() error
}
