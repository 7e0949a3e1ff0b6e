package stash

import (
	"time"

	"github.com/xraph/stash/internal/entity"
)

// Entity is the timestamp pair embedded by persisted Stash objects.
type Entity = entity.Entity

// NewEntity returns an Entity with both timestamps set to now.
func NewEntity(now time.Time) Entity {
	return entity.New(now)
}
