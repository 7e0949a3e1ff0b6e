// Package group defines the message group aggregate: the ordered set of
// message IDs sharing a correlation ID within a region, and which of them
// have been marked.
package group

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/stash/internal/entity"
)

// Group is a snapshot of a message group. Members keep insertion order and
// never repeat. Marked is always a subset of Members.
type Group struct {
	// Entity carries the group's creation and last-update times. CreatedAt is
	// the group timestamp: set on first insert, never advanced.
	entity.Entity

	CorrelationID string      `json:"correlation_id"`
	Region        string      `json:"region"`
	Members       []uuid.UUID `json:"members"`
	Marked        []uuid.UUID `json:"marked"`

	// Version is the backend's compare-and-swap token.
	Version uint64 `json:"version"`
}

// New returns an empty group created at now.
func New(region, correlationID string, now time.Time) *Group {
	return &Group{
		Entity:        entity.New(now),
		CorrelationID: correlationID,
		Region:        region,
	}
}

// Empty returns the value reported for a group that does not exist.
func Empty(region, correlationID string) *Group {
	return &Group{CorrelationID: correlationID, Region: region}
}

// Timestamp returns the group's creation time in unix milliseconds.
func (g *Group) Timestamp() int64 { return g.CreatedAt }

// Age returns how long ago the group was created, relative to now.
func (g *Group) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-g.CreatedAt) * time.Millisecond
}

// Size returns the number of members.
func (g *Group) Size() int { return len(g.Members) }

// IsEmpty reports whether the group has no members. An empty group is
// reported as absent by the store.
func (g *Group) IsEmpty() bool { return len(g.Members) == 0 }

// Contains reports whether id is a member.
func (g *Group) Contains(id uuid.UUID) bool {
	return slices.Contains(g.Members, id)
}

// IsMarked reports whether id is a marked member.
func (g *Group) IsMarked(id uuid.UUID) bool {
	return slices.Contains(g.Marked, id)
}

// Unmarked returns the members that have not been marked, in member order.
func (g *Group) Unmarked() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(g.Members)-len(g.Marked))
	for _, id := range g.Members {
		if !g.IsMarked(id) {
			out = append(out, id)
		}
	}
	return out
}

// Add appends id to the members. It reports false if id was already present.
func (g *Group) Add(id uuid.UUID) bool {
	if g.Contains(id) {
		return false
	}
	g.Members = append(g.Members, id)
	return true
}

// Remove drops id from the members and from the marked set. It reports
// whether id was a member.
func (g *Group) Remove(id uuid.UUID) bool {
	i := slices.Index(g.Members, id)
	if i < 0 {
		return false
	}
	g.Members = slices.Delete(g.Members, i, i+1)
	if j := slices.Index(g.Marked, id); j >= 0 {
		g.Marked = slices.Delete(g.Marked, j, j+1)
	}
	return true
}

// Mark marks id. It reports false if id is not a member or is already marked.
func (g *Group) Mark(id uuid.UUID) bool {
	if !g.Contains(id) || g.IsMarked(id) {
		return false
	}
	g.Marked = append(g.Marked, id)
	return true
}

// MarkAll marks every member and returns how many were newly marked.
// The marked set ends up in member order.
func (g *Group) MarkAll() int {
	n := len(g.Members) - len(g.Marked)
	g.Marked = slices.Clone(g.Members)
	return n
}

// Clone returns a deep copy of g.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = slices.Clone(g.Members)
	c.Marked = slices.Clone(g.Marked)
	return &c
}
