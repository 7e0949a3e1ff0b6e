// Package entity defines the timestamps shared by persisted Stash objects.
package entity

import "time"

// Entity carries creation and last-update times as unix milliseconds.
type Entity struct {
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// New returns an Entity with both timestamps set to now.
func New(now time.Time) Entity {
	ms := now.UnixMilli()
	return Entity{CreatedAt: ms, UpdatedAt: ms}
}

// Touch advances UpdatedAt to now. CreatedAt is never changed.
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now.UnixMilli()
}
