// Package memory provides an in-memory Store implementation for unit testing
// and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
	stashstore "github.com/xraph/stash/store"
)

// compile-time interface check.
var _ stashstore.Store = (*Store)(nil)

type messageKey struct {
	region string
	id     uuid.UUID
}

type groupKey struct {
	region        string
	correlationID string
}

// Store is an in-memory implementation of store.Store. Values are cloned on
// the way in and out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	messages map[messageKey]*message.Record
	groups   map[groupKey]*group.Group

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		messages: make(map[messageKey]*message.Record),
		groups:   make(map[groupKey]*group.Group),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stash.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed. Every later call fails with
// stash.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// message.Store
// ──────────────────────────────────────────────────

// CreateMessage persists a new record.
func (s *Store) CreateMessage(_ context.Context, rec *message.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stash.ErrStoreClosed
	}

	k := messageKey{rec.Region, rec.ID()}
	if _, ok := s.messages[k]; ok {
		return stash.ErrMessageExists
	}
	rec.Version = 1
	s.messages[k] = rec.Clone()
	return nil
}

// GetMessage returns the record for id in region.
func (s *Store) GetMessage(_ context.Context, region string, id uuid.UUID) (*message.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stash.ErrStoreClosed
	}

	rec, ok := s.messages[messageKey{region, id}]
	if !ok {
		return nil, stash.ErrMessageNotFound
	}
	return rec.Clone(), nil
}

// UpdateMessage overwrites a record whose stored version matches rec.Version.
func (s *Store) UpdateMessage(_ context.Context, rec *message.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stash.ErrStoreClosed
	}

	k := messageKey{rec.Region, rec.ID()}
	existing, ok := s.messages[k]
	if !ok {
		return stash.ErrMessageNotFound
	}
	if existing.Version != rec.Version {
		return stash.ErrVersionConflict
	}
	rec.Version++
	s.messages[k] = rec.Clone()
	return nil
}

// DeleteMessage removes the record for id in region and returns it.
func (s *Store) DeleteMessage(_ context.Context, region string, id uuid.UUID) (*message.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, stash.ErrStoreClosed
	}

	k := messageKey{region, id}
	rec, ok := s.messages[k]
	if !ok {
		return nil, stash.ErrMessageNotFound
	}
	delete(s.messages, k)
	return rec, nil
}

// CountMessages returns the number of records in region.
func (s *Store) CountMessages(_ context.Context, region string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, stash.ErrStoreClosed
	}

	var n int64
	for k := range s.messages {
		if k.region == region {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// group.Store
// ──────────────────────────────────────────────────

// CreateGroup persists a new group.
func (s *Store) CreateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stash.ErrStoreClosed
	}

	k := groupKey{g.Region, g.CorrelationID}
	if _, ok := s.groups[k]; ok {
		return stash.ErrGroupExists
	}
	g.Version = 1
	s.groups[k] = g.Clone()
	return nil
}

// GetGroup returns the group for correlationID in region.
func (s *Store) GetGroup(_ context.Context, region, correlationID string) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stash.ErrStoreClosed
	}

	g, ok := s.groups[groupKey{region, correlationID}]
	if !ok {
		return nil, stash.ErrGroupNotFound
	}
	return g.Clone(), nil
}

// UpdateGroup overwrites a group whose stored version matches g.Version.
func (s *Store) UpdateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stash.ErrStoreClosed
	}

	k := groupKey{g.Region, g.CorrelationID}
	existing, ok := s.groups[k]
	if !ok {
		return stash.ErrGroupNotFound
	}
	if existing.Version != g.Version {
		return stash.ErrVersionConflict
	}
	g.Version++
	s.groups[k] = g.Clone()
	return nil
}

// DeleteGroup removes the group for correlationID in region.
func (s *Store) DeleteGroup(_ context.Context, region, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stash.ErrStoreClosed
	}

	k := groupKey{region, correlationID}
	if _, ok := s.groups[k]; !ok {
		return stash.ErrGroupNotFound
	}
	delete(s.groups, k)
	return nil
}

// DeleteGroupIf removes the group only if it still matches g's version and
// creation time.
func (s *Store) DeleteGroupIf(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stash.ErrStoreClosed
	}

	k := groupKey{g.Region, g.CorrelationID}
	stored, ok := s.groups[k]
	if !ok {
		return stash.ErrGroupNotFound
	}
	if stored.Version != g.Version || stored.CreatedAt != g.CreatedAt {
		return stash.ErrVersionConflict
	}
	delete(s.groups, k)
	return nil
}

// ScanGroups returns every group in region, ordered by creation time.
func (s *Store) ScanGroups(_ context.Context, region string) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stash.ErrStoreClosed
	}

	var out []*group.Group
	for k, g := range s.groups {
		if k.region == region {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].CorrelationID < out[j].CorrelationID
	})
	return out, nil
}
