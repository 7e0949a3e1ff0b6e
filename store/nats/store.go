// Package nats provides a store.Store backed by a NATS JetStream key-value
// bucket. Records are msgpack encoded and the KV revision of each key is its
// compare-and-swap version, so several processes can share one bucket.
package nats

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	gonats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
	stashstore "github.com/xraph/stash/store"
)

// compile-time interface check
var _ stashstore.Store = (*Store)(nil)

// DefaultBucket is the bucket name used by Open when none is given.
const DefaultBucket = "stash"

// maxDeleteAttempts bounds how often a delete retries after losing a race.
const maxDeleteAttempts = 8

// Store implements store.Store on a JetStream KV bucket.
type Store struct {
	kv   jetstream.KeyValue
	conn *gonats.Conn
}

// Option configures a Store.
type Option func(*Store)

// WithConn hands the connection to the store; Close drains it.
func WithConn(nc *gonats.Conn) Option {
	return func(s *Store) { s.conn = nc }
}

// New creates a store on an existing bucket.
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates or binds the bucket on js and returns a store on it.
func Open(ctx context.Context, js jetstream.JetStream, bucket string, opts ...Option) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "stash message store",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("stash/nats: open bucket %q: %w", bucket, err)
	}
	return New(kv, opts...), nil
}

// Migrate is a no-op; the bucket is created by Open.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.kv.Status(ctx); err != nil {
		return fmt.Errorf("stash/nats: ping: %w", err)
	}
	return nil
}

// Close drains the connection if the store owns one.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// ==================== Message Store ====================

func (s *Store) CreateMessage(ctx context.Context, rec *message.Record) error {
	raw, err := encodeMessage(rec)
	if err != nil {
		return fmt.Errorf("stash/nats: encode message: %w", err)
	}
	rev, err := s.kv.Create(ctx, messageKey(rec.Region, rec.ID()), raw)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return stash.ErrMessageExists
		}
		return fmt.Errorf("stash/nats: create message: %w", err)
	}
	rec.Version = rev
	return nil
}

func (s *Store) GetMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	entry, err := s.kv.Get(ctx, messageKey(region, id))
	if err != nil {
		if isKeyNotFound(err) {
			return nil, stash.ErrMessageNotFound
		}
		return nil, fmt.Errorf("stash/nats: get message: %w", err)
	}
	return decodeMessage(entry.Value(), entry.Revision())
}

func (s *Store) UpdateMessage(ctx context.Context, rec *message.Record) error {
	raw, err := encodeMessage(rec)
	if err != nil {
		return fmt.Errorf("stash/nats: encode message: %w", err)
	}
	key := messageKey(rec.Region, rec.ID())
	rev, err := s.kv.Update(ctx, key, raw, rec.Version)
	if err != nil {
		return s.updateErr(ctx, key, rec.Version, stash.ErrMessageNotFound, err)
	}
	rec.Version = rev
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	key := messageKey(region, id)

	for range maxDeleteAttempts {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if isKeyNotFound(err) {
				return nil, stash.ErrMessageNotFound
			}
			return nil, fmt.Errorf("stash/nats: delete message: %w", err)
		}
		rec, err := decodeMessage(entry.Value(), entry.Revision())
		if err != nil {
			return nil, err
		}
		err = s.kv.Delete(ctx, key, jetstream.LastRevision(entry.Revision()))
		if err == nil {
			return rec, nil
		}
		if !isWrongRevision(err) {
			return nil, fmt.Errorf("stash/nats: delete message: %w", err)
		}
		// Lost the race to a concurrent write; read again.
	}
	return nil, fmt.Errorf("stash/nats: delete message: %w", stash.ErrVersionConflict)
}

func (s *Store) CountMessages(ctx context.Context, region string) (int64, error) {
	keys, err := s.keys(ctx, regionFilter(region, tokenMessage))
	if err != nil {
		return 0, fmt.Errorf("stash/nats: count messages: %w", err)
	}
	return int64(len(keys)), nil
}

// ==================== Group Store ====================

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	raw, err := encodeGroup(g)
	if err != nil {
		return fmt.Errorf("stash/nats: encode group: %w", err)
	}
	rev, err := s.kv.Create(ctx, groupKey(g.Region, g.CorrelationID), raw)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return stash.ErrGroupExists
		}
		return fmt.Errorf("stash/nats: create group: %w", err)
	}
	g.Version = rev
	return nil
}

func (s *Store) GetGroup(ctx context.Context, region, correlationID string) (*group.Group, error) {
	return s.getGroupByKey(ctx, groupKey(region, correlationID))
}

func (s *Store) getGroupByKey(ctx context.Context, key string) (*group.Group, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if isKeyNotFound(err) {
			return nil, stash.ErrGroupNotFound
		}
		return nil, fmt.Errorf("stash/nats: get group: %w", err)
	}
	return decodeGroup(entry.Value(), entry.Revision())
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	raw, err := encodeGroup(g)
	if err != nil {
		return fmt.Errorf("stash/nats: encode group: %w", err)
	}
	key := groupKey(g.Region, g.CorrelationID)
	rev, err := s.kv.Update(ctx, key, raw, g.Version)
	if err != nil {
		return s.updateErr(ctx, key, g.Version, stash.ErrGroupNotFound, err)
	}
	g.Version = rev
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, region, correlationID string) error {
	key := groupKey(region, correlationID)
	if _, err := s.kv.Get(ctx, key); err != nil {
		if isKeyNotFound(err) {
			return stash.ErrGroupNotFound
		}
		return fmt.Errorf("stash/nats: delete group: %w", err)
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("stash/nats: delete group: %w", err)
	}
	return nil
}

// DeleteGroupIf deletes the group only at revision g.Version. Revisions are
// never reused, so a recreated group never matches.
func (s *Store) DeleteGroupIf(ctx context.Context, g *group.Group) error {
	key := groupKey(g.Region, g.CorrelationID)
	if err := s.kv.Delete(ctx, key, jetstream.LastRevision(g.Version)); err != nil {
		if isWrongRevision(err) {
			return s.updateErr(ctx, key, g.Version, stash.ErrGroupNotFound, err)
		}
		return fmt.Errorf("stash/nats: delete group: %w", err)
	}
	return nil
}

func (s *Store) ScanGroups(ctx context.Context, region string) ([]*group.Group, error) {
	keys, err := s.keys(ctx, regionFilter(region, tokenGroup))
	if err != nil {
		return nil, fmt.Errorf("stash/nats: scan groups: %w", err)
	}

	result := make([]*group.Group, 0, len(keys))
	for _, key := range keys {
		g, err := s.getGroupByKey(ctx, key)
		if err != nil {
			if errors.Is(err, stash.ErrGroupNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].CorrelationID < result[j].CorrelationID
	})
	return result, nil
}

// ==================== Helpers ====================

// keys lists the live keys matching filter.
func (s *Store) keys(ctx context.Context, filter string) ([]string, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, filter)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// updateErr classifies a failed revision-guarded update by looking at what
// the bucket holds now.
func (s *Store) updateErr(ctx context.Context, key string, expected uint64, notFound, cause error) error {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if isKeyNotFound(err) {
			return notFound
		}
		return fmt.Errorf("stash/nats: update: %w", cause)
	}
	if entry.Revision() != expected {
		return stash.ErrVersionConflict
	}
	return fmt.Errorf("stash/nats: update: %w", cause)
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
