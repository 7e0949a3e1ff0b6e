package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/xraph/stash"
	stashstore "github.com/xraph/stash/store"
)

// compile-time interface check
var _ stashstore.Store = (*Store)(nil)

// maxWatchRetries bounds how often a delete retries after losing a WATCH race.
const maxWatchRetries = 8

// Store implements store.Store using Redis via Grove KV. Reads go through the
// KV layer; compare-and-swap writes use WATCH/MULTI on the underlying client.
type Store struct {
	kv  *kv.Store
	rdb goredis.UniversalClient
}

// New creates a new Redis store backed by Grove KV.
func New(store *kv.Store) *Store {
	return &Store{
		kv:  store,
		rdb: redisdriver.UnwrapClient(store),
	}
}

// Migrate is a no-op for Redis (no schema migrations needed).
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// Close closes the KV store.
func (s *Store) Close() error {
	return s.kv.Close()
}

// isNotFound checks if an error is a KV not-found sentinel.
func isNotFound(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// isRedisNil checks if an error is a Redis nil (key not found).
func isRedisNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// casErr maps the outcome of a WATCH transaction onto the store sentinels.
// A transaction aborted by a concurrent write is a version conflict.
func casErr(op string, err error) error {
	switch {
	case errors.Is(err, goredis.TxFailedErr):
		return stash.ErrVersionConflict
	case errors.Is(err, stash.ErrVersionConflict),
		errors.Is(err, stash.ErrMessageNotFound),
		errors.Is(err, stash.ErrGroupNotFound):
		return err
	default:
		return fmt.Errorf("stash/redis: %s: %w", op, err)
	}
}

func encode(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("stash/redis: marshal entity: %w", err)
	}
	return raw, nil
}

// getEntity retrieves and decodes a JSON entity from a KV key.
func (s *Store) getEntity(ctx context.Context, key string, dest any) error {
	raw, err := s.kv.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// getWatched reads and decodes a JSON entity inside a WATCH transaction.
func getWatched(ctx context.Context, tx *goredis.Tx, key string, dest any) error {
	raw, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// zRangeByScoreIDs returns all member IDs from a sorted set within a score range.
func (s *Store) zRangeByScoreIDs(ctx context.Context, key string, lo, hi float64) ([]string, error) {
	minStr := "-inf"
	maxStr := "+inf"
	if !math.IsInf(lo, -1) {
		minStr = strconv.FormatFloat(lo, 'f', -1, 64)
	}
	if !math.IsInf(hi, 1) {
		maxStr = strconv.FormatFloat(hi, 'f', -1, 64)
	}
	return s.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: minStr,
		Max: maxStr,
	}).Result()
}
