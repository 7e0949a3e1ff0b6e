package redis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/internal/entity"
)

// groupModel is the JSON representation stored in Redis.
type groupModel struct {
	Region        string      `json:"region"`
	CorrelationID string      `json:"correlation_id"`
	Members       []uuid.UUID `json:"members,omitempty"`
	Marked        []uuid.UUID `json:"marked,omitempty"`
	Version       uint64      `json:"version"`
	CreatedAt     int64       `json:"created_at"`
	UpdatedAt     int64       `json:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	return &groupModel{
		Region:        g.Region,
		CorrelationID: g.CorrelationID,
		Members:       g.Members,
		Marked:        g.Marked,
		Version:       g.Version,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func fromGroupModel(m *groupModel) *group.Group {
	return &group.Group{
		Entity:        entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Region:        m.Region,
		CorrelationID: m.CorrelationID,
		Members:       m.Members,
		Marked:        m.Marked,
		Version:       m.Version,
	}
}

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	m.Version = 1
	key := entityKey(prefixGroup, m.Region, m.CorrelationID)

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return stash.ErrGroupExists
		}
		raw, err := encode(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, indexKey(zGroupRegion, m.Region), goredis.Z{
				Score:  float64(m.CreatedAt),
				Member: m.CorrelationID,
			})
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return stash.ErrGroupExists
		}
		if errors.Is(err, stash.ErrGroupExists) {
			return err
		}
		return fmt.Errorf("stash/redis: create group: %w", err)
	}
	g.Version = 1
	return nil
}

func (s *Store) GetGroup(ctx context.Context, region, correlationID string) (*group.Group, error) {
	var m groupModel
	if err := s.getEntity(ctx, entityKey(prefixGroup, region, correlationID), &m); err != nil {
		if isNotFound(err) {
			return nil, stash.ErrGroupNotFound
		}
		return nil, fmt.Errorf("stash/redis: get group: %w", err)
	}
	return fromGroupModel(&m), nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	key := entityKey(prefixGroup, m.Region, m.CorrelationID)

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		var stored groupModel
		if err := getWatched(ctx, tx, key, &stored); err != nil {
			if isRedisNil(err) {
				return stash.ErrGroupNotFound
			}
			return err
		}
		if stored.Version != m.Version {
			return stash.ErrVersionConflict
		}
		m.Version++
		raw, err := encode(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return casErr("update group", err)
	}
	g.Version = m.Version
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, region, correlationID string) error {
	key := entityKey(prefixGroup, region, correlationID)

	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, key)
	pipe.ZRem(ctx, indexKey(zGroupRegion, region), correlationID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stash/redis: delete group: %w", err)
	}
	if del.Val() == 0 {
		return stash.ErrGroupNotFound
	}
	return nil
}

func (s *Store) DeleteGroupIf(ctx context.Context, g *group.Group) error {
	key := entityKey(prefixGroup, g.Region, g.CorrelationID)

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		var stored groupModel
		if err := getWatched(ctx, tx, key, &stored); err != nil {
			if isRedisNil(err) {
				return stash.ErrGroupNotFound
			}
			return err
		}
		if stored.Version != g.Version || stored.CreatedAt != g.CreatedAt {
			return stash.ErrVersionConflict
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, indexKey(zGroupRegion, g.Region), g.CorrelationID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return casErr("delete group", err)
	}
	return nil
}

func (s *Store) ScanGroups(ctx context.Context, region string) ([]*group.Group, error) {
	ids, err := s.zRangeByScoreIDs(ctx, indexKey(zGroupRegion, region), math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, fmt.Errorf("stash/redis: scan groups: %w", err)
	}

	result := make([]*group.Group, 0, len(ids))
	for _, cid := range ids {
		g, err := s.GetGroup(ctx, region, cid)
		if err != nil {
			if errors.Is(err, stash.ErrGroupNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, g)
	}
	return result, nil
}
