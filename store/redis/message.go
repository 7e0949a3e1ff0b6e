package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/stash"
	"github.com/xraph/stash/message"
)

// messageModel is the JSON representation stored in Redis.
type messageModel struct {
	Region           string         `json:"region"`
	ID               string         `json:"id"`
	Payload          []byte         `json:"payload,omitempty"`
	CorrelationID    string         `json:"correlation_id,omitempty"`
	Headers          map[string]any `json:"headers,omitempty"`
	Saved            bool           `json:"saved"`
	CreatedTimestamp int64          `json:"created_timestamp"`
	Fingerprint      string         `json:"fingerprint"`
	Version          uint64         `json:"version"`
	UpdatedAt        int64          `json:"updated_at"`
}

func toMessageModel(rec *message.Record) *messageModel {
	return &messageModel{
		Region:           rec.Region,
		ID:               rec.ID().String(),
		Payload:          rec.Message.Payload,
		CorrelationID:    rec.Message.CorrelationID,
		Headers:          rec.Message.Headers.Values,
		Saved:            rec.Message.Headers.Saved,
		CreatedTimestamp: rec.Message.Headers.CreatedTimestamp,
		Fingerprint:      rec.Fingerprint,
		Version:          rec.Version,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func fromMessageModel(m *messageModel) (*message.Record, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse message ID %q: %w", m.ID, err)
	}
	return &message.Record{
		Region: m.Region,
		Message: &message.Message{
			ID:            id,
			Payload:       m.Payload,
			CorrelationID: m.CorrelationID,
			Headers: message.Headers{
				Saved:            m.Saved,
				CreatedTimestamp: m.CreatedTimestamp,
				Values:           m.Headers,
			},
		},
		Fingerprint: m.Fingerprint,
		Version:     m.Version,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func (s *Store) CreateMessage(ctx context.Context, rec *message.Record) error {
	m := toMessageModel(rec)
	m.Version = 1
	key := entityKey(prefixMessage, m.Region, m.ID)

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return stash.ErrMessageExists
		}
		raw, err := encode(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, indexKey(sMessageRegion, m.Region), m.ID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return stash.ErrMessageExists
		}
		if errors.Is(err, stash.ErrMessageExists) {
			return err
		}
		return fmt.Errorf("stash/redis: create message: %w", err)
	}
	rec.Version = 1
	return nil
}

func (s *Store) GetMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	var m messageModel
	if err := s.getEntity(ctx, entityKey(prefixMessage, region, id.String()), &m); err != nil {
		if isNotFound(err) {
			return nil, stash.ErrMessageNotFound
		}
		return nil, fmt.Errorf("stash/redis: get message: %w", err)
	}
	return fromMessageModel(&m)
}

func (s *Store) UpdateMessage(ctx context.Context, rec *message.Record) error {
	m := toMessageModel(rec)
	key := entityKey(prefixMessage, m.Region, m.ID)

	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		var stored messageModel
		if err := getWatched(ctx, tx, key, &stored); err != nil {
			if isRedisNil(err) {
				return stash.ErrMessageNotFound
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
		return casErr("update message", err)
	}
	rec.Version = m.Version
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	key := entityKey(prefixMessage, region, id.String())

	for range maxWatchRetries {
		var stored messageModel
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			if err := getWatched(ctx, tx, key, &stored); err != nil {
				if isRedisNil(err) {
					return stash.ErrMessageNotFound
				}
				return err
			}
			_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, indexKey(sMessageRegion, region), id.String())
				return nil
			})
			return err
		}, key)
		switch {
		case err == nil:
			return fromMessageModel(&stored)
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case errors.Is(err, stash.ErrMessageNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("stash/redis: delete message: %w", err)
		}
	}
	return nil, fmt.Errorf("stash/redis: delete message: %w", goredis.TxFailedErr)
}

func (s *Store) CountMessages(ctx context.Context, region string) (int64, error) {
	n, err := s.rdb.SCard(ctx, indexKey(sMessageRegion, region)).Result()
	if err != nil {
		return 0, fmt.Errorf("stash/redis: count messages: %w", err)
	}
	return n, nil
}
