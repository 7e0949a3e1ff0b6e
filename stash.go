package stash

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/stash/message"
	"github.com/xraph/stash/observability"
	"github.com/xraph/stash/store"
)

// Store is a region-bound handle on a message store backend. It enforces
// message identity, idempotent re-adds and region isolation on top of the
// backend's primitive operations.
//
// A Store is safe for concurrent use. Its region is fixed for the life of the
// handle; InRegion derives a handle for another region.
type Store struct {
	config  Config
	backend store.Store
	sweeper *Sweeper
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates a new Store with the given options.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.backend == nil {
		return nil, ErrNoBackend
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.config.Clock == nil {
		s.config.Clock = time.Now
	}
	if s.config.MaxCASAttempts <= 0 {
		s.config.MaxCASAttempts = DefaultConfig().MaxCASAttempts
	}
	s.config.Region = normalizeRegion(s.config.Region)

	s.sweeper = NewSweeper(s.backend,
		WithSweeperClock(s.config.Clock),
		WithSweeperCascade(s.config.CascadeExpiry),
		WithSweeperLogger(s.logger),
	)
	return s, nil
}

// InRegion returns a handle bound to region that shares this handle's
// backend and configuration. The receiver keeps its own region, so handles
// used from different goroutines never affect each other. An empty name
// selects DefaultRegion.
func (s *Store) InRegion(region string) *Store {
	c := *s
	c.config.Region = normalizeRegion(region)
	return &c
}

// Region returns the region this handle is bound to.
func (s *Store) Region() string { return s.config.Region }

// Backend returns the underlying backend.
func (s *Store) Backend() store.Store { return s.backend }

// Sweeper returns the expiry policy used by ExpireMessageGroups.
func (s *Store) Sweeper() *Sweeper { return s.sweeper }

// AddMessage persists msg in the handle's region and returns the stored form.
//
// A message whose ID is new is stored with the SAVED and CREATED_TIMESTAMP
// headers stamped, and a stamped copy is returned; msg itself is not
// modified. Re-adding a message whose content equals the stored content
// (reserved headers aside) writes nothing and returns the stored message.
// Re-adding changed content overwrites the stored payload, correlation ID
// and headers while keeping the original creation time.
func (s *Store) AddMessage(ctx context.Context, msg *message.Message) (_ *message.Message, err error) {
	ctx, end := s.startSpan(ctx, "add_message", messageAttr(msg))
	defer func() { end(err) }()

	if err = validateMessage(msg); err != nil {
		return nil, err
	}
	return s.save(ctx, msg)
}

// GetMessage returns the stored message for id, or nil if the handle's
// region holds no such message.
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (_ *message.Message, err error) {
	ctx, end := s.startSpan(ctx, "get_message", attribute.String("stash.message_id", id.String()))
	defer func() { end(err) }()

	rec, err := s.backend.GetMessage(ctx, s.config.Region, id)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, nil
		}
		return nil, storageErr("get message", s.config.Region, err)
	}
	return rec.Message, nil
}

// RemoveMessage deletes the message for id and returns its last stored
// value, or nil if there was nothing to delete. Groups referencing the
// message are left untouched.
func (s *Store) RemoveMessage(ctx context.Context, id uuid.UUID) (_ *message.Message, err error) {
	ctx, end := s.startSpan(ctx, "remove_message", attribute.String("stash.message_id", id.String()))
	defer func() { end(err) }()

	rec, err := s.backend.DeleteMessage(ctx, s.config.Region, id)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return nil, nil
		}
		return nil, storageErr("remove message", s.config.Region, err)
	}
	if s.metrics != nil {
		s.metrics.MessagesRemoved.Inc()
	}
	s.logger.DebugContext(ctx, "message removed",
		"message_id", id,
		"region", s.config.Region,
	)
	return rec.Message, nil
}

// MessageCount returns the number of messages stored in the handle's region.
func (s *Store) MessageCount(ctx context.Context) (int, error) {
	n, err := s.backend.CountMessages(ctx, s.config.Region)
	if err != nil {
		return 0, storageErr("count messages", s.config.Region, err)
	}
	return int(n), nil
}

// save implements the create / idempotent / update paths of AddMessage as a
// compare-and-swap loop against the backend.
func (s *Store) save(ctx context.Context, msg *message.Message) (*message.Message, error) {
	region := s.config.Region

	fp, err := message.Fingerprint(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	for range s.config.MaxCASAttempts {
		existing, err := s.backend.GetMessage(ctx, region, msg.ID)
		if err != nil && !errors.Is(err, ErrMessageNotFound) {
			return nil, storageErr("add message", region, err)
		}

		if existing == nil {
			now := s.now()
			stored := msg.Clone()
			stored.Headers.Saved = true
			stored.Headers.CreatedTimestamp = now.UnixMilli()

			rec := &message.Record{
				Region:      region,
				Message:     stored,
				Fingerprint: fp,
				UpdatedAt:   now.UnixMilli(),
			}
			err = s.backend.CreateMessage(ctx, rec)
			if err == nil {
				if s.metrics != nil {
					s.metrics.MessagesAdded.Inc()
				}
				s.logger.DebugContext(ctx, "message added",
					"message_id", msg.ID,
					"region", region,
				)
				return stored.Clone(), nil
			}
			if errors.Is(err, ErrMessageExists) {
				s.conflict(ctx, "add message", msg.ID.String())
				continue
			}
			return nil, storageErr("add message", region, err)
		}

		if existing.Fingerprint == fp {
			if s.metrics != nil {
				s.metrics.MessagesIdempotent.Inc()
			}
			return existing.Message, nil
		}

		updated := existing.Clone()
		updated.Message.Payload = bytes.Clone(msg.Payload)
		updated.Message.CorrelationID = msg.CorrelationID
		updated.Message.Headers.Values = maps.Clone(msg.Headers.Values)
		updated.Message.Headers.Saved = true
		updated.Fingerprint = fp
		updated.UpdatedAt = s.now().UnixMilli()

		err = s.backend.UpdateMessage(ctx, updated)
		if err == nil {
			if s.metrics != nil {
				s.metrics.MessagesUpdated.Inc()
			}
			s.logger.DebugContext(ctx, "message updated",
				"message_id", msg.ID,
				"region", region,
			)
			return updated.Message.Clone(), nil
		}
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrMessageNotFound) {
			s.conflict(ctx, "add message", msg.ID.String())
			continue
		}
		return nil, storageErr("add message", region, err)
	}

	return nil, s.exhausted(ctx, "add message", msg.ID.String())
}

func (s *Store) now() time.Time { return s.config.Clock() }

// conflict records a lost compare-and-swap round.
func (s *Store) conflict(ctx context.Context, op, key string) {
	if s.metrics != nil {
		s.metrics.CASConflicts.Inc()
	}
	s.logger.DebugContext(ctx, "compare-and-swap conflict, retrying",
		"op", op,
		"key", key,
		"region", s.config.Region,
	)
}

// exhausted reports a write that lost every compare-and-swap round.
func (s *Store) exhausted(ctx context.Context, op, key string) error {
	s.logger.WarnContext(ctx, "compare-and-swap attempts exhausted",
		"op", op,
		"key", key,
		"region", s.config.Region,
		"attempts", s.config.MaxCASAttempts,
	)
	return fmt.Errorf("%w: %s %s", ErrConcurrentModification, op, key)
}

func (s *Store) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if s.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := s.tracer.StartSpan(ctx, op, s.config.Region, attrs...)
	return ctx, func(err error) { s.tracer.EndSpan(span, err) }
}

func messageAttr(msg *message.Message) attribute.KeyValue {
	if msg == nil {
		return attribute.String("stash.message_id", "")
	}
	return attribute.String("stash.message_id", msg.ID.String())
}

func validateMessage(msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if msg.ID == uuid.Nil {
		return fmt.Errorf("%w: message has no id", ErrInvalidMessage)
	}
	return nil
}

func normalizeRegion(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		return DefaultRegion
	}
	return region
}
