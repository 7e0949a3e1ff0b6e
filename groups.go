package stash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
)

// AddMessageToGroup stores msg as AddMessage would, then appends its ID to
// the group for correlationID, creating the group if it does not exist yet.
// Appends are compare-and-swap writes, so concurrent appends to one group
// are never lost. It returns the group as persisted by this call.
func (s *Store) AddMessageToGroup(ctx context.Context, correlationID string, msg *message.Message) (_ *group.Group, err error) {
	ctx, end := s.startSpan(ctx, "add_message_to_group", groupAttr(correlationID), messageAttr(msg))
	defer func() { end(err) }()

	if err = validateMessage(msg); err != nil {
		return nil, err
	}
	if err = validateCorrelationID(correlationID); err != nil {
		return nil, err
	}

	saved, err := s.save(ctx, msg)
	if err != nil {
		return nil, err
	}

	region := s.config.Region
	for range s.config.MaxCASAttempts {
		g, getErr := s.backend.GetGroup(ctx, region, correlationID)
		if getErr != nil && !errors.Is(getErr, ErrGroupNotFound) {
			return nil, storageErr("add message to group", region, getErr)
		}

		if g == nil {
			g = group.New(region, correlationID, s.now())
			g.Add(saved.ID)
			err = s.backend.CreateGroup(ctx, g)
			if err == nil {
				s.appended(ctx, correlationID, saved.ID)
				return g.Clone(), nil
			}
			if errors.Is(err, ErrGroupExists) {
				s.conflict(ctx, "add message to group", correlationID)
				continue
			}
			return nil, storageErr("add message to group", region, err)
		}

		if !g.Add(saved.ID) {
			return g, nil
		}
		g.Touch(s.now())
		err = s.backend.UpdateGroup(ctx, g)
		if err == nil {
			s.appended(ctx, correlationID, saved.ID)
			return g.Clone(), nil
		}
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrGroupNotFound) {
			s.conflict(ctx, "add message to group", correlationID)
			continue
		}
		return nil, storageErr("add message to group", region, err)
	}

	return nil, s.exhausted(ctx, "add message to group", correlationID)
}

// GetMessageGroup returns a snapshot of the group for correlationID. A group
// that does not exist, or exists with no members, is returned as an empty
// group rather than nil. Members are message IDs; GroupMessages resolves
// them.
func (s *Store) GetMessageGroup(ctx context.Context, correlationID string) (_ *group.Group, err error) {
	ctx, end := s.startSpan(ctx, "get_message_group", groupAttr(correlationID))
	defer func() { end(err) }()

	g, err := s.lookupGroup(ctx, "get message group", correlationID)
	if err != nil {
		return nil, err
	}
	if g == nil || g.IsEmpty() {
		return group.Empty(s.config.Region, correlationID), nil
	}
	return g, nil
}

// GroupMessages resolves the members of the group for correlationID to their
// stored messages, in member order. Members whose message has since been
// removed are skipped.
func (s *Store) GroupMessages(ctx context.Context, correlationID string) ([]*message.Message, error) {
	g, err := s.GetMessageGroup(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	out := make([]*message.Message, 0, g.Size())
	for _, id := range g.Members {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

// MarkMessageGroup marks every member the stored group holds at the time of
// the call and persists the marked set. g is refreshed in place with the
// persisted snapshot. Marking a group that no longer exists is a no-op.
func (s *Store) MarkMessageGroup(ctx context.Context, g *group.Group) (err error) {
	if g == nil {
		return fmt.Errorf("%w: nil group", ErrInvalidMessage)
	}
	ctx, end := s.startSpan(ctx, "mark_message_group", groupAttr(g.CorrelationID))
	defer func() { end(err) }()

	updated, err := s.mutateGroup(ctx, "mark message group", g.CorrelationID, func(stored *group.Group) bool {
		return stored.MarkAll() > 0
	})
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	*g = *updated
	if s.metrics != nil {
		s.metrics.GroupsMarked.Inc()
	}
	return nil
}

// MarkMessageFromGroup marks a single member of the group for correlationID
// and returns the persisted group. Marking a non-member changes nothing.
func (s *Store) MarkMessageFromGroup(ctx context.Context, correlationID string, id uuid.UUID) (_ *group.Group, err error) {
	ctx, end := s.startSpan(ctx, "mark_message_from_group", groupAttr(correlationID))
	defer func() { end(err) }()

	g, err := s.mutateGroup(ctx, "mark message from group", correlationID, func(stored *group.Group) bool {
		return stored.Mark(id)
	})
	if err != nil {
		return nil, err
	}
	if g == nil {
		return group.Empty(s.config.Region, correlationID), nil
	}
	return g, nil
}

// RemoveMessageFromGroup drops id from the members and marked set of the
// group for correlationID and returns the persisted group. The message
// itself stays stored. A group emptied this way keeps its timestamp, so it
// is still subject to expiry, but reads as absent.
func (s *Store) RemoveMessageFromGroup(ctx context.Context, correlationID string, id uuid.UUID) (_ *group.Group, err error) {
	ctx, end := s.startSpan(ctx, "remove_message_from_group", groupAttr(correlationID))
	defer func() { end(err) }()

	g, err := s.mutateGroup(ctx, "remove message from group", correlationID, func(stored *group.Group) bool {
		return stored.Remove(id)
	})
	if err != nil {
		return nil, err
	}
	if g == nil || g.IsEmpty() {
		return group.Empty(s.config.Region, correlationID), nil
	}
	return g, nil
}

// RemoveMessageGroup deletes the group for correlationID outright. Member
// messages are not removed. Removing an absent group is a no-op.
func (s *Store) RemoveMessageGroup(ctx context.Context, correlationID string) (err error) {
	ctx, end := s.startSpan(ctx, "remove_message_group", groupAttr(correlationID))
	defer func() { end(err) }()

	if correlationID == "" {
		return nil
	}
	err = s.backend.DeleteGroup(ctx, s.config.Region, correlationID)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return nil
		}
		return storageErr("remove message group", s.config.Region, err)
	}
	s.logger.DebugContext(ctx, "message group removed",
		"correlation_id", correlationID,
		"region", s.config.Region,
	)
	return nil
}

// MessageGroupCount returns the number of non-empty groups in the handle's region.
func (s *Store) MessageGroupCount(ctx context.Context) (int, error) {
	groups, err := s.backend.ScanGroups(ctx, s.config.Region)
	if err != nil {
		return 0, storageErr("count message groups", s.config.Region, err)
	}
	n := 0
	for _, g := range groups {
		if !g.IsEmpty() {
			n++
		}
	}
	return n, nil
}

// ExpireMessageGroups removes every group in the handle's region whose age
// exceeds threshold and returns how many were removed. A negative threshold
// expires every existing group.
func (s *Store) ExpireMessageGroups(ctx context.Context, threshold time.Duration) (_ int, err error) {
	ctx, end := s.startSpan(ctx, "expire_message_groups",
		attribute.Int64("stash.threshold_ms", threshold.Milliseconds()))
	defer func() { end(err) }()

	res, err := s.sweeper.Sweep(ctx, s.config.Region, threshold)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		for _, g := range res.Expired {
			s.metrics.RecordExpiry(g.Size())
		}
	}
	return len(res.Expired), nil
}

// lookupGroup returns the stored group or nil if absent. No group is ever
// stored under an empty correlation ID, so none is looked up.
func (s *Store) lookupGroup(ctx context.Context, op, correlationID string) (*group.Group, error) {
	if correlationID == "" {
		return nil, nil
	}
	g, err := s.backend.GetGroup(ctx, s.config.Region, correlationID)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			return nil, nil
		}
		return nil, storageErr(op, s.config.Region, err)
	}
	return g, nil
}

// mutateGroup applies fn to the stored group and writes it back with a
// compare-and-swap, retrying on conflict. fn reports whether it changed the
// group; unchanged groups are not written. Returns nil if the group is absent.
func (s *Store) mutateGroup(ctx context.Context, op, correlationID string, fn func(*group.Group) bool) (*group.Group, error) {
	for range s.config.MaxCASAttempts {
		g, err := s.lookupGroup(ctx, op, correlationID)
		if err != nil || g == nil {
			return nil, err
		}
		if !fn(g) {
			return g, nil
		}
		g.Touch(s.now())
		err = s.backend.UpdateGroup(ctx, g)
		if err == nil {
			return g.Clone(), nil
		}
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrGroupNotFound) {
			s.conflict(ctx, op, correlationID)
			continue
		}
		return nil, storageErr(op, s.config.Region, err)
	}
	return nil, s.exhausted(ctx, op, correlationID)
}

func (s *Store) appended(ctx context.Context, correlationID string, id uuid.UUID) {
	if s.metrics != nil {
		s.metrics.GroupAppends.Inc()
	}
	s.logger.DebugContext(ctx, "message added to group",
		"correlation_id", correlationID,
		"message_id", id,
		"region", s.config.Region,
	)
}

func groupAttr(correlationID string) attribute.KeyValue {
	return attribute.String("stash.correlation_id", correlationID)
}

func validateCorrelationID(correlationID string) error {
	if correlationID == "" {
		return fmt.Errorf("%w: empty correlation id", ErrInvalidMessage)
	}
	return nil
}
