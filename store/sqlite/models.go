package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/xraph/grove"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/internal/entity"
	"github.com/xraph/stash/message"
)

// --- Message models ---

type messageModel struct {
	grove.BaseModel `grove:"table:stash_messages"`

	Region           string `grove:"region,pk"`
	ID               string `grove:"id,pk"`
	Payload          []byte `grove:"payload"`
	CorrelationID    string `grove:"correlation_id"`
	Headers          string `grove:"headers"` // JSON object
	Saved            bool   `grove:"saved"`
	CreatedTimestamp int64  `grove:"created_timestamp"`
	Fingerprint      string `grove:"fingerprint"`
	Version          int64  `grove:"version"`
	UpdatedAt        int64  `grove:"updated_at"`
}

func toMessageModel(rec *message.Record) (*messageModel, error) {
	headers := "{}"
	if len(rec.Message.Headers.Values) > 0 {
		raw, err := json.Marshal(rec.Message.Headers.Values)
		if err != nil {
			return nil, fmt.Errorf("encode headers of %s: %w", rec.ID(), err)
		}
		headers = string(raw)
	}
	return &messageModel{
		Region:           rec.Region,
		ID:               rec.ID().String(),
		Payload:          rec.Message.Payload,
		CorrelationID:    rec.Message.CorrelationID,
		Headers:          headers,
		Saved:            rec.Message.Headers.Saved,
		CreatedTimestamp: rec.Message.Headers.CreatedTimestamp,
		Fingerprint:      rec.Fingerprint,
		Version:          int64(rec.Version),
		UpdatedAt:        rec.UpdatedAt,
	}, nil
}

func fromMessageModel(m *messageModel) (*message.Record, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse message id %q: %w", m.ID, err)
	}
	var values map[string]any
	if m.Headers != "" {
		if err := json.Unmarshal([]byte(m.Headers), &values); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", m.ID, err)
		}
	}
	if len(values) == 0 {
		values = nil
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
				Values:           values,
			},
		},
		Fingerprint: m.Fingerprint,
		Version:     uint64(m.Version),
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

// --- Group models ---

type groupModel struct {
	grove.BaseModel `grove:"table:stash_groups"`

	Region        string `grove:"region,pk"`
	CorrelationID string `grove:"correlation_id,pk"`
	Members       string `grove:"members"` // JSON array
	Marked        string `grove:"marked"`  // JSON array
	Version       int64  `grove:"version"`
	CreatedAt     int64  `grove:"created_at"`
	UpdatedAt     int64  `grove:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	members, _ := json.Marshal(nonNil(g.Members)) //nolint:errcheck // uuid slices always encode
	marked, _ := json.Marshal(nonNil(g.Marked))   //nolint:errcheck // uuid slices always encode
	return &groupModel{
		Region:        g.Region,
		CorrelationID: g.CorrelationID,
		Members:       string(members),
		Marked:        string(marked),
		Version:       int64(g.Version),
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func fromGroupModel(m *groupModel) (*group.Group, error) {
	var members, marked []uuid.UUID
	if m.Members != "" {
		if err := json.Unmarshal([]byte(m.Members), &members); err != nil {
			return nil, fmt.Errorf("group %q members: %w", m.CorrelationID, err)
		}
	}
	if m.Marked != "" {
		if err := json.Unmarshal([]byte(m.Marked), &marked); err != nil {
			return nil, fmt.Errorf("group %q marked: %w", m.CorrelationID, err)
		}
	}
	if len(members) == 0 {
		members = nil
	}
	if len(marked) == 0 {
		marked = nil
	}
	return &group.Group{
		Entity:        entity.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Region:        m.Region,
		CorrelationID: m.CorrelationID,
		Members:       members,
		Marked:        marked,
		Version:       uint64(m.Version),
	}, nil
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
