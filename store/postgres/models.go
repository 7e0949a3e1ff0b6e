package postgres

import (
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

	Region           string         `grove:"region,pk"`
	ID               string         `grove:"id,pk,type:uuid"`
	Payload          []byte         `grove:"payload"`
	CorrelationID    string         `grove:"correlation_id"`
	Headers          map[string]any `grove:"headers,type:jsonb"`
	Saved            bool           `grove:"saved"`
	CreatedTimestamp int64          `grove:"created_timestamp"`
	Fingerprint      string         `grove:"fingerprint"`
	Version          int64          `grove:"version"`
	UpdatedAt        int64          `grove:"updated_at"`
}

func toMessageModel(rec *message.Record) *messageModel {
	headers := rec.Message.Headers.Values
	if headers == nil {
		headers = map[string]any{}
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
	}
}

func fromMessageModel(m *messageModel) (*message.Record, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse message id %q: %w", m.ID, err)
	}
	values := m.Headers
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

	Region        string   `grove:"region,pk"`
	CorrelationID string   `grove:"correlation_id,pk"`
	Members       []string `grove:"members,type:jsonb"`
	Marked        []string `grove:"marked,type:jsonb"`
	Version       int64    `grove:"version"`
	CreatedAt     int64    `grove:"created_at"`
	UpdatedAt     int64    `grove:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	return &groupModel{
		Region:        g.Region,
		CorrelationID: g.CorrelationID,
		Members:       idStrings(g.Members),
		Marked:        idStrings(g.Marked),
		Version:       int64(g.Version),
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func fromGroupModel(m *groupModel) (*group.Group, error) {
	members, err := parseIDs(m.Members)
	if err != nil {
		return nil, fmt.Errorf("group %q members: %w", m.CorrelationID, err)
	}
	marked, err := parseIDs(m.Marked)
	if err != nil {
		return nil, fmt.Errorf("group %q marked: %w", m.CorrelationID, err)
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

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseIDs(ss []string) ([]uuid.UUID, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(ss))
	for i, s := range ss {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
