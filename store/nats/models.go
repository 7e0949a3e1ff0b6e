package nats

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/internal/entity"
	"github.com/xraph/stash/message"
)

// messageModel is the msgpack representation stored in the bucket. The KV
// revision serves as the version, so it is not part of the value.
type messageModel struct {
	Region           string         `msgpack:"region"`
	ID               string         `msgpack:"id"`
	Payload          []byte         `msgpack:"payload,omitempty"`
	CorrelationID    string         `msgpack:"correlation_id,omitempty"`
	Headers          map[string]any `msgpack:"headers,omitempty"`
	Saved            bool           `msgpack:"saved"`
	CreatedTimestamp int64          `msgpack:"created_timestamp"`
	Fingerprint      string         `msgpack:"fingerprint"`
	UpdatedAt        int64          `msgpack:"updated_at"`
}

func encodeMessage(rec *message.Record) ([]byte, error) {
	return msgpack.Marshal(&messageModel{
		Region:           rec.Region,
		ID:               rec.ID().String(),
		Payload:          rec.Message.Payload,
		CorrelationID:    rec.Message.CorrelationID,
		Headers:          rec.Message.Headers.Values,
		Saved:            rec.Message.Headers.Saved,
		CreatedTimestamp: rec.Message.Headers.CreatedTimestamp,
		Fingerprint:      rec.Fingerprint,
		UpdatedAt:        rec.UpdatedAt,
	})
}

func decodeMessage(raw []byte, revision uint64) (*message.Record, error) {
	var m messageModel
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse message id %q: %w", m.ID, err)
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
		Version:     revision,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

type groupModel struct {
	Region        string   `msgpack:"region"`
	CorrelationID string   `msgpack:"correlation_id"`
	Members       []string `msgpack:"members,omitempty"`
	Marked        []string `msgpack:"marked,omitempty"`
	CreatedAt     int64    `msgpack:"created_at"`
	UpdatedAt     int64    `msgpack:"updated_at"`
}

func encodeGroup(g *group.Group) ([]byte, error) {
	return msgpack.Marshal(&groupModel{
		Region:        g.Region,
		CorrelationID: g.CorrelationID,
		Members:       idStrings(g.Members),
		Marked:        idStrings(g.Marked),
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	})
}

func decodeGroup(raw []byte, revision uint64) (*group.Group, error) {
	var m groupModel
	if err := msgpack.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
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
		Version:       revision,
	}, nil
}

func idStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
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
