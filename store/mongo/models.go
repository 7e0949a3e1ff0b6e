package mongo

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/xraph/grove"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/internal/entity"
	"github.com/xraph/stash/message"
)

// docID builds the document key for a (region, key) pair. The region length
// prefix keeps keys unambiguous whatever characters either part holds.
func docID(region, key string) string {
	return strconv.Itoa(len(region)) + ":" + region + ":" + key
}

// --- Message models ---

// Headers are kept as a JSON string: decoding nested BSON documents into
// map[string]any yields bson.D values, which would not match what the caller
// stored.
type messageModel struct {
	grove.BaseModel `grove:"table:stash_messages"`

	ID               string `grove:"id,pk"             bson:"_id"`
	Region           string `grove:"region"            bson:"region"`
	MessageID        string `grove:"message_id"        bson:"message_id"`
	Payload          []byte `grove:"payload"           bson:"payload,omitempty"`
	CorrelationID    string `grove:"correlation_id"    bson:"correlation_id"`
	Headers          string `grove:"headers"           bson:"headers"`
	Saved            bool   `grove:"saved"             bson:"saved"`
	CreatedTimestamp int64  `grove:"created_timestamp" bson:"created_timestamp"`
	Fingerprint      string `grove:"fingerprint"       bson:"fingerprint"`
	Version          int64  `grove:"version"           bson:"version"`
	UpdatedAt        int64  `grove:"updated_at"        bson:"updated_at"`
}

func toMessageModel(rec *message.Record) (*messageModel, error) {
	headers := ""
	if len(rec.Message.Headers.Values) > 0 {
		raw, err := json.Marshal(rec.Message.Headers.Values)
		if err != nil {
			return nil, fmt.Errorf("encode headers of %s: %w", rec.ID(), err)
		}
		headers = string(raw)
	}
	return &messageModel{
		ID:               docID(rec.Region, rec.ID().String()),
		Region:           rec.Region,
		MessageID:        rec.ID().String(),
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
	id, err := uuid.Parse(m.MessageID)
	if err != nil {
		return nil, fmt.Errorf("parse message id %q: %w", m.MessageID, err)
	}
	var values map[string]any
	if m.Headers != "" {
		if err := json.Unmarshal([]byte(m.Headers), &values); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", m.MessageID, err)
		}
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

	ID            string   `grove:"id,pk"          bson:"_id"`
	Region        string   `grove:"region"         bson:"region"`
	CorrelationID string   `grove:"correlation_id" bson:"correlation_id"`
	Members       []string `grove:"members"        bson:"members"`
	Marked        []string `grove:"marked"         bson:"marked"`
	Version       int64    `grove:"version"        bson:"version"`
	CreatedAt     int64    `grove:"created_at"     bson:"created_at"`
	UpdatedAt     int64    `grove:"updated_at"     bson:"updated_at"`
}

func toGroupModel(g *group.Group) *groupModel {
	return &groupModel{
		ID:            docID(g.Region, g.CorrelationID),
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
