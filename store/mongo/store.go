package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
	"github.com/xraph/stash/store"
)

// Collection name constants.
const (
	colMessages = "stash_messages"
	colGroups   = "stash_groups"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all stash collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}

		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("stash/mongo: %w: %s indexes: %w", stash.ErrMigrationFailed, col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrationIndexes returns the index definitions for all stash collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colMessages: {
			{
				Keys:    bson.D{{Key: "region", Value: 1}, {Key: "message_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colGroups: {
			{
				Keys:    bson.D{{Key: "region", Value: 1}, {Key: "correlation_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "region", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}

// ==================== Message Store ====================

// CreateMessage persists a new record.
func (s *Store) CreateMessage(ctx context.Context, rec *message.Record) error {
	m, err := toMessageModel(rec)
	if err != nil {
		return err
	}
	m.Version = 1

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return stash.ErrMessageExists
		}

		return fmt.Errorf("stash/mongo: create message: %w", err)
	}

	rec.Version = 1
	return nil
}

// GetMessage returns the record for id in region.
func (s *Store) GetMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	var m messageModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docID(region, id.String())}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stash.ErrMessageNotFound
		}

		return nil, fmt.Errorf("stash/mongo: get message: %w", err)
	}

	return fromMessageModel(&m)
}

// UpdateMessage overwrites a record whose stored version matches rec.Version.
func (s *Store) UpdateMessage(ctx context.Context, rec *message.Record) error {
	m, err := toMessageModel(rec)
	if err != nil {
		return err
	}
	expected := m.Version
	m.Version++

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": expected}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stash/mongo: update message: %w", err)
	}

	if res.MatchedCount() == 0 {
		if _, err := s.GetMessage(ctx, rec.Region, rec.ID()); err != nil {
			return err
		}
		return stash.ErrVersionConflict
	}

	rec.Version = uint64(m.Version)
	return nil
}

// DeleteMessage removes the record for id in region and returns it.
func (s *Store) DeleteMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	var m messageModel

	err := s.mdb.Collection(colMessages).
		FindOneAndDelete(ctx, bson.M{"_id": docID(region, id.String())}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stash.ErrMessageNotFound
		}

		return nil, fmt.Errorf("stash/mongo: delete message: %w", err)
	}

	return fromMessageModel(&m)
}

// CountMessages returns the number of records in region.
func (s *Store) CountMessages(ctx context.Context, region string) (int64, error) {
	count, err := s.mdb.NewFind((*messageModel)(nil)).
		Filter(bson.M{"region": region}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("stash/mongo: count messages: %w", err)
	}

	return count, nil
}

// ==================== Group Store ====================

// CreateGroup persists a new group.
func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	m.Version = 1

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return stash.ErrGroupExists
		}

		return fmt.Errorf("stash/mongo: create group: %w", err)
	}

	g.Version = 1
	return nil
}

// GetGroup returns the group for correlationID in region.
func (s *Store) GetGroup(ctx context.Context, region, correlationID string) (*group.Group, error) {
	var m groupModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": docID(region, correlationID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, stash.ErrGroupNotFound
		}

		return nil, fmt.Errorf("stash/mongo: get group: %w", err)
	}

	return fromGroupModel(&m)
}

// UpdateGroup overwrites a group whose stored version matches g.Version.
func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	expected := m.Version
	m.Version++

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": expected}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stash/mongo: update group: %w", err)
	}

	if res.MatchedCount() == 0 {
		if _, err := s.GetGroup(ctx, g.Region, g.CorrelationID); err != nil {
			return err
		}
		return stash.ErrVersionConflict
	}

	g.Version = uint64(m.Version)
	return nil
}

// DeleteGroup removes the group for correlationID in region.
func (s *Store) DeleteGroup(ctx context.Context, region, correlationID string) error {
	res, err := s.mdb.NewDelete((*groupModel)(nil)).
		Filter(bson.M{"_id": docID(region, correlationID)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stash/mongo: delete group: %w", err)
	}

	if res.DeletedCount() == 0 {
		return stash.ErrGroupNotFound
	}

	return nil
}

// DeleteGroupIf removes the group only if it still matches g's version and
// creation time.
func (s *Store) DeleteGroupIf(ctx context.Context, g *group.Group) error {
	res, err := s.mdb.NewDelete((*groupModel)(nil)).
		Filter(bson.M{
			"_id":        docID(g.Region, g.CorrelationID),
			"version":    int64(g.Version),
			"created_at": g.CreatedAt,
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stash/mongo: delete group: %w", err)
	}

	if res.DeletedCount() == 0 {
		if _, err := s.GetGroup(ctx, g.Region, g.CorrelationID); err != nil {
			return err
		}
		return stash.ErrVersionConflict
	}

	return nil
}

// ScanGroups returns every group in region, oldest first.
func (s *Store) ScanGroups(ctx context.Context, region string) ([]*group.Group, error) {
	var models []groupModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"region": region}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "correlation_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("stash/mongo: scan groups: %w", err)
	}

	result := make([]*group.Group, len(models))
	for i := range models {
		g, err := fromGroupModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}

	return result, nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
