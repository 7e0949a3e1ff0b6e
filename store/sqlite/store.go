package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
	stashstore "github.com/xraph/stash/store"
)

// compile-time interface check
var _ stashstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("stash/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("stash/sqlite: %w: %w", stash.ErrMigrationFailed, err)
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

// ==================== Message Store ====================

func (s *Store) CreateMessage(ctx context.Context, rec *message.Record) error {
	m, err := toMessageModel(rec)
	if err != nil {
		return err
	}
	m.Version = 1

	res, err := s.sdb.NewInsert(m).
		OnConflict("(region, id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return stash.ErrMessageExists
	}
	rec.Version = 1
	return nil
}

func (s *Store) GetMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	m := new(messageModel)
	err := s.sdb.NewSelect(m).
		Where("region = ?", region).
		Where("id = ?", id.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, stash.ErrMessageNotFound
		}
		return nil, err
	}
	return fromMessageModel(m)
}

func (s *Store) UpdateMessage(ctx context.Context, rec *message.Record) error {
	m, err := toMessageModel(rec)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate((*messageModel)(nil)).
		Set("payload = ?", m.Payload).
		Set("correlation_id = ?", m.CorrelationID).
		Set("headers = ?", m.Headers).
		Set("saved = ?", m.Saved).
		Set("created_timestamp = ?", m.CreatedTimestamp).
		Set("fingerprint = ?", m.Fingerprint).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("region = ?", m.Region).
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetMessage(ctx, rec.Region, rec.ID()); err != nil {
			return err
		}
		return stash.ErrVersionConflict
	}
	rec.Version++
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	var models []messageModel
	err := s.sdb.NewRaw(`
		DELETE FROM stash_messages
		WHERE region = ? AND id = ?
		RETURNING *
	`, region, id.String()).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, stash.ErrMessageNotFound
	}
	return fromMessageModel(&models[0])
}

func (s *Store) CountMessages(ctx context.Context, region string) (int64, error) {
	return s.sdb.NewSelect((*messageModel)(nil)).
		Where("region = ?", region).
		Count(ctx)
}

// ==================== Group Store ====================

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	m.Version = 1

	res, err := s.sdb.NewInsert(m).
		OnConflict("(region, correlation_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return stash.ErrGroupExists
	}
	g.Version = 1
	return nil
}

func (s *Store) GetGroup(ctx context.Context, region, correlationID string) (*group.Group, error) {
	m := new(groupModel)
	err := s.sdb.NewSelect(m).
		Where("region = ?", region).
		Where("correlation_id = ?", correlationID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, stash.ErrGroupNotFound
		}
		return nil, err
	}
	return fromGroupModel(m)
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	res, err := s.sdb.NewUpdate((*groupModel)(nil)).
		Set("members = ?", m.Members).
		Set("marked = ?", m.Marked).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = version + 1").
		Where("region = ?", m.Region).
		Where("correlation_id = ?", m.CorrelationID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetGroup(ctx, g.Region, g.CorrelationID); err != nil {
			return err
		}
		return stash.ErrVersionConflict
	}
	g.Version++
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, region, correlationID string) error {
	res, err := s.sdb.NewDelete((*groupModel)(nil)).
		Where("region = ?", region).
		Where("correlation_id = ?", correlationID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return stash.ErrGroupNotFound
	}
	return nil
}

func (s *Store) DeleteGroupIf(ctx context.Context, g *group.Group) error {
	res, err := s.sdb.NewDelete((*groupModel)(nil)).
		Where("region = ?", g.Region).
		Where("correlation_id = ?", g.CorrelationID).
		Where("version = ?", int64(g.Version)).
		Where("created_at = ?", g.CreatedAt).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetGroup(ctx, g.Region, g.CorrelationID); err != nil {
			return err
		}
		return stash.ErrVersionConflict
	}
	return nil
}

func (s *Store) ScanGroups(ctx context.Context, region string) ([]*group.Group, error) {
	var models []groupModel
	err := s.sdb.NewSelect(&models).
		Where("region = ?", region).
		OrderExpr("created_at ASC, correlation_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
