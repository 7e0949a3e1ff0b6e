package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
	stashstore "github.com/xraph/stash/store"
)

// compile-time interface check
var _ stashstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("stash/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("stash/postgres: %w: %w", stash.ErrMigrationFailed, err)
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
	m := toMessageModel(rec)
	m.Version = 1

	res, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("region = $1", region).
		Where("id = $2", id.String()).
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
	m := toMessageModel(rec)
	res, err := s.pg.NewUpdate((*messageModel)(nil)).
		Set("payload = $1", m.Payload).
		Set("correlation_id = $2", m.CorrelationID).
		Set("headers = $3", m.Headers).
		Set("saved = $4", m.Saved).
		Set("created_timestamp = $5", m.CreatedTimestamp).
		Set("fingerprint = $6", m.Fingerprint).
		Set("updated_at = $7", m.UpdatedAt).
		Set("version = version + 1").
		Where("region = $8", m.Region).
		Where("id = $9", m.ID).
		Where("version = $10", m.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.messageMiss(ctx, rec.Region, rec.ID())
	}
	rec.Version++
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, region string, id uuid.UUID) (*message.Record, error) {
	var models []messageModel
	err := s.pg.NewRaw(`
		DELETE FROM stash_messages
		WHERE region = $1 AND id = $2
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
	return s.pg.NewSelect((*messageModel)(nil)).
		Where("region = $1", region).
		Count(ctx)
}

// messageMiss tells a stale version from a vanished record after a guarded
// update matched no row.
func (s *Store) messageMiss(ctx context.Context, region string, id uuid.UUID) error {
	_, err := s.GetMessage(ctx, region, id)
	if err != nil {
		return err
	}
	return stash.ErrVersionConflict
}

// ==================== Group Store ====================

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	m := toGroupModel(g)
	m.Version = 1

	res, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("region = $1", region).
		Where("correlation_id = $2", correlationID).
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
	res, err := s.pg.NewUpdate((*groupModel)(nil)).
		Set("members = $1", m.Members).
		Set("marked = $2", m.Marked).
		Set("updated_at = $3", m.UpdatedAt).
		Set("version = version + 1").
		Where("region = $4", m.Region).
		Where("correlation_id = $5", m.CorrelationID).
		Where("version = $6", m.Version).
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
	res, err := s.pg.NewDelete((*groupModel)(nil)).
		Where("region = $1", region).
		Where("correlation_id = $2", correlationID).
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
	res, err := s.pg.NewDelete((*groupModel)(nil)).
		Where("region = $1", g.Region).
		Where("correlation_id = $2", g.CorrelationID).
		Where("version = $3", int64(g.Version)).
		Where("created_at = $4", g.CreatedAt).
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
	err := s.pg.NewSelect(&models).
		Where("region = $1", region).
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
