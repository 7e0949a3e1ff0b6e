package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Stash store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
var Migrations = migrate.NewGroup("stash")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_stash_messages",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS stash_messages (
    region            TEXT NOT NULL,
    id                UUID NOT NULL,
    payload           BYTEA,
    correlation_id    TEXT NOT NULL DEFAULT '',
    headers           JSONB NOT NULL DEFAULT '{}',
    saved             BOOLEAN NOT NULL DEFAULT FALSE,
    created_timestamp BIGINT NOT NULL DEFAULT 0,
    fingerprint       TEXT NOT NULL DEFAULT '',
    version           BIGINT NOT NULL DEFAULT 1,
    updated_at        BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (region, id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS stash_messages`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_stash_groups",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS stash_groups (
    region         TEXT NOT NULL,
    correlation_id TEXT NOT NULL,
    members        JSONB NOT NULL DEFAULT '[]',
    marked         JSONB NOT NULL DEFAULT '[]',
    version        BIGINT NOT NULL DEFAULT 1,
    created_at     BIGINT NOT NULL,
    updated_at     BIGINT NOT NULL,
    PRIMARY KEY (region, correlation_id)
);

CREATE INDEX IF NOT EXISTS idx_stash_groups_created ON stash_groups (region, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS stash_groups`)
				return err
			},
		},
	)
}
