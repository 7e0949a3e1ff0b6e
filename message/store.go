package message

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the region-scoped persistence contract for message records.
type Store interface {
	// CreateMessage persists a new record. Returns stash.ErrMessageExists if
	// the (region, id) pair is taken. Sets rec.Version on success.
	CreateMessage(ctx context.Context, rec *Record) error

	// GetMessage returns the record for id in region.
	GetMessage(ctx context.Context, region string, id uuid.UUID) (*Record, error)

	// UpdateMessage overwrites a record if its stored version still equals
	// rec.Version, then advances rec.Version. Returns stash.ErrVersionConflict
	// on a stale version and stash.ErrMessageNotFound if the record is gone.
	UpdateMessage(ctx context.Context, rec *Record) error

	// DeleteMessage removes the record and returns its last stored value.
	DeleteMessage(ctx context.Context, region string, id uuid.UUID) (*Record, error)

	// CountMessages returns the number of records in region.
	CountMessages(ctx context.Context, region string) (int64, error)
}
