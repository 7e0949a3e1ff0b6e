package group

import "context"

// Store defines the region-scoped persistence contract for message groups.
type Store interface {
	// CreateGroup persists a new group. Returns stash.ErrGroupExists if the
	// (region, correlation id) pair is taken. Sets g.Version on success.
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup returns the group for correlationID in region.
	GetGroup(ctx context.Context, region, correlationID string) (*Group, error)

	// UpdateGroup overwrites a group if its stored version still equals
	// g.Version, then advances g.Version. Returns stash.ErrVersionConflict on
	// a stale version and stash.ErrGroupNotFound if the group is gone.
	UpdateGroup(ctx context.Context, g *Group) error

	// DeleteGroup removes a group with its members, marks and timestamp.
	DeleteGroup(ctx context.Context, region, correlationID string) error

	// DeleteGroupIf removes the stored group for g's region and correlation
	// id only if it is still the group g was read as: same Version and same
	// creation time. Returns stash.ErrVersionConflict if it was updated or
	// recreated since, and stash.ErrGroupNotFound if it is gone.
	DeleteGroupIf(ctx context.Context, g *Group) error

	// ScanGroups returns every group in region, empty ones included.
	ScanGroups(ctx context.Context, region string) ([]*Group, error)
}
