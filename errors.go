package stash

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Stash and its backends.
var (
	// ErrNoBackend is returned when a Store is created without a backend.
	ErrNoBackend = errors.New("stash: backend is required")

	// ErrInvalidMessage is returned for a nil message, a nil message ID, or an
	// empty correlation ID.
	ErrInvalidMessage = errors.New("stash: invalid message")

	// ErrMessageNotFound is returned by backends when a message record cannot be found.
	// The Store never surfaces it; absence is reported as a nil result.
	ErrMessageNotFound = errors.New("stash: message not found")

	// ErrMessageExists is returned by backends when creating a record whose
	// (region, id) pair is already taken.
	ErrMessageExists = errors.New("stash: message already exists")

	// ErrGroupNotFound is returned by backends when a group cannot be found.
	ErrGroupNotFound = errors.New("stash: message group not found")

	// ErrGroupExists is returned by backends when creating a group whose
	// (region, correlation id) pair is already taken.
	ErrGroupExists = errors.New("stash: message group already exists")

	// ErrVersionConflict is returned by backends when a compare-and-swap
	// write observes a version other than the one it was given.
	ErrVersionConflict = errors.New("stash: version conflict")

	// ErrConcurrentModification is returned when a write lost every
	// compare-and-swap round it was allowed.
	ErrConcurrentModification = errors.New("stash: too many concurrent modifications")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("stash: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("stash: migration failed")
)

// StorageError reports a backend failure: the backend was unreachable, a
// constraint was violated, or a record could not be encoded or decoded.
// It is never used for absence.
type StorageError struct {
	Op     string
	Region string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("stash: %s [region=%s]: %v", e.Op, e.Region, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op, region string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Region: region, Err: err}
}
