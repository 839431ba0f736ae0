package recordstore

import (
	"context"
	"errors"
)

// Store is the durable userID -> blob mapping backing account records.
// Implementations must treat the userID as a unique key and never inspect
// the blob contents.
type Store interface {
	// Get returns the blob stored for userID, or ErrNotFound.
	Get(ctx context.Context, userID string) ([]byte, error)

	// Exists reports whether a row for userID is present without reading its blob.
	Exists(ctx context.Context, userID string) (bool, error)

	// Insert creates a row for userID. It fails with ErrDuplicateKey if one already exists.
	Insert(ctx context.Context, userID string, blob []byte) error

	// Update replaces the blob of an existing row. It fails with ErrNotFound if none exists.
	Update(ctx context.Context, userID string, blob []byte) error

	// Close releases any resources held by the store.
	Close() error
}

var (
	// ErrNotFound indicates that no row exists for the requested user.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates that an insert collided with an existing row.
	ErrDuplicateKey = errors.New("record already exists")

	// ErrUnavailable indicates an infrastructure failure reaching the backend.
	ErrUnavailable = errors.New("record store unavailable")
)

// IsUnavailable reports whether err stems from a backend failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
