package recordstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const accountsBucket = "accounts"

// BoltStore provides a BoltDB-backed record store.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens a BoltDB-backed store at the provided path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open storage db: %w", ErrUnavailable, err)
	}

	store := &BoltStore{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *BoltStore) Get(ctx context.Context, userID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var blob []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		if bucket == nil {
			return fmt.Errorf("%w: accounts bucket is missing", ErrUnavailable)
		}
		v := bucket.Get([]byte(userID))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction.
		blob = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return blob, nil
}

func (s *BoltStore) Exists(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		if bucket == nil {
			return fmt.Errorf("%w: accounts bucket is missing", ErrUnavailable)
		}
		found = bucket.Get([]byte(userID)) != nil
		return nil
	})
	if err != nil {
		return false, s.wrap(err)
	}
	return found, nil
}

func (s *BoltStore) Insert(ctx context.Context, userID string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.wrap(s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		if bucket == nil {
			return fmt.Errorf("%w: accounts bucket is missing", ErrUnavailable)
		}
		if bucket.Get([]byte(userID)) != nil {
			return ErrDuplicateKey
		}
		return bucket.Put([]byte(userID), blob)
	}))
}

func (s *BoltStore) Update(ctx context.Context, userID string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.wrap(s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(accountsBucket))
		if bucket == nil {
			return fmt.Errorf("%w: accounts bucket is missing", ErrUnavailable)
		}
		if bucket.Get([]byte(userID)) == nil {
			return ErrNotFound
		}
		return bucket.Put([]byte(userID), blob)
	}))
}

// Close closes the underlying BoltDB database.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(accountsBucket)); err != nil {
			return fmt.Errorf("create accounts bucket: %w", err)
		}
		return nil
	})
}

// wrap leaves domain errors untouched and tags everything else as unavailable.
func (s *BoltStore) wrap(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func isDomainError(err error) bool {
	return errorsIsAny(err, ErrNotFound, ErrDuplicateKey, ErrUnavailable)
}

var _ Store = (*BoltStore)(nil)
