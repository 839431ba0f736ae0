package recordstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a file-based implementation of Store.
// Each record lives in its own file under DATA_DIR/accounts/<hex(userID)>.json.
// User IDs are hex encoded so that arbitrary identifiers map to safe file names.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new file-based record store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	dir := filepath.Join(baseDir, "accounts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create accounts directory: %w", err)
	}

	return &FileStore{baseDir: dir}, nil
}

// recordPath returns the filesystem path for a user's record.
func (s *FileStore) recordPath(userID string) string {
	return filepath.Join(s.baseDir, hex.EncodeToString([]byte(userID))+".json")
}

func (s *FileStore) Get(ctx context.Context, userID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, err := os.ReadFile(s.recordPath(userID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read record: %w", ErrUnavailable, err)
	}
	return blob, nil
}

func (s *FileStore) Exists(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.exists(userID)
}

func (s *FileStore) exists(userID string) (bool, error) {
	_, err := os.Stat(s.recordPath(userID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat record: %w", ErrUnavailable, err)
}

func (s *FileStore) Insert(ctx context.Context, userID string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// O_EXCL keeps the key unique even across processes sharing DATA_DIR.
	f, err := os.OpenFile(s.recordPath(userID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("%w: create record: %w", ErrUnavailable, err)
	}

	if _, err := f.Write(blob); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("%w: write record: %w", ErrUnavailable, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close record: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *FileStore) Update(ctx context.Context, userID string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.exists(userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	// Write to a sibling temp file and rename so readers never see a torn blob.
	path := s.recordPath(userID)
	tmp, err := os.CreateTemp(s.baseDir, ".record-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrUnavailable, err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: write temp file: %w", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: close temp file: %w", ErrUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: replace record: %w", ErrUnavailable, err)
	}
	return nil
}

// Close is a no-op; files are opened per call.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
