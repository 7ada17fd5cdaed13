package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const recordExt = ".json"

// FileStore keeps one JSON document per user in a directory. Writes go
// through a temp file and rename so readers never see a partial record.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(userID string) string {
	return filepath.Join(s.dir, userID+recordExt)
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, userID string) (*Record, error) {
	if userID == "" {
		userID = NewUserID()
	}
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(userID))
	if err == nil {
		rec, decErr := decodeRecord(data)
		return rec, storageErr("get", decErr)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, storageErr("get", err)
	}

	rec := NewRecord(userID)
	if err := s.write(rec); err != nil {
		return nil, storageErr("get", err)
	}
	return rec, nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, rec *Record) error {
	if err := checkUserID(rec.UserID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return storageErr("set", s.write(rec))
}

// Reset implements Store.
func (s *FileStore) Reset(_ context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ValidUserID(userID) {
		if err := os.Remove(s.path(userID)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, storageErr("reset", err)
		}
	}

	fresh := NewRecord("")
	if err := s.write(fresh); err != nil {
		return nil, storageErr("reset", err)
	}
	return fresh, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) write(rec *Record) error {
	rec.UpdatedAt = time.Now()
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.UserID+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path(rec.UserID))
}

// userIDFromPath maps a record file name back to its user id.
func userIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, recordExt) {
		return "", false
	}
	id := strings.TrimSuffix(base, recordExt)
	return id, ValidUserID(id)
}
