package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Store persists session records keyed by user id.
type Store interface {
	// Get returns the record for userID, creating and persisting the default
	// record when none exists. An empty userID creates a record with a new id.
	Get(ctx context.Context, userID string) (*Record, error)

	// Set replaces the stored record for rec.UserID.
	Set(ctx context.Context, rec *Record) error

	// Reset discards the record for userID and persists a fresh default
	// record with a new user id, which it returns.
	Reset(ctx context.Context, userID string) (*Record, error)

	// Close releases backend resources.
	Close() error
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrInvalidUserID is returned for ids that cannot be used as storage keys.
var ErrInvalidUserID = errors.New("invalid user id")

// StorageError wraps a backend failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidUserID reports whether id is usable as a storage key.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func checkUserID(id string) error {
	if !ValidUserID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}

func encodeRecord(rec *Record) ([]byte, error) {
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	return &rec, nil
}
