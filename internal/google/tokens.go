package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/mailsense/internal/session"
)

// ErrNoToken is returned when a user has no stored token.
var ErrNoToken = errors.New("no Google OAuth token found")

// TokenStore persists OAuth tokens per user.
type TokenStore interface {
	Load(userID string) (*oauth2.Token, error)
	Save(userID string, tok *oauth2.Token) error
	Delete(userID string) error
}

// FileTokenStore keeps one JSON token file per user.
type FileTokenStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileTokenStore creates dir if needed.
func NewFileTokenStore(dir string) (*FileTokenStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}
	return &FileTokenStore{dir: dir}, nil
}

func (s *FileTokenStore) path(userID string) (string, error) {
	if !session.ValidUserID(userID) {
		return "", fmt.Errorf("%w: %q", session.ErrInvalidUserID, userID)
	}
	return filepath.Join(s.dir, "google-"+userID+".token"), nil
}

// Load implements TokenStore.
func (s *FileTokenStore) Load(userID string) (*oauth2.Token, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	return &tok, nil
}

// Save implements TokenStore.
func (s *FileTokenStore) Save(userID string, tok *oauth2.Token) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete implements TokenStore. Deleting a missing token is not an error.
func (s *FileTokenStore) Delete(userID string) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}
