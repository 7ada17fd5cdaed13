package workflow

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/teemow/mailsense/internal/session"
)

// Artifact file names in a user's directory.
const (
	SentEmailsFile    = "sent_emails.txt"
	VoiceEmailsFile   = "filtered_voice_emails.txt"
	artifactsDirName  = "artifacts"
	artifactsDirPerms = 0o700
	artifactFilePerms = 0o600
)

// ErrNoArtifact is returned when a requested artifact has not been written.
var ErrNoArtifact = errors.New("artifact not found")

// Artifacts stores per-user workflow outputs on disk.
type Artifacts struct {
	root string
}

// NewArtifacts returns an artifact store under dataDir.
func NewArtifacts(dataDir string) *Artifacts {
	return &Artifacts{root: filepath.Join(dataDir, artifactsDirName)}
}

func (a *Artifacts) dir(userID string) (string, error) {
	if !session.ValidUserID(userID) {
		return "", fmt.Errorf("%w: %q", session.ErrInvalidUserID, userID)
	}
	return filepath.Join(a.root, userID), nil
}

// Write streams an artifact through fn and atomically replaces name.
func (a *Artifacts) Write(userID, name string, fn func(w io.Writer) error) error {
	dir, err := a.dir(userID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, artifactsDirPerms); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after rename

	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(artifactFilePerms); err != nil {
		f.Close()
		return fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// Read returns the contents of an artifact.
func (a *Artifacts) Read(userID, name string) (string, error) {
	dir, err := a.dir(userID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", name, ErrNoArtifact)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}
	return string(data), nil
}

// Remove deletes every artifact of userID.
func (a *Artifacts) Remove(userID string) error {
	dir, err := a.dir(userID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
