package session

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendValkey = "valkey"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	DataDir string
	Valkey  ValkeyConfig
}

// Open builds the Store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(SessionsDir(opts.DataDir))
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(opts.DataDir, "mailsense.db"))
	case BackendValkey:
		client, err := NewValkeyClient(opts.Valkey)
		if err != nil {
			return nil, err
		}
		return NewValkeyStore(client, opts.Valkey.KeyPrefix, true), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q (supported: memory, file, sqlite, valkey)", opts.Backend)
	}
}

// SessionsDir is where FileStore keeps records under dataDir.
func SessionsDir(dataDir string) string {
	return filepath.Join(dataDir, "sessions")
}
