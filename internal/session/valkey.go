package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig configures a ValkeyStore.
type ValkeyConfig struct {
	// Addr is the Valkey server address (e.g. "valkey.namespace.svc:6379").
	Addr string

	// Password is the optional password for Valkey authentication.
	Password string

	// TLSEnabled enables TLS for Valkey connections.
	TLSEnabled bool

	// KeyPrefix namespaces all keys (default "mailsense:").
	KeyPrefix string

	// DB is the Valkey database number.
	DB int
}

// DefaultKeyPrefix is used when ValkeyConfig.KeyPrefix is empty.
const DefaultKeyPrefix = "mailsense:"

// NewValkeyClient creates a client from cfg.
func NewValkeyClient(cfg ValkeyConfig) (valkey.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	return client, nil
}

// ValkeyStore keeps records in Valkey as JSON strings.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	owned  bool
}

// NewValkeyStore wraps client. When owned is true, Close closes the client.
func NewValkeyStore(client valkey.Client, keyPrefix string, owned bool) *ValkeyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &ValkeyStore{client: client, prefix: keyPrefix, owned: owned}
}

func (s *ValkeyStore) key(userID string) string {
	return s.prefix + "session:" + userID
}

// Get implements Store.
func (s *ValkeyStore) Get(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		userID = NewUserID()
	}
	if err := checkUserID(userID); err != nil {
		return nil, err
	}

	rec := NewRecord(userID)
	rec.UpdatedAt = time.Now()
	data, err := encodeRecord(rec)
	if err != nil {
		return nil, storageErr("get", err)
	}

	// SET NX creates the default without clobbering a concurrent writer.
	err = s.client.Do(ctx, s.client.B().Set().Key(s.key(userID)).Value(string(data)).Nx().Build()).Error()
	if err != nil && !valkey.IsValkeyNil(err) {
		return nil, storageErr("get", err)
	}

	stored, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(userID)).Build()).ToString()
	if err != nil {
		return nil, storageErr("get", err)
	}

	out, err := decodeRecord([]byte(stored))
	return out, storageErr("get", err)
}

// Set implements Store.
func (s *ValkeyStore) Set(ctx context.Context, rec *Record) error {
	if err := checkUserID(rec.UserID); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now()

	data, err := encodeRecord(rec)
	if err != nil {
		return storageErr("set", err)
	}
	err = s.client.Do(ctx, s.client.B().Set().Key(s.key(rec.UserID)).Value(string(data)).Build()).Error()
	return storageErr("set", err)
}

// Reset implements Store.
func (s *ValkeyStore) Reset(ctx context.Context, userID string) (*Record, error) {
	if ValidUserID(userID) {
		if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(userID)).Build()).Error(); err != nil {
			return nil, storageErr("reset", err)
		}
	}

	fresh := NewRecord("")
	if err := s.Set(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Ping verifies server connectivity.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close implements Store.
func (s *ValkeyStore) Close() error {
	if s.owned {
		s.client.Close()
	}
	return nil
}
