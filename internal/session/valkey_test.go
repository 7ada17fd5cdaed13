package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Runs against a live server only when MAILSENSE_TEST_VALKEY_ADDR is set.
func TestValkeyStore(t *testing.T) {
	addr := os.Getenv("MAILSENSE_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("MAILSENSE_TEST_VALKEY_ADDR not set")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		client, err := NewValkeyClient(ValkeyConfig{Addr: addr})
		require.NoError(t, err)
		prefix := "mailsense-test:" + NewUserID() + ":"
		s := NewValkeyStore(client, prefix, true)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestNewValkeyClient_RequiresAddr(t *testing.T) {
	_, err := NewValkeyClient(ValkeyConfig{})
	require.Error(t, err)
}
