package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		BackendMemory: func(t *testing.T) Store {
			return NewMemoryStore()
		},
		BackendFile: func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		BackendSQLite: func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStores(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			runStoreSuite(t, newStore)
		})
	}
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get creates and persists default", func(t *testing.T) {
		s := newStore(t)

		rec, err := s.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", rec.UserID)
		assert.False(t, rec.Authenticated)
		assert.Equal(t, StepAuth, rec.Step())

		again, err := s.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, again.UserID)
	})

	t.Run("get with empty id generates one", func(t *testing.T) {
		s := newStore(t)

		rec, err := s.Get(ctx, "")
		require.NoError(t, err)
		require.True(t, ValidUserID(rec.UserID))

		again, err := s.Get(ctx, rec.UserID)
		require.NoError(t, err)
		assert.Equal(t, rec.UserID, again.UserID)
	})

	t.Run("set replaces whole record", func(t *testing.T) {
		s := newStore(t)

		rec, err := s.Get(ctx, "user-2")
		require.NoError(t, err)

		rec.Authenticated = true
		rec.HistoryFetched = true
		rec.Profile = Profile{Name: "Ada", Role: "Engineer", ProfileComplete: true}
		rec.LastError = "boom"
		rec.LastErrorKind = ErrorKindExternal
		require.NoError(t, s.Set(ctx, rec))
		assert.False(t, rec.UpdatedAt.IsZero())

		got, err := s.Get(ctx, "user-2")
		require.NoError(t, err)
		assert.True(t, got.Authenticated)
		assert.True(t, got.HistoryFetched)
		assert.Equal(t, "Ada", got.Profile.Name)
		assert.True(t, got.Profile.ProfileComplete)
		assert.Equal(t, "boom", got.LastError)
		assert.Equal(t, ErrorKindExternal, got.LastErrorKind)

		got.LastError = ""
		got.LastErrorKind = ErrorKindNone
		require.NoError(t, s.Set(ctx, got))

		cleared, err := s.Get(ctx, "user-2")
		require.NoError(t, err)
		assert.Empty(t, cleared.LastError)
		assert.True(t, cleared.Authenticated)
	})

	t.Run("returned records are not aliased", func(t *testing.T) {
		s := newStore(t)

		rec, err := s.Get(ctx, "user-3")
		require.NoError(t, err)
		rec.Authenticated = true

		fresh, err := s.Get(ctx, "user-3")
		require.NoError(t, err)
		assert.False(t, fresh.Authenticated)
	})

	t.Run("reset yields fresh record with new id", func(t *testing.T) {
		s := newStore(t)

		rec, err := s.Get(ctx, "user-4")
		require.NoError(t, err)
		rec.Authenticated = true
		rec.SetupComplete = true
		require.NoError(t, s.Set(ctx, rec))

		fresh, err := s.Reset(ctx, "user-4")
		require.NoError(t, err)
		assert.NotEqual(t, "user-4", fresh.UserID)
		assert.False(t, fresh.Authenticated)
		assert.False(t, fresh.SetupComplete)

		persisted, err := s.Get(ctx, fresh.UserID)
		require.NoError(t, err)
		assert.Equal(t, fresh.UserID, persisted.UserID)

		old, err := s.Get(ctx, "user-4")
		require.NoError(t, err)
		assert.False(t, old.Authenticated, "old record is discarded")
	})

	t.Run("invalid ids are rejected", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(ctx, "../etc/passwd")
		assert.True(t, errors.Is(err, ErrInvalidUserID))

		err = s.Set(ctx, &Record{UserID: "a b"})
		assert.True(t, errors.Is(err, ErrInvalidUserID))
	})

	t.Run("concurrent writers last one wins", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "user-5")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := NewRecord("user-5")
				rec.Authenticated = i%2 == 0
				assert.NoError(t, s.Set(ctx, rec))
			}(i)
		}
		wg.Wait()

		_, err = s.Get(ctx, "user-5")
		require.NoError(t, err)
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{Backend: BackendFile, DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, SessionsDir(dir), s.(*FileStore).Dir())

	s, err = Open(Options{Backend: BackendSQLite, DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: BackendValkey})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "etcd"})
	assert.ErrorContains(t, err, "unsupported session backend")
}

func TestInstrumentedStore(t *testing.T) {
	s := NewInstrumentedStore(NewMemoryStore(), BackendMemory, nil)
	ctx := context.Background()

	rec, err := s.Get(ctx, "user-6")
	require.NoError(t, err)
	rec.Authenticated = true
	require.NoError(t, s.Set(ctx, rec))

	got, err := s.Get(ctx, "user-6")
	require.NoError(t, err)
	assert.True(t, got.Authenticated)

	_, err = s.Reset(ctx, "user-6")
	require.NoError(t, err)
}

func TestStorageError(t *testing.T) {
	inner := errors.New("disk full")
	err := storageErr("set", inner)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "set", se.Op)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "session store set: disk full", err.Error())
	assert.NoError(t, storageErr("set", nil))
}
