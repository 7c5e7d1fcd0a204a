package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepsync/internal/config"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sq, err := OpenSQLite(filepath.Join(dir, "session.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{
		"file":   NewFileStore(filepath.Join(dir, "session.json")),
		"sqlite": sq,
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put(map[string]string{"a": "1", "b": "2"}))
			v, ok, err := s.Get("a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "1", v)

			require.NoError(t, s.Put(map[string]string{"a": "3"}))
			v, _, _ = s.Get("a")
			assert.Equal(t, "3", v)

			require.NoError(t, s.Delete("a", "never-set"))
			_, ok, err = s.Get("a")
			require.NoError(t, err)
			assert.False(t, ok)

			v, ok, _ = s.Get("b")
			assert.True(t, ok)
			assert.Equal(t, "2", v)
		})
	}
}

func TestFileStore_VisibleAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	a := NewFileStore(path)
	b := NewFileStore(path)

	require.NoError(t, a.Put(map[string]string{"auth.token": "tok"}))
	v, ok, err := b.Get("auth.token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
}

func TestFileStore_Mode0600(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path)
	require.NoError(t, s.Put(map[string]string{"k": "v"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, _, err := NewFileStore(path).Get("k")
	assert.Error(t, err)
}

func TestOpen_SelectsBackend(t *testing.T) {
	cfg := &config.Config{Dir: filepath.Join(t.TempDir(), "nested")}
	cfg.Settings.Storage = config.StorageSQLite

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	_, isSQLite := s.(*SQLiteStore)
	assert.True(t, isSQLite)
	assert.Equal(t, cfg.SessionPath(), s.Path())
}

func TestWatch_NotifiesOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileStore(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func() { changed <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, s.Put(map[string]string{"k": time.Now().String()}))
		select {
		case <-changed:
			cancel()
			require.NoError(t, <-done)
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no change notification received")
		}
	}
}
