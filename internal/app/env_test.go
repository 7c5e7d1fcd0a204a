package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/progress"
	"prepsync/internal/service"
	"prepsync/internal/testutil"
)

const oauthClient = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"]}}`

func newConfig(t *testing.T, storage, apiURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{Dir: filepath.Join(t.TempDir(), "prepsync")}
	cfg.Settings = config.Settings{
		Storage:           storage,
		APIURL:            apiURL,
		TokenLifetimeSec:  3600,
		RequestTimeoutSec: 5,
	}
	return cfg
}

func TestBuild_WithoutOAuthClient(t *testing.T) {
	for _, storage := range []string{config.StorageFile, config.StorageSQLite} {
		t.Run(storage, func(t *testing.T) {
			cfg := newConfig(t, storage, "http://localhost:3000")

			env, err := app.Build(cfg, app.Options{})
			require.NoError(t, err)
			defer func() { assert.NoError(t, env.Close()) }()

			assert.Nil(t, env.OAuth)
			assert.False(t, env.Tokens.SignedIn())
			assert.Equal(t, cfg.SessionPath(), env.Store.Path())

			_, ok := env.Tokens.GetToken(context.Background(), false)
			assert.False(t, ok)
		})
	}
}

func TestBuild_InvalidAPIURL(t *testing.T) {
	cfg := newConfig(t, config.StorageFile, "localhost:3000")

	_, err := app.Build(cfg, app.Options{})

	assert.Error(t, err)
}

func TestBuild_InvalidOAuthClient(t *testing.T) {
	cfg := newConfig(t, config.StorageFile, "http://localhost:3000")
	require.NoError(t, cfg.EnsureDir())
	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte("{"), 0600))

	_, err := app.Build(cfg, app.Options{})

	assert.ErrorContains(t, err, "invalid oauth_client.json")
}

func TestBuild_SyncsThroughBackend(t *testing.T) {
	b := testutil.NewFakeBackend()
	defer b.Close()
	b.RequireToken("cached-token")

	cfg := newConfig(t, config.StorageFile, b.URL)
	require.NoError(t, cfg.EnsureDir())
	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte(oauthClient), 0600))

	env, err := app.Build(cfg, app.Options{HTTPClient: b.Client()})
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.OAuth)
	assert.False(t, env.Tokens.SignedIn())
	require.NoError(t, env.OAuth.SaveRefreshToken("rt"))
	require.NoError(t, env.Tokens.SignIn("cached-token"))
	require.True(t, env.Tokens.SignedIn())

	tasks := []service.Task{
		{Title: "Listening drill", DayNumber: 1, WeekNumber: 3},
		{Title: "Essay outline", DayNumber: 2, WeekNumber: 3},
	}
	ctx := context.Background()
	require.NoError(t, env.Sync.EnsureInitialized(ctx, "plan-9", tasks))
	require.NoError(t, env.Sync.Start(ctx, "plan-9", progress.IdentityOf(tasks[0])))

	entry, ok := env.Sync.ReadIndex("plan-9").Lookup(progress.IdentityOf(tasks[0]))
	require.True(t, ok)
	assert.Equal(t, service.StatusInProgress, entry.Status)
	for _, r := range b.Requests() {
		assert.Equal(t, "Bearer cached-token", r.Auth)
	}
}

func TestBuild_SessionSurvivesRebuild(t *testing.T) {
	cfg := newConfig(t, config.StorageSQLite, "http://localhost:3000")
	require.NoError(t, cfg.EnsureDir())
	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte(oauthClient), 0600))

	env, err := app.Build(cfg, app.Options{})
	require.NoError(t, err)
	require.NoError(t, env.OAuth.SaveRefreshToken("rt"))
	require.NoError(t, env.Tokens.SignIn("persisted"))
	require.NoError(t, env.Close())

	env, err = app.Build(cfg, app.Options{})
	require.NoError(t, err)
	defer env.Close()

	assert.True(t, env.Tokens.SignedIn())
	tok := env.Tokens.Credentials().Get()
	require.NotNil(t, tok)
	assert.Equal(t, "persisted", tok.Value)
	state := env.Tokens.Ledger().State()
	assert.Zero(t, state.FailureCount)
	assert.False(t, state.LastRefreshAt.IsZero())
}
