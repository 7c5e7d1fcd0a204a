package testutil

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"prepsync/internal/app"
	"prepsync/internal/kv"
	"prepsync/internal/logging"
	"prepsync/internal/progress"
	"prepsync/internal/service"
	"prepsync/internal/session"
)

// StaticAuth is an Authenticator that hands out a fixed token.
type StaticAuth struct {
	SignedInValue atomic.Bool
	Token         string
	Err           error
	Refreshes     atomic.Int32
}

// SignedIn implements session.Authenticator.
func (a *StaticAuth) SignedIn() bool { return a.SignedInValue.Load() }

// Refresh implements session.Authenticator.
func (a *StaticAuth) Refresh(ctx context.Context, force bool) (string, error) {
	a.Refreshes.Add(1)
	if a.Err != nil {
		return "", a.Err
	}
	return a.Token, nil
}

// NewEnv builds an Env over svc backed by a file store in a temp dir. The
// principal is signed in and holds a fresh token.
func NewEnv(t *testing.T, svc service.Service) (*app.Env, *StaticAuth) {
	t.Helper()

	store := kv.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	creds, err := session.NewCredentialStore(store, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("failed to create credential store: %v", err)
	}
	auth := &StaticAuth{Token: "test-token"}
	auth.SignedInValue.Store(true)

	tokens := session.NewTokenManager(auth, creds, session.NewBackoffLedger(store, nil))
	if err := tokens.SignIn("test-token"); err != nil {
		t.Fatalf("failed to sign in: %v", err)
	}

	return &app.Env{
		Store:   store,
		Tokens:  tokens,
		Service: svc,
		Sync:    progress.NewSynchronizer(svc, nil),
		Logger:  logging.Discard(),
	}, auth
}
