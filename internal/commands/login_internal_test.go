package commands

import (
	"bytes"
	"testing"

	"golang.org/x/oauth2"

	"prepsync/internal/exitcode"
	"prepsync/internal/session"
	"prepsync/internal/testutil"
)

func TestStoreLogin_PrefersIDToken(t *testing.T) {
	env, _ := testutil.NewEnv(t, testutil.NewFakeService())
	env.OAuth = session.NewOAuthAuthenticator(&oauth2.Config{}, env.Store)

	tok := (&oauth2.Token{AccessToken: "access", RefreshToken: "rt-1"}).
		WithExtra(map[string]any{"id_token": "id-1"})

	var errOut bytes.Buffer
	if code := storeLogin(env, tok, &errOut); code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, errOut.String())
	}

	rt, ok, err := env.Store.Get(session.KeyRefreshToken)
	if err != nil || !ok || rt != "rt-1" {
		t.Errorf("expected stored refresh token rt-1, got %q (ok=%v, err=%v)", rt, ok, err)
	}
	if got := env.Tokens.Credentials().Get(); got == nil || got.Value != "id-1" {
		t.Errorf("expected id token to be cached, got %+v", got)
	}
}

func TestStoreLogin_NoRefreshToken(t *testing.T) {
	env, _ := testutil.NewEnv(t, testutil.NewFakeService())
	env.OAuth = session.NewOAuthAuthenticator(&oauth2.Config{}, env.Store)

	var errOut bytes.Buffer
	code := storeLogin(env, &oauth2.Token{AccessToken: "access"}, &errOut)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if _, ok, _ := env.Store.Get(session.KeyRefreshToken); ok {
		t.Error("no refresh token should be stored")
	}
}
