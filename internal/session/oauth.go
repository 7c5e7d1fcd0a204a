package session

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"prepsync/internal/kv"
)

// KeyRefreshToken holds the OAuth refresh token; its presence is what makes
// a principal signed in.
const KeyRefreshToken = "auth.refresh_token"

// Scopes requested at sign-in.
var Scopes = []string{"openid", "email", "profile"}

// LoadOAuthConfig reads a Google OAuth client file.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}
	conf, err := google.ConfigFromJSON(clientJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}
	return conf, nil
}

// BearerValue picks the credential the backend expects from an OAuth token:
// the ID token when the provider issued one, else the access token.
func BearerValue(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	if id, ok := tok.Extra("id_token").(string); ok && id != "" {
		return id
	}
	return tok.AccessToken
}

// OAuthAuthenticator refreshes bearer tokens with a stored OAuth refresh token.
type OAuthAuthenticator struct {
	conf  *oauth2.Config
	store kv.Store
}

// NewOAuthAuthenticator creates an authenticator over conf and store.
func NewOAuthAuthenticator(conf *oauth2.Config, store kv.Store) *OAuthAuthenticator {
	return &OAuthAuthenticator{conf: conf, store: store}
}

// Config returns the OAuth client configuration.
func (a *OAuthAuthenticator) Config() *oauth2.Config { return a.conf }

// SignedIn implements Authenticator.
func (a *OAuthAuthenticator) SignedIn() bool {
	rt, ok, err := a.store.Get(KeyRefreshToken)
	return err == nil && ok && rt != ""
}

// Refresh implements Authenticator. Every call exchanges the refresh token,
// so forceRefresh needs no special handling here.
func (a *OAuthAuthenticator) Refresh(ctx context.Context, forceRefresh bool) (string, error) {
	rt, ok, err := a.store.Get(KeyRefreshToken)
	if err != nil {
		return "", err
	}
	if !ok || rt == "" {
		return "", ErrNotSignedIn
	}

	tok, err := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return "", err
	}
	if tok.RefreshToken != "" && tok.RefreshToken != rt {
		if err := a.SaveRefreshToken(tok.RefreshToken); err != nil {
			return "", fmt.Errorf("failed to save rotated refresh token: %w", err)
		}
	}
	return BearerValue(tok), nil
}

// SaveRefreshToken records the principal's refresh token.
func (a *OAuthAuthenticator) SaveRefreshToken(rt string) error {
	return a.store.Put(map[string]string{KeyRefreshToken: rt})
}

// SignOut forgets the principal.
func (a *OAuthAuthenticator) SignOut() error {
	return a.store.Delete(KeyRefreshToken)
}
