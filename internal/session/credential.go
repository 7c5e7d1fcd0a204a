// Package session owns the bearer credential: where it is kept, when it is
// considered fresh, and when the identity provider may be asked for a new one.
package session

import (
	"fmt"
	"sync"
	"time"

	"prepsync/internal/kv"
	"prepsync/internal/logging"
)

// Durable store keys.
const (
	KeyToken     = "auth.token"
	KeyIssuedAt  = "auth.issued_at"
	KeyExpiresAt = "auth.expires_at"
)

const (
	// StaleFraction is the share of the lifetime after which a token is stale.
	StaleFraction = 0.75

	// ExpiringSoonWindow is how close to expiry a token counts as expiring soon.
	ExpiringSoonWindow = 5 * time.Minute
)

// Token is a bearer credential with its freshness metadata.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Lifetime returns ExpiresAt - IssuedAt.
func (t Token) Lifetime() time.Duration { return t.ExpiresAt.Sub(t.IssuedAt) }

// Expired reports whether now is at or past ExpiresAt.
func (t Token) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// Stale reports whether the token's age is at least StaleFraction of its lifetime.
func (t Token) Stale(now time.Time) bool {
	return float64(now.Sub(t.IssuedAt)) >= StaleFraction*float64(t.Lifetime())
}

// ExpiringSoon reports whether fewer than ExpiringSoonWindow remain.
func (t Token) ExpiringSoon(now time.Time) bool {
	return t.ExpiresAt.Sub(now) < ExpiringSoonWindow
}

// Status summarises the held credential.
type Status struct {
	HasToken         bool
	IsStale          bool
	IsExpiringSoon   bool
	AgeMinutes       int
	ExpiresInMinutes int
}

// CredentialStore holds a single bearer token and mirrors it into a durable
// store. One instance is shared by every consumer in the process.
type CredentialStore struct {
	mu       sync.RWMutex
	store    kv.Store
	lifetime time.Duration
	now      func() time.Time
	logger   *logging.Logger
	token    *Token
}

// NewCredentialStore rehydrates the credential from store. A rehydrated
// token that has already expired is dropped. now may be nil.
func NewCredentialStore(store kv.Store, lifetime time.Duration, now func() time.Time, logger *logging.Logger) (*CredentialStore, error) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	c := &CredentialStore{
		store:    store,
		lifetime: lifetime,
		now:      now,
		logger:   logger,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the in-memory token with what the durable store holds.
func (c *CredentialStore) Reload() error {
	tok, err := c.readDurable()
	if err != nil {
		return err
	}
	if tok != nil && tok.Expired(c.now()) {
		c.logger.Debugf("dropping expired rehydrated token (expired %s)", tok.ExpiresAt.Format(time.RFC3339))
		if err := c.store.Delete(KeyToken, KeyIssuedAt, KeyExpiresAt); err != nil {
			return fmt.Errorf("clear expired token: %w", err)
		}
		tok = nil
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return nil
}

func (c *CredentialStore) readDurable() (*Token, error) {
	value, ok, err := c.store.Get(KeyToken)
	if err != nil || !ok || value == "" {
		return nil, err
	}
	issued, err := c.readTime(KeyIssuedAt)
	if err != nil {
		return nil, err
	}
	expires, err := c.readTime(KeyExpiresAt)
	if err != nil {
		return nil, err
	}
	if issued.IsZero() || expires.IsZero() {
		// Metadata missing: treat the token as unusable.
		return nil, nil
	}
	return &Token{Value: value, IssuedAt: issued, ExpiresAt: expires}, nil
}

func (c *CredentialStore) readTime(key string) (time.Time, error) {
	s, ok, err := c.store.Get(key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		c.logger.Warnf("ignoring malformed %s: %v", key, err)
		return time.Time{}, nil
	}
	return t, nil
}

// Set stores value as the current token, issued now. An empty value clears
// the token and all of its metadata.
func (c *CredentialStore) Set(value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value == "" {
		c.token = nil
		return c.store.Delete(KeyToken, KeyIssuedAt, KeyExpiresAt)
	}

	issued := c.now()
	tok := &Token{Value: value, IssuedAt: issued, ExpiresAt: issued.Add(c.lifetime)}
	c.token = tok
	return c.store.Put(map[string]string{
		KeyToken:     tok.Value,
		KeyIssuedAt:  tok.IssuedAt.Format(time.RFC3339Nano),
		KeyExpiresAt: tok.ExpiresAt.Format(time.RFC3339Nano),
	})
}

// Clear is Set("").
func (c *CredentialStore) Clear() error { return c.Set("") }

// Get returns the token, or nil if none is held or it has expired.
// An expired token is not removed; a nil result means "must refresh".
func (c *CredentialStore) Get() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil || c.token.Expired(c.now()) {
		return nil
	}
	t := *c.token
	return &t
}

// Last returns the held token even if it has expired.
func (c *CredentialStore) Last() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// Status reports the freshness of the usable token.
func (c *CredentialStore) Status() Status {
	tok := c.Get()
	if tok == nil {
		return Status{}
	}
	now := c.now()
	return Status{
		HasToken:         true,
		IsStale:          tok.Stale(now),
		IsExpiringSoon:   tok.ExpiringSoon(now),
		AgeMinutes:       int(now.Sub(tok.IssuedAt) / time.Minute),
		ExpiresInMinutes: int(tok.ExpiresAt.Sub(now) / time.Minute),
	}
}
