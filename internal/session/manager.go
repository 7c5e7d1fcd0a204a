package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"prepsync/internal/logging"
)

// ErrNotSignedIn is returned by an Authenticator that has no principal.
var ErrNotSignedIn = errors.New("not signed in")

var errEmptyRefresh = errors.New("refresh returned no token")

// QuotaMessage is the notification shown once per cooldown window.
const QuotaMessage = "sign-in service is busy; using your current session for now"

// Authenticator is the identity-provider collaborator.
type Authenticator interface {
	// SignedIn reports whether there is an authenticated principal.
	SignedIn() bool

	// Refresh obtains a new bearer token value from the provider.
	Refresh(ctx context.Context, forceRefresh bool) (string, error)
}

// Notifier surfaces user-visible messages.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// TokenManager decides on every request whether the cached token is used
// as-is or refreshed first.
type TokenManager struct {
	auth     Authenticator
	creds    *CredentialStore
	ledger   *BackoffLedger
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
	group    singleflight.Group
}

// ManagerOption configures a TokenManager.
type ManagerOption func(*TokenManager)

// WithNotifier sets the notifier for quota messages.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *TokenManager) { m.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *TokenManager) { m.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a TokenManager over the shared store and ledger.
func NewTokenManager(auth Authenticator, creds *CredentialStore, ledger *BackoffLedger, opts ...ManagerOption) *TokenManager {
	m := &TokenManager{
		auth:     auth,
		creds:    creds,
		ledger:   ledger,
		notifier: NotifierFunc(func(string) {}),
		logger:   logging.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Credentials returns the underlying credential store.
func (m *TokenManager) Credentials() *CredentialStore { return m.creds }

// Ledger returns the underlying backoff ledger.
func (m *TokenManager) Ledger() *BackoffLedger { return m.ledger }

// SignedIn reports whether the authenticator has a principal.
func (m *TokenManager) SignedIn() bool {
	return m.auth != nil && m.auth.SignedIn()
}

// SignIn stores a freshly issued token.
func (m *TokenManager) SignIn(value string) error {
	if err := m.creds.Set(value); err != nil {
		return err
	}
	m.ledger.RecordSuccess(m.now())
	return nil
}

// SignOut clears the token.
func (m *TokenManager) SignOut() error {
	return m.creds.Clear()
}

// GetToken returns a bearer token value, refreshing first when the cached
// one is stale, expiring, missing, or forceRefresh is set. It never fails
// hard: when a refresh fails, the last cached token (even expired) is
// returned. ok is false only when no token is available at all.
func (m *TokenManager) GetToken(ctx context.Context, forceRefresh bool) (string, bool) {
	if !m.SignedIn() {
		return "", false
	}

	now := m.now()
	cached := m.creds.Get()
	needsRefresh := cached == nil || cached.Stale(now) || cached.ExpiringSoon(now)

	shouldRefresh := forceRefresh || (!m.ledger.InCooldown(now) && needsRefresh)
	if !shouldRefresh {
		if cached == nil {
			m.logger.Debugf("token refresh held back for %s", m.ledger.CooldownRemaining(now).Round(time.Second))
			return m.fallback()
		}
		return cached.Value, true
	}

	if forceRefresh && m.ledger.InQuotaBackoff(now) {
		m.logger.Debugf("forced refresh skipped: quota backoff for %s", m.ledger.CooldownRemaining(now).Round(time.Second))
		return m.fallback()
	}

	v, err, shared := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, forceRefresh)
	})
	if shared {
		m.logger.Debugf("token refresh shared between callers")
	}
	if err != nil {
		return m.fallback()
	}
	return v.(string), true
}

// refresh performs one provider call and records its outcome. Callers
// coalesced by the singleflight group share the single result.
func (m *TokenManager) refresh(ctx context.Context, forceRefresh bool) (string, error) {
	value, err := m.auth.Refresh(ctx, forceRefresh)
	if err != nil {
		m.handleRefreshError(err)
		return "", err
	}
	if value == "" {
		m.logger.Warnf("token refresh returned no token")
		return "", errEmptyRefresh
	}
	if err := m.creds.Set(value); err != nil {
		m.logger.Warnf("failed to persist refreshed token: %v", err)
	}
	m.ledger.RecordSuccess(m.now())
	m.logger.Debugf("token refreshed")
	return value, nil
}

func (m *TokenManager) handleRefreshError(err error) {
	if !IsQuotaError(err) {
		m.logger.Warnf("token refresh failed: %v", err)
		return
	}
	now := m.now()
	m.ledger.RecordFailure(now)
	m.logger.Warnf("token refresh hit provider quota (failure %d, cooldown %s): %v",
		m.ledger.State().FailureCount, m.ledger.CooldownRemaining(now).Round(time.Second), err)
	if m.ledger.MarkNotified() {
		m.notifier.Notify(QuotaMessage)
	}
}

func (m *TokenManager) fallback() (string, bool) {
	if t := m.creds.Last(); t != nil {
		return t.Value, true
	}
	return "", false
}
