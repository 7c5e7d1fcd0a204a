// Package app assembles the session and progress stack for one CLI invocation.
package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"prepsync/internal/backend/prepapi"
	"prepsync/internal/config"
	"prepsync/internal/kv"
	"prepsync/internal/logging"
	"prepsync/internal/progress"
	"prepsync/internal/service"
	"prepsync/internal/session"
	"prepsync/internal/transport"
)

// Env is the stack handed to commands.
type Env struct {
	Store  kv.Store
	Tokens *session.TokenManager

	// OAuth is nil when oauth_client.json is missing.
	OAuth *session.OAuthAuthenticator

	Service service.Service
	Sync    *progress.Synchronizer
	Logger  *logging.Logger
}

// Close detaches the synchronizer and closes the durable store.
func (e *Env) Close() error {
	if e.Sync != nil {
		e.Sync.Close()
	}
	if e.Store != nil {
		return e.Store.Close()
	}
	return nil
}

// Options tune Build.
type Options struct {
	Logger     *logging.Logger
	Notifier   session.Notifier
	HTTPClient *http.Client
	Now        func() time.Time
}

// Build wires the durable store, credential store, backoff ledger, token
// manager, request executor, API client and synchronizer from cfg.
func Build(cfg *config.Config, opts Options) (*Env, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := kv.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	env, err := build(cfg, store, logger, now, opts)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return env, nil
}

func build(cfg *config.Config, store kv.Store, logger *logging.Logger, now func() time.Time, opts Options) (*Env, error) {
	creds, err := session.NewCredentialStore(store, cfg.TokenLifetime(), now, logger)
	if err != nil {
		return nil, err
	}
	ledger := session.NewBackoffLedger(store, logger)

	env := &Env{Store: store, Logger: logger}

	var auth session.Authenticator
	if cfg.HasOAuthClient() {
		conf, err := session.LoadOAuthConfig(cfg.OAuthClientPath())
		if err != nil {
			return nil, err
		}
		env.OAuth = session.NewOAuthAuthenticator(conf, store)
		auth = env.OAuth
	}

	mopts := []session.ManagerOption{session.WithLogger(logger), session.WithClock(now)}
	if opts.Notifier != nil {
		mopts = append(mopts, session.WithNotifier(opts.Notifier))
	}
	env.Tokens = session.NewTokenManager(auth, creds, ledger, mopts...)

	exec := transport.NewExecutor(opts.HTTPClient, env.Tokens, logger)
	client, err := prepapi.New(cfg.Settings.APIURL, exec, cfg.RequestTimeout(), logger)
	if err != nil {
		return nil, err
	}
	env.Service = client
	env.Sync = progress.NewSynchronizer(client, logger)
	return env, nil
}
