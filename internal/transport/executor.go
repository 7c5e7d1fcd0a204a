// Package transport sends authenticated requests and recovers from an
// expired bearer token with one forced-refresh retry.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"prepsync/internal/logging"
)

// RequestIDHeader carries a per-attempt id.
const RequestIDHeader = "X-Request-ID"

// TokenSource yields bearer token values. ok is false when none is available.
type TokenSource interface {
	GetToken(ctx context.Context, forceRefresh bool) (string, bool)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context, forceRefresh bool) (string, bool)

func (f TokenFunc) GetToken(ctx context.Context, forceRefresh bool) (string, bool) {
	return f(ctx, forceRefresh)
}

// Executor attaches bearer tokens to outgoing requests.
type Executor struct {
	client *http.Client
	tokens TokenSource
	logger *logging.Logger
}

// NewExecutor creates an Executor. A nil client uses http.DefaultClient.
func NewExecutor(client *http.Client, tokens TokenSource, logger *logging.Logger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{client: client, tokens: tokens, logger: logger}
}

// Execute sends req with the current token. If the response is 401 it
// forces a token refresh and sends the request exactly once more, returning
// that second result whatever it is. Other statuses and transport errors
// are returned unmodified. When no token is available the request goes out
// without an Authorization header.
func (e *Executor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		if err := bufferBody(req); err != nil {
			return nil, err
		}
	}

	resp, err := e.attempt(ctx, req, false)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	e.logger.Debugf("%s %s: 401, retrying with refreshed token", req.Method, req.URL.Path)
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		retry.Body = body
	}
	return e.attempt(ctx, retry, true)
}

func (e *Executor) attempt(ctx context.Context, req *http.Request, forceRefresh bool) (*http.Response, error) {
	out := req.WithContext(ctx)
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}

	out.Header.Del("Authorization")
	if e.tokens != nil {
		if tok, ok := e.tokens.GetToken(ctx, forceRefresh); ok && tok != "" {
			out.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	out.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := e.client.Do(out)
	if err != nil {
		e.logger.Debugf("%s %s: %v", req.Method, req.URL.Path, err)
		return nil, err
	}
	e.logger.Debugf("%s %s: %d (%s)", req.Method, req.URL.Path, resp.StatusCode, out.Header.Get(RequestIDHeader))
	return resp, nil
}

func bufferBody(req *http.Request) error {
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}
