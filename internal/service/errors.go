package service

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingRecords signals that the server holds no progress records for a
// plan. It is a trigger for initialization, not a failure.
var ErrMissingRecords = errors.New("no progress records")

// APIError is a non-2xx response or a transport failure. Status is 0 when
// the server was never reached.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("network error: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("api error %d: %s", e.Status, http.StatusText(e.Status))
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or -1 if err is not an
// APIError.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return -1
}

// IsAuthError reports whether err is a 401 that survived the retry.
func IsAuthError(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// IsNetworkError reports whether err never reached the server.
func IsNetworkError(err error) bool { return StatusOf(err) == 0 }
