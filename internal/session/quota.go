package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ProviderError is an identity-provider failure carrying a provider code
// such as "auth/quota-exceeded".
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Provider codes recognised as quota/availability failures.
var quotaCodes = []string{
	"quota-exceeded",
	"currently-unavailable",
}

// OAuth error codes recognised as quota/availability failures.
var oauthQuotaCodes = []string{
	"temporarily_unavailable",
	"slow_down",
}

// Google API error reasons recognised as quota failures.
var googleQuotaReasons = []string{
	"rateLimitExceeded",
	"userRateLimitExceeded",
	"quotaExceeded",
}

// IsQuotaError reports whether err is a provider quota or availability
// failure. The match is a fixed allow-list kept for compatibility with the
// identity provider's error vocabulary; nothing else in the module should
// sniff error strings.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		for _, c := range quotaCodes {
			if pe.Code == c || strings.HasSuffix(pe.Code, "/"+c) {
				return true
			}
		}
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		for _, c := range oauthQuotaCodes {
			if re.ErrorCode == c {
				return true
			}
		}
		if re.Response != nil && isQuotaStatus(re.Response.StatusCode) {
			return true
		}
	}

	var ge *googleapi.Error
	if errors.As(err, &ge) {
		if isQuotaStatus(ge.Code) {
			return true
		}
		for _, item := range ge.Errors {
			for _, r := range googleQuotaReasons {
				if item.Reason == r {
					return true
				}
			}
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "unavailable")
}

func isQuotaStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}
