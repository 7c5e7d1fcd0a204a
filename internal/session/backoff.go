package session

import (
	"encoding/json"
	"sync"
	"time"

	"prepsync/internal/kv"
	"prepsync/internal/logging"
)

// KeyBackoff is the durable store key for the ledger state.
const KeyBackoff = "auth.backoff"

const (
	// FlatCooldown is the minimum spacing between refreshes.
	FlatCooldown = 30 * time.Second

	// MaxCooldown caps the exponential schedule.
	MaxCooldown = 5 * time.Minute

	// ExponentialThreshold is the failure count at which the exponential
	// schedule replaces the flat cooldown.
	ExponentialThreshold = 3
)

// BackoffState is the persisted ledger state.
type BackoffState struct {
	HasRecentFailure bool      `json:"hasRecentFailure"`
	FailureCount     int       `json:"failureCount"`
	LastFailureAt    time.Time `json:"lastFailureAt"`
	LastRefreshAt    time.Time `json:"lastRefreshAt"`
	UserNotified     bool      `json:"userNotified"`
}

// CooldownFor returns the cooldown that applies after failureCount
// consecutive failures.
func CooldownFor(failureCount int) time.Duration {
	if failureCount < ExponentialThreshold {
		return FlatCooldown
	}
	shift := failureCount - 2
	if shift > 10 {
		return MaxCooldown
	}
	d := FlatCooldown << shift
	if d > MaxCooldown {
		return MaxCooldown
	}
	return d
}

// BackoffLedger tracks consecutive provider quota failures.
// The state is mirrored into a durable store when one is given, so separate
// processes observe the same cooldown window.
type BackoffLedger struct {
	mu     sync.Mutex
	state  BackoffState
	store  kv.Store
	logger *logging.Logger
}

// NewBackoffLedger loads the ledger from store. store may be nil for an
// in-memory ledger.
func NewBackoffLedger(store kv.Store, logger *logging.Logger) *BackoffLedger {
	if logger == nil {
		logger = logging.Discard()
	}
	l := &BackoffLedger{store: store, logger: logger}
	l.Reload()
	return l
}

// Reload replaces the in-memory state with the durable copy. Unreadable or
// malformed state is logged and treated as empty.
func (l *BackoffLedger) Reload() {
	if l.store == nil {
		return
	}
	var st BackoffState
	raw, ok, err := l.store.Get(KeyBackoff)
	if err != nil {
		l.logger.Warnf("failed to read backoff state: %v", err)
		return
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			l.logger.Warnf("ignoring malformed backoff state: %v", err)
			st = BackoffState{}
		}
	}
	l.mu.Lock()
	l.state = st
	l.mu.Unlock()
}

// State returns a copy of the current state.
func (l *BackoffLedger) State() BackoffState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RecordFailure counts a quota/availability failure at now.
func (l *BackoffLedger) RecordFailure(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.FailureCount++
	l.state.HasRecentFailure = true
	l.state.LastFailureAt = now
	l.persist()
}

// RecordSuccess resets the failure streak after a successful refresh.
func (l *BackoffLedger) RecordSuccess(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.FailureCount = 0
	l.state.HasRecentFailure = false
	l.state.UserNotified = false
	l.state.LastRefreshAt = now
	l.persist()
}

// MarkNotified flips the one-shot notification flag. It returns true only
// for the caller that flipped it; the flag is reset by RecordSuccess.
func (l *BackoffLedger) MarkNotified() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.UserNotified {
		return false
	}
	l.state.UserNotified = true
	l.persist()
	return true
}

// InCooldown reports whether a refresh should be held back at now.
func (l *BackoffLedger) InCooldown(now time.Time) bool {
	return l.CooldownRemaining(now) > 0
}

// CooldownRemaining returns how long until the cooldown ends, or zero.
func (l *BackoffLedger) CooldownRemaining(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	var end time.Time
	switch {
	case l.state.HasRecentFailure:
		end = l.state.LastFailureAt.Add(CooldownFor(l.state.FailureCount))
	case !l.state.LastRefreshAt.IsZero():
		end = l.state.LastRefreshAt.Add(FlatCooldown)
	default:
		return 0
	}
	if rem := end.Sub(now); rem > 0 {
		return rem
	}
	return 0
}

// InQuotaBackoff reports whether the exponential schedule is active and
// has not yet elapsed. Forced refreshes honour only this window.
func (l *BackoffLedger) InQuotaBackoff(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.FailureCount < ExponentialThreshold {
		return false
	}
	return now.Before(l.state.LastFailureAt.Add(CooldownFor(l.state.FailureCount)))
}

// persist must be called with l.mu held.
func (l *BackoffLedger) persist() {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(l.state)
	if err != nil {
		l.logger.Warnf("failed to encode backoff state: %v", err)
		return
	}
	if err := l.store.Put(map[string]string{KeyBackoff: string(data)}); err != nil {
		l.logger.Warnf("failed to persist backoff state: %v", err)
	}
}
