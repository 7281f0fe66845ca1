package selector

import (
	"net/http"
	"sync"
	"time"
)

const (
	defaultCooldown   = 30 * time.Second
	maxCooldown       = 5 * time.Minute
	burstThreshold    = 3
	burstWindow       = 1 * time.Minute
)

type ejectionState struct {
	failures   []time.Time
	ejectedUntil time.Time
}

// Ejector tracks advisory, cooldown-bounded ejection per provider key.
// Ejection is never permanent: every entry expires on its own, so a
// transiently-unhealthy provider always comes back into rotation.
type Ejector struct {
	mu    sync.Mutex
	state map[string]*ejectionState
}

// NewEjector constructs an empty Ejector.
func NewEjector() *Ejector {
	return &Ejector{state: make(map[string]*ejectionState)}
}

// IsEjected reports whether providerKey is currently in its cooldown window.
func (e *Ejector) IsEjected(providerKey string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.state[providerKey]
	if !ok {
		return false
	}

	return time.Now().Before(st.ejectedUntil)
}

// RecordFailure registers one upstream failure for providerKey. A burst
// of burstThreshold-or-more failures within burstWindow ejects the
// provider for a cooldown that honors retryAfter when the upstream
// supplied one (e.g. a 429's Retry-After), else the default cooldown,
// capped at maxCooldown.
func (e *Ejector) RecordFailure(providerKey string, retryAfter time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	st, ok := e.state[providerKey]
	if !ok {
		st = &ejectionState{}
		e.state[providerKey] = st
	}

	cutoff := now.Add(-burstWindow)
	kept := st.failures[:0]
	for _, t := range st.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	st.failures = append(kept, now)

	if len(st.failures) < burstThreshold {
		return
	}

	cooldown := defaultCooldown
	if retryAfter > 0 {
		cooldown = retryAfter
	}
	if cooldown > maxCooldown {
		cooldown = maxCooldown
	}

	st.ejectedUntil = now.Add(cooldown)
}

// RecordSuccess clears providerKey's failure history, so transient
// errors that stop recurring don't eventually trip the burst threshold.
func (e *Ejector) RecordSuccess(providerKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.state, providerKey)
}

// RetryAfterFromHeader parses a Retry-After response header, returning 0
// if absent or unparseable (the caller then falls back to the default
// cooldown).
func RetryAfterFromHeader(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}

	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}

	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}

	return 0
}
