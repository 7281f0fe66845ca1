// Package auth implements the Credential & Rate-Limit Gate: bearer/API
// key authentication against hashed credentials, and a per-credential
// token-bucket rate limiter reconciled on every config reload.
package auth

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

// Gate authenticates inbound requests and enforces per-credential rate
// limits. It owns no copy of plaintext credentials: only the SHA-256
// hash ever crosses its boundary.
type Gate struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// New constructs an empty Gate; call Reconcile once a RuntimeConfig is
// available, and again on every subsequent reload.
func New() *Gate {
	return &Gate{limiters: make(map[string]*rate.Limiter)}
}

// ExtractKey pulls the bearer token from either an `Authorization:
// Bearer <token>` or an `x-api-key: <token>` header.
func ExtractKey(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token, true
		}
	}

	if key := r.Header.Get("x-api-key"); key != "" {
		return key, true
	}

	return "", false
}

// Authenticate looks up the credential matching plaintext key's hash.
func Authenticate(cfg *config.RuntimeConfig, plaintextKey string) (config.Credential, bool) {
	hash := config.HashKey(plaintextKey)
	for _, c := range cfg.Credentials {
		if c.KeyHash == hash {
			return c, true
		}
	}
	return config.Credential{}, false
}

// Reconcile performs a full diff of cfg.Credentials against the
// currently tracked limiters: new credentials get a fresh bucket,
// credentials whose rps changed get their limit updated in place (bursts
// already earned are preserved), and removed credentials are dropped.
// burst is fixed at 2x the configured rps.
func (g *Gate) Reconcile(cfg *config.RuntimeConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[string]bool, len(cfg.Credentials))

	for _, c := range cfg.Credentials {
		seen[c.KeyHash] = true

		limit := rate.Limit(c.RPS)
		burst := int(c.RPS * 2)
		if burst < 1 {
			burst = 1
		}

		if lim, ok := g.limiters[c.KeyHash]; ok {
			lim.SetLimit(limit)
			lim.SetBurst(burst)
			continue
		}

		g.limiters[c.KeyHash] = rate.NewLimiter(limit, burst)
	}

	for hash := range g.limiters {
		if !seen[hash] {
			delete(g.limiters, hash)
		}
	}
}

// Allow reports whether credential keyHash may proceed right now,
// consuming one token if so.
func (g *Gate) Allow(keyHash string) bool {
	g.mu.RLock()
	lim, ok := g.limiters[keyHash]
	g.mu.RUnlock()

	if !ok {
		return false
	}

	return lim.Allow()
}
