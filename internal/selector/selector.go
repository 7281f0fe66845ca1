// Package selector implements the Provider Selector: weighted-random
// choice among enabled providers that support the requested model,
// with advisory ejection on upstream failure bursts.
package selector

import (
	"fmt"
	"math/rand/v2"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

// Selector chooses a provider for each request and tracks ejection state.
type Selector struct {
	ejector *Ejector
}

// New constructs a Selector backed by ejector (see ejection.go).
func New(ejector *Ejector) *Selector {
	return &Selector{ejector: ejector}
}

// Candidate is one provider eligible for selection, with its resolved
// model mapping already attached.
type Candidate struct {
	Provider config.Provider
	Mapping  config.ModelMapping
}

// Select picks one provider from cfg that is enabled, not ejected, and
// supports model, weighted by Provider.Weight. Ties (equal weight) break
// uniformly at random. Returns an error if no candidate qualifies.
func (s *Selector) Select(cfg *config.RuntimeConfig, model string) (Candidate, error) {
	var candidates []Candidate
	totalWeight := 0

	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		if s.ejector.IsEjected(p.Key) {
			continue
		}

		mapping, ok := p.ResolveModel(model)
		if !ok {
			continue
		}

		weight := p.Weight
		if weight <= 0 {
			weight = 1
		}

		candidates = append(candidates, Candidate{Provider: p, Mapping: mapping})
		totalWeight += weight
	}

	if len(candidates) == 0 {
		return Candidate{}, fmt.Errorf("selector: no enabled, non-ejected provider supports model %q", model)
	}

	pick := rand.IntN(totalWeight)
	cumulative := 0
	for _, c := range candidates {
		weight := c.Provider.Weight
		if weight <= 0 {
			weight = 1
		}
		cumulative += weight
		if pick < cumulative {
			return c, nil
		}
	}

	return candidates[len(candidates)-1], nil
}
