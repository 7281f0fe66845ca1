package config

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// MatchModelPattern reports whether model satisfies pattern, where
// pattern is an exact string, a single-"*"-wildcard glob, or (when
// wrapped in "/.../") a regular expression evaluated with regexp2 so
// that patterns authored against PCRE-style engines behave the same way
// here as they did wherever the config was hand-written.
func MatchModelPattern(pattern, model string) bool {
	if pattern == model {
		return true
	}

	if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) >= 2 {
		re, err := regexp2.Compile(pattern[1:len(pattern)-1], regexp2.None)
		if err != nil {
			return false
		}
		matched, err := re.MatchString(model)
		return err == nil && matched
	}

	if strings.Contains(pattern, "*") {
		return globMatch(pattern, model)
	}

	return false
}

// globMatch implements the single-"*"-per-segment glob spec models use:
// at most one "*" acts as a wildcard for any run of characters.
func globMatch(pattern, s string) bool {
	idx := strings.Index(pattern, "*")
	if idx < 0 {
		return pattern == s
	}

	prefix, suffix := pattern[:idx], pattern[idx+1:]

	return strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) && len(s) >= len(prefix)+len(suffix)
}

// ResolveModel finds the best Models mapping for model on a Provider:
// an exact pattern match wins outright; otherwise the first-registered
// pattern (glob or regex) that matches and has the longest literal
// pattern text wins, matching the "first-registered longest match"
// priority rule.
func (p Provider) ResolveModel(model string) (ModelMapping, bool) {
	var (
		best      ModelMapping
		bestFound bool
		bestLen   = -1
	)

	for _, mapping := range p.Models {
		if mapping.Pattern == model {
			return mapping, true
		}

		if MatchModelPattern(mapping.Pattern, model) {
			if len(mapping.Pattern) > bestLen {
				best, bestFound, bestLen = mapping, true, len(mapping.Pattern)
			}
		}
	}

	return best, bestFound
}
