package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

func cfgWithProviders(providers ...config.Provider) *config.RuntimeConfig {
	return &config.RuntimeConfig{Providers: providers}
}

func TestSelector_PicksOnlyMatchingEnabledProvider(t *testing.T) {
	s := New(NewEjector())

	cfg := cfgWithProviders(
		config.Provider{Key: "a", Enabled: false, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "x"}}},
		config.Provider{Key: "b", Enabled: true, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "y"}}},
	)

	c, err := s.Select(cfg, "claude-test")
	require.NoError(t, err)
	assert.Equal(t, "b", c.Provider.Key)
	assert.Equal(t, "y", c.Mapping.Mapped)
}

func TestSelector_NoMatchReturnsError(t *testing.T) {
	s := New(NewEjector())
	cfg := cfgWithProviders(config.Provider{Key: "a", Enabled: true, Models: []config.ModelMapping{{Pattern: "gpt", Mapped: "x"}}})

	_, err := s.Select(cfg, "claude-test")
	assert.Error(t, err)
}

func TestSelector_EjectedProviderExcluded(t *testing.T) {
	ejector := NewEjector()
	ejector.RecordFailure("a", 0)
	ejector.RecordFailure("a", 0)
	ejector.RecordFailure("a", 0)

	s := New(ejector)
	cfg := cfgWithProviders(
		config.Provider{Key: "a", Enabled: true, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "x"}}},
		config.Provider{Key: "b", Enabled: true, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "y"}}},
	)

	c, err := s.Select(cfg, "claude-test")
	require.NoError(t, err)
	assert.Equal(t, "b", c.Provider.Key)
}

func TestSelector_AllEjectedReturnsError(t *testing.T) {
	ejector := NewEjector()
	ejector.RecordFailure("a", 0)
	ejector.RecordFailure("a", 0)
	ejector.RecordFailure("a", 0)

	s := New(ejector)
	cfg := cfgWithProviders(config.Provider{Key: "a", Enabled: true, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "x"}}})

	_, err := s.Select(cfg, "claude-test")
	assert.Error(t, err)
}

func TestSelector_WeightedSelectionOnlyReturnsKnownKeys(t *testing.T) {
	s := New(NewEjector())
	cfg := cfgWithProviders(
		config.Provider{Key: "a", Enabled: true, Weight: 10, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "x"}}},
		config.Provider{Key: "b", Enabled: true, Weight: 1, Models: []config.ModelMapping{{Pattern: "claude*", Mapped: "y"}}},
	)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := s.Select(cfg, "claude-test")
		require.NoError(t, err)
		seen[c.Provider.Key] = true
	}

	for k := range seen {
		assert.Contains(t, []string{"a", "b"}, k)
	}
}
