// Package config implements the dynamic configuration plane: a
// YAML-backed, hot-reloadable snapshot of providers and credentials
// published through an atomic.Value cell so request handling never
// blocks on a config write.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ModelMapping maps a request-model pattern to the model descriptor the
// provider should actually receive. Pattern may be an exact string, a
// simple glob ("*"), or a regular expression (detected by pattern.go).
type ModelMapping struct {
	Pattern        string         `yaml:"pattern"`
	Mapped         string         `yaml:"mapped"`
	ParamOverrides map[string]any `yaml:"params,omitempty"`
}

// Provider is one configured upstream backend.
type Provider struct {
	Key     string         `yaml:"key"`
	Type    string         `yaml:"type"` // "openai" | "anthropic" | "response_api" | "gcp_vertex"
	APIBase string         `yaml:"api_base"`
	APIKey  string         `yaml:"api_key"`
	Models  []ModelMapping `yaml:"models"`
	Weight  int            `yaml:"weight"`
	Enabled bool           `yaml:"enabled"`

	// AnthropicVersion and AnthropicBeta apply only to Type == "anthropic" | "gcp_vertex".
	AnthropicVersion string   `yaml:"anthropic_version,omitempty"`
	AnthropicBeta    string   `yaml:"anthropic_beta,omitempty"`
	BetaPolicy       string   `yaml:"beta_policy,omitempty"` // "drop" | "passthrough" | "allowlist"
	BetaAllowlist    []string `yaml:"beta_allowlist,omitempty"` // only consulted when BetaPolicy == "allowlist"

	// GCPProjectID/GCPRegion are used by the gcp_vertex URL builder.
	GCPProjectID string `yaml:"gcp_project_id,omitempty"`
	GCPRegion    string `yaml:"gcp_region,omitempty"`
}

// Credential is one client-facing API key, stored hashed.
type Credential struct {
	KeyHash       string   `yaml:"key_hash"`
	RPS           float64  `yaml:"rps"`
	AllowedModels []string `yaml:"allowed_models"` // patterns; empty means all allowed
	Label         string   `yaml:"label,omitempty"`
}

// HashKey returns the at-rest form of a plaintext credential.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// RuntimeConfig is the immutable snapshot handlers observe.
type RuntimeConfig struct {
	Host        string       `yaml:"host"`
	Port        int          `yaml:"port"`
	Providers   []Provider   `yaml:"providers"`
	Credentials []Credential `yaml:"credentials"`
	Version     int64        `yaml:"-"`
	LoadedAt    time.Time    `yaml:"-"`
}

// IsModelAllowed reports whether model satisfies any of the credential's
// allow-list patterns (empty list means unrestricted).
func (c Credential) IsModelAllowed(model string) bool {
	if len(c.AllowedModels) == 0 {
		return true
	}
	for _, pattern := range c.AllowedModels {
		if MatchModelPattern(pattern, model) {
			return true
		}
	}
	return false
}

// Manager owns the on-disk file, the published snapshot, and the
// reload-notification fan-out used to trigger rate-limiter reconciliation.
type Manager struct {
	path     string
	current  atomic.Value // *RuntimeConfig
	logger   *slog.Logger
	watchers []chan *RuntimeConfig
	version  int64
}

// NewManager constructs a Manager rooted at baseDir/config.yaml.
func NewManager(baseDir string) *Manager {
	return &Manager{
		path:   filepath.Join(baseDir, "config.yaml"),
		logger: slog.Default(),
	}
}

// GetPath returns the on-disk config path.
func (m *Manager) GetPath() string { return m.path }

// Exists reports whether the config file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Get returns the currently published snapshot, or nil if none has
// been loaded yet.
func (m *Manager) Get() *RuntimeConfig {
	v := m.current.Load()
	if v == nil {
		return nil
	}
	return v.(*RuntimeConfig)
}

// Subscribe registers a channel that is notified of future published
// snapshots. The channel buffers one snapshot; a publish replaces a
// snapshot the subscriber has not yet read, so a slow reader sees only
// the latest one. The channel is never closed; callers select on it for
// the life of the process.
func (m *Manager) Subscribe() <-chan *RuntimeConfig {
	ch := make(chan *RuntimeConfig, 1)
	m.watchers = append(m.watchers, ch)
	return ch
}

// Load reads config.yaml, applies CCO_API_KEY/env overrides, and
// publishes the result as the active snapshot.
func (m *Manager) Load() (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{Host: "127.0.0.1", Port: 8787}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", m.path, err)
		}
		// No file: fall through to env-only bootstrap.
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", m.path, err)
	}

	applyEnvOverrides(cfg)
	m.publish(cfg)

	return cfg, nil
}

func (m *Manager) publish(cfg *RuntimeConfig) {
	m.version++
	cfg.Version = m.version
	cfg.LoadedAt = time.Now()

	m.current.Store(cfg)

	for _, ch := range m.watchers {
		select {
		case ch <- cfg:
		default:
			// Slow subscriber: drop the stale pending notification, not the new one.
			select {
			case <-ch:
			default:
			}
			ch <- cfg
		}
	}

	m.logger.Info("configuration published",
		"version", cfg.Version,
		"providers", len(cfg.Providers),
		"credentials", len(cfg.Credentials))
}

// Save writes cfg back to disk as YAML.
func (m *Manager) Save(cfg *RuntimeConfig) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	return os.WriteFile(m.path, data, 0o600)
}

// Watch starts an fsnotify watch on the config file and reloads +
// republishes on every write, until the returned stop func is called.
func (m *Manager) Watch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: fsnotify: %w", err)
	}

	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch dir: %w", err)
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(m.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if _, err := m.Load(); err != nil {
					m.logger.Error("config reload failed", "error", err)
				} else {
					m.logger.Info("config reloaded from file change")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Error("config watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

// applyEnvOverrides adds a single credential to cfg from CCO_API_KEY and
// overrides the listen host from CCO_HOST. No provider is added, so a
// proxy with zero on-disk configuration has nothing to route to.
func applyEnvOverrides(cfg *RuntimeConfig) {
	if key := os.Getenv("CCO_API_KEY"); key != "" {
		hash := HashKey(key)
		found := false
		for i := range cfg.Credentials {
			if cfg.Credentials[i].KeyHash == hash {
				found = true
				break
			}
		}
		if !found {
			cfg.Credentials = append(cfg.Credentials, Credential{
				KeyHash: hash,
				RPS:     10.0,
				Label:   "env:CCO_API_KEY",
			})
		}
	}

	if host := os.Getenv("CCO_HOST"); host != "" {
		cfg.Host = host
	}
}
