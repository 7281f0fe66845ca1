package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mihaisavezi/claude-code-open/internal/config"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	logger *slog.Logger
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// AdminHandler serves read-only operational probes. It carries no write
// surface: config mutation happens by editing the YAML file on disk and
// letting the fsnotify watcher pick it up, not through this API.
type AdminHandler struct {
	config *config.Manager
	logger *slog.Logger
}

func NewAdminHandler(cfgMgr *config.Manager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{config: cfgMgr, logger: logger}
}

type versionResponse struct {
	Version     int64  `json:"version"`
	LoadedAt    string `json:"loaded_at"`
	Providers   int    `json:"providers"`
	Credentials int    `json:"credentials"`
}

// ServeVersion reports the currently published RuntimeConfig's version and
// load time, so operators can confirm a reload actually took effect.
func (h *AdminHandler) ServeVersion(w http.ResponseWriter, _ *http.Request) {
	cfg := h.config.Get()
	if cfg == nil {
		http.Error(w, "configuration not loaded", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versionResponse{
		Version:     cfg.Version,
		LoadedAt:    cfg.LoadedAt.Format("2006-01-02T15:04:05Z07:00"),
		Providers:   len(cfg.Providers),
		Credentials: len(cfg.Credentials),
	})
}
