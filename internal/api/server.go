package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"bleflow/internal/config"
	"bleflow/internal/stats"
)

// Server exposes pipeline status for operators. It carries no pipeline
// logic; everything it reports comes from the stats store and config.
type Server struct {
	cfg     *config.Manager
	stats   *stats.Store
	logger  *slog.Logger
	role    string
	version string
}

type statusResponse struct {
	Status     string `json:"status"`
	Role       string `json:"role"`
	Time       string `json:"time"`
	Version    string `json:"version"`
	ConfigPath string `json:"config_path"`
	UptimeSec  int64  `json:"uptime_sec"`
	BusDriver  string `json:"bus_driver"`
	BusTopic   string `json:"bus_topic"`
}

// Start runs the status server when enabled and returns it; the server
// shuts down gracefully on context cancellation.
func Start(ctx context.Context, cfg *config.Manager, st *stats.Store, logger *slog.Logger, role, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{cfg: cfg, stats: st, logger: logger, role: role, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/stats", server.handleStats)
	mux.HandleFunc("/healthz", server.handleHealthz)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	writeJSON(w, statusResponse{
		Status:     "ok",
		Role:       s.role,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		UptimeSec:  int64(time.Since(s.stats.Started()).Seconds()),
		BusDriver:  cfg.Bus.Driver,
		BusTopic:   cfg.Bus.Topic,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.stats.Snapshot())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
