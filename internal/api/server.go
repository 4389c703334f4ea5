package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uebaguard/internal/config"
	"uebaguard/internal/detector"
	"uebaguard/internal/metrics"
	"uebaguard/internal/storage"
	"uebaguard/internal/validate"
)

type Server struct {
	cfg       *config.Manager
	det       *detector.Detector
	store     storage.Store
	validator *validate.RecordValidator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	version   string
}

func Start(ctx context.Context, cfg *config.Manager, det *detector.Detector, store storage.Store, validator *validate.RecordValidator, m *metrics.Metrics, logger *slog.Logger, version string) *http.Server {
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
	server := &Server{
		cfg:       cfg,
		det:       det,
		store:     store,
		validator: validator,
		metrics:   m,
		logger:    logger,
		version:   version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", server.handleIngest)
	mux.HandleFunc("/scan", server.handleScan)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/logs", server.handleLogs)
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

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

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "empty or oversized body"})
		return
	}
	rec, err := s.validator.Parse(body)
	if err != nil {
		s.metrics.IncRejected()
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := s.det.Ingest(r.Context(), rec); err != nil {
		if s.logger != nil {
			s.logger.Error("ingest failed", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ingested"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window := 0
	if v := r.URL.Query().Get("window_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "window_minutes must be a positive integer"})
			return
		}
		window = n
	}
	alerts, err := s.det.Scan(r.Context(), window)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("scan failed", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts_count": len(alerts),
		"alerts":       alerts,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	alerts, err := s.store.ReadAlerts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	logs, err := s.store.ReadActivities(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"time":        time.Now().UTC().Format(time.RFC3339Nano),
		"version":     s.version,
		"config_path": s.cfg.Path(),
		"storage":     cfg.Storage.Driver,
		"detection": map[string]any{
			"window_minutes":          cfg.Detection.WindowMinutes,
			"rate_spike_per_minute":   cfg.Detection.RateSpikePerMinute,
			"error_rate_threshold":    cfg.Detection.ErrorRateThreshold,
			"payload_size_bytes":      cfg.Detection.PayloadSizeBytes,
			"anomaly_score_threshold": cfg.Detection.AnomalyScoreThreshold,
		},
		"ingest": map[string]any{
			"kafka": cfg.Ingest.Kafka.Enabled,
			"nats":  cfg.Ingest.NATS.Enabled,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
