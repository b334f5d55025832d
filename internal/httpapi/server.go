package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/voiceclone/internal/config"
	"github.com/ent0n29/voiceclone/internal/jobs"
	"github.com/ent0n29/voiceclone/internal/observability"
	"github.com/ent0n29/voiceclone/internal/prompt"
)

type Server struct {
	cfg      config.Config
	jobs     *jobs.Manager
	voices   *prompt.Service
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	// storeMode describes job persistence for health output.
	storeMode string
}

func New(cfg config.Config, manager *jobs.Manager, voices *prompt.Service, metrics *observability.Metrics) *Server {
	storeMode := "in-memory"
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		storeMode = "postgres"
	}
	return &Server{
		cfg:       cfg,
		jobs:      manager,
		voices:    voices,
		metrics:   metrics,
		storeMode: storeMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may subscribe unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/voices", s.handleCreateVoice)
	r.Post("/v1/voices/quick", s.handleCreateQuickVoice)
	r.Get("/v1/voices", s.handleListVoices)
	r.Get("/v1/voices/{id}", s.handleGetVoice)
	r.Delete("/v1/voices/{id}", s.handleDeleteVoice)
	r.Post("/v1/voices/{id}/synthesize", s.handleSynthesize)

	r.Get("/v1/voice-jobs", s.handleListJobs)
	r.Get("/v1/voice-jobs/queue", s.handleQueueStatus)
	r.Get("/v1/voice-jobs/stats", s.handleJobStats)
	r.Get("/v1/voice-jobs/ws", s.handleJobsWS)
	r.Get("/v1/voice-jobs/{id}", s.handleGetJob)
	r.Get("/v1/voice-jobs/{id}/events", s.handleListJobEvents)
	r.Post("/v1/voice-jobs/{id}/cancel", s.handleCancelJob)
	r.Post("/v1/voice-jobs/{id}/retry", s.handleRetryJob)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"job_store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.jobs == nil || s.voices == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "voice pipeline is not configured")
		return
	}
	qs := s.jobs.QueueStatus()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"job_store_mode": s.storeMode,
		"queue_length":   qs.QueueLength,
		"is_processing":  qs.IsProcessing,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// limitParam parses the "limit" query parameter, clamping it to max.
func limitParam(r *http.Request, fallback, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}
