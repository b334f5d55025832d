package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/voiceclone/internal/jobs"
	"github.com/ent0n29/voiceclone/internal/observability"
)

func (s *Server) jobsEnabled(w http.ResponseWriter) bool {
	if s.jobs == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice jobs are not configured")
		return false
	}
	return true
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondJobError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id query param is required")
		return
	}
	limit, err := limitParam(r, 20, 200)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	list := s.jobs.List(ownerID, limit)
	if list == nil {
		list = []jobs.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"jobs":     list,
	})
}

func (s *Server) handleListJobEvents(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	limit, err := limitParam(r, 100, 500)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	events, err := s.jobs.Events(jobID, limit)
	if err != nil {
		respondJobError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"events": events,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	jobID := strings.TrimSpace(chi.URLParam(r, "id"))
	if !s.jobs.Cancel(jobID) {
		if _, err := s.jobs.Get(jobID); err != nil {
			respondJobError(w, err)
			return
		}
		respondError(w, http.StatusConflict, "job_not_cancellable", "only pending jobs can be cancelled")
		return
	}
	job, err := s.jobs.Get(jobID)
	if err != nil {
		respondJobError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	job, err := s.jobs.Retry(chi.URLParam(r, "id"))
	if err != nil {
		respondJobError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	respondJSON(w, http.StatusOK, s.jobs.QueueStatus())
}

func (s *Server) handleJobStats(w http.ResponseWriter, _ *http.Request) {
	snapshot := observability.StageSnapshot{}
	if s.metrics != nil {
		snapshot = s.metrics.StageSnapshot()
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// handleJobsWS streams job events for one owner until the client goes away.
func (s *Server) handleJobsWS(w http.ResponseWriter, r *http.Request) {
	if !s.jobsEnabled(w) {
		return
	}
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "missing_owner_id", "query parameter owner_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.jobs.Subscribe(ownerID)
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(map[string]any{"type": "queue_status", "queue": s.jobs.QueueStatus()}); err != nil {
			cancel()
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			case evt, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(evt); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})
	// Clients never send anything meaningful; reading keeps pong and close
	// frames flowing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	cancel()
	<-writerDone
}

func respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, jobs.ErrInvalidJobState):
		respondError(w, http.StatusConflict, "invalid_job_state", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
