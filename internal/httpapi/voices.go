package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/jobs"
	"github.com/ent0n29/voiceclone/internal/profiles"
	"github.com/ent0n29/voiceclone/internal/prompt"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

const (
	maxUploadBytes     = 64 << 20
	maxRecordings      = 10
	maxSynthesisRunes  = 2000
	recordingFormField = "recordings"
)

type createVoiceResponse struct {
	JobID                string      `json:"job_id"`
	Status               jobs.Status `json:"status"`
	EstimatedTimeSeconds float64     `json:"estimated_time_seconds"`
	Recordings           int         `json:"recordings"`
}

type synthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// handleCreateVoice accepts a multipart upload of several recordings and
// queues a voice job for them.
func (s *Server) handleCreateVoice(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	ownerID := strings.TrimSpace(form.Value.get("owner_id"))
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}

	headers := form.File[recordingFormField]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "at least one recording is required")
		return
	}
	if len(headers) > maxRecordings {
		respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("at most %d recordings are accepted", maxRecordings))
		return
	}

	var meta []prompt.RecordingMeta
	if raw := strings.TrimSpace(form.Value.get("metadata")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "metadata must be a JSON array: "+err.Error())
			return
		}
	}

	uploads := make([]prompt.Upload, 0, len(headers))
	for i, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		up := prompt.Upload{Data: data}
		if i < len(meta) {
			m := meta[i]
			up.Meta = &m
		}
		uploads = append(uploads, up)
	}

	recordings, err := s.voices.PrepareRecordings(r.Context(), uploads)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	job, err := s.jobs.Submit(jobs.SubmitRequest{
		Name:       form.Value.get("name"),
		OwnerID:    ownerID,
		Recordings: recordings,
	})
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, createVoiceResponse{
		JobID:                job.ID,
		Status:               job.Status,
		EstimatedTimeSeconds: job.EstimatedTimeSeconds,
		Recordings:           len(job.Recordings),
	})
}

// handleCreateQuickVoice builds a voice from a single recording while the
// client waits.
func (s *Server) handleCreateQuickVoice(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	ownerID := strings.TrimSpace(form.Value.get("owner_id"))
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}
	headers := form.File["recording"]
	if len(headers) != 1 {
		respondError(w, http.StatusBadRequest, "invalid_request", "exactly one recording is required")
		return
	}
	data, err := readPart(headers[0])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id, err := s.voices.CreatePromptFromSingleFile(r.Context(), data, form.Value.get("name"), ownerID)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	p, err := s.voices.GetVoice(r.Context(), id)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "owner_id query param is required")
		return
	}
	limit, err := limitParam(r, 50, 200)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	list, err := s.voices.ListVoices(r.Context(), ownerID, limit)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	if list == nil {
		list = []profiles.Profile{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"voices":   list,
	})
}

func (s *Server) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	p, err := s.voices.GetVoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.voices.DeleteVoice(r.Context(), id); err != nil {
		respondPipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if len([]rune(req.Text)) > maxSynthesisRunes {
		respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("text must be at most %d characters", maxSynthesisRunes))
		return
	}

	res, err := s.voices.Synthesize(r.Context(), chi.URLParam(r, "id"), req.Text, synthesis.Options{
		Language: strings.TrimSpace(req.Language),
		Speed:    req.Speed,
	})
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-Audio-Duration-Seconds", strconv.FormatFloat(res.DurationSeconds, 'f', 3, 64))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

type formValues map[string][]string

func (v formValues) get(key string) string {
	if vals := v[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

type uploadForm struct {
	Value formValues
	File  map[string][]*multipart.FileHeader
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (uploadForm, bool) {
	if s.voices == nil || s.jobs == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice pipeline not configured")
		return uploadForm{}, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit")
			return uploadForm{}, false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "expected a multipart/form-data upload: "+err.Error())
		return uploadForm{}, false
	}
	return uploadForm{Value: formValues(r.MultipartForm.Value), File: r.MultipartForm.File}, true
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}

// respondPipelineError maps voice pipeline failures to HTTP responses.
func respondPipelineError(w http.ResponseWriter, err error) {
	var se *synthesis.Error
	switch {
	case errors.Is(err, profiles.ErrNotFound):
		respondError(w, http.StatusNotFound, "voice_not_found", err.Error())
	case errors.Is(err, prompt.ErrProfileNotReady):
		respondError(w, http.StatusConflict, "voice_not_ready", err.Error())
	case errors.Is(err, audio.ErrInvalidContainer):
		respondError(w, http.StatusBadRequest, string(jobs.CodeInvalidContainer), jobs.CodeInvalidContainer.Message())
	case errors.Is(err, audio.ErrNoValidRecordings):
		respondError(w, http.StatusUnprocessableEntity, string(jobs.CodeNoValidRecordings), jobs.CodeNoValidRecordings.Message())
	case errors.As(err, &se):
		code, msg := jobs.Classify(err)
		status := http.StatusBadGateway
		if code == jobs.CodeQuotaExhausted {
			status = http.StatusTooManyRequests
		}
		respondError(w, status, string(code), msg)
	default:
		code, msg := jobs.Classify(err)
		if code == jobs.CodeUnclassified {
			msg = err.Error()
		}
		respondError(w, http.StatusInternalServerError, string(code), msg)
	}
}
