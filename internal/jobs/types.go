package jobs

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Stage string

const (
	StagePending       Stage = "pending"
	StageUploading     Stage = "uploading"
	StagePreprocessing Stage = "preprocessing"
	StageTraining      Stage = "training"
	StageValidation    Stage = "validation"
	StageFinalizing    Stage = "finalizing"
	StageCompleted     Stage = "completed"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{
	StageUploading,
	StagePreprocessing,
	StageTraining,
	StageValidation,
	StageFinalizing,
}

// Progress is the percentage reported once a job enters s.
func (s Stage) Progress() int {
	switch s {
	case StageUploading:
		return 10
	case StagePreprocessing:
		return 25
	case StageTraining:
		return 50
	case StageValidation:
		return 80
	case StageFinalizing:
		return 95
	case StageCompleted:
		return 100
	default:
		return 0
	}
}

// Budget is the p95 wall time a stage should stay under for about 30 s of
// input on one worker. Validation includes the preview synthesis.
func (s Stage) Budget() time.Duration {
	switch s {
	case StageUploading:
		return 2 * time.Second
	case StagePreprocessing:
		return 1500 * time.Millisecond
	case StageTraining:
		return time.Second
	case StageValidation:
		return 15 * time.Second
	case StageFinalizing:
		return 500 * time.Millisecond
	default:
		return 0
	}
}

type Quality struct {
	Score           float64  `json:"score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// Recording is one uploaded take. Audio holds container bytes until the
// recordings are assembled and is never serialized.
type Recording struct {
	ID              string  `json:"id"`
	DurationSeconds float64 `json:"duration_seconds"`
	Quality         Quality `json:"quality"`
	Audio           []byte  `json:"-"`
}

type Result struct {
	VoiceID      string  `json:"voice_id"`
	SampleURL    string  `json:"sample_url,omitempty"`
	QualityScore float64 `json:"quality_score"`
}

type Job struct {
	ID                   string      `json:"id"`
	OwnerID              string      `json:"owner_id"`
	Name                 string      `json:"name"`
	Status               Status      `json:"status"`
	Stage                Stage       `json:"stage"`
	Progress             int         `json:"progress"`
	EstimatedTimeSeconds float64     `json:"estimated_time_seconds"`
	StartTime            *time.Time  `json:"start_time,omitempty"`
	CompletedTime        *time.Time  `json:"completed_time,omitempty"`
	Error                string      `json:"error,omitempty"`
	ErrorCode            ErrorCode   `json:"error_code,omitempty"`
	ErrorDetail          string      `json:"error_detail,omitempty"`
	Result               *Result     `json:"result,omitempty"`
	Recordings           []Recording `json:"recordings"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// Clone returns a deep copy without recording audio.
func (j Job) Clone() Job {
	out := j
	if j.Recordings != nil {
		out.Recordings = make([]Recording, len(j.Recordings))
		for i, r := range j.Recordings {
			r.Audio = nil
			r.Quality.Issues = append([]string(nil), r.Quality.Issues...)
			r.Quality.Recommendations = append([]string(nil), r.Quality.Recommendations...)
			out.Recordings[i] = r
		}
	}
	if j.Result != nil {
		res := *j.Result
		out.Result = &res
	}
	if j.StartTime != nil {
		ts := *j.StartTime
		out.StartTime = &ts
	}
	if j.CompletedTime != nil {
		ts := *j.CompletedTime
		out.CompletedTime = &ts
	}
	return out
}

func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

type SubmitRequest struct {
	Name       string      `json:"name"`
	OwnerID    string      `json:"owner_id"`
	Recordings []Recording `json:"recordings"`
}

type QueueStatus struct {
	QueueLength  int            `json:"queue_length"`
	IsProcessing bool           `json:"is_processing"`
	CurrentJobID string         `json:"current_job_id,omitempty"`
	TotalJobs    int            `json:"total_jobs"`
	JobsByStatus map[Status]int `json:"jobs_by_status"`
}

type EventType string

const (
	EventJobCreated   EventType = "job_created"
	EventJobStage     EventType = "job_stage"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
	EventJobCancelled EventType = "job_cancelled"
	EventJobRetried   EventType = "job_retried"
)

type Event struct {
	Type           EventType `json:"type"`
	JobID          string    `json:"job_id"`
	OwnerID        string    `json:"owner_id"`
	Status         Status    `json:"status"`
	Stage          Stage     `json:"stage"`
	Progress       int       `json:"progress"`
	QueuedPosition int       `json:"queued_position,omitempty"`
	Code           ErrorCode `json:"code,omitempty"`
	Error          string    `json:"error,omitempty"`
	Result         *Result   `json:"result,omitempty"`
	At             time.Time `json:"at"`
}

// Work carries one job's data between pipeline stages. Each stage reads what
// earlier stages left behind.
type Work struct {
	JobID      string
	OwnerID    string
	Name       string
	Recordings []Recording
	// Light selects high-pass only conditioning for raw single-file prompts.
	Light bool

	Buffers    [][]byte
	Prompt     []byte
	ProfileID  string
	PromptPath string
	SampleURL  string
}

// TotalDuration sums the recording durations.
func (w *Work) TotalDuration() float64 {
	var total float64
	for _, r := range w.Recordings {
		total += r.DurationSeconds
	}
	return total
}

// releaseAudio drops the working copies once the prompt is assembled. The
// job itself keeps the uploads until it completes so a failure can be retried.
func (w *Work) releaseAudio() {
	for i := range w.Recordings {
		w.Recordings[i].Audio = nil
	}
	w.Buffers = nil
}

// Pipeline executes job stages. RunStage is called once per stage in order;
// Fail is called once when a stage returns an error.
type Pipeline interface {
	RunStage(ctx context.Context, stage Stage, w *Work) error
	Fail(ctx context.Context, w *Work, err error)
}
