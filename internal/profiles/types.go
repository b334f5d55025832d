package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("voice profile not found")
	ErrInvalidTransition = errors.New("invalid voice profile transition")
)

type Status string

const (
	StatusTraining Status = "training"
	StatusReady    Status = "ready"
	StatusError    Status = "error"
)

// Profile is a cloned voice. It references the stored prompt rather than
// holding audio.
type Profile struct {
	ID                        string    `json:"id" msgpack:"id"`
	OwnerID                   string    `json:"owner_id" msgpack:"owner_id"`
	Name                      string    `json:"name" msgpack:"name"`
	Status                    Status    `json:"status" msgpack:"status"`
	PromptPath                string    `json:"prompt_path,omitempty" msgpack:"prompt_path"`
	SampleURL                 string    `json:"sample_url,omitempty" msgpack:"sample_url"`
	TrainingProgress          int       `json:"training_progress" msgpack:"training_progress"`
	TotalInputDurationSeconds float64   `json:"total_input_duration_seconds" msgpack:"total_input_duration_seconds"`
	QualityScore              float64   `json:"quality_score" msgpack:"quality_score"`
	Error                     string    `json:"error,omitempty" msgpack:"error"`
	CreatedAt                 time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Transition moves p to status. Only training profiles may change status.
func (p Profile) Transition(to Status, now time.Time) (Profile, error) {
	if p.Status == to {
		return p, nil
	}
	if p.Status != StatusTraining || (to != StatusReady && to != StatusError) {
		return p, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	if to == StatusReady {
		p.TrainingProgress = 100
	}
	p.UpdatedAt = now
	return p, nil
}

// Store persists voice profiles.
type Store interface {
	Save(ctx context.Context, p Profile) error
	Get(ctx context.Context, id string) (Profile, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Profile, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
