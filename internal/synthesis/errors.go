package synthesis

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindService        Kind = "synthesis_service"
	KindAudioQuality   Kind = "audio_quality"
	KindConfiguration  Kind = "configuration"
	KindQuotaExhausted Kind = "quota_exhausted"
	KindUnclassified   Kind = "unclassified"
)

// Error is the tagged failure returned across the synthesizer boundary.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		return "synthesis: " + string(e.Kind)
	}
	return "synthesis: " + detail
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with the kind derived from its message. Errors that already
// carry a kind are returned unchanged.
func Wrap(err error, detail string) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	msg := strings.TrimSpace(detail)
	if msg == "" {
		msg = err.Error()
	}
	return &Error{Kind: ClassifyMessage(msg), Detail: msg, Err: err}
}

// KindOf returns the kind carried by err, or KindUnclassified.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) && se.Kind != "" {
		return se.Kind
	}
	return KindUnclassified
}

// ClassifyMessage maps free-form failure text from the external process to a
// kind. It is only used where the process gives nothing better than text.
func ClassifyMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "quota", "credit", "rate limit", "insufficient balance", "billing"):
		return KindQuotaExhausted
	case containsAny(m, "not configured", "api key", "executable file not found", "no such file", "permission denied", "missing model", "invalid configuration"):
		return KindConfiguration
	case containsAny(m, "audio quality", "too short", "too noisy", "no speech", "invalid audio", "unsupported audio", "prompt audio"):
		return KindAudioQuality
	case containsAny(m, "synthesis", "tts", "connection refused", "unavailable", "timed out", "timeout", "out of memory", "cuda"):
		return KindService
	default:
		return KindUnclassified
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
