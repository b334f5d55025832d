package jobs

import (
	"context"
	"errors"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

var (
	ErrJobNotFound     = errors.New("voice job not found")
	ErrInvalidJobState = errors.New("invalid voice job state")
)

type ErrorCode string

const (
	CodeSynthesisService  ErrorCode = "synthesis_service"
	CodeAudioQuality      ErrorCode = "audio_quality"
	CodeConfiguration     ErrorCode = "configuration"
	CodeQuotaExhausted    ErrorCode = "quota_exhausted"
	CodeInvalidContainer  ErrorCode = "invalid_container"
	CodeNoValidRecordings ErrorCode = "no_valid_recordings"
	CodeConversion        ErrorCode = "conversion"
	CodeInterrupted       ErrorCode = "interrupted"
	CodeCancelled         ErrorCode = "cancelled"
	CodeUnclassified      ErrorCode = "unclassified"
)

// CancelledMessage is the error recorded on jobs cancelled while pending.
const CancelledMessage = "cancelled by user"

var userMessages = map[ErrorCode]string{
	CodeSynthesisService:  "The voice synthesis service is unavailable right now. Please try again later.",
	CodeAudioQuality:      "The recordings were not clear enough to clone this voice. Please record again somewhere quieter.",
	CodeConfiguration:     "Voice cloning is not configured correctly on the server. Please contact support.",
	CodeQuotaExhausted:    "Voice cloning credits are exhausted. Check your plan or try again later.",
	CodeInvalidContainer:  "One or more recordings could not be read as audio. Upload WAV, MP3, OGG or WEBM files.",
	CodeNoValidRecordings: "No recording was long enough. Each recording must be at least 3 seconds.",
	CodeConversion:        "The recordings could not be converted to a common format.",
	CodeInterrupted:       "Voice creation was interrupted. Please retry.",
	CodeCancelled:         CancelledMessage,
	CodeUnclassified:      "Voice creation failed. Please try again.",
}

// Message returns the user-facing text for code.
func (c ErrorCode) Message() string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CodeUnclassified]
}

// Classify maps a pipeline failure to a code and user-facing message using
// the error's type, never its text.
func Classify(err error) (ErrorCode, string) {
	code := classify(err)
	return code, code.Message()
}

func classify(err error) ErrorCode {
	if err == nil {
		return CodeUnclassified
	}
	var se *synthesis.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case synthesis.KindService:
			return CodeSynthesisService
		case synthesis.KindAudioQuality:
			return CodeAudioQuality
		case synthesis.KindConfiguration:
			return CodeConfiguration
		case synthesis.KindQuotaExhausted:
			return CodeQuotaExhausted
		}
		return CodeUnclassified
	}
	switch {
	case errors.Is(err, audio.ErrNoValidRecordings):
		return CodeNoValidRecordings
	case errors.Is(err, audio.ErrInvalidContainer):
		return CodeInvalidContainer
	case errors.Is(err, audio.ErrConversion):
		return CodeConversion
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeInterrupted
	default:
		return CodeUnclassified
	}
}
