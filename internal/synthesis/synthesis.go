// Package synthesis talks to the external zero-shot speech synthesizer that
// consumes a voice prompt and text.
package synthesis

import "context"

// Options tunes a single synthesis request.
type Options struct {
	Language   string  `json:"language,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

// Result is a synthesized waveform in RIFF/WAVE form.
type Result struct {
	Audio           []byte  `json:"-"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Synthesizer renders text in the voice captured by the prompt at promptPath.
// Failures are returned as *Error so callers can classify them.
type Synthesizer interface {
	Synthesize(ctx context.Context, promptPath, text string, opts Options) (Result, error)
}
