package synthesis

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/ent0n29/voiceclone/internal/audio"
)

// Mock renders a short tone per request. Err, when set, is returned instead.
type Mock struct {
	SampleRate int
	Err        error

	mu    sync.Mutex
	calls []string
}

func NewMock() *Mock {
	return &Mock{SampleRate: 24000}
}

func (m *Mock) Synthesize(ctx context.Context, promptPath, text string, _ Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, promptPath)
	err := m.Err
	m.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	rate := m.SampleRate
	if rate <= 0 {
		rate = 24000
	}
	// Roughly 60 ms per character, as a speech stand-in.
	seconds := math.Max(0.5, 0.06*float64(len(strings.TrimSpace(text))))
	frames := int(seconds * float64(rate))
	samples := make([]float64, frames)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(rate))
	}
	wav, err := audio.Generate(samples, rate, 1, 16)
	if err != nil {
		return Result{}, err
	}
	return Result{Audio: wav, SampleRate: rate, DurationSeconds: float64(frames) / float64(rate)}, nil
}

// Calls returns the prompt paths seen so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
