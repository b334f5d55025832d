package audio

import (
	"errors"
	"testing"
)

func TestAnalyzeCleanRecording(t *testing.T) {
	buf := mustGenerate(t, sine(220, 12, 16000, 1, 0.5), 16000, 1, 16)
	a, err := Analyze(buf)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if a.Score != 100 {
		t.Fatalf("Score = %v, want 100 (issues %v)", a.Score, a.Issues)
	}
	if len(a.Issues) != 0 {
		t.Fatalf("Issues = %v, want none", a.Issues)
	}
}

func TestAnalyzeShortQuietRecording(t *testing.T) {
	buf := mustGenerate(t, sine(220, 1, 8000, 1, 0.005), 8000, 1, 16)
	a, err := Analyze(buf)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	// short (-40), low level (-20), silent (-15), low rate (-10)
	if a.Score != 15 {
		t.Fatalf("Score = %v, want 15 (issues %v)", a.Score, a.Issues)
	}
	if len(a.Issues) != 4 {
		t.Fatalf("Issues = %v, want 4", a.Issues)
	}
}

func TestAnalyzeClipping(t *testing.T) {
	s := sine(220, 12, 16000, 1, 1.5)
	for i := range s {
		s[i] = clamp(s[i])
	}
	a, err := Analyze(mustGenerate(t, s, 16000, 1, 16))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if a.ClippingRatio <= 0.01 || a.Score != 75 {
		t.Fatalf("ClippingRatio = %v Score = %v, want clipping penalty", a.ClippingRatio, a.Score)
	}
}

func TestAnalyzeInvalid(t *testing.T) {
	if _, err := Analyze([]byte("not audio")); !errors.Is(err, ErrInvalidContainer) {
		t.Fatalf("Analyze() error = %v, want ErrInvalidContainer", err)
	}
}
