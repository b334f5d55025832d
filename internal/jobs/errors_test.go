package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"service", &synthesis.Error{Kind: synthesis.KindService}, CodeSynthesisService},
		{"quality", fmt.Errorf("stage: %w", &synthesis.Error{Kind: synthesis.KindAudioQuality}), CodeAudioQuality},
		{"configuration", &synthesis.Error{Kind: synthesis.KindConfiguration}, CodeConfiguration},
		{"quota", &synthesis.Error{Kind: synthesis.KindQuotaExhausted}, CodeQuotaExhausted},
		{"synthesis timeout", &synthesis.Error{Kind: synthesis.KindService, Err: context.DeadlineExceeded}, CodeSynthesisService},
		{"unknown kind", &synthesis.Error{Kind: synthesis.KindUnclassified}, CodeUnclassified},
		{"container", fmt.Errorf("decode: %w", audio.ErrInvalidContainer), CodeInvalidContainer},
		{"no recordings", audio.ErrNoValidRecordings, CodeNoValidRecordings},
		{"conversion", audio.ErrConversion, CodeConversion},
		{"cancelled", context.Canceled, CodeInterrupted},
		{"plain", errors.New("quota exceeded"), CodeUnclassified},
		{"nil", nil, CodeUnclassified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg := Classify(tc.err)
			if code != tc.want {
				t.Fatalf("Classify() code = %q, want %q", code, tc.want)
			}
			if msg == "" || msg != tc.want.Message() {
				t.Fatalf("Classify() message = %q", msg)
			}
		})
	}
}

func TestMessageFallsBackToUnclassified(t *testing.T) {
	if got := ErrorCode("bogus").Message(); got != CodeUnclassified.Message() {
		t.Fatalf("Message() = %q, want unclassified text", got)
	}
	if CodeCancelled.Message() != "cancelled by user" {
		t.Fatalf("cancelled message = %q", CodeCancelled.Message())
	}
}
