package synthesis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/voiceclone/internal/audio"
)

func TestNewSubprocessRequiresCommand(t *testing.T) {
	_, err := NewSubprocess("  ", 0)
	if KindOf(err) != KindConfiguration {
		t.Fatalf("NewSubprocess(empty) kind = %q, want configuration", KindOf(err))
	}
	_, err = NewSubprocess("definitely-not-a-real-synth-binary", 0)
	if KindOf(err) != KindConfiguration {
		t.Fatalf("NewSubprocess(missing) kind = %q, want configuration", KindOf(err))
	}
}

func TestMockSynthesize(t *testing.T) {
	m := NewMock()
	res, err := m.Synthesize(context.Background(), "/prompts/a.wav", "hello there", Options{})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	f, err := audio.Parse(res.Audio)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.SampleRate != 24000 || res.DurationSeconds < 0.5 {
		t.Fatalf("result = %+v format = %+v", res, f)
	}
	if calls := m.Calls(); len(calls) != 1 || calls[0] != "/prompts/a.wav" {
		t.Fatalf("Calls() = %v", calls)
	}

	m.Err = &Error{Kind: KindQuotaExhausted}
	if _, err := m.Synthesize(context.Background(), "p", "t", Options{}); KindOf(err) != KindQuotaExhausted {
		t.Fatalf("Synthesize() error = %v, want quota", err)
	}
}

func TestMockHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMock().Synthesize(ctx, "p", "t", Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Synthesize() error = %v, want canceled", err)
	}
}

// newScriptedSynth writes body as a shell script and wraps it in a Subprocess.
func newScriptedSynth(t *testing.T, body string, timeout time.Duration) (*Subprocess, string) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "synth.sh")
	script := "#!/bin/sh\n" + strings.ReplaceAll(body, "$DIR", dir) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	s, err := NewSubprocess(path, timeout)
	if err != nil {
		t.Fatalf("NewSubprocess() error = %v", err)
	}
	return s, dir
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	samples := make([]float64, 12000)
	for i := range samples {
		samples[i] = 0.2 * math.Sin(2*math.Pi*440*float64(i)/24000)
	}
	buf, err := audio.Generate(samples, 24000, 1, 16)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return buf
}

func TestSubprocessSynthesize(t *testing.T) {
	wav := testWAV(t)
	reply := fmt.Sprintf(`{"ok":true,"audio_base64":"%s"}`, base64.StdEncoding.EncodeToString(wav))
	s, dir := newScriptedSynth(t, `cat > "$DIR/request.json"
printf '%s\n' '`+reply+`'`, 0)

	res, err := s.Synthesize(context.Background(), "/voices/v1/prompt.wav", "  hello there  ", Options{Language: "en", Speed: 1.1, SampleRate: 24000})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(res.Audio) != len(wav) || res.SampleRate != 24000 || math.Abs(res.DurationSeconds-0.5) > 0.001 {
		t.Fatalf("Synthesize() = rate %d dur %.3f len %d", res.SampleRate, res.DurationSeconds, len(res.Audio))
	}

	raw, err := os.ReadFile(filepath.Join(dir, "request.json"))
	if err != nil {
		t.Fatalf("request not written: %v", err)
	}
	var req subprocessRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("request is not JSON: %v (%q)", err, raw)
	}
	want := subprocessRequest{PromptPath: "/voices/v1/prompt.wav", Text: "hello there", Language: "en", Speed: 1.1, SampleRate: 24000}
	if req != want {
		t.Fatalf("request = %+v, want %+v", req, want)
	}
}

func TestSubprocessSynthesizeFailures(t *testing.T) {
	cases := []struct {
		name       string
		script     string
		wantKind   Kind
		wantDetail string
	}{
		{
			name:       "error reply",
			script:     `cat >/dev/null; echo '{"ok":false,"error":"prompt audio too noisy"}'`,
			wantKind:   KindAudioQuality,
			wantDetail: "too noisy",
		},
		{
			name:       "error reply with non-zero exit",
			script:     `cat >/dev/null; echo '{"ok":false,"error":"quota exceeded for this account"}'; exit 1`,
			wantKind:   KindQuotaExhausted,
			wantDetail: "quota exceeded",
		},
		{
			name:       "stderr tail",
			script:     `cat >/dev/null; echo 'loading model' >&2; echo 'CUDA out of memory' >&2; exit 3`,
			wantKind:   KindService,
			wantDetail: "CUDA out of memory",
		},
		{
			name:       "silent exit",
			script:     `cat >/dev/null; exit 1`,
			wantKind:   KindUnclassified,
			wantDetail: "exit status 1",
		},
		{
			name:       "malformed reply",
			script:     `cat >/dev/null; echo 'not json'`,
			wantKind:   KindService,
			wantDetail: "malformed",
		},
		{
			name:       "bad base64",
			script:     `cat >/dev/null; echo '{"ok":true,"audio_base64":"***"}'`,
			wantKind:   KindService,
			wantDetail: "audio_base64",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newScriptedSynth(t, tc.script, 0)
			_, err := s.Synthesize(context.Background(), "p.wav", "hello", Options{})
			if err == nil {
				t.Fatalf("Synthesize() error = nil, want %s", tc.wantKind)
			}
			if KindOf(err) != tc.wantKind {
				t.Fatalf("Synthesize() kind = %q, want %q (err %v)", KindOf(err), tc.wantKind, err)
			}
			if !strings.Contains(err.Error(), tc.wantDetail) {
				t.Fatalf("Synthesize() error = %q, want it to mention %q", err, tc.wantDetail)
			}
		})
	}
}

func TestSubprocessTimeoutIsServiceError(t *testing.T) {
	s, _ := newScriptedSynth(t, `exec sleep 5`, 100*time.Millisecond)
	start := time.Now()
	_, err := s.Synthesize(context.Background(), "p.wav", "hello", Options{})
	if KindOf(err) != KindService {
		t.Fatalf("Synthesize() error = %v, want synthesis_service", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Synthesize() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Fatalf("Synthesize() took %v after timeout", elapsed)
	}
}

func TestSubprocessHonoursCancel(t *testing.T) {
	s, _ := newScriptedSynth(t, `exec sleep 5`, 0)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	if _, err := s.Synthesize(ctx, "p.wav", "hello", Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Synthesize() error = %v, want canceled", err)
	}
}

func TestSubprocessRejectsUnencodableRequest(t *testing.T) {
	s, dir := newScriptedSynth(t, `touch "$DIR/ran"; cat >/dev/null; echo '{"ok":true}'`, 0)
	_, err := s.Synthesize(context.Background(), "p.wav", "hello", Options{Speed: math.NaN()})
	if KindOf(err) != KindUnclassified || err == nil {
		t.Fatalf("Synthesize(NaN speed) error = %v, want unclassified", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "ran")); statErr == nil {
		t.Fatalf("synthesizer ran with an unencodable request")
	}
	if _, err := s.Synthesize(context.Background(), "p.wav", "   ", Options{}); err == nil {
		t.Fatalf("Synthesize(blank text) should fail")
	}
}
