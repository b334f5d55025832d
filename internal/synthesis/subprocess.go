package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voiceclone/internal/audio"
)

// Subprocess runs an external synthesizer once per request. The command reads
// one JSON request on stdin and writes one JSON reply on stdout.
type Subprocess struct {
	path    string
	args    []string
	timeout time.Duration
}

type subprocessRequest struct {
	PromptPath string  `json:"prompt_path"`
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

type subprocessResponse struct {
	OK              bool    `json:"ok"`
	AudioBase64     string  `json:"audio_base64"`
	SampleRate      int     `json:"sample_rate"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error"`
}

// NewSubprocess resolves command (a program followed by its arguments) on PATH.
func NewSubprocess(command string, timeout time.Duration) (*Subprocess, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, &Error{Kind: KindConfiguration, Detail: "SYNTH_COMMAND is not configured"}
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Detail: fmt.Sprintf("synthesizer %q not found", fields[0]), Err: err}
	}
	return &Subprocess{path: path, args: fields[1:], timeout: timeout}, nil
}

func (s *Subprocess) Synthesize(ctx context.Context, promptPath, text string, opts Options) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, &Error{Kind: KindUnclassified, Detail: "text is required"}
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := json.Marshal(subprocessRequest{
		PromptPath: promptPath,
		Text:       text,
		Language:   opts.Language,
		Speed:      opts.Speed,
		SampleRate: opts.SampleRate,
	})
	if err != nil {
		return Result{}, &Error{Kind: KindUnclassified, Detail: "encode synthesizer request", Err: err}
	}
	cmd := exec.CommandContext(ctx, s.path, s.args...)
	cmd.WaitDelay = 2 * time.Second
	cmd.Stdin = bytes.NewReader(append(req, '\n'))
	var stdout bytes.Buffer
	stderr := newTailBuffer(8 << 10)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, context.Canceled
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, &Error{Kind: KindService, Detail: "synthesizer timed out", Err: ctx.Err()}
		}
		if msg := replyError(stdout.Bytes()); msg != "" {
			return Result{}, &Error{Kind: ClassifyMessage(msg), Detail: msg, Err: err}
		}
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return Result{}, Wrap(err, detail)
	}

	var resp subprocessResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return Result{}, &Error{Kind: KindService, Detail: "synthesizer returned malformed output", Err: err}
	}
	if !resp.OK {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown synthesizer error"
		}
		return Result{}, &Error{Kind: ClassifyMessage(msg), Detail: msg}
	}
	wav, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return Result{}, &Error{Kind: KindService, Detail: "decode audio_base64", Err: err}
	}

	out := Result{Audio: wav, SampleRate: resp.SampleRate, DurationSeconds: resp.DurationSeconds}
	if f, err := audio.Parse(wav); err == nil {
		out.SampleRate = f.SampleRate
		out.DurationSeconds = f.Duration()
	}
	return out, nil
}

// replyError returns the error field of a reply written before a non-zero
// exit, or "" when stdout holds no such reply.
func replyError(stdout []byte) string {
	var resp subprocessResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &resp); err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Error)
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
