package prompt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ent0n29/voiceclone/internal/audio"
)

// Decoder turns an uploaded recording in any container into RIFF/WAVE bytes.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]byte, error)
}

// FFmpegDecoder pipes non-WAV uploads through ffmpeg. RIFF input is returned
// untouched so the pipeline sees the original sample format.
type FFmpegDecoder struct {
	Path string
}

// NewFFmpegDecoder resolves cli on PATH. An empty cli means "ffmpeg".
func NewFFmpegDecoder(cli string) (*FFmpegDecoder, error) {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "ffmpeg"
	}
	path, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("decoder %q not found: %w", cli, err)
	}
	return &FFmpegDecoder{Path: path}, nil
}

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", audio.ErrInvalidContainer)
	}
	if audio.IsContainer(data) {
		return data, nil
	}
	if d == nil || d.Path == "" {
		return nil, fmt.Errorf("%w: no decoder configured for non-WAV input", audio.ErrInvalidContainer)
	}

	cmd := exec.CommandContext(ctx, d.Path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "wav", "-acodec", "pcm_s16le",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 2<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(2<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %s", audio.ErrInvalidContainer, detail)
	}

	out := stdout.Bytes()
	if _, err := audio.Parse(out); err != nil {
		if errors.Is(err, audio.ErrInvalidContainer) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", audio.ErrInvalidContainer, err)
	}
	return out, nil
}

// PassthroughDecoder accepts only RIFF/WAVE input.
type PassthroughDecoder struct{}

func (PassthroughDecoder) Decode(_ context.Context, data []byte) ([]byte, error) {
	if !audio.IsContainer(data) {
		return nil, fmt.Errorf("%w: expected a WAV upload", audio.ErrInvalidContainer)
	}
	return data, nil
}
