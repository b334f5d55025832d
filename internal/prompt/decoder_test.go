package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/ent0n29/voiceclone/internal/audio"
)

func TestFFmpegDecoderPassesWAVThrough(t *testing.T) {
	wav := toneWAV(t, 0.5, 16000, 1)
	d := &FFmpegDecoder{}
	got, err := d.Decode(context.Background(), wav)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if &got[0] != &wav[0] {
		t.Fatalf("Decode() copied a RIFF input")
	}
}

func TestFFmpegDecoderWithoutBinary(t *testing.T) {
	d := &FFmpegDecoder{}
	if _, err := d.Decode(context.Background(), []byte("ID3\x04mp3 bytes")); !errors.Is(err, audio.ErrInvalidContainer) {
		t.Fatalf("Decode(mp3) error = %v, want ErrInvalidContainer", err)
	}
	if _, err := d.Decode(context.Background(), nil); !errors.Is(err, audio.ErrInvalidContainer) {
		t.Fatalf("Decode(empty) error = %v, want ErrInvalidContainer", err)
	}
}

func TestNewFFmpegDecoderMissingBinary(t *testing.T) {
	if _, err := NewFFmpegDecoder("voiceclone-no-such-decoder"); err == nil {
		t.Fatalf("NewFFmpegDecoder() should fail for a missing binary")
	}
}
