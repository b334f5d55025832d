package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	// HeaderSize is the size of the header written by Generate.
	HeaderSize = 44

	formatCodePCM        = 1
	formatCodeFloat      = 3
	formatCodeExtensible = 0xFFFE
)

// Encoding is the sample encoding declared by a container's format chunk.
type Encoding int

const (
	EncodingPCM   Encoding = formatCodePCM
	EncodingFloat Encoding = formatCodeFloat
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm"
	case EncodingFloat:
		return "float"
	default:
		return fmt.Sprintf("format(%d)", int(e))
	}
}

// Format describes a parsed RIFF/WAVE buffer. It is a value type and is
// re-derived after every conversion step.
type Format struct {
	SampleRate int      `json:"sample_rate"`
	Channels   int      `json:"channels"`
	BitDepth   int      `json:"bit_depth"`
	Encoding   Encoding `json:"encoding"`
	DataOffset int      `json:"data_offset"`
	DataLength int      `json:"data_length"`
}

func (f Format) BytesPerSample() int { return f.BitDepth / 8 }

// FrameSize is the number of bytes holding one sample for every channel.
func (f Format) FrameSize() int { return f.Channels * f.BytesPerSample() }

// Frames is the number of complete frames in the data chunk.
func (f Format) Frames() int {
	if f.FrameSize() <= 0 {
		return 0
	}
	return f.DataLength / f.FrameSize()
}

// Duration returns the playback length of the data chunk in seconds.
func (f Format) Duration() float64 {
	if f.FrameSize() <= 0 || f.SampleRate <= 0 {
		return 0
	}
	return float64(f.DataLength) / float64(f.FrameSize()) / float64(f.SampleRate)
}

// Matches reports whether f already has the target layout.
func (f Format) Matches(t Target) bool {
	return f.SampleRate == t.SampleRate && f.Channels == t.Channels && f.BitDepth == t.BitDepth && f.Encoding == EncodingPCM
}

// IsContainer reports whether buf starts with a RIFF/WAVE signature.
func IsContainer(buf []byte) bool {
	return len(buf) >= 12 && string(buf[0:4]) == "RIFF" && string(buf[8:12]) == "WAVE"
}

// Parse locates the format and data chunks of a RIFF/WAVE buffer. Chunks may
// appear in any order; unknown chunks are skipped by length.
func Parse(buf []byte) (Format, error) {
	if !IsContainer(buf) {
		return Format{}, fmt.Errorf("%w: missing RIFF/WAVE signature", ErrInvalidContainer)
	}

	var (
		f        Format
		haveFmt  bool
		haveData bool
	)
	off := 12
	for off+8 <= len(buf) {
		tag := string(buf[off : off+4])
		size := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		body := off + 8

		switch tag {
		case "fmt ":
			if size < 16 || body+16 > len(buf) {
				return Format{}, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidContainer)
			}
			code := int(binary.LittleEndian.Uint16(buf[body:]))
			f.Channels = int(binary.LittleEndian.Uint16(buf[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(buf[body+4:]))
			f.BitDepth = int(binary.LittleEndian.Uint16(buf[body+14:]))
			// WAVE_FORMAT_EXTENSIBLE carries the real code in the sub-format GUID.
			if code == formatCodeExtensible && size >= 40 && body+26 <= len(buf) {
				code = int(binary.LittleEndian.Uint16(buf[body+24:]))
			}
			f.Encoding = Encoding(code)
			haveFmt = true
		case "data":
			length := size
			if body+length > len(buf) {
				length = len(buf) - body
			}
			f.DataOffset = body
			f.DataLength = length
			haveData = true
		}

		next := body + size
		if size%2 == 1 {
			next++
		}
		if next <= off {
			break
		}
		off = next
	}

	if !haveFmt || !haveData {
		return Format{}, fmt.Errorf("%w: fmt or data chunk missing", ErrInvalidContainer)
	}
	if err := validateFormat(f); err != nil {
		return Format{}, err
	}
	return f, nil
}

func validateFormat(f Format) error {
	if f.Channels < 1 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidContainer, f.Channels)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidContainer, f.SampleRate)
	}
	switch f.Encoding {
	case EncodingPCM:
		if f.BitDepth != 16 && f.BitDepth != 24 && f.BitDepth != 32 {
			return fmt.Errorf("%w: unsupported pcm bit depth %d", ErrInvalidContainer, f.BitDepth)
		}
	case EncodingFloat:
		if f.BitDepth != 32 {
			return fmt.Errorf("%w: unsupported float bit depth %d", ErrInvalidContainer, f.BitDepth)
		}
	default:
		return fmt.Errorf("%w: unsupported encoding %s", ErrInvalidContainer, f.Encoding)
	}
	return nil
}

// Data returns the data chunk payload described by f.
func Data(buf []byte, f Format) []byte {
	end := f.DataOffset + f.DataLength
	if f.DataOffset < 0 || end > len(buf) || f.DataOffset > end {
		return nil
	}
	return buf[f.DataOffset:end]
}

// Generate encodes samples and wraps them in a minimal 44-byte header
// container. Only 16- and 24-bit PCM output is supported.
func Generate(samples []float64, sampleRate, channels, bitDepth int) ([]byte, error) {
	if !encodable(bitDepth) {
		return nil, fmt.Errorf("%w: cannot encode %d-bit output", ErrConversion, bitDepth)
	}
	if sampleRate <= 0 || channels < 1 {
		return nil, fmt.Errorf("%w: invalid output layout %d Hz x %d", ErrConversion, sampleRate, channels)
	}
	pcm := Encode(samples, bitDepth)
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(pcm))
	if err := WriteWAVTo(&buf, pcm, sampleRate, channels, bitDepth); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVFile writes already-encoded PCM bytes as a WAV file.
func WriteWAVFile(path string, pcm []byte, sampleRate, channels, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVTo(f, pcm, sampleRate, channels, bitDepth)
}

// WriteWAVTo writes already-encoded PCM bytes to out as a WAV stream.
func WriteWAVTo(out io.Writer, pcm []byte, sampleRate, channels, bitDepth int) error {
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * bitDepth / 8)
	blockAlign := uint16(channels * bitDepth / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(HeaderSize-8)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	fields := []any{
		uint32(16),
		uint16(formatCodePCM),
		uint16(channels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitDepth),
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
