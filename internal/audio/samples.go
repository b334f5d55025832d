package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Extract decodes the data chunk into interleaved float samples in [-1, 1].
// A trailing partial frame is dropped.
func Extract(data []byte, f Format) []float64 {
	bps := f.BytesPerSample()
	frame := f.FrameSize()
	if bps <= 0 || frame <= 0 {
		return nil
	}
	n := (len(data) / frame) * f.Channels
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = clamp(decodeSample(data[i*bps:], f.BitDepth, f.Encoding))
	}
	return out
}

func decodeSample(p []byte, bitDepth int, enc Encoding) float64 {
	switch {
	case enc == EncodingFloat:
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
		if math.IsNaN(v) {
			return 0
		}
		return v
	case bitDepth == 16:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
	case bitDepth == 24:
		v := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
		if v&0x800000 != 0 {
			v -= 1 << 24
		}
		return float64(v) / 8388608
	case bitDepth == 32:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648
	default:
		return 0
	}
}

// Encode converts float samples to little-endian signed PCM. Only 16 and 24
// bit output exists; any other depth is a caller bug and panics.
func Encode(samples []float64, bitDepth int) []byte {
	switch bitDepth {
	case 16:
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			v := quantize(s, 32768, -32768, 32767)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
		}
		return out
	case 24:
		out := make([]byte, len(samples)*3)
		for i, s := range samples {
			v := quantize(s, 8388608, -8388608, 8388607)
			out[i*3] = byte(v)
			out[i*3+1] = byte(v >> 8)
			out[i*3+2] = byte(v >> 16)
		}
		return out
	default:
		panic(fmt.Sprintf("audio: encode unsupported bit depth %d", bitDepth))
	}
}

func encodable(bitDepth int) bool {
	return bitDepth == 16 || bitDepth == 24
}

// outputDepth picks the depth used when re-encoding a buffer of depth d.
func outputDepth(d int) int {
	if encodable(d) {
		return d
	}
	return 16
}

func quantize(s, scale float64, lo, hi int32) int32 {
	v := math.Round(clamp(s) * scale)
	if v < float64(lo) {
		return lo
	}
	if v > float64(hi) {
		return hi
	}
	return int32(v)
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
