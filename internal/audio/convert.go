package audio

import (
	"fmt"
	"math"
)

// Target is the layout a buffer is converted to.
type Target struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bit_depth"`
}

// TargetOf returns the layout of f, re-encoded at an encodable depth.
func TargetOf(f Format) Target {
	return Target{SampleRate: f.SampleRate, Channels: f.Channels, BitDepth: outputDepth(f.BitDepth)}
}

// Resampler converts interleaved samples between sample rates.
type Resampler interface {
	Resample(samples []float64, channels, inRate, outRate int) ([]float64, error)
}

// LinearResampler interpolates linearly between neighbouring source samples.
type LinearResampler struct{}

func (LinearResampler) Resample(samples []float64, channels, inRate, outRate int) ([]float64, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("%w: resample %d -> %d Hz", ErrConversion, inRate, outRate)
	}
	return ResampleInterleaved(samples, channels, inRate, outRate), nil
}

// Resample converts a single-channel sequence from inRate to outRate. The
// output holds floor(len/(inRate/outRate)) samples; equal rates return s.
func Resample(s []float64, inRate, outRate int) []float64 {
	if inRate == outRate || len(s) == 0 {
		return s
	}
	ratio := float64(inRate) / float64(outRate)
	n := int(math.Floor(float64(len(s)) / ratio))
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo >= len(s) {
			lo = len(s) - 1
		}
		hi := lo + 1
		if hi >= len(s) {
			out[i] = s[lo]
			continue
		}
		frac := pos - float64(lo)
		out[i] = s[lo]*(1-frac) + s[hi]*frac
	}
	return out
}

// ResampleInterleaved resamples each channel of an interleaved sequence.
func ResampleInterleaved(s []float64, channels, inRate, outRate int) []float64 {
	if channels <= 1 {
		return Resample(s, inRate, outRate)
	}
	if inRate == outRate || len(s) == 0 {
		return s
	}
	frames := len(s) / channels
	var out []float64
	plane := make([]float64, frames)
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < frames; i++ {
			plane[i] = s[i*channels+ch]
		}
		r := Resample(plane, inRate, outRate)
		if out == nil {
			out = make([]float64, len(r)*channels)
		}
		for i, v := range r {
			out[i*channels+ch] = v
		}
	}
	return out
}

// Downmix averages every frame of an interleaved sequence into one sample.
func Downmix(s []float64, channels int) []float64 {
	if channels <= 1 {
		return s
	}
	frames := len(s) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += s[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Upmix duplicates every mono sample into each of channels slots.
func Upmix(mono []float64, channels int) []float64 {
	if channels <= 1 {
		return mono
	}
	out := make([]float64, len(mono)*channels)
	for i, v := range mono {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = v
		}
	}
	return out
}

// ConvertChannels maps an interleaved sequence between channel counts.
// N to M layouts go through mono.
func ConvertChannels(s []float64, from, to int) []float64 {
	switch {
	case from == to:
		return s
	case to == 1:
		return Downmix(s, from)
	case from == 1:
		return Upmix(s, to)
	default:
		return Upmix(Downmix(s, from), to)
	}
}

// Converter re-encodes container buffers to a target layout.
type Converter struct {
	Resampler Resampler
}

func (c Converter) resampler() Resampler {
	if c.Resampler == nil {
		return LinearResampler{}
	}
	return c.Resampler
}

// Convert applies channel conversion, then resampling, then bit depth
// re-encoding, each only when the buffer differs from t. The returned Format
// describes the returned buffer.
func (c Converter) Convert(buf []byte, t Target) ([]byte, Format, error) {
	if t.SampleRate <= 0 || t.Channels < 1 || !encodable(t.BitDepth) {
		return nil, Format{}, fmt.Errorf("%w: invalid target %+v", ErrConversion, t)
	}
	f, err := Parse(buf)
	if err != nil {
		return nil, Format{}, err
	}
	if f.Matches(t) {
		return buf, f, nil
	}

	samples := Extract(Data(buf, f), f)
	if f.Channels != t.Channels {
		samples = ConvertChannels(samples, f.Channels, t.Channels)
		f = deriveFormat(f, t.Channels, f.SampleRate, len(samples))
	}
	if f.SampleRate != t.SampleRate {
		samples, err = c.resampler().Resample(samples, f.Channels, f.SampleRate, t.SampleRate)
		if err != nil {
			return nil, Format{}, err
		}
		f = deriveFormat(f, f.Channels, t.SampleRate, len(samples))
	}

	out, err := Generate(samples, f.SampleRate, f.Channels, t.BitDepth)
	if err != nil {
		return nil, Format{}, err
	}
	nf, err := Parse(out)
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: reparse converted buffer: %v", ErrConversion, err)
	}
	return out, nf, nil
}

// ConvertToTargetFormat converts buf with linear resampling.
func ConvertToTargetFormat(buf []byte, t Target) ([]byte, Format, error) {
	return Converter{}.Convert(buf, t)
}

// deriveFormat describes an in-memory sample sequence as if it were still
// encoded at f's depth.
func deriveFormat(f Format, channels, sampleRate, samples int) Format {
	f.Channels = channels
	f.SampleRate = sampleRate
	f.DataLength = samples * f.BytesPerSample()
	return f
}
