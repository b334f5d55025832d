package audio

import (
	"math"
	"sort"
)

const (
	// NormalizeTarget is the peak level Normalize scales to (about -3 dBFS).
	NormalizeTarget = 0.707
	// DefaultHighPassHz is the cutoff used to strip rumble below the voice band.
	DefaultHighPassHz = 80
)

// GateConfig tunes the energy-based noise gate.
type GateConfig struct {
	WindowMS          float64
	Percentile        float64
	ThresholdFactor   float64
	FallbackThreshold float64
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		WindowMS:          20,
		Percentile:        25,
		ThresholdFactor:   1.6,
		FallbackThreshold: 0.02,
	}
}

func (c GateConfig) withDefaults() GateConfig {
	d := DefaultGateConfig()
	if c.WindowMS <= 0 {
		c.WindowMS = d.WindowMS
	}
	if c.Percentile <= 0 || c.Percentile > 100 {
		c.Percentile = d.Percentile
	}
	if c.ThresholdFactor <= 0 {
		c.ThresholdFactor = d.ThresholdFactor
	}
	if c.FallbackThreshold <= 0 {
		c.FallbackThreshold = d.FallbackThreshold
	}
	return c
}

// NoiseFloor estimates background energy as a percentile of windowed RMS.
// It returns 0 when fewer than two windows are available.
func NoiseFloor(s []float64, sampleRate, channels int, cfg GateConfig) float64 {
	cfg = cfg.withDefaults()
	if channels < 1 {
		channels = 1
	}
	win := int(float64(sampleRate)*cfg.WindowMS/1000) * channels
	if win < 1 {
		win = 1
	}
	rms := make([]float64, 0, len(s)/win+1)
	for start := 0; start < len(s); start += win {
		end := min(start+win, len(s))
		var sum float64
		for _, v := range s[start:end] {
			sum += v * v
		}
		rms = append(rms, math.Sqrt(sum/float64(end-start)))
	}
	if len(rms) < 2 {
		return 0
	}
	sort.Float64s(rms)
	idx := int(float64(len(rms)) * cfg.Percentile / 100)
	if idx >= len(rms) {
		idx = len(rms) - 1
	}
	return rms[idx]
}

// ReduceNoise soft-gates samples below a threshold derived from the noise
// floor and smooths the result with a 3-tap kernel. It is an amplitude gate
// only; noise overlapping speech in level is left alone.
func ReduceNoise(s []float64, sampleRate, channels int, cfg GateConfig) []float64 {
	if len(s) == 0 {
		return s
	}
	cfg = cfg.withDefaults()
	if channels < 1 {
		channels = 1
	}
	threshold := NoiseFloor(s, sampleRate, channels, cfg) * cfg.ThresholdFactor
	if threshold == 0 {
		threshold = cfg.FallbackThreshold
	}

	gated := make([]float64, len(s))
	for i, v := range s {
		a := math.Abs(v)
		if a < threshold {
			gated[i] = v * math.Pow(a/threshold, 1.5) * 0.5
			continue
		}
		gated[i] = v
	}
	return smooth3(gated, channels)
}

// smooth3 applies (prev + 2*curr + next) / 4 per channel; edges reuse the
// current sample for the missing neighbour.
func smooth3(s []float64, channels int) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		prev, next := v, v
		if i-channels >= 0 {
			prev = s[i-channels]
		}
		if i+channels < len(s) {
			next = s[i+channels]
		}
		out[i] = (prev + 2*v + next) / 4
	}
	return out
}

// HighPass runs a first-order RC high-pass filter over each channel.
func HighPass(s []float64, sampleRate, channels int, cutoffHz float64) []float64 {
	if len(s) == 0 || sampleRate <= 0 || cutoffHz <= 0 {
		return s
	}
	if channels < 1 {
		channels = 1
	}
	rc := 1 / (2 * math.Pi * cutoffHz)
	dt := 1 / float64(sampleRate)
	alpha := rc / (rc + dt)

	out := make([]float64, len(s))
	for ch := 0; ch < channels && ch < len(s); ch++ {
		prevX := s[ch]
		prevY := s[ch]
		out[ch] = prevY
		for i := ch + channels; i < len(s); i += channels {
			x := s[i]
			y := alpha * (prevY + x - prevX)
			out[i] = y
			prevX, prevY = x, y
		}
	}
	return out
}

// Peak returns the largest absolute sample value.
func Peak(s []float64) float64 {
	var peak float64
	for _, v := range s {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// Normalize scales s in place so its peak sits at NormalizeTarget. Silent
// input is left untouched.
func Normalize(s []float64) []float64 {
	peak := Peak(s)
	if peak == 0 {
		return s
	}
	gain := NormalizeTarget / peak
	for i := range s {
		s[i] *= gain
	}
	return s
}

// Conditioner applies the enhancement chain to container buffers.
type Conditioner struct {
	Gate       GateConfig
	HighPassHz float64
}

func (c Conditioner) cutoff() float64 {
	if c.HighPassHz <= 0 {
		return DefaultHighPassHz
	}
	return c.HighPassHz
}

// Enhance gates noise, normalizes, then high-passes buf.
func (c Conditioner) Enhance(buf []byte) ([]byte, error) {
	return c.apply(buf, func(s []float64, f Format) []float64 {
		s = ReduceNoise(s, f.SampleRate, f.Channels, c.Gate)
		s = Normalize(s)
		return HighPass(s, f.SampleRate, f.Channels, c.cutoff())
	})
}

// Preprocess only high-passes buf. Used for raw prompts where timbre matters
// more than hiss removal.
func (c Conditioner) Preprocess(buf []byte) ([]byte, error) {
	return c.apply(buf, func(s []float64, f Format) []float64 {
		return HighPass(s, f.SampleRate, f.Channels, c.cutoff())
	})
}

func (c Conditioner) apply(buf []byte, fn func([]float64, Format) []float64) ([]byte, error) {
	f, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	s := fn(Extract(Data(buf, f), f), f)
	return Generate(s, f.SampleRate, f.Channels, outputDepth(f.BitDepth))
}
