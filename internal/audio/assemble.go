package audio

import "fmt"

// DefaultCrossfadeMS is the fade length applied at segment boundaries.
const DefaultCrossfadeMS = 20

// Assembler joins several recordings into one voice prompt.
type Assembler struct {
	Converter   Converter
	CrossfadeMS float64
}

// Combine aligns every buffer to the first buffer's layout, fades segment
// boundaries, concatenates in input order and normalizes the result once.
// A single buffer is returned unchanged.
func (a Assembler) Combine(buffers [][]byte) ([]byte, error) {
	switch len(buffers) {
	case 0:
		return nil, ErrNoValidRecordings
	case 1:
		return buffers[0], nil
	}

	ref, err := Parse(buffers[0])
	if err != nil {
		return nil, fmt.Errorf("recording 0: %w", err)
	}
	target := TargetOf(ref)

	segments := make([][]float64, len(buffers))
	total := 0
	for i, buf := range buffers {
		f, err := Parse(buf)
		if err != nil {
			return nil, fmt.Errorf("recording %d: %w", i, err)
		}
		if i > 0 && (f.SampleRate != ref.SampleRate || f.Channels != ref.Channels || f.BitDepth != ref.BitDepth || f.Encoding != ref.Encoding) {
			buf, f, err = a.Converter.Convert(buf, target)
			if err != nil {
				return nil, fmt.Errorf("recording %d: %w", i, err)
			}
		}
		segments[i] = Extract(Data(buf, f), f)
		total += len(segments[i])
	}

	fadeMS := a.CrossfadeMS
	if fadeMS <= 0 {
		fadeMS = DefaultCrossfadeMS
	}
	fadeFrames := int(float64(ref.SampleRate) * fadeMS / 1000)
	last := len(segments) - 1
	for i, s := range segments {
		n := min(fadeFrames, len(s)/ref.Channels/4)
		if i > 0 {
			FadeIn(s, ref.Channels, n)
		}
		if i < last {
			FadeOut(s, ref.Channels, n)
		}
	}

	out := make([]float64, 0, total)
	for _, s := range segments {
		out = append(out, s...)
	}
	Normalize(out)
	return Generate(out, ref.SampleRate, ref.Channels, target.BitDepth)
}

// FadeIn ramps the first frames of s linearly from silence.
func FadeIn(s []float64, channels, frames int) {
	if frames <= 0 || channels < 1 {
		return
	}
	for i := 0; i < frames; i++ {
		g := float64(i) / float64(frames)
		for ch := 0; ch < channels; ch++ {
			s[i*channels+ch] *= g
		}
	}
}

// FadeOut ramps the last frames of s linearly to silence.
func FadeOut(s []float64, channels, frames int) {
	if frames <= 0 || channels < 1 {
		return
	}
	total := len(s) / channels
	for i := 0; i < frames; i++ {
		g := float64(i) / float64(frames)
		idx := total - 1 - i
		for ch := 0; ch < channels; ch++ {
			s[idx*channels+ch] *= g
		}
	}
}
