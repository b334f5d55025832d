package audio

import "math"

// Analysis summarises a recording's suitability as cloning input.
type Analysis struct {
	Format          Format   `json:"format"`
	DurationSeconds float64  `json:"duration_seconds"`
	Peak            float64  `json:"peak"`
	RMS             float64  `json:"rms"`
	ClippingRatio   float64  `json:"clipping_ratio"`
	SilenceRatio    float64  `json:"silence_ratio"`
	Score           float64  `json:"score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

const (
	clipLevel        = 0.99
	silenceLevel     = 0.01
	analysisWindowMS = 50
)

// Analyze scores buf from 0 to 100 using level, clipping, silence and length
// heuristics.
func Analyze(buf []byte) (Analysis, error) {
	f, err := Parse(buf)
	if err != nil {
		return Analysis{}, err
	}
	s := Extract(Data(buf, f), f)
	a := Analysis{
		Format:          f,
		DurationSeconds: f.Duration(),
		Peak:            Peak(s),
		Issues:          []string{},
		Recommendations: []string{},
	}

	var sum float64
	clipped := 0
	for _, v := range s {
		sum += v * v
		if math.Abs(v) >= clipLevel {
			clipped++
		}
	}
	if len(s) > 0 {
		a.RMS = math.Sqrt(sum / float64(len(s)))
		a.ClippingRatio = float64(clipped) / float64(len(s))
	}

	win := int(float64(f.SampleRate)*analysisWindowMS/1000) * f.Channels
	if win < 1 {
		win = 1
	}
	windows, silent := 0, 0
	for start := 0; start < len(s); start += win {
		end := min(start+win, len(s))
		var ws float64
		for _, v := range s[start:end] {
			ws += v * v
		}
		windows++
		if math.Sqrt(ws/float64(end-start)) < silenceLevel {
			silent++
		}
	}
	if windows > 0 {
		a.SilenceRatio = float64(silent) / float64(windows)
	}

	score := 100.0
	switch {
	case a.DurationSeconds < 3:
		score -= 40
		a.Issues = append(a.Issues, "recording is shorter than 3 seconds")
		a.Recommendations = append(a.Recommendations, "record at least 10 seconds of continuous speech")
	case a.DurationSeconds < 10:
		score -= 10
		a.Recommendations = append(a.Recommendations, "longer recordings (10-30 seconds) clone more reliably")
	}
	if a.ClippingRatio > 0.01 {
		score -= 25
		a.Issues = append(a.Issues, "audio is clipping")
		a.Recommendations = append(a.Recommendations, "lower the input gain or move away from the microphone")
	}
	if a.RMS < 0.02 {
		score -= 20
		a.Issues = append(a.Issues, "recording level is very low")
		a.Recommendations = append(a.Recommendations, "speak closer to the microphone")
	}
	if a.SilenceRatio > 0.5 {
		score -= 15
		a.Issues = append(a.Issues, "recording is mostly silence")
		a.Recommendations = append(a.Recommendations, "trim long pauses before uploading")
	}
	if f.SampleRate < 16000 {
		score -= 10
		a.Issues = append(a.Issues, "sample rate is below 16 kHz")
		a.Recommendations = append(a.Recommendations, "record at 16 kHz or higher")
	}
	a.Score = math.Max(0, math.Min(100, score))
	return a, nil
}
