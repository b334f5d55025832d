package audio

import (
	"errors"
	"math"
	"testing"
)

func TestResampleEqualRatesIsIdentity(t *testing.T) {
	in := sine(220, 0.1, 16000, 1, 0.4)
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestResampleLength(t *testing.T) {
	in := make([]float64, 100)
	if got := len(Resample(in, 48000, 24000)); got != 50 {
		t.Fatalf("48k->24k len = %d, want 50", got)
	}
	if got := len(Resample(in, 8000, 16000)); got != 200 {
		t.Fatalf("8k->16k len = %d, want 200", got)
	}
}

func TestResampleInterpolatesLinearly(t *testing.T) {
	out := Resample([]float64{0, 1, 0, -1}, 8000, 16000)
	want := []float64{0, 0.5, 1, 0.5, 0, -0.5, -1, -1}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-12 {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}
}

func TestUpmixDownmixRecoversMono(t *testing.T) {
	mono := sine(330, 0.05, 16000, 1, 0.6)
	for _, channels := range []int{2, 3, 6} {
		back := Downmix(Upmix(mono, channels), channels)
		if len(back) != len(mono) {
			t.Fatalf("channels=%d len = %d, want %d", channels, len(back), len(mono))
		}
		for i := range mono {
			if math.Abs(back[i]-mono[i]) > 1e-12 {
				t.Fatalf("channels=%d back[%d] = %v, want %v", channels, i, back[i], mono[i])
			}
		}
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	got := Downmix([]float64{1, 0, -0.5, 0.5}, 2)
	if len(got) != 2 || got[0] != 0.5 || got[1] != 0 {
		t.Fatalf("Downmix() = %v, want [0.5 0]", got)
	}
}

func TestConvertStereo48kToMono24k(t *testing.T) {
	buf := mustGenerate(t, sine(440, 5, 48000, 2, 0.5), 48000, 2, 16)

	out, f, err := ConvertToTargetFormat(buf, Target{SampleRate: 24000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("ConvertToTargetFormat() error = %v", err)
	}
	if f.SampleRate != 24000 || f.Channels != 1 || f.BitDepth != 16 {
		t.Fatalf("format = %+v", f)
	}
	parsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(out) error = %v", err)
	}
	if math.Abs(parsed.Duration()-5)/5 > 0.01 {
		t.Fatalf("duration = %v, want 5 within 1%%", parsed.Duration())
	}
}

func TestConvertMatchingTargetReturnsInput(t *testing.T) {
	buf := mustGenerate(t, sine(440, 0.1, 16000, 1, 0.5), 16000, 1, 16)
	out, _, err := ConvertToTargetFormat(buf, Target{SampleRate: 16000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("ConvertToTargetFormat() error = %v", err)
	}
	if &out[0] != &buf[0] {
		t.Fatalf("matching target should return the input buffer")
	}
}

func TestConvertChangesBitDepth(t *testing.T) {
	buf := mustGenerate(t, []float64{0.5, -0.5}, 16000, 1, 16)
	out, f, err := ConvertToTargetFormat(buf, Target{SampleRate: 16000, Channels: 1, BitDepth: 24})
	if err != nil {
		t.Fatalf("ConvertToTargetFormat() error = %v", err)
	}
	if f.BitDepth != 24 || len(out) != HeaderSize+6 {
		t.Fatalf("format = %+v len = %d", f, len(out))
	}
}

func TestConvertRejectsBadTarget(t *testing.T) {
	buf := mustGenerate(t, []float64{0}, 16000, 1, 16)
	for _, target := range []Target{
		{SampleRate: 0, Channels: 1, BitDepth: 16},
		{SampleRate: 16000, Channels: 0, BitDepth: 16},
		{SampleRate: 16000, Channels: 1, BitDepth: 32},
	} {
		if _, _, err := ConvertToTargetFormat(buf, target); !errors.Is(err, ErrConversion) {
			t.Fatalf("Convert(%+v) error = %v, want ErrConversion", target, err)
		}
	}
}

func TestNewResampler(t *testing.T) {
	if r, err := NewResampler("linear"); err != nil || r == nil {
		t.Fatalf("NewResampler(linear) = %v, %v", r, err)
	}
	if _, ok := mustResampler(t, "hq").(HQResampler); !ok {
		t.Fatalf("NewResampler(hq) did not return HQResampler")
	}
	if _, err := NewResampler("cubic"); err == nil {
		t.Fatalf("NewResampler(cubic) expected error")
	}
}

func mustResampler(t *testing.T, name string) Resampler {
	t.Helper()
	r, err := NewResampler(name)
	if err != nil {
		t.Fatalf("NewResampler(%q) error = %v", name, err)
	}
	return r
}

func TestHQResamplerKeepsChannelsApart(t *testing.T) {
	const frames = 48000
	in := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		in[2*i] = 0.5
		in[2*i+1] = -0.5
	}
	out, err := HQResampler{}.Resample(in, 2, 48000, 24000)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if len(out) != 24000*2 {
		t.Fatalf("len(out) = %d, want %d", len(out), 24000*2)
	}
	mid := 12000
	l, r := out[2*mid], out[2*mid+1]
	if math.Abs(l-0.5) > 0.05 || math.Abs(r+0.5) > 0.05 {
		t.Fatalf("mid frame L=%.3f R=%.3f, want 0.5 -0.5", l, r)
	}
}

func TestHQResamplerLengthMatchesRatio(t *testing.T) {
	cases := []struct {
		name          string
		frames        int
		inRate, outHz int
		want          int
	}{
		{"down", 48000, 48000, 24000, 24000},
		{"up", 16000, 16000, 24000, 24000},
		{"odd", 44100, 44100, 24000, 24000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]float64, tc.frames)
			for i := range in {
				in[i] = 0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(tc.inRate))
			}
			out, err := HQResampler{}.Resample(in, 1, tc.inRate, tc.outHz)
			if err != nil {
				t.Fatalf("Resample() error = %v", err)
			}
			if len(out) != tc.want {
				t.Fatalf("len(out) = %d, want %d", len(out), tc.want)
			}
		})
	}
}
