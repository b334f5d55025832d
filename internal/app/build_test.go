package app

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/voiceclone/internal/config"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		MetricsNamespace:    fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		ProfileStoreDir:     filepath.Join(dir, "profiles"),
		PromptStore:         "local",
		PromptStoreDir:      filepath.Join(dir, "prompts"),
		PromptSampleRate:    24000,
		PromptChannels:      1,
		PromptBitDepth:      16,
		AudioResampler:      "hq",
		NoiseGatePercentile: 25,
		NoiseGateFallback:   0.02,
		HighPassHz:          80,
		MinRecordingSeconds: 3,
		JobRetention:        time.Hour,
		DecoderCLI:          "voiceclone-no-such-decoder",
		SynthProvider:       "mock",
	}
}

func TestBuildWiresPipeline(t *testing.T) {
	res, err := Build(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.API == nil || res.Jobs == nil || res.Voices == nil || res.Metrics == nil {
		t.Fatalf("Build() left components nil: %+v", res)
	}
	if res.Pipeline.Decoder != "wav-only" {
		t.Fatalf("Decoder = %q, want wav-only fallback", res.Pipeline.Decoder)
	}
	if res.Pipeline.Synthesizer != "mock" || res.Pipeline.JobStore != "in-memory" {
		t.Fatalf("Pipeline = %+v", res.Pipeline)
	}
	if res.Pipeline.Profiles == "in-memory" {
		t.Fatalf("Profiles = %q, want badger", res.Pipeline.Profiles)
	}
}

func TestBuildRejectsUnknownResampler(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProfileStoreDir = ""
	cfg.AudioResampler = "cubic"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() with unknown resampler should fail")
	}
}

func TestResolveSynthesizer(t *testing.T) {
	for _, provider := range []string{"none", ""} {
		s, name, err := resolveSynthesizer(config.Config{SynthProvider: provider})
		if err != nil || s != nil || name != "none" {
			t.Fatalf("resolveSynthesizer(%q) = %v %q %v", provider, s, name, err)
		}
	}
	s, _, err := resolveSynthesizer(config.Config{SynthProvider: "mock"})
	if _, ok := s.(*synthesis.Mock); !ok || err != nil {
		t.Fatalf("resolveSynthesizer(mock) = %T, %v", s, err)
	}
	_, _, err = resolveSynthesizer(config.Config{SynthProvider: "subprocess", SynthCommand: "voiceclone-no-such-synth"})
	if synthesis.KindOf(err) != synthesis.KindConfiguration {
		t.Fatalf("resolveSynthesizer(subprocess) error = %v, want configuration kind", err)
	}
	if _, _, err := resolveSynthesizer(config.Config{SynthProvider: "cloud"}); err == nil {
		t.Fatalf("resolveSynthesizer(cloud) should fail")
	}
}
