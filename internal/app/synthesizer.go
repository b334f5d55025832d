package app

import (
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/voiceclone/internal/config"
	"github.com/ent0n29/voiceclone/internal/synthesis"
)

// resolveSynthesizer returns the configured synthesizer, or nil for "none".
func resolveSynthesizer(cfg config.Config) (synthesis.Synthesizer, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.SynthProvider))
	switch mode {
	case "", "none":
		log.Printf("synthesizer: disabled (no preview samples)")
		return nil, "none", nil
	case "mock":
		log.Printf("WARNING: synthesizer is the mock tone generator; previews and /synthesize return a test tone")
		return synthesis.NewMock(), "mock", nil
	case "subprocess":
		s, err := synthesis.NewSubprocess(cfg.SynthCommand, cfg.SynthTimeout)
		if err != nil {
			return nil, "", fmt.Errorf("synthesizer init failed: %w", err)
		}
		log.Printf("synthesizer: subprocess (%s)", cfg.SynthCommand)
		return s, "subprocess", nil
	default:
		return nil, "", fmt.Errorf("invalid SYNTH_PROVIDER: %q (expected none|mock|subprocess)", cfg.SynthProvider)
	}
}
