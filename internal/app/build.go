package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/voiceclone/internal/audio"
	"github.com/ent0n29/voiceclone/internal/config"
	"github.com/ent0n29/voiceclone/internal/httpapi"
	"github.com/ent0n29/voiceclone/internal/jobs"
	"github.com/ent0n29/voiceclone/internal/observability"
	"github.com/ent0n29/voiceclone/internal/profiles"
	"github.com/ent0n29/voiceclone/internal/prompt"
	"github.com/ent0n29/voiceclone/internal/storage"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Jobs     *jobs.Manager
	Voices   *prompt.Service
	Metrics  *observability.Metrics
	Pipeline PipelineInfo

	// Cleanup should be called on shutdown to release external resources (DB, badger, etc).
	Cleanup func() error
}

// PipelineInfo describes the resolved backends for startup logging.
type PipelineInfo struct {
	Synthesizer string
	Decoder     string
	PromptStore string
	Profiles    string
	JobStore    string
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	info := PipelineInfo{PromptStore: cfg.PromptStore, Profiles: "in-memory", JobStore: "in-memory"}

	files, err := storage.New(storage.Config{
		Backend:  cfg.PromptStore,
		Dir:      cfg.PromptStoreDir,
		Bucket:   cfg.PromptS3Bucket,
		Prefix:   cfg.PromptS3Prefix,
		Region:   cfg.PromptS3Region,
		Endpoint: cfg.PromptS3Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt store init failed: %w", err)
	}

	profileStore, err := profiles.NewStore(cfg.ProfileStoreDir)
	if err != nil {
		return nil, fmt.Errorf("profile store init failed: %w", err)
	}
	if cfg.ProfileStoreDir != "" {
		info.Profiles = "badger:" + cfg.ProfileStoreDir
	}

	jobStore, err := jobs.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = profileStore.Close()
		return nil, fmt.Errorf("job store init failed: %w", err)
	}
	if jobStore != nil {
		info.JobStore = "postgres"
	}

	closeStores := func() {
		if jobStore != nil {
			_ = jobStore.Close()
		}
		_ = profileStore.Close()
	}

	synth, synthName, err := resolveSynthesizer(cfg)
	if err != nil {
		closeStores()
		return nil, err
	}
	info.Synthesizer = synthName

	decoder, decoderName := resolveDecoder(cfg)
	info.Decoder = decoderName

	resampler, err := audio.NewResampler(cfg.AudioResampler)
	if err != nil {
		closeStores()
		return nil, err
	}

	gate := audio.DefaultGateConfig()
	if cfg.NoiseGatePercentile > 0 {
		gate.Percentile = cfg.NoiseGatePercentile
	}
	if cfg.NoiseGateFallback > 0 {
		gate.FallbackThreshold = cfg.NoiseGateFallback
	}

	voices, err := prompt.NewService(prompt.Deps{
		Decoder:     decoder,
		Files:       files,
		Profiles:    profileStore,
		Synthesizer: synth,
		Metrics:     metrics,
	}, prompt.Config{
		Target: audio.Target{
			SampleRate: cfg.PromptSampleRate,
			Channels:   cfg.PromptChannels,
			BitDepth:   cfg.PromptBitDepth,
		},
		Gate:                gate,
		HighPassHz:          cfg.HighPassHz,
		Resampler:           resampler,
		MinRecordingSeconds: cfg.MinRecordingSeconds,
		PreviewText:         cfg.SynthPreviewText,
	})
	if err != nil {
		closeStores()
		return nil, err
	}

	manager := jobs.NewManager(voices, jobs.Options{
		Retention:           cfg.JobRetention,
		MinRecordingSeconds: cfg.MinRecordingSeconds,
	})
	manager.SetMetrics(metrics)
	if jobStore != nil {
		manager.SetStore(jobStore)
	}

	api := httpapi.New(cfg, manager, voices, metrics)

	cleanup := func() error {
		var errs []string
		if jobStore != nil {
			if err := jobStore.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := profileStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Jobs:     manager,
		Voices:   voices,
		Metrics:  metrics,
		Pipeline: info,
		Cleanup:  cleanup,
	}, nil
}

func resolveDecoder(cfg config.Config) (prompt.Decoder, string) {
	d, err := prompt.NewFFmpegDecoder(cfg.DecoderCLI)
	if err != nil {
		log.Printf("decoder unavailable, accepting WAV uploads only: %v", err)
		return prompt.PassthroughDecoder{}, "wav-only"
	}
	return d, d.Path
}
