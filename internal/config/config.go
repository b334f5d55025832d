package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the voice cloning service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL     string
	ProfileStoreDir string

	PromptStore      string
	PromptStoreDir   string
	PromptS3Bucket   string
	PromptS3Prefix   string
	PromptS3Region   string
	PromptS3Endpoint string

	PromptSampleRate int
	PromptChannels   int
	PromptBitDepth   int
	AudioResampler   string

	NoiseGatePercentile float64
	NoiseGateFallback   float64
	HighPassHz          float64
	MinRecordingSeconds float64

	JobRetention     time.Duration
	JobSweepInterval time.Duration

	DecoderCLI string

	SynthProvider    string
	SynthCommand     string
	SynthTimeout     time.Duration
	SynthPreviewText string
}

// Load reads environment variables, after merging an optional .env file,
// and applies safe defaults. Variables already set in the environment win
// over the file.
func Load() (Config, error) {
	if err := loadDotEnv(envOrDefault("APP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voiceclone"),
		AllowAnyOrigin:   false,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		// Empty keeps profiles in memory.
		ProfileStoreDir:  stringsTrimSpace("PROFILE_STORE_DIR"),
		PromptStore:      strings.ToLower(envOrDefault("PROMPT_STORE", "local")),
		PromptStoreDir:   envOrDefault("PROMPT_STORE_DIR", "data/prompts"),
		PromptS3Bucket:   stringsTrimSpace("PROMPT_S3_BUCKET"),
		PromptS3Prefix:   stringsTrimSpace("PROMPT_S3_PREFIX"),
		PromptS3Region:   stringsTrimSpace("PROMPT_S3_REGION"),
		PromptS3Endpoint: stringsTrimSpace("PROMPT_S3_ENDPOINT"),
		PromptSampleRate: 24000,
		PromptChannels:   1,
		PromptBitDepth:   16,
		AudioResampler:   strings.ToLower(envOrDefault("AUDIO_RESAMPLER", "linear")),
		// Matches the gate's built-in 25th percentile and 0.02 fallback.
		NoiseGatePercentile: 25,
		NoiseGateFallback:   0.02,
		HighPassHz:          80,
		MinRecordingSeconds: 3,
		JobRetention:        7 * 24 * time.Hour,
		JobSweepInterval:    time.Hour,
		DecoderCLI:          envOrDefault("DECODER_CLI", "ffmpeg"),
		SynthProvider:       strings.ToLower(envOrDefault("SYNTH_PROVIDER", "none")),
		SynthCommand:        stringsTrimSpace("SYNTH_COMMAND"),
		SynthTimeout:        2 * time.Minute,
		SynthPreviewText:    stringsTrimSpace("SYNTH_PREVIEW_TEXT"),
		ShutdownTimeout:     15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.PromptSampleRate, err = intFromEnv("PROMPT_SAMPLE_RATE", cfg.PromptSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.PromptChannels, err = intFromEnv("PROMPT_CHANNELS", cfg.PromptChannels)
	if err != nil {
		return Config{}, err
	}
	cfg.PromptBitDepth, err = intFromEnv("PROMPT_BIT_DEPTH", cfg.PromptBitDepth)
	if err != nil {
		return Config{}, err
	}
	cfg.NoiseGatePercentile, err = floatFromEnv("NOISE_GATE_PERCENTILE", cfg.NoiseGatePercentile)
	if err != nil {
		return Config{}, err
	}
	cfg.NoiseGateFallback, err = floatFromEnv("NOISE_GATE_FALLBACK", cfg.NoiseGateFallback)
	if err != nil {
		return Config{}, err
	}
	cfg.HighPassHz, err = floatFromEnv("HIGH_PASS_HZ", cfg.HighPassHz)
	if err != nil {
		return Config{}, err
	}
	cfg.MinRecordingSeconds, err = floatFromEnv("MIN_RECORDING_SECONDS", cfg.MinRecordingSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.JobRetention, err = durationFromEnv("JOB_RETENTION", cfg.JobRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.JobSweepInterval, err = durationFromEnv("JOB_SWEEP_INTERVAL", cfg.JobSweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthTimeout, err = durationFromEnv("SYNTH_TIMEOUT", cfg.SynthTimeout)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.PromptStore {
	case "local":
	case "s3":
		if c.PromptS3Bucket == "" {
			return fmt.Errorf("PROMPT_S3_BUCKET is required when PROMPT_STORE=s3")
		}
	default:
		return fmt.Errorf("PROMPT_STORE must be local or s3")
	}
	if c.PromptSampleRate < 8000 || c.PromptSampleRate > 192000 {
		return fmt.Errorf("PROMPT_SAMPLE_RATE must be between 8000 and 192000")
	}
	if c.PromptChannels < 1 || c.PromptChannels > 2 {
		return fmt.Errorf("PROMPT_CHANNELS must be 1 or 2")
	}
	if c.PromptBitDepth != 16 && c.PromptBitDepth != 24 {
		return fmt.Errorf("PROMPT_BIT_DEPTH must be 16 or 24")
	}
	if c.AudioResampler != "linear" && c.AudioResampler != "hq" {
		return fmt.Errorf("AUDIO_RESAMPLER must be linear or hq")
	}
	if c.NoiseGatePercentile <= 0 || c.NoiseGatePercentile > 100 {
		return fmt.Errorf("NOISE_GATE_PERCENTILE must be in (0, 100]")
	}
	if c.NoiseGateFallback <= 0 || c.NoiseGateFallback >= 1 {
		return fmt.Errorf("NOISE_GATE_FALLBACK must be in (0, 1)")
	}
	if c.HighPassHz <= 0 {
		return fmt.Errorf("HIGH_PASS_HZ must be positive")
	}
	if c.MinRecordingSeconds <= 0 {
		return fmt.Errorf("MIN_RECORDING_SECONDS must be positive")
	}
	if c.JobRetention < time.Minute {
		return fmt.Errorf("JOB_RETENTION must be at least 1m")
	}
	if c.JobSweepInterval < time.Second {
		return fmt.Errorf("JOB_SWEEP_INTERVAL must be at least 1s")
	}
	switch c.SynthProvider {
	case "none", "mock":
	case "subprocess":
		if c.SynthCommand == "" {
			return fmt.Errorf("SYNTH_COMMAND is required when SYNTH_PROVIDER=subprocess")
		}
	default:
		return fmt.Errorf("SYNTH_PROVIDER must be none, mock or subprocess")
	}
	return nil
}

func loadDotEnv(path string) error {
	path = trimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	return strings.TrimSpace(v)
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
