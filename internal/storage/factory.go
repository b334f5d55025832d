package storage

import (
	"fmt"
	"strings"
)

// Config selects and configures a FileStore backend.
type Config struct {
	Backend  string // local | s3
	Dir      string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

func New(cfg Config) (FileStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "local":
		dir := strings.TrimSpace(cfg.Dir)
		if dir == "" {
			dir = "data/prompts"
		}
		return NewLocal(dir)
	case "s3":
		if strings.TrimSpace(cfg.Bucket) == "" {
			return nil, fmt.Errorf("PROMPT_S3_BUCKET is required when PROMPT_STORE=s3")
		}
		client := NewS3Client(S3Options{Region: cfg.Region, Endpoint: cfg.Endpoint})
		return NewS3(client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown prompt store %q (expected local|s3)", cfg.Backend)
	}
}
