package jobs

import (
	"context"
	"errors"
	"strings"
)

var ErrStoreNotFound = errors.New("voice job not found in store")

// Store persists job snapshots. Recording audio is never stored.
type Store interface {
	SaveJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]Job, error)
	Close() error
}

// NewStore returns a postgres store when databaseURL is set, otherwise nil.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, nil
	}
	store, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}
