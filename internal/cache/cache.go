package cache

import (
	"context"
	"time"

	"pinturapos/backend/internal/domain"
)

type NearestBranchCache interface {
	Get(ctx context.Context, key string) (*domain.NearestBranch, bool, error)
	Set(ctx context.Context, key string, value *domain.NearestBranch, ttl time.Duration) error
}

type NoopNearestBranchCache struct{}

func (NoopNearestBranchCache) Get(_ context.Context, _ string) (*domain.NearestBranch, bool, error) {
	return nil, false, nil
}

func (NoopNearestBranchCache) Set(_ context.Context, _ string, _ *domain.NearestBranch, _ time.Duration) error {
	return nil
}
