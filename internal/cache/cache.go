package cache

import (
	"context"
	"time"

	"scanpos/internal/domain"
)

// CompanyCache holds the company list so interactive lookups (dropdowns,
// repricing selection) do not hit the ledger store on every request.
type CompanyCache interface {
	Get(ctx context.Context, key string) ([]domain.Company, bool, error)
	Set(ctx context.Context, key string, companies []domain.Company, ttl time.Duration) error
}

type NoopCompanyCache struct{}

func (NoopCompanyCache) Get(_ context.Context, _ string) ([]domain.Company, bool, error) {
	return nil, false, nil
}

func (NoopCompanyCache) Set(_ context.Context, _ string, _ []domain.Company, _ time.Duration) error {
	return nil
}
