package cache

import (
	"context"
	"time"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

// DemandCache memoizes the trailing transaction count used by the pricing engine.
type DemandCache interface {
	GetDemandCount(ctx context.Context, key string) (int, bool, error)
	SetDemandCount(ctx context.Context, key string, count int, ttl time.Duration) error
}

type TrustScoreCache interface {
	GetTrustScore(ctx context.Context, vendorID string) (*domain.TrustScore, bool, error)
	SetTrustScore(ctx context.Context, score *domain.TrustScore, ttl time.Duration) error
	InvalidateTrustScore(ctx context.Context, vendorID string) error
}

type Noop struct{}

func (Noop) GetDemandCount(_ context.Context, _ string) (int, bool, error) {
	return 0, false, nil
}

func (Noop) SetDemandCount(_ context.Context, _ string, _ int, _ time.Duration) error {
	return nil
}

func (Noop) GetTrustScore(_ context.Context, _ string) (*domain.TrustScore, bool, error) {
	return nil, false, nil
}

func (Noop) SetTrustScore(_ context.Context, _ *domain.TrustScore, _ time.Duration) error {
	return nil
}

func (Noop) InvalidateTrustScore(_ context.Context, _ string) error {
	return nil
}
