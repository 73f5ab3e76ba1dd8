package ports

import (
	"context"
	"time"

	"exchange-rate-resolver/internal/domain/model"
)

// RateCache stores resolved rates under an unordered pair key. A lookup in
// the opposite direction of a stored entry yields the reciprocal rate.
type RateCache interface {
	Get(ctx context.Context, pair model.CurrencyPair) (*model.ResolvedRate, bool)
	Set(ctx context.Context, rate *model.ResolvedRate, ttl time.Duration) error
	ClearExpired(ctx context.Context) error
}
