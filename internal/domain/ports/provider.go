package ports

import (
	"context"

	"exchange-rate-resolver/internal/domain/model"
)

// RateProvider is a remote rate source. Failures are *model.ProviderError.
type RateProvider interface {
	Name() string
	FetchRate(ctx context.Context, pair model.CurrencyPair) (float64, error)
}
