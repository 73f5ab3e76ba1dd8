package ports

import (
	"context"

	"exchange-rate-resolver/internal/domain/model"
)

type RateResolver interface {
	Resolve(ctx context.Context, base, quote model.Currency) (float64, error)
	ResolveRate(ctx context.Context, base, quote model.Currency) (*model.ResolvedRate, error)
}

type ExchangeService interface {
	GetLatestRate(ctx context.Context, from, to model.Currency) (*model.ResolvedRate, error)
	ConvertCurrency(ctx context.Context, request model.ConversionRequest) (*model.ConversionResult, error)
}
