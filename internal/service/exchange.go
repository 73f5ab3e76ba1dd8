package service

import (
	"context"
	"math"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/pkg/logger"
)

var (
	ErrInvalidCurrency = model.ErrInvalidCurrency
	ErrInvalidAmount   = model.ErrInvalidAmount
	ErrRateUnavailable = model.ErrRateUnavailable
)

type ExchangeService struct {
	resolver ports.RateResolver
	log      *logger.Logger
}

var _ ports.ExchangeService = (*ExchangeService)(nil)

func NewExchangeService(resolver ports.RateResolver, log *logger.Logger) *ExchangeService {
	return &ExchangeService{
		resolver: resolver,
		log:      log,
	}
}

func (s *ExchangeService) GetLatestRate(ctx context.Context, from, to model.Currency) (*model.ResolvedRate, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, ErrInvalidCurrency
	}

	return s.resolver.ResolveRate(ctx, from, to)
}

func (s *ExchangeService) ConvertCurrency(ctx context.Context, request model.ConversionRequest) (*model.ConversionResult, error) {
	if !request.FromCurrency.IsValid() || !request.ToCurrency.IsValid() {
		return nil, ErrInvalidCurrency
	}

	if !(request.Amount > 0) || math.IsInf(request.Amount, 0) {
		return nil, ErrInvalidAmount
	}

	rate, err := s.resolver.ResolveRate(ctx, request.FromCurrency, request.ToCurrency)
	if err != nil {
		return nil, err
	}

	result := &model.ConversionResult{
		FromCurrency: request.FromCurrency,
		ToCurrency:   request.ToCurrency,
		FromAmount:   request.Amount,
		ToAmount:     request.Amount * rate.Rate,
		Rate:         rate.Rate,
		Timestamp:    rate.Timestamp,
	}

	s.log.Debug("Converted currency", "from", request.FromCurrency, "to", request.ToCurrency, "amount", request.Amount)
	return result, nil
}
