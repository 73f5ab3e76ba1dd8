package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/internal/metrics"
	"exchange-rate-resolver/pkg/logger"
)

// RateResolver answers pair lookups from the cache, then the primary
// provider, then the fallback provider, in that order.
type RateResolver struct {
	primary  ports.RateProvider
	fallback ports.RateProvider
	cache    ports.RateCache
	ttl      time.Duration
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time

	// inflight collapses concurrent lookups of the same uncached pair
	// into one provider round trip.
	inflight singleflight.Group
}

var _ ports.RateResolver = (*RateResolver)(nil)

func NewRateResolver(
	primary, fallback ports.RateProvider,
	cache ports.RateCache,
	ttl time.Duration,
	m *metrics.Metrics,
	log *logger.Logger,
) *RateResolver {
	return &RateResolver{
		primary:  primary,
		fallback: fallback,
		cache:    cache,
		ttl:      ttl,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func (r *RateResolver) Resolve(ctx context.Context, base, quote model.Currency) (float64, error) {
	rate, err := r.ResolveRate(ctx, base, quote)
	if err != nil {
		return 0, err
	}
	return rate.Rate, nil
}

func (r *RateResolver) ResolveRate(ctx context.Context, base, quote model.Currency) (*model.ResolvedRate, error) {
	if !base.IsValid() || !quote.IsValid() {
		return nil, fmt.Errorf("%w: %q/%q", model.ErrInvalidCurrency, base, quote)
	}

	pair := model.CurrencyPair{BaseCurrency: base, TargetCurrency: quote}

	if pair.IsIdentity() {
		r.metrics.RateResolutionsTotal.WithLabelValues(string(model.SourceIdentity)).Inc()
		return &model.ResolvedRate{
			BaseCurrency:   base,
			TargetCurrency: quote,
			Rate:           1,
			Timestamp:      r.now(),
			Source:         model.SourceIdentity,
		}, nil
	}

	if rate, found := r.cachedRate(ctx, pair); found {
		return rate, nil
	}

	// Both directions share one flight, as they share one cache entry. The
	// flight outlives any single caller, so it runs detached from the
	// caller's cancellation and is bounded by the provider timeouts.
	canonical, _ := pair.Canonical()
	flightCtx := context.WithoutCancel(ctx)
	ch := r.inflight.DoChan(canonical.String(), func() (interface{}, error) {
		// a flight that finished between our miss and this call has
		// already populated the cache
		if rate, found := r.cache.Get(flightCtx, pair); found {
			rate.Source = model.SourceCache
			return rate, nil
		}
		return r.fetch(flightCtx, pair)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	if res.Shared {
		r.log.Debug("Joined in-flight rate resolution", "pair", pair.String())
	}
	if res.Err != nil {
		return nil, res.Err
	}

	rate := *res.Val.(*model.ResolvedRate)
	if rate.Pair() != pair {
		rate = rate.Inverse()
	}
	return &rate, nil
}

func (r *RateResolver) cachedRate(ctx context.Context, pair model.CurrencyPair) (*model.ResolvedRate, bool) {
	rate, found := r.cache.Get(ctx, pair)
	if !found {
		r.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	r.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	r.metrics.RateResolutionsTotal.WithLabelValues(string(model.SourceCache)).Inc()
	r.log.Debug("Exchange rate found in cache", "pair", pair.String())

	rate.Source = model.SourceCache
	return rate, true
}

func (r *RateResolver) fetch(ctx context.Context, pair model.CurrencyPair) (*model.ResolvedRate, error) {
	value, primaryErr := r.call(ctx, r.primary, pair)
	source := model.SourcePrimary

	if primaryErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.log.Warn("Primary provider failed, trying fallback",
			"pair", pair.String(), "provider", r.primary.Name(), "error", primaryErr)

		var fallbackErr error
		value, fallbackErr = r.call(ctx, r.fallback, pair)
		if fallbackErr != nil {
			r.metrics.RateResolutionsTotal.WithLabelValues("unavailable").Inc()
			r.log.Error("Exchange rate unavailable from all providers",
				"pair", pair.String(), "primary_error", primaryErr, "fallback_error", fallbackErr)

			return nil, &model.RateUnavailableError{
				Pair:     pair,
				Primary:  primaryErr,
				Fallback: fallbackErr,
			}
		}
		source = model.SourceFallback
	}

	rate := &model.ResolvedRate{
		BaseCurrency:   pair.BaseCurrency,
		TargetCurrency: pair.TargetCurrency,
		Rate:           value,
		Timestamp:      r.now(),
		Source:         source,
	}

	if err := r.cache.Set(ctx, rate, r.ttl); err != nil {
		r.log.Error("Failed to cache exchange rate", "error", err, "pair", pair.String())
	}

	r.metrics.RateResolutionsTotal.WithLabelValues(string(source)).Inc()
	r.log.Info("Exchange rate resolved", "pair", pair.String(), "rate", value, "source", source)

	return rate, nil
}

func (r *RateResolver) call(ctx context.Context, provider ports.RateProvider, pair model.CurrencyPair) (float64, error) {
	start := time.Now()
	value, err := provider.FetchRate(ctx, pair)
	r.metrics.ProviderCallDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())

	if err == nil && !(value > 0) {
		err = &model.ProviderError{
			Provider: provider.Name(),
			Pair:     pair,
			Err:      fmt.Errorf("non-positive rate %v", value),
		}
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.metrics.ProviderCallsTotal.WithLabelValues(provider.Name(), outcome).Inc()

	return value, err
}
