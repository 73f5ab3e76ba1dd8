package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange-rate-resolver/internal/adapter/cache"
	"exchange-rate-resolver/internal/adapter/repository"
	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/metrics"
	"exchange-rate-resolver/pkg/logger"
)

type upstream struct {
	srv    *httptest.Server
	calls  atomic.Int32
	status atomic.Int32
	body   atomic.Value
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()
	u := &upstream{}
	u.set(status, body)
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(u.status.Load()))
		_, _ = w.Write([]byte(u.body.Load().(string)))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) set(status int, body string) {
	u.status.Store(int32(status))
	u.body.Store(body)
}

type stack struct {
	resolver *RateResolver
	primary  *upstream
	fallback *upstream
}

func newStack(t *testing.T, primary, fallback *upstream, ttl time.Duration) *stack {
	t.Helper()
	log := logger.NewNop()

	mono := repository.NewMonobankAPI(repository.MonobankConfig{
		BaseURL: primary.srv.URL,
		Timeout: 2 * time.Second,
		Pivot:   model.UAH,
		Codes:   model.DefaultCodeTable(),
	}, log)
	erAPI := repository.NewOpenERAPI(fallback.srv.URL, 2*time.Second, repository.RetryPolicy{}, log)

	resolver := NewRateResolver(mono, erAPI, cache.NewMemoryCache(log), ttl,
		metrics.NewMetrics(prometheus.NewRegistry()), log)

	return &stack{resolver: resolver, primary: primary, fallback: fallback}
}

const (
	usdUAHTable = `[{"currencyCodeA": 840, "currencyCodeB": 980, "date": 1714564800, "rateBuy": 40.0, "rateSell": 41.0}]`
	crossTable  = `[
		{"currencyCodeA": 840, "currencyCodeB": 980, "date": 1714564800, "rateBuy": 40, "rateSell": 40},
		{"currencyCodeA": 978, "currencyCodeB": 980, "date": 1714564800, "rateBuy": 44, "rateSell": 44}
	]`
	fallbackEUR = `{"result": "success", "base_code": "USD", "rates": {"EUR": 0.9}}`
)

func TestResolve_SameCurrencyIssuesNoCalls(t *testing.T) {
	s := newStack(t, newUpstream(t, http.StatusOK, usdUAHTable), newUpstream(t, http.StatusOK, fallbackEUR), time.Minute)

	for _, code := range []model.Currency{model.USD, model.UAH, model.EUR, "JPY", "XAU"} {
		rate, err := s.resolver.Resolve(context.Background(), code, code)
		require.NoError(t, err)
		assert.Equal(t, 1.0, rate)
	}

	assert.EqualValues(t, 0, s.primary.calls.Load())
	assert.EqualValues(t, 0, s.fallback.calls.Load())
}

func TestResolve_DirectPair(t *testing.T) {
	s := newStack(t, newUpstream(t, http.StatusOK, usdUAHTable), newUpstream(t, http.StatusOK, fallbackEUR), time.Minute)

	rate, err := s.resolver.Resolve(context.Background(), model.USD, model.UAH)
	require.NoError(t, err)
	assert.Equal(t, 40.5, rate)
}

func TestResolve_CrossRate(t *testing.T) {
	s := newStack(t, newUpstream(t, http.StatusOK, crossTable), newUpstream(t, http.StatusOK, fallbackEUR), time.Minute)

	rate, err := s.resolver.Resolve(context.Background(), model.USD, model.EUR)
	require.NoError(t, err)
	assert.InDelta(t, 0.909, rate, 1e-3)
	assert.EqualValues(t, 0, s.fallback.calls.Load())
}

func TestResolve_CacheHitSuppressesNetwork(t *testing.T) {
	s := newStack(t, newUpstream(t, http.StatusOK, usdUAHTable), newUpstream(t, http.StatusOK, fallbackEUR), time.Minute)
	ctx := context.Background()

	first, err := s.resolver.ResolveRate(ctx, model.USD, model.UAH)
	require.NoError(t, err)
	second, err := s.resolver.ResolveRate(ctx, model.USD, model.UAH)
	require.NoError(t, err)

	assert.EqualValues(t, 1, s.primary.calls.Load())
	assert.Equal(t, model.SourcePrimary, first.Source)
	assert.Equal(t, model.SourceCache, second.Source)
	assert.Equal(t, first.Rate, second.Rate)
	assert.True(t, first.Timestamp.Equal(second.Timestamp))

	// the reverse direction is served by the same entry
	inverse, err := s.resolver.Resolve(ctx, model.UAH, model.USD)
	require.NoError(t, err)
	assert.InDelta(t, 1/40.5, inverse, 1e-12)
	assert.EqualValues(t, 1, s.primary.calls.Load())
}

func TestResolve_FallbackEngagement(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "non-success status", status: http.StatusInternalServerError, body: `{"error": "upstream down", "status": 500}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error": "Too many requests", "status": 429}`},
		{name: "unparsable payload", status: http.StatusOK, body: `not json`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStack(t, newUpstream(t, tc.status, tc.body), newUpstream(t, http.StatusOK, fallbackEUR), time.Minute)

			rate, err := s.resolver.Resolve(context.Background(), model.USD, model.EUR)
			require.NoError(t, err)
			assert.Equal(t, 0.9, rate)
			assert.EqualValues(t, 1, s.primary.calls.Load())
			assert.EqualValues(t, 1, s.fallback.calls.Load())
		})
	}
}

func TestResolve_PrimaryTransportErrorEngagesFallback(t *testing.T) {
	primary := newUpstream(t, http.StatusOK, usdUAHTable)
	s := newStack(t, primary, newUpstream(t, http.StatusOK, fallbackEUR), time.Minute)
	primary.srv.Close()

	rate, err := s.resolver.Resolve(context.Background(), model.USD, model.EUR)
	require.NoError(t, err)
	assert.Equal(t, 0.9, rate)
	assert.EqualValues(t, 1, s.fallback.calls.Load())
}

func TestResolve_TotalFailure(t *testing.T) {
	s := newStack(t,
		newUpstream(t, http.StatusTooManyRequests, `{"error": "Too many requests", "status": 429}`),
		newUpstream(t, http.StatusOK, `{"result": "success", "rates": {"GBP": 0.8}}`),
		time.Minute,
	)

	_, err := s.resolver.Resolve(context.Background(), model.USD, model.EUR)
	require.Error(t, err)

	var unavailable *model.RateUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.ErrorIs(t, unavailable.Fallback, model.ErrPairNotListed)

	var pe *model.ProviderError
	require.True(t, errors.As(unavailable.Primary, &pe))
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)

	assert.Equal(t, int32(2), s.primary.calls.Load()+s.fallback.calls.Load())
	assert.EqualValues(t, 1, s.primary.calls.Load())
}

func TestResolve_FailureIsNotCached(t *testing.T) {
	primary := newUpstream(t, http.StatusInternalServerError, `{"error": "down", "status": 500}`)
	fallback := newUpstream(t, http.StatusInternalServerError, ``)
	s := newStack(t, primary, fallback, time.Minute)
	ctx := context.Background()

	_, err := s.resolver.Resolve(ctx, model.USD, model.UAH)
	require.Error(t, err)

	primary.set(http.StatusOK, usdUAHTable)
	rate, err := s.resolver.Resolve(ctx, model.USD, model.UAH)
	require.NoError(t, err)
	assert.Equal(t, 40.5, rate)
	assert.EqualValues(t, 2, primary.calls.Load())
}

func TestResolve_IdempotentWithinTTL(t *testing.T) {
	primary := newUpstream(t, http.StatusOK, usdUAHTable)
	s := newStack(t, primary, newUpstream(t, http.StatusOK, fallbackEUR), 150*time.Millisecond)
	ctx := context.Background()

	first, err := s.resolver.Resolve(ctx, model.USD, model.UAH)
	require.NoError(t, err)

	// upstream moves but the cached value must not
	primary.set(http.StatusOK, `[{"currencyCodeA": 840, "currencyCodeB": 980, "date": 1714564900, "rateBuy": 42.0, "rateSell": 42.0}]`)
	for i := 0; i < 5; i++ {
		again, err := s.resolver.Resolve(ctx, model.USD, model.UAH)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.EqualValues(t, 1, primary.calls.Load())

	time.Sleep(200 * time.Millisecond)

	refreshed, err := s.resolver.Resolve(ctx, model.USD, model.UAH)
	require.NoError(t, err)
	assert.Equal(t, 42.0, refreshed)
	assert.EqualValues(t, 2, primary.calls.Load())
}
