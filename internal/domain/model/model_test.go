package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	for _, bad := range []string{"", "US", "USDT", "U5D", "€UR"} {
		_, err := ParseCurrency(bad)
		assert.ErrorIs(t, err, ErrInvalidCurrency, bad)
	}
}

func TestCodeTable(t *testing.T) {
	table := DefaultCodeTable()

	c, ok := table.Letter(980)
	assert.True(t, ok)
	assert.Equal(t, UAH, c)

	n, ok := table.Numeric(USD)
	assert.True(t, ok)
	assert.Equal(t, 840, n)

	_, ok = table.Letter(1)
	assert.False(t, ok)
	assert.Equal(t, len(ISO4217Numeric), table.Len())
}

func TestCurrencyPair_Canonical(t *testing.T) {
	pair := CurrencyPair{BaseCurrency: USD, TargetCurrency: EUR}

	canonical, flipped := pair.Canonical()
	assert.True(t, flipped)
	assert.Equal(t, CurrencyPair{BaseCurrency: EUR, TargetCurrency: USD}, canonical)

	again, flipped := canonical.Canonical()
	assert.False(t, flipped)
	assert.Equal(t, canonical, again)
}

func TestRateQuote_Mid(t *testing.T) {
	q := RateQuote{Base: USD, Quote: UAH, Buy: 40, Sell: 41}
	assert.InDelta(t, 40.5, q.Mid(), 1e-9)
}

func TestResolvedRate_Inverse(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	r := ResolvedRate{BaseCurrency: USD, TargetCurrency: UAH, Rate: 40, Timestamp: ts, Source: SourcePrimary}

	inv := r.Inverse()
	assert.Equal(t, UAH, inv.BaseCurrency)
	assert.Equal(t, USD, inv.TargetCurrency)
	assert.InDelta(t, 0.025, inv.Rate, 1e-12)
	assert.Equal(t, ts, inv.Timestamp)
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Now()
	e := CacheEntry{ExpiresAt: now.Add(time.Second)}
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(time.Second)))
}

func TestRateUnavailableError(t *testing.T) {
	primary := &ProviderError{Provider: "monobank", Err: errors.New("status 429"), StatusCode: 429}
	fallback := &ProviderError{Provider: "open-er-api", Err: ErrPairNotListed}

	var err error = &RateUnavailableError{
		Pair:     CurrencyPair{BaseCurrency: USD, TargetCurrency: EUR},
		Primary:  primary,
		Fallback: fallback,
	}

	assert.ErrorIs(t, err, ErrRateUnavailable)
	assert.ErrorIs(t, err, ErrPairNotListed)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "monobank", pe.Provider)
	assert.Contains(t, err.Error(), "USD-EUR")
}
