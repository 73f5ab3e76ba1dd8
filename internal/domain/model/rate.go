package model

import (
	"fmt"
	"time"
)

type RateSource string

const (
	SourceIdentity RateSource = "identity"
	SourceCache    RateSource = "cache"
	SourcePrimary  RateSource = "primary"
	SourceFallback RateSource = "fallback"
)

type CurrencyPair struct {
	BaseCurrency   Currency `json:"base_currency"`
	TargetCurrency Currency `json:"target_currency"`
}

func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s-%s", p.BaseCurrency, p.TargetCurrency)
}

func (p CurrencyPair) Inverse() CurrencyPair {
	return CurrencyPair{BaseCurrency: p.TargetCurrency, TargetCurrency: p.BaseCurrency}
}

func (p CurrencyPair) IsIdentity() bool {
	return p.BaseCurrency == p.TargetCurrency
}

// Canonical orders the pair alphabetically. The second result reports
// whether p had to be flipped.
func (p CurrencyPair) Canonical() (CurrencyPair, bool) {
	if p.TargetCurrency < p.BaseCurrency {
		return p.Inverse(), true
	}
	return p, false
}

// RateQuote is one row of the primary provider's bulk table.
type RateQuote struct {
	Base  Currency
	Quote Currency
	Buy   float64
	Sell  float64
	Date  time.Time
}

func (q RateQuote) Mid() float64 {
	return (q.Buy + q.Sell) / 2
}

// ResolvedRate means 1 BaseCurrency = Rate TargetCurrency.
type ResolvedRate struct {
	BaseCurrency   Currency   `json:"base_currency"`
	TargetCurrency Currency   `json:"target_currency"`
	Rate           float64    `json:"rate"`
	Timestamp      time.Time  `json:"timestamp"`
	Source         RateSource `json:"source"`
}

func (r ResolvedRate) Pair() CurrencyPair {
	return CurrencyPair{BaseCurrency: r.BaseCurrency, TargetCurrency: r.TargetCurrency}
}

// Inverse flips the direction. The caller guarantees Rate > 0.
func (r ResolvedRate) Inverse() ResolvedRate {
	return ResolvedRate{
		BaseCurrency:   r.TargetCurrency,
		TargetCurrency: r.BaseCurrency,
		Rate:           1 / r.Rate,
		Timestamp:      r.Timestamp,
		Source:         r.Source,
	}
}

type CacheEntry struct {
	Rate      ResolvedRate `json:"rate"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type ConversionRequest struct {
	FromCurrency Currency `json:"from_currency"`
	ToCurrency   Currency `json:"to_currency"`
	Amount       float64  `json:"amount"`
}

type ConversionResult struct {
	FromCurrency Currency  `json:"from_currency"`
	ToCurrency   Currency  `json:"to_currency"`
	FromAmount   float64   `json:"from_amount"`
	ToAmount     float64   `json:"to_amount"`
	Rate         float64   `json:"rate"`
	Timestamp    time.Time `json:"timestamp"`
}
