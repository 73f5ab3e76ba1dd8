package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrPairNotListed means the provider answered but has no data for the pair.
	ErrPairNotListed = errors.New("pair not listed by provider")
)

// ProviderError reports that a single provider could not produce a rate.
type ProviderError struct {
	Provider   string
	Pair       CurrencyPair
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Provider, e.Pair, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Pair, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RateUnavailableError is returned when every provider failed for a pair.
type RateUnavailableError struct {
	Pair     CurrencyPair
	Primary  error
	Fallback error
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("%s for %s: primary: %v; fallback: %v", ErrRateUnavailable, e.Pair, e.Primary, e.Fallback)
}

func (e *RateUnavailableError) Unwrap() []error {
	errs := []error{ErrRateUnavailable}
	if e.Primary != nil {
		errs = append(errs, e.Primary)
	}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}
