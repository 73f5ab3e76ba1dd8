package model

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	UAH Currency = "UAH"
	GBP Currency = "GBP"
	PLN Currency = "PLN"
)

// ParseCurrency upper-cases and validates a 3-letter code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}

func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < len(c); i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

func (c Currency) String() string {
	return string(c)
}

// CodeTable translates ISO 4217 numeric codes to letter codes.
type CodeTable struct {
	byNumber map[int]Currency
	byLetter map[Currency]int
}

func NewCodeTable(numeric map[int]Currency) CodeTable {
	return CodeTable{
		byNumber: numeric,
		byLetter: lo.Invert(numeric),
	}
}

func (t CodeTable) Letter(numeric int) (Currency, bool) {
	c, ok := t.byNumber[numeric]
	return c, ok
}

func (t CodeTable) Numeric(c Currency) (int, bool) {
	n, ok := t.byLetter[c]
	return n, ok
}

func (t CodeTable) Len() int {
	return len(t.byNumber)
}

// ISO4217Numeric covers the currencies the primary bulk table publishes.
var ISO4217Numeric = map[int]Currency{
	8:   "ALL",
	12:  "DZD",
	32:  "ARS",
	36:  "AUD",
	50:  "BDT",
	51:  "AMD",
	124: "CAD",
	144: "LKR",
	156: "CNY",
	191: "HRK",
	203: "CZK",
	208: "DKK",
	344: "HKD",
	348: "HUF",
	356: "INR",
	360: "IDR",
	376: "ILS",
	392: "JPY",
	398: "KZT",
	410: "KRW",
	414: "KWD",
	422: "LBP",
	458: "MYR",
	484: "MXN",
	498: "MDL",
	554: "NZD",
	578: "NOK",
	634: "QAR",
	643: "RUB",
	682: "SAR",
	702: "SGD",
	710: "ZAR",
	752: "SEK",
	756: "CHF",
	764: "THB",
	784: "AED",
	818: "EGP",
	826: "GBP",
	840: "USD",
	901: "TWD",
	933: "BYN",
	941: "RSD",
	944: "AZN",
	946: "RON",
	949: "TRY",
	975: "BGN",
	978: "EUR",
	980: "UAH",
	981: "GEL",
	985: "PLN",
	986: "BRL",
}

// DefaultCodeTable is built from ISO4217Numeric.
func DefaultCodeTable() CodeTable {
	return NewCodeTable(ISO4217Numeric)
}
