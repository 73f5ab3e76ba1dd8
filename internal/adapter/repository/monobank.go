package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/pkg/logger"
)

const MonobankProviderName = "monobank"

var (
	errUnexpectedPayload = errors.New("unexpected payload shape")
	errEmptyTable        = errors.New("bulk table has no usable quotes")
)

// MonobankConfig describes the primary bulk-table source. BaseURL is the
// forwarding proxy prefix; the table lives at BaseURL + "/bank/currency".
type MonobankConfig struct {
	BaseURL     string
	Token       string
	TokenHeader string
	Timeout     time.Duration
	// TableTTL keeps the last fetched table around; zero fetches every time.
	TableTTL time.Duration
	Pivot    model.Currency
	Codes    model.CodeTable
	Retry    RetryPolicy
}

type MonobankAPI struct {
	cfg    MonobankConfig
	client *httpClient
	log    *logger.Logger
	now    func() time.Time

	group     singleflight.Group
	mutex     sync.RWMutex
	table     []model.RateQuote
	fetchedAt time.Time
}

var _ ports.RateProvider = (*MonobankAPI)(nil)

type monobankQuote struct {
	CurrencyCodeA int     `json:"currencyCodeA"`
	CurrencyCodeB int     `json:"currencyCodeB"`
	Date          int64   `json:"date"`
	RateBuy       float64 `json:"rateBuy"`
	RateSell      float64 `json:"rateSell"`
	RateCross     float64 `json:"rateCross"`
}

// proxyErrorBody is what the forwarding proxy answers with when upstream
// is rate limited or returns something that is not JSON.
type proxyErrorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func NewMonobankAPI(cfg MonobankConfig, log *logger.Logger) *MonobankAPI {
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "X-Token"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &MonobankAPI{
		cfg:    cfg,
		client: newHTTPClient(MonobankProviderName, cfg.Timeout, cfg.Retry, log),
		log:    log,
		now:    time.Now,
	}
}

func (m *MonobankAPI) Name() string {
	return MonobankProviderName
}

func (m *MonobankAPI) FetchRate(ctx context.Context, pair model.CurrencyPair) (float64, error) {
	if pair.IsIdentity() {
		return 1, nil
	}

	for _, c := range []model.Currency{pair.BaseCurrency, pair.TargetCurrency} {
		if _, ok := m.cfg.Codes.Numeric(c); !ok {
			return 0, m.fail(pair, 0, fmt.Errorf("%w: %s has no numeric code", model.ErrPairNotListed, c))
		}
	}

	table, err := m.fetchTable(ctx)
	if err != nil {
		return 0, m.fail(pair, statusCodeOf(err), err)
	}

	rate, err := m.extractRate(table, pair)
	if err != nil {
		return 0, m.fail(pair, 0, err)
	}

	return rate, nil
}

func (m *MonobankAPI) fail(pair model.CurrencyPair, status int, err error) error {
	m.log.Warn("Primary provider failed", "pair", pair.String(), "status", status, "error", err)
	return &model.ProviderError{
		Provider:   MonobankProviderName,
		Pair:       pair,
		StatusCode: status,
		Err:        err,
	}
}

func (m *MonobankAPI) fetchTable(ctx context.Context) ([]model.RateQuote, error) {
	if table, ok := m.memoizedTable(); ok {
		return table, nil
	}

	v, err, shared := m.group.Do("table", func() (interface{}, error) {
		if table, ok := m.memoizedTable(); ok {
			return table, nil
		}

		table, err := m.downloadTable(ctx)
		if err != nil {
			return nil, err
		}

		if m.cfg.TableTTL > 0 {
			m.mutex.Lock()
			m.table = table
			m.fetchedAt = m.now()
			m.mutex.Unlock()
		}

		return table, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		m.log.Debug("Shared in-flight bulk table fetch")
	}

	return v.([]model.RateQuote), nil
}

func (m *MonobankAPI) memoizedTable() ([]model.RateQuote, bool) {
	if m.cfg.TableTTL <= 0 {
		return nil, false
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.table == nil || m.now().Sub(m.fetchedAt) >= m.cfg.TableTTL {
		return nil, false
	}
	return m.table, true
}

func (m *MonobankAPI) downloadTable(ctx context.Context) ([]model.RateQuote, error) {
	var headers map[string]string
	if m.cfg.Token != "" {
		headers = map[string]string{m.cfg.TokenHeader: m.cfg.Token}
	}

	body, err := m.client.get(ctx, m.cfg.BaseURL+"/bank/currency", headers)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			if msg, ok := parseProxyError(statusErr.Body); ok {
				return nil, fmt.Errorf("%w: %s", err, msg)
			}
		}
		return nil, err
	}

	return m.parseTable(body)
}

func parseProxyError(body []byte) (string, bool) {
	var pe proxyErrorBody
	if err := json.Unmarshal(body, &pe); err != nil || pe.Error == "" {
		return "", false
	}
	return pe.Error, true
}

func (m *MonobankAPI) parseTable(body []byte) ([]model.RateQuote, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", errUnexpectedPayload)
	}

	if trimmed[0] != '[' {
		if msg, ok := parseProxyError(trimmed); ok {
			return nil, fmt.Errorf("proxy reported failure: %s", msg)
		}
		return nil, fmt.Errorf("%w: expected a JSON array", errUnexpectedPayload)
	}

	var rows []monobankQuote
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	table := make([]model.RateQuote, 0, len(rows))
	for _, row := range rows {
		base, okA := m.cfg.Codes.Letter(row.CurrencyCodeA)
		quote, okB := m.cfg.Codes.Letter(row.CurrencyCodeB)
		if !okA || !okB {
			continue
		}

		buy, sell := row.RateBuy, row.RateSell
		if !(buy > 0 && sell > 0) {
			if !(row.RateCross > 0) {
				continue
			}
			buy, sell = row.RateCross, row.RateCross
		}

		table = append(table, model.RateQuote{
			Base:  base,
			Quote: quote,
			Buy:   buy,
			Sell:  sell,
			Date:  time.Unix(row.Date, 0).UTC(),
		})
	}

	if len(table) == 0 {
		return nil, errEmptyTable
	}

	return table, nil
}

// extractRate resolves a direct quote, its inverse, or a cross rate
// through the pivot currency.
func (m *MonobankAPI) extractRate(table []model.RateQuote, pair model.CurrencyPair) (float64, error) {
	index := make(map[model.CurrencyPair]model.RateQuote, len(table))
	for _, q := range table {
		key := model.CurrencyPair{BaseCurrency: q.Base, TargetCurrency: q.Quote}
		if _, exists := index[key]; !exists {
			index[key] = q
		}
	}

	if rate, ok := lookup(index, pair); ok {
		return checked(rate, pair)
	}

	pivot := m.cfg.Pivot
	if pivot == "" {
		return 0, fmt.Errorf("%w: no direct quote and no pivot configured", model.ErrPairNotListed)
	}

	basePivot, ok := lookup(index, model.CurrencyPair{BaseCurrency: pair.BaseCurrency, TargetCurrency: pivot})
	if !ok {
		return 0, fmt.Errorf("%w: no %s quote against pivot %s", model.ErrPairNotListed, pair.BaseCurrency, pivot)
	}
	quotePivot, ok := lookup(index, model.CurrencyPair{BaseCurrency: pair.TargetCurrency, TargetCurrency: pivot})
	if !ok {
		return 0, fmt.Errorf("%w: no %s quote against pivot %s", model.ErrPairNotListed, pair.TargetCurrency, pivot)
	}

	return checked(basePivot/quotePivot, pair)
}

func lookup(index map[model.CurrencyPair]model.RateQuote, pair model.CurrencyPair) (float64, bool) {
	if pair.IsIdentity() {
		return 1, true
	}
	if q, ok := index[pair]; ok {
		return q.Mid(), true
	}
	if q, ok := index[pair.Inverse()]; ok {
		return 1 / q.Mid(), true
	}
	return 0, false
}

func checked(rate float64, pair model.CurrencyPair) (float64, error) {
	if !(rate > 0) || math.IsInf(rate, 0) {
		return 0, fmt.Errorf("derived non-positive rate %v for %s", rate, pair)
	}
	return rate, nil
}
