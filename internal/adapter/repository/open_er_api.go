package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/pkg/logger"
)

const OpenERAPIProviderName = "open-er-api"

type OpenERAPI struct {
	baseURL string
	client  *httpClient
	log     *logger.Logger
}

var _ ports.RateProvider = (*OpenERAPI)(nil)

type openERAPIResponse struct {
	Result    string             `json:"result"`
	ErrorType string             `json:"error-type,omitempty"`
	BaseCode  string             `json:"base_code"`
	UpdatedAt int64              `json:"time_last_update_unix"`
	Rates     map[string]float64 `json:"rates"`
}

func NewOpenERAPI(baseURL string, timeout time.Duration, policy RetryPolicy, log *logger.Logger) *OpenERAPI {
	return &OpenERAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(OpenERAPIProviderName, timeout, policy, log),
		log:     log,
	}
}

func (o *OpenERAPI) Name() string {
	return OpenERAPIProviderName
}

// FetchRate returns rates[quote] from the per-base table, read as
// "1 base = rate quote".
func (o *OpenERAPI) FetchRate(ctx context.Context, pair model.CurrencyPair) (float64, error) {
	if pair.IsIdentity() {
		return 1, nil
	}

	endpoint := fmt.Sprintf("%s/v6/latest/%s", o.baseURL, url.PathEscape(pair.BaseCurrency.String()))

	body, err := o.client.get(ctx, endpoint, nil)
	if err != nil {
		return 0, o.fail(pair, statusCodeOf(err), err)
	}

	var apiResp openERAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return 0, o.fail(pair, 0, fmt.Errorf("failed to decode response: %w", err))
	}

	if apiResp.Result == "error" {
		return 0, o.fail(pair, 0, fmt.Errorf("API reported failure: %s", apiResp.ErrorType))
	}

	if apiResp.Rates == nil {
		return 0, o.fail(pair, 0, fmt.Errorf("%w: no rates object", errUnexpectedPayload))
	}

	rate, exists := apiResp.Rates[pair.TargetCurrency.String()]
	if !exists {
		return 0, o.fail(pair, 0, fmt.Errorf("%w: rate not found for currency: %s", model.ErrPairNotListed, pair.TargetCurrency))
	}
	if !(rate > 0) {
		return 0, o.fail(pair, 0, fmt.Errorf("non-positive rate %v for currency: %s", rate, pair.TargetCurrency))
	}

	return rate, nil
}

func (o *OpenERAPI) fail(pair model.CurrencyPair, status int, err error) error {
	o.log.Warn("Fallback provider failed", "pair", pair.String(), "status", status, "error", err)
	return &model.ProviderError{
		Provider:   OpenERAPIProviderName,
		Pair:       pair,
		StatusCode: status,
		Err:        err,
	}
}
