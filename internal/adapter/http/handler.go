package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"exchange-rate-resolver/internal/domain/model"
	"exchange-rate-resolver/internal/domain/ports"
	"exchange-rate-resolver/internal/metrics"
	"exchange-rate-resolver/internal/service"
	"exchange-rate-resolver/pkg/logger"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Handler struct {
	service ports.ExchangeService
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(service ports.ExchangeService, log *logger.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		log:     log,
		metrics: metrics,
	}
}

func parsePair(r *http.Request) (model.Currency, model.Currency, error) {
	from, err := model.ParseCurrency(r.URL.Query().Get("from"))
	if err != nil {
		return "", "", err
	}
	to, err := model.ParseCurrency(r.URL.Query().Get("to"))
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

func (h *Handler) GetLatestRateHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.RateRequestsTotal.Inc()

	if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameters: from and to")
		return
	}

	from, to, err := parsePair(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	rate, err := h.service.GetLatestRate(r.Context(), from, to)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, rate)
}

func (h *Handler) ConvertCurrencyHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.ConversionRequestsTotal.Inc()

	if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameters: from and to")
		return
	}

	from, to, err := parsePair(r)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	amount := 1.0
	if amountStr := r.URL.Query().Get("amount"); amountStr != "" {
		amount, err = strconv.ParseFloat(amountStr, 64)
		if err != nil {
			h.sendErrorResponse(w, http.StatusBadRequest, "invalid amount parameter")
			return
		}
	}

	result, err := h.service.ConvertCurrency(r.Context(), model.ConversionRequest{
		FromCurrency: from,
		ToCurrency:   to,
		Amount:       amount,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, result)
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, Response{Success: false, Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorMessage := "internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidCurrency):
		statusCode = http.StatusBadRequest
		errorMessage = "invalid currency"
	case errors.Is(err, service.ErrInvalidAmount):
		statusCode = http.StatusBadRequest
		errorMessage = "invalid amount"
	case errors.Is(err, service.ErrRateUnavailable):
		statusCode = http.StatusServiceUnavailable
		errorMessage = "exchange rate unavailable"
	}

	h.log.Error("Service error", "error", err, "status_code", statusCode)
	h.sendErrorResponse(w, statusCode, errorMessage)
}
