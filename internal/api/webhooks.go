package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/logging"
	"github.com/adiga-code/numerology/internal/metrics"
	"github.com/adiga-code/numerology/internal/payment"
	"github.com/adiga-code/numerology/internal/provider"
	"github.com/adiga-code/numerology/internal/service"
)

const (
	statusOK      = "ok"
	statusIgnored = "ignored"
)

func (s *HTTPServer) handleGenerationResult(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("generation_result")
	if s.deps.Callbacks == nil {
		writeError(w, http.StatusServiceUnavailable, "callbacks are not configured")
		return
	}
	if !tokenEqual(s.deps.GenerationToken, r.Header.Get(generationTokenHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var result provider.Result
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&result); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if result.OrderID <= 0 {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	log := logging.Ctx(r.Context(), s.logger)
	err := s.deps.Callbacks.OnCallback(r.Context(), result)

	var derr *service.DeliveryError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": statusOK})
	case errors.As(err, &derr):
		// отчет готов, пользователю уже ушло сообщение о сбое отправки
		log.Warn().Err(err).Int64("order_id", result.OrderID).Msg("Report completed but not delivered")
		writeJSON(w, http.StatusOK, map[string]string{"status": statusOK})
	case errors.Is(err, database.ErrConcurrentModification):
		writeJSON(w, http.StatusOK, map[string]string{"status": statusIgnored})
	case errors.Is(err, service.ErrInvalidResult):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		log.Error().Err(err).Int64("order_id", result.OrderID).Msg("Generation callback failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) handleGatewayNotification(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_gateway")
	if s.deps.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "gateway is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	n, err := payment.ParseNotification(s.deps.WebhookSecret, body, r.Header.Get(payment.SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := logging.Ctx(r.Context(), s.logger)
	err = s.deps.Payments.HandleGatewayNotification(r.Context(), n)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": statusOK})
	case errors.Is(err, database.ErrConcurrentModification):
		writeJSON(w, http.StatusOK, map[string]string{"status": statusIgnored})
	case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrInvalidPayload):
		log.Warn().Err(err).Str("payment_id", n.Object.ID).Msg("Gateway notification rejected")
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		log.Error().Err(err).Str("payment_id", n.Object.ID).Msg("Gateway notification failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
