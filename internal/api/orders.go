package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/export"
	"github.com/adiga-code/numerology/internal/logging"
	"github.com/adiga-code/numerology/internal/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	dateLayout        = "2006-01-02"
	defaultExportDays = 30
	maxExportDays     = 366
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *HTTPServer) handleOrder(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("order")
	if s.deps.Orders == nil {
		writeError(w, http.StatusServiceUnavailable, "orders are not configured")
		return
	}

	externalID := strings.TrimSpace(chi.URLParam(r, "externalID"))
	if externalID == "" {
		writeError(w, http.StatusBadRequest, "external id is required")
		return
	}

	order, err := s.deps.Orders.GetOrderByExternalID(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		logging.Ctx(r.Context(), s.logger).Error().Err(err).Str("external_id", externalID).Msg("Load order failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	details, err := s.deps.Orders.GetOrderDetails(r.Context(), order.ID)
	if err != nil {
		logging.Ctx(r.Context(), s.logger).Error().Err(err).Int64("order_id", order.ID).Msg("Load order details failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleExport returns orders created in [from, to) as xlsx. Dates are
// YYYY-MM-DD; to is inclusive as a calendar day.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if s.deps.Orders == nil {
		writeError(w, http.StatusServiceUnavailable, "orders are not configured")
		return
	}

	from, to, err := parseRange(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := s.deps.Orders.OrdersBetween(r.Context(), from, to)
	if err != nil {
		logging.Ctx(r.Context(), s.logger).Error().Err(err).Msg("Load orders for export failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	data, err := export.Orders(orders, s.deps.Catalog, from, to)
	if err != nil {
		logging.Ctx(r.Context(), s.logger).Error().Err(err).Msg("Build export failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	to := today.AddDate(0, 0, 1)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to; expected YYYY-MM-DD")
		}
		to = d.AddDate(0, 0, 1)
	}

	from := to.AddDate(0, 0, -defaultExportDays)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from; expected YYYY-MM-DD")
		}
		from = d
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	if to.Sub(from) > maxExportDays*24*time.Hour {
		return time.Time{}, time.Time{}, errors.New("range is too long")
	}
	return from, to, nil
}
