package analytics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes the sales report endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig groups Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// DailySales handles GET /analytics/daily-sales.
func (h *Handler) DailySales(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rows, err := h.service.DailySales(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// TopProducts handles GET /analytics/top-products.
func (h *Handler) TopProducts(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	rows, err := h.service.TopProducts(r.Context(), from, to, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// parseRange reads from/to query dates; the range is inclusive of the "to"
// day. Without parameters it covers the last 30 days.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	fromRaw := strings.TrimSpace(q.Get("from"))
	toRaw := strings.TrimSpace(q.Get("to"))
	if fromRaw == "" && toRaw == "" {
		now := time.Now()
		return now.AddDate(0, 0, -30), now, nil
	}
	from, err := time.Parse("2006-01-02", fromRaw)
	if err != nil {
		return time.Time{}, time.Time{}, badDate("from")
	}
	to, err := time.Parse("2006-01-02", toRaw)
	if err != nil {
		return time.Time{}, time.Time{}, badDate("to")
	}
	return from, to.AddDate(0, 0, 1), nil
}

func badDate(field string) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    field + " must be a date in YYYY-MM-DD form",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, err)
}
