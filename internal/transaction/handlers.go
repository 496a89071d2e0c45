package transaction

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes transaction endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Finalize handles POST /api/v1/transactions.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var in FinalizeInput
	if err := common.DecodeAndValidate(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.Finalize(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": result})
}

// Get handles GET /api/v1/transactions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// List handles GET /api/v1/transactions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	page, limit := common.ParsePagination(r, 20, 100)
	result, err := h.service.List(r.Context(), filter, page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total},
	})
}

// MarkPaid handles POST /api/v1/transactions/{id}/pay.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// ExportCoretax handles GET /api/v1/exports/coretax?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) ExportCoretax(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		h.writeError(w, badDate("from"))
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		h.writeError(w, badDate("to"))
		return
	}
	// The export range is inclusive of the "to" day.
	rows, err := h.service.ExportCoretax(r.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	var filter ListFilter
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		from, err := parseDate(v)
		if err != nil {
			return filter, badDate("from")
		}
		filter.From = &from
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		to, err := parseDate(v)
		if err != nil {
			return filter, badDate("to")
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		filter.Status = PaymentStatus(strings.ToUpper(v))
	}
	return filter, nil
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(value))
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
