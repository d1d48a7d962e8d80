// Package forecasthttp exposes the forecast engine over JSON endpoints.
package forecasthttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-fp/meridian-fp/internal/forecast"
	"github.com/meridian-fp/meridian-fp/internal/forecast/report"
	"github.com/meridian-fp/meridian-fp/internal/platform/httpx"
)

// Handler wires the forecast JSON endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *forecast.Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *forecast.Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers the forecast routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/forecast", func(r chi.Router) {
		r.Post("/profit-centres/{id}/runs", h.recalculateProfitCentre)
		r.Post("/companies/{id}/runs", h.recalculateCompany)
		r.Get("/profit-centres/{id}/report", h.profitCentreReport)
		r.Get("/profit-centres/{id}/consultant-revenue", h.consultantRevenue)
		r.Get("/profit-centres/{id}/drilldown", h.drilldown)
	})
}

type runRequest struct {
	FinancialYear int `json:"financial_year" validate:"required,gte=2000,lte=2100"`
}

type runResponse struct {
	RunID          string `json:"run_id"`
	ProfitCentreID int64  `json:"profit_centre_id"`
	FinancialYear  int    `json:"financial_year"`
	RowsWritten    int    `json:"rows_written"`
}

func (h *Handler) recalculateProfitCentre(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CalculateForProfitCentre(r.Context(), id, req.FinancialYear)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, runResponse{
		RunID:          result.RunID.String(),
		ProfitCentreID: result.ProfitCentreID,
		FinancialYear:  result.FinancialYear,
		RowsWritten:    result.RowsWritten,
	})
}

type companyRunResponse struct {
	CompanyID     int64          `json:"company_id"`
	FinancialYear int            `json:"financial_year"`
	Runs          []runResponse  `json:"runs"`
	Failures      []scopeFailure `json:"failures,omitempty"`
}

type scopeFailure struct {
	ProfitCentreID int64  `json:"profit_centre_id"`
	Error          string `json:"error"`
}

func (h *Handler) recalculateCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req runRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CalculateForCompany(r.Context(), id, req.FinancialYear)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := companyRunResponse{CompanyID: result.CompanyID, FinancialYear: result.FinancialYear}
	for _, run := range result.Runs {
		resp.Runs = append(resp.Runs, runResponse{
			RunID:          run.RunID.String(),
			ProfitCentreID: run.ProfitCentreID,
			FinancialYear:  run.FinancialYear,
			RowsWritten:    run.RowsWritten,
		})
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, scopeFailure{ProfitCentreID: f.ProfitCentreID, Error: f.Err.Error()})
	}
	httpx.JSON(w, http.StatusAccepted, resp)
}

func (h *Handler) profitCentreReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fy, ok := queryYear(w, r)
	if !ok {
		return
	}
	data, cells, err := h.service.Preview(r.Context(), id, fy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report.BuildProfitCentreReport(data, cells))
}

func (h *Handler) consultantRevenue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fy, ok := queryYear(w, r)
	if !ok {
		return
	}
	data, _, err := h.service.Preview(r.Context(), id, fy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report.BuildConsultantRevenue(data))
}

func (h *Handler) drilldown(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fy, ok := queryYear(w, r)
	if !ok {
		return
	}
	element := r.URL.Query().Get("element")
	if element == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "element is required")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "month must be a financial month 1-12")
		return
	}
	data, cells, err := h.service.Preview(r.Context(), id, fy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report.BuildDrilldown(data, cells, element, month))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var missing *forecast.MissingAssignmentError
	switch {
	case errors.Is(err, forecast.ErrConcurrentRecalculation):
		httpx.Problem(w, http.StatusConflict, "Recalculation In Progress", err.Error())
	case errors.As(err, &missing):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Missing Assignment", missing.Error())
	case errors.Is(err, forecast.ErrProfitCentreNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("forecast request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	fy, err := strconv.Atoi(r.URL.Query().Get("fy"))
	if err != nil || fy < 2000 || fy > 2100 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "fy must be a financial year")
		return 0, false
	}
	return fy, true
}
