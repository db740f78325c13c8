// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/warmup-engine/internal/errors"
	"github.com/unclebandit/warmup-engine/internal/model"
	"github.com/unclebandit/warmup-engine/internal/service"
)

// CampaignHandler serves the read-only reporting endpoints.
type CampaignHandler struct {
	Reports *service.ReportService
	Logger  *zap.Logger
}

// NewCampaignHandler creates a new CampaignHandler with the given report service
func NewCampaignHandler(reports *service.ReportService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{Reports: reports, Logger: logger}
}

func (h *CampaignHandler) Routes(r chi.Router) {
	r.Get("/campaigns/{id}/stats", h.GetCampaignStatsHandler)
	r.Get("/campaigns/{id}/executions", h.GetExecutionHistoryHandler)
	r.Get("/sessions/{id}/delivery-stats", h.GetDeliveryStatsHandler)
	r.Get("/dashboard", h.GetDashboardHandler)
	r.Get("/health-report", h.GetHealthReportHandler)
}

func (h *CampaignHandler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status := appErrors.HTTPStatus(err)
		if status == http.StatusInternalServerError {
			h.Logger.Error("report failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *CampaignHandler) GetCampaignStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Reports.GetCampaignStats(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, r, stats, err)
}

// GetDeliveryStatsHandler accepts ?days=N, default 30.
func (h *CampaignHandler) GetDeliveryStatsHandler(w http.ResponseWriter, r *http.Request) {
	days := 0
	if s := r.URL.Query().Get("days"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d < 1 {
			badRequest(w, "invalid days")
			return
		}
		days = d
	}
	stats, err := h.Reports.GetDeliveryStats(r.Context(), chi.URLParam(r, "id"), days)
	h.respond(w, r, stats, err)
}

func (h *CampaignHandler) GetDashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reports.GetDashboard(r.Context(), r.Header.Get("X-Organization-ID"))
	h.respond(w, r, d, err)
}

func (h *CampaignHandler) GetHealthReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reports.GetHealthReport(r.Context(), r.Header.Get("X-Organization-ID"))
	h.respond(w, r, report, err)
}

// GetExecutionHistoryHandler returns a page of executions. Query parameters:
// status, execution_type, from_session_id, to_session_id, start_date and
// end_date (RFC 3339), page, limit.
func (h *CampaignHandler) GetExecutionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.HistoryFilter{
		Status:        model.ExecutionStatus(q.Get("status")),
		ExecutionType: model.ExecutionType(q.Get("execution_type")),
		FromSessionID: q.Get("from_session_id"),
		ToSessionID:   q.Get("to_session_id"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	for key, dst := range map[string]**time.Time{"start_date": &f.Start, "end_date": &f.End} {
		s := q.Get(key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(w, "invalid "+key)
			return
		}
		*dst = &t
	}

	history, err := h.Reports.GetExecutionHistory(r.Context(), chi.URLParam(r, "id"), f)
	h.respond(w, r, history, err)
}
