package reconciliation

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	reconmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/payment-orchestration/internal/transport"
	"github.com/frahmantamala/payment-orchestration/pkg/logger"
)

type ServiceAPI interface {
	Reconcile(ctx context.Context, date time.Time) (*reconmodel.Report, error)
	GetReport(ctx context.Context, date time.Time) (*reconmodel.Report, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

// RunReconciliation triggers an on-demand run. The date query
// parameter (YYYY-MM-DD) defaults to yesterday, matching the scheduled
// behavior.
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	date := time.Now().AddDate(0, 0, -1)
	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			h.Logger.Error("RunReconciliation: invalid date", "date", dateStr)
			h.WriteError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
			return
		}
		date = parsed
	}

	report, err := h.Service.Reconcile(r.Context(), date)
	if err != nil {
		h.Logger.Error("RunReconciliation: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	dateStr := chi.URLParam(r, "date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	report, err := h.Service.GetReport(r.Context(), date)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, report)
}
