package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/transport"
	"github.com/frahmantamala/payment-orchestration/pkg/logger"
)

type ServiceAPI interface {
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*paymentmodel.Payment, error)
	ProcessPayment(ctx context.Context, id string, card *CardRequest) (*paymentmodel.Payment, error)
	RefundPayment(ctx context.Context, id string, req *RefundRequest) (*paymentmodel.Payment, error)
	CancelPayment(ctx context.Context, id string, reason string) (*paymentmodel.Payment, error)
	GetPayment(ctx context.Context, id string) (*paymentmodel.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*paymentmodel.Payment, error)
	ListPaymentsByPolicy(ctx context.Context, policyNumber string, limit, offset int) ([]*paymentmodel.Payment, error)
	GatewayHealth() map[string]bool
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

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreatePayment: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.CreatePayment(r.Context(), &req)
	if err != nil {
		h.Logger.Error("CreatePayment: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToResponse(p))
}

// ProcessPayment accepts an optional body carrying raw card details
// for card payments created without a token.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Card *CardRequest `json:"card,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.Logger.Error("ProcessPayment: invalid request body", "error", err, "payment_id", id)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	p, err := h.Service.ProcessPayment(r.Context(), id, body.Card)
	if err != nil {
		h.Logger.Error("ProcessPayment: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("RefundPayment: invalid request body", "error", err, "payment_id", id)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.RefundPayment(r.Context(), id, &req)
	if err != nil {
		h.Logger.Error("RefundPayment: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Logger.Error("CancelPayment: invalid request body", "error", err, "payment_id", id)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	p, err := h.Service.CancelPayment(r.Context(), id, req.Reason)
	if err != nil {
		h.Logger.Error("CancelPayment: service error", "error", err, "payment_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Service.GetPayment(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

func (h *Handler) GetPaymentByTransactionID(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	p, err := h.Service.GetPaymentByTransactionID(r.Context(), transactionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToResponse(p))
}

func (h *Handler) ListPaymentsByPolicy(w http.ResponseWriter, r *http.Request) {
	policyNumber := chi.URLParam(r, "policyNumber")

	limit := 20
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	payments, err := h.Service.ListPaymentsByPolicy(r.Context(), policyNumber, limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": ToResponseList(payments),
		"limit":    limit,
		"offset":   offset,
	})
}

// GatewayHealth reports per-vendor configuration state so operators
// can tell which methods run in mock mode.
func (h *Handler) GatewayHealth(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"gateways": h.Service.GatewayHealth(),
	})
}
