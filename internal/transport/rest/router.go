package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/payment-orchestration/internal/payment"
	"github.com/frahmantamala/payment-orchestration/internal/reconciliation"
	"github.com/frahmantamala/payment-orchestration/internal/transport/middleware"
)

type RouterConfig struct {
	MetricsEnabled bool
	MetricsPath    string
	MetricsHandler http.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, reconciliationHandler *reconciliation.Handler, cfg RouterConfig, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, paymentHandler.Service.GatewayHealth)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	if cfg.MetricsEnabled && cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, cfg.MetricsHandler)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)
		r.Get("/gateways/health", paymentHandler.GatewayHealth)

		r.Route("/payments", func(pr chi.Router) {
			pr.Post("/", paymentHandler.CreatePayment)
			pr.Get("/{id}", paymentHandler.GetPayment)
			pr.Post("/{id}/process", paymentHandler.ProcessPayment)
			pr.Post("/{id}/refund", paymentHandler.RefundPayment)
			pr.Post("/{id}/cancel", paymentHandler.CancelPayment)
			pr.Get("/transaction/{transactionID}", paymentHandler.GetPaymentByTransactionID)
			pr.Get("/policy/{policyNumber}", paymentHandler.ListPaymentsByPolicy)
		})

		if reconciliationHandler != nil {
			r.Route("/reconciliation", func(rr chi.Router) {
				rr.Post("/run", reconciliationHandler.RunReconciliation)
				rr.Get("/reports/{date}", reconciliationHandler.GetReport)
			})
		}
	})
}
