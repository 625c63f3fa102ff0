package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	reconmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
	"github.com/frahmantamala/payment-orchestration/internal/observability"
)

// LedgerAPI is the payment ledger access the engine needs.
type LedgerAPI interface {
	FindByStatusInRange(ctx context.Context, statuses []paymentmodel.PaymentStatus, from, to time.Time) ([]*paymentmodel.Payment, error)
	FindStuckProcessing(ctx context.Context, cutoff time.Time) ([]*paymentmodel.Payment, error)
	FindAbandonedProcessing(ctx context.Context, cutoff time.Time) ([]*paymentmodel.Payment, error)
	FindExpiredPending(ctx context.Context, asOf time.Time) ([]*paymentmodel.Payment, error)
	WithLockedPayment(ctx context.Context, id string, fn func(p *paymentmodel.Payment) error) error
}

// ReportsAPI persists run reports.
type ReportsAPI interface {
	Create(ctx context.Context, report *reconmodel.Report) error
	GetLatestByDate(ctx context.Context, date time.Time) (*reconmodel.Report, error)
}

// StatusChecker answers vendor-side lookups by vendor name.
type StatusChecker interface {
	CheckVendorStatus(ctx context.Context, vendorName, gatewayPaymentID string) (paymentmodel.PaymentStatus, error)
}

// Service cross-checks the ledger against gateway-reported truth. Each
// run scans one day of non-terminal rows (plus COMPLETED rows for
// match-only verification), auto-fails stuck PROCESSING rows, expires
// overdue PENDING rows, and persists a report.
type Service struct {
	ledger  LedgerAPI
	reports ReportsAPI
	checker StatusChecker
	cfg     internal.ReconciliationConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewService(ledger LedgerAPI, reports ReportsAPI, checker StatusChecker, cfg internal.ReconciliationConfig, metrics *observability.Metrics, logger *slog.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{
		ledger:  ledger,
		reports: reports,
		checker: checker,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Reconcile runs one pass for the given date. Re-running the same date
// is safe: terminal rows are excluded from the scan, so repeated runs
// converge instead of double-mutating.
func (s *Service) Reconcile(ctx context.Context, date time.Time) (*reconmodel.Report, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	now := time.Now()

	report := &reconmodel.Report{
		ID:        uuid.NewString(),
		Date:      day,
		StartedAt: now,
		CreatedAt: now,
	}

	s.logger.Info("reconciliation run started", "date", day.Format("2006-01-02"))

	rows, err := s.ledger.FindByStatusInRange(ctx,
		[]paymentmodel.PaymentStatus{
			paymentmodel.StatusPending,
			paymentmodel.StatusProcessing,
			paymentmodel.StatusCompleted,
		},
		day, day.AddDate(0, 0, 1))
	if err != nil {
		s.metrics.RecordReconciliationRun("error")
		return nil, internal.NewInternalError("failed to scan ledger for reconciliation", err)
	}

	report.TotalScanned = len(rows)
	for _, p := range rows {
		// One bad row must not abort the batch.
		if rowErr := s.reconcileRow(ctx, p, report); rowErr != nil {
			s.logger.Error("reconciliation row failed",
				"payment_id", p.ID,
				"transaction_id", p.TransactionID,
				"error", rowErr)
			report.ErrorCount++
			report.AddDiscrepancy(reconmodel.Discrepancy{
				PaymentID:      p.ID,
				TransactionID:  p.TransactionID,
				Type:           reconmodel.DiscrepancyError,
				Description:    rowErr.Error(),
				Resolution:     reconmodel.ResolutionRequiresManualReview,
				ExpectedAmount: p.Amount,
			})
		}
	}

	s.failStuckPayments(ctx, now, report)
	s.failAbandonedPayments(ctx, now, report)
	s.expireOverduePayments(ctx, now, report)

	report.FinishedAt = time.Now()

	if err := s.reports.Create(ctx, report); err != nil {
		s.metrics.RecordReconciliationRun("error")
		return nil, internal.NewInternalError("failed to persist reconciliation report", err)
	}

	s.metrics.RecordReconciliationRun("success")
	s.logger.Info("reconciliation run finished",
		"date", day.Format("2006-01-02"),
		"total_scanned", report.TotalScanned,
		"matched", report.MatchedCount,
		"unmatched", report.UnmatchedCount,
		"stuck", report.StuckCount,
		"expired", report.ExpiredCount,
		"errors", report.ErrorCount,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds())
	return report, nil
}

// reconcileRow matches one row against vendor truth. PENDING rows are
// skipped here: they have not been submitted to a vendor, and the
// expiry pass owns their aging.
func (s *Service) reconcileRow(ctx context.Context, p *paymentmodel.Payment, report *reconmodel.Report) error {
	if p.Status == paymentmodel.StatusPending {
		return nil
	}

	if p.GatewayPaymentID == nil {
		report.UnmatchedCount++
		report.UnmatchedAmount = report.UnmatchedAmount.Add(p.Amount)
		report.AddDiscrepancy(reconmodel.Discrepancy{
			PaymentID:      p.ID,
			TransactionID:  p.TransactionID,
			Type:           reconmodel.DiscrepancyUnmatched,
			Description:    fmt.Sprintf("no vendor acknowledgement recorded for %s payment", p.Status),
			Resolution:     reconmodel.ResolutionPendingInvestigation,
			ExpectedAmount: p.Amount,
		})
		return nil
	}

	vendorStatus, err := s.checker.CheckVendorStatus(ctx, p.Gateway, *p.GatewayPaymentID)
	if err != nil {
		// Without credentials the lookup endpoint is unavailable; the
		// recorded vendor acknowledgement is the best evidence we have.
		if gateway.IsKind(err, gateway.KindMisconfigured) {
			report.MatchedCount++
			report.MatchedAmount = report.MatchedAmount.Add(p.Amount)
			return nil
		}
		return err
	}

	report.MatchedCount++
	report.MatchedAmount = report.MatchedAmount.Add(p.Amount)

	switch p.Status {
	case paymentmodel.StatusProcessing:
		switch vendorStatus {
		case paymentmodel.StatusCompleted:
			return s.mutateRow(ctx, p.ID, report, func(row *paymentmodel.Payment) error {
				if row.Status != paymentmodel.StatusProcessing {
					return nil
				}
				s.logger.Info("promoting payment completed on vendor side",
					"payment_id", row.ID, "transaction_id", row.TransactionID)
				row.UpdatedBy = "reconciliation"
				return row.UpdateStatus(paymentmodel.StatusCompleted)
			})
		case paymentmodel.StatusFailed:
			return s.mutateRow(ctx, p.ID, report, func(row *paymentmodel.Payment) error {
				if row.Status != paymentmodel.StatusProcessing {
					return nil
				}
				s.logger.Info("failing payment rejected on vendor side",
					"payment_id", row.ID, "transaction_id", row.TransactionID)
				row.UpdatedBy = "reconciliation"
				return row.Fail("GATEWAY_REPORTED_FAILURE", "vendor reports the payment failed")
			})
		}
	case paymentmodel.StatusCompleted:
		if vendorStatus != paymentmodel.StatusCompleted && vendorStatus != paymentmodel.StatusRefunded {
			report.UnmatchedCount++
			report.UnmatchedAmount = report.UnmatchedAmount.Add(p.Amount)
			report.AddDiscrepancy(reconmodel.Discrepancy{
				PaymentID:      p.ID,
				TransactionID:  p.TransactionID,
				Type:           reconmodel.DiscrepancyUnmatched,
				Description:    fmt.Sprintf("ledger says COMPLETED but vendor reports %s", vendorStatus),
				Resolution:     reconmodel.ResolutionPendingInvestigation,
				ExpectedAmount: p.Amount,
				ActualAmount:   decimal.NewNullDecimal(decimal.Zero),
			})
		}
	}
	return nil
}

// failStuckPayments auto-fails rows stuck in PROCESSING beyond the
// staleness threshold. PROCESSING must never become a permanent limbo
// state.
func (s *Service) failStuckPayments(ctx context.Context, now time.Time, report *reconmodel.Report) {
	cutoff := now.Add(-s.cfg.StuckAfter)
	stuck, err := s.ledger.FindStuckProcessing(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to scan for stuck payments", "error", err)
		report.ErrorCount++
		return
	}

	for _, p := range stuck {
		err := s.mutateRow(ctx, p.ID, report, func(row *paymentmodel.Payment) error {
			if row.Status != paymentmodel.StatusProcessing ||
				row.ProcessedAt == nil || !row.ProcessedAt.Before(cutoff) {
				return nil
			}
			s.logger.Warn("auto-failing stuck payment",
				"payment_id", row.ID,
				"transaction_id", row.TransactionID,
				"processing_since", row.ProcessedAt)
			row.UpdatedBy = "reconciliation"
			return row.Fail("RECONCILIATION_TIMEOUT",
				fmt.Sprintf("payment stuck in PROCESSING since %s", row.ProcessedAt.Format(time.RFC3339)))
		})
		if err != nil {
			s.logger.Error("failed to auto-fail stuck payment", "payment_id", p.ID, "error", err)
			report.ErrorCount++
			continue
		}
		report.StuckCount++
		report.AddDiscrepancy(reconmodel.Discrepancy{
			PaymentID:      p.ID,
			TransactionID:  p.TransactionID,
			Type:           reconmodel.DiscrepancyStuckPayment,
			Description:    "payment exceeded the PROCESSING staleness threshold",
			Resolution:     reconmodel.ResolutionAutoFailed,
			ExpectedAmount: p.Amount,
		})
	}
}

// failAbandonedPayments is the backstop for PROCESSING rows missing a
// processed_at stamp, which the staleness scan cannot see. They fail
// after the longer auto-fail threshold based on last update.
func (s *Service) failAbandonedPayments(ctx context.Context, now time.Time, report *reconmodel.Report) {
	cutoff := now.Add(-s.cfg.AutoFailAfter)
	abandoned, err := s.ledger.FindAbandonedProcessing(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to scan for abandoned payments", "error", err)
		report.ErrorCount++
		return
	}

	for _, p := range abandoned {
		err := s.mutateRow(ctx, p.ID, report, func(row *paymentmodel.Payment) error {
			if row.Status != paymentmodel.StatusProcessing ||
				row.ProcessedAt != nil || !row.UpdatedAt.Before(cutoff) {
				return nil
			}
			s.logger.Warn("auto-failing abandoned payment",
				"payment_id", row.ID,
				"transaction_id", row.TransactionID,
				"last_update", row.UpdatedAt)
			row.UpdatedBy = "reconciliation"
			return row.Fail("RECONCILIATION_TIMEOUT",
				fmt.Sprintf("payment abandoned in PROCESSING, last update %s", row.UpdatedAt.Format(time.RFC3339)))
		})
		if err != nil {
			s.logger.Error("failed to auto-fail abandoned payment", "payment_id", p.ID, "error", err)
			report.ErrorCount++
			continue
		}
		report.StuckCount++
		report.AddDiscrepancy(reconmodel.Discrepancy{
			PaymentID:      p.ID,
			TransactionID:  p.TransactionID,
			Type:           reconmodel.DiscrepancyStuckPayment,
			Description:    "payment exceeded the auto-fail threshold without a processing stamp",
			Resolution:     reconmodel.ResolutionAutoFailed,
			ExpectedAmount: p.Amount,
		})
	}
}

// expireOverduePayments moves PENDING instant transfers past their
// expiration and PENDING bank slips past their due date to EXPIRED.
func (s *Service) expireOverduePayments(ctx context.Context, now time.Time, report *reconmodel.Report) {
	overdue, err := s.ledger.FindExpiredPending(ctx, now)
	if err != nil {
		s.logger.Error("failed to scan for expired payments", "error", err)
		report.ErrorCount++
		return
	}

	for _, p := range overdue {
		err := s.mutateRow(ctx, p.ID, report, func(row *paymentmodel.Payment) error {
			if row.Status != paymentmodel.StatusPending || !row.IsExpired(now) {
				return nil
			}
			s.logger.Info("expiring overdue payment",
				"payment_id", row.ID,
				"transaction_id", row.TransactionID,
				"method", row.PaymentMethod)
			row.UpdatedBy = "reconciliation"
			return row.UpdateStatus(paymentmodel.StatusExpired)
		})
		if err != nil {
			s.logger.Error("failed to expire payment", "payment_id", p.ID, "error", err)
			report.ErrorCount++
			continue
		}
		report.ExpiredCount++
	}
}

func (s *Service) mutateRow(ctx context.Context, id string, report *reconmodel.Report, fn func(row *paymentmodel.Payment) error) error {
	mutated := false
	err := s.ledger.WithLockedPayment(ctx, id, func(row *paymentmodel.Payment) error {
		before := row.Status
		if err := fn(row); err != nil {
			return err
		}
		mutated = row.Status != before
		return nil
	})
	if err != nil {
		return err
	}
	if mutated {
		report.MarkMutated(id)
	}
	return nil
}

// GetReport returns the latest persisted report for a date.
func (s *Service) GetReport(ctx context.Context, date time.Time) (*reconmodel.Report, error) {
	return s.reports.GetLatestByDate(ctx, date.UTC().Truncate(24*time.Hour))
}
