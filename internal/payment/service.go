package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
	"github.com/frahmantamala/payment-orchestration/internal/observability"
)

// RepositoryAPI is the ledger access the service needs. WithLockedPayment
// opens a transaction, loads the row with a write lock, runs fn and
// persists the mutated payment before committing.
type RepositoryAPI interface {
	Create(ctx context.Context, p *paymentmodel.Payment) error
	GetByID(ctx context.Context, id string) (*paymentmodel.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*paymentmodel.Payment, error)
	ListByPolicy(ctx context.Context, policyNumber string, limit, offset int) ([]*paymentmodel.Payment, error)
	WithLockedPayment(ctx context.Context, id string, fn func(p *paymentmodel.Payment) error) error
}

// SelectorAPI routes payment methods to gateway adapters.
type SelectorAPI interface {
	ForMethod(method paymentmodel.PaymentMethod) (gateway.Gateway, error)
	Health() map[string]bool
}

// GatewayExecutor runs adapter calls under the shared retry and
// circuit-breaker policy.
type GatewayExecutor interface {
	ProcessPayment(ctx context.Context, g gateway.Gateway, req *gateway.Request) (*gateway.Result, error)
	Refund(ctx context.Context, g gateway.Gateway, gatewayPaymentID string, amount decimal.Decimal) (*gateway.RefundResult, error)
	Cancel(ctx context.Context, g gateway.Gateway, gatewayPaymentID string) error
}

// Deadlines carries the payment time limits stamped at creation. The
// expiry scan keys on these columns, so every PENDING row must carry
// its deadline from the moment it exists.
type Deadlines struct {
	PixExpiration time.Duration
	BoletoDueDays int
}

type Service struct {
	repo      RepositoryAPI
	selector  SelectorAPI
	executor  GatewayExecutor
	deadlines Deadlines
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, selector SelectorAPI, executor GatewayExecutor, deadlines Deadlines, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if deadlines.PixExpiration <= 0 {
		deadlines.PixExpiration = 24 * time.Hour
	}
	if deadlines.BoletoDueDays <= 0 {
		deadlines.BoletoDueDays = 3
	}
	return &Service{
		repo:      repo,
		selector:  selector,
		executor:  executor,
		deadlines: deadlines,
		metrics:   metrics,
		logger:    logger,
	}
}

// CreatePayment registers a PENDING ledger row. Card data is validated
// here and reduced to its PCI-safe projection; the raw number and CVV
// never reach the repository.
func (s *Service) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*paymentmodel.Payment, error) {
	if err := req.Validate(); err != nil {
		s.metrics.RecordOperation("create", "validation_error")
		return nil, err
	}

	g, err := s.selector.ForMethod(req.Method())
	if err != nil {
		s.metrics.RecordOperation("create", "validation_error")
		return nil, s.mapGatewayError(err)
	}

	now := time.Now()
	p := &paymentmodel.Payment{
		ID:            uuid.NewString(),
		TransactionID: generateTransactionID(),
		PolicyNumber:  req.PolicyNumber,
		BeneficiaryID: req.BeneficiaryID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.Method(),
		Gateway:       g.Name(),
		Description:   req.Description,
		Status:        paymentmodel.StatusPending,
		PayerName:     req.PayerName,
		PayerEmail:    req.PayerEmail,
		PayerDocument: req.PayerDocument,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
		CreatedBy:     "api",
		UpdatedBy:     "api",
	}

	if req.PixKey != "" {
		p.PixKey = &req.PixKey
	}
	if req.BoletoDueDate != nil {
		p.BoletoDueDate = req.BoletoDueDate
	}

	switch p.PaymentMethod {
	case paymentmodel.MethodInstantTransfer, paymentmodel.MethodBankTransfer:
		expiration := now.Add(s.deadlines.PixExpiration)
		p.PixExpiration = &expiration
	case paymentmodel.MethodBankSlip:
		if p.BoletoDueDate == nil {
			dueDate := now.AddDate(0, 0, s.deadlines.BoletoDueDays)
			p.BoletoDueDate = &dueDate
		}
	}
	if req.CardToken != "" {
		token := req.CardToken
		p.CardToken = &token
	}
	if req.Card != nil {
		card := &gateway.CardDetails{
			Number:      req.Card.Number,
			HolderName:  req.Card.HolderName,
			CVV:         req.Card.CVV,
			ExpiryMonth: req.Card.ExpiryMonth,
			ExpiryYear:  req.Card.ExpiryYear,
		}
		if err := gateway.ValidateCard(card); err != nil {
			s.metrics.RecordOperation("create", "validation_error")
			return nil, s.mapGatewayError(err)
		}
		lastFour := card.Number[len(card.Number)-4:]
		brand := gateway.DetectCardBrand(card.Number)
		p.CardLastFour = &lastFour
		p.CardBrand = &brand
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.logger.Error("failed to create payment", "error", err, "transaction_id", p.TransactionID)
		s.metrics.RecordOperation("create", "error")
		return nil, internal.NewInternalError("failed to create payment", err)
	}

	s.metrics.RecordOperation("create", "success")
	s.logger.Info("payment created",
		"payment_id", p.ID,
		"transaction_id", p.TransactionID,
		"method", p.PaymentMethod,
		"gateway", p.Gateway,
		"amount", p.Amount)
	return p, nil
}

// ProcessPayment drives PENDING -> PROCESSING -> terminal. The
// PROCESSING transition commits before the gateway call so a crash
// mid-flight leaves a row reconciliation can recover. A fail-fast
// rejection from an open circuit also leaves the row in PROCESSING for
// the same reason.
func (s *Service) ProcessPayment(ctx context.Context, id string, card *CardRequest) (*paymentmodel.Payment, error) {
	start := time.Now()

	var snapshot paymentmodel.Payment
	err := s.repo.WithLockedPayment(ctx, id, func(p *paymentmodel.Payment) error {
		if !p.CanProcess() {
			return internal.NewInvalidStateError(
				fmt.Sprintf("payment in status %s cannot be processed", p.Status))
		}
		if err := p.UpdateStatus(paymentmodel.StatusProcessing); err != nil {
			return internal.NewInvalidStateError(err.Error())
		}
		p.UpdatedBy = "orchestrator"
		snapshot = *p
		return nil
	})
	if err != nil {
		s.metrics.RecordOperation("process", outcomeOf(err))
		return nil, err
	}

	gwReq := s.buildGatewayRequest(&snapshot, card)
	g, err := s.selector.ForMethod(snapshot.PaymentMethod)
	if err != nil {
		return nil, s.mapGatewayError(err)
	}

	result, gwErr := s.executor.ProcessPayment(ctx, g, gwReq)

	var final *paymentmodel.Payment
	err = s.repo.WithLockedPayment(ctx, id, func(p *paymentmodel.Payment) error {
		defer func() { final = p }()

		if gwErr == nil {
			s.applyResult(p, result)
			return p.UpdateStatus(paymentmodel.StatusCompleted)
		}
		if gateway.IsKind(gwErr, gateway.KindUnavailable) {
			// Left in PROCESSING on purpose; the reconciliation run
			// picks it up once the gateway recovers.
			return nil
		}
		code, message := gatewayErrorFields(gwErr)
		return p.Fail(code, message)
	})
	if err != nil {
		s.logger.Error("failed to record payment outcome", "error", err, "payment_id", id)
		s.metrics.RecordOperation("process", "error")
		return nil, internal.NewInternalError("failed to record payment outcome", err)
	}

	s.metrics.ObserveProcessDuration(string(final.PaymentMethod), string(final.Status), time.Since(start))

	if gwErr != nil {
		s.logger.Warn("payment processing failed",
			"payment_id", id,
			"transaction_id", final.TransactionID,
			"status", final.Status,
			"error", gwErr)
		s.metrics.RecordOperation("process", outcomeOf(gwErr))
		return final, s.mapGatewayError(gwErr)
	}

	s.metrics.RecordOperation("process", "success")
	s.logger.Info("payment processed",
		"payment_id", id,
		"transaction_id", final.TransactionID,
		"gateway_payment_id", final.GatewayPaymentID,
		"mock", result.Mock,
		"duration_ms", time.Since(start).Milliseconds())
	return final, nil
}

// RefundPayment refunds a COMPLETED payment, fully or partially. The
// row lock is held across the gateway call so concurrent refunds of
// the same payment serialize and the second one fails the state check.
func (s *Service) RefundPayment(ctx context.Context, id string, req *RefundRequest) (*paymentmodel.Payment, error) {
	if err := req.Validate(); err != nil {
		s.metrics.RecordOperation("refund", "validation_error")
		return nil, err
	}

	var final *paymentmodel.Payment
	err := s.repo.WithLockedPayment(ctx, id, func(p *paymentmodel.Payment) error {
		if !p.CanRefund() {
			return internal.NewInvalidStateError(
				fmt.Sprintf("payment in status %s cannot be refunded", p.Status))
		}

		amount := req.Amount
		if req.FullRefund {
			amount = p.Amount
		}
		if amount.GreaterThan(p.Amount) {
			return internal.NewValidationError(
				"refund amount cannot exceed the payment amount", internal.ErrCodeRefundExceedsAmount)
		}

		g, err := s.selector.ForMethod(p.PaymentMethod)
		if err != nil {
			return s.mapGatewayError(err)
		}
		gatewayPaymentID := ""
		if p.GatewayPaymentID != nil {
			gatewayPaymentID = *p.GatewayPaymentID
		}

		result, err := s.executor.Refund(ctx, g, gatewayPaymentID, amount)
		if err != nil {
			return s.mapGatewayError(err)
		}

		if err := p.UpdateStatus(paymentmodel.StatusRefunded); err != nil {
			return internal.NewInvalidStateError(err.Error())
		}
		p.RefundAmount = decimal.NewNullDecimal(result.Amount)
		reason := req.Reason
		p.RefundReason = &reason
		p.UpdatedBy = "orchestrator"

		s.logger.Info("payment refunded",
			"payment_id", p.ID,
			"transaction_id", p.TransactionID,
			"refund_id", result.RefundID,
			"amount", result.Amount,
			"mock", result.Mock)
		final = p
		return nil
	})
	if err != nil {
		s.metrics.RecordOperation("refund", outcomeOf(err))
		return nil, err
	}

	s.metrics.RecordOperation("refund", "success")
	return final, nil
}

// CancelPayment cancels a PENDING or PROCESSING payment. The vendor
// cancellation is best effort: the local transition wins even when the
// vendor call fails, because the row is the source of truth before
// completion.
func (s *Service) CancelPayment(ctx context.Context, id string, reason string) (*paymentmodel.Payment, error) {
	var final *paymentmodel.Payment
	err := s.repo.WithLockedPayment(ctx, id, func(p *paymentmodel.Payment) error {
		if !p.CanCancel() {
			return internal.NewInvalidStateError(
				fmt.Sprintf("payment in status %s cannot be cancelled", p.Status))
		}

		if p.GatewayPaymentID != nil {
			g, err := s.selector.ForMethod(p.PaymentMethod)
			if err == nil {
				if cancelErr := s.executor.Cancel(ctx, g, *p.GatewayPaymentID); cancelErr != nil {
					s.logger.Warn("vendor cancellation failed, cancelling locally",
						"payment_id", p.ID,
						"gateway_payment_id", *p.GatewayPaymentID,
						"error", cancelErr)
				}
			}
		}

		if err := p.UpdateStatus(paymentmodel.StatusCancelled); err != nil {
			return internal.NewInvalidStateError(err.Error())
		}
		p.UpdatedBy = "orchestrator"

		s.logger.Info("payment cancelled",
			"payment_id", p.ID,
			"transaction_id", p.TransactionID,
			"reason", reason)
		final = p
		return nil
	})
	if err != nil {
		s.metrics.RecordOperation("cancel", outcomeOf(err))
		return nil, err
	}

	s.metrics.RecordOperation("cancel", "success")
	return final, nil
}

func (s *Service) GetPayment(ctx context.Context, id string) (*paymentmodel.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*paymentmodel.Payment, error) {
	return s.repo.GetByTransactionID(ctx, transactionID)
}

func (s *Service) ListPaymentsByPolicy(ctx context.Context, policyNumber string, limit, offset int) ([]*paymentmodel.Payment, error) {
	return s.repo.ListByPolicy(ctx, policyNumber, limit, offset)
}

func (s *Service) GatewayHealth() map[string]bool {
	return s.selector.Health()
}

func (s *Service) buildGatewayRequest(p *paymentmodel.Payment, card *CardRequest) *gateway.Request {
	req := &gateway.Request{
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Description:   p.Description,
		Method:        p.PaymentMethod,
		PayerName:     p.PayerName,
		PayerEmail:    p.PayerEmail,
		PayerDocument: p.PayerDocument,
		BoletoDueDate: p.BoletoDueDate,
	}
	if p.PixKey != nil {
		req.PixKey = *p.PixKey
	}
	if p.CardToken != nil {
		req.CardToken = *p.CardToken
	}
	if card != nil {
		req.Card = &gateway.CardDetails{
			Number:      card.Number,
			HolderName:  card.HolderName,
			CVV:         card.CVV,
			ExpiryMonth: card.ExpiryMonth,
			ExpiryYear:  card.ExpiryYear,
		}
	}
	return req
}

func (s *Service) applyResult(p *paymentmodel.Payment, result *gateway.Result) {
	id := result.GatewayPaymentID
	p.GatewayPaymentID = &id
	p.UpdatedBy = "orchestrator"

	if result.PixQrCode != "" {
		qr := result.PixQrCode
		qrB64 := result.PixQrCodeBase64
		p.PixQrCode = &qr
		p.PixQrCodeBase64 = &qrB64
		if result.PixExpiration != nil {
			p.PixExpiration = result.PixExpiration
		}
	}
	if result.BoletoBarcode != "" {
		barcode := result.BoletoBarcode
		url := result.BoletoURL
		p.BoletoBarcode = &barcode
		p.BoletoURL = &url
		if result.BoletoDueDate != nil {
			p.BoletoDueDate = result.BoletoDueDate
		}
	}
	if result.CardLastFour != "" {
		lastFour := result.CardLastFour
		p.CardLastFour = &lastFour
	}
	if result.CardBrand != "" {
		brand := result.CardBrand
		p.CardBrand = &brand
	}
}

// mapGatewayError translates the adapter error taxonomy into the HTTP
// facing one.
func (s *Service) mapGatewayError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	ge, ok := gateway.AsError(err)
	if !ok {
		return internal.NewInternalError("unexpected gateway failure", err)
	}

	switch ge.Kind {
	case gateway.KindInvalidRequest:
		return internal.NewValidationError(ge.Message, internal.ErrorCode(ge.Code))
	case gateway.KindDeclined:
		return internal.NewDeclinedError(ge.Message, internal.ErrorCode(ge.Code))
	case gateway.KindMisconfigured:
		appErr := internal.NewExternalError(ge.Message, ge)
		appErr.Code = internal.ErrCodeGatewayMisconfigured
		return appErr
	case gateway.KindUnavailable:
		return internal.NewUnavailableError(ge.Message)
	default:
		return internal.NewExternalError(ge.Message, ge)
	}
}

func gatewayErrorFields(err error) (code, message string) {
	if ge, ok := gateway.AsError(err); ok {
		return ge.Code, ge.Message
	}
	return string(internal.ErrCodeGatewayError), err.Error()
}

func outcomeOf(err error) string {
	if ge, ok := gateway.AsError(err); ok {
		return ge.Kind.String()
	}
	if appErr, ok := internal.IsAppError(err); ok {
		return strings.ToLower(string(appErr.Type))
	}
	var ite *paymentmodel.InvalidTransitionError
	if errors.As(err, &ite) {
		return "invalid_state"
	}
	return "error"
}

// generateTransactionID returns TXN- followed by 16 uppercase hex
// characters, unique per ledger row.
func generateTransactionID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	}
	return "TXN-" + strings.ToUpper(hex.EncodeToString(buf))
}
