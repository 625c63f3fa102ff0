package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusFailed     PaymentStatus = "FAILED"
	StatusRefunded   PaymentStatus = "REFUNDED"
	StatusCancelled  PaymentStatus = "CANCELLED"
	StatusExpired    PaymentStatus = "EXPIRED"
)

// IsTerminal reports whether no further transitions are permitted.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRefunded, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo encodes the payment state machine:
//
//	PENDING    -> PROCESSING | CANCELLED | EXPIRED
//	PROCESSING -> COMPLETED | FAILED | CANCELLED
//	COMPLETED  -> REFUNDED
//
// Every other pair is rejected.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled || next == StatusExpired
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	case StatusCompleted:
		return next == StatusRefunded
	}
	return false
}

type PaymentMethod string

const (
	MethodInstantTransfer PaymentMethod = "INSTANT_TRANSFER"
	MethodCreditCard      PaymentMethod = "CREDIT_CARD"
	MethodDebitCard       PaymentMethod = "DEBIT_CARD"
	MethodBankSlip        PaymentMethod = "BANK_SLIP"
	MethodBankTransfer    PaymentMethod = "BANK_TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodInstantTransfer, MethodCreditCard, MethodDebitCard, MethodBankSlip, MethodBankTransfer:
		return true
	}
	return false
}

// IsCard groups the two card variants; they share artifacts and the
// card gateway.
func (m PaymentMethod) IsCard() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}

// ErrInvalidTransition is returned by UpdateStatus for any transition
// the state machine does not allow. Callers wrap it into their own
// error taxonomy.
type InvalidTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment state transition: %s -> %s", e.From, e.To)
}

// Payment is the ledger row for a single payment attempt. Rows are
// never deleted; terminal statuses model removal.
type Payment struct {
	ID               string  `json:"id" gorm:"primaryKey;type:uuid"`
	TransactionID    string  `json:"transaction_id" gorm:"column:transaction_id;uniqueIndex;not null"`
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty" gorm:"column:gateway_payment_id"`

	PolicyNumber  string `json:"policy_number" gorm:"column:policy_number;index;not null"`
	BeneficiaryID string `json:"beneficiary_id" gorm:"column:beneficiary_id;index;not null"`

	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency      string          `json:"currency" gorm:"size:3;default:'BRL'"`
	PaymentMethod PaymentMethod   `json:"payment_method" gorm:"column:payment_method;index;not null"`
	Gateway       string          `json:"gateway" gorm:"column:gateway"`
	Description   string          `json:"description"`

	Status PaymentStatus `json:"status" gorm:"index;not null"`

	PayerName     string `json:"payer_name" gorm:"column:payer_name"`
	PayerEmail    string `json:"payer_email" gorm:"column:payer_email"`
	PayerDocument string `json:"-" gorm:"column:payer_document"`

	// Instant-transfer projections, nil for every other method.
	PixKey          *string    `json:"pix_key,omitempty" gorm:"column:pix_key"`
	PixQrCode       *string    `json:"pix_qr_code,omitempty" gorm:"column:pix_qr_code"`
	PixQrCodeBase64 *string    `json:"pix_qr_code_base64,omitempty" gorm:"column:pix_qr_code_base64"`
	PixExpiration   *time.Time `json:"pix_expiration,omitempty" gorm:"column:pix_expiration"`

	// Bank-slip projections.
	BoletoBarcode *string    `json:"boleto_barcode,omitempty" gorm:"column:boleto_barcode"`
	BoletoURL     *string    `json:"boleto_url,omitempty" gorm:"column:boleto_url"`
	BoletoDueDate *time.Time `json:"boleto_due_date,omitempty" gorm:"column:boleto_due_date;index"`

	// Card projections. Only the PCI-safe artifacts are persisted.
	CardLastFour *string `json:"card_last_four,omitempty" gorm:"column:card_last_four"`
	CardBrand    *string `json:"card_brand,omitempty" gorm:"column:card_brand"`
	CardToken    *string `json:"-" gorm:"column:card_token"`

	ProcessedAt *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty" gorm:"column:confirmed_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" gorm:"column:failed_at"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty" gorm:"column:refunded_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty" gorm:"column:expired_at"`

	ErrorCode    *string `json:"error_code,omitempty" gorm:"column:error_code"`
	ErrorMessage *string `json:"error_message,omitempty" gorm:"column:error_message"`

	RefundAmount decimal.NullDecimal `json:"refund_amount,omitempty" gorm:"type:decimal(12,2)"`
	RefundReason *string             `json:"refund_reason,omitempty" gorm:"column:refund_reason"`

	Metadata json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
	CreatedBy string    `json:"created_by" gorm:"column:created_by"`
	UpdatedBy string    `json:"updated_by" gorm:"column:updated_by"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsTerminal() bool {
	return p.Status.IsTerminal()
}

func (p *Payment) CanProcess() bool {
	return p.Status == StatusPending
}

func (p *Payment) CanRefund() bool {
	return p.Status == StatusCompleted
}

func (p *Payment) CanCancel() bool {
	return p.Status == StatusPending || p.Status == StatusProcessing
}

// UpdateStatus validates the transition and stamps the timestamp that
// belongs to the new status. Each stamp is written exactly once; the
// stamp for a status the payment never reached stays nil.
func (p *Payment) UpdateStatus(next PaymentStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: p.Status, To: next}
	}

	now := time.Now()
	switch next {
	case StatusProcessing:
		p.ProcessedAt = &now
	case StatusCompleted:
		p.ConfirmedAt = &now
	case StatusFailed:
		p.FailedAt = &now
	case StatusRefunded:
		p.RefundedAt = &now
	case StatusCancelled:
		p.CancelledAt = &now
	case StatusExpired:
		p.ExpiredAt = &now
	}

	p.Status = next
	p.UpdatedAt = now
	return nil
}

// Fail moves the payment to FAILED recording the error fields. Used by
// the orchestrator on adapter failure and by reconciliation for stuck
// rows.
func (p *Payment) Fail(code, message string) error {
	if err := p.UpdateStatus(StatusFailed); err != nil {
		return err
	}
	p.ErrorCode = &code
	p.ErrorMessage = &message
	return nil
}

// IsExpired reports whether a time-limited payment has passed its
// expiration or due date.
func (p *Payment) IsExpired(asOf time.Time) bool {
	if p.PixExpiration != nil && p.PixExpiration.Before(asOf) {
		return true
	}
	if p.BoletoDueDate != nil && p.BoletoDueDate.Before(asOf) {
		return true
	}
	return false
}
