package payment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

// CreatePaymentRequest is the payload for registering a new payment.
// Card details ride along only for card methods and are never echoed
// back or persisted raw.
type CreatePaymentRequest struct {
	PolicyNumber  string          `json:"policy_number"`
	BeneficiaryID string          `json:"beneficiary_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Description   string          `json:"description"`

	PayerName     string `json:"payer_name"`
	PayerEmail    string `json:"payer_email"`
	PayerDocument string `json:"payer_document"`

	PixKey        string     `json:"pix_key,omitempty"`
	BoletoDueDate *time.Time `json:"boleto_due_date,omitempty"`

	Card      *CardRequest `json:"card,omitempty"`
	CardToken string       `json:"card_token,omitempty"`

	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type CardRequest struct {
	Number      string `json:"number"`
	HolderName  string `json:"holder_name"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
}

func (r *CreatePaymentRequest) Validate() error {
	if r.PolicyNumber == "" {
		return internal.NewValidationError("policy_number is required", internal.ErrCodeValidationFailed)
	}
	if r.BeneficiaryID == "" {
		return internal.NewValidationError("beneficiary_id is required", internal.ErrCodeValidationFailed)
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationError("amount must be greater than zero", internal.ErrCodeInvalidAmount)
	}
	if r.Currency == "" {
		r.Currency = "BRL"
	}
	if len(r.Currency) != 3 {
		return internal.NewValidationError("currency must be a 3-letter code", internal.ErrCodeInvalidCurrency)
	}
	r.Currency = strings.ToUpper(r.Currency)

	method := paymentmodel.PaymentMethod(r.PaymentMethod)
	if !method.Valid() {
		return internal.NewValidationError("payment_method must be one of INSTANT_TRANSFER, CREDIT_CARD, DEBIT_CARD, BANK_SLIP, BANK_TRANSFER", internal.ErrCodeInvalidMethod)
	}
	if method.IsCard() && r.Card == nil && r.CardToken == "" {
		return internal.NewValidationError("card details or card_token are required for card payments", internal.ErrCodeInvalidCard)
	}
	if !method.IsCard() && (r.Card != nil || r.CardToken != "") {
		return internal.NewValidationError("card details are only accepted for card payment methods", internal.ErrCodeInvalidCard)
	}
	if r.PayerDocument == "" {
		return internal.NewValidationError("payer_document is required", internal.ErrCodeValidationFailed)
	}
	return nil
}

func (r *CreatePaymentRequest) Method() paymentmodel.PaymentMethod {
	return paymentmodel.PaymentMethod(r.PaymentMethod)
}

// RefundRequest asks for a full or partial refund of a completed
// payment. Amount is ignored when FullRefund is set.
type RefundRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	FullRefund bool            `json:"full_refund"`
}

func (r *RefundRequest) Validate() error {
	if r.Reason == "" {
		return internal.NewValidationError("reason is required", internal.ErrCodeValidationFailed)
	}
	if !r.FullRefund && r.Amount.LessThanOrEqual(decimal.Zero) {
		return internal.NewValidationError("amount must be greater than zero for a partial refund", internal.ErrCodeInvalidAmount)
	}
	return nil
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// PaymentResponse is the outward projection of a ledger row. Sensitive
// payer and card fields are masked or omitted.
type PaymentResponse struct {
	ID               string          `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty"`
	PolicyNumber     string          `json:"policy_number"`
	BeneficiaryID    string          `json:"beneficiary_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"payment_method"`
	Gateway          string          `json:"gateway,omitempty"`
	Status           string          `json:"status"`
	Description      string          `json:"description,omitempty"`

	PayerName     string `json:"payer_name,omitempty"`
	PayerEmail    string `json:"payer_email,omitempty"`
	PayerDocument string `json:"payer_document,omitempty"`

	PixKey          *string    `json:"pix_key,omitempty"`
	PixQrCode       *string    `json:"pix_qr_code,omitempty"`
	PixQrCodeBase64 *string    `json:"pix_qr_code_base64,omitempty"`
	PixExpiration   *time.Time `json:"pix_expiration,omitempty"`

	BoletoBarcode *string    `json:"boleto_barcode,omitempty"`
	BoletoURL     *string    `json:"boleto_url,omitempty"`
	BoletoDueDate *time.Time `json:"boleto_due_date,omitempty"`

	CardLastFour *string `json:"card_last_four,omitempty"`
	CardBrand    *string `json:"card_brand,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`

	ErrorCode    *string          `json:"error_code,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
	RefundReason *string          `json:"refund_reason,omitempty"`

	Metadata json.RawMessage `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func ToResponse(p *paymentmodel.Payment) *PaymentResponse {
	resp := &PaymentResponse{
		ID:               p.ID,
		TransactionID:    p.TransactionID,
		GatewayPaymentID: p.GatewayPaymentID,
		PolicyNumber:     p.PolicyNumber,
		BeneficiaryID:    p.BeneficiaryID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		PaymentMethod:    string(p.PaymentMethod),
		Gateway:          p.Gateway,
		Status:           string(p.Status),
		Description:      p.Description,

		PayerName:     p.PayerName,
		PayerEmail:    p.PayerEmail,
		PayerDocument: maskDocument(p.PayerDocument),

		PixKey:          p.PixKey,
		PixQrCode:       p.PixQrCode,
		PixQrCodeBase64: p.PixQrCodeBase64,
		PixExpiration:   p.PixExpiration,

		BoletoBarcode: p.BoletoBarcode,
		BoletoURL:     p.BoletoURL,
		BoletoDueDate: p.BoletoDueDate,

		CardLastFour: p.CardLastFour,
		CardBrand:    p.CardBrand,

		ProcessedAt: p.ProcessedAt,
		ConfirmedAt: p.ConfirmedAt,
		FailedAt:    p.FailedAt,
		RefundedAt:  p.RefundedAt,
		CancelledAt: p.CancelledAt,
		ExpiredAt:   p.ExpiredAt,

		ErrorCode:    p.ErrorCode,
		ErrorMessage: p.ErrorMessage,
		RefundReason: p.RefundReason,

		Metadata: p.Metadata,

		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.RefundAmount.Valid {
		amount := p.RefundAmount.Decimal
		resp.RefundAmount = &amount
	}
	return resp
}

func ToResponseList(payments []*paymentmodel.Payment) []*PaymentResponse {
	out := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, ToResponse(p))
	}
	return out
}

// maskDocument hides the middle of a CPF/CNPJ, keeping three leading
// and two trailing digits. Short values are fully masked.
func maskDocument(doc string) string {
	if doc == "" {
		return ""
	}
	if len(doc) <= 4 {
		return "****"
	}
	return doc[:3] + strings.Repeat("*", len(doc)-5) + doc[len(doc)-2:]
}
