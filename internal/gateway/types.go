package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

// Request is the generic payment intent handed to an adapter. Only the
// fields relevant to the request's payment method are populated.
type Request struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	Method        paymentmodel.PaymentMethod

	PayerName     string
	PayerEmail    string
	PayerDocument string

	// Instant-transfer fields.
	PixKey string

	// Bank-slip fields.
	BoletoDueDate *time.Time

	// Card fields. Card carries raw details supplied at creation time
	// and is never persisted; CardToken is the PCI-safe reference used
	// when processing a previously created payment.
	Card      *CardDetails
	CardToken string
}

type CardDetails struct {
	Number      string
	HolderName  string
	CVV         string
	ExpiryMonth int
	ExpiryYear  int
}

// Result is the normalized successful outcome of a ProcessPayment
// call. Mock is true when the adapter ran in degraded mode without
// contacting a vendor, so callers can tell real success from mock
// success.
type Result struct {
	GatewayPaymentID string
	Mock             bool

	PixQrCode       string
	PixQrCodeBase64 string
	PixExpiration   *time.Time

	BoletoBarcode      string
	BoletoTypeableLine string
	BoletoURL          string
	BoletoDueDate      *time.Time

	CardLastFour string
	CardBrand    string
}

type RefundResult struct {
	RefundID    string
	Amount      decimal.Decimal
	Mock        bool
	ProcessedAt time.Time
}

// Gateway is the capability set every payment-method adapter
// implements. Adapters normalize vendor responses and errors into the
// shared result and error shapes; they never leak vendor status
// vocabularies.
type Gateway interface {
	// ProcessPayment submits a new charge/transfer/slip request.
	ProcessPayment(ctx context.Context, req *Request) (*Result, error)

	// CheckStatus polls vendor-side state for a previously
	// acknowledged payment.
	CheckStatus(ctx context.Context, gatewayPaymentID string) (paymentmodel.PaymentStatus, error)

	// Refund issues a full or partial refund.
	Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (*RefundResult, error)

	// Cancel issues a best-effort vendor-side cancellation.
	Cancel(ctx context.Context, gatewayPaymentID string) error

	// Name is the stable identifier used for metrics and logging.
	Name() string

	// IsConfigured reports whether vendor credentials are present.
	// When false the adapter operates in degraded mock mode.
	IsConfigured() bool
}
