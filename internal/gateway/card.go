package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

const cardGatewayName = "stripe"

// CardGateway processes credit and debit card charges. Raw card data
// is exchanged for a single-use token before charging; only the token,
// brand and last four digits ever leave this package.
type CardGateway struct {
	cfg    internal.CardGatewayConfig
	client *vendorClient
	logger *slog.Logger
}

func NewCardGateway(cfg internal.CardGatewayConfig, logger *slog.Logger) *CardGateway {
	return &CardGateway{
		cfg:    cfg,
		client: newVendorClient(cardGatewayName, cfg.APIURL, cfg.APIKey, cfg.RequestTimeout, logger),
		logger: logger,
	}
}

func (g *CardGateway) Name() string {
	return cardGatewayName
}

func (g *CardGateway) IsConfigured() bool {
	return g.cfg.APIKey != ""
}

func (g *CardGateway) ProcessPayment(ctx context.Context, req *Request) (*Result, error) {
	if !req.Method.IsCard() {
		return nil, NewInvalidRequestError("UNSUPPORTED_METHOD",
			fmt.Sprintf("card gateway does not support method %s", req.Method))
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, NewInvalidRequestError("INVALID_AMOUNT", "amount must be positive")
	}

	token := req.CardToken
	var lastFour, brand string

	if req.Card != nil {
		if err := ValidateCard(req.Card); err != nil {
			return nil, err
		}
		lastFour = req.Card.Number[len(req.Card.Number)-4:]
		brand = DetectCardBrand(req.Card.Number)

		if !g.IsConfigured() {
			return g.mockCharge(req, lastFour, brand)
		}

		var err error
		token, err = g.tokenize(ctx, req.Card)
		if err != nil {
			return nil, err
		}
	} else if token == "" {
		return nil, NewInvalidRequestError("INVALID_CARD", "card details or card token are required")
	}

	if !g.IsConfigured() {
		return g.mockCharge(req, lastFour, brand)
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Card   struct {
			Last4 string `json:"last4"`
			Brand string `json:"brand"`
		} `json:"card"`
	}
	body := map[string]any{
		"amount":      req.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency":    strings.ToLower(req.Currency),
		"source":      token,
		"description": req.Description,
		"capture":     true,
		"metadata":    map[string]string{"transaction_id": req.TransactionID},
	}
	if err := g.client.postJSON(ctx, "/charges", body, &resp); err != nil {
		return nil, g.mapVendorError(err)
	}

	if resp.Card.Last4 != "" {
		lastFour = resp.Card.Last4
	}
	if resp.Card.Brand != "" {
		brand = resp.Card.Brand
	}

	g.logger.Info("card charge created",
		"transaction_id", req.TransactionID,
		"gateway_payment_id", resp.ID,
		"brand", brand)

	return &Result{
		GatewayPaymentID: resp.ID,
		CardLastFour:     lastFour,
		CardBrand:        brand,
	}, nil
}

func (g *CardGateway) mockCharge(req *Request, lastFour, brand string) (*Result, error) {
	// Stripe test numbers keep their meaning in degraded mode so the
	// decline path stays exercisable without credentials.
	if req.Card != nil {
		switch {
		case strings.HasSuffix(req.Card.Number, "0002"):
			return nil, NewDeclinedError("card_declined", "card was declined")
		case strings.HasSuffix(req.Card.Number, "9995"):
			return nil, NewDeclinedError("insufficient_funds", "card has insufficient funds")
		}
	}
	g.logger.Warn("card gateway not configured, returning mock charge",
		"transaction_id", req.TransactionID)
	return &Result{
		GatewayPaymentID: "ch_mock_" + uuid.NewString(),
		Mock:             true,
		CardLastFour:     lastFour,
		CardBrand:        brand,
	}, nil
}

func (g *CardGateway) tokenize(ctx context.Context, card *CardDetails) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"card": map[string]any{
			"number":    card.Number,
			"exp_month": card.ExpiryMonth,
			"exp_year":  card.ExpiryYear,
			"cvc":       card.CVV,
			"name":      card.HolderName,
		},
	}
	if err := g.client.postJSON(ctx, "/tokens", body, &resp); err != nil {
		return "", g.mapVendorError(err)
	}
	return resp.ID, nil
}

func (g *CardGateway) CheckStatus(ctx context.Context, gatewayPaymentID string) (paymentmodel.PaymentStatus, error) {
	if !g.IsConfigured() {
		return "", NewMisconfiguredError(cardGatewayName)
	}

	var resp struct {
		Status   string `json:"status"`
		Refunded bool   `json:"refunded"`
	}
	if err := g.client.getJSON(ctx, "/charges/"+gatewayPaymentID, &resp); err != nil {
		return "", g.mapVendorError(err)
	}

	switch strings.ToLower(resp.Status) {
	case "succeeded":
		if resp.Refunded {
			return paymentmodel.StatusRefunded, nil
		}
		return paymentmodel.StatusCompleted, nil
	case "pending":
		return paymentmodel.StatusProcessing, nil
	case "failed":
		return paymentmodel.StatusFailed, nil
	default:
		return "", NewTransientError("GATEWAY_ERROR",
			fmt.Sprintf("unrecognized card status %q", resp.Status), nil)
	}
}

func (g *CardGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (*RefundResult, error) {
	if !g.IsConfigured() {
		g.logger.Warn("card gateway not configured, returning mock refund",
			"gateway_payment_id", gatewayPaymentID)
		return &RefundResult{
			RefundID:    "re_mock_" + uuid.NewString(),
			Amount:      amount,
			Mock:        true,
			ProcessedAt: time.Now(),
		}, nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"charge": gatewayPaymentID,
		"amount": amount.Mul(decimal.NewFromInt(100)).IntPart(),
	}
	if err := g.client.postJSON(ctx, "/refunds", body, &resp); err != nil {
		return nil, g.mapVendorError(err)
	}

	return &RefundResult{RefundID: resp.ID, Amount: amount, ProcessedAt: time.Now()}, nil
}

func (g *CardGateway) Cancel(ctx context.Context, gatewayPaymentID string) error {
	if !g.IsConfigured() {
		return nil
	}
	err := g.client.postJSON(ctx, "/charges/"+gatewayPaymentID+"/cancel", map[string]any{}, nil)
	if err != nil {
		return g.mapVendorError(err)
	}
	return nil
}

// mapVendorError turns non-2xx card vendor responses into the error
// taxonomy. Decline codes pass through so callers can store and
// surface them.
func (g *CardGateway) mapVendorError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	ve, ok := err.(*vendorHTTPError)
	if !ok {
		return NewTransientError("GATEWAY_ERROR", "card vendor call failed", err)
	}

	var parsed struct {
		Error struct {
			Code        string `json:"code"`
			DeclineCode string `json:"decline_code"`
			Message     string `json:"message"`
		} `json:"error"`
	}
	if unmarshalErr := json.Unmarshal(ve.Body, &parsed); unmarshalErr == nil {
		code := parsed.Error.DeclineCode
		if code == "" {
			code = parsed.Error.Code
		}
		switch code {
		case "insufficient_funds", "card_declined", "expired_card", "incorrect_cvc", "do_not_honor":
			msg := parsed.Error.Message
			if msg == "" {
				msg = "card was declined"
			}
			return NewDeclinedError(code, msg)
		}
	}
	return NewInvalidRequestError("GATEWAY_REJECTED",
		fmt.Sprintf("card vendor rejected the request with status %d", ve.Status))
}

// ValidateCard checks number, CVV and expiry. It is exported because
// validation happens at payment creation, before any gateway call.
func ValidateCard(card *CardDetails) error {
	if card == nil {
		return NewInvalidRequestError("INVALID_CARD", "card details are required")
	}
	number := strings.ReplaceAll(strings.ReplaceAll(card.Number, " ", ""), "-", "")
	card.Number = number

	if len(number) < 13 || len(number) > 19 || !isDigits(number) {
		return NewInvalidRequestError("INVALID_CARD", "card number length is invalid")
	}
	if !luhnValid(number) {
		return NewInvalidRequestError("INVALID_CARD", "card number failed checksum validation")
	}
	if len(card.CVV) < 3 || len(card.CVV) > 4 || !isDigits(card.CVV) {
		return NewInvalidRequestError("INVALID_CARD", "cvv must be 3 or 4 digits")
	}
	if card.ExpiryMonth < 1 || card.ExpiryMonth > 12 {
		return NewInvalidRequestError("INVALID_CARD", "expiry month is invalid")
	}
	now := time.Now()
	if card.ExpiryYear < now.Year() ||
		(card.ExpiryYear == now.Year() && card.ExpiryMonth < int(now.Month())) {
		return NewInvalidRequestError("INVALID_CARD", "card is expired")
	}
	return nil
}

// DetectCardBrand resolves the brand from the number prefix. Unknown
// prefixes return "unknown" rather than an error: brand is advisory.
func DetectCardBrand(number string) string {
	switch {
	case hasAnyPrefix(number, "636368", "636369", "438935", "504175", "451416", "636297", "5067", "4576", "4011"):
		return "elo"
	case hasAnyPrefix(number, "606282", "3841"):
		return "hipercard"
	case strings.HasPrefix(number, "4"):
		return "visa"
	case hasAnyPrefix(number, "51", "52", "53", "54", "55", "22", "23", "24", "25", "26", "27"):
		return "mastercard"
	case hasAnyPrefix(number, "34", "37"):
		return "amex"
	default:
		return "unknown"
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func luhnValid(number string) bool {
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
