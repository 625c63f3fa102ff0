package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

const pixGatewayName = "mercadopago"

// PixGateway processes instant transfers. It generates the EMV BR-Code
// payload locally and registers the charge with the vendor when
// credentials are configured.
type PixGateway struct {
	cfg       internal.PixGatewayConfig
	client    *vendorClient
	logger    *slog.Logger
	maxAmount decimal.Decimal
}

func NewPixGateway(cfg internal.PixGatewayConfig, logger *slog.Logger) *PixGateway {
	maxAmount, err := decimal.NewFromString(cfg.MaxAmount)
	if err != nil || maxAmount.LessThanOrEqual(decimal.Zero) {
		maxAmount = decimal.NewFromInt(50000)
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &PixGateway{
		cfg:       cfg,
		client:    newVendorClient(pixGatewayName, cfg.APIURL, cfg.APIKey, cfg.RequestTimeout, logger),
		logger:    logger,
		maxAmount: maxAmount,
	}
}

func (g *PixGateway) Name() string {
	return pixGatewayName
}

func (g *PixGateway) IsConfigured() bool {
	return g.cfg.APIKey != "" && g.cfg.MerchantID != ""
}

func (g *PixGateway) ProcessPayment(ctx context.Context, req *Request) (*Result, error) {
	if req.Method != paymentmodel.MethodInstantTransfer && req.Method != paymentmodel.MethodBankTransfer {
		return nil, NewInvalidRequestError("UNSUPPORTED_METHOD",
			fmt.Sprintf("pix gateway does not support method %s", req.Method))
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, NewInvalidRequestError("INVALID_AMOUNT", "amount must be positive")
	}
	if req.Amount.GreaterThan(g.maxAmount) {
		return nil, NewInvalidRequestError("PIX_AMOUNT_LIMIT_EXCEEDED",
			fmt.Sprintf("amount exceeds the instant transfer limit of %s", g.maxAmount.StringFixed(2)))
	}

	expiration := time.Now().Add(g.cfg.Expiration)
	payload := g.buildBRCode(req)

	result := &Result{
		PixQrCode:       payload,
		PixQrCodeBase64: base64.StdEncoding.EncodeToString([]byte(payload)),
		PixExpiration:   &expiration,
	}

	if !g.IsConfigured() {
		result.GatewayPaymentID = "pix_mock_" + uuid.NewString()
		result.Mock = true
		g.logger.Warn("pix gateway not configured, returning mock charge",
			"transaction_id", req.TransactionID)
		return result, nil
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	body := map[string]any{
		"external_reference": req.TransactionID,
		"transaction_amount": req.Amount,
		"description":        req.Description,
		"payment_method_id":  "pix",
		"date_of_expiration": expiration.Format(time.RFC3339),
		"payer": map[string]any{
			"email":          req.PayerEmail,
			"identification": map[string]string{"type": "CPF", "number": req.PayerDocument},
		},
	}
	if err := g.client.postJSON(ctx, "/payments", body, &resp); err != nil {
		return nil, g.mapVendorError(err)
	}

	result.GatewayPaymentID = resp.ID
	g.logger.Info("pix charge created",
		"transaction_id", req.TransactionID,
		"gateway_payment_id", resp.ID)
	return result, nil
}

func (g *PixGateway) CheckStatus(ctx context.Context, gatewayPaymentID string) (paymentmodel.PaymentStatus, error) {
	if !g.IsConfigured() {
		return "", NewMisconfiguredError(pixGatewayName)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := g.client.getJSON(ctx, "/payments/"+gatewayPaymentID, &resp); err != nil {
		return "", g.mapVendorError(err)
	}

	switch strings.ToLower(resp.Status) {
	case "approved", "accredited":
		return paymentmodel.StatusCompleted, nil
	case "pending", "in_process", "authorized":
		return paymentmodel.StatusProcessing, nil
	case "rejected":
		return paymentmodel.StatusFailed, nil
	case "cancelled":
		return paymentmodel.StatusCancelled, nil
	case "refunded", "charged_back":
		return paymentmodel.StatusRefunded, nil
	default:
		return "", NewTransientError("GATEWAY_ERROR",
			fmt.Sprintf("unrecognized pix status %q", resp.Status), nil)
	}
}

func (g *PixGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (*RefundResult, error) {
	if !g.IsConfigured() {
		g.logger.Warn("pix gateway not configured, returning mock refund",
			"gateway_payment_id", gatewayPaymentID)
		return &RefundResult{
			RefundID:    "pix_refund_mock_" + uuid.NewString(),
			Amount:      amount,
			Mock:        true,
			ProcessedAt: time.Now(),
		}, nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{"amount": amount}
	if err := g.client.postJSON(ctx, "/payments/"+gatewayPaymentID+"/refunds", body, &resp); err != nil {
		return nil, g.mapVendorError(err)
	}

	return &RefundResult{RefundID: resp.ID, Amount: amount, ProcessedAt: time.Now()}, nil
}

func (g *PixGateway) Cancel(ctx context.Context, gatewayPaymentID string) error {
	if !g.IsConfigured() {
		return nil
	}
	err := g.client.postJSON(ctx, "/payments/"+gatewayPaymentID+"/cancel", map[string]any{}, nil)
	if err != nil {
		return g.mapVendorError(err)
	}
	return nil
}

func (g *PixGateway) mapVendorError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	if ve, ok := err.(*vendorHTTPError); ok {
		return NewInvalidRequestError("GATEWAY_REJECTED",
			fmt.Sprintf("pix vendor rejected the request with status %d", ve.Status))
	}
	return NewTransientError("GATEWAY_ERROR", "pix vendor call failed", err)
}

// buildBRCode assembles the static EMV BR-Code payload with the CRC16
// trailer. Field lengths follow the central bank spec: merchant name
// is capped at 25 characters, city at 15, txid at 25.
func (g *PixGateway) buildBRCode(req *Request) string {
	key := req.PixKey
	if key == "" {
		key = g.cfg.MerchantID
	}

	merchantAccount := emvField("00", "br.gov.bcb.pix") + emvField("01", key)
	additional := emvField("05", truncate(req.TransactionID, 25))

	var b strings.Builder
	b.WriteString(emvField("00", "01"))
	b.WriteString(emvField("26", merchantAccount))
	b.WriteString(emvField("52", "0000"))
	b.WriteString(emvField("53", "986"))
	b.WriteString(emvField("54", req.Amount.StringFixed(2)))
	b.WriteString(emvField("58", "BR"))
	b.WriteString(emvField("59", truncate(emvName(g.cfg.MerchantName), 25)))
	b.WriteString(emvField("60", truncate(emvName(g.cfg.MerchantCity), 15)))
	b.WriteString(emvField("62", additional))
	b.WriteString("6304")

	payload := b.String()
	return payload + crc16CCITT(payload)
}

func emvField(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func emvName(s string) string {
	if s == "" {
		return "N/A"
	}
	return strings.ToUpper(s)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// crc16CCITT computes CRC16/CCITT-FALSE (poly 0x1021, init 0xFFFF) as
// required by EMV field 63.
func crc16CCITT(payload string) string {
	crc := uint16(0xFFFF)
	for i := 0; i < len(payload); i++ {
		crc ^= uint16(payload[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return fmt.Sprintf("%04X", crc)
}
