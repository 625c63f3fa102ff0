package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

const boletoGatewayName = "pagseguro"

// boletoFactorBase anchors the due-date factor of the barcode. Day 1000
// of the count fell on 2000-07-03; the factor wraps back to 1000 after
// 9999.
var boletoFactorBase = time.Date(1997, time.October, 7, 0, 0, 0, 0, time.UTC)

// BoletoGateway emits bank slips. The barcode and typeable line are
// generated locally following the FEBRABAN layout; the slip is
// registered with the vendor when credentials are configured.
type BoletoGateway struct {
	cfg    internal.BoletoGatewayConfig
	client *vendorClient
	logger *slog.Logger
}

func NewBoletoGateway(cfg internal.BoletoGatewayConfig, logger *slog.Logger) *BoletoGateway {
	return &BoletoGateway{
		cfg:    cfg,
		client: newVendorClient(boletoGatewayName, cfg.APIURL, cfg.APIKey, cfg.RequestTimeout, logger),
		logger: logger,
	}
}

func (g *BoletoGateway) Name() string {
	return boletoGatewayName
}

func (g *BoletoGateway) IsConfigured() bool {
	return g.cfg.APIKey != ""
}

func (g *BoletoGateway) ProcessPayment(ctx context.Context, req *Request) (*Result, error) {
	if req.Method != paymentmodel.MethodBankSlip {
		return nil, NewInvalidRequestError("UNSUPPORTED_METHOD",
			fmt.Sprintf("boleto gateway does not support method %s", req.Method))
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, NewInvalidRequestError("INVALID_AMOUNT", "amount must be positive")
	}

	dueDate := time.Now().AddDate(0, 0, g.cfg.DueDays)
	if req.BoletoDueDate != nil {
		dueDate = *req.BoletoDueDate
	}
	if dueDate.Before(time.Now().Truncate(24 * time.Hour)) {
		return nil, NewInvalidRequestError("INVALID_DUE_DATE", "due date cannot be in the past")
	}

	barcode := g.generateBarcode(req, dueDate)
	result := &Result{
		BoletoBarcode:      barcode,
		BoletoTypeableLine: typeableLine(barcode),
		BoletoDueDate:      &dueDate,
	}

	if !g.IsConfigured() {
		id := "boleto_mock_" + uuid.NewString()
		result.GatewayPaymentID = id
		result.BoletoURL = fmt.Sprintf("%s/boletos/%s.pdf", g.cfg.APIURL, id)
		result.Mock = true
		g.logger.Warn("boleto gateway not configured, returning mock slip",
			"transaction_id", req.TransactionID)
		return result, nil
	}

	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	body := map[string]any{
		"reference_id": req.TransactionID,
		"amount":       req.Amount,
		"due_date":     dueDate.Format("2006-01-02"),
		"barcode":      barcode,
		"customer": map[string]string{
			"name":   req.PayerName,
			"email":  req.PayerEmail,
			"tax_id": req.PayerDocument,
		},
		"merchant": map[string]string{
			"name":   g.cfg.MerchantName,
			"tax_id": g.cfg.MerchantDocument,
		},
	}
	if err := g.client.postJSON(ctx, "/boletos", body, &resp); err != nil {
		return nil, g.mapVendorError(err)
	}

	result.GatewayPaymentID = resp.ID
	result.BoletoURL = resp.URL
	if result.BoletoURL == "" {
		result.BoletoURL = fmt.Sprintf("%s/boletos/%s.pdf", g.cfg.APIURL, resp.ID)
	}

	g.logger.Info("boleto registered",
		"transaction_id", req.TransactionID,
		"gateway_payment_id", resp.ID,
		"due_date", dueDate.Format("2006-01-02"))
	return result, nil
}

func (g *BoletoGateway) CheckStatus(ctx context.Context, gatewayPaymentID string) (paymentmodel.PaymentStatus, error) {
	if !g.IsConfigured() {
		return "", NewMisconfiguredError(boletoGatewayName)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := g.client.getJSON(ctx, "/boletos/"+gatewayPaymentID, &resp); err != nil {
		return "", g.mapVendorError(err)
	}

	switch strings.ToUpper(resp.Status) {
	case "PAID":
		return paymentmodel.StatusCompleted, nil
	case "REGISTERED", "WAITING":
		return paymentmodel.StatusProcessing, nil
	case "CANCELLED":
		return paymentmodel.StatusCancelled, nil
	case "EXPIRED":
		return paymentmodel.StatusExpired, nil
	case "REFUNDED":
		return paymentmodel.StatusRefunded, nil
	default:
		return "", NewTransientError("GATEWAY_ERROR",
			fmt.Sprintf("unrecognized boleto status %q", resp.Status), nil)
	}
}

func (g *BoletoGateway) Refund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (*RefundResult, error) {
	if !g.IsConfigured() {
		g.logger.Warn("boleto gateway not configured, returning mock refund",
			"gateway_payment_id", gatewayPaymentID)
		return &RefundResult{
			RefundID:    "boleto_refund_mock_" + uuid.NewString(),
			Amount:      amount,
			Mock:        true,
			ProcessedAt: time.Now(),
		}, nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{"amount": amount}
	if err := g.client.postJSON(ctx, "/boletos/"+gatewayPaymentID+"/refunds", body, &resp); err != nil {
		return nil, g.mapVendorError(err)
	}

	return &RefundResult{RefundID: resp.ID, Amount: amount, ProcessedAt: time.Now()}, nil
}

func (g *BoletoGateway) Cancel(ctx context.Context, gatewayPaymentID string) error {
	if !g.IsConfigured() {
		return nil
	}
	err := g.client.postJSON(ctx, "/boletos/"+gatewayPaymentID+"/cancel", map[string]any{}, nil)
	if err != nil {
		return g.mapVendorError(err)
	}
	return nil
}

func (g *BoletoGateway) mapVendorError(err error) error {
	if _, ok := AsError(err); ok {
		return err
	}
	if ve, ok := err.(*vendorHTTPError); ok {
		return NewInvalidRequestError("GATEWAY_REJECTED",
			fmt.Sprintf("boleto vendor rejected the request with status %d", ve.Status))
	}
	return NewTransientError("GATEWAY_ERROR", "boleto vendor call failed", err)
}

// generateBarcode builds the 44-digit FEBRABAN barcode:
// bank(3) currency(1) check(1) dueFactor(4) amount(10) freeField(25).
func (g *BoletoGateway) generateBarcode(req *Request, dueDate time.Time) string {
	bank := padDigits(g.cfg.BankCode, 3)
	amount := fmt.Sprintf("%010d", req.Amount.Mul(decimal.NewFromInt(100)).IntPart())
	factor := fmt.Sprintf("%04d", dueFactor(dueDate))
	free := g.freeField(req)

	withoutCheck := bank + "9" + factor + amount + free
	check := mod11CheckDigit(withoutCheck)
	return bank + "9" + check + factor + amount + free
}

// freeField is the bank-specific 25-digit block: agency(4),
// account(7), a 13-digit sequence derived from the transaction id, and
// a final filler digit.
func (g *BoletoGateway) freeField(req *Request) string {
	agency := padDigits(g.cfg.AgencyCode, 4)
	account := padDigits(g.cfg.AccountNumber, 7)
	sequence := padDigits(digitsOnly(req.TransactionID), 13)
	return agency + account + sequence + "0"
}

// dueFactor counts days since the 1997-10-07 base, wrapping back to
// 1000 after 9999 per the layout revision effective 2025.
func dueFactor(dueDate time.Time) int {
	days := int(dueDate.UTC().Truncate(24*time.Hour).Sub(boletoFactorBase).Hours() / 24)
	if days < 0 {
		return 0
	}
	for days > 9999 {
		days -= 9000
	}
	return days
}

// mod11CheckDigit computes the general check digit over the 43-digit
// barcode body with weights cycling 2..9 from the right. Remainders
// that would produce 0, 10 or 11 map to 1.
func mod11CheckDigit(digits string) string {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	dv := 11 - sum%11
	if dv == 0 || dv == 10 || dv == 11 {
		dv = 1
	}
	return fmt.Sprintf("%d", dv)
}

// mod10CheckDigit computes the per-field digit of the typeable line:
// weights alternate 2,1 from the right and two-digit products
// contribute the sum of their digits.
func mod10CheckDigit(digits string) string {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		p := int(digits[i]-'0') * weight
		if p > 9 {
			p = p/10 + p%10
		}
		sum += p
		if weight == 2 {
			weight = 1
		} else {
			weight = 2
		}
	}
	dv := (10 - sum%10) % 10
	return fmt.Sprintf("%d", dv)
}

// typeableLine converts the 44-digit barcode to the 47-digit linha
// digitavel: three free-field groups with mod-10 digits, the general
// check digit, then due factor and amount.
func typeableLine(barcode string) string {
	bank := barcode[0:3]
	currency := barcode[3:4]
	check := barcode[4:5]
	factor := barcode[5:9]
	amount := barcode[9:19]
	free := barcode[19:44]

	field1 := bank + currency + free[0:5]
	field2 := free[5:15]
	field3 := free[15:25]

	return field1 + mod10CheckDigit(field1) +
		field2 + mod10CheckDigit(field2) +
		field3 + mod10CheckDigit(field3) +
		check +
		factor + amount
}

func padDigits(s string, size int) string {
	d := digitsOnly(s)
	if len(d) > size {
		return d[len(d)-size:]
	}
	return strings.Repeat("0", size-len(d)) + d
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}
