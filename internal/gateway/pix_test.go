package gateway_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
)

// Independent CRC16/CCITT-FALSE used to verify the BR-Code trailer.
func crcCCITTFalse(payload string) string {
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

var _ = Describe("PixGateway", func() {
	var g *gateway.PixGateway

	newRequest := func(amount float64) *gateway.Request {
		return &gateway.Request{
			TransactionID: "TXN-PIX-0001",
			Amount:        decimal.NewFromFloat(amount),
			Currency:      "BRL",
			Method:        paymentmodel.MethodInstantTransfer,
			PayerName:     "Joao Souza",
			PayerEmail:    "joao@example.com",
			PayerDocument: "12345678901",
		}
	}

	BeforeEach(func() {
		// No API key: degraded mock mode.
		g = gateway.NewPixGateway(internal.PixGatewayConfig{
			APIURL:       "https://api.mercadopago.com/v1",
			MerchantID:   "merchant-key-001",
			MerchantName: "Seguradora Exemplo",
			MerchantCity: "Sao Paulo",
			Expiration:   24 * time.Hour,
			MaxAmount:    "50000",
		}, testLogger())
	})

	It("reports itself unconfigured without credentials", func() {
		Expect(g.IsConfigured()).To(BeFalse())
		Expect(g.Name()).To(Equal("mercadopago"))
	})

	Describe("ProcessPayment in mock mode", func() {
		It("returns a mock charge with a BR-Code payload and expiration", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(150.00))
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Mock).To(BeTrue())
			Expect(result.GatewayPaymentID).To(HavePrefix("pix_mock_"))
			Expect(result.PixExpiration).ToNot(BeNil())
			Expect(result.PixExpiration.After(time.Now().Add(23 * time.Hour))).To(BeTrue())

			decoded, decodeErr := base64.StdEncoding.DecodeString(result.PixQrCodeBase64)
			Expect(decodeErr).ToNot(HaveOccurred())
			Expect(string(decoded)).To(Equal(result.PixQrCode))
		})

		It("builds a structurally valid EMV payload", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(150.00))
			Expect(err).ToNot(HaveOccurred())

			payload := result.PixQrCode
			Expect(payload).To(HavePrefix("000201"))
			Expect(payload).To(ContainSubstring("br.gov.bcb.pix"))
			Expect(payload).To(ContainSubstring("merchant-key-001"))
			Expect(payload).To(ContainSubstring("5303986"))
			Expect(payload).To(ContainSubstring("5406150.00"))
			Expect(payload).To(ContainSubstring("5802BR"))
			Expect(payload).To(ContainSubstring("SEGURADORA EXEMPLO"))
			Expect(payload).To(ContainSubstring("TXN-PIX-0001"))

			body := payload[:len(payload)-4]
			Expect(body).To(HaveSuffix("6304"))
			Expect(payload[len(payload)-4:]).To(Equal(crcCCITTFalse(body)))
		})

		It("rejects amounts over the instant transfer limit", func() {
			_, err := g.ProcessPayment(context.Background(), newRequest(50001))
			Expect(err).To(HaveOccurred())
			Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
			ge, _ := gateway.AsError(err)
			Expect(ge.Code).To(Equal("PIX_AMOUNT_LIMIT_EXCEEDED"))
		})

		It("rejects non-positive amounts", func() {
			_, err := g.ProcessPayment(context.Background(), newRequest(0))
			Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
		})

		It("rejects card methods", func() {
			req := newRequest(10)
			req.Method = paymentmodel.MethodCreditCard
			_, err := g.ProcessPayment(context.Background(), req)
			Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
		})

		It("prefers the payer supplied key over the merchant key", func() {
			req := newRequest(10)
			req.PixKey = "payer@example.com"
			result, err := g.ProcessPayment(context.Background(), req)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.PixQrCode).To(ContainSubstring("payer@example.com"))
		})
	})

	It("returns a misconfigured error for status lookups in mock mode", func() {
		_, err := g.CheckStatus(context.Background(), "pix_123")
		Expect(gateway.IsKind(err, gateway.KindMisconfigured)).To(BeTrue())
	})

	It("defaults the charge expiration when the config leaves it unset", func() {
		unset := gateway.NewPixGateway(internal.PixGatewayConfig{
			MerchantID: "m",
			MaxAmount:  "50000",
		}, testLogger())
		result, err := unset.ProcessPayment(context.Background(), newRequest(10))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.PixExpiration).ToNot(BeNil())
		Expect(*result.PixExpiration).To(BeTemporally("~", time.Now().Add(24*time.Hour), time.Minute))
	})

	It("falls back to a sane default when the amount cap is malformed", func() {
		bad := gateway.NewPixGateway(internal.PixGatewayConfig{
			MerchantID: "m",
			MaxAmount:  "not-a-number",
			Expiration: time.Hour,
		}, testLogger())
		_, err := bad.ProcessPayment(context.Background(), newRequest(49999))
		Expect(err).ToNot(HaveOccurred())
	})
})
