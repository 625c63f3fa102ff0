package gateway_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
)

// Independent FEBRABAN check-digit helpers used to verify generated
// barcodes without trusting the implementation under test.
func mod11(digits string) int {
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
	return dv
}

func mod10(digits string) int {
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
	return (10 - sum%10) % 10
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

var _ = Describe("BoletoGateway", func() {
	var g *gateway.BoletoGateway

	newRequest := func(amount float64) *gateway.Request {
		return &gateway.Request{
			TransactionID: "TXN-0000000000000042",
			Amount:        decimal.NewFromFloat(amount),
			Currency:      "BRL",
			Method:        paymentmodel.MethodBankSlip,
			PayerName:     "Ana Lima",
			PayerEmail:    "ana@example.com",
			PayerDocument: "98765432100",
		}
	}

	BeforeEach(func() {
		// No API key: degraded mock mode.
		g = gateway.NewBoletoGateway(internal.BoletoGatewayConfig{
			APIURL:        "https://api.pagseguro.com/v1",
			BankCode:      "341",
			AgencyCode:    "0001",
			AccountNumber: "0000001",
			DueDays:       3,
		}, testLogger())
	})

	It("reports itself unconfigured without credentials", func() {
		Expect(g.IsConfigured()).To(BeFalse())
		Expect(g.Name()).To(Equal("pagseguro"))
	})

	Describe("ProcessPayment in mock mode", func() {
		It("returns a mock slip with barcode, typeable line and url", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(150.00))
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Mock).To(BeTrue())
			Expect(result.GatewayPaymentID).To(HavePrefix("boleto_mock_"))
			Expect(result.BoletoURL).To(HaveSuffix(".pdf"))
			Expect(result.BoletoDueDate).ToNot(BeNil())
		})

		It("generates a 44-digit barcode with a valid general check digit", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(150.00))
			Expect(err).ToNot(HaveOccurred())

			barcode := result.BoletoBarcode
			Expect(barcode).To(HaveLen(44))
			Expect(allDigits(barcode)).To(BeTrue())
			Expect(barcode[0:3]).To(Equal("341"))
			Expect(barcode[3:4]).To(Equal("9"))

			body := barcode[0:4] + barcode[5:44]
			Expect(barcode[4:5]).To(Equal(fmt.Sprintf("%d", mod11(body))))
		})

		It("encodes the amount in centavos and the due date factor", func() {
			due := time.Now().AddDate(0, 0, 10)
			req := newRequest(150.00)
			req.BoletoDueDate = &due

			result, err := g.ProcessPayment(context.Background(), req)
			Expect(err).ToNot(HaveOccurred())

			barcode := result.BoletoBarcode
			Expect(barcode[9:19]).To(Equal("0000015000"))

			base := time.Date(1997, time.October, 7, 0, 0, 0, 0, time.UTC)
			days := int(due.UTC().Truncate(24*time.Hour).Sub(base).Hours() / 24)
			for days > 9999 {
				days -= 9000
			}
			Expect(barcode[5:9]).To(Equal(fmt.Sprintf("%04d", days)))
		})

		It("embeds agency, account and transaction sequence in the free field", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(150.00))
			Expect(err).ToNot(HaveOccurred())

			free := result.BoletoBarcode[19:44]
			Expect(free[0:4]).To(Equal("0001"))
			Expect(free[4:11]).To(Equal("0000001"))
			// Last 13 digits of "0000000000000042".
			Expect(free[11:24]).To(Equal("0000000000042"))
			Expect(free[24:25]).To(Equal("0"))
		})

		It("derives the 47-digit typeable line from the barcode", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(150.00))
			Expect(err).ToNot(HaveOccurred())

			barcode := result.BoletoBarcode
			line := result.BoletoTypeableLine
			Expect(line).To(HaveLen(47))
			Expect(allDigits(line)).To(BeTrue())

			field1 := barcode[0:4] + barcode[19:24]
			field2 := barcode[24:34]
			field3 := barcode[34:44]

			Expect(line[0:9]).To(Equal(field1))
			Expect(line[9:10]).To(Equal(fmt.Sprintf("%d", mod10(field1))))
			Expect(line[10:20]).To(Equal(field2))
			Expect(line[20:21]).To(Equal(fmt.Sprintf("%d", mod10(field2))))
			Expect(line[21:31]).To(Equal(field3))
			Expect(line[31:32]).To(Equal(fmt.Sprintf("%d", mod10(field3))))
			Expect(line[32:33]).To(Equal(barcode[4:5]))
			Expect(line[33:37]).To(Equal(barcode[5:9]))
			Expect(line[37:47]).To(Equal(barcode[9:19]))
		})

		It("defaults the due date from configuration", func() {
			result, err := g.ProcessPayment(context.Background(), newRequest(10))
			Expect(err).ToNot(HaveOccurred())
			expected := time.Now().AddDate(0, 0, 3)
			Expect(result.BoletoDueDate.Sub(expected)).To(BeNumerically("<", time.Minute))
		})

		It("rejects past due dates", func() {
			past := time.Now().AddDate(0, 0, -2)
			req := newRequest(10)
			req.BoletoDueDate = &past
			_, err := g.ProcessPayment(context.Background(), req)
			Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
			ge, _ := gateway.AsError(err)
			Expect(ge.Code).To(Equal("INVALID_DUE_DATE"))
		})
	})

	It("rejects non-slip methods", func() {
		req := newRequest(10)
		req.Method = paymentmodel.MethodInstantTransfer
		_, err := g.ProcessPayment(context.Background(), req)
		Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
	})

	It("returns a misconfigured error for status lookups in mock mode", func() {
		_, err := g.CheckStatus(context.Background(), "boleto_123")
		Expect(gateway.IsKind(err, gateway.KindMisconfigured)).To(BeTrue())
	})
})
