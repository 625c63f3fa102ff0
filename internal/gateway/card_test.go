package gateway_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
)

func TestGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gateway Suite")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func validCard() *gateway.CardDetails {
	return &gateway.CardDetails{
		Number:      "4242424242424242",
		HolderName:  "MARIA SILVA",
		CVV:         "123",
		ExpiryMonth: 12,
		ExpiryYear:  time.Now().Year() + 2,
	}
}

var _ = Describe("ValidateCard", func() {
	It("accepts a valid card", func() {
		Expect(gateway.ValidateCard(validCard())).To(Succeed())
	})

	It("strips spaces and dashes before validating", func() {
		card := validCard()
		card.Number = "4242 4242-4242 4242"
		Expect(gateway.ValidateCard(card)).To(Succeed())
		Expect(card.Number).To(Equal("4242424242424242"))
	})

	It("rejects a number failing the checksum", func() {
		card := validCard()
		card.Number = "4242424242424241"
		err := gateway.ValidateCard(card)
		Expect(err).To(HaveOccurred())
		Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
	})

	It("rejects numbers with invalid length", func() {
		card := validCard()
		card.Number = "42424242"
		Expect(gateway.ValidateCard(card)).ToNot(Succeed())
	})

	It("rejects a CVV outside 3-4 digits", func() {
		card := validCard()
		card.CVV = "12"
		Expect(gateway.ValidateCard(card)).ToNot(Succeed())

		card = validCard()
		card.CVV = "12345"
		Expect(gateway.ValidateCard(card)).ToNot(Succeed())

		card = validCard()
		card.CVV = "1234"
		Expect(gateway.ValidateCard(card)).To(Succeed())
	})

	It("rejects an expired card", func() {
		card := validCard()
		card.ExpiryYear = time.Now().Year() - 1
		err := gateway.ValidateCard(card)
		Expect(err).To(HaveOccurred())
		Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
	})

	It("rejects an invalid expiry month", func() {
		card := validCard()
		card.ExpiryMonth = 13
		Expect(gateway.ValidateCard(card)).ToNot(Succeed())
	})
})

var _ = Describe("DetectCardBrand", func() {
	It("identifies brands from number prefixes", func() {
		Expect(gateway.DetectCardBrand("4242424242424242")).To(Equal("visa"))
		Expect(gateway.DetectCardBrand("5555555555554444")).To(Equal("mastercard"))
		Expect(gateway.DetectCardBrand("2221000000000009")).To(Equal("mastercard"))
		Expect(gateway.DetectCardBrand("378282246310005")).To(Equal("amex"))
		Expect(gateway.DetectCardBrand("6362970000457013")).To(Equal("elo"))
		Expect(gateway.DetectCardBrand("6062825624254001")).To(Equal("hipercard"))
	})

	It("defaults to unknown for unrecognized prefixes", func() {
		Expect(gateway.DetectCardBrand("9999999999999999")).To(Equal("unknown"))
	})
})

var _ = Describe("CardGateway", func() {
	var g *gateway.CardGateway

	BeforeEach(func() {
		// No API key: degraded mock mode.
		g = gateway.NewCardGateway(internal.CardGatewayConfig{
			APIURL:         "https://api.stripe.com/v1",
			RequestTimeout: time.Second,
		}, testLogger())
	})

	It("reports itself unconfigured without credentials", func() {
		Expect(g.IsConfigured()).To(BeFalse())
		Expect(g.Name()).To(Equal("stripe"))
	})

	Describe("ProcessPayment in mock mode", func() {
		It("returns a mock charge flagged as such", func() {
			result, err := g.ProcessPayment(context.Background(), &gateway.Request{
				TransactionID: "TXN-1",
				Amount:        decimal.NewFromFloat(99.90),
				Currency:      "BRL",
				Method:        paymentmodel.MethodCreditCard,
				Card:          validCard(),
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Mock).To(BeTrue())
			Expect(result.GatewayPaymentID).To(HavePrefix("ch_mock_"))
			Expect(result.CardLastFour).To(Equal("4242"))
			Expect(result.CardBrand).To(Equal("visa"))
		})

		It("declines the decline test number without flagging mock success", func() {
			card := validCard()
			card.Number = "4000000000000002"
			_, err := g.ProcessPayment(context.Background(), &gateway.Request{
				TransactionID: "TXN-2",
				Amount:        decimal.NewFromFloat(10),
				Currency:      "BRL",
				Method:        paymentmodel.MethodCreditCard,
				Card:          card,
			})
			Expect(err).To(HaveOccurred())
			Expect(gateway.IsKind(err, gateway.KindDeclined)).To(BeTrue())
			ge, _ := gateway.AsError(err)
			Expect(ge.Code).To(Equal("card_declined"))
		})

		It("maps the insufficient funds test number", func() {
			card := validCard()
			card.Number = "4000000000009995"
			_, err := g.ProcessPayment(context.Background(), &gateway.Request{
				TransactionID: "TXN-3",
				Amount:        decimal.NewFromFloat(10),
				Currency:      "BRL",
				Method:        paymentmodel.MethodCreditCard,
				Card:          card,
			})
			Expect(gateway.IsKind(err, gateway.KindDeclined)).To(BeTrue())
			ge, _ := gateway.AsError(err)
			Expect(ge.Code).To(Equal("insufficient_funds"))
		})
	})

	It("rejects non-card methods", func() {
		_, err := g.ProcessPayment(context.Background(), &gateway.Request{
			TransactionID: "TXN-4",
			Amount:        decimal.NewFromFloat(10),
			Method:        paymentmodel.MethodBankSlip,
		})
		Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
	})

	It("rejects a card payment without card details or token", func() {
		_, err := g.ProcessPayment(context.Background(), &gateway.Request{
			TransactionID: "TXN-5",
			Amount:        decimal.NewFromFloat(10),
			Method:        paymentmodel.MethodCreditCard,
		})
		Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
	})

	It("returns a misconfigured error for status lookups in mock mode", func() {
		_, err := g.CheckStatus(context.Background(), "ch_123")
		Expect(gateway.IsKind(err, gateway.KindMisconfigured)).To(BeTrue())
	})

	It("returns a mock refund in mock mode", func() {
		result, err := g.Refund(context.Background(), "ch_123", decimal.NewFromFloat(50))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Mock).To(BeTrue())
		Expect(result.Amount).To(Equal(decimal.NewFromFloat(50)))
	})
})
