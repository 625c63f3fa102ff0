package gateway_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
)

// stubGateway is a minimal Gateway used for routing and resilience
// tests. Responses are programmable and calls are counted.
type stubGateway struct {
	name       string
	configured bool

	processCalls int
	processErr   error
	processFn    func() (*gateway.Result, error)

	statusCalls int
	status      paymentmodel.PaymentStatus
	statusErr   error
	refundCalls int
	refundErr   error
	cancelCalls int
	cancelErr   error
}

func (s *stubGateway) ProcessPayment(_ context.Context, _ *gateway.Request) (*gateway.Result, error) {
	s.processCalls++
	if s.processFn != nil {
		return s.processFn()
	}
	if s.processErr != nil {
		return nil, s.processErr
	}
	return &gateway.Result{GatewayPaymentID: s.name + "_123"}, nil
}

func (s *stubGateway) CheckStatus(_ context.Context, _ string) (paymentmodel.PaymentStatus, error) {
	s.statusCalls++
	if s.statusErr != nil {
		return "", s.statusErr
	}
	return s.status, nil
}

func (s *stubGateway) Refund(_ context.Context, _ string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	s.refundCalls++
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &gateway.RefundResult{RefundID: "re_1", Amount: amount}, nil
}

func (s *stubGateway) Cancel(_ context.Context, _ string) error {
	s.cancelCalls++
	return s.cancelErr
}

func (s *stubGateway) Name() string       { return s.name }
func (s *stubGateway) IsConfigured() bool { return s.configured }

var _ = Describe("Selector", func() {
	var (
		pix, card, boleto *stubGateway
		selector          *gateway.Selector
	)

	BeforeEach(func() {
		pix = &stubGateway{name: "mercadopago", configured: true}
		card = &stubGateway{name: "stripe", configured: false}
		boleto = &stubGateway{name: "pagseguro", configured: true}
		selector = gateway.NewSelector(pix, card, boleto, testLogger())
	})

	Describe("ForMethod", func() {
		It("routes each method to its gateway", func() {
			g, err := selector.ForMethod(paymentmodel.MethodInstantTransfer)
			Expect(err).ToNot(HaveOccurred())
			Expect(g.Name()).To(Equal("mercadopago"))

			g, err = selector.ForMethod(paymentmodel.MethodCreditCard)
			Expect(err).ToNot(HaveOccurred())
			Expect(g.Name()).To(Equal("stripe"))

			g, err = selector.ForMethod(paymentmodel.MethodBankSlip)
			Expect(err).ToNot(HaveOccurred())
			Expect(g.Name()).To(Equal("pagseguro"))
		})

		It("routes bank transfers through the instant transfer rails", func() {
			g, err := selector.ForMethod(paymentmodel.MethodBankTransfer)
			Expect(err).ToNot(HaveOccurred())
			Expect(g.Name()).To(Equal("mercadopago"))
		})

		It("routes debit cards through the card rails", func() {
			g, err := selector.ForMethod(paymentmodel.MethodDebitCard)
			Expect(err).ToNot(HaveOccurred())
			Expect(g.Name()).To(Equal("stripe"))
		})

		It("rejects unknown methods", func() {
			_, err := selector.ForMethod(paymentmodel.PaymentMethod("CASH"))
			Expect(err).To(HaveOccurred())
			Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
		})
	})

	Describe("ByName", func() {
		It("resolves registered vendors", func() {
			g, err := selector.ByName("pagseguro")
			Expect(err).ToNot(HaveOccurred())
			Expect(g).To(BeIdenticalTo(boleto))
		})

		It("rejects unknown vendors", func() {
			_, err := selector.ByName("adyen")
			Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
		})
	})

	It("reports per-vendor configuration state", func() {
		Expect(selector.Health()).To(Equal(map[string]bool{
			"mercadopago": true,
			"stripe":      false,
			"pagseguro":   true,
		}))
	})
})
