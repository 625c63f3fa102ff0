package payment_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

func TestPaymentModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payment Model Suite")
}

func newPendingPayment() *payment.Payment {
	return &payment.Payment{
		ID:            "pay-1",
		TransactionID: "TXN-00000000000000AA",
		PolicyNumber:  "POL-123",
		BeneficiaryID: "BEN-456",
		Amount:        decimal.NewFromFloat(150.00),
		Currency:      "BRL",
		PaymentMethod: payment.MethodInstantTransfer,
		Status:        payment.StatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

var _ = Describe("PaymentStatus", func() {
	Describe("CanTransitionTo", func() {
		type transition struct {
			from    payment.PaymentStatus
			to      payment.PaymentStatus
			allowed bool
		}

		allStatuses := []payment.PaymentStatus{
			payment.StatusPending,
			payment.StatusProcessing,
			payment.StatusCompleted,
			payment.StatusFailed,
			payment.StatusRefunded,
			payment.StatusCancelled,
			payment.StatusExpired,
		}

		legal := map[payment.PaymentStatus][]payment.PaymentStatus{
			payment.StatusPending:    {payment.StatusProcessing, payment.StatusCancelled, payment.StatusExpired},
			payment.StatusProcessing: {payment.StatusCompleted, payment.StatusFailed, payment.StatusCancelled},
			payment.StatusCompleted:  {payment.StatusRefunded},
		}

		It("allows exactly the legal transitions and rejects every other pair", func() {
			var cases []transition
			for _, from := range allStatuses {
				for _, to := range allStatuses {
					allowed := false
					for _, next := range legal[from] {
						if next == to {
							allowed = true
						}
					}
					cases = append(cases, transition{from: from, to: to, allowed: allowed})
				}
			}

			for _, c := range cases {
				Expect(c.from.CanTransitionTo(c.to)).To(Equal(c.allowed),
					"transition %s -> %s", c.from, c.to)
			}
		})
	})

	Describe("IsTerminal", func() {
		It("marks the five terminal statuses", func() {
			Expect(payment.StatusCompleted.IsTerminal()).To(BeTrue())
			Expect(payment.StatusFailed.IsTerminal()).To(BeTrue())
			Expect(payment.StatusRefunded.IsTerminal()).To(BeTrue())
			Expect(payment.StatusCancelled.IsTerminal()).To(BeTrue())
			Expect(payment.StatusExpired.IsTerminal()).To(BeTrue())
			Expect(payment.StatusPending.IsTerminal()).To(BeFalse())
			Expect(payment.StatusProcessing.IsTerminal()).To(BeFalse())
		})
	})
})

var _ = Describe("Payment", func() {
	Describe("UpdateStatus", func() {
		It("stamps each lifecycle timestamp exactly once along the happy path", func() {
			p := newPendingPayment()

			Expect(p.UpdateStatus(payment.StatusProcessing)).To(Succeed())
			Expect(p.ProcessedAt).ToNot(BeNil())
			Expect(p.ConfirmedAt).To(BeNil())

			Expect(p.UpdateStatus(payment.StatusCompleted)).To(Succeed())
			Expect(p.ConfirmedAt).ToNot(BeNil())

			Expect(p.UpdateStatus(payment.StatusRefunded)).To(Succeed())
			Expect(p.RefundedAt).ToNot(BeNil())

			Expect(p.FailedAt).To(BeNil())
			Expect(p.CancelledAt).To(BeNil())
			Expect(p.ExpiredAt).To(BeNil())
		})

		It("rejects transitions out of a terminal state and leaves the payment unchanged", func() {
			p := newPendingPayment()
			Expect(p.UpdateStatus(payment.StatusCancelled)).To(Succeed())

			before := *p
			err := p.UpdateStatus(payment.StatusProcessing)
			Expect(err).To(HaveOccurred())

			var ite *payment.InvalidTransitionError
			Expect(err).To(BeAssignableToTypeOf(ite))
			Expect(p.Status).To(Equal(before.Status))
			Expect(p.ProcessedAt).To(BeNil())
		})

		It("rejects skipping PROCESSING", func() {
			p := newPendingPayment()
			Expect(p.UpdateStatus(payment.StatusCompleted)).ToNot(Succeed())
			Expect(p.Status).To(Equal(payment.StatusPending))
		})
	})

	Describe("Fail", func() {
		It("records the error fields alongside the FAILED transition", func() {
			p := newPendingPayment()
			Expect(p.UpdateStatus(payment.StatusProcessing)).To(Succeed())

			Expect(p.Fail("RECONCILIATION_TIMEOUT", "stuck payment")).To(Succeed())
			Expect(p.Status).To(Equal(payment.StatusFailed))
			Expect(p.FailedAt).ToNot(BeNil())
			Expect(*p.ErrorCode).To(Equal("RECONCILIATION_TIMEOUT"))
			Expect(*p.ErrorMessage).To(Equal("stuck payment"))
		})

		It("refuses to fail a PENDING payment", func() {
			p := newPendingPayment()
			Expect(p.Fail("X", "y")).ToNot(Succeed())
			Expect(p.ErrorCode).To(BeNil())
		})
	})

	Describe("IsExpired", func() {
		It("reports instant transfers past their expiration", func() {
			p := newPendingPayment()
			past := time.Now().Add(-time.Hour)
			p.PixExpiration = &past
			Expect(p.IsExpired(time.Now())).To(BeTrue())
		})

		It("reports bank slips past their due date", func() {
			p := newPendingPayment()
			p.PaymentMethod = payment.MethodBankSlip
			past := time.Now().Add(-24 * time.Hour)
			p.BoletoDueDate = &past
			Expect(p.IsExpired(time.Now())).To(BeTrue())
		})

		It("does not report payments without a deadline", func() {
			p := newPendingPayment()
			Expect(p.IsExpired(time.Now())).To(BeFalse())
		})
	})

	Describe("operation preconditions", func() {
		It("only PENDING payments can be processed", func() {
			p := newPendingPayment()
			Expect(p.CanProcess()).To(BeTrue())
			Expect(p.UpdateStatus(payment.StatusProcessing)).To(Succeed())
			Expect(p.CanProcess()).To(BeFalse())
		})

		It("only COMPLETED payments can be refunded", func() {
			p := newPendingPayment()
			Expect(p.CanRefund()).To(BeFalse())
			Expect(p.UpdateStatus(payment.StatusProcessing)).To(Succeed())
			Expect(p.UpdateStatus(payment.StatusCompleted)).To(Succeed())
			Expect(p.CanRefund()).To(BeTrue())
		})

		It("PENDING and PROCESSING payments can be cancelled", func() {
			p := newPendingPayment()
			Expect(p.CanCancel()).To(BeTrue())
			Expect(p.UpdateStatus(payment.StatusProcessing)).To(Succeed())
			Expect(p.CanCancel()).To(BeTrue())
			Expect(p.UpdateStatus(payment.StatusCompleted)).To(Succeed())
			Expect(p.CanCancel()).To(BeFalse())
		})
	})
})
