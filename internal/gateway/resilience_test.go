package gateway_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
	"github.com/frahmantamala/payment-orchestration/internal/observability"
)

var _ = Describe("Executor", func() {
	var (
		stub     *stubGateway
		executor *gateway.Executor
	)

	newExecutor := func(cfg internal.ResilienceConfig) *gateway.Executor {
		return gateway.NewExecutor(cfg, observability.NewMetrics(), testLogger())
	}

	request := func() *gateway.Request {
		return &gateway.Request{
			TransactionID: "TXN-RES-1",
			Amount:        decimal.NewFromFloat(10),
			Method:        paymentmodel.MethodInstantTransfer,
		}
	}

	BeforeEach(func() {
		stub = &stubGateway{name: "mercadopago", configured: true}
		executor = newExecutor(internal.ResilienceConfig{
			MaxAttempts:         3,
			InitialBackoff:      time.Millisecond,
			CallTimeout:         time.Second,
			BreakerInterval:     time.Minute,
			BreakerCooldown:     time.Minute,
			BreakerMinRequests:  100,
			BreakerFailureRatio: 0.99,
		})
	})

	It("passes successful results through on the first attempt", func() {
		result, err := executor.ProcessPayment(context.Background(), stub, request())
		Expect(err).ToNot(HaveOccurred())
		Expect(result.GatewayPaymentID).To(Equal("mercadopago_123"))
		Expect(stub.processCalls).To(Equal(1))
	})

	It("retries transient errors up to the attempt budget", func() {
		stub.processErr = gateway.NewTransientError("GATEWAY_ERROR", "connection reset", nil)

		_, err := executor.ProcessPayment(context.Background(), stub, request())
		Expect(err).To(HaveOccurred())
		Expect(gateway.IsKind(err, gateway.KindTransient)).To(BeTrue())
		Expect(stub.processCalls).To(Equal(3))
	})

	It("recovers when a transient error clears within the budget", func() {
		calls := 0
		stub.processFn = func() (*gateway.Result, error) {
			calls++
			if calls < 3 {
				return nil, gateway.NewTransientError("GATEWAY_ERROR", "timeout", nil)
			}
			return &gateway.Result{GatewayPaymentID: "pix_999"}, nil
		}

		result, err := executor.ProcessPayment(context.Background(), stub, request())
		Expect(err).ToNot(HaveOccurred())
		Expect(result.GatewayPaymentID).To(Equal("pix_999"))
		Expect(stub.processCalls).To(Equal(3))
	})

	It("never retries a decline", func() {
		stub.processErr = gateway.NewDeclinedError("insufficient_funds", "card has insufficient funds")

		_, err := executor.ProcessPayment(context.Background(), stub, request())
		Expect(gateway.IsKind(err, gateway.KindDeclined)).To(BeTrue())
		Expect(stub.processCalls).To(Equal(1))
	})

	It("never retries a validation rejection", func() {
		stub.processErr = gateway.NewInvalidRequestError("INVALID_AMOUNT", "amount must be positive")

		_, err := executor.ProcessPayment(context.Background(), stub, request())
		Expect(gateway.IsKind(err, gateway.KindInvalidRequest)).To(BeTrue())
		Expect(stub.processCalls).To(Equal(1))
	})

	Describe("circuit breaker", func() {
		BeforeEach(func() {
			executor = newExecutor(internal.ResilienceConfig{
				MaxAttempts:         1,
				InitialBackoff:      time.Millisecond,
				CallTimeout:         time.Second,
				BreakerInterval:     time.Minute,
				BreakerCooldown:     time.Minute,
				BreakerMinRequests:  1,
				BreakerFailureRatio: 0.5,
			})
		})

		It("fails fast once transient failures trip the breaker", func() {
			stub.processErr = gateway.NewTransientError("GATEWAY_ERROR", "connection refused", nil)

			_, err := executor.ProcessPayment(context.Background(), stub, request())
			Expect(gateway.IsKind(err, gateway.KindTransient)).To(BeTrue())
			callsBeforeOpen := stub.processCalls

			_, err = executor.ProcessPayment(context.Background(), stub, request())
			Expect(err).To(HaveOccurred())
			Expect(gateway.IsKind(err, gateway.KindUnavailable)).To(BeTrue())
			Expect(stub.processCalls).To(Equal(callsBeforeOpen))
		})

		It("keeps the breaker closed through declines", func() {
			stub.processErr = gateway.NewDeclinedError("card_declined", "card was declined")
			for i := 0; i < 5; i++ {
				_, err := executor.ProcessPayment(context.Background(), stub, request())
				Expect(gateway.IsKind(err, gateway.KindDeclined)).To(BeTrue())
			}

			stub.processErr = nil
			result, err := executor.ProcessPayment(context.Background(), stub, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(result).ToNot(BeNil())
		})

		It("scopes the breaker per gateway", func() {
			stub.processErr = gateway.NewTransientError("GATEWAY_ERROR", "down", nil)
			_, err := executor.ProcessPayment(context.Background(), stub, request())
			Expect(err).To(HaveOccurred())
			_, err = executor.ProcessPayment(context.Background(), stub, request())
			Expect(gateway.IsKind(err, gateway.KindUnavailable)).To(BeTrue())

			other := &stubGateway{name: "stripe", configured: true}
			_, err = executor.ProcessPayment(context.Background(), other, request())
			Expect(err).ToNot(HaveOccurred())
			Expect(other.processCalls).To(Equal(1))
		})
	})

	It("wraps status, refund and cancel calls with the same policy", func() {
		stub.status = paymentmodel.StatusCompleted
		status, err := executor.CheckStatus(context.Background(), stub, "pix_1")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(paymentmodel.StatusCompleted))

		refund, err := executor.Refund(context.Background(), stub, "pix_1", decimal.NewFromFloat(10))
		Expect(err).ToNot(HaveOccurred())
		Expect(refund.RefundID).To(Equal("re_1"))

		Expect(executor.Cancel(context.Background(), stub, "pix_1")).To(Succeed())
	})
})
