package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-orchestration/internal/observability"
)

// Executor wraps every outbound gateway call with the shared retry and
// circuit-breaker policy. Transient failures are retried with
// exponential backoff up to the attempt budget; business outcomes
// (declines, validation rejections) are returned immediately and never
// count against the breaker.
type Executor struct {
	cfg     internal.ResilienceConfig
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewExecutor(cfg internal.ResilienceConfig, metrics *observability.Metrics, logger *slog.Logger) *Executor {
	cfg.ApplyDefaults()
	return &Executor{
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *Executor) breakerFor(gatewayName string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[gatewayName]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     gatewayName,
		Interval: e.cfg.BreakerInterval,
		Timeout:  e.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= e.cfg.BreakerMinRequests && ratio >= e.cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("gateway circuit breaker state changed",
				"gateway", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	e.breakers[gatewayName] = cb
	return cb
}

// execute runs fn under the gateway's breaker with the retry policy.
// Only transient errors feed the breaker's failure counts; everything
// else is stashed and replayed to the caller after a breaker "success".
func (e *Executor) execute(ctx context.Context, gatewayName string, fn func(ctx context.Context) error) error {
	cb := e.breakerFor(gatewayName)

	var businessErr error
	_, err := cb.Execute(func() (any, error) {
		backoff := retry.WithMaxRetries(uint64(e.cfg.MaxAttempts-1), retry.NewExponential(e.cfg.InitialBackoff))

		attemptErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
			defer cancel()

			callErr := fn(callCtx)
			if callErr == nil {
				return nil
			}
			if IsTransient(callErr) {
				e.logger.Warn("transient gateway error, will retry",
					"gateway", gatewayName,
					"error", callErr)
				return retry.RetryableError(callErr)
			}
			businessErr = callErr
			return callErr
		})

		if businessErr != nil {
			// Declines and validation rejections are healthy gateway
			// behavior, not infrastructure failure.
			return nil, nil
		}
		return nil, attemptErr
	})

	if businessErr != nil {
		e.record(gatewayName, businessErr)
		return businessErr
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = NewUnavailableError(gatewayName, err)
		}
		e.record(gatewayName, err)
		return err
	}

	e.metrics.RecordGatewayRequest(gatewayName, "success")
	return nil
}

func (e *Executor) record(gatewayName string, err error) {
	outcome := "error"
	if ge, ok := AsError(err); ok {
		outcome = ge.Kind.String()
	}
	e.metrics.RecordGatewayRequest(gatewayName, outcome)
}

func (e *Executor) ProcessPayment(ctx context.Context, g Gateway, req *Request) (*Result, error) {
	var result *Result
	err := e.execute(ctx, g.Name(), func(ctx context.Context) error {
		r, err := g.ProcessPayment(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) CheckStatus(ctx context.Context, g Gateway, gatewayPaymentID string) (paymentmodel.PaymentStatus, error) {
	var status paymentmodel.PaymentStatus
	err := e.execute(ctx, g.Name(), func(ctx context.Context) error {
		s, err := g.CheckStatus(ctx, gatewayPaymentID)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (e *Executor) Refund(ctx context.Context, g Gateway, gatewayPaymentID string, amount decimal.Decimal) (*RefundResult, error) {
	var result *RefundResult
	err := e.execute(ctx, g.Name(), func(ctx context.Context) error {
		r, err := g.Refund(ctx, gatewayPaymentID, amount)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) Cancel(ctx context.Context, g Gateway, gatewayPaymentID string) error {
	return e.execute(ctx, g.Name(), func(ctx context.Context) error {
		return g.Cancel(ctx, gatewayPaymentID)
	})
}
