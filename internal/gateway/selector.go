package gateway

import (
	"fmt"
	"log/slog"

	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

// Selector routes payment methods to adapters. BANK_TRANSFER rides the
// instant-transfer rails and DEBIT_CARD the card rails; both fallbacks
// are logged so routing stays visible in production.
type Selector struct {
	pix    Gateway
	card   Gateway
	boleto Gateway
	logger *slog.Logger
}

func NewSelector(pix, card, boleto Gateway, logger *slog.Logger) *Selector {
	return &Selector{
		pix:    pix,
		card:   card,
		boleto: boleto,
		logger: logger,
	}
}

func (s *Selector) ForMethod(method paymentmodel.PaymentMethod) (Gateway, error) {
	switch method {
	case paymentmodel.MethodInstantTransfer:
		return s.pix, nil
	case paymentmodel.MethodBankTransfer:
		s.logger.Info("routing bank transfer through the instant transfer gateway",
			"method", method,
			"gateway", s.pix.Name())
		return s.pix, nil
	case paymentmodel.MethodCreditCard:
		return s.card, nil
	case paymentmodel.MethodDebitCard:
		s.logger.Info("routing debit card through the card gateway",
			"method", method,
			"gateway", s.card.Name())
		return s.card, nil
	case paymentmodel.MethodBankSlip:
		return s.boleto, nil
	default:
		return nil, NewInvalidRequestError("UNSUPPORTED_METHOD",
			fmt.Sprintf("no gateway registered for payment method %s", method))
	}
}

// ByName resolves an adapter by its vendor identifier, used by
// reconciliation to re-query the gateway a payment was processed
// through.
func (s *Selector) ByName(name string) (Gateway, error) {
	for _, g := range s.all() {
		if g.Name() == name {
			return g, nil
		}
	}
	return nil, NewInvalidRequestError("UNKNOWN_GATEWAY",
		fmt.Sprintf("no gateway registered with name %s", name))
}

// Health reports configuration state per vendor for the health
// endpoint.
func (s *Selector) Health() map[string]bool {
	health := make(map[string]bool, 3)
	for _, g := range s.all() {
		health[g.Name()] = g.IsConfigured()
	}
	return health
}

// ValidateConfiguration logs a warning for each vendor running in
// degraded mock mode. It never fails startup: a partially configured
// instance still serves the configured methods.
func (s *Selector) ValidateConfiguration() {
	for _, g := range s.all() {
		if !g.IsConfigured() {
			s.logger.Warn("gateway is not configured and will run in mock mode",
				"gateway", g.Name())
		}
	}
}

func (s *Selector) all() []Gateway {
	return []Gateway{s.pix, s.card, s.boleto}
}
