package gateway

import (
	"context"

	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

// StatusService answers vendor-side status lookups for reconciliation,
// routed by vendor name and guarded by the shared resilience policy.
type StatusService struct {
	selector *Selector
	executor *Executor
}

func NewStatusService(selector *Selector, executor *Executor) *StatusService {
	return &StatusService{selector: selector, executor: executor}
}

func (s *StatusService) CheckVendorStatus(ctx context.Context, vendorName, gatewayPaymentID string) (paymentmodel.PaymentStatus, error) {
	g, err := s.selector.ByName(vendorName)
	if err != nil {
		return "", err
	}
	return s.executor.CheckStatus(ctx, g, gatewayPaymentID)
}
