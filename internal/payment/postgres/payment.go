package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/payment-orchestration/internal"
	paymentmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/payment"
)

// PaymentRepository is the GORM-backed payment ledger.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create saves a new payment row
func (r *PaymentRepository) Create(ctx context.Context, p *paymentmodel.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByTransactionID retrieves a payment by its public transaction id
func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*paymentmodel.Payment, error) {
	var p paymentmodel.Payment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByPolicy retrieves payments for a policy with pagination
func (r *PaymentRepository) ListByPolicy(ctx context.Context, policyNumber string, limit, offset int) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.WithContext(ctx).
		Where("policy_number = ?", policyNumber).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error
	return payments, err
}

// WithLockedPayment runs fn against the row under SELECT ... FOR
// UPDATE inside a transaction and saves the mutated payment on
// success. Concurrent operations on the same payment serialize here.
func (r *PaymentRepository) WithLockedPayment(ctx context.Context, id string, fn func(p *paymentmodel.Payment) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p paymentmodel.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return internal.ErrPaymentNotFound
			}
			return err
		}

		if err := fn(&p); err != nil {
			return err
		}

		p.UpdatedAt = time.Now()
		return tx.Save(&p).Error
	})
}

// FindStuckProcessing returns payments sitting in PROCESSING since
// before the cutoff.
func (r *PaymentRepository) FindStuckProcessing(ctx context.Context, cutoff time.Time) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", paymentmodel.StatusProcessing, cutoff).
		Order("processed_at ASC").
		Find(&payments).Error
	return payments, err
}

// FindAbandonedProcessing returns PROCESSING rows that carry no
// processed_at stamp and have not been touched since the cutoff. They
// are invisible to the staleness scan and need their own backstop.
func (r *PaymentRepository) FindAbandonedProcessing(ctx context.Context, cutoff time.Time) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND processed_at IS NULL AND updated_at < ?", paymentmodel.StatusProcessing, cutoff).
		Order("updated_at ASC").
		Find(&payments).Error
	return payments, err
}

// FindByStatusInRange returns payments in the given statuses created
// within [from, to).
func (r *PaymentRepository) FindByStatusInRange(ctx context.Context, statuses []paymentmodel.PaymentStatus, from, to time.Time) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at >= ? AND created_at < ?", statuses, from, to).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// FindExpiredPending returns PENDING payments whose instant transfer
// expiration or bank slip due date has passed.
func (r *PaymentRepository) FindExpiredPending(ctx context.Context, asOf time.Time) ([]*paymentmodel.Payment, error) {
	var payments []*paymentmodel.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND (pix_expiration < ? OR boleto_due_date < ?)",
			paymentmodel.StatusPending, asOf, asOf).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}
