package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/payment-orchestration/internal"
	reconmodel "github.com/frahmantamala/payment-orchestration/internal/core/datamodel/reconciliation"
)

// ReportRepository persists reconciliation run reports.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, report *reconmodel.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// GetLatestByDate returns the most recent run for a date. Re-runs are
// stored as separate rows.
func (r *ReportRepository) GetLatestByDate(ctx context.Context, date time.Time) (*reconmodel.Report, error) {
	var report reconmodel.Report
	err := r.db.WithContext(ctx).
		Where("report_date = ?", date).
		Order("created_at DESC").
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.NewNotFoundError("no reconciliation report for that date", "REPORT_NOT_FOUND")
		}
		return nil, err
	}
	return &report, nil
}
