package reconciliation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DiscrepancyType string

const (
	DiscrepancyUnmatched    DiscrepancyType = "UNMATCHED"
	DiscrepancyStuckPayment DiscrepancyType = "STUCK_PAYMENT"
	DiscrepancyError        DiscrepancyType = "ERROR"
)

type Resolution string

const (
	ResolutionPendingInvestigation Resolution = "PENDING_INVESTIGATION"
	ResolutionAutoFailed           Resolution = "AUTO_FAILED"
	ResolutionRequiresManualReview Resolution = "REQUIRES_MANUAL_REVIEW"
)

// Discrepancy is one inconsistency found between the ledger and
// gateway-reported truth. Expected and actual amounts are recorded for
// audit on UNMATCHED rows.
type Discrepancy struct {
	PaymentID      string              `json:"payment_id"`
	TransactionID  string              `json:"transaction_id"`
	Type           DiscrepancyType     `json:"type"`
	Description    string              `json:"description"`
	Resolution     Resolution          `json:"resolution"`
	ExpectedAmount decimal.Decimal     `json:"expected_amount"`
	ActualAmount   decimal.NullDecimal `json:"actual_amount,omitempty"`
}

// DiscrepancyList persists as a jsonb column.
type DiscrepancyList []Discrepancy

func (l DiscrepancyList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *DiscrepancyList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into DiscrepancyList", value)
	}
}

// MutatedRows persists the ids of payments the run auto-transitioned.
type MutatedRows []string

func (m MutatedRows) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *MutatedRows) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into MutatedRows", value)
	}
}

// Report is the audit artifact of one reconciliation run. It is
// persisted and returned, never only logged.
type Report struct {
	ID   string    `json:"id" gorm:"primaryKey;type:uuid"`
	Date time.Time `json:"date" gorm:"column:report_date;type:date;index;not null"`

	StartedAt  time.Time `json:"started_at" gorm:"column:started_at"`
	FinishedAt time.Time `json:"finished_at" gorm:"column:finished_at"`

	TotalScanned    int             `json:"total_scanned" gorm:"column:total_scanned"`
	MatchedCount    int             `json:"matched_count" gorm:"column:matched_count"`
	MatchedAmount   decimal.Decimal `json:"matched_amount" gorm:"column:matched_amount;type:decimal(14,2)"`
	UnmatchedCount  int             `json:"unmatched_count" gorm:"column:unmatched_count"`
	UnmatchedAmount decimal.Decimal `json:"unmatched_amount" gorm:"column:unmatched_amount;type:decimal(14,2)"`

	StuckCount   int `json:"stuck_count" gorm:"column:stuck_count"`
	ExpiredCount int `json:"expired_count" gorm:"column:expired_count"`
	ErrorCount   int `json:"error_count" gorm:"column:error_count"`

	Discrepancies DiscrepancyList `json:"discrepancies" gorm:"column:discrepancies;type:jsonb"`
	MutatedRows   MutatedRows     `json:"mutated_rows" gorm:"column:mutated_rows;type:jsonb"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Report) TableName() string {
	return "reconciliation_reports"
}

func (r *Report) AddDiscrepancy(d Discrepancy) {
	r.Discrepancies = append(r.Discrepancies, d)
}

func (r *Report) MarkMutated(paymentID string) {
	r.MutatedRows = append(r.MutatedRows, paymentID)
}
