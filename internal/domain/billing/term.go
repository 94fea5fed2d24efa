package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TermStatus represents the stored state of a payment term
type TermStatus string

const (
	TermStatusPending TermStatus = "PENDING"
	TermStatusPaid    TermStatus = "PAID"

	// TermStatusOverdue is derived at read time, never stored
	TermStatusOverdue TermStatus = "OVERDUE"
)

// TermSpec is the input for scheduling a single payment term
type TermSpec struct {
	Sequence    int
	Percentage  decimal.Decimal
	DueDate     time.Time
	Description string
}

// InvoiceTerm is an installment of an invoice total, due at a specific date.
// The amounts of all terms sum exactly to the invoice total.
type InvoiceTerm struct {
	ID          uuid.UUID       `json:"id"`
	Sequence    int             `json:"sequence"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      TermStatus      `json:"status"`
	Description string          `json:"description,omitempty"`
}

// IsPaid returns true if the term has been fully settled
func (t *InvoiceTerm) IsPaid() bool {
	return t.Status == TermStatusPaid
}

// EffectiveStatus resolves the term status as of now, deriving OVERDUE
// for unpaid terms past their due date
func (t *InvoiceTerm) EffectiveStatus(now time.Time) TermStatus {
	if t.Status == TermStatusPending && t.DueDate.Before(now) {
		return TermStatusOverdue
	}
	return t.Status
}

// InvoiceTerms is a slice of InvoiceTerm that implements GORM Scanner/Valuer for JSONB storage
type InvoiceTerms []InvoiceTerm

// Value implements driver.Valuer interface for GORM to store as JSONB
func (t InvoiceTerms) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (t *InvoiceTerms) Scan(value interface{}) error {
	if value == nil {
		*t = InvoiceTerms{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan InvoiceTerms: unsupported type")
	}

	return json.Unmarshal(bytes, t)
}

// percentageSumTolerance absorbs representation noise in client-supplied
// percentages. Term amounts always sum exactly regardless.
var percentageSumTolerance = decimal.NewFromFloat(0.01)

// scheduleTerms validates term specs and allocates the invoice total across
// them. The last term absorbs any rounding remainder so that the allocated
// amounts sum exactly to the total.
func scheduleTerms(specs []TermSpec, total valueobject.Money) (InvoiceTerms, error) {
	if len(specs) == 0 {
		return nil, shared.NewDomainError("INVALID_SCHEDULE", "At least one payment term is required")
	}

	sorted := make([]TermSpec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	sum := decimal.Zero
	percentages := make([]decimal.Decimal, 0, len(sorted))
	for i, spec := range sorted {
		if spec.Sequence != i+1 {
			return nil, shared.NewDomainError("INVALID_SCHEDULE", "Term sequence numbers must be unique and consecutive starting at 1")
		}
		if !spec.Percentage.IsPositive() {
			return nil, shared.NewDomainError("INVALID_SCHEDULE", fmt.Sprintf("Term %d percentage must be positive", spec.Sequence))
		}
		if spec.DueDate.IsZero() {
			return nil, shared.NewDomainError("INVALID_SCHEDULE", fmt.Sprintf("Term %d due date is required", spec.Sequence))
		}
		sum = sum.Add(spec.Percentage)
		percentages = append(percentages, spec.Percentage)
	}
	if sum.Sub(oneHundred).Abs().GreaterThan(percentageSumTolerance) {
		return nil, shared.NewDomainError("INVALID_SCHEDULE", fmt.Sprintf("Term percentages must sum to 100, got %s", sum))
	}

	amounts, err := total.AllocateByPercentages(percentages)
	if err != nil {
		return nil, err
	}

	terms := make(InvoiceTerms, 0, len(sorted))
	for i, spec := range sorted {
		terms = append(terms, InvoiceTerm{
			ID:          uuid.New(),
			Sequence:    spec.Sequence,
			Percentage:  spec.Percentage,
			Amount:      amounts[i].Amount(),
			DueDate:     spec.DueDate,
			Status:      TermStatusPending,
			Description: spec.Description,
		})
	}
	return terms, nil
}
