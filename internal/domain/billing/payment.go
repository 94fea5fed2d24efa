package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodCheck, PaymentMethodOther:
		return true
	}
	return false
}

// PaymentRecordStatus represents the state of a single payment record
type PaymentRecordStatus string

const (
	PaymentRecordStatusActive            PaymentRecordStatus = "ACTIVE"
	PaymentRecordStatusPartiallyRefunded PaymentRecordStatus = "PARTIALLY_REFUNDED"
	PaymentRecordStatusRefunded          PaymentRecordStatus = "REFUNDED"
)

// PaymentRecord is an immutable entry in an invoice's payment history.
// Refunds never remove records; they accumulate on RefundedAmount so the
// full audit trail is preserved.
type PaymentRecord struct {
	ID             uuid.UUID           `json:"id"`
	TermID         *uuid.UUID          `json:"term_id,omitempty"` // Term this payment was applied against, if any
	Amount         decimal.Decimal     `json:"amount"`
	Method         PaymentMethod       `json:"method"`
	Reference      string              `json:"reference,omitempty"`
	PaidAt         time.Time           `json:"paid_at"`
	Status         PaymentRecordStatus `json:"status"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	RefundedAt     *time.Time          `json:"refunded_at,omitempty"`
	RefundReason   string              `json:"refund_reason,omitempty"`
}

// NetAmount returns the payment amount minus any refunded portion
func (p *PaymentRecord) NetAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// RefundableAmount returns how much of this payment can still be refunded
func (p *PaymentRecord) RefundableAmount() decimal.Decimal {
	return p.NetAmount()
}

// IsFullyRefunded returns true if nothing of this payment remains
func (p *PaymentRecord) IsFullyRefunded() bool {
	return p.Status == PaymentRecordStatusRefunded
}

// applyRefund adds a refund against this record and updates its status
func (p *PaymentRecord) applyRefund(amount decimal.Decimal, reason string, at time.Time) {
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.RefundedAt = &at
	p.RefundReason = reason
	if p.RefundedAmount.GreaterThanOrEqual(p.Amount) {
		p.Status = PaymentRecordStatusRefunded
	} else {
		p.Status = PaymentRecordStatusPartiallyRefunded
	}
}

// PaymentRecords is a slice of PaymentRecord that implements GORM Scanner/Valuer for JSONB storage
type PaymentRecords []PaymentRecord

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p PaymentRecords) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *PaymentRecords) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentRecords{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentRecords: unsupported type")
	}

	return json.Unmarshal(bytes, p)
}

// NetTotal sums the net (amount minus refunded) of all records
func (p PaymentRecords) NetTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range p {
		total = total.Add(p[i].NetAmount())
	}
	return total
}

// NetTotalForTerm sums the net amount of records applied against the given term
func (p PaymentRecords) NetTotalForTerm(termID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for i := range p {
		if p[i].TermID != nil && *p[i].TermID == termID {
			total = total.Add(p[i].NetAmount())
		}
	}
	return total
}

// Find returns the record with the given ID, or nil
func (p PaymentRecords) Find(id uuid.UUID) *PaymentRecord {
	for i := range p {
		if p[i].ID == id {
			return &p[i]
		}
	}
	return nil
}
