package billing

import (
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceCreatedEvent is raised when a new draft invoice is created
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DueDate       time.Time       `json:"due_date"`
}

// EventType returns the event type name
func (e *InvoiceCreatedEvent) EventType() string {
	return "InvoiceCreated"
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCreated", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		TotalAmount:     inv.TotalAmount,
		DueDate:         inv.DueDate,
	}
}

// InvoiceUpdatedEvent is raised when a draft invoice is modified
type InvoiceUpdatedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// EventType returns the event type name
func (e *InvoiceUpdatedEvent) EventType() string {
	return "InvoiceUpdated"
}

// NewInvoiceUpdatedEvent creates a new InvoiceUpdatedEvent
func NewInvoiceUpdatedEvent(inv *Invoice) *InvoiceUpdatedEvent {
	return &InvoiceUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceUpdated", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		TotalAmount:     inv.TotalAmount,
	}
}

// TermsScheduledEvent is raised when a payment schedule is set on a draft
type TermsScheduledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	TermCount     int       `json:"term_count"`
}

// EventType returns the event type name
func (e *TermsScheduledEvent) EventType() string {
	return "InvoiceTermsScheduled"
}

// NewTermsScheduledEvent creates a new TermsScheduledEvent
func NewTermsScheduledEvent(inv *Invoice) *TermsScheduledEvent {
	return &TermsScheduledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceTermsScheduled", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		TermCount:       len(inv.Terms),
	}
}

// InvoiceSentEvent is raised when an invoice is finalized and sent
type InvoiceSentEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DueDate       time.Time       `json:"due_date"`
}

// EventType returns the event type name
func (e *InvoiceSentEvent) EventType() string {
	return "InvoiceSent"
}

// NewInvoiceSentEvent creates a new InvoiceSentEvent
func NewInvoiceSentEvent(inv *Invoice) *InvoiceSentEvent {
	return &InvoiceSentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceSent", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		TotalAmount:     inv.TotalAmount,
		DueDate:         inv.DueDate,
	}
}

// PaymentAppliedEvent is raised when a payment is recorded against an invoice
type PaymentAppliedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	TermID        *uuid.UUID      `json:"term_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Method        PaymentMethod   `json:"method"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Remaining     decimal.Decimal `json:"remaining"`
}

// EventType returns the event type name
func (e *PaymentAppliedEvent) EventType() string {
	return "InvoicePaymentApplied"
}

// NewPaymentAppliedEvent creates a new PaymentAppliedEvent
func NewPaymentAppliedEvent(inv *Invoice, record *PaymentRecord) *PaymentAppliedEvent {
	return &PaymentAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaymentApplied", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       record.ID,
		TermID:          record.TermID,
		Amount:          record.Amount,
		Method:          record.Method,
		PaidAmount:      inv.PaidAmount,
		Remaining:       inv.RemainingAmount(),
	}
}

// InvoicePaidEvent is raised when an invoice is fully paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	ClientID      uuid.UUID       `json:"client_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAt        time.Time       `json:"paid_at"`
}

// EventType returns the event type name
func (e *InvoicePaidEvent) EventType() string {
	return "InvoicePaid"
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	paidAt := time.Now()
	if inv.PaidAt != nil {
		paidAt = *inv.PaidAt
	}
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaid", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		TotalAmount:     inv.TotalAmount,
		PaidAt:          paidAt,
	}
}

// PaymentRefundedEvent is raised when part or all of a payment is refunded
type PaymentRefundedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	Reason        string          `json:"reason,omitempty"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
}

// EventType returns the event type name
func (e *PaymentRefundedEvent) EventType() string {
	return "InvoicePaymentRefunded"
}

// NewPaymentRefundedEvent creates a new PaymentRefundedEvent
func NewPaymentRefundedEvent(inv *Invoice, record *PaymentRecord, refundAmount decimal.Decimal, reason string) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoicePaymentRefunded", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		PaymentID:       record.ID,
		RefundAmount:    refundAmount,
		Reason:          reason,
		PaidAmount:      inv.PaidAmount,
	}
}

// InvoiceCancelledEvent is raised when an invoice is voided
type InvoiceCancelledEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Reason        string    `json:"reason"`
}

// EventType returns the event type name
func (e *InvoiceCancelledEvent) EventType() string {
	return "InvoiceCancelled"
}

// NewInvoiceCancelledEvent creates a new InvoiceCancelledEvent
func NewInvoiceCancelledEvent(inv *Invoice, reason string) *InvoiceCancelledEvent {
	return &InvoiceCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceCancelled", "Invoice", inv.ID),
		InvoiceID:       inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		Reason:          reason,
	}
}
