package billing

import (
	"fmt"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the stored lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"

	// InvoiceStatusOverdue is derived at read time, never stored
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// IsValid checks if the status is a storable state
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// CanApplyPayment returns true if payments may be recorded in this status
func (s InvoiceStatus) CanApplyPayment() bool {
	return s == InvoiceStatusSent
}

// IsTerminal returns true if no further state transitions are allowed
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCancelled
}

// Invoice is the aggregate root of the billing ledger. It owns its line
// items, payment terms and the full payment history. All balance-changing
// operations go through the aggregate so the never-overpay rule holds at a
// single point; the repository enforces it across concurrent writers with
// an optimistic version check.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber  string               `json:"invoice_number"`
	ClientID       uuid.UUID            `json:"client_id"`
	ProjectID      *uuid.UUID           `json:"project_id,omitempty"`
	Currency       valueobject.Currency `json:"currency"`
	IssueDate      time.Time            `json:"issue_date"`
	DueDate        time.Time            `json:"due_date"`
	Items          InvoiceItems         `json:"items"`
	TaxRate        decimal.Decimal      `json:"tax_rate"`
	DiscountKind   DiscountKind         `json:"discount_kind"`
	DiscountValue  decimal.Decimal      `json:"discount_value"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	TaxAmount      decimal.Decimal      `json:"tax_amount"`
	TotalAmount    decimal.Decimal      `json:"total_amount"`
	PaidAmount     decimal.Decimal      `json:"paid_amount"`
	Status         InvoiceStatus        `json:"status"`
	Terms          InvoiceTerms         `json:"terms"`
	Payments       PaymentRecords       `json:"payments"`
	Notes          string               `json:"notes,omitempty"`
	SentAt         *time.Time           `json:"sent_at,omitempty"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	CancelledAt    *time.Time           `json:"cancelled_at,omitempty"`
	CancelReason   string               `json:"cancel_reason,omitempty"`
}

// NewInvoice creates a draft invoice with computed totals
func NewInvoice(
	invoiceNumber string,
	clientID uuid.UUID,
	projectID *uuid.UUID,
	currency valueobject.Currency,
	issueDate time.Time,
	dueDate time.Time,
	items []LineItemInput,
	taxRate decimal.Decimal,
	discount Discount,
	notes string,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot exceed 50 characters")
	}
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CLIENT", "Client ID cannot be empty")
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Currency %q is not supported", currency))
	}
	if issueDate.IsZero() || dueDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_DATE", "Issue date and due date are required")
	}
	if dueDate.Before(issueDate) {
		return nil, shared.NewDomainError("INVALID_DATE", "Due date cannot be before issue date")
	}

	totals, lines, err := ComputeTotals(items, taxRate, discount, currency)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		ClientID:          clientID,
		ProjectID:         projectID,
		Currency:          currency,
		IssueDate:         issueDate,
		DueDate:           dueDate,
		Items:             lines,
		TaxRate:           taxRate,
		DiscountKind:      normalizeDiscountKind(discount.Kind),
		DiscountValue:     discount.Value,
		Subtotal:          totals.Subtotal.Amount(),
		DiscountAmount:    totals.DiscountAmount.Amount(),
		TaxAmount:         totals.TaxAmount.Amount(),
		TotalAmount:       totals.TotalAmount.Amount(),
		PaidAmount:        decimal.Zero,
		Status:            InvoiceStatusDraft,
		Terms:             InvoiceTerms{},
		Payments:          PaymentRecords{},
		Notes:             notes,
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

func normalizeDiscountKind(kind DiscountKind) DiscountKind {
	if kind == "" {
		return DiscountKindNone
	}
	return kind
}

// UpdateDraft replaces the mutable content of a draft invoice and
// recomputes totals. Scheduled terms are re-derived from their stored
// percentages against the new total.
func (inv *Invoice) UpdateDraft(
	issueDate time.Time,
	dueDate time.Time,
	items []LineItemInput,
	taxRate decimal.Decimal,
	discount Discount,
	notes string,
) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify invoice in %s status", inv.Status))
	}
	if issueDate.IsZero() || dueDate.IsZero() {
		return shared.NewDomainError("INVALID_DATE", "Issue date and due date are required")
	}
	if dueDate.Before(issueDate) {
		return shared.NewDomainError("INVALID_DATE", "Due date cannot be before issue date")
	}

	totals, lines, err := ComputeTotals(items, taxRate, discount, inv.Currency)
	if err != nil {
		return err
	}

	inv.IssueDate = issueDate
	inv.DueDate = dueDate
	inv.Items = lines
	inv.TaxRate = taxRate
	inv.DiscountKind = normalizeDiscountKind(discount.Kind)
	inv.DiscountValue = discount.Value
	inv.Subtotal = totals.Subtotal.Amount()
	inv.DiscountAmount = totals.DiscountAmount.Amount()
	inv.TaxAmount = totals.TaxAmount.Amount()
	inv.TotalAmount = totals.TotalAmount.Amount()
	inv.Notes = notes

	if len(inv.Terms) > 0 {
		specs := make([]TermSpec, 0, len(inv.Terms))
		for _, term := range inv.Terms {
			specs = append(specs, TermSpec{
				Sequence:    term.Sequence,
				Percentage:  term.Percentage,
				DueDate:     term.DueDate,
				Description: term.Description,
			})
		}
		terms, err := scheduleTerms(specs, totals.TotalAmount)
		if err != nil {
			return err
		}
		inv.Terms = terms
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceUpdatedEvent(inv))

	return nil
}

// ScheduleTerms replaces the payment schedule of a draft invoice. The term
// amounts are allocated from the invoice total; the last term absorbs the
// rounding remainder.
func (inv *Invoice) ScheduleTerms(specs []TermSpec) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot schedule terms for invoice in %s status", inv.Status))
	}

	total, err := valueobject.NewMoney(inv.TotalAmount, inv.Currency)
	if err != nil {
		return err
	}
	terms, err := scheduleTerms(specs, total)
	if err != nil {
		return err
	}

	inv.Terms = terms
	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()

	inv.AddDomainEvent(NewTermsScheduledEvent(inv))

	return nil
}

// Send finalizes a draft invoice and opens it for payments
func (inv *Invoice) Send() error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot send invoice in %s status", inv.Status))
	}
	if len(inv.Items) == 0 {
		return shared.NewDomainError("INVALID_ITEM", "Cannot send invoice without line items")
	}

	now := time.Now()
	inv.Status = InvoiceStatusSent
	inv.SentAt = &now
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceSentEvent(inv))

	return nil
}

// ApplyPayment records a payment against the invoice. The remaining balance
// is always recomputed from the payment history, never trusted from the
// stored PaidAmount. A payment exceeding the remaining balance of the
// invoice, or of the targeted term, is rejected outright.
func (inv *Invoice) ApplyPayment(
	amount valueobject.Money,
	termID *uuid.UUID,
	method PaymentMethod,
	reference string,
	paidAt time.Time,
) (*PaymentRecord, error) {
	if !inv.Status.CanApplyPayment() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply payment to invoice in %s status", inv.Status))
	}
	if amount.Currency() != inv.Currency {
		return nil, shared.NewDomainError("CURRENCY_MISMATCH", fmt.Sprintf("Payment currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_PAYMENT_METHOD", fmt.Sprintf("Payment method %q is not valid", method))
	}
	if paidAt.IsZero() {
		paidAt = time.Now()
	}

	paid := inv.Payments.NetTotal()
	remaining := inv.TotalAmount.Sub(paid)
	if amount.Amount().GreaterThan(remaining) {
		return nil, shared.NewDomainError("OVERPAYMENT_REJECTED",
			fmt.Sprintf("Payment amount %s exceeds remaining balance %s", amount.Amount(), remaining))
	}

	var term *InvoiceTerm
	if termID != nil {
		term = inv.findTerm(*termID)
		if term == nil {
			return nil, shared.NewDomainError("NOT_FOUND", "Payment term not found on this invoice")
		}
		termRemaining := term.Amount.Sub(inv.Payments.NetTotalForTerm(term.ID))
		if amount.Amount().GreaterThan(termRemaining) {
			return nil, shared.NewDomainError("OVERPAYMENT_REJECTED",
				fmt.Sprintf("Payment amount %s exceeds remaining balance %s of term %d", amount.Amount(), termRemaining, term.Sequence))
		}
	}

	record := PaymentRecord{
		ID:             uuid.New(),
		TermID:         termID,
		Amount:         amount.Amount(),
		Method:         method,
		Reference:      reference,
		PaidAt:         paidAt,
		Status:         PaymentRecordStatusActive,
		RefundedAmount: decimal.Zero,
	}
	inv.Payments = append(inv.Payments, record)
	inv.PaidAmount = inv.Payments.NetTotal()

	if term != nil && inv.Payments.NetTotalForTerm(term.ID).GreaterThanOrEqual(term.Amount) {
		term.Status = TermStatusPaid
	}

	now := time.Now()
	if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
		inv.markAllTermsPaid()
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	}

	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewPaymentAppliedEvent(inv, &record))

	return &record, nil
}

// RefundPayment refunds part or all of a previously recorded payment.
// Records are never removed; the refund accumulates on the record and the
// invoice balance reopens if it drops below the total.
func (inv *Invoice) RefundPayment(paymentID uuid.UUID, amount valueobject.Money, reason string) (*PaymentRecord, error) {
	if inv.Status == InvoiceStatusCancelled {
		return nil, shared.NewDomainError("REFUND_NOT_ELIGIBLE", "Cannot refund payments on a cancelled invoice")
	}
	if amount.Currency() != inv.Currency {
		return nil, shared.NewDomainError("CURRENCY_MISMATCH", fmt.Sprintf("Refund currency %s does not match invoice currency %s", amount.Currency(), inv.Currency))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Refund amount must be positive")
	}

	record := inv.Payments.Find(paymentID)
	if record == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Payment record not found on this invoice")
	}
	if record.IsFullyRefunded() {
		return nil, shared.NewDomainError("REFUND_NOT_ELIGIBLE", "Payment has already been fully refunded")
	}
	if amount.Amount().GreaterThan(record.RefundableAmount()) {
		return nil, shared.NewDomainError("REFUND_NOT_ELIGIBLE",
			fmt.Sprintf("Refund amount %s exceeds refundable balance %s of payment", amount.Amount(), record.RefundableAmount()))
	}

	now := time.Now()
	record.applyRefund(amount.Amount(), reason, now)
	inv.PaidAmount = inv.Payments.NetTotal()

	// Reopen the invoice and any terms the refund leaves under-paid
	if inv.Status == InvoiceStatusPaid && inv.PaidAmount.LessThan(inv.TotalAmount) {
		inv.Status = InvoiceStatusSent
		inv.PaidAt = nil
	}
	for i := range inv.Terms {
		term := &inv.Terms[i]
		if term.Status == TermStatusPaid && inv.Payments.NetTotalForTerm(term.ID).LessThan(term.Amount) {
			term.Status = TermStatusPending
		}
	}

	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewPaymentRefundedEvent(inv, record, amount.Amount(), reason))

	return record, nil
}

// Cancel voids an invoice. Only unpaid invoices can be cancelled; refund
// the payments first if money has already been received.
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status != InvoiceStatusDraft && inv.Status != InvoiceStatusSent {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	if inv.Payments.NetTotal().GreaterThan(decimal.Zero) {
		return shared.NewDomainError("INVALID_STATE", "Cannot cancel invoice with recorded payments; refund them first")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_INPUT", "Cancellation reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceCancelledEvent(inv, reason))

	return nil
}

// RemainingAmount returns the unpaid balance computed from the payment history
func (inv *Invoice) RemainingAmount() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.Payments.NetTotal())
}

// IsOverdue returns true if the invoice is open past its due date
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.Status == InvoiceStatusSent && inv.DueDate.Before(now)
}

// EffectiveStatus resolves the status as of now, deriving OVERDUE for
// open invoices past their due date
func (inv *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if inv.IsOverdue(now) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// PaidPercentage returns the percentage of the total that has been paid (0-100)
func (inv *Invoice) PaidPercentage() decimal.Decimal {
	if inv.TotalAmount.IsZero() {
		return decimal.NewFromInt(100)
	}
	return inv.PaidAmount.Div(inv.TotalAmount).Mul(oneHundred).Round(2)
}

func (inv *Invoice) findTerm(id uuid.UUID) *InvoiceTerm {
	for i := range inv.Terms {
		if inv.Terms[i].ID == id {
			return &inv.Terms[i]
		}
	}
	return nil
}

func (inv *Invoice) markAllTermsPaid() {
	for i := range inv.Terms {
		inv.Terms[i].Status = TermStatusPaid
	}
}
