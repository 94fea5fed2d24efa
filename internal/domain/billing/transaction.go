package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a finance transaction as money in or money out
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// TransactionSource records how a transaction entered the ledger
type TransactionSource string

const (
	TransactionSourceManual         TransactionSource = "MANUAL"
	TransactionSourceInvoicePayment TransactionSource = "INVOICE_PAYMENT"
	TransactionSourceInvoiceRefund  TransactionSource = "INVOICE_REFUND"
)

// FinanceTransaction is an append-only ledger entry. Entries are never
// updated or deleted; corrections are made by appending compensating
// entries, so the ledger always reconciles against the invoice history.
type FinanceTransaction struct {
	shared.BaseAggregateRoot
	Type        TransactionType      `json:"type"`
	Category    string               `json:"category"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    valueobject.Currency `json:"currency"`
	Description string               `json:"description,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
	Source      TransactionSource    `json:"source"`
	InvoiceID   *uuid.UUID           `json:"invoice_id,omitempty"`
	PaymentID   *uuid.UUID           `json:"payment_id,omitempty"`
}

// NewFinanceTransaction creates a manual ledger entry
func NewFinanceTransaction(
	txType TransactionType,
	category string,
	amount valueobject.Money,
	description string,
	occurredAt time.Time,
) (*FinanceTransaction, error) {
	return newTransaction(txType, category, amount, description, occurredAt, TransactionSourceManual, nil, nil)
}

// NewPaymentTransaction creates the income entry mirroring an invoice payment
func NewPaymentTransaction(inv *Invoice, record *PaymentRecord) (*FinanceTransaction, error) {
	amount, err := valueobject.NewMoney(record.Amount, inv.Currency)
	if err != nil {
		return nil, err
	}
	return newTransaction(
		TransactionTypeIncome,
		"invoice_payment",
		amount,
		fmt.Sprintf("Payment on invoice %s", inv.InvoiceNumber),
		record.PaidAt,
		TransactionSourceInvoicePayment,
		&inv.ID,
		&record.ID,
	)
}

// NewRefundTransaction creates the expense entry mirroring a payment refund
func NewRefundTransaction(inv *Invoice, record *PaymentRecord, refundAmount decimal.Decimal, refundedAt time.Time) (*FinanceTransaction, error) {
	amount, err := valueobject.NewMoney(refundAmount, inv.Currency)
	if err != nil {
		return nil, err
	}
	return newTransaction(
		TransactionTypeExpense,
		"invoice_refund",
		amount,
		fmt.Sprintf("Refund on invoice %s", inv.InvoiceNumber),
		refundedAt,
		TransactionSourceInvoiceRefund,
		&inv.ID,
		&record.ID,
	)
}

func newTransaction(
	txType TransactionType,
	category string,
	amount valueobject.Money,
	description string,
	occurredAt time.Time,
	source TransactionSource,
	invoiceID *uuid.UUID,
	paymentID *uuid.UUID,
) (*FinanceTransaction, error) {
	if !txType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_TYPE", fmt.Sprintf("Transaction type %q is not valid", txType))
	}
	if strings.TrimSpace(category) == "" {
		return nil, shared.NewDomainError("INVALID_CATEGORY", "Transaction category cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Transaction amount must be positive")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	tx := &FinanceTransaction{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Type:              txType,
		Category:          strings.TrimSpace(category),
		Amount:            amount.Amount().Round(valueobject.MinorUnitPlaces),
		Currency:          amount.Currency(),
		Description:       description,
		OccurredAt:        occurredAt,
		Source:            source,
		InvoiceID:         invoiceID,
		PaymentID:         paymentID,
	}

	tx.AddDomainEvent(NewTransactionRecordedEvent(tx))

	return tx, nil
}

// SignedAmount returns the amount with its cash-flow sign: positive for
// income, negative for expense
func (tx *FinanceTransaction) SignedAmount() decimal.Decimal {
	if tx.Type == TransactionTypeExpense {
		return tx.Amount.Neg()
	}
	return tx.Amount
}

// TransactionRecordedEvent is raised when a ledger entry is appended
type TransactionRecordedEvent struct {
	shared.BaseDomainEvent
	TransactionID uuid.UUID         `json:"transaction_id"`
	Type          TransactionType   `json:"type"`
	Category      string            `json:"category"`
	Amount        decimal.Decimal   `json:"amount"`
	Source        TransactionSource `json:"source"`
	InvoiceID     *uuid.UUID        `json:"invoice_id,omitempty"`
}

// EventType returns the event type name
func (e *TransactionRecordedEvent) EventType() string {
	return "FinanceTransactionRecorded"
}

// NewTransactionRecordedEvent creates a new TransactionRecordedEvent
func NewTransactionRecordedEvent(tx *FinanceTransaction) *TransactionRecordedEvent {
	return &TransactionRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("FinanceTransactionRecorded", "FinanceTransaction", tx.ID),
		TransactionID:   tx.ID,
		Type:            tx.Type,
		Category:        tx.Category,
		Amount:          tx.Amount,
		Source:          tx.Source,
		InvoiceID:       tx.InvoiceID,
	}
}
