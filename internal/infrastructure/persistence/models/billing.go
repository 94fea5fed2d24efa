package models

import (
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Items, terms and payment records live as JSONB columns inside the
// invoice row, so the version check on this single row guards the entire
// ledger state of the invoice.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber  string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	ClientID       uuid.UUID              `gorm:"type:uuid;not null;index"`
	ProjectID      *uuid.UUID             `gorm:"type:uuid;index"`
	Currency       valueobject.Currency   `gorm:"type:varchar(3);not null;default:'USD'"`
	IssueDate      time.Time              `gorm:"not null"`
	DueDate        time.Time              `gorm:"not null;index"`
	Items          billing.InvoiceItems   `gorm:"type:jsonb;default:'[]'"`
	TaxRate        decimal.Decimal        `gorm:"type:decimal(10,4);not null"`
	DiscountKind   billing.DiscountKind   `gorm:"type:varchar(20);not null;default:'NONE'"`
	DiscountValue  decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Subtotal       decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	DiscountAmount decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	TaxAmount      decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	TotalAmount    decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	PaidAmount     decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Status         billing.InvoiceStatus  `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	Terms          billing.InvoiceTerms   `gorm:"type:jsonb;default:'[]'"`
	Payments       billing.PaymentRecords `gorm:"type:jsonb;default:'[]'"`
	Notes          string                 `gorm:"type:text"`
	SentAt         *time.Time
	PaidAt         *time.Time
	CancelledAt    *time.Time
	CancelReason   string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		InvoiceNumber:     m.InvoiceNumber,
		ClientID:          m.ClientID,
		ProjectID:         m.ProjectID,
		Currency:          m.Currency,
		IssueDate:         m.IssueDate,
		DueDate:           m.DueDate,
		Items:             m.Items,
		TaxRate:           m.TaxRate,
		DiscountKind:      m.DiscountKind,
		DiscountValue:     m.DiscountValue,
		Subtotal:          m.Subtotal,
		DiscountAmount:    m.DiscountAmount,
		TaxAmount:         m.TaxAmount,
		TotalAmount:       m.TotalAmount,
		PaidAmount:        m.PaidAmount,
		Status:            m.Status,
		Terms:             m.Terms,
		Payments:          m.Payments,
		Notes:             m.Notes,
		SentAt:            m.SentAt,
		PaidAt:            m.PaidAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.ClientID = inv.ClientID
	m.ProjectID = inv.ProjectID
	m.Currency = inv.Currency
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.Items = inv.Items
	m.TaxRate = inv.TaxRate
	m.DiscountKind = inv.DiscountKind
	m.DiscountValue = inv.DiscountValue
	m.Subtotal = inv.Subtotal
	m.DiscountAmount = inv.DiscountAmount
	m.TaxAmount = inv.TaxAmount
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.Status = inv.Status
	m.Terms = inv.Terms
	m.Payments = inv.Payments
	m.Notes = inv.Notes
	m.SentAt = inv.SentAt
	m.PaidAt = inv.PaidAt
	m.CancelledAt = inv.CancelledAt
	m.CancelReason = inv.CancelReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// FinanceTransactionModel is the persistence model for the append-only
// transaction ledger.
type FinanceTransactionModel struct {
	AggregateModel
	Type        billing.TransactionType   `gorm:"type:varchar(10);not null;index"`
	Category    string                    `gorm:"type:varchar(100);not null;index"`
	Amount      decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Currency    valueobject.Currency      `gorm:"type:varchar(3);not null;default:'USD'"`
	Description string                    `gorm:"type:text"`
	OccurredAt  time.Time                 `gorm:"not null;index"`
	Source      billing.TransactionSource `gorm:"type:varchar(20);not null;index"`
	InvoiceID   *uuid.UUID                `gorm:"type:uuid;index"`
	PaymentID   *uuid.UUID                `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (FinanceTransactionModel) TableName() string {
	return "finance_transactions"
}

// ToDomain converts the persistence model to a domain FinanceTransaction entity.
func (m *FinanceTransactionModel) ToDomain() *billing.FinanceTransaction {
	return &billing.FinanceTransaction{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Type:              m.Type,
		Category:          m.Category,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Description:       m.Description,
		OccurredAt:        m.OccurredAt,
		Source:            m.Source,
		InvoiceID:         m.InvoiceID,
		PaymentID:         m.PaymentID,
	}
}

// FinanceTransactionModelFromDomain creates a new persistence model from a
// domain FinanceTransaction.
func FinanceTransactionModelFromDomain(tx *billing.FinanceTransaction) *FinanceTransactionModel {
	m := &FinanceTransactionModel{}
	m.FromDomainAggregateRoot(tx.BaseAggregateRoot)
	m.Type = tx.Type
	m.Category = tx.Category
	m.Amount = tx.Amount
	m.Currency = tx.Currency
	m.Description = tx.Description
	m.OccurredAt = tx.OccurredAt
	m.Source = tx.Source
	m.InvoiceID = tx.InvoiceID
	m.PaymentID = tx.PaymentID
	return m
}

// ClientModel is a minimal projection of the client directory. Invoices
// only reference clients; the billing context never manages them beyond
// the existence check.
type ClientModel struct {
	BaseModel
	Name string `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (ClientModel) TableName() string {
	return "clients"
}
