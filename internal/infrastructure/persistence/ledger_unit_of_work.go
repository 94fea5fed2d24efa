package persistence

import (
	"context"

	"github.com/billing/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormLedgerUnitOfWork runs ledger mutations inside a single database
// transaction: the version-checked invoice update and the appended
// transaction entry commit together or not at all.
type GormLedgerUnitOfWork struct {
	db *gorm.DB
}

// NewGormLedgerUnitOfWork creates a new GormLedgerUnitOfWork
func NewGormLedgerUnitOfWork(db *gorm.DB) *GormLedgerUnitOfWork {
	return &GormLedgerUnitOfWork{db: db}
}

// Execute runs fn with transaction-scoped repositories. Any error from fn
// rolls the whole unit back, including an optimistic lock conflict.
func (u *GormLedgerUnitOfWork) Execute(ctx context.Context, fn func(invoices billing.InvoiceRepository, transactions billing.FinanceTransactionRepository) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormInvoiceRepository(tx), NewGormFinanceTransactionRepository(tx))
	})
}
