package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// invoiceModelSQLite mirrors InvoiceModel with SQLite-compatible column types
type invoiceModelSQLite struct {
	ID             string `gorm:"primaryKey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int    `gorm:"not null;default:1"`
	InvoiceNumber  string `gorm:"not null;uniqueIndex"`
	ClientID       string `gorm:"not null;index"`
	ProjectID      *string
	Currency       string `gorm:"not null;default:'USD'"`
	IssueDate      time.Time
	DueDate        time.Time
	Items          string `gorm:"default:'[]'"`
	TaxRate        string
	DiscountKind   string `gorm:"default:'NONE'"`
	DiscountValue  string
	Subtotal       string
	DiscountAmount string
	TaxAmount      string
	TotalAmount    string
	PaidAmount     string
	Status         string `gorm:"default:'DRAFT';index"`
	Terms          string `gorm:"default:'[]'"`
	Payments       string `gorm:"default:'[]'"`
	Notes          string
	SentAt         *time.Time
	PaidAt         *time.Time
	CancelledAt    *time.Time
	CancelReason   string
}

func (invoiceModelSQLite) TableName() string {
	return "invoices"
}

// financeTransactionModelSQLite mirrors FinanceTransactionModel for SQLite
type financeTransactionModelSQLite struct {
	ID          string `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int    `gorm:"not null;default:1"`
	Type        string `gorm:"not null;index"`
	Category    string `gorm:"not null;index"`
	Amount      string
	Currency    string `gorm:"not null;default:'USD'"`
	Description string
	OccurredAt  time.Time `gorm:"index"`
	Source      string    `gorm:"not null;index"`
	InvoiceID   *string   `gorm:"index"`
	PaymentID   *string   `gorm:"index"`
}

func (financeTransactionModelSQLite) TableName() string {
	return "finance_transactions"
}

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&invoiceModelSQLite{}, &financeTransactionModelSQLite{})
	require.NoError(t, err)

	return db
}

// seedSentInvoice persists a freshly sent invoice and returns it reloaded
func seedSentInvoice(t *testing.T, db *gorm.DB, total int64) *billing.Invoice {
	t.Helper()

	inv, err := billing.NewInvoice(
		"INV-20260115-00001",
		uuid.New(),
		nil,
		valueobject.USD,
		time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		[]billing.LineItemInput{
			{Description: "Consulting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(total)},
		},
		decimal.Zero,
		billing.NoDiscount(),
		"",
	)
	require.NoError(t, err)
	require.NoError(t, inv.Send())

	repo := NewGormInvoiceRepository(db)
	require.NoError(t, repo.Save(context.Background(), inv))

	stored, err := repo.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	return stored
}

func TestGormLedgerUnitOfWork_Execute(t *testing.T) {
	t.Run("commits invoice update and ledger entry together", func(t *testing.T) {
		db := setupLedgerTestDB(t)
		inv := seedSentInvoice(t, db, 500)
		uow := NewGormLedgerUnitOfWork(db)
		ctx := context.Background()

		err := uow.Execute(ctx, func(invoices billing.InvoiceRepository, transactions billing.FinanceTransactionRepository) error {
			loaded, err := invoices.FindByID(ctx, inv.ID)
			if err != nil {
				return err
			}

			record, err := loaded.ApplyPayment(
				valueobject.NewMoneyUSD(decimal.NewFromInt(200)),
				nil, billing.PaymentMethodBankTransfer, "wire-001", time.Now(),
			)
			if err != nil {
				return err
			}

			if err := invoices.SaveWithLock(ctx, loaded); err != nil {
				return err
			}

			entry, err := billing.NewPaymentTransaction(loaded, record)
			if err != nil {
				return err
			}
			return transactions.Append(ctx, entry)
		})
		require.NoError(t, err)

		stored, err := NewGormInvoiceRepository(db).FindByID(ctx, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.PaidAmount.Equal(decimal.NewFromInt(200)))
		assert.Equal(t, inv.Version+1, stored.Version)
		assert.Equal(t, billing.InvoiceStatusSent, stored.Status)
		assert.Len(t, stored.Payments, 1)

		var entryCount int64
		require.NoError(t, db.Table("finance_transactions").Count(&entryCount).Error)
		assert.Equal(t, int64(1), entryCount)
	})

	t.Run("clears paid_at in the database when a refund reopens the invoice", func(t *testing.T) {
		db := setupLedgerTestDB(t)
		inv := seedSentInvoice(t, db, 500)
		repo := NewGormInvoiceRepository(db)
		ctx := context.Background()

		record, err := inv.ApplyPayment(
			valueobject.NewMoneyUSD(decimal.NewFromInt(500)),
			nil, billing.PaymentMethodBankTransfer, "wire-003", time.Now(),
		)
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, inv))

		settled, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, settled)
		require.Equal(t, billing.InvoiceStatusPaid, settled.Status)
		require.NotNil(t, settled.PaidAt)

		_, err = settled.RefundPayment(record.ID, valueobject.NewMoneyUSD(decimal.NewFromInt(200)), "overcharge")
		require.NoError(t, err)
		require.NoError(t, repo.SaveWithLock(ctx, settled))

		reopened, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		require.NotNil(t, reopened)
		assert.Equal(t, billing.InvoiceStatusSent, reopened.Status)
		assert.True(t, reopened.PaidAmount.Equal(decimal.NewFromInt(300)))
		assert.Nil(t, reopened.PaidAt, "paid_at must be cleared in the database when the invoice reopens")
	})

	t.Run("rolls back the ledger entry when the invoice update fails", func(t *testing.T) {
		db := setupLedgerTestDB(t)
		inv := seedSentInvoice(t, db, 500)
		uow := NewGormLedgerUnitOfWork(db)
		ctx := context.Background()

		err := uow.Execute(ctx, func(invoices billing.InvoiceRepository, transactions billing.FinanceTransactionRepository) error {
			loaded, err := invoices.FindByID(ctx, inv.ID)
			if err != nil {
				return err
			}

			record, err := loaded.ApplyPayment(
				valueobject.NewMoneyUSD(decimal.NewFromInt(200)),
				nil, billing.PaymentMethodBankTransfer, "wire-002", time.Now(),
			)
			if err != nil {
				return err
			}

			entry, err := billing.NewPaymentTransaction(loaded, record)
			if err != nil {
				return err
			}
			if err := transactions.Append(ctx, entry); err != nil {
				return err
			}

			// Simulate a concurrent writer having bumped the version
			loaded.Version++
			return invoices.SaveWithLock(ctx, loaded)
		})
		require.Error(t, err)

		stored, findErr := NewGormInvoiceRepository(db).FindByID(ctx, inv.ID)
		require.NoError(t, findErr)
		require.NotNil(t, stored)
		assert.True(t, stored.PaidAmount.IsZero())
		assert.Equal(t, inv.Version, stored.Version)
		assert.Empty(t, stored.Payments)

		var entryCount int64
		require.NoError(t, db.Table("finance_transactions").Count(&entryCount).Error)
		assert.Equal(t, int64(0), entryCount)
	})
}
