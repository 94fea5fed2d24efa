package billing

import (
	"context"
	"time"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	ClientID  *uuid.UUID       // Filter by client
	ProjectID *uuid.UUID       // Filter by project
	Status    *InvoiceStatus   // Filter by stored status
	Overdue   *bool            // Filter only overdue invoices
	FromDate  *time.Time       // Filter by issue date range start
	ToDate    *time.Time       // Filter by issue date range end
	DueFrom   *time.Time       // Filter by due date range start
	DueTo     *time.Time       // Filter by due date range end
	MinAmount *decimal.Decimal // Filter by minimum total amount
	MaxAmount *decimal.Decimal // Filter by maximum total amount
}

// InvoiceRepository defines the interface for invoice persistence
type InvoiceRepository interface {
	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber finds an invoice by its number
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*Invoice, error)

	// FindAll finds invoices matching the filter with pagination
	FindAll(ctx context.Context, filter InvoiceFilter) (*shared.Paginated[Invoice], error)

	// FindByClient finds invoices for a client
	FindByClient(ctx context.Context, clientID uuid.UUID, filter InvoiceFilter) (*shared.Paginated[Invoice], error)

	// FindOverdue finds open invoices past their due date as of the given time
	FindOverdue(ctx context.Context, asOf time.Time, filter InvoiceFilter) (*shared.Paginated[Invoice], error)

	// Save creates or updates an invoice without a version check
	Save(ctx context.Context, invoice *Invoice) error

	// SaveWithLock updates an invoice with an optimistic version check.
	// Returns shared.ErrConcurrencyConflict if another writer got there first.
	SaveWithLock(ctx context.Context, invoice *Invoice) error

	// Delete soft deletes an invoice
	Delete(ctx context.Context, id uuid.UUID) error

	// Count counts invoices matching the filter
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// ExistsByInvoiceNumber checks if an invoice number is already taken
	ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error)

	// SumOutstanding sums the face value of all open invoices
	SumOutstanding(ctx context.Context) (decimal.Decimal, error)

	// SumOverdue sums the unpaid balance of open invoices past due as of the given time
	SumOverdue(ctx context.Context, asOf time.Time) (decimal.Decimal, error)

	// GenerateInvoiceNumber generates the next unique invoice number
	GenerateInvoiceNumber(ctx context.Context) (string, error)
}

// TransactionFilter defines filtering options for ledger entry queries
type TransactionFilter struct {
	shared.Filter
	Type      *TransactionType   // Filter by income/expense
	Category  *string            // Filter by category
	Source    *TransactionSource // Filter by origin
	InvoiceID *uuid.UUID         // Filter by linked invoice
	FromDate  *time.Time         // Filter by occurrence date range start
	ToDate    *time.Time         // Filter by occurrence date range end
}

// FinanceTransactionRepository defines the interface for the append-only
// transaction ledger. There is deliberately no update or delete.
type FinanceTransactionRepository interface {
	// FindByID finds a transaction by ID
	FindByID(ctx context.Context, id uuid.UUID) (*FinanceTransaction, error)

	// FindAll finds transactions matching the filter with pagination
	FindAll(ctx context.Context, filter TransactionFilter) (*shared.Paginated[FinanceTransaction], error)

	// Append adds a new entry to the ledger
	Append(ctx context.Context, tx *FinanceTransaction) error

	// Count counts transactions matching the filter
	Count(ctx context.Context, filter TransactionFilter) (int64, error)

	// SumByType sums transaction amounts of the given type in a date range
	SumByType(ctx context.Context, txType TransactionType, from, to time.Time) (decimal.Decimal, error)
}

// LedgerUnitOfWork runs a payment or refund mutation atomically: the
// invoice version-checked update and the mirroring ledger entry commit
// together or not at all.
type LedgerUnitOfWork interface {
	Execute(ctx context.Context, fn func(invoices InvoiceRepository, transactions FinanceTransactionRepository) error) error
}

// ClientDirectory answers whether a client exists. Invoices reference
// clients owned by another context; only the existence check crosses the
// boundary.
type ClientDirectory interface {
	ClientExists(ctx context.Context, clientID uuid.UUID) (bool, error)
}
