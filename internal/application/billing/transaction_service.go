package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionService manages manual entries in the append-only ledger.
// Payment and refund entries are appended by the PaymentLedgerService.
type TransactionService struct {
	txRepo billing.FinanceTransactionRepository
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(txRepo billing.FinanceTransactionRepository) *TransactionService {
	return &TransactionService{txRepo: txRepo}
}

// RecordTransactionRequest represents a manual ledger entry
type RecordTransactionRequest struct {
	Type        billing.TransactionType
	Category    string
	Amount      decimal.Decimal
	Currency    string
	Description string
	OccurredAt  time.Time
}

// RecordTransaction appends a manual income or expense entry
func (s *TransactionService) RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*billing.FinanceTransaction, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transaction", "record")
	defer span.End()

	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		currency = valueobject.Currency(req.Currency)
	}
	if !currency.IsValid() {
		err := shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Currency %q is not supported", currency))
		telemetry.RecordError(span, err)
		return nil, err
	}
	amount, err := valueobject.NewMoney(req.Amount, currency)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, shared.NewDomainError("INVALID_AMOUNT", err.Error())
	}

	tx, err := billing.NewFinanceTransaction(req.Type, req.Category, amount, req.Description, req.OccurredAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.txRepo.Append(ctx, tx); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	return tx, nil
}

// GetTransaction loads a single ledger entry
func (s *TransactionService) GetTransaction(ctx context.Context, id uuid.UUID) (*billing.FinanceTransaction, error) {
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil {
		return nil, shared.ErrNotFound
	}
	return tx, nil
}

// ListTransactions returns ledger entries matching the filter
func (s *TransactionService) ListTransactions(ctx context.Context, filter billing.TransactionFilter) (*shared.Paginated[billing.FinanceTransaction], error) {
	result, err := s.txRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return result, nil
}
