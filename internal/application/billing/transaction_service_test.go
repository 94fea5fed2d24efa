package billing

import (
	"context"
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionService_RecordTransaction(t *testing.T) {
	t.Run("records a manual expense entry", func(t *testing.T) {
		repo := newMockTransactionRepository()
		service := NewTransactionService(repo)

		tx, err := service.RecordTransaction(context.Background(), RecordTransactionRequest{
			Type:        billing.TransactionTypeExpense,
			Category:    "office_rent",
			Amount:      decimal.RequireFromString("1250.50"),
			Description: "August rent",
			OccurredAt:  time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, billing.TransactionSourceManual, tx.Source)
		assert.True(t, tx.Amount.Equal(decimal.RequireFromString("1250.50")))
		assert.True(t, tx.SignedAmount().IsNegative())
		assert.Len(t, repo.all(), 1)
	})

	t.Run("rejects an unsupported currency", func(t *testing.T) {
		service := NewTransactionService(newMockTransactionRepository())

		_, err := service.RecordTransaction(context.Background(), RecordTransactionRequest{
			Type:     billing.TransactionTypeIncome,
			Category: "consulting",
			Amount:   decimal.NewFromInt(100),
			Currency: "XYZ",
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_CURRENCY", domainErr.Code)
	})

	t.Run("rejects an invalid type", func(t *testing.T) {
		service := NewTransactionService(newMockTransactionRepository())

		_, err := service.RecordTransaction(context.Background(), RecordTransactionRequest{
			Type:     billing.TransactionType("TRANSFER"),
			Category: "misc",
			Amount:   decimal.NewFromInt(100),
		})
		assert.Error(t, err)
	})
}

func TestTransactionService_GetTransaction(t *testing.T) {
	repo := newMockTransactionRepository()
	service := NewTransactionService(repo)

	recorded, err := service.RecordTransaction(context.Background(), RecordTransactionRequest{
		Type:     billing.TransactionTypeIncome,
		Category: "consulting",
		Amount:   decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	found, err := service.GetTransaction(context.Background(), recorded.ID)
	require.NoError(t, err)
	assert.Equal(t, recorded.ID, found.ID)

	_, err = service.GetTransaction(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
