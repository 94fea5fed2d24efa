package billing

import (
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFinanceTransaction(t *testing.T) {
	t.Run("creates manual entry", func(t *testing.T) {
		tx, err := NewFinanceTransaction(TransactionTypeExpense, "office_rent", usd("1200"), "August rent", time.Now())

		require.NoError(t, err)
		assert.Equal(t, TransactionSourceManual, tx.Source)
		assert.True(t, tx.Amount.Equal(dec("1200")))
		assert.True(t, tx.SignedAmount().Equal(dec("-1200")))
		assert.Nil(t, tx.InvoiceID)
		assert.Len(t, tx.GetDomainEvents(), 1)
	})

	t.Run("rounds amount to the smallest currency unit", func(t *testing.T) {
		tx, err := NewFinanceTransaction(TransactionTypeIncome, "interest", usd("10.005"), "", time.Now())

		require.NoError(t, err)
		assert.True(t, tx.Amount.Equal(dec("10.01")))
		assert.True(t, tx.SignedAmount().Equal(dec("10.01")))
	})

	t.Run("rejects invalid type", func(t *testing.T) {
		_, err := NewFinanceTransaction(TransactionType("TRANSFER"), "misc", usd("10"), "", time.Now())
		assertCode(t, err, "INVALID_TRANSACTION_TYPE")
	})

	t.Run("rejects empty category", func(t *testing.T) {
		_, err := NewFinanceTransaction(TransactionTypeIncome, "  ", usd("10"), "", time.Now())
		assertCode(t, err, "INVALID_CATEGORY")
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := NewFinanceTransaction(TransactionTypeIncome, "misc", usd("0"), "", time.Now())
		assertCode(t, err, "INVALID_AMOUNT")
	})

	t.Run("defaults occurrence time", func(t *testing.T) {
		tx, err := NewFinanceTransaction(TransactionTypeIncome, "misc", usd("10"), "", time.Time{})
		require.NoError(t, err)
		assert.False(t, tx.OccurredAt.IsZero())
	})
}

func TestPaymentAndRefundTransactions(t *testing.T) {
	inv := createSentInvoice(t)
	record := applyPayment(t, inv, "100")

	payTx, err := NewPaymentTransaction(inv, record)
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeIncome, payTx.Type)
	assert.Equal(t, TransactionSourceInvoicePayment, payTx.Source)
	assert.True(t, payTx.Amount.Equal(dec("100")))
	require.NotNil(t, payTx.InvoiceID)
	assert.Equal(t, inv.ID, *payTx.InvoiceID)
	require.NotNil(t, payTx.PaymentID)
	assert.Equal(t, record.ID, *payTx.PaymentID)

	refunded, err := inv.RefundPayment(record.ID, valueobject.NewMoneyUSD(dec("40")), "partial return")
	require.NoError(t, err)

	refundTx, err := NewRefundTransaction(inv, refunded, dec("40"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, TransactionTypeExpense, refundTx.Type)
	assert.Equal(t, TransactionSourceInvoiceRefund, refundTx.Source)
	assert.True(t, refundTx.SignedAmount().Equal(dec("-40")))
}
