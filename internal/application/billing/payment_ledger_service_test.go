package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/cache"
	"github.com/billing/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockInvoiceRepository is an in-memory implementation of
// billing.InvoiceRepository with real optimistic locking semantics:
// reads hand out deep copies, and SaveWithLock only commits when the
// stored version matches the version the writer loaded.
type mockInvoiceRepository struct {
	mu          sync.Mutex
	invoices    map[uuid.UUID]*billing.Invoice
	numberSeq   int
	returnError error
}

func newMockInvoiceRepository() *mockInvoiceRepository {
	return &mockInvoiceRepository{
		invoices: make(map[uuid.UUID]*billing.Invoice),
	}
}

func cloneInvoice(inv *billing.Invoice) *billing.Invoice {
	data, err := json.Marshal(inv)
	if err != nil {
		panic(err)
	}
	var out billing.Invoice
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

func (m *mockInvoiceRepository) add(inv *billing.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = cloneInvoice(inv)
}

func (m *mockInvoiceRepository) get(id uuid.UUID) *billing.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneInvoice(m.invoices[id])
}

func (m *mockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	if m.returnError != nil {
		return nil, m.returnError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(inv), nil
}

func (m *mockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	if m.returnError != nil {
		return m.returnError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (m *mockInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	if m.returnError != nil {
		return m.returnError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.invoices[invoice.ID]
	if !ok {
		return shared.ErrNotFound
	}
	// The domain already incremented the version; the write only lands
	// if nobody else did since this writer loaded.
	if stored.Version != invoice.Version-1 {
		return shared.ErrConcurrencyConflict
	}
	m.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

// Implement remaining interface methods as no-ops for the mock
func (m *mockInvoiceRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (m *mockInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	return nil, errors.New("not implemented")
}

func (m *mockInvoiceRepository) FindByClient(ctx context.Context, clientID uuid.UUID, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	return nil, errors.New("not implemented")
}

func (m *mockInvoiceRepository) FindOverdue(ctx context.Context, asOf time.Time, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	return nil, errors.New("not implemented")
}

func (m *mockInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invoices, id)
	return nil
}

func (m *mockInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockInvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockInvoiceRepository) SumOutstanding(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not implemented")
}

func (m *mockInvoiceRepository) SumOverdue(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not implemented")
}

func (m *mockInvoiceRepository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numberSeq++
	return fmt.Sprintf("INV-20260115-%05d", m.numberSeq), nil
}

// conflictingInvoiceRepository always fails SaveWithLock, simulating a
// row under permanent contention
type conflictingInvoiceRepository struct {
	*mockInvoiceRepository
	attempts int
	mu       sync.Mutex
}

func (m *conflictingInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	m.mu.Lock()
	m.attempts++
	m.mu.Unlock()
	return shared.ErrConcurrencyConflict
}

// mockTransactionRepository is an in-memory append-only ledger
type mockTransactionRepository struct {
	mu      sync.Mutex
	entries []*billing.FinanceTransaction
}

func newMockTransactionRepository() *mockTransactionRepository {
	return &mockTransactionRepository{}
}

func (m *mockTransactionRepository) Append(ctx context.Context, tx *billing.FinanceTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, tx)
	return nil
}

func (m *mockTransactionRepository) all() []*billing.FinanceTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*billing.FinanceTransaction, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *mockTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.FinanceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.entries {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, nil
}

func (m *mockTransactionRepository) FindAll(ctx context.Context, filter billing.TransactionFilter) (*shared.Paginated[billing.FinanceTransaction], error) {
	return nil, errors.New("not implemented")
}

func (m *mockTransactionRepository) Count(ctx context.Context, filter billing.TransactionFilter) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockTransactionRepository) SumByType(ctx context.Context, txType billing.TransactionType, from, to time.Time) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("not implemented")
}

// mockLedgerUnitOfWork runs the callback directly against the mocks; the
// optimistic lock in the invoice repository provides the isolation the
// real transaction would.
type mockLedgerUnitOfWork struct {
	invoices     billing.InvoiceRepository
	transactions billing.FinanceTransactionRepository
}

func (m *mockLedgerUnitOfWork) Execute(ctx context.Context, fn func(billing.InvoiceRepository, billing.FinanceTransactionRepository) error) error {
	return fn(m.invoices, m.transactions)
}

type ledgerFixture struct {
	service  *PaymentLedgerService
	invoices *mockInvoiceRepository
	ledger   *mockTransactionRepository
}

func newLedgerFixture(t *testing.T, maxRetries int) *ledgerFixture {
	t.Helper()
	invoices := newMockInvoiceRepository()
	ledger := newMockTransactionRepository()
	uow := &mockLedgerUnitOfWork{invoices: invoices, transactions: ledger}
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	service := NewPaymentLedgerService(uow, invoices, store, config.LedgerConfig{
		MaxRetries:     maxRetries,
		IdempotencyTTL: time.Hour,
	})
	return &ledgerFixture{service: service, invoices: invoices, ledger: ledger}
}

// newSentInvoice builds an open invoice with the given total (no tax, no
// discount) and stores it in the fixture.
func (f *ledgerFixture) newSentInvoice(t *testing.T, total string) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewInvoice(
		"INV-20260115-00001",
		uuid.New(),
		nil,
		valueobject.USD,
		time.Now(),
		time.Now().AddDate(0, 1, 0),
		[]billing.LineItemInput{{
			Description: "Consulting",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.RequireFromString(total),
		}},
		decimal.Zero,
		billing.NoDiscount(),
		"",
	)
	require.NoError(t, err)
	require.NoError(t, inv.Send())
	f.invoices.add(inv)
	return inv
}

func paymentReq(invoiceID uuid.UUID, amount string) ApplyPaymentRequest {
	return ApplyPaymentRequest{
		InvoiceID: invoiceID,
		Amount:    decimal.RequireFromString(amount),
		Method:    billing.PaymentMethodBankTransfer,
		Reference: "TXN-REF",
		PaidAt:    time.Now(),
	}
}

func TestPaymentLedgerService_ApplyPayment(t *testing.T) {
	t.Run("records a partial payment and its ledger entry", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		result, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "400"))
		require.NoError(t, err)
		require.NotNil(t, result.Payment)
		assert.True(t, result.Payment.Amount.Equal(decimal.RequireFromString("400")))
		assert.Equal(t, billing.InvoiceStatusSent, result.Invoice.Status)

		stored := f.invoices.get(inv.ID)
		assert.True(t, stored.PaidAmount.Equal(decimal.RequireFromString("400")))
		assert.Equal(t, 2+1, stored.Version) // create, send, payment

		entries := f.ledger.all()
		require.Len(t, entries, 1)
		assert.Equal(t, billing.TransactionTypeIncome, entries[0].Type)
		assert.Equal(t, billing.TransactionSourceInvoicePayment, entries[0].Source)
		assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("400")))
		require.NotNil(t, entries[0].InvoiceID)
		assert.Equal(t, inv.ID, *entries[0].InvoiceID)
		assert.Equal(t, entries[0].ID, result.TransactionID)
	})

	t.Run("settles the invoice when payment covers the total", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		result, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "1000"))
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPaid, result.Invoice.Status)
		require.NotNil(t, result.Invoice.PaidAt)

		stored := f.invoices.get(inv.ID)
		assert.Equal(t, billing.InvoiceStatusPaid, stored.Status)
	})

	t.Run("rejects a payment exceeding the balance without touching the ledger", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		_, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "1000.01"))
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "OVERPAYMENT_REJECTED", domainErr.Code)

		stored := f.invoices.get(inv.ID)
		assert.True(t, stored.PaidAmount.IsZero())
		assert.Empty(t, f.ledger.all())
	})

	t.Run("returns not found for an unknown invoice", func(t *testing.T) {
		f := newLedgerFixture(t, 3)

		_, err := f.service.ApplyPayment(context.Background(), paymentReq(uuid.New(), "100"))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rejects a replayed idempotency key", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		req := paymentReq(inv.ID, "250")
		req.IdempotencyKey = "pay-7f3a"

		_, err := f.service.ApplyPayment(context.Background(), req)
		require.NoError(t, err)

		_, err = f.service.ApplyPayment(context.Background(), req)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "DUPLICATE_REQUEST", domainErr.Code)

		// The replay must not have touched the invoice or the ledger.
		stored := f.invoices.get(inv.ID)
		assert.True(t, stored.PaidAmount.Equal(decimal.RequireFromString("250")))
		assert.Len(t, f.ledger.all(), 1)
	})

	t.Run("a failed attempt does not consume the idempotency key", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		req := paymentReq(inv.ID, "2000")
		req.IdempotencyKey = "pay-8c1d"

		_, err := f.service.ApplyPayment(context.Background(), req)
		require.Error(t, err)

		req.Amount = decimal.RequireFromString("500")
		_, err = f.service.ApplyPayment(context.Background(), req)
		assert.NoError(t, err)
	})

	t.Run("surfaces contention after retries are exhausted", func(t *testing.T) {
		invoices := newMockInvoiceRepository()
		conflicting := &conflictingInvoiceRepository{mockInvoiceRepository: invoices}
		ledger := newMockTransactionRepository()
		uow := &mockLedgerUnitOfWork{invoices: conflicting, transactions: ledger}
		service := NewPaymentLedgerService(uow, conflicting, nil, config.LedgerConfig{MaxRetries: 3})

		f := &ledgerFixture{service: service, invoices: invoices, ledger: ledger}
		inv := f.newSentInvoice(t, "1000")

		_, err := service.ApplyPayment(context.Background(), paymentReq(inv.ID, "100"))
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrLedgerContention)
		assert.Equal(t, 3, conflicting.attempts)
		assert.Empty(t, ledger.all())
	})
}

func TestPaymentLedgerService_ConcurrentPayments(t *testing.T) {
	t.Run("racing payments never jointly exceed the invoice total", func(t *testing.T) {
		// Conflicts only occur when another writer committed, and at most
		// ten commits fit in the total, so twenty retries can never be
		// exhausted before an attempt resolves.
		f := newLedgerFixture(t, 20)
		inv := f.newSentInvoice(t, "1000")

		const workers = 15
		results := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "100"))
				results[i] = err
			}(i)
		}
		wg.Wait()

		succeeded, rejected := 0, 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "OVERPAYMENT_REJECTED", domainErr.Code)
			rejected++
		}
		assert.Equal(t, 10, succeeded)
		assert.Equal(t, 5, rejected)

		stored := f.invoices.get(inv.ID)
		assert.True(t, stored.PaidAmount.Equal(decimal.RequireFromString("1000")),
			"paid %s, want exactly 1000", stored.PaidAmount)
		assert.Equal(t, billing.InvoiceStatusPaid, stored.Status)
		assert.Len(t, f.ledger.all(), 10)
	})

	t.Run("exactly one of two racing payments against the same balance wins", func(t *testing.T) {
		f := newLedgerFixture(t, 20)
		inv := f.newSentInvoice(t, "1000")

		_, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "600"))
		require.NoError(t, err)

		// Remaining balance is 400; two racing 300 payments cannot both fit.
		results := make([]error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "300"))
				results[i] = err
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "OVERPAYMENT_REJECTED", domainErr.Code)
		}
		assert.Equal(t, 1, succeeded)

		stored := f.invoices.get(inv.ID)
		assert.True(t, stored.PaidAmount.Equal(decimal.RequireFromString("900")))
		assert.Equal(t, billing.InvoiceStatusSent, stored.Status)
	})
}

func TestPaymentLedgerService_RefundPayment(t *testing.T) {
	refundReq := func(invoiceID, paymentID uuid.UUID, amount string) RefundPaymentRequest {
		return RefundPaymentRequest{
			InvoiceID: invoiceID,
			PaymentID: paymentID,
			Amount:    decimal.RequireFromString(amount),
			Reason:    "Service credit",
		}
	}

	t.Run("refunds part of a payment and appends the compensating entry", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		paid, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "1000"))
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPaid, paid.Invoice.Status)

		result, err := f.service.RefundPayment(context.Background(), refundReq(inv.ID, paid.Payment.ID, "300"))
		require.NoError(t, err)
		assert.True(t, result.Payment.RefundedAmount.Equal(decimal.RequireFromString("300")))
		assert.Equal(t, billing.PaymentRecordStatusPartiallyRefunded, result.Payment.Status)

		// The refund reopens the invoice.
		stored := f.invoices.get(inv.ID)
		assert.Equal(t, billing.InvoiceStatusSent, stored.Status)
		assert.True(t, stored.PaidAmount.Equal(decimal.RequireFromString("700")))
		assert.Nil(t, stored.PaidAt)

		entries := f.ledger.all()
		require.Len(t, entries, 2)
		refundEntry := entries[1]
		assert.Equal(t, billing.TransactionTypeExpense, refundEntry.Type)
		assert.Equal(t, billing.TransactionSourceInvoiceRefund, refundEntry.Source)
		assert.True(t, refundEntry.Amount.Equal(decimal.RequireFromString("300")))
		require.NotNil(t, refundEntry.PaymentID)
		assert.Equal(t, paid.Payment.ID, *refundEntry.PaymentID)
	})

	t.Run("rejects a refund exceeding the refundable amount", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		paid, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "500"))
		require.NoError(t, err)

		_, err = f.service.RefundPayment(context.Background(), refundReq(inv.ID, paid.Payment.ID, "500.01"))
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "REFUND_NOT_ELIGIBLE", domainErr.Code)
		assert.Len(t, f.ledger.all(), 1)
	})

	t.Run("returns not found for an unknown payment", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		_, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "500"))
		require.NoError(t, err)

		_, err = f.service.RefundPayment(context.Background(), refundReq(inv.ID, uuid.New(), "100"))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("payment after a refund honors the reopened balance", func(t *testing.T) {
		f := newLedgerFixture(t, 3)
		inv := f.newSentInvoice(t, "1000")

		paid, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "1000"))
		require.NoError(t, err)

		_, err = f.service.RefundPayment(context.Background(), refundReq(inv.ID, paid.Payment.ID, "250"))
		require.NoError(t, err)

		// Remaining is 250 again: 251 must be rejected, 250 settles.
		_, err = f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "251"))
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "OVERPAYMENT_REJECTED", domainErr.Code)

		result, err := f.service.ApplyPayment(context.Background(), paymentReq(inv.ID, "250"))
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusPaid, result.Invoice.Status)
	})
}
