package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingapp "github.com/billing/backend/internal/application/billing"
	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/cache"
	"github.com/billing/backend/internal/infrastructure/config"
	"github.com/billing/backend/internal/interfaces/http/dto"
)

// MockFinanceTransactionRepository implements billing.FinanceTransactionRepository for testing
type MockFinanceTransactionRepository struct {
	mock.Mock
}

func (m *MockFinanceTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.FinanceTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.FinanceTransaction), args.Error(1)
}

func (m *MockFinanceTransactionRepository) FindAll(ctx context.Context, filter billing.TransactionFilter) (*shared.Paginated[billing.FinanceTransaction], error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[billing.FinanceTransaction]), args.Error(1)
}

func (m *MockFinanceTransactionRepository) Append(ctx context.Context, tx *billing.FinanceTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockFinanceTransactionRepository) Count(ctx context.Context, filter billing.TransactionFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFinanceTransactionRepository) SumByType(ctx context.Context, txType billing.TransactionType, from, to time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, txType, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// fakeLedgerUnitOfWork hands the repositories straight to the callback,
// without transaction semantics. Commit/rollback behavior is covered by
// the persistence tests.
type fakeLedgerUnitOfWork struct {
	invoices     billing.InvoiceRepository
	transactions billing.FinanceTransactionRepository
}

func (u *fakeLedgerUnitOfWork) Execute(ctx context.Context, fn func(billing.InvoiceRepository, billing.FinanceTransactionRepository) error) error {
	return fn(u.invoices, u.transactions)
}

func setupPaymentRouter(repo *MockInvoiceRepository, txRepo *MockFinanceTransactionRepository) *gin.Engine {
	uow := &fakeLedgerUnitOfWork{invoices: repo, transactions: txRepo}
	service := billingapp.NewPaymentLedgerService(uow, repo, cache.NewInMemoryIdempotencyStore(), config.LedgerConfig{
		MaxRetries:     3,
		IdempotencyTTL: time.Hour,
	})
	h := NewPaymentHandler(service)

	engine := gin.New()
	api := engine.Group("/api/v1")
	h.RegisterRoutes(api)
	return engine
}

func mustUSD(t *testing.T, amount string) valueobject.Money {
	t.Helper()
	d, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	m, err := valueobject.NewMoney(d, valueobject.USD)
	require.NoError(t, err)
	return m
}

func sentInvoice(t *testing.T) *billing.Invoice {
	t.Helper()
	inv := draftInvoice(t)
	require.NoError(t, inv.Send())
	return inv
}

func applyPaymentRequest(t *testing.T, invoiceID uuid.UUID, body map[string]any, idempotencyKey string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/invoices/%s/payments", invoiceID), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}
	return req
}

func TestPaymentHandlerApplyPayment(t *testing.T) {
	body := map[string]any{
		"amount":    "200",
		"method":    "BANK_TRANSFER",
		"reference": "wire-001",
	}

	t.Run("records a partial payment", func(t *testing.T) {
		inv := sentInvoice(t)
		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		repo.On("SaveWithLock", mock.Anything, inv).Return(nil)
		txRepo.On("Append", mock.Anything, mock.AnythingOfType("*billing.FinanceTransaction")).Return(nil)

		engine := setupPaymentRouter(repo, txRepo)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, applyPaymentRequest(t, inv.ID, body, ""))

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]any)
		invoice := data["invoice"].(map[string]any)
		assert.Equal(t, "200", invoice["paid_amount"])
		assert.Equal(t, "300", invoice["remaining_amount"])
		assert.Equal(t, string(billing.InvoiceStatusSent), invoice["status"])

		payment := data["payment"].(map[string]any)
		assert.Equal(t, "200", payment["amount"])
		assert.Equal(t, "BANK_TRANSFER", payment["method"])

		repo.AssertExpectations(t)
		txRepo.AssertExpectations(t)
	})

	t.Run("rejects overpayment without touching the ledger", func(t *testing.T) {
		inv := sentInvoice(t)
		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)

		engine := setupPaymentRouter(repo, txRepo)

		over := map[string]any{"amount": "600", "method": "CASH"}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, applyPaymentRequest(t, inv.ID, over, ""))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "OVERPAYMENT_REJECTED", resp.Error.Code)
		repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
		txRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("rejects a replayed idempotency key", func(t *testing.T) {
		inv := sentInvoice(t)
		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		repo.On("SaveWithLock", mock.Anything, inv).Return(nil)
		txRepo.On("Append", mock.Anything, mock.AnythingOfType("*billing.FinanceTransaction")).Return(nil)

		engine := setupPaymentRouter(repo, txRepo)

		first := httptest.NewRecorder()
		engine.ServeHTTP(first, applyPaymentRequest(t, inv.ID, body, "pay-once"))
		require.Equal(t, http.StatusCreated, first.Code)

		second := httptest.NewRecorder()
		engine.ServeHTTP(second, applyPaymentRequest(t, inv.ID, body, "pay-once"))
		assert.Equal(t, http.StatusConflict, second.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "DUPLICATE_REQUEST", resp.Error.Code)

		txRepo.AssertNumberOfCalls(t, "Append", 1)
	})

	t.Run("409 when retries are exhausted", func(t *testing.T) {
		inv := sentInvoice(t)
		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		repo.On("SaveWithLock", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict)

		engine := setupPaymentRouter(repo, txRepo)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, applyPaymentRequest(t, inv.ID, body, ""))

		assert.Equal(t, http.StatusConflict, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "LEDGER_CONTENTION", resp.Error.Code)
		repo.AssertNumberOfCalls(t, "SaveWithLock", 3)
	})

	t.Run("404 for unknown invoice", func(t *testing.T) {
		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, mock.Anything).Return(nil, nil)

		engine := setupPaymentRouter(repo, txRepo)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, applyPaymentRequest(t, uuid.New(), body, ""))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPaymentHandlerRefund(t *testing.T) {
	t.Run("refunds a recorded payment", func(t *testing.T) {
		inv := sentInvoice(t)
		record, err := inv.ApplyPayment(mustUSD(t, "200"), nil, billing.PaymentMethodCard, "card-1", time.Now())
		require.NoError(t, err)

		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)
		repo.On("SaveWithLock", mock.Anything, inv).Return(nil)
		txRepo.On("Append", mock.Anything, mock.AnythingOfType("*billing.FinanceTransaction")).Return(nil)

		engine := setupPaymentRouter(repo, txRepo)

		payload, _ := json.Marshal(map[string]any{
			"amount": "50",
			"reason": "overcharged",
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/invoices/%s/payments/%s/refund", inv.ID, record.ID), bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]any)
		invoice := data["invoice"].(map[string]any)
		assert.Equal(t, "150", invoice["paid_amount"])

		payment := data["payment"].(map[string]any)
		assert.Equal(t, "50", payment["refunded_amount"])

		repo.AssertExpectations(t)
		txRepo.AssertExpectations(t)
	})

	t.Run("rejects refund beyond the payment", func(t *testing.T) {
		inv := sentInvoice(t)
		record, err := inv.ApplyPayment(mustUSD(t, "100"), nil, billing.PaymentMethodCash, "", time.Now())
		require.NoError(t, err)

		repo := new(MockInvoiceRepository)
		txRepo := new(MockFinanceTransactionRepository)
		repo.On("FindByID", mock.Anything, inv.ID).Return(inv, nil)

		engine := setupPaymentRouter(repo, txRepo)

		payload, _ := json.Marshal(map[string]any{
			"amount": "150",
			"reason": "too much",
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/invoices/%s/payments/%s/refund", inv.ID, record.ID), bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "REFUND_NOT_ELIGIBLE", resp.Error.Code)
		txRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})
}
