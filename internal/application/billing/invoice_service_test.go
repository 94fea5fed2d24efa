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

// mockClientDirectory answers existence checks from a fixed set
type mockClientDirectory struct {
	known       map[uuid.UUID]bool
	returnError error
}

func newMockClientDirectory(ids ...uuid.UUID) *mockClientDirectory {
	known := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return &mockClientDirectory{known: known}
}

func (m *mockClientDirectory) ClientExists(ctx context.Context, clientID uuid.UUID) (bool, error) {
	if m.returnError != nil {
		return false, m.returnError
	}
	return m.known[clientID], nil
}

type invoiceFixture struct {
	service  *InvoiceService
	invoices *mockInvoiceRepository
	clientID uuid.UUID
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()
	invoices := newMockInvoiceRepository()
	clientID := uuid.New()
	return &invoiceFixture{
		service:  NewInvoiceService(invoices, newMockClientDirectory(clientID)),
		invoices: invoices,
		clientID: clientID,
	}
}

func createRequest(clientID uuid.UUID) CreateInvoiceRequest {
	return CreateInvoiceRequest{
		ClientID:  clientID,
		IssueDate: time.Now(),
		DueDate:   time.Now().AddDate(0, 1, 0),
		Items: []ItemInput{
			{Description: "Development", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(150)},
			{Description: "Code review", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(250)},
		},
		TaxRate: decimal.NewFromInt(10),
	}
}

func TestInvoiceService_CreateInvoice(t *testing.T) {
	t.Run("drafts an invoice with a generated number", func(t *testing.T) {
		f := newInvoiceFixture(t)

		invoice, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)
		assert.Equal(t, "INV-20260115-00001", invoice.InvoiceNumber)
		assert.Equal(t, billing.InvoiceStatusDraft, invoice.Status)
		// 1500 + 500 subtotal, 10% tax
		assert.True(t, invoice.TotalAmount.Equal(decimal.RequireFromString("2200")))

		stored := f.invoices.get(invoice.ID)
		assert.Equal(t, invoice.InvoiceNumber, stored.InvoiceNumber)
	})

	t.Run("rejects an unknown client", func(t *testing.T) {
		f := newInvoiceFixture(t)

		_, err := f.service.CreateInvoice(context.Background(), createRequest(uuid.New()))
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "CLIENT_NOT_FOUND", domainErr.Code)
	})

	t.Run("defaults to USD when no currency is given", func(t *testing.T) {
		f := newInvoiceFixture(t)

		invoice, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)
		assert.Equal(t, "USD", string(invoice.Currency))
	})

	t.Run("rejects an unsupported currency", func(t *testing.T) {
		f := newInvoiceFixture(t)

		req := createRequest(f.clientID)
		req.Currency = "DOGE"
		_, err := f.service.CreateInvoice(context.Background(), req)
		assert.Error(t, err)
	})
}

func TestInvoiceService_Lifecycle(t *testing.T) {
	t.Run("updates a draft and recomputes totals", func(t *testing.T) {
		f := newInvoiceFixture(t)
		invoice, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)

		updated, err := f.service.UpdateInvoice(context.Background(), invoice.ID, UpdateInvoiceRequest{
			IssueDate: invoice.IssueDate,
			DueDate:   invoice.DueDate,
			Items: []ItemInput{
				{Description: "Development", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(100)},
			},
			TaxRate: decimal.Zero,
		})
		require.NoError(t, err)
		assert.True(t, updated.TotalAmount.Equal(decimal.RequireFromString("400")))

		stored := f.invoices.get(invoice.ID)
		assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("400")))
	})

	t.Run("schedules terms on a draft", func(t *testing.T) {
		f := newInvoiceFixture(t)
		invoice, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)

		updated, err := f.service.ScheduleTerms(context.Background(), invoice.ID, []TermInput{
			{Sequence: 1, Percentage: decimal.NewFromInt(50), DueDate: time.Now().AddDate(0, 0, 15)},
			{Sequence: 2, Percentage: decimal.NewFromInt(50), DueDate: time.Now().AddDate(0, 1, 0)},
		})
		require.NoError(t, err)
		require.Len(t, updated.Terms, 2)
		assert.True(t, updated.Terms[0].Amount.Equal(decimal.RequireFromString("1100")))
		assert.True(t, updated.Terms[1].Amount.Equal(decimal.RequireFromString("1100")))
	})

	t.Run("sends a draft and opens it for payment", func(t *testing.T) {
		f := newInvoiceFixture(t)
		invoice, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)

		sent, err := f.service.SendInvoice(context.Background(), invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusSent, sent.Status)
		require.NotNil(t, sent.SentAt)
	})

	t.Run("cancels an unpaid invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		invoice, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)
		_, err = f.service.SendInvoice(context.Background(), invoice.ID)
		require.NoError(t, err)

		cancelled, err := f.service.CancelInvoice(context.Background(), invoice.ID, "Client withdrew")
		require.NoError(t, err)
		assert.Equal(t, billing.InvoiceStatusCancelled, cancelled.Status)
		assert.Equal(t, "Client withdrew", cancelled.CancelReason)
	})

	t.Run("deletes a draft but refuses a sent invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)
		draft, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)

		require.NoError(t, f.service.DeleteDraft(context.Background(), draft.ID))
		_, err = f.service.GetInvoice(context.Background(), draft.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		sent, err := f.service.CreateInvoice(context.Background(), createRequest(f.clientID))
		require.NoError(t, err)
		_, err = f.service.SendInvoice(context.Background(), sent.ID)
		require.NoError(t, err)

		err = f.service.DeleteDraft(context.Background(), sent.ID)
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATE", domainErr.Code)
	})

	t.Run("returns not found for an unknown invoice", func(t *testing.T) {
		f := newInvoiceFixture(t)

		_, err := f.service.GetInvoice(context.Background(), uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = f.service.SendInvoice(context.Background(), uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
