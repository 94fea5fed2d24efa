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

// InvoiceService handles the invoice lifecycle outside of payments:
// drafting, scheduling terms, sending and cancelling.
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
	clients     billing.ClientDirectory
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(invoiceRepo billing.InvoiceRepository, clients billing.ClientDirectory) *InvoiceService {
	return &InvoiceService{
		invoiceRepo: invoiceRepo,
		clients:     clients,
	}
}

// ItemInput describes one line of an invoice draft
type ItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     *decimal.Decimal
}

// CreateInvoiceRequest represents a request to draft a new invoice
type CreateInvoiceRequest struct {
	ClientID      uuid.UUID
	ProjectID     *uuid.UUID
	Currency      string
	IssueDate     time.Time
	DueDate       time.Time
	Items         []ItemInput
	TaxRate       decimal.Decimal
	DiscountKind  string
	DiscountValue decimal.Decimal
	Notes         string
}

// UpdateInvoiceRequest represents a request to modify a draft invoice
type UpdateInvoiceRequest struct {
	IssueDate     time.Time
	DueDate       time.Time
	Items         []ItemInput
	TaxRate       decimal.Decimal
	DiscountKind  string
	DiscountValue decimal.Decimal
	Notes         string
}

// TermInput describes one installment of a payment schedule
type TermInput struct {
	Sequence    int
	Percentage  decimal.Decimal
	DueDate     time.Time
	Description string
}

// CreateInvoice drafts a new invoice for an existing client
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrClientID, req.ClientID.String())

	exists, err := s.clients.ClientExists(ctx, req.ClientID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to check client: %w", err)
	}
	if !exists {
		err := shared.NewDomainError("CLIENT_NOT_FOUND", "Client not found")
		telemetry.RecordError(span, err)
		return nil, err
	}

	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		currency = valueobject.Currency(req.Currency)
	}

	invoiceNumber, err := s.invoiceRepo.GenerateInvoiceNumber(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to generate invoice number: %w", err)
	}

	invoice, err := billing.NewInvoice(
		invoiceNumber,
		req.ClientID,
		req.ProjectID,
		currency,
		req.IssueDate,
		req.DueDate,
		toLineItems(req.Items),
		req.TaxRate,
		toDiscount(req.DiscountKind, req.DiscountValue),
		req.Notes,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, invoice.ID.String(),
		telemetry.SpanAttrInvoiceNumber, invoice.InvoiceNumber,
	)

	return invoice, nil
}

// GetInvoice loads a single invoice
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if invoice == nil {
		return nil, shared.ErrNotFound
	}
	return invoice, nil
}

// GetInvoiceByNumber loads a single invoice by its number
func (s *InvoiceService) GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByInvoiceNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if invoice == nil {
		return nil, shared.ErrNotFound
	}
	return invoice, nil
}

// ListInvoices returns invoices matching the filter with pagination
func (s *InvoiceService) ListInvoices(ctx context.Context, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	result, err := s.invoiceRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return result, nil
}

// UpdateInvoice modifies a draft invoice and recomputes its totals
func (s *InvoiceService) UpdateInvoice(ctx context.Context, id uuid.UUID, req UpdateInvoiceRequest) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "update")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := invoice.UpdateDraft(
		req.IssueDate,
		req.DueDate,
		toLineItems(req.Items),
		req.TaxRate,
		toDiscount(req.DiscountKind, req.DiscountValue),
		req.Notes,
	); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return invoice, nil
}

// ScheduleTerms sets the payment schedule of a draft invoice
func (s *InvoiceService) ScheduleTerms(ctx context.Context, id uuid.UUID, terms []TermInput) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "schedule_terms")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	specs := make([]billing.TermSpec, 0, len(terms))
	for _, t := range terms {
		specs = append(specs, billing.TermSpec{
			Sequence:    t.Sequence,
			Percentage:  t.Percentage,
			DueDate:     t.DueDate,
			Description: t.Description,
		})
	}

	if err := invoice.ScheduleTerms(specs); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return invoice, nil
}

// SendInvoice finalizes a draft and opens it for payments
func (s *InvoiceService) SendInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "send")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := invoice.Send(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return invoice, nil
}

// CancelInvoice voids an unpaid invoice
func (s *InvoiceService) CancelInvoice(ctx context.Context, id uuid.UUID, reason string) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "cancel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := invoice.Cancel(reason); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.invoiceRepo.SaveWithLock(ctx, invoice); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return invoice, nil
}

// DeleteDraft removes a draft invoice. Sent invoices are part of the
// financial history and can only be cancelled, never deleted.
func (s *InvoiceService) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "delete_draft")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, id.String())

	invoice, err := s.GetInvoice(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if invoice.Status != billing.InvoiceStatusDraft {
		err := shared.NewDomainError("INVALID_STATE", "Only draft invoices can be deleted")
		telemetry.RecordError(span, err)
		return err
	}

	if err := s.invoiceRepo.Delete(ctx, id); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return nil
}

func toLineItems(items []ItemInput) []billing.LineItemInput {
	out := make([]billing.LineItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, billing.LineItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		})
	}
	return out
}

func toDiscount(kind string, value decimal.Decimal) billing.Discount {
	if kind == "" {
		return billing.NoDiscount()
	}
	return billing.Discount{Kind: billing.DiscountKind(kind), Value: value}
}
