package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/billing/backend/internal/infrastructure/config"
	"github.com/billing/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

// PaymentLedgerService records payments and refunds against invoices.
//
// Concurrency safety relies on the invoice's optimistic version: on each
// attempt the invoice is reloaded, the balance is recomputed from its
// payment history, and the write goes through SaveWithLock. A conflicting
// writer causes the attempt to be retried on fresh state, so two racing
// payments can never jointly exceed the invoice total. Attempts are
// bounded; when they run out the caller gets a contention error and the
// ledger is left unchanged.
type PaymentLedgerService struct {
	uow         billing.LedgerUnitOfWork
	invoiceRepo billing.InvoiceRepository
	idempotency shared.IdempotencyStore
	cfg         config.LedgerConfig
}

// NewPaymentLedgerService creates a new PaymentLedgerService
func NewPaymentLedgerService(
	uow billing.LedgerUnitOfWork,
	invoiceRepo billing.InvoiceRepository,
	idempotency shared.IdempotencyStore,
	cfg config.LedgerConfig,
) *PaymentLedgerService {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.IdempotencyTTL == 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &PaymentLedgerService{
		uow:         uow,
		invoiceRepo: invoiceRepo,
		idempotency: idempotency,
		cfg:         cfg,
	}
}

// ApplyPaymentRequest represents a request to record a payment
type ApplyPaymentRequest struct {
	InvoiceID      uuid.UUID
	TermID         *uuid.UUID
	Amount         decimal.Decimal
	Method         billing.PaymentMethod
	Reference      string
	PaidAt         time.Time
	IdempotencyKey string
}

// RefundPaymentRequest represents a request to refund a recorded payment
type RefundPaymentRequest struct {
	InvoiceID uuid.UUID
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
}

// PaymentResult is the outcome of a successful payment or refund
type PaymentResult struct {
	Invoice       *billing.Invoice       `json:"invoice"`
	Payment       *billing.PaymentRecord `json:"payment"`
	TransactionID uuid.UUID              `json:"transaction_id"`
}

// ApplyPayment records a payment against an invoice. The invoice update
// and the mirroring ledger entry commit atomically. A replayed idempotency
// key is rejected without touching the ledger.
func (s *PaymentLedgerService) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "apply_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if req.IdempotencyKey != "" && s.idempotency != nil {
		processed, err := s.idempotency.IsProcessed(ctx, req.IdempotencyKey)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if processed {
			err := shared.NewDomainError("DUPLICATE_REQUEST", "A payment with this idempotency key was already recorded")
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	var result *PaymentResult
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels("apply_payment"), func(c context.Context) {
		result, opErr = s.withContentionRetry(c, span, func(attemptCtx context.Context) (*PaymentResult, error) {
			return s.applyPaymentOnce(attemptCtx, req)
		})
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		return nil, opErr
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if _, err := s.idempotency.MarkProcessed(ctx, req.IdempotencyKey, s.cfg.IdempotencyTTL); err != nil {
			// The payment is committed; a failed mark only weakens replay
			// protection for this key.
			telemetry.AddEvent(span, "idempotency_mark_failed")
		}
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, result.Payment.ID.String())

	return result, nil
}

// RefundPayment refunds part or all of a recorded payment and appends the
// compensating ledger entry atomically.
func (s *PaymentLedgerService) RefundPayment(ctx context.Context, req RefundPaymentRequest) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "refund_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
		telemetry.SpanAttrPaymentID, req.PaymentID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	var result *PaymentResult
	var opErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels("refund_payment"), func(c context.Context) {
		result, opErr = s.withContentionRetry(c, span, func(attemptCtx context.Context) (*PaymentResult, error) {
			return s.refundPaymentOnce(attemptCtx, req)
		})
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		return nil, opErr
	}

	return result, nil
}

// applyPaymentOnce performs a single payment attempt against fresh state
func (s *PaymentLedgerService) applyPaymentOnce(ctx context.Context, req ApplyPaymentRequest) (*PaymentResult, error) {
	var result *PaymentResult

	err := s.uow.Execute(ctx, func(invoices billing.InvoiceRepository, transactions billing.FinanceTransactionRepository) error {
		invoice, err := invoices.FindByID(ctx, req.InvoiceID)
		if err != nil {
			return fmt.Errorf("failed to load invoice: %w", err)
		}
		if invoice == nil {
			return shared.ErrNotFound
		}

		amount, err := valueobject.NewMoney(req.Amount, invoice.Currency)
		if err != nil {
			return shared.NewDomainError("INVALID_AMOUNT", err.Error())
		}

		record, err := invoice.ApplyPayment(amount, req.TermID, req.Method, req.Reference, req.PaidAt)
		if err != nil {
			return err
		}

		tx, err := billing.NewPaymentTransaction(invoice, record)
		if err != nil {
			return err
		}

		if err := invoices.SaveWithLock(ctx, invoice); err != nil {
			return err
		}
		if err := transactions.Append(ctx, tx); err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}

		result = &PaymentResult{
			Invoice:       invoice,
			Payment:       record,
			TransactionID: tx.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// refundPaymentOnce performs a single refund attempt against fresh state
func (s *PaymentLedgerService) refundPaymentOnce(ctx context.Context, req RefundPaymentRequest) (*PaymentResult, error) {
	var result *PaymentResult

	err := s.uow.Execute(ctx, func(invoices billing.InvoiceRepository, transactions billing.FinanceTransactionRepository) error {
		invoice, err := invoices.FindByID(ctx, req.InvoiceID)
		if err != nil {
			return fmt.Errorf("failed to load invoice: %w", err)
		}
		if invoice == nil {
			return shared.ErrNotFound
		}

		amount, err := valueobject.NewMoney(req.Amount, invoice.Currency)
		if err != nil {
			return shared.NewDomainError("INVALID_AMOUNT", err.Error())
		}

		record, err := invoice.RefundPayment(req.PaymentID, amount, req.Reason)
		if err != nil {
			return err
		}

		refundedAt := time.Now()
		if record.RefundedAt != nil {
			refundedAt = *record.RefundedAt
		}
		tx, err := billing.NewRefundTransaction(invoice, record, req.Amount, refundedAt)
		if err != nil {
			return err
		}

		if err := invoices.SaveWithLock(ctx, invoice); err != nil {
			return err
		}
		if err := transactions.Append(ctx, tx); err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}

		result = &PaymentResult{
			Invoice:       invoice,
			Payment:       record,
			TransactionID: tx.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withContentionRetry runs fn up to MaxRetries times, retrying only on
// optimistic lock conflicts. Every retry sees freshly loaded state.
func (s *PaymentLedgerService) withContentionRetry(
	ctx context.Context,
	span trace.Span,
	fn func(context.Context) (*PaymentResult, error),
) (*PaymentResult, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		telemetry.AddEvent(span, "ledger_conflict_retry", telemetry.SpanAttrAttempt, attempt)
	}
	return nil, fmt.Errorf("%w: %v", shared.ErrLedgerContention, lastErr)
}
