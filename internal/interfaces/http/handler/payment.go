package handler

import (
	"time"

	billingapp "github.com/billing/backend/internal/application/billing"
	"github.com/billing/backend/internal/domain/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// idempotencyKeyHeader carries the client-chosen key that makes a payment
// request safe to retry.
const idempotencyKeyHeader = "Idempotency-Key"

// PaymentHandler handles payment and refund endpoints
type PaymentHandler struct {
	BaseHandler
	ledgerService *billingapp.PaymentLedgerService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(ledgerService *billingapp.PaymentLedgerService) *PaymentHandler {
	return &PaymentHandler{ledgerService: ledgerService}
}

// RegisterRoutes registers payment routes on the API group
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/invoices/:id/payments", h.ApplyPayment)
	rg.POST("/invoices/:id/payments/:paymentId/refund", h.Refund)
}

// ApplyPaymentRequest represents the payload for recording a payment
type ApplyPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	TermID    *uuid.UUID      `json:"term_id,omitempty"`
	Method    string          `json:"method" binding:"required,oneof=CASH BANK_TRANSFER CARD CHECK OTHER"`
	Reference string          `json:"reference"`
	PaidAt    time.Time       `json:"paid_at"`
}

// RefundRequest represents the payload for refunding a recorded payment
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason" binding:"required"`
}

// PaymentResultResponse is the outcome of a payment or refund
type PaymentResultResponse struct {
	Invoice       InvoiceResponse       `json:"invoice"`
	Payment       PaymentRecordResponse `json:"payment"`
	TransactionID string                `json:"transaction_id"`
}

// ApplyPayment records a payment against an invoice. A repeated
// Idempotency-Key header is rejected without touching the ledger.
func (h *PaymentHandler) ApplyPayment(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req ApplyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.ledgerService.ApplyPayment(c.Request.Context(), billingapp.ApplyPaymentRequest{
		InvoiceID:      invoiceID,
		TermID:         req.TermID,
		Amount:         req.Amount,
		Method:         billing.PaymentMethod(req.Method),
		Reference:      req.Reference,
		PaidAt:         req.PaidAt,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toPaymentResultResponse(result))
}

// Refund refunds part or all of a previously recorded payment
func (h *PaymentHandler) Refund(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}
	paymentID, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.ledgerService.RefundPayment(c.Request.Context(), billingapp.RefundPaymentRequest{
		InvoiceID: invoiceID,
		PaymentID: paymentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toPaymentResultResponse(result))
}

func toPaymentResultResponse(result *billingapp.PaymentResult) PaymentResultResponse {
	return PaymentResultResponse{
		Invoice:       toInvoiceResponse(result.Invoice),
		Payment:       toPaymentRecordResponse(result.Payment),
		TransactionID: result.TransactionID.String(),
	}
}
