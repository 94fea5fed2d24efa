package handler

import (
	"time"

	billingapp "github.com/billing/backend/internal/application/billing"
	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionHandler handles the manual side of the transaction ledger.
// Payment and refund entries only ever enter through the payment ledger.
type TransactionHandler struct {
	BaseHandler
	transactionService *billingapp.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *billingapp.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// RegisterRoutes registers transaction routes on the API group
func (h *TransactionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	transactions := rg.Group("/transactions")
	{
		transactions.POST("/income", h.RecordIncome)
		transactions.POST("/expense", h.RecordExpense)
		transactions.GET("", h.List)
		transactions.GET("/:id", h.Get)
	}
}

// RecordTransactionRequest represents the payload for a manual ledger entry
type RecordTransactionRequest struct {
	Category    string          `json:"category" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency" binding:"omitempty,len=3"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ListTransactionsRequest represents transaction list query parameters
type ListTransactionsRequest struct {
	dto.ListRequest
	Type      string     `form:"type" binding:"omitempty,oneof=INCOME EXPENSE"`
	Category  *string    `form:"category"`
	Source    string     `form:"source" binding:"omitempty,oneof=MANUAL INVOICE_PAYMENT INVOICE_REFUND"`
	InvoiceID *uuid.UUID `form:"invoice_id"`
	FromDate  *time.Time `form:"from_date" time_format:"2006-01-02"`
	ToDate    *time.Time `form:"to_date" time_format:"2006-01-02"`
}

// TransactionResponse represents a ledger entry in API responses
type TransactionResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Category     string          `json:"category"`
	Amount       decimal.Decimal `json:"amount"`
	SignedAmount decimal.Decimal `json:"signed_amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Source       string          `json:"source"`
	InvoiceID    *string         `json:"invoice_id,omitempty"`
	PaymentID    *string         `json:"payment_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RecordIncome records a manual income entry
func (h *TransactionHandler) RecordIncome(c *gin.Context) {
	h.record(c, billing.TransactionTypeIncome)
}

// RecordExpense records a manual expense entry
func (h *TransactionHandler) RecordExpense(c *gin.Context) {
	h.record(c, billing.TransactionTypeExpense)
}

func (h *TransactionHandler) record(c *gin.Context, txType billing.TransactionType) {
	var req RecordTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	tx, err := h.transactionService.RecordTransaction(c.Request.Context(), billingapp.RecordTransactionRequest{
		Type:        txType,
		Category:    req.Category,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		OccurredAt:  req.OccurredAt,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTransactionResponse(tx))
}

// List returns ledger entries matching the query filters
func (h *TransactionHandler) List(c *gin.Context) {
	req := ListTransactionsRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	filter := billing.TransactionFilter{
		Category:  req.Category,
		InvoiceID: req.InvoiceID,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
	}
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	filter.Search = req.Search
	if req.Type != "" {
		txType := billing.TransactionType(req.Type)
		filter.Type = &txType
	}
	if req.Source != "" {
		source := billing.TransactionSource(req.Source)
		filter.Source = &source
	}

	result, err := h.transactionService.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]TransactionResponse, len(result.Items))
	for i := range result.Items {
		responses[i] = toTransactionResponse(&result.Items[i])
	}
	h.SuccessWithMeta(c, responses, result.Total, result.Page, result.PageSize)
}

// Get returns a single ledger entry
func (h *TransactionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid transaction ID format")
		return
	}

	tx, err := h.transactionService.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTransactionResponse(tx))
}

func toTransactionResponse(tx *billing.FinanceTransaction) TransactionResponse {
	resp := TransactionResponse{
		ID:           tx.ID.String(),
		Type:         string(tx.Type),
		Category:     tx.Category,
		Amount:       tx.Amount,
		SignedAmount: tx.SignedAmount(),
		Currency:     string(tx.Currency),
		Description:  tx.Description,
		OccurredAt:   tx.OccurredAt,
		Source:       string(tx.Source),
		CreatedAt:    tx.CreatedAt,
	}
	if tx.InvoiceID != nil {
		invoiceID := tx.InvoiceID.String()
		resp.InvoiceID = &invoiceID
	}
	if tx.PaymentID != nil {
		paymentID := tx.PaymentID.String()
		resp.PaymentID = &paymentID
	}
	return resp
}
