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

// InvoiceHandler handles the invoice lifecycle endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// RegisterRoutes registers invoice routes on the API group
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.POST("", h.Create)
		invoices.GET("", h.List)
		invoices.GET("/:id", h.Get)
		invoices.PUT("/:id", h.Update)
		invoices.DELETE("/:id", h.Delete)
		invoices.POST("/:id/terms", h.ScheduleTerms)
		invoices.POST("/:id/send", h.Send)
		invoices.POST("/:id/cancel", h.Cancel)
	}
}

// ===================== Request/Response DTOs =====================

// InvoiceItemRequest represents one invoice line in API requests
type InvoiceItemRequest struct {
	Description string           `json:"description" binding:"required"`
	Quantity    decimal.Decimal  `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal  `json:"unit_price" binding:"required"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
}

// CreateInvoiceRequest represents the payload for drafting an invoice
type CreateInvoiceRequest struct {
	ClientID      uuid.UUID            `json:"client_id" binding:"required"`
	ProjectID     *uuid.UUID           `json:"project_id,omitempty"`
	Currency      string               `json:"currency" binding:"omitempty,len=3"`
	IssueDate     time.Time            `json:"issue_date" binding:"required"`
	DueDate       time.Time            `json:"due_date" binding:"required"`
	Items         []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	DiscountKind  string               `json:"discount_kind" binding:"omitempty,oneof=NONE FIXED PERCENTAGE"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	Notes         string               `json:"notes"`
}

// UpdateInvoiceRequest represents the payload for reworking a draft
type UpdateInvoiceRequest struct {
	IssueDate     time.Time            `json:"issue_date" binding:"required"`
	DueDate       time.Time            `json:"due_date" binding:"required"`
	Items         []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	DiscountKind  string               `json:"discount_kind" binding:"omitempty,oneof=NONE FIXED PERCENTAGE"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	Notes         string               `json:"notes"`
}

// TermRequest represents one installment of a payment schedule
type TermRequest struct {
	Sequence    int             `json:"sequence" binding:"required,min=1"`
	Percentage  decimal.Decimal `json:"percentage" binding:"required"`
	DueDate     time.Time       `json:"due_date" binding:"required"`
	Description string          `json:"description"`
}

// ScheduleTermsRequest represents the payload for setting a payment schedule
type ScheduleTermsRequest struct {
	Terms []TermRequest `json:"terms" binding:"required,min=1,dive"`
}

// CancelInvoiceRequest represents the payload for voiding an invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ListInvoicesRequest represents invoice list query parameters
type ListInvoicesRequest struct {
	dto.ListRequest
	ClientID  *uuid.UUID `form:"client_id"`
	ProjectID *uuid.UUID `form:"project_id"`
	Status    string     `form:"status" binding:"omitempty,oneof=DRAFT SENT PAID CANCELLED"`
	Overdue   *bool      `form:"overdue"`
	FromDate  *time.Time `form:"from_date" time_format:"2006-01-02"`
	ToDate    *time.Time `form:"to_date" time_format:"2006-01-02"`
}

// InvoiceItemResponse represents one invoice line in API responses
type InvoiceItemResponse struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	LineTotal   decimal.Decimal  `json:"line_total"`
}

// TermResponse represents one schedule installment in API responses
type TermResponse struct {
	ID          string          `json:"id"`
	Sequence    int             `json:"sequence"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
}

// PaymentRecordResponse represents a recorded payment in API responses
type PaymentRecordResponse struct {
	ID             string          `json:"id"`
	TermID         *string         `json:"term_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	Reference      string          `json:"reference,omitempty"`
	PaidAt         time.Time       `json:"paid_at"`
	Status         string          `json:"status"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
	RefundReason   string          `json:"refund_reason,omitempty"`
}

// InvoiceResponse represents an invoice in API responses. Status is the
// effective status: a sent invoice past its due date reports OVERDUE.
type InvoiceResponse struct {
	ID              string                  `json:"id"`
	InvoiceNumber   string                  `json:"invoice_number"`
	ClientID        string                  `json:"client_id"`
	ProjectID       *string                 `json:"project_id,omitempty"`
	Currency        string                  `json:"currency"`
	IssueDate       time.Time               `json:"issue_date"`
	DueDate         time.Time               `json:"due_date"`
	Items           []InvoiceItemResponse   `json:"items"`
	TaxRate         decimal.Decimal         `json:"tax_rate"`
	DiscountKind    string                  `json:"discount_kind"`
	DiscountValue   decimal.Decimal         `json:"discount_value"`
	Subtotal        decimal.Decimal         `json:"subtotal"`
	DiscountAmount  decimal.Decimal         `json:"discount_amount"`
	TaxAmount       decimal.Decimal         `json:"tax_amount"`
	TotalAmount     decimal.Decimal         `json:"total_amount"`
	PaidAmount      decimal.Decimal         `json:"paid_amount"`
	RemainingAmount decimal.Decimal         `json:"remaining_amount"`
	Status          string                  `json:"status"`
	Terms           []TermResponse          `json:"terms,omitempty"`
	Payments        []PaymentRecordResponse `json:"payments,omitempty"`
	Notes           string                  `json:"notes,omitempty"`
	SentAt          *time.Time              `json:"sent_at,omitempty"`
	PaidAt          *time.Time              `json:"paid_at,omitempty"`
	CancelledAt     *time.Time              `json:"cancelled_at,omitempty"`
	CancelReason    string                  `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	Version         int                     `json:"version"`
}

// ===================== Handlers =====================

// Create drafts a new invoice
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), billingapp.CreateInvoiceRequest{
		ClientID:      req.ClientID,
		ProjectID:     req.ProjectID,
		Currency:      req.Currency,
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		Items:         toItemInputs(req.Items),
		TaxRate:       req.TaxRate,
		DiscountKind:  req.DiscountKind,
		DiscountValue: req.DiscountValue,
		Notes:         req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toInvoiceResponse(invoice))
}

// List returns invoices matching the query filters
func (h *InvoiceHandler) List(c *gin.Context) {
	req := ListInvoicesRequest{ListRequest: dto.DefaultListRequest()}
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

	filter := billing.InvoiceFilter{
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		Overdue:   req.Overdue,
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
	}
	filter.Page = req.Page
	filter.PageSize = req.PageSize
	filter.OrderBy = req.OrderBy
	filter.OrderDir = req.OrderDir
	filter.Search = req.Search
	if req.Status != "" {
		status := billing.InvoiceStatus(req.Status)
		filter.Status = &status
	}

	result, err := h.invoiceService.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]InvoiceResponse, len(result.Items))
	for i := range result.Items {
		responses[i] = toInvoiceResponse(&result.Items[i])
	}
	h.SuccessWithMeta(c, responses, result.Total, result.Page, result.PageSize)
}

// Get returns a single invoice
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// Update reworks a draft invoice and recomputes its totals
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	invoice, err := h.invoiceService.UpdateInvoice(c.Request.Context(), id, billingapp.UpdateInvoiceRequest{
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		Items:         toItemInputs(req.Items),
		TaxRate:       req.TaxRate,
		DiscountKind:  req.DiscountKind,
		DiscountValue: req.DiscountValue,
		Notes:         req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// Delete removes a draft invoice
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	if err := h.invoiceService.DeleteDraft(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ScheduleTerms sets the payment schedule of a draft invoice
func (h *InvoiceHandler) ScheduleTerms(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req ScheduleTermsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	terms := make([]billingapp.TermInput, len(req.Terms))
	for i, t := range req.Terms {
		terms[i] = billingapp.TermInput{
			Sequence:    t.Sequence,
			Percentage:  t.Percentage,
			DueDate:     t.DueDate,
			Description: t.Description,
		}
	}

	invoice, err := h.invoiceService.ScheduleTerms(c.Request.Context(), id, terms)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// Send finalizes a draft and opens it for payments
func (h *InvoiceHandler) Send(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.invoiceService.SendInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// Cancel voids an unpaid invoice
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}

// ===================== Converters =====================

func toItemInputs(items []InvoiceItemRequest) []billingapp.ItemInput {
	inputs := make([]billingapp.ItemInput, len(items))
	for i, item := range items {
		inputs[i] = billingapp.ItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
		}
	}
	return inputs
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:              inv.ID.String(),
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID.String(),
		Currency:        string(inv.Currency),
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		Items:           toItemResponses(inv.Items),
		TaxRate:         inv.TaxRate,
		DiscountKind:    string(inv.DiscountKind),
		DiscountValue:   inv.DiscountValue,
		Subtotal:        inv.Subtotal,
		DiscountAmount:  inv.DiscountAmount,
		TaxAmount:       inv.TaxAmount,
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		RemainingAmount: inv.RemainingAmount(),
		Status:          string(inv.EffectiveStatus(time.Now())),
		Terms:           toTermResponses(inv.Terms),
		Payments:        toPaymentRecordResponses(inv.Payments),
		Notes:           inv.Notes,
		SentAt:          inv.SentAt,
		PaidAt:          inv.PaidAt,
		CancelledAt:     inv.CancelledAt,
		CancelReason:    inv.CancelReason,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
		Version:         inv.Version,
	}
	if inv.ProjectID != nil {
		projectID := inv.ProjectID.String()
		resp.ProjectID = &projectID
	}
	return resp
}

func toItemResponses(items billing.InvoiceItems) []InvoiceItemResponse {
	responses := make([]InvoiceItemResponse, len(items))
	for i, item := range items {
		responses[i] = InvoiceItemResponse{
			ID:          item.ID.String(),
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
			LineTotal:   item.LineTotal,
		}
	}
	return responses
}

func toTermResponses(terms billing.InvoiceTerms) []TermResponse {
	if len(terms) == 0 {
		return nil
	}
	responses := make([]TermResponse, len(terms))
	for i, term := range terms {
		responses[i] = TermResponse{
			ID:          term.ID.String(),
			Sequence:    term.Sequence,
			Percentage:  term.Percentage,
			Amount:      term.Amount,
			DueDate:     term.DueDate,
			Status:      string(term.Status),
			Description: term.Description,
		}
	}
	return responses
}

func toPaymentRecordResponses(payments billing.PaymentRecords) []PaymentRecordResponse {
	if len(payments) == 0 {
		return nil
	}
	responses := make([]PaymentRecordResponse, len(payments))
	for i, p := range payments {
		responses[i] = toPaymentRecordResponse(&p)
	}
	return responses
}

func toPaymentRecordResponse(p *billing.PaymentRecord) PaymentRecordResponse {
	resp := PaymentRecordResponse{
		ID:             p.ID.String(),
		Amount:         p.Amount,
		Method:         string(p.Method),
		Reference:      p.Reference,
		PaidAt:         p.PaidAt,
		Status:         string(p.Status),
		RefundedAmount: p.RefundedAmount,
		RefundedAt:     p.RefundedAt,
		RefundReason:   p.RefundReason,
	}
	if p.TermID != nil {
		termID := p.TermID.String()
		resp.TermID = &termID
	}
	return resp
}
