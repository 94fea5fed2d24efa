package handler

import (
	billingapp "github.com/billing/backend/internal/application/billing"
	"github.com/gin-gonic/gin"
)

// ReportHandler handles read-only financial report endpoints
type ReportHandler struct {
	BaseHandler
	reportService *billingapp.ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reportService *billingapp.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// RegisterRoutes registers report routes on the API group
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	{
		reports.GET("/summary", h.Summary)
		reports.GET("/monthly", h.MonthlyFlows)
		reports.GET("/trend", h.RevenueTrend)
		reports.GET("/collection", h.CollectionStats)
		reports.GET("/clients", h.ClientBalances)
	}
}

// Summary returns income, expenses and invoice stats for a period
func (h *ReportHandler) Summary(c *gin.Context) {
	var filter billingapp.ReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	summary, err := h.reportService.GetFinancialSummary(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, summary)
}

// MonthlyFlows returns per-month income and expense totals
func (h *ReportHandler) MonthlyFlows(c *gin.Context) {
	var filter billingapp.ReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	flows, err := h.reportService.GetMonthlyFlows(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, flows)
}

// RevenueTrend returns the trailing monthly income series with growth rate
func (h *ReportHandler) RevenueTrend(c *gin.Context) {
	var filter billingapp.TrendFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	trend, err := h.reportService.GetRevenueTrend(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, trend)
}

// CollectionStats returns invoicing vs collection figures for a period
func (h *ReportHandler) CollectionStats(c *gin.Context) {
	var filter billingapp.ReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	stats, err := h.reportService.GetCollectionStats(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, stats)
}

// ClientBalances returns open positions grouped by client
func (h *ReportHandler) ClientBalances(c *gin.Context) {
	var filter billingapp.ReportFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	balances, err := h.reportService.GetClientBalances(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, balances)
}
