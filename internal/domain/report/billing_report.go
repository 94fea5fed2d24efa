package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FinancialSummary is a read model of overall cash position over a period
type FinancialSummary struct {
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	TotalIncome   decimal.Decimal `json:"total_income"`   // Ledger income entries
	TotalExpenses decimal.Decimal `json:"total_expenses"` // Ledger expense entries
	NetCashFlow   decimal.Decimal `json:"net_cash_flow"`  // TotalIncome - TotalExpenses
	Outstanding   decimal.Decimal `json:"outstanding"`    // Unpaid balance of open invoices
	OverdueAmount decimal.Decimal `json:"overdue_amount"` // Unpaid balance past due
	InvoiceCount  int64           `json:"invoice_count"`
	PaidCount     int64           `json:"paid_count"`
	OverdueCount  int64           `json:"overdue_count"`
}

// MonthlyFlow aggregates ledger activity for a single calendar month
type MonthlyFlow struct {
	Year     int             `json:"year"`
	Month    int             `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// TrendPoint is a single point of a revenue trend series
type TrendPoint struct {
	Year   int             `json:"year"`
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// RevenueTrend is a monthly revenue series with a growth rate computed
// between the first and the last point
type RevenueTrend struct {
	Points     []TrendPoint    `json:"points"`
	GrowthRate decimal.Decimal `json:"growth_rate"` // Percentage, first vs last point
}

// CollectionStats summarizes how reliably invoices get paid
type CollectionStats struct {
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	InvoicedAmount  decimal.Decimal `json:"invoiced_amount"`  // Total of invoices sent in period
	CollectedAmount decimal.Decimal `json:"collected_amount"` // Net payments received in period
	CollectionRate  decimal.Decimal `json:"collection_rate"`  // Collected / Invoiced * 100
	AvgDaysToPay    decimal.Decimal `json:"avg_days_to_pay"`  // From sent to fully paid
	OverdueInvoices int64           `json:"overdue_invoices"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
}

// ClientBalance summarizes the open position of a single client
type ClientBalance struct {
	ClientID     uuid.UUID       `json:"client_id"`
	InvoiceCount int64           `json:"invoice_count"`
	TotalBilled  decimal.Decimal `json:"total_billed"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

// BillingReportFilter defines the reporting window
type BillingReportFilter struct {
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	ClientID  *uuid.UUID `json:"client_id,omitempty"`
	Months    int        `json:"months,omitempty"` // For trend queries, number of trailing months
}

// BillingReportRepository reads aggregated figures straight from the
// database; the write-side aggregates are never loaded for reporting
type BillingReportRepository interface {
	// GetFinancialSummary computes income, expenses and invoice stats for a period
	GetFinancialSummary(ctx context.Context, filter BillingReportFilter) (*FinancialSummary, error)

	// GetMonthlyFlows returns per-month income and expense totals
	GetMonthlyFlows(ctx context.Context, filter BillingReportFilter) ([]MonthlyFlow, error)

	// GetRevenueTrend returns the monthly income series for the trailing months
	GetRevenueTrend(ctx context.Context, filter BillingReportFilter) ([]TrendPoint, error)

	// GetCollectionStats computes invoicing vs collection figures for a period
	GetCollectionStats(ctx context.Context, filter BillingReportFilter) (*CollectionStats, error)

	// GetClientBalances returns open positions grouped by client
	GetClientBalances(ctx context.Context, filter BillingReportFilter) ([]ClientBalance, error)
}
