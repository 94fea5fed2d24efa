package persistence

import (
	"context"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/report"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormBillingReportRepository implements report.BillingReportRepository with
// SQL aggregation over committed invoice and ledger rows. It never loads
// write-side aggregates.
type GormBillingReportRepository struct {
	db *gorm.DB
}

// NewGormBillingReportRepository creates a new GormBillingReportRepository
func NewGormBillingReportRepository(db *gorm.DB) *GormBillingReportRepository {
	return &GormBillingReportRepository{db: db}
}

// GetFinancialSummary computes income, expenses and invoice stats for a period
func (r *GormBillingReportRepository) GetFinancialSummary(ctx context.Context, filter report.BillingReportFilter) (*report.FinancialSummary, error) {
	summary := &report.FinancialSummary{
		PeriodStart: filter.StartDate,
		PeriodEnd:   filter.EndDate,
	}

	income, err := r.sumTransactions(ctx, billing.TransactionTypeIncome, filter)
	if err != nil {
		return nil, err
	}
	summary.TotalIncome = income

	expenses, err := r.sumTransactions(ctx, billing.TransactionTypeExpense, filter)
	if err != nil {
		return nil, err
	}
	summary.TotalExpenses = expenses

	invoiceQuery := func() *gorm.DB {
		q := r.db.WithContext(ctx).Table("invoices").
			Where("issue_date BETWEEN ? AND ?", filter.StartDate, filter.EndDate)
		if filter.ClientID != nil {
			q = q.Where("client_id = ?", *filter.ClientID)
		}
		return q
	}

	if err := invoiceQuery().Count(&summary.InvoiceCount).Error; err != nil {
		return nil, err
	}
	if err := invoiceQuery().
		Where("status = ?", billing.InvoiceStatusPaid).
		Count(&summary.PaidCount).Error; err != nil {
		return nil, err
	}
	if err := invoiceQuery().
		Where("status = ? AND due_date < ?", billing.InvoiceStatusSent, time.Now()).
		Count(&summary.OverdueCount).Error; err != nil {
		return nil, err
	}

	if err := invoiceQuery().
		Select("COALESCE(SUM(total_amount), 0)").
		Where("status = ?", billing.InvoiceStatusSent).
		Scan(&summary.Outstanding).Error; err != nil {
		return nil, err
	}
	if err := invoiceQuery().
		Select("COALESCE(SUM(total_amount - paid_amount), 0)").
		Where("status = ? AND due_date < ?", billing.InvoiceStatusSent, time.Now()).
		Scan(&summary.OverdueAmount).Error; err != nil {
		return nil, err
	}

	return summary, nil
}

// GetMonthlyFlows returns per-month income and expense totals
func (r *GormBillingReportRepository) GetMonthlyFlows(ctx context.Context, filter report.BillingReportFilter) ([]report.MonthlyFlow, error) {
	var rows []struct {
		Year     int
		Month    int
		Income   decimal.Decimal
		Expenses decimal.Decimal
	}

	query := r.db.WithContext(ctx).Table("finance_transactions").
		Select(`EXTRACT(YEAR FROM occurred_at)::int AS year,
			EXTRACT(MONTH FROM occurred_at)::int AS month,
			COALESCE(SUM(amount) FILTER (WHERE type = ?), 0) AS income,
			COALESCE(SUM(amount) FILTER (WHERE type = ?), 0) AS expenses`,
			billing.TransactionTypeIncome, billing.TransactionTypeExpense).
		Where("occurred_at BETWEEN ? AND ?", filter.StartDate, filter.EndDate).
		Group("1, 2").
		Order("1, 2")

	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	flows := make([]report.MonthlyFlow, len(rows))
	for i, row := range rows {
		flows[i] = report.MonthlyFlow{
			Year:     row.Year,
			Month:    row.Month,
			Income:   row.Income,
			Expenses: row.Expenses,
		}
	}
	return flows, nil
}

// GetRevenueTrend returns the monthly income series for the trailing months
func (r *GormBillingReportRepository) GetRevenueTrend(ctx context.Context, filter report.BillingReportFilter) ([]report.TrendPoint, error) {
	months := filter.Months
	if months <= 0 {
		months = 12
	}
	since := time.Now().AddDate(0, -months, 0)

	var rows []struct {
		Year   int
		Month  int
		Amount decimal.Decimal
	}

	query := r.db.WithContext(ctx).Table("finance_transactions").
		Select(`EXTRACT(YEAR FROM occurred_at)::int AS year,
			EXTRACT(MONTH FROM occurred_at)::int AS month,
			COALESCE(SUM(amount), 0) AS amount`).
		Where("type = ? AND occurred_at >= ?", billing.TransactionTypeIncome, since).
		Group("1, 2").
		Order("1, 2")

	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	points := make([]report.TrendPoint, len(rows))
	for i, row := range rows {
		points[i] = report.TrendPoint{
			Year:   row.Year,
			Month:  row.Month,
			Amount: row.Amount,
		}
	}
	return points, nil
}

// GetCollectionStats computes invoicing vs collection figures for a period
func (r *GormBillingReportRepository) GetCollectionStats(ctx context.Context, filter report.BillingReportFilter) (*report.CollectionStats, error) {
	stats := &report.CollectionStats{
		PeriodStart: filter.StartDate,
		PeriodEnd:   filter.EndDate,
	}

	invoiced := r.db.WithContext(ctx).Table("invoices").
		Select("COALESCE(SUM(total_amount), 0)").
		Where("sent_at BETWEEN ? AND ?", filter.StartDate, filter.EndDate)
	if filter.ClientID != nil {
		invoiced = invoiced.Where("client_id = ?", *filter.ClientID)
	}
	if err := invoiced.Scan(&stats.InvoicedAmount).Error; err != nil {
		return nil, err
	}

	collected, err := r.sumTransactionsBySource(ctx, billing.TransactionSourceInvoicePayment, filter)
	if err != nil {
		return nil, err
	}
	refunded, err := r.sumTransactionsBySource(ctx, billing.TransactionSourceInvoiceRefund, filter)
	if err != nil {
		return nil, err
	}
	stats.CollectedAmount = collected.Sub(refunded)
	stats.RefundedAmount = refunded

	avgDays := r.db.WithContext(ctx).Table("invoices").
		Select("COALESCE(AVG(EXTRACT(EPOCH FROM (paid_at - sent_at)) / 86400.0), 0)").
		Where("status = ? AND paid_at BETWEEN ? AND ?", billing.InvoiceStatusPaid, filter.StartDate, filter.EndDate).
		Where("sent_at IS NOT NULL")
	if filter.ClientID != nil {
		avgDays = avgDays.Where("client_id = ?", *filter.ClientID)
	}
	if err := avgDays.Scan(&stats.AvgDaysToPay).Error; err != nil {
		return nil, err
	}

	overdue := r.db.WithContext(ctx).Table("invoices").
		Where("status = ? AND due_date < ?", billing.InvoiceStatusSent, time.Now())
	if filter.ClientID != nil {
		overdue = overdue.Where("client_id = ?", *filter.ClientID)
	}
	if err := overdue.Count(&stats.OverdueInvoices).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// GetClientBalances returns open positions grouped by client
func (r *GormBillingReportRepository) GetClientBalances(ctx context.Context, filter report.BillingReportFilter) ([]report.ClientBalance, error) {
	var balances []report.ClientBalance

	query := r.db.WithContext(ctx).Table("invoices").
		Select(`client_id,
			COUNT(*) AS invoice_count,
			COALESCE(SUM(total_amount), 0) AS total_billed,
			COALESCE(SUM(paid_amount), 0) AS total_paid,
			COALESCE(SUM(total_amount - paid_amount), 0) AS outstanding`).
		Where("issue_date BETWEEN ? AND ?", filter.StartDate, filter.EndDate).
		Where("status IN ?", []billing.InvoiceStatus{billing.InvoiceStatusSent, billing.InvoiceStatusPaid}).
		Group("client_id").
		Order("outstanding DESC")
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}

	if err := query.Scan(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *GormBillingReportRepository) sumTransactions(ctx context.Context, txType billing.TransactionType, filter report.BillingReportFilter) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := r.db.WithContext(ctx).Table("finance_transactions").
		Select("COALESCE(SUM(amount), 0)").
		Where("type = ? AND occurred_at BETWEEN ? AND ?", txType, filter.StartDate, filter.EndDate)
	if err := query.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *GormBillingReportRepository) sumTransactionsBySource(ctx context.Context, source billing.TransactionSource, filter report.BillingReportFilter) (decimal.Decimal, error) {
	var total decimal.Decimal
	query := r.db.WithContext(ctx).Table("finance_transactions").
		Select("COALESCE(SUM(amount), 0)").
		Where("source = ? AND occurred_at BETWEEN ? AND ?", source, filter.StartDate, filter.EndDate)
	if err := query.Scan(&total).Error; err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
