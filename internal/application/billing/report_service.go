package billing

import (
	"context"
	"time"

	"github.com/billing/backend/internal/domain/report"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReportService provides application-level reporting operations over the
// invoice and transaction read models
type ReportService struct {
	reportRepo report.BillingReportRepository
}

// NewReportService creates a new ReportService
func NewReportService(reportRepo report.BillingReportRepository) *ReportService {
	return &ReportService{reportRepo: reportRepo}
}

// ReportFilter defines the request filter for billing reports
type ReportFilter struct {
	StartDate time.Time  `form:"start_date" binding:"required"`
	EndDate   time.Time  `form:"end_date" binding:"required"`
	ClientID  *uuid.UUID `form:"client_id"`
}

// TrendFilter defines the request filter for trend reports
type TrendFilter struct {
	Months int `form:"months"`
}

const defaultTrendMonths = 12

var oneHundredPercent = decimal.NewFromInt(100)

func validatePeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return shared.NewDomainError("INVALID_PERIOD", "Start and end dates are required")
	}
	if end.Before(start) {
		return shared.NewDomainError("INVALID_PERIOD", "End date must not be before start date")
	}
	return nil
}

// GetFinancialSummary returns income, expenses and invoice stats for a period
func (s *ReportService) GetFinancialSummary(ctx context.Context, filter ReportFilter) (*report.FinancialSummary, error) {
	if err := validatePeriod(filter.StartDate, filter.EndDate); err != nil {
		return nil, err
	}

	summary, err := s.reportRepo.GetFinancialSummary(ctx, report.BillingReportFilter{
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
		ClientID:  filter.ClientID,
	})
	if err != nil {
		return nil, err
	}

	summary.NetCashFlow = summary.TotalIncome.Sub(summary.TotalExpenses)
	return summary, nil
}

// GetMonthlyFlows returns per-month income, expense and net totals
func (s *ReportService) GetMonthlyFlows(ctx context.Context, filter ReportFilter) ([]report.MonthlyFlow, error) {
	if err := validatePeriod(filter.StartDate, filter.EndDate); err != nil {
		return nil, err
	}

	flows, err := s.reportRepo.GetMonthlyFlows(ctx, report.BillingReportFilter{
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
		ClientID:  filter.ClientID,
	})
	if err != nil {
		return nil, err
	}

	for i := range flows {
		flows[i].Net = flows[i].Income.Sub(flows[i].Expenses)
	}
	return flows, nil
}

// GetRevenueTrend returns the trailing monthly revenue series and the
// percentage growth between its first and last points
func (s *ReportService) GetRevenueTrend(ctx context.Context, filter TrendFilter) (*report.RevenueTrend, error) {
	months := filter.Months
	if months <= 0 {
		months = defaultTrendMonths
	}

	points, err := s.reportRepo.GetRevenueTrend(ctx, report.BillingReportFilter{Months: months})
	if err != nil {
		return nil, err
	}

	return &report.RevenueTrend{
		Points:     points,
		GrowthRate: computeGrowthRate(points),
	}, nil
}

// computeGrowthRate compares the first and last points of the series.
// A series shorter than two points, or one starting at zero, has no
// meaningful rate and reports zero.
func computeGrowthRate(points []report.TrendPoint) decimal.Decimal {
	if len(points) < 2 {
		return decimal.Zero
	}
	first := points[0].Amount
	last := points[len(points)-1].Amount
	if !first.IsPositive() {
		return decimal.Zero
	}
	return last.Sub(first).Div(first).Mul(oneHundredPercent).Round(valueobject.MinorUnitPlaces)
}

// GetCollectionStats returns invoicing vs collection figures for a period
func (s *ReportService) GetCollectionStats(ctx context.Context, filter ReportFilter) (*report.CollectionStats, error) {
	if err := validatePeriod(filter.StartDate, filter.EndDate); err != nil {
		return nil, err
	}

	stats, err := s.reportRepo.GetCollectionStats(ctx, report.BillingReportFilter{
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
		ClientID:  filter.ClientID,
	})
	if err != nil {
		return nil, err
	}

	if stats.InvoicedAmount.IsPositive() {
		stats.CollectionRate = stats.CollectedAmount.Div(stats.InvoicedAmount).Mul(oneHundredPercent).Round(valueobject.MinorUnitPlaces)
	} else {
		stats.CollectionRate = decimal.Zero
	}
	return stats, nil
}

// GetClientBalances returns open positions grouped by client
func (s *ReportService) GetClientBalances(ctx context.Context, filter ReportFilter) ([]report.ClientBalance, error) {
	if err := validatePeriod(filter.StartDate, filter.EndDate); err != nil {
		return nil, err
	}

	balances, err := s.reportRepo.GetClientBalances(ctx, report.BillingReportFilter{
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
		ClientID:  filter.ClientID,
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}
