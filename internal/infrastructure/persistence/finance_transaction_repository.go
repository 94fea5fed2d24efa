package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormFinanceTransactionRepository implements the append-only ledger using
// GORM. There is deliberately no update or delete path.
type GormFinanceTransactionRepository struct {
	db *gorm.DB
}

// NewGormFinanceTransactionRepository creates a new GormFinanceTransactionRepository
func NewGormFinanceTransactionRepository(db *gorm.DB) *GormFinanceTransactionRepository {
	return &GormFinanceTransactionRepository{db: db}
}

// FindByID finds a transaction by its ID
func (r *GormFinanceTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.FinanceTransaction, error) {
	var model models.FinanceTransactionModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds transactions matching the filter with pagination
func (r *GormFinanceTransactionRepository) FindAll(ctx context.Context, filter billing.TransactionFilter) (*shared.Paginated[billing.FinanceTransaction], error) {
	query := r.db.WithContext(ctx).Model(&models.FinanceTransactionModel{})
	query = r.applyFilterWithoutPagination(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query = applyOrdering(query, filter.OrderBy, filter.OrderDir, transactionSortColumns)
	query = query.Offset((page - 1) * pageSize).Limit(pageSize)

	var txModels []models.FinanceTransactionModel
	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}

	transactions := make([]billing.FinanceTransaction, len(txModels))
	for i, model := range txModels {
		transactions[i] = *model.ToDomain()
	}

	result := shared.NewPaginated(transactions, total, page, pageSize)
	return &result, nil
}

// Append adds a new entry to the ledger
func (r *GormFinanceTransactionRepository) Append(ctx context.Context, tx *billing.FinanceTransaction) error {
	model := models.FinanceTransactionModelFromDomain(tx)
	return r.db.WithContext(ctx).Create(model).Error
}

// Count counts transactions matching the filter
func (r *GormFinanceTransactionRepository) Count(ctx context.Context, filter billing.TransactionFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.FinanceTransactionModel{})
	query = r.applyFilterWithoutPagination(query, filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumByType sums transaction amounts of the given type in a date range
func (r *GormFinanceTransactionRepository) SumByType(ctx context.Context, txType billing.TransactionType, from, to time.Time) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.FinanceTransactionModel{}).
		Select("COALESCE(SUM(amount), 0) as total").
		Where("type = ? AND occurred_at >= ? AND occurred_at <= ?", txType, from, to).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormFinanceTransactionRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.TransactionFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("category ILIKE ? OR description ILIKE ?", searchPattern, searchPattern)
	}

	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Source != nil {
		query = query.Where("source = ?", *filter.Source)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.FromDate != nil {
		query = query.Where("occurred_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("occurred_at <= ?", *filter.ToDate)
	}

	return query
}

// transactionSortColumns are the columns exposed for ordering
var transactionSortColumns = map[string]bool{
	"created_at":  true,
	"occurred_at": true,
	"amount":      true,
	"category":    true,
	"type":        true,
}
