package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billing/backend/internal/domain/billing"
	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// openInvoiceStatuses are the stored statuses that still carry an unpaid
// balance. Overdue is derived from these at query time, never stored.
var openInvoiceStatuses = []billing.InvoiceStatus{billing.InvoiceStatusSent}

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByInvoiceNumber finds an invoice by its number
func (r *GormInvoiceRepository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds invoices matching the filter with pagination
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	query = r.applyFilterWithoutPagination(query, filter)
	return r.paginate(query, filter)
}

// FindByClient finds invoices for a client
func (r *GormInvoiceRepository) FindByClient(ctx context.Context, clientID uuid.UUID, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("client_id = ?", clientID)
	query = r.applyFilterWithoutPagination(query, filter)
	return r.paginate(query, filter)
}

// FindOverdue finds open invoices past their due date as of the given time
func (r *GormInvoiceRepository) FindOverdue(ctx context.Context, asOf time.Time, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("due_date < ? AND status IN ?", asOf, openInvoiceStatuses)
	query = r.applyFilterWithoutPagination(query, filter)
	return r.paginate(query, filter)
}

// Save creates or updates an invoice without a version check
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock updates an invoice with an optimistic version check. The
// domain has already incremented the version, so the row only matches if
// nobody else wrote since this writer loaded.
func (r *GormInvoiceRepository) SaveWithLock(ctx context.Context, invoice *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	// Select("*") forces zero-valued columns (cleared paid_at, notes,
	// tax_rate) into the UPDATE; a struct update would skip them.
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Where("id = ? AND version = ?", invoice.ID, invoice.Version-1).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Delete removes an invoice
func (r *GormInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.InvoiceModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts invoices matching the filter
func (r *GormInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	query = r.applyFilterWithoutPagination(query, filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByInvoiceNumber checks if an invoice number is already taken
func (r *GormInvoiceRepository) ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("invoice_number = ?", invoiceNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumOutstanding sums the face value of all open invoices. Partial
// payments reduce the collection rate, not this figure.
func (r *GormInvoiceRepository) SumOutstanding(ctx context.Context) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(total_amount), 0) as total").
		Where("status IN ?", openInvoiceStatuses).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumOverdue sums the unpaid balance of open invoices past due as of the given time
func (r *GormInvoiceRepository) SumOverdue(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(total_amount - paid_amount), 0) as total").
		Where("due_date < ? AND status IN ?", asOf, openInvoiceStatuses).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// GenerateInvoiceNumber generates a unique invoice number
func (r *GormInvoiceRepository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	// Format: INV-YYYYMMDD-NNNNN
	date := time.Now().Format("20060102")
	prefix := fmt.Sprintf("INV-%s-", date)

	// Find the highest number for today
	var maxNumber string
	if err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("invoice_number").
		Where("invoice_number LIKE ?", prefix+"%").
		Order("invoice_number DESC").
		Limit(1).
		Pluck("invoice_number", &maxNumber).Error; err != nil {
		return "", err
	}

	var nextNum int
	if maxNumber != "" {
		parts := strings.Split(maxNumber, "-")
		if len(parts) == 3 {
			fmt.Sscanf(parts[2], "%d", &nextNum)
		}
	}
	nextNum++

	return fmt.Sprintf("%s%05d", prefix, nextNum), nil
}

// paginate runs the filtered query with pagination and wraps the result
func (r *GormInvoiceRepository) paginate(query *gorm.DB, filter billing.InvoiceFilter) (*shared.Paginated[billing.Invoice], error) {
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

	query = applyOrdering(query, filter.OrderBy, filter.OrderDir, invoiceSortColumns)
	query = query.Offset((page - 1) * pageSize).Limit(pageSize)

	var invoiceModels []models.InvoiceModel
	if err := query.Find(&invoiceModels).Error; err != nil {
		return nil, err
	}

	invoices := make([]billing.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}

	result := shared.NewPaginated(invoices, total, page, pageSize)
	return &result, nil
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormInvoiceRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("invoice_number ILIKE ? OR notes ILIKE ?", searchPattern, searchPattern)
	}

	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.FromDate != nil {
		query = query.Where("issue_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("issue_date <= ?", *filter.ToDate)
	}
	if filter.DueFrom != nil {
		query = query.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		query = query.Where("due_date <= ?", *filter.DueTo)
	}
	if filter.MinAmount != nil {
		query = query.Where("total_amount >= ?", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		query = query.Where("total_amount <= ?", *filter.MaxAmount)
	}
	if filter.Overdue != nil && *filter.Overdue {
		query = query.Where("due_date < ? AND status IN ?", time.Now(), openInvoiceStatuses)
	}

	return query
}

// invoiceSortColumns are the columns exposed for ordering
var invoiceSortColumns = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"issue_date":     true,
	"due_date":       true,
	"invoice_number": true,
	"total_amount":   true,
	"paid_amount":    true,
	"status":         true,
}

// applyOrdering applies a validated ordering clause. Unknown columns fall
// back to created_at so callers cannot inject arbitrary SQL.
func applyOrdering(query *gorm.DB, orderBy, orderDir string, allowed map[string]bool) *gorm.DB {
	column := "created_at"
	if orderBy != "" && allowed[orderBy] {
		column = orderBy
	}
	dir := "DESC"
	if strings.EqualFold(orderDir, "asc") {
		dir = "ASC"
	}
	return query.Order(column + " " + dir)
}
