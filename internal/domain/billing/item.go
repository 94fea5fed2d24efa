package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceItem is a single line on an invoice. Items are owned by their
// invoice and only mutable while the invoice is a draft.
type InvoiceItem struct {
	ID          uuid.UUID        `json:"id"`
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	LineTotal   decimal.Decimal  `json:"line_total"`
}

// InvoiceItems is a collection of line items stored as JSONB inside the
// invoice row
type InvoiceItems []InvoiceItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (it InvoiceItems) Value() (driver.Value, error) {
	if it == nil {
		return "[]", nil
	}
	return json.Marshal(it)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (it *InvoiceItems) Scan(value interface{}) error {
	if value == nil {
		*it = InvoiceItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan InvoiceItems: unsupported type")
	}

	return json.Unmarshal(bytes, it)
}

// NewInvoiceItem validates a line item input and computes its rounded total
func NewInvoiceItem(input LineItemInput, currency valueobject.Currency) (*InvoiceItem, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, shared.NewDomainError("INVALID_ITEM", "Item description is required")
	}
	if !input.Quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_ITEM", "Item quantity must be positive")
	}
	if input.UnitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_ITEM", "Item unit price cannot be negative")
	}
	if input.TaxRate != nil && (input.TaxRate.IsNegative() || input.TaxRate.GreaterThan(oneHundred)) {
		return nil, shared.NewDomainError("INVALID_TAX_RATE", "Item tax rate must be between 0 and 100")
	}

	lineTotal := input.Quantity.Mul(input.UnitPrice).Round(valueobject.MinorUnitPlaces)

	return &InvoiceItem{
		ID:          uuid.New(),
		Description: strings.TrimSpace(input.Description),
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		TaxRate:     input.TaxRate,
		LineTotal:   lineTotal,
	}, nil
}
