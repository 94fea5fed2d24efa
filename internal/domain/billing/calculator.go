package billing

import (
	"fmt"

	"github.com/billing/backend/internal/domain/shared"
	"github.com/billing/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// DiscountKind represents how an invoice discount is expressed
type DiscountKind string

const (
	DiscountKindNone       DiscountKind = "NONE"
	DiscountKindFixed      DiscountKind = "FIXED"
	DiscountKindPercentage DiscountKind = "PERCENTAGE"
)

// IsValid checks if the discount kind is valid
func (k DiscountKind) IsValid() bool {
	switch k {
	case DiscountKindNone, DiscountKindFixed, DiscountKindPercentage:
		return true
	}
	return false
}

// Discount describes an invoice-level discount
type Discount struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// NoDiscount returns an empty discount
func NoDiscount() Discount {
	return Discount{Kind: DiscountKindNone, Value: decimal.Zero}
}

// LineItemInput is the raw input for a single invoice line
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     *decimal.Decimal // optional per-line rate (0-100), informational
}

// InvoiceTotals holds the computed financial totals of an invoice
type InvoiceTotals struct {
	Subtotal       valueobject.Money
	DiscountAmount valueobject.Money
	TaxAmount      valueobject.Money
	TotalAmount    valueobject.Money
}

var oneHundred = decimal.NewFromInt(100)

// ComputeTotals computes subtotal, discount, tax and total for the given
// line items. It is a pure function: deterministic, no side effects.
//
// Each line total is rounded to the smallest currency unit before summing,
// matching how the amounts appear on the printed invoice. The discount
// reduces the taxable base, so tax is computed on subtotal minus discount.
// The final total is floored at zero.
func ComputeTotals(items []LineItemInput, taxRate decimal.Decimal, discount Discount, currency valueobject.Currency) (InvoiceTotals, []InvoiceItem, error) {
	if len(items) == 0 {
		return InvoiceTotals{}, nil, shared.NewDomainError("INVALID_ITEM", "Invoice requires at least one line item")
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(oneHundred) {
		return InvoiceTotals{}, nil, shared.NewDomainError("INVALID_TAX_RATE", "Tax rate must be between 0 and 100")
	}

	subtotal := valueobject.Zero(currency)
	lines := make([]InvoiceItem, 0, len(items))
	for i, input := range items {
		line, err := NewInvoiceItem(input, currency)
		if err != nil {
			return InvoiceTotals{}, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lineTotal, err := valueobject.NewMoney(line.LineTotal, currency)
		if err != nil {
			return InvoiceTotals{}, nil, err
		}
		subtotal = subtotal.MustAdd(lineTotal)
		lines = append(lines, *line)
	}

	discountAmount, err := computeDiscount(subtotal, discount)
	if err != nil {
		return InvoiceTotals{}, nil, err
	}

	taxableBase := subtotal.MustSubtract(discountAmount)
	taxAmount := taxableBase.CalculatePercentage(taxRate)

	total := taxableBase.MustAdd(taxAmount)
	if total.IsNegative() {
		total = valueobject.Zero(currency)
	}

	return InvoiceTotals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		TaxAmount:      taxAmount,
		TotalAmount:    total,
	}, lines, nil
}

// computeDiscount resolves a discount specification against the subtotal
func computeDiscount(subtotal valueobject.Money, discount Discount) (valueobject.Money, error) {
	switch discount.Kind {
	case "", DiscountKindNone:
		return valueobject.Zero(subtotal.Currency()), nil
	case DiscountKindPercentage:
		if discount.Value.IsNegative() || discount.Value.GreaterThan(oneHundred) {
			return valueobject.Money{}, shared.NewDomainError("INVALID_DISCOUNT", "Percentage discount must be between 0 and 100")
		}
		return subtotal.CalculatePercentage(discount.Value), nil
	case DiscountKindFixed:
		if discount.Value.IsNegative() {
			return valueobject.Money{}, shared.NewDomainError("INVALID_DISCOUNT", "Fixed discount cannot be negative")
		}
		if discount.Value.GreaterThan(subtotal.Amount()) {
			return valueobject.Money{}, shared.NewDomainError("INVALID_DISCOUNT",
				fmt.Sprintf("Fixed discount %s exceeds subtotal %s", discount.Value, subtotal.Amount()))
		}
		fixed, err := valueobject.NewMoney(discount.Value, subtotal.Currency())
		if err != nil {
			return valueobject.Money{}, err
		}
		return fixed.RoundToMinorUnit(), nil
	default:
		return valueobject.Money{}, shared.NewDomainError("INVALID_DISCOUNT", fmt.Sprintf("Unknown discount kind %q", discount.Kind))
	}
}
