package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bonafide55/shop-api/internal/catalog"
)

// Kind identifies what a discount rule counts. Values match discount_rules.rule_type.
type Kind string

const (
	// KindBasketQuantity counts every unit in the basket.
	KindBasketQuantity Kind = "TOTAL_QTY"
	// KindProductQuantity counts units of one product.
	KindProductQuantity Kind = "PRODUCT_QTY"
	// KindCategoryQuantity counts units within a category and its subcategories.
	KindCategoryQuantity Kind = "CATEGORY_QTY"
)

// Valid reports whether k is a known rule kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBasketQuantity, KindProductQuantity, KindCategoryQuantity:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// Rule is a quantity-threshold percentage discount.
type Rule struct {
	ID             int64
	Name           string
	Kind           Kind
	MinQuantity    int
	Percentage     decimal.Decimal
	ProductTarget  *catalog.Product
	CategoryTarget *catalog.Category
	Active         bool
}

// rate returns the percentage clamped to [0, 100].
func (r *Rule) rate() decimal.Decimal {
	switch {
	case r.Percentage.IsNegative():
		return decimal.Zero
	case r.Percentage.GreaterThan(hundred):
		return hundred
	}
	return r.Percentage
}

// scope resolves the rule into its counting strategy. Product and category
// rules without a target do not resolve and can never apply.
func (r *Rule) scope() (scope, bool) {
	switch r.Kind {
	case KindBasketQuantity:
		return basketScope{}, true
	case KindProductQuantity:
		if r.ProductTarget == nil {
			return nil, false
		}
		return productScope{target: r.ProductTarget}, true
	case KindCategoryQuantity:
		if r.CategoryTarget == nil {
			return nil, false
		}
		return categoryScope{target: r.CategoryTarget}, true
	}
	return nil, false
}

// scope is the per-kind behaviour shared by rule selection, item pricing and hints.
type scope interface {
	quantity(s Stats) int
	covers(item LineItem) bool
	hint(needed int, pct decimal.Decimal) string
}

type basketScope struct{}

func (basketScope) quantity(s Stats) int { return s.TotalQuantity }

func (basketScope) covers(LineItem) bool { return true }

func (basketScope) hint(needed int, pct decimal.Decimal) string {
	return fmt.Sprintf("Добавьте еще %d шт. любого товара, чтобы получить скидку %s%%!", needed, formatPercent(pct))
}

type productScope struct {
	target *catalog.Product
}

func (p productScope) quantity(s Stats) int { return s.ProductQuantities[p.target.ID] }

func (p productScope) covers(item LineItem) bool {
	return item.Product != nil && item.Product.ID == p.target.ID
}

func (p productScope) hint(needed int, pct decimal.Decimal) string {
	return fmt.Sprintf("Добавьте еще %d шт. товара «%s», чтобы получить скидку %s%%!", needed, p.target.Name, formatPercent(pct))
}

type categoryScope struct {
	target *catalog.Category
}

func (c categoryScope) quantity(s Stats) int { return s.CategoryQuantities[c.target.ID] }

func (c categoryScope) covers(item LineItem) bool {
	return item.Product != nil && item.Product.Category.IsWithin(c.target)
}

func (c categoryScope) hint(needed int, pct decimal.Decimal) string {
	return fmt.Sprintf("Добавьте еще %d шт. из категории «%s», чтобы получить скидку %s%%!", needed, c.target.Name, formatPercent(pct))
}

// formatPercent drops insignificant fraction digits: 10.00 -> "10", 12.50 -> "12.5".
func formatPercent(pct decimal.Decimal) string {
	return pct.String()
}
