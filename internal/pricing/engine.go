// Package pricing computes basket totals and picks the single best quantity discount rule.
//
// A calculation runs four pure stages: Normalize drops unusable rows, Aggregate
// builds quantity statistics, SelectRule picks the rule with the largest
// discount and PriceItems/Advise produce per-item prices or an upsell hint.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bonafide55/shop-api/internal/catalog"
)

// Source is anything that can be priced: a persisted cart row or an ad-hoc selection.
type Source interface {
	PricingProduct() *catalog.Product
	PricingQuantity() int
	PricingRef() *int64
}

// Selection is a transient Source for stateless calculations.
type Selection struct {
	Ref      *int64
	Product  *catalog.Product
	Quantity int
}

func (s Selection) PricingProduct() *catalog.Product { return s.Product }
func (s Selection) PricingQuantity() int             { return s.Quantity }
func (s Selection) PricingRef() *int64               { return s.Ref }

// LineItem is a normalized basket row priced at the product's current price.
type LineItem struct {
	Ref       *int64
	Product   *catalog.Product
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns unit price times quantity, unrounded.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Stats aggregates quantities across the basket.
type Stats struct {
	Subtotal           decimal.Decimal
	TotalQuantity      int
	ProductQuantities  map[int64]int
	CategoryQuantities map[int64]int
}

// PricedItem is a line item with its final display prices.
// DiscountedUnitPrice is nil when the applied rule does not cover the item.
type PricedItem struct {
	Ref                 *int64
	Product             *catalog.Product
	Quantity            int
	OriginalUnitPrice   decimal.Decimal
	DiscountedUnitPrice *decimal.Decimal
}

// Result is the outcome of a calculation. Money fields are rounded to 2 places
// and FinalTotal always equals Subtotal minus DiscountAmount.
type Result struct {
	Items          []PricedItem
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
	AppliedRule    *Rule
	UpsellHint     string
}

// AppliedRuleName returns the applied rule name or "" when none applied.
func (r Result) AppliedRuleName() string {
	if r.AppliedRule == nil {
		return ""
	}
	return r.AppliedRule.Name
}

// Engine evaluates baskets against discount rules. It holds no mutable state.
type Engine struct {
	Now func() time.Time
}

// NewEngine returns an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// Calculate prices rows against rules. Inactive rules are ignored and rule
// order decides ties, first rule wins.
func (e *Engine) Calculate(rows []Source, rules []Rule) Result {
	items := e.Normalize(rows)
	if len(items) == 0 {
		return zeroResult()
	}
	return e.evaluate(items, rules)
}

func (e *Engine) evaluate(items []LineItem, rules []Rule) Result {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}

	stats := Aggregate(items)
	best, discount := SelectRule(items, stats, active)

	subtotal := round(stats.Subtotal)
	discount = round(discount)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	res := Result{
		Items:          PriceItems(items, best),
		Subtotal:       subtotal,
		DiscountAmount: discount,
		FinalTotal:     subtotal.Sub(discount),
		AppliedRule:    best,
	}
	if best == nil {
		res.UpsellHint = Advise(stats, active)
	}
	return res
}

func zeroResult() Result {
	return Result{
		Items:          []PricedItem{},
		Subtotal:       decimal.Zero,
		DiscountAmount: decimal.Zero,
		FinalTotal:     decimal.Zero,
	}
}

// Normalize drops rows without a product or with a non-positive quantity and
// prices the rest at the product's current price.
func (e *Engine) Normalize(rows []Source) []LineItem {
	now := e.now()
	items := make([]LineItem, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		product := row.PricingProduct()
		qty := row.PricingQuantity()
		if product == nil || qty <= 0 {
			continue
		}
		items = append(items, LineItem{
			Ref:       row.PricingRef(),
			Product:   product,
			Quantity:  qty,
			UnitPrice: product.CurrentPrice(now),
		})
	}
	return items
}

// Aggregate sums subtotal and quantities. Category quantities roll up so each
// unit counts toward its category and every ancestor. Duplicate product rows are summed.
func Aggregate(items []LineItem) Stats {
	stats := Stats{
		Subtotal:           decimal.Zero,
		ProductQuantities:  make(map[int64]int, len(items)),
		CategoryQuantities: make(map[int64]int),
	}
	for _, item := range items {
		stats.Subtotal = stats.Subtotal.Add(item.Subtotal())
		stats.TotalQuantity += item.Quantity
		stats.ProductQuantities[item.Product.ID] += item.Quantity
		for _, cat := range item.Product.Category.Ancestry() {
			stats.CategoryQuantities[cat.ID] += item.Quantity
		}
	}
	return stats
}

// SelectRule returns the eligible rule with the strictly largest discount and
// that discount, unrounded. Equal amounts keep the earlier rule.
func SelectRule(items []LineItem, stats Stats, rules []Rule) (*Rule, decimal.Decimal) {
	var (
		best       *Rule
		bestAmount = decimal.Zero
	)
	for i := range rules {
		rule := &rules[i]
		sc, ok := rule.scope()
		if !ok || sc.quantity(stats) < rule.MinQuantity {
			continue
		}
		base := decimal.Zero
		for _, item := range items {
			if sc.covers(item) {
				base = base.Add(item.Subtotal())
			}
		}
		amount := base.Mul(rule.rate()).Div(hundred)
		if amount.GreaterThan(bestAmount) {
			best = rule
			bestAmount = amount
		}
	}
	return best, bestAmount
}

// PriceItems applies rule to the items it covers. With no rule every
// DiscountedUnitPrice stays nil.
func PriceItems(items []LineItem, rule *Rule) []PricedItem {
	var (
		sc     scope
		factor decimal.Decimal
	)
	if rule != nil {
		if resolved, ok := rule.scope(); ok {
			sc = resolved
			factor = hundred.Sub(rule.rate()).Div(hundred)
		}
	}
	out := make([]PricedItem, 0, len(items))
	for _, item := range items {
		priced := PricedItem{
			Ref:               item.Ref,
			Product:           item.Product,
			Quantity:          item.Quantity,
			OriginalUnitPrice: item.UnitPrice,
		}
		if sc != nil && sc.covers(item) {
			discounted := round(item.UnitPrice.Mul(factor))
			priced.DiscountedUnitPrice = &discounted
		}
		out = append(out, priced)
	}
	return out
}

// Advise returns a hint for the rule closest to unlocking, or "" when none is.
// Equal distances keep the earlier rule.
func Advise(stats Stats, rules []Rule) string {
	var (
		pick   scope
		rule   *Rule
		needed int
	)
	for i := range rules {
		r := &rules[i]
		sc, ok := r.scope()
		if !ok {
			continue
		}
		n := r.MinQuantity - sc.quantity(stats)
		if n <= 0 {
			continue
		}
		if rule == nil || n < needed {
			pick, rule, needed = sc, r, n
		}
	}
	if rule == nil {
		return ""
	}
	return pick.hint(needed, rule.rate())
}
