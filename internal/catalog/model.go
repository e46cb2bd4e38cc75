package catalog

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MaxCategoryDepth bounds ancestor walks so a corrupted parent chain cannot loop forever.
const MaxCategoryDepth = 64

// Availability values stored in products.availability_status.
const (
	AvailabilityInStock      = "IN_STOCK"
	AvailabilityOutOfStock   = "OUT_OF_STOCK"
	AvailabilityPreOrder     = "PRE_ORDER"
	AvailabilityDiscontinued = "DISCONTINUED"
	AvailabilityOnDemand     = "ON_DEMAND"
)

// Category is a node of the category tree.
type Category struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Slug     string    `json:"slug"`
	ParentID *int64    `json:"parent_id"`
	Parent   *Category `json:"-"`
}

// Ancestry returns the category followed by its ancestors, nearest first.
// Repeated nodes and chains deeper than MaxCategoryDepth are cut off.
func (c *Category) Ancestry() []*Category {
	if c == nil {
		return nil
	}
	chain := make([]*Category, 0, 4)
	seen := make(map[int64]struct{}, 4)
	for cur := c; cur != nil && len(chain) < MaxCategoryDepth; cur = cur.Parent {
		if _, ok := seen[cur.ID]; ok {
			break
		}
		seen[cur.ID] = struct{}{}
		chain = append(chain, cur)
	}
	return chain
}

// IsWithin reports whether the category is root or one of its descendants.
func (c *Category) IsWithin(root *Category) bool {
	if c == nil || root == nil {
		return false
	}
	for _, node := range c.Ancestry() {
		if node.ID == root.ID {
			return true
		}
	}
	return false
}

// Path returns category slugs from the root down to c.
func (c *Category) Path() []string {
	chain := c.Ancestry()
	path := make([]string, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		path = append(path, chain[i].Slug)
	}
	return path
}

// Tree indexes categories by id with parent pointers resolved.
type Tree map[int64]*Category

// BuildTree links flat category rows into a parent-pointer tree.
// Rows referencing an unknown parent become roots.
func BuildTree(rows []Category) Tree {
	tree := make(Tree, len(rows))
	for i := range rows {
		cat := rows[i]
		cat.Parent = nil
		tree[cat.ID] = &cat
	}
	for _, cat := range tree {
		if cat.ParentID == nil {
			continue
		}
		if parent, ok := tree[*cat.ParentID]; ok && parent.ID != cat.ID {
			cat.Parent = parent
		}
	}
	return tree
}

// Find resolves a category by slug or numeric id.
func (t Tree) Find(ref string) *Category {
	for _, cat := range t {
		if cat.Slug == ref || strconv.FormatInt(cat.ID, 10) == ref {
			return cat
		}
	}
	return nil
}

// Subtree returns the ids of root and every category below it.
func (t Tree) Subtree(rootID int64) []int64 {
	root, ok := t[rootID]
	if !ok {
		return nil
	}
	ids := []int64{root.ID}
	for id, cat := range t {
		if id != root.ID && cat.IsWithin(root) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Product is a sellable catalog item.
type Product struct {
	ID             int64               `json:"id"`
	CategoryID     *int64              `json:"category_id"`
	Category       *Category           `json:"-"`
	Name           string              `json:"name"`
	Slug           string              `json:"slug"`
	SKU            string              `json:"sku"`
	Description    string              `json:"description"`
	RegularPrice   decimal.Decimal     `json:"regular_price"`
	DealPrice      decimal.NullDecimal `json:"deal_price"`
	DealEndsAt     *time.Time          `json:"deal_ends_at"`
	Availability   string              `json:"availability_status"`
	StockQuantity  int                 `json:"stock_quantity"`
	AllowBackorder bool                `json:"allow_backorder"`
	Active         bool                `json:"is_active"`
	CreatedAt      time.Time           `json:"created_at"`
}

// DealActive reports whether the deal price applies at now.
func (p *Product) DealActive(now time.Time) bool {
	return p.DealPrice.Valid && p.DealEndsAt != nil && p.DealEndsAt.After(now)
}

// CurrentPrice returns the deal price while the deal runs and the regular price otherwise.
func (p *Product) CurrentPrice(now time.Time) decimal.Decimal {
	if p.DealActive(now) {
		return p.DealPrice.Decimal
	}
	return p.RegularPrice
}

// CanBePurchased reports whether the product may be put in a cart.
func (p *Product) CanBePurchased() bool {
	switch p.Availability {
	case AvailabilityInStock:
		return p.StockQuantity > 0 || p.AllowBackorder
	case AvailabilityPreOrder:
		return true
	default:
		return false
	}
}
