package pricing

import (
	"context"
	"fmt"

	"github.com/bonafide55/shop-api/internal/catalog"
	"github.com/bonafide55/shop-api/internal/db"
)

// PGRuleStore reads discount rules from PostgreSQL.
type PGRuleStore struct {
	DB db.DBTX
}

// NewPGRuleStore constructs a PGRuleStore.
func NewPGRuleStore(conn db.DBTX) *PGRuleStore {
	return &PGRuleStore{DB: conn}
}

const activeRulesQuery = `
SELECT r.id, r.name, r.rule_type, r.min_quantity, r.discount_percentage, r.is_active,
       p.id, p.name, p.slug,
       c.id, c.name, c.slug, c.parent_id
FROM discount_rules r
LEFT JOIN products p ON p.id = r.product_id
LEFT JOIN categories c ON c.id = r.category_id
WHERE r.is_active
ORDER BY r.discount_percentage DESC, r.id ASC`

// ListActiveRules returns active rules with their targets, highest percentage first.
// Rows with an unknown rule_type are skipped.
func (s *PGRuleStore) ListActiveRules(ctx context.Context) ([]Rule, error) {
	rows, err := s.DB.Query(ctx, activeRulesQuery)
	if err != nil {
		return nil, fmt.Errorf("query discount rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			r           Rule
			kind        string
			productID   *int64
			productName *string
			productSlug *string
			categoryID  *int64
			catName     *string
			catSlug     *string
			catParent   *int64
		)
		if err := rows.Scan(
			&r.ID, &r.Name, &kind, &r.MinQuantity, &r.Percentage, &r.Active,
			&productID, &productName, &productSlug,
			&categoryID, &catName, &catSlug, &catParent,
		); err != nil {
			return nil, fmt.Errorf("scan discount rule: %w", err)
		}
		r.Kind = Kind(kind)
		if !r.Kind.Valid() {
			continue
		}
		if productID != nil {
			r.ProductTarget = &catalog.Product{ID: *productID, Name: deref(productName), Slug: deref(productSlug)}
		}
		if categoryID != nil {
			r.CategoryTarget = &catalog.Category{ID: *categoryID, Name: deref(catName), Slug: deref(catSlug), ParentID: catParent}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
