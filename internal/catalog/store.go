package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bonafide55/shop-api/internal/db"
)

// ErrNotFound is returned when a product lookup has no match.
var ErrNotFound = errors.New("catalog: not found")

// ProductSort orders product listings.
type ProductSort string

// Accepted values of the ordering query parameter. Price ordering uses the
// current price: the deal price while the deal runs, the regular price otherwise.
const (
	SortNewest    ProductSort = "-created_at"
	SortOldest    ProductSort = "created_at"
	SortPriceAsc  ProductSort = "price"
	SortPriceDesc ProductSort = "-price"
)

// Valid reports whether s is an accepted ordering.
func (s ProductSort) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortPriceAsc, SortPriceDesc:
		return true
	}
	return false
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryIDs []int64
	IDs         []int64
	Search      string
	Sort        ProductSort
	Now         time.Time
	Limit       int
	Offset      int
}

// Store is the persistence surface used by Service.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ProductsByIDs(ctx context.Context, ids []int64) ([]Product, error)
	ProductBySlug(ctx context.Context, slug string) (Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int64, error)
	DealOfTheDay(ctx context.Context, now time.Time) (Product, error)
}

// PGStore reads the catalog from PostgreSQL.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

const productColumns = `p.id, p.category_id, p.name, p.slug, COALESCE(p.sku, ''), p.description,
	p.regular_price, p.deal_price, p.deal_ends_at, p.availability_status,
	p.stock_quantity, p.allow_backorder, p.is_active, p.created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.Slug, &p.SKU, &p.Description,
		&p.RegularPrice, &p.DealPrice, &p.DealEndsAt, &p.Availability,
		&p.StockQuantity, &p.AllowBackorder, &p.Active, &p.CreatedAt,
	)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListCategories returns every category ordered by name.
func (s *PGStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, name, slug, parent_id FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ProductsByIDs loads products regardless of their active flag; missing ids are skipped.
func (s *PGStore) ProductsByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ANY($1) ORDER BY p.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products by ids: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return products, nil
}

// ProductBySlug returns an active product by slug.
func (s *PGStore) ProductBySlug(ctx context.Context, slug string) (Product, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.slug = $1 AND p.is_active`, slug)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product by slug: %w", err)
	}
	return p, nil
}

const currentPriceExpr = `CASE WHEN p.deal_price IS NOT NULL AND p.deal_ends_at > $%d THEN p.deal_price ELSE p.regular_price END`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListProducts returns a page of active products plus the total match count.
// Search matches name, description and sku case-insensitively; the default order is newest first.
func (s *PGStore) ListProducts(ctx context.Context, f ProductFilter) ([]Product, int64, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "p.is_active")
	if len(f.CategoryIDs) > 0 {
		args = append(args, f.CategoryIDs)
		where = append(where, fmt.Sprintf("p.category_id = ANY($%d)", len(args)))
	}
	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		where = append(where, fmt.Sprintf("p.id = ANY($%d)", len(args)))
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		args = append(args, "%"+likeEscaper.Replace(term)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.description ILIKE $%d OR COALESCE(p.sku, '') ILIKE $%d)", n, n, n))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM products p WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	var order string
	switch f.Sort {
	case SortOldest:
		order = "p.created_at ASC, p.id ASC"
	case SortPriceAsc, SortPriceDesc:
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		args = append(args, now)
		dir := "ASC"
		if f.Sort == SortPriceDesc {
			dir = "DESC"
		}
		order = fmt.Sprintf(currentPriceExpr+" %s, p.id %s", len(args), dir, dir)
	default:
		order = "p.created_at DESC, p.id DESC"
	}
	args = append(args, limit, max(f.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM products p WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		productColumns, clause, order, len(args)-1, len(args))
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan products: %w", err)
	}
	return products, total, nil
}

// DealOfTheDay returns the active product whose deal ends soonest after now.
func (s *PGStore) DealOfTheDay(ctx context.Context, now time.Time) (Product, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products p
		WHERE p.is_active AND p.deal_price IS NOT NULL AND p.deal_ends_at > $1
		ORDER BY p.deal_ends_at ASC, p.id ASC LIMIT 1`, now)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("deal of the day: %w", err)
	}
	return p, nil
}
