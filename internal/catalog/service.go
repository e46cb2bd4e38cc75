package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bonafide55/shop-api/internal/common"
)

// Service assembles catalog reads, links products into the category tree and caches snapshots.
type Service struct {
	store        Store
	cache        *Cache
	logger       zerolog.Logger
	defaultLimit int
	maxLimit     int

	Now func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store        Store
	Cache        *Cache
	Logger       zerolog.Logger
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for product listing.
type ListParams struct {
	Category string
	IDs      []int64
	Search   string
	Ordering ProductSort
	Page     int
	Limit    int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductView
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		Now:          time.Now,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit, Ordering: SortNewest}
	params.Category = strings.TrimSpace(values.Get("category"))
	params.Search = strings.TrimSpace(values.Get("search"))
	if v := strings.TrimSpace(values.Get("ordering")); v != "" {
		params.Ordering = ProductSort(v)
		if !params.Ordering.Valid() {
			return params, badRequest("ordering", "ordering must be one of created_at, -created_at, price, -price", nil)
		}
	}

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = min(limit, s.maxLimit)
	}
	if v := strings.TrimSpace(values.Get("ids")); v != "" {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return params, badRequest("ids", "ids must be a comma separated list of integers", err)
			}
			params.IDs = append(params.IDs, id)
		}
	}
	return params, nil
}

// Tree returns the category tree, served from cache when possible.
func (s *Service) Tree(ctx context.Context) (Tree, error) {
	var rows []Category
	if ok, err := s.cache.GetJSON(ctx, categoriesCacheKey, &rows); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	} else if ok {
		return BuildTree(rows), nil
	}
	rows, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if err := s.cache.SetJSON(ctx, categoriesCacheKey, rows); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_write_failed")
	}
	return BuildTree(rows), nil
}

// ListCategories returns the flat category list with parent ids.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(tree))
	for _, cat := range tree {
		out = append(out, *cat)
	}
	sortCategories(out)
	return out, nil
}

// ProductsByIDs returns products keyed by id with their category chain linked.
// Unknown ids are absent from the map.
func (s *Service) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*Product, error) {
	out := make(map[int64]*Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := s.store.ProductsByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		p := products[i]
		tree.link(&p)
		out[p.ID] = &p
	}
	return out, nil
}

// ListProducts returns filtered products with pagination metadata.
// A category filter matches the category and all of its descendants.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (ProductListResult, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return ProductListResult{}, err
	}
	filter := ProductFilter{
		IDs:    params.IDs,
		Search: params.Search,
		Sort:   params.Ordering,
		Now:    s.now(),
		Limit:  params.Limit,
		Offset: (params.Page - 1) * params.Limit,
	}
	if params.Category != "" {
		root := tree.Find(params.Category)
		if root == nil {
			return ProductListResult{Items: []ProductView{}, Page: params.Page, Limit: params.Limit}, nil
		}
		filter.CategoryIDs = tree.Subtree(root.ID)
	}
	products, total, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return ProductListResult{}, err
	}
	now := filter.Now
	items := make([]ProductView, 0, len(products))
	for i := range products {
		tree.link(&products[i])
		items = append(items, NewProductView(&products[i], now))
	}
	return ProductListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// ProductDetail returns the detail payload for an active product.
func (s *Service) ProductDetail(ctx context.Context, slug string) (ProductDetailView, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ProductDetailView{}, badRequest("slug", "slug is required", nil)
	}
	var product Product
	ok, err := s.cache.GetJSON(ctx, productCachePrefix+slug, &product)
	if err != nil {
		s.logger.Warn().Err(err).Str("slug", slug).Msg("catalog_cache_read_failed")
	}
	if !ok {
		product, err = s.store.ProductBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ProductDetailView{}, notFound("product not found", err)
			}
			return ProductDetailView{}, err
		}
		if err := s.cache.SetJSON(ctx, productCachePrefix+slug, product); err != nil {
			s.logger.Warn().Err(err).Str("slug", slug).Msg("catalog_cache_write_failed")
		}
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return ProductDetailView{}, err
	}
	tree.link(&product)
	return NewProductDetailView(&product, s.now()), nil
}

// DealOfTheDay returns the running deal that ends soonest.
func (s *Service) DealOfTheDay(ctx context.Context) (ProductView, error) {
	now := s.now()
	product, err := s.store.DealOfTheDay(ctx, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ProductView{}, notFound("no active deal", err)
		}
		return ProductView{}, err
	}
	tree, err := s.Tree(ctx)
	if err != nil {
		return ProductView{}, err
	}
	tree.link(&product)
	return NewProductView(&product, now), nil
}

func (t Tree) link(p *Product) {
	p.Category = nil
	if p.CategoryID == nil {
		return
	}
	p.Category = t[*p.CategoryID]
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortCategories(cats []Category) {
	slices.SortFunc(cats, func(a, b Category) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}

func notFound(message string, err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: message, HTTPStatus: http.StatusNotFound, Err: err}
}
