package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bonafide55/shop-api/internal/catalog"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type productsResponse struct {
	Data       []catalog.ProductView `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

type detailResponse struct {
	Data catalog.ProductDetailView `json:"data"`
}

type categoriesResponse struct {
	Data []catalog.Category `json:"data"`
}

func TestCatalogHandlers(t *testing.T) {
	store := newFakeStore()
	svc := newService(t, store, nil)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	t.Run("categories", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Categories(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp categoriesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 3)
		require.Equal(t, "Audio", resp.Data[0].Name)
	})

	t.Run("products filtered by category subtree", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?category=audio", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-Total-Count"))
		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		slugs := []string{resp.Data[0].Slug, resp.Data[1].Slug}
		require.ElementsMatch(t, []string{"pedal", "cable"}, slugs)
	})

	t.Run("unknown category yields empty page", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?category=nope", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Empty(t, resp.Data)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=zero", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("search matches name description and sku", func(t *testing.T) {
		for query, want := range map[string][]string{
			"pedal":  {"pedal"},
			"CASE":   {"cable", "pedal"},
			"cbl-3m": {"cable"},
			"zzz":    {},
		} {
			rec := httptest.NewRecorder()
			handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?search="+query, nil))
			require.Equal(t, http.StatusOK, rec.Code, query)
			require.Equal(t, strings.TrimSpace(query), store.lastFilter.Search)
			var resp productsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			got := []string{}
			for _, p := range resp.Data {
				got = append(got, p.Slug)
			}
			require.ElementsMatch(t, want, got, query)
		}
	})

	t.Run("ordering by current price", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?ordering=-price", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, catalog.SortPriceDesc, store.lastFilter.Sort)
		require.Equal(t, fixedNow, store.lastFilter.Now)
		var resp productsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 3)
		require.Equal(t, []string{"pedal", "lamp", "cable"}, []string{resp.Data[0].Slug, resp.Data[1].Slug, resp.Data[2].Slug})
		require.Equal(t, "80.00", resp.Data[0].Price)
	})

	t.Run("ordering defaults to newest", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, catalog.SortNewest, store.lastFilter.Sort)
	})

	t.Run("unknown ordering", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Products(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?ordering=stock_quantity", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("product detail uses deal price", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ProductDetail(rec, withSlug(httptest.NewRequest(http.MethodGet, "/api/v1/products/pedal", nil), "pedal"))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp detailResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "80.00", resp.Data.Price)
		require.Equal(t, "100.00", resp.Data.RegularPrice)
		require.True(t, resp.Data.IsDealOfTheDay)
		require.Equal(t, []string{"audio", "effects"}, resp.Data.CategoryPath)
	})

	t.Run("product detail not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ProductDetail(rec, withSlug(httptest.NewRequest(http.MethodGet, "/api/v1/products/ghost", nil), "ghost"))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("deal of the day", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.DealOfTheDay(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deal-of-the-day", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data catalog.ProductView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "pedal", resp.Data.Slug)
	})
}

func TestServiceCachesCategoryTree(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newFakeStore()
	svc := newService(t, store, catalog.NewCache(rdb, time.Minute))

	ctx := context.Background()
	_, err := svc.Tree(ctx)
	require.NoError(t, err)
	_, err = svc.Tree(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.categoryCalls)
	require.True(t, mr.Exists("catalog:categories"))

	products, err := svc.ProductsByIDs(ctx, []int64{2, 2, 99})
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NotNil(t, products[2].Category)
	require.NotNil(t, products[2].Category.Parent)
	require.Equal(t, "audio", products[2].Category.Parent.Slug)

	_, err = svc.ProductDetail(ctx, "pedal")
	require.NoError(t, err)
	require.True(t, mr.Exists("catalog:product:pedal"))
	cache := catalog.NewCache(rdb, time.Minute)
	require.NoError(t, cache.Invalidate(ctx, "pedal"))
	require.False(t, mr.Exists("catalog:product:pedal"))
	require.False(t, mr.Exists("catalog:categories"))
}

func newService(t *testing.T, store catalog.Store, cache *catalog.Cache) *catalog.Service {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Store:        store,
		Cache:        cache,
		Logger:       zerolog.Nop(),
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	require.NoError(t, err)
	svc.Now = func() time.Time { return fixedNow }
	return svc
}

func withSlug(req *http.Request, slug string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("slug", slug)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type fakeStore struct {
	categories    []catalog.Category
	products      []catalog.Product
	categoryCalls int
	lastFilter    catalog.ProductFilter
}

func int64p(v int64) *int64 { return &v }

func newFakeStore() *fakeStore {
	dealEnds := fixedNow.Add(6 * time.Hour)
	return &fakeStore{
		categories: []catalog.Category{
			{ID: 1, Name: "Audio", Slug: "audio"},
			{ID: 2, Name: "Effects", Slug: "effects", ParentID: int64p(1)},
			{ID: 3, Name: "Lighting", Slug: "lighting"},
		},
		products: []catalog.Product{
			{ID: 1, CategoryID: int64p(1), Name: "Cable", Slug: "cable", SKU: "CBL-3M", Description: "Instrument case-friendly patch cable", RegularPrice: decimal.RequireFromString("10.00"), Availability: catalog.AvailabilityInStock, StockQuantity: 5, Active: true},
			{ID: 2, CategoryID: int64p(2), Name: "Pedal", Slug: "pedal", SKU: "PDL-OD", Description: "Overdrive in a metal case", RegularPrice: decimal.RequireFromString("100.00"), DealPrice: decimal.NewNullDecimal(decimal.RequireFromString("80.00")), DealEndsAt: &dealEnds, Availability: catalog.AvailabilityInStock, StockQuantity: 1, Active: true},
			{ID: 3, CategoryID: int64p(3), Name: "Lamp", Slug: "lamp", RegularPrice: decimal.RequireFromString("25.00"), Availability: catalog.AvailabilityPreOrder, Active: true},
		},
	}
}

func (f *fakeStore) ListCategories(context.Context) ([]catalog.Category, error) {
	f.categoryCalls++
	return append([]catalog.Category(nil), f.categories...), nil
}

func (f *fakeStore) ProductsByIDs(_ context.Context, ids []int64) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if slices.Contains(ids, p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (f *fakeStore) ListProducts(_ context.Context, filter catalog.ProductFilter) ([]catalog.Product, int64, error) {
	var out []catalog.Product
	for _, p := range f.products {
		if len(filter.CategoryIDs) > 0 && (p.CategoryID == nil || !slices.Contains(filter.CategoryIDs, *p.CategoryID)) {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, p.ID) {
			continue
		}
		if term := strings.ToLower(filter.Search); term != "" &&
			!strings.Contains(strings.ToLower(p.Name+" "+p.Description+" "+p.SKU), term) {
			continue
		}
		out = append(out, p)
	}
	f.lastFilter = filter
	switch filter.Sort {
	case catalog.SortPriceAsc, catalog.SortPriceDesc:
		slices.SortStableFunc(out, func(a, b catalog.Product) int {
			c := a.CurrentPrice(filter.Now).Cmp(b.CurrentPrice(filter.Now))
			if filter.Sort == catalog.SortPriceDesc {
				return -c
			}
			return c
		})
	}
	total := int64(len(out))
	start := min(filter.Offset, len(out))
	end := min(start+filter.Limit, len(out))
	return out[start:end], total, nil
}

func (f *fakeStore) DealOfTheDay(_ context.Context, now time.Time) (catalog.Product, error) {
	for _, p := range f.products {
		if p.DealActive(now) {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrNotFound
}
