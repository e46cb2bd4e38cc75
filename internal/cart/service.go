package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bonafide55/shop-api/internal/catalog"
	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/pricing"
	"github.com/bonafide55/shop-api/internal/session"
)

// ErrProductNotFound is returned when a cart write names an unknown product.
var ErrProductNotFound = errors.New("cart: product not found")

// Products resolves product ids to catalog products with categories linked.
type Products interface {
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*catalog.Product, error)
}

// Pricer prices a basket.
type Pricer interface {
	Calculate(ctx context.Context, rows []pricing.Source) (pricing.Result, error)
}

// Service implements the cart use cases on top of a Store.
type Service struct {
	Store    Store
	Products Products
	Pricing  Pricer
	Logger   zerolog.Logger
}

// Items returns the owner's cart rows with products attached. Rows whose
// product has disappeared keep a nil Product and are ignored by pricing.
func (s *Service) Items(ctx context.Context, owner session.Owner) (Cart, []Item, error) {
	c, err := s.Store.EnsureCart(ctx, owner)
	if err != nil {
		return Cart{}, nil, err
	}
	items, err := s.Store.ListItems(ctx, c.ID)
	if err != nil {
		return Cart{}, nil, err
	}
	if err := s.attach(ctx, items); err != nil {
		return Cart{}, nil, err
	}
	return c, items, nil
}

// Breakdown prices the owner's cart.
func (s *Service) Breakdown(ctx context.Context, owner session.Owner) (pricing.Result, error) {
	_, items, err := s.Items(ctx, owner)
	if err != nil {
		return pricing.Result{}, err
	}
	return s.Pricing.Calculate(ctx, Sources(items))
}

// SetQuantity sets the quantity of productID in the owner's cart; qty <= 0
// removes it. The product must exist.
func (s *Service) SetQuantity(ctx context.Context, owner session.Owner, productID int64, qty int) (pricing.Result, error) {
	if productID <= 0 {
		return pricing.Result{}, common.BadRequest("product_id is required", map[string]string{"product_id": "required"})
	}
	products, err := s.Products.ProductsByIDs(ctx, []int64{productID})
	if err != nil {
		return pricing.Result{}, err
	}
	if _, ok := products[productID]; !ok {
		return pricing.Result{}, common.NotFound("product not found", ErrProductNotFound)
	}
	c, err := s.Store.EnsureCart(ctx, owner)
	if err != nil {
		return pricing.Result{}, err
	}
	if err := s.Store.SetQuantity(ctx, c.ID, productID, qty); err != nil {
		return pricing.Result{}, err
	}
	s.Logger.Debug().Int64("cart_id", c.ID).Int64("product_id", productID).Int("quantity", qty).Msg("cart_quantity_set")
	return s.Breakdown(ctx, owner)
}

// Remove deletes productIDs from the owner's cart and returns the new breakdown.
func (s *Service) Remove(ctx context.Context, owner session.Owner, productIDs []int64) (pricing.Result, error) {
	c, err := s.Store.EnsureCart(ctx, owner)
	if err != nil {
		return pricing.Result{}, err
	}
	if err := s.Store.RemoveProducts(ctx, c.ID, productIDs); err != nil {
		return pricing.Result{}, err
	}
	return s.Breakdown(ctx, owner)
}

// CalculateSelection prices an ad-hoc selection without touching any cart.
// Unknown product ids are skipped.
func (s *Service) CalculateSelection(ctx context.Context, lines []SelectionLine) (pricing.Result, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.Products.ProductsByIDs(ctx, ids)
	if err != nil {
		return pricing.Result{}, err
	}
	rows := make([]pricing.Source, 0, len(lines))
	for _, l := range lines {
		product, ok := products[l.ProductID]
		if !ok {
			continue
		}
		rows = append(rows, pricing.Selection{Product: product, Quantity: l.Quantity})
	}
	return s.Pricing.Calculate(ctx, rows)
}

func (s *Service) attach(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Products.ProductsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load cart products: %w", err)
	}
	for i := range items {
		items[i].Product = products[items[i].ProductID]
	}
	return nil
}

func serviceUnavailable() *common.AppError {
	return common.NewAppError("INTERNAL", "cart service not configured", http.StatusInternalServerError, nil)
}
