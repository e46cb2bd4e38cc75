package cart

import (
	"github.com/bonafide55/shop-api/internal/catalog"
	"github.com/bonafide55/shop-api/internal/pricing"
)

// Cart is the persisted basket of one owner.
type Cart struct {
	ID         int64
	TelegramID *int64
	SessionKey *string
}

// Item is one cart row. Product is attached by the service before pricing.
type Item struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  int
	Product   *catalog.Product
}

func (it Item) PricingProduct() *catalog.Product { return it.Product }
func (it Item) PricingQuantity() int             { return it.Quantity }
func (it Item) PricingRef() *int64 {
	id := it.ID
	return &id
}

// Sources adapts items for the pricing engine.
func Sources(items []Item) []pricing.Source {
	out := make([]pricing.Source, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	return out
}

// SelectionLine is one entry of a stateless what-if calculation.
type SelectionLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
