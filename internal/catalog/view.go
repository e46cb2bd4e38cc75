package catalog

import (
	"time"
)

// CategoryRef is the compact category shape embedded in product payloads.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductView is the public product payload. Prices are decimal strings.
type ProductView struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Slug           string       `json:"slug"`
	SKU            string       `json:"sku"`
	Price          string       `json:"price"`
	RegularPrice   string       `json:"regular_price"`
	DealPrice      *string      `json:"deal_price"`
	DealEndsAt     *time.Time   `json:"deal_ends_at"`
	IsDealOfTheDay bool         `json:"is_deal_of_the_day"`
	Availability   string       `json:"availability_status"`
	CanBePurchased bool         `json:"can_be_purchased"`
	Category       *CategoryRef `json:"category"`
}

// ProductDetailView adds description and category path to ProductView.
type ProductDetailView struct {
	ProductView
	Description  string   `json:"description"`
	CategoryPath []string `json:"category_path"`
}

// NewProductView renders p with prices evaluated at now.
func NewProductView(p *Product, now time.Time) ProductView {
	if p == nil {
		return ProductView{}
	}
	v := ProductView{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		SKU:            p.SKU,
		Price:          p.CurrentPrice(now).StringFixed(2),
		RegularPrice:   p.RegularPrice.StringFixed(2),
		IsDealOfTheDay: p.DealActive(now),
		Availability:   p.Availability,
		CanBePurchased: p.CanBePurchased(),
	}
	if p.DealPrice.Valid {
		deal := p.DealPrice.Decimal.StringFixed(2)
		v.DealPrice = &deal
		v.DealEndsAt = p.DealEndsAt
	}
	if p.Category != nil {
		v.Category = &CategoryRef{ID: p.Category.ID, Name: p.Category.Name, Slug: p.Category.Slug}
	}
	return v
}

// NewProductDetailView renders the detail payload for p.
func NewProductDetailView(p *Product, now time.Time) ProductDetailView {
	detail := ProductDetailView{
		ProductView:  NewProductView(p, now),
		Description:  p.Description,
		CategoryPath: []string{},
	}
	if p.Category != nil {
		detail.CategoryPath = p.Category.Path()
	}
	return detail
}
