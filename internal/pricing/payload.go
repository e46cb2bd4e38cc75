package pricing

import (
	"time"

	"github.com/bonafide55/shop-api/internal/catalog"
)

// ItemPayload is the JSON shape of a priced line.
type ItemPayload struct {
	ID              *int64              `json:"id"`
	Product         catalog.ProductView `json:"product"`
	Quantity        int                 `json:"quantity"`
	OriginalPrice   string              `json:"original_price"`
	DiscountedPrice *string             `json:"discounted_price"`
}

// Payload is the JSON breakdown returned by the cart and selection endpoints.
type Payload struct {
	Items          []ItemPayload `json:"items"`
	Subtotal       string        `json:"subtotal"`
	DiscountAmount string        `json:"discount_amount"`
	FinalTotal     string        `json:"final_total"`
	AppliedRule    *string       `json:"applied_rule"`
	UpsellHint     *string       `json:"upsell_hint"`
}

// NewPayload renders res. now is used for the embedded product summaries.
func NewPayload(res Result, now time.Time) Payload {
	p := Payload{
		Items:          make([]ItemPayload, 0, len(res.Items)),
		Subtotal:       res.Subtotal.StringFixed(2),
		DiscountAmount: res.DiscountAmount.StringFixed(2),
		FinalTotal:     res.FinalTotal.StringFixed(2),
	}
	for _, item := range res.Items {
		ip := ItemPayload{
			ID:            item.Ref,
			Product:       catalog.NewProductView(item.Product, now),
			Quantity:      item.Quantity,
			OriginalPrice: item.OriginalUnitPrice.StringFixed(2),
		}
		if item.DiscountedUnitPrice != nil {
			s := item.DiscountedUnitPrice.StringFixed(2)
			ip.DiscountedPrice = &s
		}
		p.Items = append(p.Items, ip)
	}
	if res.AppliedRule != nil {
		name := res.AppliedRule.Name
		p.AppliedRule = &name
	}
	if res.UpsellHint != "" {
		hint := res.UpsellHint
		p.UpsellHint = &hint
	}
	return p
}
