package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bonafide55/shop-api/internal/session"
)

// Status values stored in orders.status.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusCompleted  = "completed"
	StatusCanceled   = "canceled"
)

// Delivery methods accepted at checkout.
const (
	DeliveryPost = "Почта России"
	DeliveryCDEK = "СДЭК"
)

// Customer is the contact and address block captured at checkout.
type Customer struct {
	LastName          string `json:"last_name"`
	FirstName         string `json:"first_name"`
	Patronymic        string `json:"patronymic"`
	Phone             string `json:"phone"`
	DeliveryMethod    string `json:"delivery_method"`
	City              string `json:"city"`
	District          string `json:"district"`
	Street            string `json:"street"`
	House             string `json:"house"`
	Apartment         string `json:"apartment"`
	Postcode          string `json:"postcode"`
	CDEKOfficeAddress string `json:"cdek_office_address"`
}

// FullName joins last, first and patronymic names.
func (c Customer) FullName() string {
	name := c.LastName + " " + c.FirstName
	if c.Patronymic != "" {
		name += " " + c.Patronymic
	}
	return name
}

// Order is a placed order with totals frozen at creation time.
type Order struct {
	ID             int64
	TelegramID     *int64
	SessionKey     *string
	Status         string
	Customer       Customer
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalTotal     decimal.Decimal
	AppliedRule    *string
	CreatedAt      time.Time
	Items          []Item
}

// Item is an order line. ProductID is nil once the product has been deleted.
type Item struct {
	ID              int64
	ProductID       *int64
	ProductName     string
	Quantity        int
	PriceAtPurchase decimal.Decimal
}

// LineTotal returns price at purchase times quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.PriceAtPurchase.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// SetOwner records who placed the order. A Telegram user wins over a session key.
func (o *Order) SetOwner(owner session.Owner) {
	o.TelegramID, o.SessionKey = nil, nil
	if owner.TelegramID != nil {
		id := *owner.TelegramID
		o.TelegramID = &id
		return
	}
	if owner.SessionKey != "" {
		key := owner.SessionKey
		o.SessionKey = &key
	}
}

// OwnedBy reports whether owner placed the order.
func (o *Order) OwnedBy(owner session.Owner) bool {
	if o.TelegramID != nil {
		return owner.TelegramID != nil && *owner.TelegramID == *o.TelegramID
	}
	if o.SessionKey != nil {
		return owner.TelegramID == nil && owner.SessionKey == *o.SessionKey
	}
	return false
}
