package order

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/session"
)

// ItemView is the public order line payload.
type ItemView struct {
	ProductID       *int64 `json:"product_id"`
	ProductName     string `json:"product_name"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

// View is the public order payload.
type View struct {
	ID             int64      `json:"id"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	Customer       Customer   `json:"customer"`
	Subtotal       string     `json:"subtotal"`
	DiscountAmount string     `json:"discount_amount"`
	FinalTotal     string     `json:"final_total"`
	AppliedRule    *string    `json:"applied_rule"`
	Items          []ItemView `json:"items,omitempty"`
}

// NewView renders o.
func NewView(o Order) View {
	v := View{
		ID:             o.ID,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		Customer:       o.Customer,
		Subtotal:       o.Subtotal.StringFixed(2),
		DiscountAmount: o.DiscountAmount.StringFixed(2),
		FinalTotal:     o.FinalTotal.StringFixed(2),
		AppliedRule:    o.AppliedRule,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			PriceAtPurchase: it.PriceAtPurchase.StringFixed(2),
		})
	}
	return v
}

// Handler serves the shopper's own orders. Routes must sit behind session.Resolver.Middleware.
type Handler struct {
	Store Store
}

// List returns the owner's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	page := common.ParsePage(r.URL.Query(), 20, 100)
	orders, total, err := h.Store.ListForOwner(r.Context(), owner, page.PerPage, page.Offset())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, NewView(o))
	}
	page.TotalItems = total
	common.WritePage(w, views, page)
}

// Get returns one order. Orders placed by someone else are reported as missing.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		common.WriteError(w, common.BadRequest("invalid order id", nil))
		return
	}
	o, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.WriteError(w, common.NotFound("order not found", err))
			return
		}
		common.WriteError(w, err)
		return
	}
	if !o.OwnedBy(owner) {
		common.WriteError(w, common.NotFound("order not found", ErrNotFound))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": NewView(o)})
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (session.Owner, bool) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return session.Owner{}, false
	}
	owner, ok := session.OwnerFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return session.Owner{}, false
	}
	return owner, true
}
