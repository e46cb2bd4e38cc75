package cart

import (
	"net/http"
	"time"

	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/pricing"
	"github.com/bonafide55/shop-api/internal/session"
)

// Handler exposes the cart over HTTP. Routes must sit behind session.Resolver.Middleware.
type Handler struct {
	Svc *Service
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (session.Owner, bool) {
	if h.Svc == nil {
		common.WriteError(w, serviceUnavailable())
		return session.Owner{}, false
	}
	owner, ok := session.OwnerFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return session.Owner{}, false
	}
	return owner, true
}

func (h *Handler) respond(w http.ResponseWriter, res pricing.Result, err error) {
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, pricing.NewPayload(res, h.now()))
}

// Get returns the priced cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Breakdown(r.Context(), owner)
	h.respond(w, res, err)
}

type setQuantityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

// Set adds, updates or removes one product. Quantity defaults to 1.
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var payload setQuantityRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	qty := 1
	if payload.Quantity != nil {
		qty = *payload.Quantity
	}
	res, err := h.Svc.SetQuantity(r.Context(), owner, payload.ProductID, qty)
	h.respond(w, res, err)
}

type removeRequest struct {
	ProductIDs []int64 `json:"product_ids"`
}

// Remove deletes several products at once.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var payload removeRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, common.BadRequest("expected list of product_ids", map[string]string{"product_ids": "array of integers"}))
		return
	}
	res, err := h.Svc.Remove(r.Context(), owner, payload.ProductIDs)
	h.respond(w, res, err)
}

type selectionRequest struct {
	Selection []SelectionLine `json:"selection"`
}

// CalculateSelection prices the posted selection without persisting it.
func (h *Handler) CalculateSelection(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.owner(w, r); !ok {
		return
	}
	var payload selectionRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.CalculateSelection(r.Context(), payload.Selection)
	h.respond(w, res, err)
}
