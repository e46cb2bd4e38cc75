package checkout

import (
	"net/http"

	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/session"
)

// Handler exposes order placement. The route must sit behind session.Resolver.Middleware.
type Handler struct {
	Svc *Service
}

type createResponse struct {
	Success bool  `json:"success"`
	OrderID int64 `json:"order_id"`
}

// Create places an order from the selected cart rows.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	owner, ok := session.OwnerFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Place(r.Context(), owner, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, createResponse{Success: true, OrderID: o.ID})
}
