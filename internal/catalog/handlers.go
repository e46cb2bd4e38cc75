package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bonafide55/shop-api/internal/common"
)

// Handler serves the public catalog. None of its routes need a session.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// serve writes {"data": v} from load, or the mapped error.
func (h *Handler) serve(w http.ResponseWriter, load func(s *Service) (any, error)) {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	v, err := load(h.service)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.serve(w, func(s *Service) (any, error) { return s.ListCategories(r.Context()) })
}

// Products handles GET /api/v1/products?category=&ids=&search=&ordering=&page=&limit=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	params, err := h.service.ParseListParams(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.service.ListProducts(r.Context(), params)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WritePage(w, result.Items, common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: result.Total})
}

// ProductDetail handles GET /api/v1/products/{slug}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	h.serve(w, func(s *Service) (any, error) { return s.ProductDetail(r.Context(), slug) })
}

// DealOfTheDay handles GET /api/v1/deal-of-the-day.
func (h *Handler) DealOfTheDay(w http.ResponseWriter, r *http.Request) {
	h.serve(w, func(s *Service) (any, error) { return s.DealOfTheDay(r.Context()) })
}
