package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bonafide55/shop-api/internal/session"
)

type memStore struct {
	orders []Order
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	o.ID = int64(len(m.orders) + 1)
	m.orders = append(m.orders, *o)
	return nil
}

func (m *memStore) Get(_ context.Context, id int64) (Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (m *memStore) ListForOwner(_ context.Context, owner session.Owner, limit, offset int) ([]Order, int64, error) {
	var mine []Order
	for i := len(m.orders) - 1; i >= 0; i-- {
		if m.orders[i].OwnedBy(owner) {
			mine = append(mine, m.orders[i])
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return nil, total, nil
	}
	mine = mine[offset:]
	if len(mine) > limit {
		mine = mine[:limit]
	}
	return mine, total, nil
}

func tgOwner(id int64) session.Owner { return session.Owner{TelegramID: &id} }

func seed(t *testing.T) *memStore {
	t.Helper()
	store := &memStore{}
	pid := int64(10)
	o := Order{
		Status:         StatusNew,
		Customer:       Customer{LastName: "Ivanova", FirstName: "Anna", Phone: "+70000000000", DeliveryMethod: DeliveryCDEK},
		Subtotal:       decimal.RequireFromString("3000"),
		DiscountAmount: decimal.RequireFromString("300"),
		FinalTotal:     decimal.RequireFromString("2700"),
		Items:          []Item{{ProductID: &pid, ProductName: "Cable", Quantity: 3, PriceAtPurchase: decimal.RequireFromString("900")}},
	}
	o.SetOwner(tgOwner(7))
	require.NoError(t, store.Create(context.Background(), &o))
	return store
}

func get(h *Handler, id string, owner session.Owner) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+id, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	req = req.WithContext(session.WithOwner(ctx, owner))
	rr := httptest.NewRecorder()
	h.Get(rr, req)
	return rr
}

func TestGetOwnOrder(t *testing.T) {
	h := &Handler{Store: seed(t)}
	rr := get(h, "1", tgOwner(7))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "2700.00", body.Data.FinalTotal)
	require.Len(t, body.Data.Items, 1)
	require.Equal(t, "900.00", body.Data.Items[0].PriceAtPurchase)
}

func TestGetForeignOrderIsHidden(t *testing.T) {
	h := &Handler{Store: seed(t)}
	require.Equal(t, http.StatusNotFound, get(h, "1", tgOwner(8)).Code)
	require.Equal(t, http.StatusNotFound, get(h, "1", session.Owner{SessionKey: "7"}).Code)
	require.Equal(t, http.StatusNotFound, get(h, "2", tgOwner(7)).Code)
	require.Equal(t, http.StatusBadRequest, get(h, "abc", tgOwner(7)).Code)
}

func TestListOwnOrders(t *testing.T) {
	h := &Handler{Store: seed(t)}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?page=1&limit=10", nil)
	req = req.WithContext(session.WithOwner(req.Context(), tgOwner(7)))
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-Total-Count"))
}

func TestOwnedBy(t *testing.T) {
	var o Order
	o.SetOwner(session.Owner{SessionKey: "abc"})
	require.True(t, o.OwnedBy(session.Owner{SessionKey: "abc"}))
	require.False(t, o.OwnedBy(session.Owner{SessionKey: "abd"}))
	require.False(t, o.OwnedBy(tgOwner(1)))

	require.Equal(t, "Ivanova Anna Petrovna", Customer{LastName: "Ivanova", FirstName: "Anna", Patronymic: "Petrovna"}.FullName())
}
