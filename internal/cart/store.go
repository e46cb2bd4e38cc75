package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/bonafide55/shop-api/internal/db"
	"github.com/bonafide55/shop-api/internal/session"
)

var errNoOwner = errors.New("cart: owner has neither telegram id nor session key")

// Store persists carts and their rows.
type Store interface {
	EnsureCart(ctx context.Context, owner session.Owner) (Cart, error)
	ListItems(ctx context.Context, cartID int64) ([]Item, error)
	SetQuantity(ctx context.Context, cartID, productID int64, qty int) error
	RemoveProducts(ctx context.Context, cartID int64, productIDs []int64) error
}

// PGStore implements Store on PostgreSQL. Build it over a pgx.Tx to join a transaction.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

const (
	ensureTelegramCart = `
INSERT INTO carts (telegram_id) VALUES ($1)
ON CONFLICT (telegram_id) DO UPDATE SET updated_at = now()
RETURNING id, telegram_id, session_key`
	ensureSessionCart = `
INSERT INTO carts (session_key) VALUES ($1)
ON CONFLICT (session_key) DO UPDATE SET updated_at = now()
RETURNING id, telegram_id, session_key`
)

// EnsureCart returns the owner's cart, creating it on first use.
func (s *PGStore) EnsureCart(ctx context.Context, owner session.Owner) (Cart, error) {
	var (
		query string
		arg   any
	)
	switch {
	case owner.TelegramID != nil:
		query, arg = ensureTelegramCart, *owner.TelegramID
	case owner.SessionKey != "":
		query, arg = ensureSessionCart, owner.SessionKey
	default:
		return Cart{}, errNoOwner
	}
	var c Cart
	if err := s.DB.QueryRow(ctx, query, arg).Scan(&c.ID, &c.TelegramID, &c.SessionKey); err != nil {
		return Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	return c, nil
}

// ListItems returns the cart rows in insertion order.
func (s *PGStore) ListItems(ctx context.Context, cartID int64) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id, cart_id, product_id, quantity
FROM cart_items
WHERE cart_id = $1
ORDER BY added_at, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SetQuantity upserts the row for productID; qty <= 0 deletes it.
func (s *PGStore) SetQuantity(ctx context.Context, cartID, productID int64, qty int) error {
	if qty <= 0 {
		return s.RemoveProducts(ctx, cartID, []int64{productID})
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`, cartID, productID, qty)
	if err != nil {
		return fmt.Errorf("set cart quantity: %w", err)
	}
	return nil
}

// RemoveProducts deletes the rows for productIDs. Unknown ids are ignored.
func (s *PGStore) RemoveProducts(ctx context.Context, cartID int64, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	if _, err := s.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = ANY($2)`, cartID, productIDs); err != nil {
		return fmt.Errorf("remove cart items: %w", err)
	}
	return nil
}
