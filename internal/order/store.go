package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bonafide55/shop-api/internal/db"
	"github.com/bonafide55/shop-api/internal/session"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order: not found")

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (Order, error)
	ListForOwner(ctx context.Context, owner session.Owner, limit, offset int) ([]Order, int64, error)
}

// PGStore implements Store on PostgreSQL. Create must run on a pgx.Tx so the
// order and its items land together.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

const orderColumns = `id, telegram_id, session_key, status,
last_name, first_name, patronymic, phone, delivery_method,
city, district, street, house, apartment, postcode, cdek_office_address,
subtotal, discount_amount, final_total, applied_rule, created_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	c := &o.Customer
	err := row.Scan(&o.ID, &o.TelegramID, &o.SessionKey, &o.Status,
		&c.LastName, &c.FirstName, &c.Patronymic, &c.Phone, &c.DeliveryMethod,
		&c.City, &c.District, &c.Street, &c.House, &c.Apartment, &c.Postcode, &c.CDEKOfficeAddress,
		&o.Subtotal, &o.DiscountAmount, &o.FinalTotal, &o.AppliedRule, &o.CreatedAt)
	return o, err
}

// Create inserts o and its items, filling in ids, status and creation time.
func (s *PGStore) Create(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusNew
	}
	c := o.Customer
	err := s.DB.QueryRow(ctx, `
INSERT INTO orders (telegram_id, session_key, status,
  last_name, first_name, patronymic, phone, delivery_method,
  city, district, street, house, apartment, postcode, cdek_office_address,
  subtotal, discount_amount, final_total, applied_rule)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id, created_at`,
		o.TelegramID, o.SessionKey, o.Status,
		c.LastName, c.FirstName, c.Patronymic, c.Phone, c.DeliveryMethod,
		c.City, c.District, c.Street, c.House, c.Apartment, c.Postcode, c.CDEKOfficeAddress,
		o.Subtotal, o.DiscountAmount, o.FinalTotal, o.AppliedRule,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i := range o.Items {
		it := &o.Items[i]
		if err := s.DB.QueryRow(ctx, `
INSERT INTO order_items (order_id, product_id, product_name, quantity, price_at_purchase)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, o.ID, it.ProductID, it.ProductName, it.Quantity, it.PriceAtPurchase).Scan(&it.ID); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// Get loads an order with its items.
func (s *PGStore) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	rows, err := s.DB.Query(ctx, `
SELECT id, product_id, product_name, quantity, price_at_purchase
FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

// ListForOwner returns the owner's orders, newest first, without items.
func (s *PGStore) ListForOwner(ctx context.Context, owner session.Owner, limit, offset int) ([]Order, int64, error) {
	where, arg := `session_key = $1 AND telegram_id IS NULL`, any(owner.SessionKey)
	if owner.TelegramID != nil {
		where, arg = `telegram_id = $1`, *owner.TelegramID
	}
	var total int64
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where+
		` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}
