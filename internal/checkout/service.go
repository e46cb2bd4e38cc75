// Package checkout turns selected cart rows into an order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bonafide55/shop-api/internal/cart"
	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/db"
	"github.com/bonafide55/shop-api/internal/lock"
	"github.com/bonafide55/shop-api/internal/obs"
	"github.com/bonafide55/shop-api/internal/order"
	"github.com/bonafide55/shop-api/internal/pricing"
	"github.com/bonafide55/shop-api/internal/session"
)

// Stores are the repositories available inside a checkout transaction.
type Stores struct {
	Carts  cart.Store
	Orders order.Store
}

// Transactor runs fn inside a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}

// PGTransactor builds both stores over one pgx transaction.
type PGTransactor struct {
	DB db.TxBeginner
}

// InTx commits when fn returns nil and rolls back otherwise.
func (t PGTransactor) InTx(ctx context.Context, fn func(Stores) error) error {
	tx, err := t.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()
	if err := fn(Stores{Carts: cart.NewPGStore(tx), Orders: order.NewPGStore(tx)}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("commit checkout tx: %w", err)
	}
	return nil
}

// Locker serializes checkouts of one cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Notifier is told about committed orders.
type Notifier interface {
	OrderCreated(ctx context.Context, orderID int64)
}

// Service places orders.
type Service struct {
	Tx       Transactor
	Products cart.Products
	Pricing  cart.Pricer
	Lock     Locker
	LockTTL  time.Duration
	Notifier Notifier
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Place validates in, prices the owner's cart rows for the selected products
// and stores the order. The ordered rows leave the cart in the same transaction.
func (s *Service) Place(ctx context.Context, owner session.Owner, in Input) (_ order.Order, err error) {
	ctx, span := obs.StartSpan(ctx, "checkout.place", attribute.Int("checkout.lines", len(in.Items)))
	defer func() { obs.EndSpan(span, err) }()

	if s == nil || s.Tx == nil || s.Products == nil || s.Pricing == nil {
		return order.Order{}, common.NewAppError("INTERNAL", "checkout service not configured", http.StatusInternalServerError, nil)
	}
	in.trim()
	validate := s.Validate
	if validate == nil {
		validate = NewValidator()
	}
	if err := validate.Struct(in); err != nil {
		record("invalid")
		s.Logger.Warn().Interface("fields", fieldErrors(err)).Msg("order_validation_failed")
		return order.Order{}, common.BadRequest("invalid order", fieldErrors(err))
	}

	var placed order.Order
	run := func(ctx context.Context) error {
		o, err := s.place(ctx, owner, in)
		placed = o
		return err
	}
	if s.Lock != nil {
		err = s.Lock.WithLock(ctx, "lock:checkout:"+owner.Ident(), s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		record("conflict")
		return order.Order{}, common.NewAppError("CHECKOUT_IN_PROGRESS", "another checkout is in progress", http.StatusConflict, err)
	}
	if err != nil {
		if common.IsAppError(err) {
			record("rejected")
		} else {
			record("failed")
			s.Logger.Error().Err(err).Str("shopper", owner.Ident()).Msg("order_create_failed")
		}
		return order.Order{}, err
	}

	record("created")
	kind := "web_guest"
	if owner.TelegramID != nil {
		kind = "telegram_user"
	}
	s.Logger.Info().
		Int64("order_id", placed.ID).
		Str("shopper", owner.Ident()).
		Str("shopper_type", kind).
		Str("final_total", placed.FinalTotal.StringFixed(2)).
		Msg("order_created")
	if s.Notifier != nil {
		s.Notifier.OrderCreated(context.WithoutCancel(ctx), placed.ID)
	}
	return placed, nil
}

func (s *Service) place(ctx context.Context, owner session.Owner, in Input) (order.Order, error) {
	selected := make(map[int64]struct{}, len(in.Items))
	for _, id := range in.ProductIDs() {
		selected[id] = struct{}{}
	}

	var o order.Order
	err := s.Tx.InTx(ctx, func(st Stores) error {
		c, err := st.Carts.EnsureCart(ctx, owner)
		if err != nil {
			return err
		}
		rows, err := st.Carts.ListItems(ctx, c.ID)
		if err != nil {
			return err
		}
		picked := rows[:0]
		for _, row := range rows {
			if _, ok := selected[row.ProductID]; ok {
				picked = append(picked, row)
			}
		}
		if err := s.attach(ctx, picked); err != nil {
			return err
		}
		res, err := s.Pricing.Calculate(ctx, cart.Sources(picked))
		if err != nil {
			return err
		}
		if len(res.Items) == 0 {
			return common.BadRequest("selected items not found in cart", nil)
		}

		o = newOrder(owner, in.Customer(), res)
		if err := st.Orders.Create(ctx, &o); err != nil {
			return err
		}
		ordered := make([]int64, 0, len(res.Items))
		for _, it := range res.Items {
			ordered = append(ordered, it.Product.ID)
		}
		return st.Carts.RemoveProducts(ctx, c.ID, ordered)
	})
	return o, err
}

func (s *Service) attach(ctx context.Context, rows []cart.Item) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProductID)
	}
	products, err := s.Products.ProductsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load order products: %w", err)
	}
	for i := range rows {
		rows[i].Product = products[rows[i].ProductID]
	}
	return nil
}

// newOrder freezes a pricing result into an order. Each item is charged its
// discounted unit price when the applied rule covers it.
func newOrder(owner session.Owner, customer order.Customer, res pricing.Result) order.Order {
	o := order.Order{
		Status:         order.StatusNew,
		Customer:       customer,
		Subtotal:       res.Subtotal,
		DiscountAmount: res.DiscountAmount,
		FinalTotal:     res.FinalTotal,
		Items:          make([]order.Item, 0, len(res.Items)),
	}
	o.SetOwner(owner)
	if res.AppliedRule != nil {
		name := res.AppliedRule.Name
		o.AppliedRule = &name
	}
	for _, it := range res.Items {
		price := it.OriginalUnitPrice
		if it.DiscountedUnitPrice != nil {
			price = *it.DiscountedUnitPrice
		}
		pid := it.Product.ID
		o.Items = append(o.Items, order.Item{
			ProductID:       &pid,
			ProductName:     it.Product.Name,
			Quantity:        it.Quantity,
			PriceAtPurchase: price,
		})
	}
	return o
}

func record(result string) {
	if obs.OrdersCreatedTotal != nil {
		obs.OrdersCreatedTotal.WithLabelValues(result).Inc()
	}
}
