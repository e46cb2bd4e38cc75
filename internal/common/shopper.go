package common

import "context"

type ctxKey string

const (
	shopperKey     ctxKey = "session/shopper"
	shopperSlotKey ctxKey = "session/shopper-slot"
)

type shopperSlot struct {
	ident string
}

// WithShopperSlot installs a slot that outer middleware can read after inner
// handlers resolved the shopper. An existing slot is reused.
func WithShopperSlot(ctx context.Context) context.Context {
	if _, ok := ctx.Value(shopperSlotKey).(*shopperSlot); ok {
		return ctx
	}
	return context.WithValue(ctx, shopperSlotKey, &shopperSlot{})
}

// WithShopper stores the resolved shopper identity ("tg_<id>" or "sess_<key>") on the context.
func WithShopper(ctx context.Context, ident string) context.Context {
	if slot, ok := ctx.Value(shopperSlotKey).(*shopperSlot); ok {
		slot.ident = ident
	}
	return context.WithValue(ctx, shopperKey, ident)
}

// Shopper extracts the shopper identity from the context if present.
func Shopper(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(shopperKey).(string); ok && id != "" {
		return id, true
	}
	if slot, ok := ctx.Value(shopperSlotKey).(*shopperSlot); ok && slot.ident != "" {
		return slot.ident, true
	}
	return "", false
}
