package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bonafide55/shop-api/internal/obs"
	"github.com/bonafide55/shop-api/internal/order"
)

// TypeOrderNotify is the asynq task type for new order notifications.
const TypeOrderNotify = "order:notify"

// QueueNotifications is the asynq queue all notify tasks go to.
const QueueNotifications = "notifications"

// OrderPayload is the task body.
type OrderPayload struct {
	OrderID int64 `json:"order_id"`
}

// NewOrderNotifyTask builds the task for orderID.
func NewOrderNotifyTask(orderID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderNotify, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue(QueueNotifications),
	), nil
}

// Enqueuer hands order notifications to the worker.
type Enqueuer struct {
	Client *asynq.Client
	Logger zerolog.Logger
}

// OrderCreated enqueues a notification for orderID. Enqueue failures are logged
// and never surface to the caller: the order is already committed.
func (e *Enqueuer) OrderCreated(ctx context.Context, orderID int64) {
	if e == nil || e.Client == nil {
		return
	}
	task, err := NewOrderNotifyTask(orderID)
	if err == nil {
		_, err = e.Client.EnqueueContext(ctx, task)
	}
	if err != nil {
		e.Logger.Error().Err(err).Int64("order_id", orderID).Msg("notify_enqueue_failed")
		recordNotification("enqueue_failed")
	}
}

// OrderGetter loads an order with its items.
type OrderGetter interface {
	Get(ctx context.Context, id int64) (order.Order, error)
}

// Sender delivers a formatted message.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Notifier processes order notification tasks.
type Notifier struct {
	Orders    OrderGetter
	Sender    Sender
	Formatter *Formatter
	ChatID    string
	Logger    zerolog.Logger
}

// ProcessTask implements asynq.Handler. Missing configuration and unknown
// orders are dropped without retry; delivery errors are retried by asynq.
func (n *Notifier) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p OrderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	return n.NotifyOrder(ctx, p.OrderID)
}

// NotifyOrder formats and sends the notification for orderID.
func (n *Notifier) NotifyOrder(ctx context.Context, orderID int64) error {
	logger := n.Logger.With().Int64("order_id", orderID).Logger()
	if n.Sender == nil || n.ChatID == "" {
		logger.Warn().Msg("notify_skipped_not_configured")
		recordNotification("skipped")
		return nil
	}
	o, err := n.Orders.Get(ctx, orderID)
	if errors.Is(err, order.ErrNotFound) {
		logger.Warn().Msg("notify_order_missing")
		recordNotification("skipped")
		return fmt.Errorf("order %d: %w", orderID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	formatter := n.Formatter
	if formatter == nil {
		formatter = NewFormatter(decimal.NullDecimal{}, "", "")
	}
	err = n.Sender.SendMessage(ctx, n.ChatID, formatter.Format(o))
	if errors.Is(err, ErrNotConfigured) {
		logger.Warn().Msg("notify_skipped_not_configured")
		recordNotification("skipped")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("notify_send_failed")
		recordNotification("failed")
		return err
	}
	logger.Info().Msg("notify_sent")
	recordNotification("sent")
	return nil
}

func recordNotification(result string) {
	if obs.NotificationsTotal != nil {
		obs.NotificationsTotal.WithLabelValues(result).Inc()
	}
}
