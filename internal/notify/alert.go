package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// TypeBanAlert is the asynq task type for security ban alerts.
const TypeBanAlert = "security:ban"

// BanPayload describes a new ban.
type BanPayload struct {
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	Reason     string `json:"reason"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// NewBanAlertTask builds the alert task. A zero ttl means a permanent ban.
func NewBanAlertTask(p BanPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeBanAlert, payload, asynq.MaxRetry(3), asynq.Queue(QueueNotifications)), nil
}

// Banned enqueues an alert about a new ban.
func (e *Enqueuer) Banned(ctx context.Context, kind, value, reason string, ttl time.Duration) {
	if e == nil || e.Client == nil {
		return
	}
	task, err := NewBanAlertTask(BanPayload{Kind: kind, Value: value, Reason: reason, TTLSeconds: int64(ttl / time.Second)})
	if err == nil {
		_, err = e.Client.EnqueueContext(ctx, task)
	}
	if err != nil {
		e.Logger.Error().Err(err).Str("subject", kind+":"+value).Msg("ban_alert_enqueue_failed")
	}
}

// FormatBanAlert renders a ban alert in Telegram HTML.
func FormatBanAlert(p BanPayload) string {
	var b strings.Builder
	b.WriteString("🚨 <b>БЛОКИРОВКА</b>\n\n")
	label := "IP"
	if p.Kind == "tg" {
		label = "Telegram ID"
	}
	fmt.Fprintf(&b, "%s: <code>%s</code>\n", label, html.EscapeString(p.Value))
	fmt.Fprintf(&b, "Причина: %s\n", html.EscapeString(p.Reason))
	if p.TTLSeconds <= 0 {
		b.WriteString("Срок: навсегда")
	} else {
		fmt.Fprintf(&b, "Срок: %s", time.Duration(p.TTLSeconds)*time.Second)
	}
	return b.String()
}

// ProcessBanAlert delivers a ban alert task.
func (n *Notifier) ProcessBanAlert(ctx context.Context, t *asynq.Task) error {
	var p BanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if n.Sender == nil || n.ChatID == "" {
		n.Logger.Warn().Msg("ban_alert_skipped_not_configured")
		recordNotification("skipped")
		return nil
	}
	if err := n.Sender.SendMessage(ctx, n.ChatID, FormatBanAlert(p)); err != nil {
		n.Logger.Error().Err(err).Str("subject", p.Kind+":"+p.Value).Msg("ban_alert_failed")
		recordNotification("failed")
		return err
	}
	recordNotification("sent")
	return nil
}

// Mux routes notification tasks to n.
func (n *Notifier) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeOrderNotify, n)
	mux.HandleFunc(TypeBanAlert, n.ProcessBanAlert)
	return mux
}
