package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bonafide55/shop-api/internal/obs"
)

// Ban reasons.
const (
	ReasonAutoban  = "autoban"
	ReasonHoneypot = "honeypot"
)

// BanHook is told about every new ban.
type BanHook func(ctx context.Context, subject Subject, reason string, ttl time.Duration)

// AutoBan bans clients that keep hitting the throttle. Wire Handle as Throttle.OnReject.
type AutoBan struct {
	Violations ViolationLog
	Bans       BanStore
	Threshold  int
	Duration   time.Duration
	OnBan      BanHook
	Logger     zerolog.Logger
}

// Handle records the rejection against the client IP and bans the IP, and the
// Telegram account when known, once Threshold incidents fall inside the window.
func (a *AutoBan) Handle(r *http.Request, rej Rejection) {
	if a == nil || rej.IP == "" {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	count, err := a.Violations.Record(ctx, rej.IP)
	if err != nil {
		a.Logger.Error().Err(err).Str("ip", rej.IP).Msg("autoban_record_failed")
		return
	}
	threshold := max(a.Threshold, 1)
	if count < threshold {
		return
	}

	subjects := []Subject{IPSubject(rej.IP)}
	if rej.TelegramID != nil {
		subjects = append(subjects, TelegramSubject(*rej.TelegramID))
	}
	for _, s := range subjects {
		a.ban(ctx, s, ReasonAutoban, a.Duration, count)
	}
	if err := a.Violations.Reset(ctx, rej.IP); err != nil {
		a.Logger.Warn().Err(err).Str("ip", rej.IP).Msg("autoban_reset_failed")
	}
}

// BanNow bans s immediately, used by the honeypot.
func (a *AutoBan) BanNow(ctx context.Context, s Subject, reason string, ttl time.Duration) {
	if a == nil {
		return
	}
	a.ban(ctx, s, reason, ttl, 0)
}

func (a *AutoBan) ban(ctx context.Context, s Subject, reason string, ttl time.Duration, incidents int) {
	created, err := a.Bans.Ban(ctx, s, reason, ttl)
	if err != nil {
		a.Logger.Error().Err(err).Str("subject", s.String()).Msg("ban_failed")
		return
	}
	if !created {
		return
	}
	if obs.BansTotal != nil {
		obs.BansTotal.WithLabelValues(reason).Inc()
	}
	a.Logger.Warn().
		Str("subject", s.String()).
		Str("reason", reason).
		Int("incidents", incidents).
		Dur("ttl", ttl).
		Msg("client_banned")
	if a.OnBan != nil {
		a.OnBan(ctx, s, reason, ttl)
	}
}
