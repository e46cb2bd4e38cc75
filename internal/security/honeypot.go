package security

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/ratelimit"
)

// Banner bans a subject right away.
type Banner interface {
	BanNow(ctx context.Context, s ratelimit.Subject, reason string, ttl time.Duration)
}

// Honeypot answers a decoy admin URL. Any caller is banned by IP for good.
type Honeypot struct {
	Bans   Banner
	Logger zerolog.Logger
}

// ServeHTTP implements http.Handler.
func (h Honeypot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := common.ClientIP(r)
	h.Logger.Warn().
		Str("ip", ip).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("user_agent", r.UserAgent()).
		Msg("honeypot_triggered")
	if h.Bans != nil && ip != "" {
		h.Bans.BanNow(context.WithoutCancel(r.Context()), ratelimit.IPSubject(ip), ratelimit.ReasonHoneypot, 0)
	}
	common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "access denied, security violation logged", nil)
}
