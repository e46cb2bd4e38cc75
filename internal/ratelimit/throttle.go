// Package ratelimit throttles API traffic and bans abusive clients.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/obs"
	"github.com/bonafide55/shop-api/internal/session"
)

// Scopes label which limit applied.
const (
	ScopeUser = "user"
	ScopeAnon = "anon"
)

// Rejection describes a throttled request.
type Rejection struct {
	Scope      string
	Key        string
	IP         string
	TelegramID *int64
	Path       string
}

// Throttle applies the user limit to identified shoppers and the anon limit,
// keyed by client IP, to everyone else. Exactly one quota is spent per request.
type Throttle struct {
	User     *limiter.Limiter
	Anon     *limiter.Limiter
	Identify func(*http.Request) (session.Owner, bool)
	OnReject func(*http.Request, Rejection)
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewLimiter builds a limiter from a "<limit>-<period>" rate such as "60-M".
func NewLimiter(store limiter.Store, formatted string) (*limiter.Limiter, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

func (t Throttle) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Throttle) classify(r *http.Request) (scope, key string, owner session.Owner, identified bool) {
	if t.Identify != nil {
		if owner, ok := t.Identify(r); ok {
			if ident := owner.Ident(); ident != "" {
				return ScopeUser, ident, owner, true
			}
		}
	}
	return ScopeAnon, "ip_" + common.ClientIP(r), session.Owner{}, false
}

// Middleware enforces the limits. Store errors let the request through.
func (t Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, key, owner, identified := t.classify(r)
		lim := t.Anon
		if identified {
			lim = t.User
		}
		if lim == nil {
			next.ServeHTTP(w, r)
			return
		}

		lctx, err := lim.Get(r.Context(), scope+":"+key)
		if err != nil {
			t.Logger.Error().Err(err).Str("scope", scope).Msg("throttle_store_error")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if !lctx.Reached {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := max(lctx.Reset-t.now().Unix(), 0)
		headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		if obs.ThrottleRejectionsTotal != nil {
			obs.ThrottleRejectionsTotal.WithLabelValues(scope).Inc()
		}
		rej := Rejection{Scope: scope, Key: key, IP: common.ClientIP(r), TelegramID: owner.TelegramID, Path: r.URL.Path}
		t.Logger.Warn().Str("scope", scope).Str("key", key).Str("path", rej.Path).Msg("request_throttled")
		if t.OnReject != nil {
			t.OnReject(r, rej)
		}
		common.JSONError(w, http.StatusTooManyRequests, "THROTTLED", "request was throttled", map[string]any{"retry_after": retryAfter})
	})
}
