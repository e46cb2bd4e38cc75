package ratelimit

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bonafide55/shop-api/internal/common"
	"github.com/bonafide55/shop-api/internal/session"
)

// Blacklist rejects banned IPs and Telegram accounts with 403.
// Lookup failures let the request through.
type Blacklist struct {
	Bans     BanStore
	Identify func(*http.Request) (session.Owner, bool)
	Logger   zerolog.Logger
}

// Middleware implements the blacklist check.
func (b Blacklist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjects := []Subject{IPSubject(common.ClientIP(r))}
		if b.Identify != nil {
			if owner, ok := b.Identify(r); ok && owner.TelegramID != nil {
				subjects = append(subjects, TelegramSubject(*owner.TelegramID))
			}
		}
		banned, err := b.Bans.Banned(r.Context(), subjects...)
		if err != nil {
			b.Logger.Error().Err(err).Msg("blacklist_lookup_failed")
			next.ServeHTTP(w, r)
			return
		}
		if banned {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "access denied", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
