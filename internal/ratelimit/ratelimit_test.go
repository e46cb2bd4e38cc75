package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/bonafide55/shop-api/internal/session"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sessionIdentify(r *http.Request) (session.Owner, bool) {
	if key := r.Header.Get("X-Session-ID"); key != "" {
		return session.Owner{SessionKey: key}, true
	}
	return session.Owner{}, false
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func newThrottle(t *testing.T, userRate, anonRate string) (*Throttle, *[]Rejection) {
	t.Helper()
	store := memory.NewStore()
	user, err := NewLimiter(store, userRate)
	require.NoError(t, err)
	anon, err := NewLimiter(store, anonRate)
	require.NoError(t, err)
	var rejected []Rejection
	return &Throttle{
		User:     user,
		Anon:     anon,
		Identify: sessionIdentify,
		OnReject: func(_ *http.Request, rej Rejection) { rejected = append(rejected, rej) },
		Logger:   zerolog.Nop(),
	}, &rejected
}

func get(h http.Handler, ip, sessionKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.RemoteAddr = ip + ":1234"
	if sessionKey != "" {
		req.Header.Set("X-Session-ID", sessionKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestThrottleAnonByIP(t *testing.T) {
	th, rejected := newThrottle(t, "5-M", "2-M")
	h := th.Middleware(okHandler)

	require.Equal(t, http.StatusOK, get(h, "10.0.0.1", "").Code)
	rec := get(h, "10.0.0.1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = get(h, "10.0.0.1", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Len(t, *rejected, 1)
	require.Equal(t, ScopeAnon, (*rejected)[0].Scope)
	require.Equal(t, "10.0.0.1", (*rejected)[0].IP)

	require.Equal(t, http.StatusOK, get(h, "10.0.0.2", "").Code)
}

func TestThrottleIdentifiedUsesUserQuota(t *testing.T) {
	th, rejected := newThrottle(t, "3-M", "1-M")
	h := th.Middleware(okHandler)

	for i := 0; i < 3; i++ {
		rec := get(h, "10.0.0.1", "abc")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
	require.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1", "abc").Code)
	require.Equal(t, "sess_abc", (*rejected)[0].Key)

	// The anon quota for the same IP is untouched.
	require.Equal(t, http.StatusOK, get(h, "10.0.0.1", "").Code)
	// Another session from the same IP has its own quota.
	require.Equal(t, http.StatusOK, get(h, "10.0.0.1", "other").Code)
}

func TestViolationLogSlidingWindow(t *testing.T) {
	_, client := newRedis(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	log := ViolationLog{Client: client, Prefix: "violations:", Window: time.Hour, Now: func() time.Time { return now }}
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := log.Record(ctx, "1.2.3.4")
		require.NoError(t, err)
		require.Equal(t, want, n)
	}
	now = now.Add(61 * time.Minute)
	n, err := log.Record(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBanStore(t *testing.T) {
	mr, client := newRedis(t)
	bans := BanStore{Client: client}
	ctx := context.Background()
	ip := IPSubject("1.2.3.4")

	created, err := bans.Ban(ctx, ip, ReasonAutoban, time.Hour)
	require.NoError(t, err)
	require.True(t, created)
	created, err = bans.Ban(ctx, ip, ReasonAutoban, time.Hour)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, time.Hour, mr.TTL("ban:ip:1.2.3.4"))

	created, err = bans.Ban(ctx, ip, ReasonHoneypot, 0)
	require.NoError(t, err)
	require.False(t, created)
	require.Zero(t, mr.TTL("ban:ip:1.2.3.4"))

	banned, err := bans.Banned(ctx, IPSubject("9.9.9.9"), ip)
	require.NoError(t, err)
	require.True(t, banned)

	require.NoError(t, bans.Unban(ctx, ip))
	banned, err = bans.Banned(ctx, ip)
	require.NoError(t, err)
	require.False(t, banned)
}

func TestAutoBanAfterThreshold(t *testing.T) {
	mr, client := newRedis(t)
	var hooked []Subject
	ab := &AutoBan{
		Violations: ViolationLog{Client: client, Prefix: "violations:", Window: time.Hour},
		Bans:       BanStore{Client: client},
		Threshold:  3,
		Duration:   24 * time.Hour,
		OnBan:      func(_ context.Context, s Subject, _ string, _ time.Duration) { hooked = append(hooked, s) },
		Logger:     zerolog.Nop(),
	}
	tgID := int64(42)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rej := Rejection{Scope: ScopeUser, IP: "5.5.5.5", TelegramID: &tgID}

	ab.Handle(req, rej)
	ab.Handle(req, rej)
	require.False(t, mr.Exists("ban:ip:5.5.5.5"))

	ab.Handle(req, rej)
	require.True(t, mr.Exists("ban:ip:5.5.5.5"))
	require.True(t, mr.Exists("ban:tg:42"))
	require.Equal(t, 24*time.Hour, mr.TTL("ban:tg:42"))
	require.Equal(t, []Subject{IPSubject("5.5.5.5"), TelegramSubject(42)}, hooked)
}

func TestBlacklistMiddleware(t *testing.T) {
	_, client := newRedis(t)
	bans := BanStore{Client: client}
	ctx := context.Background()
	_, err := bans.Ban(ctx, IPSubject("6.6.6.6"), ReasonHoneypot, 0)
	require.NoError(t, err)
	_, err = bans.Ban(ctx, TelegramSubject(7), ReasonAutoban, time.Hour)
	require.NoError(t, err)

	tg := int64(7)
	h := Blacklist{
		Bans: bans,
		Identify: func(r *http.Request) (session.Owner, bool) {
			if r.Header.Get("X-Test-TG") != "" {
				return session.Owner{TelegramID: &tg}, true
			}
			return session.Owner{}, false
		},
		Logger: zerolog.Nop(),
	}.Middleware(okHandler)

	require.Equal(t, http.StatusForbidden, get(h, "6.6.6.6", "").Code)
	require.Equal(t, http.StatusOK, get(h, "8.8.8.8", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "8.8.8.8:1"
	req.Header.Set("X-Test-TG", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBlacklistFailsOpen(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	h := Blacklist{Bans: BanStore{Client: client}, Logger: zerolog.Nop()}.Middleware(okHandler)
	require.Equal(t, http.StatusOK, get(h, "6.6.6.6", "").Code)
}
