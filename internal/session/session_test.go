package session

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/bonafide55/shop-api/internal/common"
)

const botToken = "123456:TEST-TOKEN"

func signedInitData(t *testing.T, authDate time.Time, user string) string {
	t.Helper()
	payload := map[string]string{"query_id": "AAH", "user": user}
	values := url.Values{}
	for k, v := range payload {
		values.Set(k, v)
	}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("hash", initdata.Sign(payload, botToken, authDate))
	return values.Encode()
}

func fixedNow() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestValidateAcceptsSignedInitData(t *testing.T) {
	v := InitDataValidator{BotToken: botToken, Now: fixedNow}
	raw := signedInitData(t, fixedNow().Add(-time.Hour), `{"id":42,"first_name":"Ann","username":"ann"}`)

	user, err := v.Validate(raw)
	require.NoError(t, err)
	require.EqualValues(t, 42, user.ID)
	require.Equal(t, "Ann (@ann)", user.DisplayName())
}

func TestValidateRejects(t *testing.T) {
	v := InitDataValidator{BotToken: botToken, Now: fixedNow}
	fresh := signedInitData(t, fixedNow().Add(-time.Minute), `{"id":42}`)

	tampered, err := url.ParseQuery(fresh)
	require.NoError(t, err)
	tampered.Set("user", `{"id":43}`)

	cases := []struct {
		name  string
		token string
		raw   string
	}{
		{"empty", botToken, ""},
		{"no hash", botToken, "auth_date=1&user=%7B%7D"},
		{"stale", botToken, signedInitData(t, fixedNow().Add(-25*time.Hour), `{"id":42}`)},
		{"tampered", botToken, tampered.Encode()},
		{"wrong token", "other", fresh},
		{"missing user", botToken, signedInitData(t, fixedNow(), `{}`)},
		{"malformed user", botToken, signedInitData(t, fixedNow(), `not-json`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			validator := v
			validator.BotToken = tc.token
			_, err := validator.Validate(tc.raw)
			require.ErrorIs(t, err, ErrInvalidInitData)
		})
	}
}

func serve(t *testing.T, r Resolver, req *http.Request) (*httptest.ResponseRecorder, Owner, string) {
	t.Helper()
	var (
		got     Owner
		shopper string
	)
	h := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got, _ = OwnerFrom(req.Context())
		shopper, _ = common.Shopper(req.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, got, shopper
}

func TestMiddlewareTelegramOwner(t *testing.T) {
	r := Resolver{Validator: InitDataValidator{BotToken: botToken, Now: fixedNow}, Logger: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "tma "+signedInitData(t, fixedNow(), `{"id":7}`))
	req.Header.Set("X-Session-ID", "ignored")

	rr, owner, shopper := serve(t, r, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, owner.TelegramID)
	require.EqualValues(t, 7, *owner.TelegramID)
	require.Empty(t, owner.SessionKey)
	require.Equal(t, "tg_7", shopper)
}

func TestMiddlewareInvalidTelegramIsForbidden(t *testing.T) {
	r := Resolver{Validator: InitDataValidator{BotToken: botToken, Now: fixedNow}, Logger: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "tma auth_date=1&hash=00")

	rr, _, _ := serve(t, r, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareSessionOwner(t *testing.T) {
	r := Resolver{Logger: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Session-ID", "abc")

	rr, owner, shopper := serve(t, r, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, owner.TelegramID)
	require.Equal(t, "abc", owner.SessionKey)
	require.Equal(t, "sess_abc", shopper)
}

func TestMiddlewareRequiresCredentials(t *testing.T) {
	r := Resolver{Logger: zerolog.Nop()}
	rr, _, _ := serve(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareDebugFallback(t *testing.T) {
	r := Resolver{Debug: true, Logger: zerolog.Nop()}
	rr, owner, _ := serve(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, owner.TelegramID)
	require.Equal(t, DebugUser.ID, *owner.TelegramID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("X-Session-ID", "dbg")
	_, owner, _ = serve(t, r, req)
	require.Equal(t, "dbg", owner.SessionKey)
}

func TestOwnerSame(t *testing.T) {
	a, b := int64(1), int64(1)
	require.True(t, Owner{TelegramID: &a}.Same(Owner{TelegramID: &b}))
	require.False(t, Owner{TelegramID: &a}.Same(Owner{SessionKey: "1"}))
	require.False(t, Owner{}.Same(Owner{}))
}
