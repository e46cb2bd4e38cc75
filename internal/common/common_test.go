package common

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:5000", "203.0.113.7"},
		{"garbage forwarded falls through", map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "198.51.100.2"}, "10.0.0.1:5000", "198.51.100.2"},
		{"socket peer", nil, "192.0.2.10:443", "192.0.2.10"},
		{"ipv6 peer", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"mapped v4", map[string]string{"X-Real-IP": "::ffff:192.0.2.1"}, "", "192.0.2.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			require.Equal(t, tc.want, ClientIP(r))
		})
	}
}

func TestParsePage(t *testing.T) {
	p := ParsePage(url.Values{"page": {"3"}, "limit": {"500"}}, 20, 100)
	require.Equal(t, 3, p.Page)
	require.Equal(t, 100, p.PerPage)
	require.Equal(t, 200, p.Offset())

	p = ParsePage(url.Values{"page": {"-1"}, "limit": {"x"}}, 20, 100)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
}

func TestWriteErrorHidesInternalText(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")

	rr = httptest.NewRecorder()
	WriteError(rr, BadRequest("invalid order", map[string]string{"phone": "required"}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Equal(t, map[string]any{"phone": "required"}, body.Error.Details)
}

func TestIdempotencyReplayAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	status := http.StatusCreated
	calls := 0
	h := Idem{R: rdb, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	send := func(shopper string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		r.Header.Set("Idempotency-Key", "k1")
		r = r.WithContext(WithShopper(context.Background(), shopper))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		return rr.Code
	}

	require.Equal(t, http.StatusCreated, send("tg_1"))
	require.Equal(t, http.StatusConflict, send("tg_1"))
	require.Equal(t, http.StatusCreated, send("tg_2"))
	require.Equal(t, 2, calls)

	status = http.StatusBadRequest
	require.Equal(t, http.StatusBadRequest, send("tg_3"))
	require.Equal(t, http.StatusBadRequest, send("tg_3"))
	require.Equal(t, 4, calls)
}
