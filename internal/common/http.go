package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the socket
// peer. The API runs behind the storefront's reverse proxy, which owns those
// headers. Unparseable header values are ignored.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := parseIP(first); ok {
			return ip
		}
	}
	if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return strings.TrimSpace(host)
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
