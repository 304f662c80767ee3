package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the canonical address of the client that made r, used as
// the key for per-client limits.
//
// With trustProxy the first parseable address from Forwarded (for=),
// X-Forwarded-For or X-Real-IP wins, in that order. Without it, or when no
// header holds a valid address, RemoteAddr is used. IPv4-mapped IPv6
// addresses are unmapped so one client never counts under two keys.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip, ok := forwardedFor(r.Header.Get("Forwarded")); ok {
			return ip
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := canonical(first); ok {
				return ip
			}
		}
		if ip, ok := canonical(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	if ip, ok := canonical(r.RemoteAddr); ok {
		return ip
	}
	return r.RemoteAddr
}

// forwardedFor extracts the first for= node of an RFC 7239 Forwarded header.
func forwardedFor(h string) (string, bool) {
	if h == "" {
		return "", false
	}
	first, _, _ := strings.Cut(h, ",")
	for _, pair := range strings.Split(first, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && strings.EqualFold(k, "for") {
			return canonical(strings.Trim(v, `"`))
		}
	}
	return "", false
}

// canonical parses an address with or without a port, and with or without
// IPv6 brackets.
func canonical(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}
