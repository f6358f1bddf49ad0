package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the caller's address for cooldown and rate-limit keys.
// With trustProxy set, the leftmost X-Forwarded-For entry identifies the
// client; otherwise forwarded headers are ignored, since any client can
// forge them, and the peer address is authoritative.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
