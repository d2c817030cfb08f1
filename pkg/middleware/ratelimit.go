package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/metrics"
)

// RateLimit enforces a per-client budget of perMinute requests. Clients are
// identified by their API key when Auth ran first, else by address (see
// ClientIP). A key's own rate_limit overrides perMinute.
func RateLimit(limiter ratelimit.Limiter, perMinute int, trusted []netip.Prefix, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, limit := "ip:"+ClientIP(r, trusted), perMinute
			if info := GetKeyInfo(r.Context()); info != nil {
				client = "key:" + info.ID
				if info.RateLimit > 0 {
					limit = info.RateLimit
				}
			}

			ok, err := limiter.Allow(r.Context(), client, limit)
			if err != nil {
				logger.FromContext(r.Context()).Warn("rate limiter error", "client", client, "error", err)
			}
			if !ok {
				if m != nil {
					m.RateLimitedTotal.Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(60))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the peer address of r. X-Forwarded-For is consulted only
// when the peer is in trusted; the hops are then walked from the right and
// the first untrusted one is the client.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r.RemoteAddr)
	if len(trusted) == 0 || !isTrusted(peer, trusted) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
		peer = hop
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func isTrusted(host string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
