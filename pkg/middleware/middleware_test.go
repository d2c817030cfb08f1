package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/metrics"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("generated id not propagated: ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Errorf("caller id not kept, got %q", seen)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(ok, mw("a"), mw("b"), mw("c")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, "") != "abc" {
		t.Errorf("order = %v", order)
	}
}

func TestMetricsNormalizesPaths(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Metrics(m)(ok)
	for _, p := range []string{"/documento/A1", "/documento/B2", "/wp-admin"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/documento/{id}", "200")); got != 2 {
		t.Errorf("verification requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "other", "200")); got != 1 {
		t.Errorf("other requests = %v, want 1", got)
	}
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("X-Late", "1")
		w.Write([]byte("late"))
	})
	rec := httptest.NewRecorder()
	Timeout(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	Timeout(time.Second)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig())(ok)

	req := httptest.NewRequest(http.MethodOptions, "/upload", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "X-Batch-ID") {
		t.Errorf("batch headers not exposed: %q", rec.Header().Get("Access-Control-Expose-Headers"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers set without Origin")
	}
}

type stubValidator map[string]*apikey.KeyInfo

func (s stubValidator) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	switch raw {
	case "expired":
		return nil, apikey.ErrExpiredKey
	case "broken":
		return nil, errors.New("db down")
	}
	if info, ok := s[raw]; ok {
		return info, nil
	}
	return nil, apikey.ErrInvalidKey
}

func TestAuth(t *testing.T) {
	v := stubValidator{"good": {ID: "7", Name: "ops", RateLimit: 5}}
	var got *apikey.KeyInfo
	h := Auth(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetKeyInfo(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer good", http.StatusOK},
		{"x-api-key", "X-API-Key", "good", http.StatusOK},
		{"invalid", "X-API-Key", "nope", http.StatusUnauthorized},
		{"expired", "X-API-Key", "expired", http.StatusUnauthorized},
		{"store error", "X-API-Key", "broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && (got == nil || got.ID != "7") {
				t.Errorf("key info not stored: %+v", got)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemory(time.Minute)
	defer limiter.Close()
	m := metrics.New(prometheus.NewRegistry())
	h := RateLimit(limiter, 2, nil, m)(ok)

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if send("10.0.0.1:1000") != 200 || send("10.0.0.1:1001") != 200 {
		t.Fatal("first two uploads should pass")
	}
	if code := send("10.0.0.1:1002"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if send("10.0.0.2:1000") != 200 {
		t.Fatal("other clients keep their own budget")
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 1 {
		t.Errorf("rate limited counter = %v", got)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter := ratelimit.NewMemory(time.Minute)
	defer limiter.Close()
	h := RateLimit(limiter, 1, nil, nil)(ok)

	allowed := 0
	for i := range 20 {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("allowed %d uploads with rotating X-Forwarded-For, want 1", allowed)
	}
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		remote  string
		fwd     string
		trusted []netip.Prefix
		want    string
	}{
		{"no proxies configured", "203.0.113.9:4000", "1.2.3.4", nil, "203.0.113.9"},
		{"untrusted peer", "203.0.113.9:4000", "1.2.3.4", trusted, "203.0.113.9"},
		{"trusted peer", "10.0.0.5:4000", "1.2.3.4", trusted, "1.2.3.4"},
		{"spoofed leftmost hop", "10.0.0.5:4000", "6.6.6.6, 1.2.3.4, 10.0.0.7", trusted, "1.2.3.4"},
		{"only proxies", "10.0.0.5:4000", "10.0.0.7", trusted, "10.0.0.7"},
		{"trusted peer without header", "10.0.0.5:4000", "", trusted, "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := ClientIP(req, tt.trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
