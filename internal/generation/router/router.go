// Package router wires the generator's routes and middleware chain.
package router

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/handler"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/middleware"
)

// Deps are the components the routes are served by. Validator and Limiter
// are optional; without them uploads are unauthenticated or unlimited.
type Deps struct {
	Upload         *handler.Handler
	Pages          *handler.Pages
	Health         *health.Checker
	Metrics        *metrics.Metrics
	Analytics      *analytics.Handler
	Validator      middleware.KeyValidator
	Limiter        ratelimit.Limiter
	RatePerMinute  int
	TrustedProxies []netip.Prefix
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /                  → upload form
//	POST   /upload            → table in, archive out  (Auth → RateLimit)
//	GET    /documento/{id}    → verification page
//	GET    /analytics/stats   → batch totals
//	GET    /health/live       → liveness
//	GET    /health/ready      → readiness
//	GET    /metrics           → Prometheus scrape
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → Timeout → CORS → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", d.Pages.Index)
	mux.HandleFunc("GET /documento/{id}", d.Pages.Verify)

	var upload http.Handler = http.HandlerFunc(d.Upload.Upload)
	var guards []func(http.Handler) http.Handler
	if d.Validator != nil {
		guards = append(guards, middleware.Auth(d.Validator))
	}
	if d.Limiter != nil {
		guards = append(guards, middleware.RateLimit(d.Limiter, d.RatePerMinute, d.TrustedProxies, d.Metrics))
	}
	mux.Handle("POST /upload", middleware.Chain(upload, guards...))

	if d.Analytics != nil {
		mux.HandleFunc("GET /analytics/stats", d.Analytics.Stats)
	}
	mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())

	chain := []func(http.Handler) http.Handler{middleware.RequestID}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
		chain = append(chain, middleware.Metrics(d.Metrics))
	}
	chain = append(chain, middleware.Timeout(d.RequestTimeout), middleware.CORS(d.CORS))
	return middleware.Chain(mux, chain...)
}
