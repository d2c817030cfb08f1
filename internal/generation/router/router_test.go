package router

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/handler"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/internal/generation/pipeline"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tracked-documents/pkg/middleware"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.Default()
	m := metrics.New(prometheus.NewRegistry())
	collector := analytics.NewCollector(nil, nil, analytics.CollectorOptions{})
	p := pipeline.New(cfg.Generation, m, collector)
	limiter := ratelimit.NewMemory(time.Minute)
	t.Cleanup(limiter.Close)

	return New(Deps{
		Upload:         handler.New(p, cfg.Generation.ArchiveName, cfg.Server.MaxUploadBytes),
		Pages:          handler.NewPages(p, cfg.Generation.IdentifierColumn, cfg.Server.MaxUploadBytes),
		Health:         health.NewChecker("generator"),
		Metrics:        m,
		Analytics:      analytics.NewHandler(collector.Aggregator()),
		Limiter:        limiter,
		RatePerMinute:  1,
		RequestTimeout: 10 * time.Second,
		CORS:           middleware.DefaultCORSConfig(),
	})
}

func TestRoutes(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/documento/ABC-1", http.StatusOK},
		{http.MethodGet, "/documento/a.b", http.StatusNotFound},
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/analytics/stats", http.StatusOK},
		{http.MethodGet, "/upload", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
		if rec.Header().Get(middleware.RequestIDHeader) == "" {
			t.Errorf("%s %s: missing request id", tt.method, tt.path)
		}
	}
}

func TestUploadIsRateLimited(t *testing.T) {
	r := newRouter(t)
	send := func() int {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, _ := mw.CreateFormFile("file", "lote.csv")
		fw.Write([]byte("ID_UNICO,NOME\n1,Ana\n"))
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/upload", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("first upload = %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second upload = %d, want 429", code)
	}
}
