package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/olgkv/bookmarkchecker/internal/config"
	"github.com/olgkv/bookmarkchecker/internal/domain"
)

func TestRateLimitMiddleware_PerIP(t *testing.T) {
	limiter := newIPRateLimiter(1, 1, time.Minute)
	var hits int
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	})
	h := rateLimitMiddleware(limiter, inner)

	req := httptest.NewRequest(http.MethodPost, "/api/check", nil)
	req.RemoteAddr = "1.1.1.1:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request blocked, got %d", rec2.Code)
	}
	if hits != 1 {
		t.Fatalf("expected handler invoked once, got %d", hits)
	}
}

func TestRateLimitMiddleware_DifferentIPs(t *testing.T) {
	limiter := newIPRateLimiter(1, 1, time.Minute)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := rateLimitMiddleware(limiter, inner)

	req1 := httptest.NewRequest(http.MethodPost, "/api/check", nil)
	req1.RemoteAddr = "2.2.2.2:1000"
	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first IP allowed, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/check", nil)
	req2.RemoteAddr = "3.3.3.3:2000"
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected second IP allowed, got %d", rec2.Code)
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	limiter := newIPRateLimiter(1, 1, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.allow("5.5.5.5")
	limiter.allow("6.6.6.6")
	if n := limiter.size(); n != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", n)
	}

	now = now.Add(2 * time.Minute)
	if !limiter.allow("7.7.7.7") {
		t.Fatalf("expected new client allowed")
	}
	if n := limiter.size(); n != 1 {
		t.Fatalf("expected idle clients evicted, got %d tracked", n)
	}
}

func TestClientIPExtraction(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "4.4.4.4:8080"
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.0.1")
	if ip := clientIP(req, true); ip != "10.0.0.1" {
		t.Fatalf("expected X-Forwarded-For ip, got %s", ip)
	}
	if ip := clientIP(req, false); ip != "4.4.4.4" {
		t.Fatalf("expected forwarded headers ignored without trust, got %s", ip)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "172.16.0.5")
	if ip := clientIP(req, true); ip != "172.16.0.5" {
		t.Fatalf("expected X-Real-IP, got %s", ip)
	}

	req.Header.Del("X-Real-IP")
	if ip := clientIP(req, true); ip != "4.4.4.4" {
		t.Fatalf("expected RemoteAddr host, got %s", ip)
	}
}

func TestRateLimitMiddleware_IgnoresSpoofedHeaders(t *testing.T) {
	limiter := newIPRateLimiter(1, 1, time.Minute)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := rateLimitMiddleware(limiter, inner)

	codes := make([]int, 0, 3)
	for _, forwarded := range []string{"9.9.9.1", "9.9.9.2", "9.9.9.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/check", nil)
		req.RemoteAddr = "8.8.8.8:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected rotating X-Forwarded-For to share one bucket, got %v", codes)
	}
	if n := limiter.size(); n != 1 {
		t.Fatalf("expected one tracked client, got %d", n)
	}
}

func TestRateLimitMiddleware_TrustedProxy(t *testing.T) {
	limiter := newIPRateLimiter(1, 1, time.Minute)
	limiter.trustProxy = true
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := rateLimitMiddleware(limiter, inner)

	for _, forwarded := range []string{"9.9.9.1", "9.9.9.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/check", nil)
		req.RemoteAddr = "10.0.0.254:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected %s allowed behind trusted proxy, got %d", forwarded, rec.Code)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	logger, err := NewLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("expected json record, got %s", out)
	}

	cfg.LogLevel = "loud"
	if _, err := NewLogger(cfg, &buf); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewServer_Routes(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimitRPS = 0

	logs := &syncBuffer{}
	logger, err := NewLogger(cfg, logs)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	srv, svc, statsFn, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", srv.Addr)
	}

	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{
		"bookmarks": []domain.Bookmark{{Title: "mirror", URL: "ftp://mirror.example"}},
	})
	resp, err := http.Post(ts.URL+"/api/check", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/check: %v", err)
	}
	var run domain.Run
	_ = json.NewDecoder(resp.Body).Decode(&run)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d", resp.StatusCode)
	}
	if len(run.Results) != 1 || run.Results[0].ErrorMessage != "Invalid URL protocol" {
		t.Fatalf("unexpected results: %#v", run.Results)
	}
	svc.Wait()

	runs, checked := statsFn()
	if runs != 1 || checked != 1 {
		t.Fatalf("unexpected stats: runs=%d checked=%d", runs, checked)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), `bookmarkchecker_probes_total{outcome="protocol_rejected"} 1`) {
		t.Fatalf("expected probe counter in metrics output")
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	ts.Close()
	if !strings.Contains(logs.String(), "bookmarks_num=1") {
		t.Fatalf("expected request log with bookmarks_num, got %s", logs.String())
	}
}
