package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type fakeRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{counts: make(map[string]int64)}
}

func (f *fakeRateLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func cartRequest(method, session, ip string) *http.Request {
	req := httptest.NewRequest(method, "/api/cart", nil)
	req.RemoteAddr = ip + ":5678"
	return req.WithContext(WithCartSession(req.Context(), session))
}

func TestCartRateLimit_SessionLimitTriggers(t *testing.T) {
	limiter := newFakeRateLimiter()
	handler := CartRateLimit(NewCartRateLimitPolicy(time.Minute, 2), limiter, nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, cartRequest(http.MethodPost, "s1", "1.2.3.4"))

		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Fatalf("expected success before limit, got %d", rec.Code)
			}
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") != "60" {
			t.Fatalf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
			t.Fatalf("unexpected code: %s", payload.Error.Code)
		}
	}
}

func TestCartRateLimit_IPLimitSpansSessions(t *testing.T) {
	limiter := newFakeRateLimiter()
	handler := CartRateLimit(NewCartRateLimitPolicy(time.Minute, 1), limiter, nil)(okHandler())

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, cartRequest(http.MethodDelete, "a", "9.9.9.9"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, cartRequest(http.MethodDelete, "b", "9.9.9.9"))

	if first.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected shared ip to be limited, got %d", second.Code)
	}
}

func TestCartRateLimit_ReadsBypassLimiter(t *testing.T) {
	limiter := newFakeRateLimiter()
	handler := CartRateLimit(NewCartRateLimitPolicy(time.Minute, 1), limiter, nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, cartRequest(http.MethodGet, "s1", "1.2.3.4"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected GET to bypass limiter, got %d", rec.Code)
		}
	}
	if len(limiter.counts) != 0 {
		t.Fatalf("limiter should not be consulted for reads")
	}
}

func TestCartRateLimit_StoreErrorIsDependencyFailure(t *testing.T) {
	limiter := newFakeRateLimiter()
	limiter.err = errors.New("redis down")
	handler := CartRateLimit(NewCartRateLimitPolicy(time.Minute, 5), limiter, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cartRequest(http.MethodPost, "s1", "1.2.3.4"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCartRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	limiter := newFakeRateLimiter()
	handler := CartRateLimit(NewCartRateLimitPolicy(0, 0), limiter, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, cartRequest(http.MethodPost, "s1", "1.2.3.4"))
	if rec.Code != http.StatusOK || len(limiter.counts) != 0 {
		t.Fatalf("disabled policy should not touch the limiter")
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/cart", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.2")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("unexpected ip %q", ip)
	}
	req.Header.Del("X-Forwarded-For")
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("unexpected ip %q", ip)
	}
}
