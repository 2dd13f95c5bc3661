package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/logger"
)

func captureSession(t *testing.T, header string) string {
	t.Helper()
	var got string
	handler := CartSession(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CartSessionFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	if header != "" {
		req.Header.Set("X-Cart-Session", header)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestCartSessionDefaultsWhenMissing(t *testing.T) {
	if got := captureSession(t, ""); got != cart.DefaultSessionID {
		t.Fatalf("expected default session, got %q", got)
	}
	if got := captureSession(t, "   "); got != cart.DefaultSessionID {
		t.Fatalf("expected blank header to fall back to default, got %q", got)
	}
}

func TestCartSessionTrimsAndTruncates(t *testing.T) {
	if got := captureSession(t, "  abc  "); got != "abc" {
		t.Fatalf("expected trimmed session, got %q", got)
	}
	long := strings.Repeat("x", maxCartSessionLen+10)
	if got := captureSession(t, long); len(got) != maxCartSessionLen {
		t.Fatalf("expected session truncated to %d, got %d", maxCartSessionLen, len(got))
	}
}

func TestCartSessionAttachesLogField(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	handler := CartSession(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logg.Info(r.Context(), "cart.session.seen")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("X-Cart-Session", "sess-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "sess-42") {
		t.Fatalf("expected log line to carry cart session, got %s", buf.String())
	}
}
