package cartclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

type capturedRequest struct {
	Method         string
	Path           string
	Body           string
	Session        string
	IdempotencyKey string
	RequestID      string
}

type recordingServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	handler  func(w http.ResponseWriter, r *http.Request, attempt int)
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, capturedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		Body:           string(body),
		Session:        r.Header.Get(HeaderCartSession),
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
		RequestID:      r.Header.Get(HeaderRequestID),
	})
	attempt := len(s.requests)
	s.mu.Unlock()
	s.handler(w, r, attempt)
}

func (s *recordingServer) captured() []capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedRequest(nil), s.requests...)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, attempt int)) (*Client, *recordingServer) {
	t.Helper()
	rec := &recordingServer{handler: handler}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/api/", WithSessionID("sess-1"), WithRetry(3, time.Millisecond, 5*time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, rec
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "   ", "localhost:5000/api", "ftp://cart.test"} {
		if _, err := NewClient(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	client, err := NewClient("http://cart.test/api/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.BaseURL() != "http://cart.test/api" {
		t.Fatalf("unexpected base url %q", client.BaseURL())
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	client, err := NewFromConfig(config.CartServiceConfig{
		BaseURL:        "https://cart.test/api",
		Timeout:        2 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     time.Second,
		SessionID:      "abc",
	}, nil)
	if err != nil {
		t.Fatalf("new from config: %v", err)
	}
	if client.maxAttempts != 5 || client.sessionID != "abc" || client.httpClient.Timeout != 2*time.Second {
		t.Fatalf("config not applied: %+v", client)
	}

	_, err = NewFromConfig(config.CartServiceConfig{BaseURL: "cart.test/api"}, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for scheme-less url, got %v", err)
	}
}

func TestFetchDecodesCart(t *testing.T) {
	t.Parallel()

	client, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"cart":[
			{"id":12,"name":"Product 12","price":99.5,"quantity":2,"image":"https://img.test/12"},
			{"productId":"7","name":"Product 7","price":"10","quantity":1}
		],"totalItems":3,"totalPrice":209}`)
	})

	lines, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ProductID != "12" || lines[0].Quantity != 2 || !lines[0].UnitPrice.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].ProductID != "7" || lines[1].ImageURL != "" {
		t.Fatalf("unexpected second line %+v", lines[1])
	}

	reqs := rec.captured()
	if reqs[0].Method != http.MethodGet || reqs[0].Path != "/api/cart" {
		t.Fatalf("unexpected request %+v", reqs[0])
	}
	if reqs[0].Session != "sess-1" || reqs[0].RequestID == "" || reqs[0].IdempotencyKey != "" {
		t.Fatalf("unexpected headers %+v", reqs[0])
	}
}

func TestFetchMalformedResponses(t *testing.T) {
	t.Parallel()

	bodies := []string{`not json`, `{"totalItems":0}`, `{"cart":[{"id":"1","price":"abc","quantity":1}]}`}
	for _, body := range bodies {
		body := body
		client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
			_, _ = io.WriteString(w, body)
		})
		_, err := client.Fetch(context.Background())
		if !pkgerrors.IsCode(err, pkgerrors.CodeMalformed) {
			t.Fatalf("body %q: expected malformed error, got %v", body, err)
		}
		if n := len(rec.captured()); n != 1 {
			t.Fatalf("body %q: malformed responses must not be retried, got %d calls", body, n)
		}
	}
}

func TestApplyWireFormat(t *testing.T) {
	t.Parallel()

	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusOK)
	})

	mutations := []cartstate.Mutation{
		{Seq: 1, Kind: cartstate.MutationAdd, ProductID: "5", IdempotencyKey: "sess-1:1"},
		{Seq: 2, Kind: cartstate.MutationUpdateQuantity, ProductID: "5", Delta: -2, IdempotencyKey: "sess-1:2"},
		{Seq: 3, Kind: cartstate.MutationRemove, ProductID: "a b", IdempotencyKey: "sess-1:3"},
	}
	for _, mut := range mutations {
		if err := client.Apply(context.Background(), mut); err != nil {
			t.Fatalf("apply %s: %v", mut.Kind, err)
		}
	}

	reqs := rec.captured()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}

	if reqs[0].Method != http.MethodPost || reqs[0].Path != "/api/cart" || reqs[0].IdempotencyKey != "sess-1:1" {
		t.Fatalf("unexpected add request %+v", reqs[0])
	}
	var add map[string]any
	if err := json.Unmarshal([]byte(reqs[0].Body), &add); err != nil || add["productId"] != "5" {
		t.Fatalf("unexpected add body %q", reqs[0].Body)
	}

	if reqs[1].Method != http.MethodPost || reqs[1].Path != "/api/cart/update-quantity" {
		t.Fatalf("unexpected update request %+v", reqs[1])
	}
	var update map[string]any
	if err := json.Unmarshal([]byte(reqs[1].Body), &update); err != nil || update["quantityChange"] != float64(-2) {
		t.Fatalf("unexpected update body %q", reqs[1].Body)
	}

	if reqs[2].Method != http.MethodDelete || reqs[2].Path != "/api/cart/a b" || reqs[2].Body != "" {
		t.Fatalf("unexpected remove request %+v", reqs[2])
	}
}

func TestApplyRetriesServerErrorsWithSameKey(t *testing.T) {
	t.Parallel()

	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, attempt int) {
		if attempt < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := client.Apply(context.Background(), cartstate.Mutation{Seq: 4, Kind: cartstate.MutationAdd, ProductID: "1", IdempotencyKey: "sess-1:4"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	reqs := rec.captured()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(reqs))
	}
	for _, req := range reqs {
		if req.IdempotencyKey != "sess-1:4" || req.RequestID != reqs[0].RequestID {
			t.Fatalf("retries must reuse keys, got %+v", req)
		}
	}
}

func TestApplyGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.Apply(context.Background(), cartstate.Mutation{Kind: cartstate.MutationRemove, ProductID: "1"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if n := len(rec.captured()); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestApplyDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	client, rec := newTestClient(t, func(w http.ResponseWriter, _ *http.Request, _ int) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"product not found"}}`)
	})

	err := client.Apply(context.Background(), cartstate.Mutation{Kind: cartstate.MutationAdd, ProductID: "404"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	if n := len(rec.captured()); n != 1 {
		t.Fatalf("expected a single attempt, got %d", n)
	}
}

func TestFromStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]pkgerrors.Code{
		http.StatusBadRequest:          pkgerrors.CodeValidation,
		http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
		http.StatusForbidden:           pkgerrors.CodeForbidden,
		http.StatusNotFound:            pkgerrors.CodeNotFound,
		http.StatusConflict:            pkgerrors.CodeConflict,
		http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
		http.StatusInternalServerError: pkgerrors.CodeDependency,
		http.StatusBadGateway:          pkgerrors.CodeDependency,
		http.StatusTeapot:              pkgerrors.CodeValidation,
	}
	for status, want := range cases {
		if got := pkgerrors.FromStatus(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
}
