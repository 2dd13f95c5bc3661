package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/cartstate"
	products "github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/cartclient"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/redis"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type testStack struct {
	router   http.Handler
	products products.Service
	registry *prometheus.Registry
}

func testConfig() *config.Config {
	return &config.Config{
		App:        config.AppConfig{Env: "test", Port: "0"},
		CartLimits: config.CartLimitsConfig{MutationWindow: time.Minute, MutationLimit: 100, IdempotencyTTL: time.Hour},
		CORS:       config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Product{}, &models.CartLine{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	// concurrent handlers share one connection so sqlite never reports a locked table
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func newTestStack(t *testing.T, dbP db.Pinger) *testStack {
	t.Helper()
	conn := openTestDB(t)
	client := db.NewFromGorm(conn)

	productSvc, err := products.NewService(products.NewRepository(conn), client)
	if err != nil {
		t.Fatalf("product service: %v", err)
	}
	if _, err := productSvc.SeedCatalog(context.Background(), 5, products.DefaultCatalogSeed); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	cartSvc, err := cart.NewService(cart.NewRepository(conn), client, productSvc)
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}

	reg := prometheus.NewRegistry()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	router := NewRouter(
		testConfig(),
		logg,
		dbP,
		(*redis.Client)(nil),
		productSvc,
		cartSvc,
		metrics.NewHTTPMetrics(reg),
		reg,
	)
	return &testStack{router: router, products: productSvc, registry: reg}
}

func (s *testStack) do(t *testing.T, method, path, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("X-Cart-Session", session)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testStack) price(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	product, err := s.products.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return decimal.RequireFromString(product.Price.String())
}

type cartBody struct {
	Cart []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Price    string `json:"price"`
		Quantity int    `json:"quantity"`
	} `json:"cart"`
	TotalItems int         `json:"totalItems"`
	TotalPrice json.Number `json:"totalPrice"`
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartBody {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body cartBody
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		t.Fatalf("decode cart: %v", err)
	}
	return body
}

func TestHealthLive(t *testing.T) {
	stack := newTestStack(t, stubPinger{})
	rec := stack.do(t, http.MethodGet, "/health/live", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-Storefront-Env") != "test" {
		t.Fatalf("expected env header")
	}
}

func TestHealthReadyReportsDependencies(t *testing.T) {
	stack := newTestStack(t, stubPinger{})
	rec := stack.do(t, http.MethodGet, "/health/ready", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"redis":"disabled"`) {
		t.Fatalf("expected redis reported disabled, got %s", rec.Body.String())
	}

	failing := newTestStack(t, stubPinger{err: errors.New("db down")})
	rec = failing.do(t, http.MethodGet, "/health/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestProductRoutes(t *testing.T) {
	stack := newTestStack(t, stubPinger{})

	rec := stack.do(t, http.MethodGet, "/api/products?limit=2", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var list struct {
		Data struct {
			Products   []products.ProductDTO `json:"products"`
			NextOffset *int                  `json:"next_offset"`
		} `json:"data"`
		Meta struct {
			Limit int `json:"limit"`
			Count int `json:"count"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(list.Data.Products) != 2 || list.Data.Products[0].ID != "1" {
		t.Fatalf("unexpected product page %+v", list.Data.Products)
	}
	if list.Data.NextOffset == nil || *list.Data.NextOffset != 2 {
		t.Fatalf("expected next offset 2, got %v", list.Data.NextOffset)
	}
	if list.Meta.Limit != 2 || list.Meta.Count != 2 {
		t.Fatalf("unexpected page meta %+v", list.Meta)
	}

	if rec := stack.do(t, http.MethodGet, "/api/products?limit=abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit got %d", rec.Code)
	}
	if rec := stack.do(t, http.MethodGet, "/api/products/3", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for product detail got %d", rec.Code)
	}
	if rec := stack.do(t, http.MethodGet, "/api/products/999", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product got %d", rec.Code)
	}
}

func TestCartEmptyBody(t *testing.T) {
	stack := newTestStack(t, stubPinger{})
	rec := stack.do(t, http.MethodGet, "/api/cart", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"cart":[],"totalItems":0,"totalPrice":0.00}` {
		t.Fatalf("unexpected empty cart body %s", got)
	}
}

func TestCartScenarioOverHTTP(t *testing.T) {
	stack := newTestStack(t, stubPinger{})
	p1, p2 := stack.price(t, "1"), stack.price(t, "2")

	stack.do(t, http.MethodPost, "/api/cart", "s1", `{"productId":"1"}`)
	stack.do(t, http.MethodPost, "/api/cart", "s1", `{"productId":2}`)
	body := decodeCart(t, stack.do(t, http.MethodPost, "/api/cart", "s1", `{"productId":"1"}`))

	if len(body.Cart) != 2 || body.Cart[0].ID != "1" || body.Cart[0].Quantity != 2 || body.Cart[1].ID != "2" {
		t.Fatalf("unexpected cart %+v", body.Cart)
	}
	if body.TotalItems != 3 {
		t.Fatalf("expected 3 items got %d", body.TotalItems)
	}
	want := p1.Mul(decimal.NewFromInt(2)).Add(p2).StringFixed(2)
	if body.TotalPrice.String() != want {
		t.Fatalf("expected total %s got %s", want, body.TotalPrice)
	}

	body = decodeCart(t, stack.do(t, http.MethodPost, "/api/cart/update-quantity", "s1", `{"productId":"2","quantityChange":-1}`))
	if len(body.Cart) != 1 || body.TotalItems != 2 {
		t.Fatalf("expected p2 pruned, got %+v", body)
	}

	body = decodeCart(t, stack.do(t, http.MethodDelete, "/api/cart/1", "s1", ""))
	if len(body.Cart) != 0 || body.TotalItems != 0 {
		t.Fatalf("expected empty cart after remove, got %+v", body)
	}

	other := decodeCart(t, stack.do(t, http.MethodGet, "/api/cart", "s2", ""))
	if len(other.Cart) != 0 {
		t.Fatalf("sessions must not share carts")
	}
}

func TestCartValidationErrors(t *testing.T) {
	stack := newTestStack(t, stubPinger{})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing product", http.MethodPost, "/api/cart", `{}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/cart", `{"productId":"1","qty":2}`, http.StatusBadRequest},
		{"bool product id", http.MethodPost, "/api/cart", `{"productId":true}`, http.StatusBadRequest},
		{"unknown product", http.MethodPost, "/api/cart", `{"productId":"404"}`, http.StatusNotFound},
		{"missing change", http.MethodPost, "/api/cart/update-quantity", `{"productId":"1"}`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/cart", ``, http.StatusBadRequest},
		{"trailing data", http.MethodPost, "/api/cart", `{"productId":"1"} {"productId":"2"}`, http.StatusBadRequest},
		{"control chars in id", http.MethodPost, "/api/cart", `{"productId":"1\u0000"}`, http.StatusBadRequest},
		{"overlong path id", http.MethodDelete, "/api/cart/" + strings.Repeat("x", 65), ``, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := stack.do(t, tc.method, tc.path, "s1", tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	stack := newTestStack(t, stubPinger{})
	stack.do(t, http.MethodGet, "/api/cart", "", "")

	rec := stack.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",route="/api/cart",status="200"}`) {
		t.Fatalf("expected cart request counted, got %s", rec.Body.String())
	}
}

func TestManagerConvergesAgainstServer(t *testing.T) {
	stack := newTestStack(t, stubPinger{})
	srv := httptest.NewServer(stack.router)
	t.Cleanup(srv.Close)

	client, err := cartclient.NewClient(srv.URL+"/api",
		cartclient.WithSessionID("e2e"),
		cartclient.WithRetry(2, time.Millisecond, 5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	mgr, err := cartstate.NewManager(cartstate.ManagerParams{Remote: client, SessionID: "e2e"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(mgr.Close)

	p1, p2 := stack.price(t, "1"), stack.price(t, "2")
	for _, id := range []string{"1", "2", "1"} {
		price := p1
		if id == "2" {
			price = p2
		}
		if _, err := mgr.AddItem(cartstate.ProductID(id), "Product "+id, price); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	snap, err := mgr.RefreshFromSource(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.TotalItems() != 3 || len(snap.Lines) != 2 {
		t.Fatalf("expected converged cart of 3 items, got %+v", snap.Lines)
	}
	want := p1.Mul(decimal.NewFromInt(2)).Add(p2)
	if !snap.TotalPrice().Equal(want) {
		t.Fatalf("expected total %s got %s", want, snap.TotalPrice())
	}

	server := decodeCart(t, stack.do(t, http.MethodGet, "/api/cart", "e2e", ""))
	if server.TotalItems != 3 {
		t.Fatalf("server cart out of sync: %+v", server)
	}
}
