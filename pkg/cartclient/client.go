package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/internal/cartstate"
	"github.com/angelmondragon/storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const (
	defaultTimeout              = 10 * time.Second
	defaultMaxAttempts          = 3
	defaultInitialBackoff       = 200 * time.Millisecond
	defaultMaxBackoff           = 5 * time.Second
	responseBodyReadLimit int64 = 1 << 20
	errorBodyReadLimit    int64 = 1024

	HeaderCartSession    = "X-Cart-Session"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestID      = "X-Request-Id"
)

var errBaseURLRequired = errors.New("cart service base url is required")

// Client talks to the cart service. Every endpoint hangs off a single base
// URL and every call is retried with capped exponential backoff while the
// failure is retryable.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	sessionID      string
	maxAttempts    uint64
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logg           *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSessionID sets the cart identity sent with every request.
func WithSessionID(sessionID string) Option {
	return func(c *Client) {
		c.sessionID = strings.TrimSpace(sessionID)
	}
}

// WithRetry overrides the attempt budget and backoff bounds.
func WithRetry(maxAttempts int, initial, max time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = uint64(maxAttempts)
		}
		if initial > 0 {
			c.initialBackoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithLogger attaches a logger for retry warnings.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		c.logg = logg
	}
}

// NewClient builds a cart service client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("cart service base url %q must be an absolute http(s) url", baseURL)
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		baseURL:        trimmed,
		maxAttempts:    defaultMaxAttempts,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client, nil
}

// NewFromConfig builds a client from the cart service settings.
func NewFromConfig(cfg config.CartServiceConfig, logg *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart service config")
	}
	return NewClient(cfg.BaseURL,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithSessionID(cfg.SessionID),
		WithRetry(cfg.MaxAttempts, cfg.InitialBackoff, cfg.MaxBackoff),
		WithLogger(logg),
	)
}

// BaseURL returns the normalised root every endpoint is built from.
func (c *Client) BaseURL() string { return c.baseURL }

// CartLine is the wire shape of one cart entry. Older servers send the id as
// productId and as a number; both are accepted.
type CartLine struct {
	ID        cartstate.ProductID `json:"id"`
	ProductID cartstate.ProductID `json:"productId,omitempty"`
	Name      string              `json:"name"`
	Price     decimal.Decimal     `json:"price"`
	Quantity  int                 `json:"quantity"`
	Image     string              `json:"image,omitempty"`
}

// CartResponse is the body of GET /cart.
type CartResponse struct {
	Cart       *[]CartLine      `json:"cart"`
	TotalItems *int             `json:"totalItems,omitempty"`
	TotalPrice *decimal.Decimal `json:"totalPrice,omitempty"`
}

type addRequest struct {
	ProductID cartstate.ProductID `json:"productId"`
}

type updateQuantityRequest struct {
	ProductID      cartstate.ProductID `json:"productId"`
	QuantityChange int                 `json:"quantityChange"`
}

// Fetch reads the remote cart. Totals reported by the server are only
// compared against the derived ones; the lines are the source of truth.
func (c *Client) Fetch(ctx context.Context) ([]cartstate.Line, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cart service client not configured")
	}
	body, err := c.do(ctx, http.MethodGet, "cart", nil, "")
	if err != nil {
		return nil, err
	}

	var resp CartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode cart response")
	}
	if resp.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "cart response missing cart field")
	}

	lines := make([]cartstate.Line, 0, len(*resp.Cart))
	for _, wire := range *resp.Cart {
		id := wire.ID
		if id == "" {
			id = wire.ProductID
		}
		lines = append(lines, cartstate.Line{
			ProductID: id,
			Name:      wire.Name,
			UnitPrice: wire.Price,
			Quantity:  wire.Quantity,
			ImageURL:  wire.Image,
		})
	}
	c.compareTotals(ctx, resp, lines)
	return lines, nil
}

// Apply persists one mutation. The mutation's idempotency key travels with
// every retry so the server applies it at most once.
func (c *Client) Apply(ctx context.Context, mutation cartstate.Mutation) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "cart service client not configured")
	}

	var (
		method string
		path   string
		body   any
	)
	switch mutation.Kind {
	case cartstate.MutationAdd:
		method, path, body = http.MethodPost, "cart", addRequest{ProductID: mutation.ProductID}
	case cartstate.MutationUpdateQuantity:
		method, path, body = http.MethodPost, "cart/update-quantity", updateQuantityRequest{
			ProductID:      mutation.ProductID,
			QuantityChange: mutation.Delta,
		}
	case cartstate.MutationRemove:
		method, path = http.MethodDelete, "cart/"+url.PathEscape(mutation.ProductID.String())
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown cart mutation").
			WithDetails(map[string]any{"kind": string(mutation.Kind)})
	}

	_, err := c.do(ctx, method, path, body, mutation.IdempotencyKey)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, idempotencyKey string) ([]byte, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal cart request")
		}
		payload = encoded
	}

	requestID := uuid.NewString()
	backoff := retry.WithMaxRetries(c.maxAttempts-1,
		retry.WithCappedDuration(c.maxBackoff, retry.NewExponential(c.initialBackoff)))

	var (
		result  []byte
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		respBody, err := c.send(ctx, method, path, payload, idempotencyKey, requestID)
		if err == nil {
			result = respBody
			return nil
		}
		if ctx.Err() == nil && pkgerrors.Retryable(err) && uint64(attempt) < c.maxAttempts {
			c.warn(ctx, method, path, attempt, err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s failed", method, path))
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, idempotencyKey, requestID string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build cart request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		req.Header.Set(HeaderCartSession, c.sessionID)
	}
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute cart request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.FromStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			fmt.Sprintf("cart service %s %s failed", method, path)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read cart response")
	}
	return respBody, nil
}

func (c *Client) compareTotals(ctx context.Context, resp CartResponse, lines []cartstate.Line) {
	if c.logg == nil {
		return
	}
	derived := cartstate.ComputeAggregates(lines)
	itemsDiverge := resp.TotalItems != nil && *resp.TotalItems != derived.TotalItems
	priceDiverge := resp.TotalPrice != nil && !resp.TotalPrice.Equal(derived.TotalPrice)
	if !itemsDiverge && !priceDiverge {
		return
	}
	fields := map[string]any{
		"derived_total_items": derived.TotalItems,
		"derived_total_price": derived.TotalPrice.String(),
	}
	if resp.TotalItems != nil {
		fields["reported_total_items"] = *resp.TotalItems
	}
	if resp.TotalPrice != nil {
		fields["reported_total_price"] = resp.TotalPrice.String()
	}
	c.logg.Warn(c.logg.WithFields(ctx, fields), "cart service totals diverge from line sums; using line sums")
}

func (c *Client) warn(ctx context.Context, method, path string, attempt int, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"method":  method,
		"path":    path,
		"attempt": attempt,
	})
	c.logg.WarnErr(ctx, "cart.client.retry", err)
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}

var _ cartstate.Remote = (*Client)(nil)
