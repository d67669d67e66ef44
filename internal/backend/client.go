package backend

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
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/voucher"
)

// ErrUnavailable wraps transport failures and open-breaker refusals.
var ErrUnavailable = errors.New("backend: unavailable")

// Doer performs an outbound request. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the storefront REST backend on behalf of a shopper.
type Client struct {
	BaseURL string
	HTTP    Doer
	Cache   *DirectoryCache
	Metrics *obs.CheckoutMetrics
	// NewKey generates the Idempotency-Key sent with order submissions.
	NewKey func() string
}

// NewHTTPClient returns an http.Client instrumented with otelhttp.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// ListVouchers returns the voucher directory visible to the session's user.
// Results are cached per user for the cache TTL.
func (c *Client) ListVouchers(ctx context.Context, s common.Session) ([]voucher.Voucher, error) {
	key := cache.KeyVoucherDirectory(s.UserID)
	var cached []voucher.Voucher
	hit, err := c.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("voucher_cache_read_failed")
	}
	if hit {
		c.Metrics.DirectoryLookup("cache")
		return cached, nil
	}

	body, err := c.get(ctx, s, "/vouchers")
	if err != nil {
		return nil, err
	}
	list, err := voucher.DecodeList(body)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	c.Metrics.DirectoryLookup("backend")
	if err := c.Cache.SetJSON(ctx, key, list); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("voucher_cache_write_failed")
	}
	return list, nil
}

// GetCart loads the shopper's cart.
func (c *Client) GetCart(ctx context.Context, s common.Session, cartID string) (Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return Cart{}, errors.New("backend: cart id is required")
	}
	body, err := c.get(ctx, s, "/carts/"+url.PathEscape(cartID))
	if err != nil {
		return Cart{}, err
	}
	return decodeCart(body)
}

// SubmitOrder forwards the order to the backend. Only voucher codes are sent;
// the backend recomputes every amount. The result is returned as the backend
// produced it.
func (c *Client) SubmitOrder(ctx context.Context, s common.Session, req OrderRequest) (OrderResult, error) {
	payload, err := json.Marshal(req.wire())
	if err != nil {
		return OrderResult{}, err
	}
	httpReq, err := c.newRequest(ctx, s, http.MethodPost, "/orders", payload)
	if err != nil {
		return OrderResult{}, err
	}
	newKey := c.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	httpReq.Header.Set("Idempotency-Key", newKey())

	body, err := c.do(ctx, httpReq)
	if err != nil {
		return OrderResult{}, err
	}
	return decodeOrder(body)
}

// Ping reports whether the backend answers at all. Any response below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, common.Session{}, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, s common.Session, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, s, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

func (c *Client) newRequest(ctx context.Context, s common.Session, method, path string, body []byte) (*http.Request, error) {
	if c == nil || c.HTTP == nil {
		return nil, errors.New("backend: client not configured")
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, newServerError(resp.StatusCode, body)
	}
	return body, nil
}
