package syncclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/cart-local/internal/domain"
	"github.com/fjod/go_cart/cart-local/pkg/circuitbreaker"
	"github.com/fjod/go_cart/cart-local/pkg/logger"
)

const (
	DefaultPath = "/web/cart/sync"

	maxErrorBody = 64 << 10
)

// ErrCircuitOpen is returned without contacting the server while the breaker is open.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// StatusError is a non-2xx answer from the sync endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cart sync failed with status %d: %s", e.StatusCode, e.Message())
}

// Message is the text the server sent back, or the status text when the body was empty.
func (e *StatusError) Message() string {
	if e.Body != "" {
		return e.Body
	}
	return http.StatusText(e.StatusCode)
}

type Config struct {
	BaseURL string
	Path    string
	Timeout time.Duration
	// AuthToken is sent as a bearer token when set.
	AuthToken string
	// SessionCookie is forwarded verbatim in the Cookie header when set.
	SessionCookie string

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client posts the local cart to the server-side cart sync endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	cfg        Config
	breaker    *circuitbreaker.Breaker
	log        *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		cfg:      cfg,
		log:      log,
	}
	c.breaker = circuitbreaker.New(circuitbreaker.Settings{
		Name:         "cart-sync",
		MaxFailures:  cfg.BreakerMaxFailures,
		OpenTimeout:  cfg.BreakerOpenTimeout,
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background()).
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return c
}

// Sync submits the whole batch in one request. Any 2xx status is success.
func (c *Client) Sync(ctx context.Context, items []domain.ServerItem) error {
	if items == nil {
		items = []domain.ServerItem{}
	}
	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal sync payload failed: %w", err)
	}

	return c.breaker.Execute(func() error {
		return c.post(ctx, body)
	})
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	if c.cfg.SessionCookie != "" {
		req.Header.Set("Cookie", c.cfg.SessionCookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx).
		Str("endpoint", c.endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("cart sync request finished")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("read sync error body failed: %w", err)
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(text)),
	}
}

// countsAsSuccess keeps client-side rejections (4xx) from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}
