package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/fjod/go_storefront/pkg/logger"
)

const maxResponseBody = 10 << 20 // 10MB

type Config struct {
	BaseURL string
	// Token is used when the request context carries none (single-user clients).
	Token   string
	Timeout time.Duration
	Breaker circuitbreaker.Config
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client talks to the storefront REST backend. It never retries.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	log     *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("shopapi: base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("shopapi: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == (circuitbreaker.Config{}) {
		cfg.Breaker = circuitbreaker.DefaultConfig()
	}

	breaker := circuitbreaker.New[*http.Response]("shop-backend", cfg.Breaker, cfg.Logger)
	transport := otelhttp.NewTransport(circuitbreaker.NewTransport(cfg.Transport, breaker))

	return &Client{
		baseURL: u,
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		token:   cfg.Token,
		log:     cfg.Logger,
	}, nil
}

// do sends one request and decodes the envelope's data into out (when non-nil).
// It returns the envelope's total, or -1 when the backend sent none.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return -1, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	log := logger.FromContext(ctx).With(
		slog.String("method", method),
		slog.String("path", u.Path),
		slog.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("backend call failed", slog.Any("error", err))
		return -1, &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return -1, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "reading response failed", Err: err}
	}
	log.Debug("backend call", slog.Int("status", resp.StatusCode), slog.Duration("took", time.Since(start)))

	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return -1, &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return -1, &Error{Kind: KindUnexpected, Status: resp.StatusCode, Message: "malformed response body", Err: decodeErr}
	}
	if env.Success != nil && !*env.Success {
		return -1, &Error{Kind: KindBusiness, Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return -1, &Error{Kind: KindUnexpected, Status: resp.StatusCode, Message: "malformed response data", Err: err}
		}
	}
	if env.Total != nil {
		return *env.Total, nil
	}
	return -1, nil
}

func (c *Client) tokenFor(ctx context.Context) string {
	if t := TokenFromContext(ctx); t != "" {
		return t
	}
	return c.token
}
