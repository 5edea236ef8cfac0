package marketplace

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

	"github.com/fjod/go_cart/storefront-service/internal/apperror"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Config struct {
	BaseURL string
	// Timeout of zero keeps the transport default.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive server failures that opens the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// TokenSource supplies the buyer's bearer token and is told when the
// marketplace rejects it.
type TokenSource interface {
	Token() (string, bool)
	Invalidate()
}

var errServerStatus = errors.New("marketplace server error")

type response struct {
	status int
	body   []byte
}

// Backend is the connection to the marketplace shared by all buyer sessions.
type Backend struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[response]
	logger  *zap.Logger
}

func NewBackend(cfg Config, logger *zap.Logger) (*Backend, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse marketplace url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("marketplace url %q must be absolute", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown == 0 {
		cooldown = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "marketplace",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Backend{
		base: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		logger:  logger,
	}, nil
}

// Client returns a marketplace client acting for one buyer.
func (b *Backend) Client(creds TokenSource) *Client {
	return &Client{backend: b, creds: creds}
}

func (b *Backend) roundTrip(req *http.Request) (response, error) {
	resp, err := b.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("failed to read response body: %w", err)
	}

	res := response{status: resp.StatusCode, body: body}
	if resp.StatusCode >= http.StatusInternalServerError {
		return res, errServerStatus
	}
	return res, nil
}

// Client performs marketplace calls on behalf of one buyer.
type Client struct {
	backend *Backend
	creds   TokenSource
}

// do sends one request and decodes the `data` member of the success envelope
// into out. It returns the envelope message.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (string, error) {
	token, ok := c.creds.Token()
	if !ok {
		return "", fmt.Errorf("%s %s: %w", method, path, apperror.ErrUnauthorized)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	target := *c.backend.base
	target.Path = target.Path + path
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.backend.breaker.Execute(func() (response, error) {
		return c.backend.roundTrip(req)
	})
	if err != nil && !errors.Is(err, errServerStatus) {
		c.backend.logger.Warn("marketplace call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return "", apperror.Transport(err)
	}

	if res.status >= http.StatusBadRequest {
		apiErr := apperror.FromResponse(res.status, res.body)
		if res.status == http.StatusUnauthorized {
			c.creds.Invalidate()
		}
		return "", apiErr
	}

	var env envelope
	if len(res.body) > 0 {
		if err := json.Unmarshal(res.body, &env); err != nil {
			return "", &apperror.APIError{Status: res.status, Errors: apperror.ServerErrors(), Cause: fmt.Errorf("decode envelope: %w", err)}
		}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", &apperror.APIError{Status: res.status, Errors: apperror.ServerErrors(), Cause: fmt.Errorf("decode data: %w", err)}
		}
	}
	return env.Message, nil
}
