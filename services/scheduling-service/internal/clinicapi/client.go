// Package clinicapi is the typed client for the clinic REST API. Responses
// are normalized here; nothing past this package sees the wire envelopes.
package clinicapi

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

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/libs/httpx"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/model"
)

const maxBody = 4 << 20

type Options struct {
	Timeout time.Duration
	Tokens  auth.TokenSource
	Zone    *clock.Zone
	Logger  *slog.Logger
	// HTTPClient replaces the default otelhttp-instrumented client.
	HTTPClient *http.Client
	// BreakerFailures consecutive transport failures open the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
	zone    *clock.Zone
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.SessionTokens{}
	}
	if opts.Zone == nil {
		opts.Zone = clock.NewZone(time.UTC)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    hc,
		tokens:  opts.Tokens,
		zone:    opts.Zone,
		logger:  opts.Logger,
	}
	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "clinic-api",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only transport failures count against the API's health.
		IsSuccessful: func(err error) bool {
			var te *model.TransportError
			return err == nil || !errors.As(err, &te)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Zone is the timezone appointment timestamps are interpreted in.
func (c *Client) Zone() *clock.Zone { return c.zone }

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and returns the response body of a 2xx reply.
// Non-2xx replies are mapped onto the model error taxonomy.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, op, method, path, query, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &model.TransportError{Op: op, Err: err}
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, model.ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &model.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("clinic api call", "op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, statusError(op, resp.StatusCode, raw)
}

func statusError(op string, code int, raw []byte) error {
	msg := errorBody(raw)
	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %s", op, model.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w: %s", op, model.ErrUnauthorized, model.ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, model.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w: %s", op, model.ErrConflict, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w: %s", op, model.ErrValidation, msg)
	default:
		return &model.TransportError{Op: op, StatusCode: code, Err: errors.New(msg)}
	}
}

// Ping reports whether the breaker is letting calls through. It is a
// readiness check that does not itself call the API.
func (c *Client) Ping(context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return errors.New("clinic api circuit open")
	}
	return nil
}
