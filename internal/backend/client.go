// Package backend is the JSON-over-HTTP client for the storefront's
// checkout backend. The session, shipping, coupon and payment clients
// all share one Client so headers, timeouts, tracing and error mapping
// behave the same on every call.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coffee-checkout/internal/model"
	"coffee-checkout/internal/transport"
)

// userAgent identifies this client to the backend.
const userAgent = "coffee-checkout/1.0"

// SessionHeader carries the checkout session token on mutating calls.
const SessionHeader = "Checkout-Session"

// maxResponseSize caps how much of a backend response is read.
const maxResponseSize = 1 << 20 // 1MB

// Config holds backend connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration // per-call bound when the caller's context has no deadline
	Fingerprint bool          // see transport.Options
	Logger      *slog.Logger

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// Client performs JSON requests against the checkout backend.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// New creates a backend client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: transport.New(transport.Options{
				Timeout:     timeout,
				Fingerprint: cfg.Fingerprint,
			}),
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
		tracer:     otel.Tracer("coffee-checkout/internal/backend"),
	}, nil
}

// Option customizes a single request.
type Option func(*requestOptions)

type requestOptions struct {
	idempotencyKey string
	sessionToken   string
	respHeader     *http.Header
}

// WithIdempotencyKey sends an Idempotency-Key header so the backend can
// collapse retries of the same logical operation.
func WithIdempotencyKey(key string) Option {
	return func(o *requestOptions) { o.idempotencyKey = key }
}

// WithSessionToken sends the checkout session token header.
func WithSessionToken(token string) Option {
	return func(o *requestOptions) { o.sessionToken = token }
}

// WithResponseHeaders copies the response headers into h.
func WithResponseHeaders(h *http.Header) Option {
	return func(o *requestOptions) { o.respHeader = h }
}

// Do sends in as JSON to path and decodes a 2xx response into out.
// in and out may be nil. Non-2xx responses become *model.APIError
// carrying the backend's error text verbatim.
func (c *Client) Do(ctx context.Context, method, path string, in, out any, opts ...Option) (err error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	// No caller deadline: bound the call so a hung backend cannot
	// leave the wizard busy forever.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if err := c.setHeaders(req, &o); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return model.NewUpstreamError("checkout backend", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if o.respHeader != nil {
		*o.respHeader = resp.Header.Clone()
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.NewUpstreamError("checkout backend", fmt.Errorf("reading response: %w", err))
	}

	c.logger.DebugContext(ctx, "backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewUpstreamError("checkout backend", fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, o *requestOptions) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if o.sessionToken != "" {
		req.Header.Set(SessionHeader, o.sessionToken)
	}
	if o.idempotencyKey != "" {
		value, err := FormatIdempotencyKey(o.idempotencyKey)
		if err != nil {
			return fmt.Errorf("encoding idempotency key: %w", err)
		}
		req.Header.Set(IdempotencyHeader, value)
	}
	return nil
}

// HTTPError is the backend's failure response: a non-2xx status with
// an {"error": string} body.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

// errorResponse is the backend's uniform failure body.
type errorResponse struct {
	Error string `json:"error"`
}

// parseErrorResponse converts a backend failure into an APIError whose
// Message is the backend's error string.
//
//	400     → VALIDATION_ERROR (ErrInvalidRequest)
//	401/403 → SESSION_ENDED (ErrSessionFatal)
//	404     → NOT_FOUND (ErrNotFound)
//	409/422 → REQUEST_REJECTED (ErrUpstreamError, retryable)
//	429     → RATE_LIMITED (ErrRateLimited)
//	other   → UPSTREAM_ERROR (ErrUpstreamError)
func parseErrorResponse(status int, body []byte) error {
	var errResp errorResponse
	json.Unmarshal(body, &errResp) // Best effort parse

	msg := strings.TrimSpace(errResp.Error)
	if msg == "" {
		msg = fmt.Sprintf("checkout backend returned status %d", status)
	}
	httpErr := &HTTPError{Status: status, Message: msg}

	apiErr := &model.APIError{Message: msg}
	switch status {
	case http.StatusBadRequest:
		apiErr.Code = "VALIDATION_ERROR"
		apiErr.StatusCode = http.StatusBadRequest
		apiErr.Err = errors.Join(model.ErrInvalidRequest, httpErr)
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.Code = "SESSION_ENDED"
		apiErr.StatusCode = http.StatusGone
		apiErr.Err = errors.Join(model.ErrSessionFatal, httpErr)
	case http.StatusNotFound:
		apiErr.Code = "NOT_FOUND"
		apiErr.StatusCode = http.StatusNotFound
		apiErr.Err = errors.Join(model.ErrNotFound, httpErr)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		apiErr.Code = "REQUEST_REJECTED"
		apiErr.StatusCode = http.StatusUnprocessableEntity
		apiErr.Err = errors.Join(model.ErrUpstreamError, httpErr)
	case http.StatusTooManyRequests:
		apiErr.Code = "RATE_LIMITED"
		apiErr.StatusCode = http.StatusTooManyRequests
		apiErr.Err = errors.Join(model.ErrRateLimited, httpErr)
	default:
		apiErr.Code = "UPSTREAM_ERROR"
		apiErr.StatusCode = http.StatusBadGateway
		apiErr.Err = errors.Join(model.ErrUpstreamError, httpErr)
	}
	return apiErr
}

// StatusOf returns the backend HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// MessageOf returns the human-readable message carried by err.
func MessageOf(err error) string {
	return model.MessageOf(err)
}
