// Package shipping quotes delivery options from the backend rate provider.
//
// Quote never fails because of the provider: any transport error, non-2xx
// status, unsuccessful or empty response, or an open circuit breaker
// degrades to the fixed fallback quote set so the buyer can keep going.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/model"
)

// Doer is the backend call surface used by the quote client.
type Doer interface {
	Do(ctx context.Context, method, path string, in, out any, opts ...backend.Option) error
}

// Breaker defaults: trip after five consecutive failures, probe again
// after thirty seconds.
const (
	DefaultTripAfter   = 5
	DefaultOpenTimeout = 30 * time.Second
)

// Client requests shipping quotes.
type Client struct {
	backend Doer
	breaker *gobreaker.CircuitBreaker[*calculateResponse]
	logger  *slog.Logger
}

// Options configures a Client.
type Options struct {
	Logger      *slog.Logger
	TripAfter   uint32        // consecutive failures that open the breaker
	OpenTimeout time.Duration // how long the breaker stays open
}

// NewClient creates a quote client over a backend client.
func NewClient(b Doer, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tripAfter := opts.TripAfter
	if tripAfter == 0 {
		tripAfter = DefaultTripAfter
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}

	c := &Client{backend: b, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker[*calculateResponse](gobreaker.Settings{
		Name:        "shipping-quotes",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// A canceled buyer request says nothing about provider health.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	return c
}

type parcelPayload struct {
	Weight        int            `json:"weight"` // grams
	Length        int            `json:"length"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	DeclaredValue backend.Amount `json:"declaredValue"`
	Quantity      int            `json:"quantity"`
}

type calculateRequest struct {
	OriginCode      string          `json:"originCode"`
	DestinationCode string          `json:"destinationCode"`
	Parcels         []parcelPayload `json:"parcels"`
}

type quotePayload struct {
	ID            string         `json:"id"`
	Service       string         `json:"service"`
	Name          string         `json:"name"`
	Price         backend.Amount `json:"price"`
	DeliveryDays  int            `json:"deliveryDays"`
	DeliveryRange *struct {
		Max int `json:"max"`
	} `json:"deliveryRange,omitempty"`
}

type calculateResponse struct {
	Success bool           `json:"success"`
	Quotes  []quotePayload `json:"quotes"`
	Error   string         `json:"error,omitempty"`
}

// errUnsuccessful marks a 2xx response the provider flagged as failed.
var errUnsuccessful = errors.New("rate provider reported failure")

// Quote returns shipping options for req. Only a missing or malformed
// destination postal code is an error; every provider failure yields
// the fallback set with Fallback set.
func (c *Client) Quote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResult, error) {
	dest := brdoc.Digits(req.DestinationPostalCode)
	if dest == "" {
		return nil, model.NewValidationError("postal_code", "destination postal code is required")
	}
	if !brdoc.ValidCEP(dest) {
		return nil, model.NewValidationError("postal_code", "must have 8 digits")
	}

	payload := calculateRequest{
		OriginCode:      brdoc.Digits(req.OriginPostalCode),
		DestinationCode: dest,
		Parcels:         make([]parcelPayload, 0, len(req.Parcels)),
	}
	for _, p := range req.Parcels {
		payload.Parcels = append(payload.Parcels, parcelPayload{
			Weight:        p.WeightGrams,
			Length:        p.Dimensions.LengthCM,
			Width:         p.Dimensions.WidthCM,
			Height:        p.Dimensions.HeightCM,
			DeclaredValue: backend.Amount(p.DeclaredValue),
			Quantity:      p.Quantity,
		})
	}

	resp, err := c.breaker.Execute(func() (*calculateResponse, error) {
		var out calculateResponse
		if err := c.backend.Do(ctx, http.MethodPost, "/shipping/calculate", payload, &out); err != nil {
			return nil, err
		}
		if !out.Success {
			if out.Error != "" {
				return nil, fmt.Errorf("%w: %s", errUnsuccessful, out.Error)
			}
			return nil, errUnsuccessful
		}
		if len(out.Quotes) == 0 {
			return nil, fmt.Errorf("%w: empty quote list", errUnsuccessful)
		}
		return &out, nil
	})
	if err != nil {
		return c.fallback(ctx, err), nil
	}

	options := make([]model.ShippingOption, 0, len(resp.Quotes))
	for i, q := range resp.Quotes {
		options = append(options, toOption(i, q))
	}
	return &model.QuoteResult{Options: options}, nil
}

func (c *Client) fallback(ctx context.Context, cause error) *model.QuoteResult {
	c.logger.WarnContext(ctx, "shipping quotes degraded to fallback",
		slog.String("fallback_version", FallbackVersion),
		slog.String("breaker_state", c.breaker.State().String()),
		slog.String("cause", cause.Error()),
	)
	return &model.QuoteResult{
		Options:         FallbackQuotes(),
		Fallback:        true,
		FallbackVersion: FallbackVersion,
	}
}

func toOption(i int, q quotePayload) model.ShippingOption {
	id := q.ID
	if id == "" {
		id = fmt.Sprintf("option-%d", i+1)
	}
	name := q.Name
	if name == "" {
		name = q.Service
	}
	eta := q.DeliveryDays
	if q.DeliveryRange != nil && q.DeliveryRange.Max > eta {
		eta = q.DeliveryRange.Max
	}
	return model.ShippingOption{
		ID:              id,
		CarrierService:  q.Service,
		DisplayName:     name,
		Price:           q.Price.Cents(),
		ETABusinessDays: eta,
	}
}

// BreakerState reports the breaker state name (closed, half-open, open).
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
