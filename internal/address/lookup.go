package address

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/model"
)

// ErrPostalCodeNotFound is returned when the lookup service has no
// record for a postal code.
var ErrPostalCodeNotFound = errors.New("postal code not found")

// LookupClient resolves postal codes to street, district, city and state.
// Lookups are a convenience: callers treat every error as "no auto-fill".
type LookupClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// LookupOptions configures a LookupClient.
type LookupOptions struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewLookupClient creates a postal-code lookup client.
func NewLookupClient(opts LookupOptions) *LookupClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "coffee-checkout/1.0")
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}

	return &LookupClient{http: client, logger: logger}
}

// lookupResponse accepts both the backend's English field names and the
// public CEP services' Portuguese ones.
type lookupResponse struct {
	CEP string `json:"cep"`

	Street   string `json:"street"`
	District string `json:"district"`
	City     string `json:"city"`
	State    string `json:"state"`

	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`

	Error string `json:"error"`
	Erro  any    `json:"erro"`
}

func (r lookupResponse) notFound() bool {
	switch v := r.Erro.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// Lookup fetches the address registered for cep.
func (c *LookupClient) Lookup(ctx context.Context, cep string) (*model.PostalLookup, error) {
	digits := brdoc.Digits(cep)
	if !brdoc.ValidCEP(digits) {
		return nil, model.NewValidationError("postal_code", "must have 8 digits")
	}

	var out lookupResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("cep", digits).
		SetResult(&out).
		SetError(&out).
		Get("/postal-lookup/{cep}")
	if err != nil {
		c.logger.DebugContext(ctx, "postal lookup failed",
			slog.String("cep", digits),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("postal lookup: %w", err)
	}

	if resp.StatusCode() == http.StatusNotFound || out.notFound() {
		return nil, ErrPostalCodeNotFound
	}
	if resp.IsError() || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode())
		}
		c.logger.DebugContext(ctx, "postal lookup rejected",
			slog.String("cep", digits),
			slog.String("reason", msg),
		)
		return nil, fmt.Errorf("postal lookup: %s", msg)
	}

	return &model.PostalLookup{
		PostalCode: brdoc.MaskCEP(digits),
		Street:     firstNonEmpty(out.Street, out.Logradouro),
		District:   firstNonEmpty(out.District, out.Bairro),
		City:       firstNonEmpty(out.City, out.Localidade),
		State:      strings.ToUpper(firstNonEmpty(out.State, out.UF)),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
