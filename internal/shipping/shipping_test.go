package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/model"
)

type doerFunc func(ctx context.Context, method, path string, in, out any) error

func (f doerFunc) Do(ctx context.Context, method, path string, in, out any, _ ...backend.Option) error {
	return f(ctx, method, path, in, out)
}

func quoteRequest() model.QuoteRequest {
	lines := []model.CartLine{
		{ProductID: "p1", UnitPrice: 4235, Quantity: 2, WeightGrams: 500,
			Dimensions: model.Dimensions{LengthCM: 20, WidthCM: 10, HeightCM: 8}},
	}
	return model.QuoteRequest{
		OriginPostalCode:      "01310-100",
		DestinationPostalCode: "22041-001",
		Parcels:               model.ParcelsFromLines(lines),
	}
}

func newHTTPClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	b, err := backend.New(backend.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(b, Options{})
}

func TestQuoteSuccess(t *testing.T) {
	var got calculateRequest
	c := newHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shipping/calculate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true,"quotes":[
			{"id":"pac","service":"PAC","name":"PAC","price":18.40,"deliveryDays":6},
			{"service":"SEDEX","price":"31,20","deliveryDays":2,"deliveryRange":{"max":3}}
		]}`))
	})

	res, err := c.Quote(context.Background(), quoteRequest())
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if res.Fallback {
		t.Error("Fallback = true on success")
	}

	if got.OriginCode != "01310100" || got.DestinationCode != "22041001" {
		t.Errorf("codes sent = %q → %q", got.OriginCode, got.DestinationCode)
	}
	if len(got.Parcels) != 1 || got.Parcels[0].Weight != 1000 || got.Parcels[0].DeclaredValue != 8470 {
		t.Errorf("parcels sent = %+v", got.Parcels)
	}

	if len(res.Options) != 2 {
		t.Fatalf("len(Options) = %d", len(res.Options))
	}
	if res.Options[0].ID != "pac" || res.Options[0].Price != 1840 || res.Options[0].ETABusinessDays != 6 {
		t.Errorf("Options[0] = %+v", res.Options[0])
	}
	if res.Options[1].ID != "option-2" || res.Options[1].DisplayName != "SEDEX" ||
		res.Options[1].Price != 3120 || res.Options[1].ETABusinessDays != 3 {
		t.Errorf("Options[1] = %+v", res.Options[1])
	}
}

func assertFallback(t *testing.T, res *model.QuoteResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Quote() error = %v, fallback must not be an error", err)
	}
	if !res.Fallback || res.FallbackVersion != FallbackVersion {
		t.Fatalf("result = %+v, want fallback", res)
	}
	if len(res.Options) != 2 {
		t.Fatalf("fallback options = %d, want 2", len(res.Options))
	}
	if res.Options[0].Price != 1590 || res.Options[0].ETABusinessDays != 7 {
		t.Errorf("economy = %+v", res.Options[0])
	}
	if res.Options[1].Price != 2590 || res.Options[1].ETABusinessDays != 3 {
		t.Errorf("express = %+v", res.Options[1])
	}
}

func TestQuoteFallback(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"success false", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":"provider timeout"}`))
		}},
		{"empty quotes", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":true,"quotes":[]}`))
		}},
		{"undecodable body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newHTTPClient(t, tt.h)
			res, err := c.Quote(context.Background(), quoteRequest())
			assertFallback(t, res, err)
		})
	}
}

func TestQuoteNetworkFailureFallsBack(t *testing.T) {
	c := NewClient(doerFunc(func(context.Context, string, string, any, any) error {
		return model.NewUpstreamError("checkout backend", errors.New("connection refused"))
	}), Options{})

	res, err := c.Quote(context.Background(), quoteRequest())
	assertFallback(t, res, err)
}

func TestQuoteOpenBreakerSkipsNetwork(t *testing.T) {
	calls := 0
	c := NewClient(doerFunc(func(context.Context, string, string, any, any) error {
		calls++
		return errors.New("boom")
	}), Options{TripAfter: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		res, err := c.Quote(context.Background(), quoteRequest())
		assertFallback(t, res, err)
	}
	if calls != 2 {
		t.Fatalf("calls before trip = %d, want 2", calls)
	}
	if c.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %q, want open", c.BreakerState())
	}

	res, err := c.Quote(context.Background(), quoteRequest())
	assertFallback(t, res, err)
	if calls != 2 {
		t.Errorf("open breaker made a network call (calls = %d)", calls)
	}
}

func TestQuoteRequiresDestination(t *testing.T) {
	c := NewClient(doerFunc(func(context.Context, string, string, any, any) error {
		t.Error("backend must not be called")
		return nil
	}), Options{})

	for _, cep := range []string{"", "123"} {
		req := quoteRequest()
		req.DestinationPostalCode = cep
		_, err := c.Quote(context.Background(), req)
		if !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("Quote(%q) error = %v, want validation error", cep, err)
		}
	}
}

func TestFallbackQuotesIsCopy(t *testing.T) {
	a := FallbackQuotes()
	a[0].Price = 1
	b := FallbackQuotes()
	if b[0].Price != 1590 {
		t.Error("FallbackQuotes() returned shared backing array")
	}
}
