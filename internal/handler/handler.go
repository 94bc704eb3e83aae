// Package handler provides HTTP handlers for the checkout API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"coffee-checkout/internal/adapter"
	"coffee-checkout/internal/checkout"
	"coffee-checkout/internal/model"
)

// Starter opens a checkout wizard for an authenticated user.
type Starter func(ctx context.Context, userID string) (*checkout.Orchestrator, error)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry *checkout.Registry
	start    Starter
	lookup   adapter.AddressLookup
	carts    adapter.CartWriter
	logger   *slog.Logger
}

// New creates a new Handler. lookup may be nil to disable postal-code
// lookups, and carts may be nil to disable cart seeding.
func New(registry *checkout.Registry, start Starter, lookup adapter.AddressLookup, carts adapter.CartWriter, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		start:    start,
		lookup:   lookup,
		carts:    carts,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Wizard lifecycle
	mux.HandleFunc("POST /checkout/sessions", h.handleStart)
	mux.HandleFunc("GET /checkout/sessions/{id}", h.handleGet)
	mux.HandleFunc("DELETE /checkout/sessions/{id}", h.handleAbandon)
	mux.HandleFunc("POST /checkout/sessions/{id}/advance", h.handleAdvance)
	mux.HandleFunc("POST /checkout/sessions/{id}/back", h.handleBack)

	// Step data
	mux.HandleFunc("PUT /checkout/sessions/{id}/cart", h.handleUpdateCart)
	mux.HandleFunc("PUT /checkout/sessions/{id}/address", h.handleSubmitAddress)
	mux.HandleFunc("POST /checkout/sessions/{id}/shipping/quotes", h.handleRequestQuotes)
	mux.HandleFunc("PUT /checkout/sessions/{id}/shipping", h.handleSelectShipping)
	mux.HandleFunc("POST /checkout/sessions/{id}/coupon", h.handleApplyCoupon)
	mux.HandleFunc("DELETE /checkout/sessions/{id}/coupon", h.handleRemoveCoupon)
	mux.HandleFunc("PUT /checkout/sessions/{id}/payment", h.handleSelectPayment)
	mux.HandleFunc("POST /checkout/sessions/{id}/finalize", h.handleFinalize)

	mux.HandleFunc("GET /postal-codes/{code}", h.handlePostalLookup)
	if h.carts != nil {
		mux.HandleFunc("PUT /carts/{user_id}", h.handleSeedCart)
	}

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Wizard Lookup ===

// wizard resolves the {id} path value to a live orchestrator.
func (h *Handler) wizard(id string) (*checkout.Orchestrator, error) {
	if id == "" {
		return nil, model.NewValidationError("id", "checkout session ID required")
	}
	return h.registry.Get(id)
}

// dropIfFatal forgets a wizard whose last error ended it.
func (h *Handler) dropIfFatal(ctx context.Context, id string, err error) {
	if id == "" || !model.IsFatal(err) {
		return
	}
	h.registry.Remove(id)
	h.logger.InfoContext(ctx, "checkout session ended",
		slog.String("checkout_id", id),
		slog.String("reason", model.MessageOf(err)),
	)
}

// sessionView is the wire shape of a wizard.
type sessionView struct {
	ID string `json:"id"`
	checkout.State
}

func viewOf(id string, o *checkout.Orchestrator) sessionView {
	return sessionView{ID: id, State: o.State()}
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Field:   apiErr.Field,
		},
	})
}

// toAPIError finds the APIError in err's chain or wraps err as internal.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = http.StatusInternalServerError
		}
		if apiErr.StatusCode >= http.StatusInternalServerError && apiErr.Code == "INTERNAL_ERROR" {
			h.logger.Error("internal error", slog.String("error", err.Error()))
		}
		return apiErr
	}
	// Wrap unexpected errors
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: h.registry.Len()})
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
