package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"coffee-checkout/internal/address"
	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/checkout"
	"coffee-checkout/internal/model"
)

// === Request Bodies ===

type startRequest struct {
	UserID string `json:"user_id"`
}

type cartRequest struct {
	Lines []model.CartLine `json:"lines"`
}

// cartResponse echoes a stored live cart.
type cartResponse struct {
	UserID   string           `json:"user_id"`
	Lines    []model.CartLine `json:"lines"`
	Subtotal int64            `json:"subtotal"`
}

// addressRequest is a shipping address plus an optional request to fill
// empty fields from the postal-code lookup first.
type addressRequest struct {
	model.ShippingAddress
	AutoFill bool `json:"autofill,omitempty"`
}

type shippingRequest struct {
	OptionID string `json:"option_id"`
}

type couponRequest struct {
	Code string `json:"code"`
}

// paymentRequest is the wire form of a payment selection. Card data is
// only read when Method is "card".
type paymentRequest struct {
	Method string       `json:"method"`
	TaxID  string       `json:"tax_id,omitempty"`
	Card   *cardRequest `json:"card,omitempty"`
}

type cardRequest struct {
	PAN          string `json:"pan"`
	HolderName   string `json:"holder_name"`
	Expiry       string `json:"expiry"`
	CVV          string `json:"cvv"`
	Installments int    `json:"installments,omitempty"`
	Debit        bool   `json:"debit,omitempty"`
}

// selection converts the request into the payment sum type.
func (p paymentRequest) selection() (model.PaymentSelection, error) {
	switch strings.ToLower(strings.TrimSpace(p.Method)) {
	case string(model.MethodInstant), "pix":
		return model.InstantPayment{TaxID: p.TaxID}, nil
	case string(model.MethodVoucher), "boleto":
		return model.VoucherPayment{TaxID: p.TaxID}, nil
	case string(model.MethodCard), "credit_card", "debit_card":
		if p.Card == nil {
			return nil, model.NewValidationError("card", "card details required")
		}
		installments := p.Card.Installments
		if installments == 0 {
			installments = 1
		}
		return model.CardPayment{
			PAN:              p.Card.PAN,
			HolderName:       p.Card.HolderName,
			Expiry:           p.Card.Expiry,
			CVV:              p.Card.CVV,
			InstallmentCount: installments,
			IsDebit:          p.Card.Debit || strings.EqualFold(p.Method, "debit_card"),
		}, nil
	default:
		return nil, model.NewValidationError("payment_method", "must be one of instant, card, voucher")
	}
}

// finalizeResponse carries the order and the wizard it closed.
type finalizeResponse struct {
	Order    *model.Order `json:"order"`
	Replayed bool         `json:"replayed"`
	Session  sessionView  `json:"session"`
}

// === Wizard Lifecycle ===

// handleStart opens a checkout wizard for a user.
// POST /checkout/sessions
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "starting checkout", slog.String("user_id", req.UserID))

	o, err := h.start(ctx, req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id := h.registry.Add(o)

	h.writeJSON(w, http.StatusCreated, viewOf(id, o))
}

// handleGet returns the current wizard state.
// GET /checkout/sessions/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	o, err := h.wizard(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(id, o))
}

// handleAbandon ends the wizard and forgets it.
// DELETE /checkout/sessions/{id}
func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	o, err := h.wizard(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := o.Abandon(); err != nil {
		h.writeError(w, err)
		return
	}
	h.registry.Remove(id)

	h.logger.InfoContext(ctx, "checkout abandoned", slog.String("checkout_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleAdvance moves the wizard one step forward.
// POST /checkout/sessions/{id}/advance
func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		return o.Advance()
	})
}

// handleBack moves the wizard one step back.
// POST /checkout/sessions/{id}/back
func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		return o.Back()
	})
}

// === Step Data ===

// handleUpdateCart replaces the cart lines.
// PUT /checkout/sessions/{id}/cart
func (h *Handler) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		return o.UpdateCart(req.Lines)
	})
}

// handleSubmitAddress stores the shipping address.
// PUT /checkout/sessions/{id}/address
func (h *Handler) handleSubmitAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		addr := req.ShippingAddress
		if req.AutoFill && addr.PostalCode != "" {
			if found := o.LookupPostalCode(ctx, addr.PostalCode); found != nil {
				addr = address.AutoFill(addr, *found)
			}
		}
		return o.SubmitAddress(addr)
	})
}

// handleRequestQuotes fetches shipping options for the submitted address.
// POST /checkout/sessions/{id}/shipping/quotes
func (h *Handler) handleRequestQuotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		res, err := o.RequestQuotes(ctx)
		if err != nil {
			return err
		}
		h.logger.InfoContext(ctx, "shipping quoted",
			slog.String("checkout_id", r.PathValue("id")),
			slog.Int("options", len(res.Options)),
			slog.Bool("fallback", res.Fallback),
		)
		return nil
	})
}

// handleSelectShipping picks a quoted option.
// PUT /checkout/sessions/{id}/shipping
func (h *Handler) handleSelectShipping(w http.ResponseWriter, r *http.Request) {
	var req shippingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		return o.SelectShipping(req.OptionID)
	})
}

// handleApplyCoupon submits a coupon code.
// POST /checkout/sessions/{id}/coupon
func (h *Handler) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		_, err := o.ApplyCoupon(ctx, req.Code)
		return err
	})
}

// handleRemoveCoupon drops the applied coupon.
// DELETE /checkout/sessions/{id}/coupon
func (h *Handler) handleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		return o.RemoveCoupon()
	})
}

// handleSelectPayment stores the payment selection.
// PUT /checkout/sessions/{id}/payment
func (h *Handler) handleSelectPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	sel, err := req.selection()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.mutate(w, r, func(o *checkout.Orchestrator) error {
		return o.SelectPayment(sel)
	})
}

// handleFinalize charges and places the order.
// POST /checkout/sessions/{id}/finalize
//
// An Idempotency-Key header, when present, must equal the session token.
// Repeating a finalize that already succeeded answers 200 with
// Idempotent-Replayed: ?1 instead of 201.
func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	key, err := backend.ParseIdempotencyKey(r.Header.Values(backend.IdempotencyHeader))
	if err != nil {
		h.writeError(w, model.NewValidationError("idempotency_key", err.Error()))
		return
	}

	o, err := h.wizard(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if key != "" && key != o.SessionToken() {
		h.writeError(w, model.NewValidationError("idempotency_key", "does not match this checkout session"))
		return
	}

	h.logger.InfoContext(ctx, "finalizing checkout", slog.String("checkout_id", id))

	order, replayed, err := o.Finalize(ctx)
	if err != nil {
		h.dropIfFatal(ctx, id, err)
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		w.Header().Set(backend.ReplayedHeader, backend.FormatReplayed())
		status = http.StatusOK
	}
	h.writeJSON(w, status, finalizeResponse{Order: order, Replayed: replayed, Session: viewOf(id, o)})
}

// handlePostalLookup resolves a CEP for address auto-fill.
// GET /postal-codes/{code}
func (h *Handler) handlePostalLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lookup == nil {
		h.writeError(w, model.NewNotFoundError("postal code lookup"))
		return
	}

	found, err := h.lookup.Lookup(ctx, r.PathValue("code"))
	if err != nil {
		var apiErr *model.APIError
		switch {
		case errors.As(err, &apiErr):
			h.writeError(w, err)
		case errors.Is(err, address.ErrPostalCodeNotFound):
			h.writeError(w, model.NewNotFoundError("postal code"))
		default:
			h.writeError(w, model.NewUpstreamError("postal lookup", err))
		}
		return
	}
	h.writeJSON(w, http.StatusOK, found)
}

// handleSeedCart replaces a buyer's live cart ahead of checkout.
// PUT /carts/{user_id}
func (h *Handler) handleSeedCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(r.PathValue("user_id"))
	if userID == "" {
		h.writeError(w, model.NewValidationError("user_id", "user ID required"))
		return
	}
	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	snap := model.CartSnapshot{Lines: req.Lines}
	if snap.IsEmpty() {
		h.writeError(w, model.NewValidationError("lines", "cart must not be empty"))
		return
	}
	if err := snap.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.carts.Save(ctx, userID, req.Lines); err != nil {
		h.logger.ErrorContext(ctx, "failed to save cart",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		h.writeError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "cart saved",
		slog.String("user_id", userID),
		slog.Int("lines", len(req.Lines)),
	)
	h.writeJSON(w, http.StatusOK, cartResponse{UserID: userID, Lines: req.Lines, Subtotal: snap.Subtotal()})
}

// mutate runs fn against the wizard named by the path and answers with the
// resulting state. A fatal error also drops the wizard.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(o *checkout.Orchestrator) error) {
	id := r.PathValue("id")
	o, err := h.wizard(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := fn(o); err != nil {
		h.dropIfFatal(r.Context(), id, err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(id, o))
}
