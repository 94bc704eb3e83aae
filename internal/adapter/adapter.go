// Package adapter defines the collaborators the checkout orchestrator
// depends on. Each one wraps a single external system (session backend,
// rate provider, coupon service, payment gateway, postal lookup, live
// cart) so the orchestrator can be built and tested with explicit
// dependencies instead of globals.
package adapter

import (
	"context"

	"coffee-checkout/internal/model"
)

// SessionManager opens and completes checkout sessions.
type SessionManager interface {
	// Start opens a session for an authenticated user.
	// Missing user or token is a fatal session error.
	Start(ctx context.Context, userID string) (*model.CheckoutSession, error)

	// Complete persists the order. The session token is the idempotency
	// key: repeating a completed request returns the same order.
	Complete(ctx context.Context, req model.FinalizeRequest) (*model.Order, error)
}

// ShippingQuoter returns delivery options for a destination.
// Provider failures never surface as errors; they yield the fallback set.
type ShippingQuoter interface {
	Quote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResult, error)
}

// CouponService validates a coupon code against the current subtotal.
type CouponService interface {
	Apply(ctx context.Context, req model.CouponRequest) (*model.CouponResult, error)
}

// PaymentGateway validates and charges payment selections.
type PaymentGateway interface {
	// Validate checks a selection locally, without network calls.
	Validate(sel model.PaymentSelection) error

	// ChargeAmount is what Charge will bill for sel against finalTotal
	// (instant transfers carry a discount).
	ChargeAmount(sel model.PaymentSelection, finalTotal int64) int64

	// Charge bills the selection. Card data is tokenized first.
	Charge(ctx context.Context, req model.ChargeRequest) (*model.PaymentOutcome, error)
}

// AddressLookup resolves a postal code for address auto-fill.
// Lookups are best-effort; callers ignore errors.
type AddressLookup interface {
	Lookup(ctx context.Context, postalCode string) (*model.PostalLookup, error)
}

// CartStore is the buyer's live cart, read once when checkout opens and
// cleared once after the order is persisted.
type CartStore interface {
	Load(ctx context.Context, userID string) (model.CartSnapshot, error)
	Clear(ctx context.Context, userID string) error
}

// CartWriter replaces a buyer's live cart. The storefront owns it; the
// checkout only exposes it for deployments without a shared cart store.
type CartWriter interface {
	Save(ctx context.Context, userID string, lines []model.CartLine) error
}
