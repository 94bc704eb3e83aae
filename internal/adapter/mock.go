package adapter

import (
	"context"

	"coffee-checkout/internal/model"
)

// Mock implements every collaborator interface for testing.
// Each method can be configured via function fields.
type Mock struct {
	StartFunc        func(ctx context.Context, userID string) (*model.CheckoutSession, error)
	CompleteFunc     func(ctx context.Context, req model.FinalizeRequest) (*model.Order, error)
	QuoteFunc        func(ctx context.Context, req model.QuoteRequest) (*model.QuoteResult, error)
	ApplyFunc        func(ctx context.Context, req model.CouponRequest) (*model.CouponResult, error)
	ValidateFunc     func(sel model.PaymentSelection) error
	ChargeAmountFunc func(sel model.PaymentSelection, finalTotal int64) int64
	ChargeFunc       func(ctx context.Context, req model.ChargeRequest) (*model.PaymentOutcome, error)
	LookupFunc       func(ctx context.Context, postalCode string) (*model.PostalLookup, error)
	LoadFunc         func(ctx context.Context, userID string) (model.CartSnapshot, error)
	ClearFunc        func(ctx context.Context, userID string) error
	SaveFunc         func(ctx context.Context, userID string, lines []model.CartLine) error
}

// Start calls the configured StartFunc or returns a session for userID.
func (m *Mock) Start(ctx context.Context, userID string) (*model.CheckoutSession, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, userID)
	}
	if userID == "" {
		return nil, model.NewSessionError("no authenticated user")
	}
	return &model.CheckoutSession{Token: "sess-" + userID, UserID: userID}, nil
}

// Complete calls the configured CompleteFunc or returns an error.
func (m *Mock) Complete(ctx context.Context, req model.FinalizeRequest) (*model.Order, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// Quote calls the configured QuoteFunc or returns an error.
func (m *Mock) Quote(ctx context.Context, req model.QuoteRequest) (*model.QuoteResult, error) {
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// Apply calls the configured ApplyFunc or rejects the coupon.
func (m *Mock) Apply(ctx context.Context, req model.CouponRequest) (*model.CouponResult, error) {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, req)
	}
	return nil, model.NewCouponError("coupon not found")
}

// Validate calls the configured ValidateFunc or accepts any selection.
func (m *Mock) Validate(sel model.PaymentSelection) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(sel)
	}
	return nil
}

// ChargeAmount calls the configured ChargeAmountFunc or returns finalTotal.
func (m *Mock) ChargeAmount(sel model.PaymentSelection, finalTotal int64) int64 {
	if m.ChargeAmountFunc != nil {
		return m.ChargeAmountFunc(sel, finalTotal)
	}
	return finalTotal
}

// Charge calls the configured ChargeFunc or returns an error.
func (m *Mock) Charge(ctx context.Context, req model.ChargeRequest) (*model.PaymentOutcome, error) {
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// Lookup calls the configured LookupFunc or reports the code unknown.
func (m *Mock) Lookup(ctx context.Context, postalCode string) (*model.PostalLookup, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, postalCode)
	}
	return nil, model.NewNotFoundError("postal code")
}

// Load calls the configured LoadFunc or returns an empty cart.
func (m *Mock) Load(ctx context.Context, userID string) (model.CartSnapshot, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, userID)
	}
	return model.CartSnapshot{}, nil
}

// Clear calls the configured ClearFunc or does nothing.
func (m *Mock) Clear(ctx context.Context, userID string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, userID)
	}
	return nil
}

// Save calls the configured SaveFunc or does nothing.
func (m *Mock) Save(ctx context.Context, userID string, lines []model.CartLine) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, userID, lines)
	}
	return nil
}

// Verify Mock implements every collaborator interface at compile time.
var (
	_ SessionManager = (*Mock)(nil)
	_ ShippingQuoter = (*Mock)(nil)
	_ CouponService  = (*Mock)(nil)
	_ PaymentGateway = (*Mock)(nil)
	_ AddressLookup  = (*Mock)(nil)
	_ CartStore      = (*Mock)(nil)
	_ CartWriter     = (*Mock)(nil)
)
