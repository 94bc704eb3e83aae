// Package model defines the checkout data model shared by the orchestrator
// and its backend clients.
package model

import (
	"fmt"
	"time"
)

// === Session ===

// CheckoutSession binds every checkout call to one in-progress purchase.
// Created once per wizard entry; the token is single-use for finalization.
type CheckoutSession struct {
	Token     string    `json:"session_token"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`

	// Totals as reported by the backend when the session opened.
	// Informational only: the orchestrator derives its own totals.
	BackendSubtotal   int64 `json:"backend_subtotal"`
	BackendFinalTotal int64 `json:"backend_final_total"`
}

// === Cart ===

// Dimensions of a packaged item in centimeters.
type Dimensions struct {
	LengthCM int `json:"length_cm"`
	WidthCM  int `json:"width_cm"`
	HeightCM int `json:"height_cm"`
}

// CartLine is one product line copied from the live cart.
type CartLine struct {
	ProductID   string     `json:"product_id"`
	Name        string     `json:"name"`
	UnitPrice   int64      `json:"unit_price"` // cents
	Quantity    int        `json:"quantity"`
	WeightGrams int        `json:"weight_grams"` // per unit
	Dimensions  Dimensions `json:"dimensions"`
}

// LineTotal returns unit price × quantity in cents.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartSnapshot is the ordered copy of the live cart taken at wizard entry.
// Owned exclusively by the orchestrator for the duration of checkout.
type CartSnapshot struct {
	Lines      []CartLine `json:"lines"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Subtotal sums every line total in cents.
func (s CartSnapshot) Subtotal() int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.LineTotal()
	}
	return total
}

// IsEmpty reports whether the snapshot has no lines.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Validate enforces quantity >= 1 on every line.
func (s CartSnapshot) Validate() error {
	for i, l := range s.Lines {
		if l.Quantity < 1 {
			return NewValidationError(fmt.Sprintf("lines[%d].quantity", i), "must be at least 1")
		}
		if l.UnitPrice < 0 {
			return NewValidationError(fmt.Sprintf("lines[%d].unit_price", i), "must not be negative")
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate orchestrator state.
func (s CartSnapshot) Clone() CartSnapshot {
	lines := make([]CartLine, len(s.Lines))
	copy(lines, s.Lines)
	return CartSnapshot{Lines: lines, CapturedAt: s.CapturedAt}
}

// === Address ===

// ShippingAddress holds buyer identity plus a structured Brazilian address.
type ShippingAddress struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	TaxID      string `json:"tax_id"` // CPF
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"` // two-letter UF
}

// PostalLookup is the best-effort result of a CEP lookup.
type PostalLookup struct {
	PostalCode string `json:"postal_code"`
	Street     string `json:"street"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// === Shipping ===

// ShippingOption is one quoted delivery choice.
type ShippingOption struct {
	ID              string `json:"id"`
	CarrierService  string `json:"carrier_service"` // e.g. "PAC", "SEDEX"
	DisplayName     string `json:"display_name"`
	Price           int64  `json:"price"` // cents
	ETABusinessDays int    `json:"eta_business_days"`
}

// Parcel describes one package sent to the rate provider.
type Parcel struct {
	WeightGrams   int        `json:"weight_grams"`
	Dimensions    Dimensions `json:"dimensions"`
	DeclaredValue int64      `json:"declared_value"` // cents
	Quantity      int        `json:"quantity"`
}

// QuoteRequest asks the rate provider for shipping options.
type QuoteRequest struct {
	OriginPostalCode      string   `json:"origin_postal_code"`
	DestinationPostalCode string   `json:"destination_postal_code"`
	Parcels               []Parcel `json:"parcels"`
}

// QuoteResult is always usable: on provider failure it carries the
// fallback set and Fallback is true.
type QuoteResult struct {
	Options         []ShippingOption `json:"options"`
	Fallback        bool             `json:"fallback"`
	FallbackVersion string           `json:"fallback_version,omitempty"`
}

// ParcelsFromLines builds one parcel per cart line.
func ParcelsFromLines(lines []CartLine) []Parcel {
	parcels := make([]Parcel, 0, len(lines))
	for _, l := range lines {
		parcels = append(parcels, Parcel{
			WeightGrams:   l.WeightGrams * l.Quantity,
			Dimensions:    l.Dimensions,
			DeclaredValue: l.LineTotal(),
			Quantity:      l.Quantity,
		})
	}
	return parcels
}

// === Coupon ===

// CouponRequest submits a code against the current subtotal.
type CouponRequest struct {
	SessionToken string `json:"session_token"`
	UserID       string `json:"user_id"`
	Code         string `json:"coupon_code"`
	Subtotal     int64  `json:"subtotal"` // cents
}

// CouponResult is an accepted coupon.
type CouponResult struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"` // cents
	FreeShipping   bool   `json:"free_shipping"`
}

// === Totals ===

// Totals is the authoritative running total. All amounts in cents.
// FinalTotal = Subtotal + ShippingTotal + TaxTotal - DiscountTotal, never below 0.
type Totals struct {
	Subtotal      int64 `json:"subtotal"`
	ShippingTotal int64 `json:"shipping_total"`
	DiscountTotal int64 `json:"discount_total"`
	TaxTotal      int64 `json:"tax_total"`
	FinalTotal    int64 `json:"final_total"`
}

// Recompute re-derives FinalTotal from the addends.
// Never accumulates deltas.
func (t *Totals) Recompute() {
	final := t.Subtotal + t.ShippingTotal + t.TaxTotal - t.DiscountTotal
	if final < 0 {
		final = 0
	}
	t.FinalTotal = final
}

// Valid reports whether FinalTotal matches the formula.
func (t Totals) Valid() bool {
	want := t.Subtotal + t.ShippingTotal + t.TaxTotal - t.DiscountTotal
	if want < 0 {
		want = 0
	}
	return t.FinalTotal == want && t.FinalTotal >= 0
}

// === Order ===

// FinalizeRequest is the single terminal submission of a checkout.
type FinalizeRequest struct {
	SessionToken    string          `json:"session_token"`
	UserID          string          `json:"user_id"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	ShippingOption  ShippingOption  `json:"shipping_option"`
	Payment         PaymentOutcome  `json:"payment"`
	Lines           []CartLine      `json:"lines"`
	Totals          Totals          `json:"totals"`
	CouponCode      string          `json:"coupon_code,omitempty"`
}

// Order is the persisted result of finalization.
type Order struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []CartLine      `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentOutcome  PaymentOutcome  `json:"payment_outcome"`
	Totals          Totals          `json:"totals"`
}
