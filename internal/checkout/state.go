package checkout

import (
	"time"

	"coffee-checkout/internal/model"
)

// State is a read-only view of a wizard. Every slice and pointer is a copy.
type State struct {
	Step   Step             `json:"step"`
	UserID string           `json:"user_id"`
	Lines  []model.CartLine `json:"lines"`
	Totals model.Totals     `json:"totals"`

	// InstantPrice is what an instant transfer would charge for FinalTotal.
	InstantPrice int64 `json:"instant_price"`
	// ChargeAmount is what the selected payment method would charge.
	ChargeAmount int64 `json:"charge_amount,omitempty"`

	Address          *model.ShippingAddress `json:"address,omitempty"`
	ShippingOptions  []model.ShippingOption `json:"shipping_options,omitempty"`
	QuotesFallback   bool                   `json:"quotes_fallback,omitempty"`
	FallbackVersion  string                 `json:"fallback_version,omitempty"`
	SelectedShipping *model.ShippingOption  `json:"selected_shipping,omitempty"`
	Coupon           *model.CouponResult    `json:"coupon,omitempty"`
	PaymentMethod    model.PaymentMethod    `json:"payment_method,omitempty"`
	PaymentSummary   string                 `json:"payment_summary,omitempty"`
	Charged          bool                   `json:"charged"`
	Order            *model.Order           `json:"order,omitempty"`
	LastError        *model.APIError        `json:"last_error,omitempty"`
	Busy             []string               `json:"busy,omitempty"`
	Ended            bool                   `json:"ended"`
	LastActivity     time.Time              `json:"last_activity"`
}

// State returns a snapshot of the wizard.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		Step:            o.step,
		UserID:          o.session.UserID,
		Lines:           o.snapshot.Clone().Lines,
		Totals:          o.totals,
		InstantPrice:    o.deps.Payments.ChargeAmount(model.InstantPayment{}, o.totals.FinalTotal),
		ShippingOptions: append([]model.ShippingOption(nil), o.quotes...),
		QuotesFallback:  o.quoteResult.Fallback,
		FallbackVersion: o.quoteResult.FallbackVersion,
		Charged:         o.charge != nil,
		Order:           cloneOrder(o.order),
		Busy:            o.inFlight.list(),
		Ended:           o.ended != "",
		LastActivity:    o.lastActivity,
	}
	if o.address != nil {
		a := *o.address
		s.Address = &a
	}
	if o.selected != nil {
		sel := *o.selected
		s.SelectedShipping = &sel
	}
	if o.coupon != nil {
		c := *o.coupon
		s.Coupon = &c
	}
	if o.payment != nil {
		s.PaymentMethod = o.payment.Method()
		s.PaymentSummary = describePayment(o.payment)
		s.ChargeAmount = o.deps.Payments.ChargeAmount(o.payment, o.totals.FinalTotal)
	}
	if o.lastErr != nil {
		e := *o.lastErr
		s.LastError = &e
	}
	return s
}

// describePayment renders a selection without sensitive card data.
func describePayment(sel model.PaymentSelection) string {
	var d paymentDescriber
	_ = sel.Accept(&d)
	return d.text
}

type paymentDescriber struct{ text string }

func (d *paymentDescriber) VisitInstant(model.InstantPayment) error {
	d.text = "PIX"
	return nil
}

func (d *paymentDescriber) VisitCard(p model.CardPayment) error {
	kind := "credit"
	if p.IsDebit {
		kind = "debit"
	}
	d.text = kind + " card " + p.Masked()
	return nil
}

func (d *paymentDescriber) VisitVoucher(model.VoucherPayment) error {
	d.text = "boleto"
	return nil
}
