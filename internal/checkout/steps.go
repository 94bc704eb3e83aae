package checkout

import (
	"context"
	"log/slog"
	"strings"

	"coffee-checkout/internal/address"
	"coffee-checkout/internal/cart"
	"coffee-checkout/internal/model"
)

// === Cart ===

// UpdateCart replaces the snapshot lines. Only allowed on the cart step.
// Quotes, the shipping selection and the coupon were computed for the old
// lines, so they are dropped unless the edit changes nothing.
func (o *Orchestrator) UpdateCart(lines []model.CartLine) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	if err := o.requireStep("cart update", StepCart); err != nil {
		return err
	}
	if err := o.requireUncharged(); err != nil {
		return err
	}
	if err := o.inFlight.idle(OpCouponApply, OpShippingCalc); err != nil {
		return err
	}

	next := model.CartSnapshot{Lines: lines, CapturedAt: o.snapshot.CapturedAt}.Clone()
	if next.IsEmpty() {
		return model.NewValidationError("lines", "cart must not be empty")
	}
	if err := next.Validate(); err != nil {
		return err
	}

	diff := cart.Diff(o.snapshot.Lines, next.Lines)
	o.snapshot = next
	if diff.IsEmpty() {
		return nil
	}
	o.logger.Debug("cart updated",
		slog.Int("added", len(diff.Added)),
		slog.Int("removed", len(diff.Removed)),
		slog.Int("changed", len(diff.Changed)),
	)

	o.quotes = nil
	o.quoteResult = model.QuoteResult{}
	o.selected = nil
	o.coupon = nil
	o.recomputeTotals()
	return nil
}

// === Address ===

// SubmitAddress validates and stores the shipping address. A different
// destination CEP invalidates any quotes already fetched.
func (o *Orchestrator) SubmitAddress(addr model.ShippingAddress) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	if err := o.requireStep("address submission", StepAddress); err != nil {
		return err
	}
	if err := o.requireUncharged(); err != nil {
		return err
	}

	norm := address.Normalize(addr)
	if err := address.Validate(norm); err != nil {
		return err
	}

	if o.address != nil && !address.SamePostalCode(o.address.PostalCode, norm.PostalCode) {
		o.quotes = nil
		o.quoteResult = model.QuoteResult{}
		o.selected = nil
		o.recomputeTotals()
	}
	o.address = &norm
	o.lastErr = nil
	return nil
}

// LookupPostalCode resolves a CEP for auto-fill. It never fails: any
// lookup problem yields nil and is only logged.
func (o *Orchestrator) LookupPostalCode(ctx context.Context, cep string) *model.PostalLookup {
	o.mu.Lock()
	err := o.usable()
	o.mu.Unlock()
	if err != nil || o.deps.Lookup == nil {
		return nil
	}

	ctx, cancel := o.callContext(ctx)
	defer cancel()
	found, err := o.deps.Lookup.Lookup(ctx, cep)
	if err != nil {
		o.logger.DebugContext(ctx, "postal code lookup failed",
			slog.String("postal_code", cep),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return found
}

// === Shipping ===

// RequestQuotes fetches shipping options for the submitted address.
// Provider failures come back as the fallback set, never as errors.
// A previous selection survives when the new quotes still offer it.
func (o *Orchestrator) RequestQuotes(ctx context.Context) (*model.QuoteResult, error) {
	o.mu.Lock()
	if err := o.usable(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.requireStep("shipping quote", StepShippingChoice); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.requireUncharged(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if o.address == nil {
		o.mu.Unlock()
		return nil, model.NewValidationError("postal_code", "submit a shipping address first")
	}
	if err := o.inFlight.acquire(OpShippingCalc); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	req := model.QuoteRequest{
		OriginPostalCode:      o.cfg.OriginPostalCode,
		DestinationPostalCode: o.address.PostalCode,
		Parcels:               model.ParcelsFromLines(o.snapshot.Lines),
	}
	o.mu.Unlock()

	callCtx, cancel := o.callContext(ctx)
	res, err := o.deps.Shipping.Quote(callCtx, req)
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.finish(OpShippingCalc)
	if err != nil {
		o.fail(err)
		return nil, err
	}
	if o.step != StepShippingChoice || o.charge != nil || o.order != nil {
		return nil, model.NewTransitionError(o.step.String(), StepShippingChoice.String(),
			"checkout moved on while quoting; quotes discarded")
	}
	if o.address == nil || !address.SamePostalCode(o.address.PostalCode, req.DestinationPostalCode) {
		return nil, model.NewValidationError("postal_code", "address changed while quoting; request quotes again")
	}

	o.quotes = append([]model.ShippingOption(nil), res.Options...)
	o.quoteResult = model.QuoteResult{Fallback: res.Fallback, FallbackVersion: res.FallbackVersion}
	if o.selected != nil {
		o.selected = findOption(o.quotes, o.selected.ID)
	}
	o.recomputeTotals()
	o.lastErr = nil

	out := *res
	out.Options = append([]model.ShippingOption(nil), res.Options...)
	return &out, nil
}

// SelectShipping picks one of the quoted options by id.
func (o *Orchestrator) SelectShipping(optionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	if err := o.requireStep("shipping selection", StepShippingChoice); err != nil {
		return err
	}
	if err := o.requireUncharged(); err != nil {
		return err
	}
	if o.inFlight.busy(OpShippingCalc) {
		return model.NewInFlightError(string(OpShippingCalc))
	}
	opt := findOption(o.quotes, strings.TrimSpace(optionID))
	if opt == nil {
		return model.NewValidationError("shipping_option", "unknown shipping option")
	}
	o.selected = opt
	o.recomputeTotals()
	return nil
}

func findOption(opts []model.ShippingOption, id string) *model.ShippingOption {
	for _, opt := range opts {
		if opt.ID == id {
			found := opt
			return &found
		}
	}
	return nil
}

// === Coupon ===

// ApplyCoupon submits a code against the current subtotal. A rejected code
// leaves the totals untouched and is recorded as the step's last error.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, code string) (*model.CouponResult, error) {
	o.mu.Lock()
	if err := o.usable(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.requireStep("coupon", StepCart, StepAddress, StepShippingChoice, StepPayment, StepSummary); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.requireUncharged(); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.inFlight.idle(OpFinalize); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if err := o.inFlight.acquire(OpCouponApply); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	req := model.CouponRequest{
		SessionToken: o.session.Token,
		UserID:       o.session.UserID,
		Code:         code,
		Subtotal:     o.snapshot.Subtotal(),
	}
	o.mu.Unlock()

	callCtx, cancel := o.callContext(ctx)
	res, err := o.deps.Coupons.Apply(callCtx, req)
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.finish(OpCouponApply)
	if err != nil {
		o.fail(err)
		return nil, err
	}
	if o.charge != nil || o.order != nil || o.step >= StepConfirmation {
		o.logger.WarnContext(ctx, "coupon result discarded after payment",
			slog.String("code", res.Code),
		)
		return nil, model.NewTransitionError(o.step.String(), o.step.String(),
			"payment captured while the coupon was being applied; coupon discarded")
	}

	applied := *res
	o.coupon = &applied
	o.recomputeTotals()
	o.lastErr = nil
	o.logger.InfoContext(ctx, "coupon applied",
		slog.String("code", applied.Code),
		slog.Int64("discount", applied.DiscountAmount),
		slog.Bool("free_shipping", applied.FreeShipping),
	)
	return &applied, nil
}

// RemoveCoupon drops the applied coupon, if any.
func (o *Orchestrator) RemoveCoupon() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	if err := o.requireUncharged(); err != nil {
		return err
	}
	if err := o.inFlight.idle(OpCouponApply, OpFinalize); err != nil {
		return err
	}
	o.coupon = nil
	o.recomputeTotals()
	return nil
}

// === Payment ===

// SelectPayment stores a payment selection after local validation.
// Nothing reaches the network until Finalize.
func (o *Orchestrator) SelectPayment(sel model.PaymentSelection) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	if err := o.requireStep("payment selection", StepPayment); err != nil {
		return err
	}
	if err := o.requireUncharged(); err != nil {
		return err
	}
	if err := o.deps.Payments.Validate(sel); err != nil {
		return err
	}
	o.payment = sel
	o.lastErr = nil
	return nil
}
