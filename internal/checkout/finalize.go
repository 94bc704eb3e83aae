package checkout

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coffee-checkout/internal/model"
)

// Finalize charges the payment selection and persists the order.
//
// It runs at most once at a time per wizard. After success it is a no-op
// that returns the stored order with replayed set. A failed attempt leaves
// the wizard on Summary with the error recorded; retrying reuses a charge
// that already went through and resubmits with the same session token,
// which the backend treats as the idempotency key.
func (o *Orchestrator) Finalize(ctx context.Context) (order *model.Order, replayed bool, err error) {
	o.mu.Lock()
	if err := o.usable(); err != nil {
		o.mu.Unlock()
		return nil, false, err
	}
	if o.order != nil {
		existing := cloneOrder(o.order)
		o.mu.Unlock()
		o.logger.InfoContext(ctx, "finalize replayed", slog.String("order_id", existing.ID))
		return existing, true, nil
	}
	if err := o.requireStep("finalize", StepSummary); err != nil {
		o.mu.Unlock()
		return nil, false, err
	}
	// A pending quote or coupon would change the totals after the charge.
	if err := o.inFlight.idle(OpCouponApply, OpShippingCalc); err != nil {
		o.mu.Unlock()
		return nil, false, err
	}
	if err := o.inFlight.acquire(OpFinalize); err != nil {
		o.mu.Unlock()
		return nil, false, err
	}
	if err := o.readyToFinalize(); err != nil {
		o.inFlight.release(OpFinalize)
		o.mu.Unlock()
		return nil, false, err
	}

	sess := o.session
	req := model.FinalizeRequest{
		SessionToken:    sess.Token,
		UserID:          sess.UserID,
		ShippingAddress: *o.address,
		ShippingOption:  *o.selected,
		Lines:           o.snapshot.Clone().Lines,
		Totals:          o.totals,
	}
	if o.coupon != nil {
		req.CouponCode = o.coupon.Code
	}
	sel := o.payment
	prior := o.charge
	o.lastErr = nil
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "checkout.Finalize",
		trace.WithAttributes(
			attribute.String("checkout.user_id", sess.UserID),
			attribute.Int64("checkout.final_total", req.Totals.FinalTotal),
			attribute.String("checkout.payment_method", string(sel.Method())),
		),
	)
	defer span.End()

	outcome := prior
	if outcome == nil {
		callCtx, cancel := o.callContext(ctx)
		outcome, err = o.deps.Payments.Charge(callCtx, model.ChargeRequest{
			Selection: sel,
			Amount:    req.Totals.FinalTotal,
			Payer:     model.PayerFromAddress(req.ShippingAddress),
		})
		cancel()
		if err != nil {
			return nil, false, o.finalizeFailed(span, err)
		}
		o.mu.Lock()
		o.charge = outcome
		o.mu.Unlock()
	} else {
		span.AddEvent("reusing captured payment", trace.WithAttributes(
			attribute.String("payment.id", prior.PaymentID),
		))
	}
	req.Payment = *outcome

	callCtx, cancel := o.callContext(ctx)
	placed, err := o.deps.Sessions.Complete(callCtx, req)
	cancel()
	if err != nil {
		return nil, false, o.finalizeFailed(span, err)
	}

	o.mu.Lock()
	o.order = cloneOrder(placed)
	o.step = StepConfirmation
	o.lastErr = nil
	o.finish(OpFinalize)
	o.mu.Unlock()

	// The order exists; a cart that fails to clear is only logged.
	clearCtx, cancel := o.callContext(ctx)
	if err := o.deps.Cart.Clear(clearCtx, sess.UserID); err != nil {
		o.logger.WarnContext(ctx, "failed to clear cart after order",
			slog.String("order_id", placed.ID),
			slog.String("error", err.Error()),
		)
	}
	cancel()

	span.SetAttributes(attribute.String("checkout.order_id", placed.ID))
	span.SetStatus(codes.Ok, "")
	o.logger.InfoContext(ctx, "checkout finalized",
		slog.String("order_id", placed.ID),
		slog.String("payment_id", outcome.PaymentID),
		slog.Int64("final_total", req.Totals.FinalTotal),
	)
	return cloneOrder(placed), false, nil
}

// readyToFinalize checks the structural preconditions. Callers hold o.mu.
func (o *Orchestrator) readyToFinalize() error {
	from, to := o.step.String(), StepConfirmation.String()
	switch {
	case o.address == nil:
		return model.NewTransitionError(from, to, "no shipping address submitted")
	case o.selected == nil:
		return model.NewTransitionError(from, to, "no shipping option selected")
	case o.payment == nil:
		return model.NewTransitionError(from, to, "no payment method selected")
	case !o.totals.Valid():
		return model.NewInternalError(nil)
	}
	return nil
}

func (o *Orchestrator) finalizeFailed(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, model.MessageOf(err))

	o.mu.Lock()
	defer o.mu.Unlock()
	o.finish(OpFinalize)
	o.fail(err)
	o.logger.Warn("finalize failed",
		slog.String("step", o.step.String()),
		slog.Bool("charged", o.charge != nil),
		slog.String("error", err.Error()),
	)
	return err
}

func cloneOrder(o *model.Order) *model.Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]model.CartLine(nil), o.Items...)
	return &c
}
