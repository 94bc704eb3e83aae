// Package checkout implements the checkout wizard: the step machine, the
// authoritative running totals, the in-flight gates and the single
// finalization of an order.
//
// An Orchestrator owns every piece of wizard state. Collaborators are
// injected through Deps; nothing is read from globals. All methods are
// safe for concurrent use. Network calls run without the state lock held,
// so State stays responsive while a quote, coupon or finalize is pending.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"coffee-checkout/internal/adapter"
	"coffee-checkout/internal/cart"
	"coffee-checkout/internal/model"
)

// DefaultCallTimeout bounds each external call made by the orchestrator.
const DefaultCallTimeout = 20 * time.Second

const tracerName = "coffee-checkout/internal/checkout"

// Config holds per-deployment checkout settings.
type Config struct {
	OriginPostalCode string
	CallTimeout      time.Duration
	Clock            func() time.Time
}

// Deps are the collaborators an orchestrator talks to.
// Lookup is optional; everything else is required.
type Deps struct {
	Sessions adapter.SessionManager
	Shipping adapter.ShippingQuoter
	Coupons  adapter.CouponService
	Payments adapter.PaymentGateway
	Lookup   adapter.AddressLookup
	Cart     adapter.CartStore
	Logger   *slog.Logger
}

func (d Deps) validate() error {
	var missing []string
	if d.Sessions == nil {
		missing = append(missing, "Sessions")
	}
	if d.Shipping == nil {
		missing = append(missing, "Shipping")
	}
	if d.Coupons == nil {
		missing = append(missing, "Coupons")
	}
	if d.Payments == nil {
		missing = append(missing, "Payments")
	}
	if d.Cart == nil {
		missing = append(missing, "Cart")
	}
	if len(missing) > 0 {
		return fmt.Errorf("checkout: missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Orchestrator drives one buyer through checkout.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	mu           sync.Mutex
	step         Step
	session      model.CheckoutSession
	snapshot     model.CartSnapshot
	address      *model.ShippingAddress
	quotes       []model.ShippingOption
	quoteResult  model.QuoteResult // flags of the last quote; Options unused
	selected     *model.ShippingOption
	coupon       *model.CouponResult
	payment      model.PaymentSelection
	charge       *model.PaymentOutcome // successful charge awaiting completion
	order        *model.Order
	totals       model.Totals
	lastErr      *model.APIError
	ended        string // non-empty once the wizard can no longer be used
	inFlight     gates
	lastActivity time.Time
}

// Start opens a wizard for userID. The live cart is read exactly once here.
// A missing user, an empty or invalid cart and a session the backend
// refuses are all fatal session errors.
func Start(ctx context.Context, deps Deps, cfg Config, userID string) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, model.NewInternalError(err)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, model.NewSessionError("no authenticated user")
	}

	snapshot, err := deps.Cart.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, cart.ErrCartNotFound) {
			return nil, model.NewSessionError("cart is empty")
		}
		return nil, model.NewUpstreamError("cart store", err)
	}
	if snapshot.IsEmpty() {
		return nil, model.NewSessionError("cart is empty")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, model.NewSessionError(fmt.Sprintf("cart is invalid: %s", model.MessageOf(err)))
	}

	sess, err := deps.Sessions.Start(ctx, userID)
	if err != nil {
		return nil, err
	}
	return New(deps, cfg, *sess, snapshot)
}

// New builds an orchestrator from an already opened session and a cart
// snapshot. The snapshot is copied.
func New(deps Deps, cfg Config, sess model.CheckoutSession, snapshot model.CartSnapshot) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	o := &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger.With(slog.String("user_id", sess.UserID)),
		tracer:   otel.Tracer(tracerName),
		step:     StepCart,
		session:  sess,
		snapshot: snapshot.Clone(),
		inFlight: gates{},
	}
	o.lastActivity = cfg.Clock()
	o.recomputeTotals()
	return o, nil
}

// === Transitions ===

// Advance moves to the next step when the current step's data is in place.
// Summary only moves forward through Finalize.
func (o *Orchestrator) Advance() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	if err := o.inFlight.idle(OpShippingCalc); err != nil {
		return err
	}
	if err := o.canAdvance(); err != nil {
		return err
	}
	o.step = o.step.Next()
	o.lastErr = nil
	return nil
}

// Back moves to the previous step. There is no way back from Cart or
// from Confirmation.
func (o *Orchestrator) Back() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.usable(); err != nil {
		return err
	}
	switch {
	case o.step == StepCart:
		return model.NewTransitionError(o.step.String(), "previous step", "already at the first step")
	case o.step == StepConfirmation:
		return model.NewTransitionError(o.step.String(), o.step.Prev().String(), "order already placed")
	}
	if err := o.inFlight.idle(OpFinalize, OpShippingCalc); err != nil {
		return err
	}
	o.step = o.step.Prev()
	o.lastErr = nil
	return nil
}

func (o *Orchestrator) canAdvance() error {
	from, to := o.step.String(), o.step.Next().String()
	switch o.step {
	case StepCart:
		if o.snapshot.IsEmpty() {
			return model.NewTransitionError(from, to, "cart is empty")
		}
		if err := o.snapshot.Validate(); err != nil {
			return model.NewTransitionError(from, to, model.MessageOf(err))
		}
		if o.session.Token == "" || o.session.UserID == "" {
			return model.NewTransitionError(from, to, "no authenticated session")
		}
	case StepAddress:
		if o.address == nil {
			return model.NewTransitionError(from, to, "no shipping address submitted")
		}
	case StepShippingChoice:
		if o.selected == nil {
			return model.NewTransitionError(from, to, "no shipping option selected")
		}
	case StepPayment:
		if o.payment == nil {
			return model.NewTransitionError(from, to, "no payment method selected")
		}
	case StepSummary:
		return model.NewTransitionError(from, to, "use finalize to place the order")
	case StepConfirmation:
		return model.NewTransitionError(from, to, "order already placed")
	}
	return nil
}

// === Helpers (callers hold o.mu) ===

// usable rejects every operation once the wizard has ended and records
// activity otherwise.
func (o *Orchestrator) usable() error {
	if o.ended != "" {
		return model.NewSessionError(o.ended)
	}
	o.lastActivity = o.cfg.Clock()
	return nil
}

// finish releases a gate once its call returns. The call's completion
// counts as activity.
func (o *Orchestrator) finish(op Operation) {
	o.inFlight.release(op)
	o.lastActivity = o.cfg.Clock()
}

func (o *Orchestrator) requireStep(op string, steps ...Step) error {
	for _, s := range steps {
		if o.step == s {
			return nil
		}
	}
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.String()
	}
	return model.NewTransitionError(o.step.String(), strings.Join(names, "/"),
		fmt.Sprintf("%s is not available on the %s step", op, o.step))
}

// requireUncharged blocks changes that would alter the amount after the
// payment has been captured.
func (o *Orchestrator) requireUncharged() error {
	if o.charge != nil {
		return model.NewTransitionError(o.step.String(), o.step.String(), "payment already captured; finalize the order")
	}
	return nil
}

// recomputeTotals re-derives every addend from owned state.
func (o *Orchestrator) recomputeTotals() {
	t := model.Totals{Subtotal: o.snapshot.Subtotal()}
	if o.selected != nil {
		t.ShippingTotal = o.selected.Price
	}
	if o.coupon != nil {
		t.DiscountTotal = o.coupon.DiscountAmount
		if o.coupon.FreeShipping {
			t.ShippingTotal = 0
		}
	}
	t.Recompute()
	o.totals = t
}

// fail records a transactional error for display and ends the wizard on
// fatal ones.
func (o *Orchestrator) fail(err error) {
	if model.IsFatal(err) {
		o.ended = model.MessageOf(err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		o.lastErr = apiErr
		return
	}
	o.lastErr = model.NewInternalError(err)
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.CallTimeout)
}

// === Lifecycle ===

// Abandon ends the wizard. Every later call returns a fatal session error.
// A pending finalize cannot be abandoned.
func (o *Orchestrator) Abandon() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ended != "" {
		return nil
	}
	if o.inFlight.busy(OpFinalize) {
		return model.NewInFlightError(string(OpFinalize))
	}
	o.ended = "checkout abandoned"
	o.logger.Info("checkout abandoned", slog.String("step", o.step.String()))
	return nil
}

// Ended reports whether the wizard can no longer be used.
func (o *Orchestrator) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended != ""
}

// LastActivity is when the wizard was last touched by a caller.
func (o *Orchestrator) LastActivity() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastActivity
}

// Busy reports whether any gated operation is outstanding.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight) > 0
}

// SessionToken returns the backend session token.
func (o *Orchestrator) SessionToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Token
}
