// Package session opens and completes checkout sessions on the backend.
//
// A session token binds every checkout call to one purchase attempt and
// doubles as the idempotency key for completion: the backend creates at
// most one order per token, so Complete can be retried safely.
package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/model"
)

// VersionHeader is the backend response header announcing its checkout
// API version.
const VersionHeader = "Checkout-Api-Version"

// Doer is the backend call surface used by the session manager.
type Doer interface {
	Do(ctx context.Context, method, path string, in, out any, opts ...backend.Option) error
}

// Manager starts and completes checkout sessions.
type Manager struct {
	backend    Doer
	logger     *slog.Logger
	minVersion string
	now        func() time.Time
}

// Options configures a Manager.
type Options struct {
	// MinAPIVersion, when set, is compared against the backend's
	// Checkout-Api-Version header; older backends are logged.
	MinAPIVersion string
	Logger        *slog.Logger
	Now           func() time.Time
}

// NewManager creates a session manager over a backend client.
func NewManager(b Doer, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		backend:    b,
		logger:     logger,
		minVersion: normalizeVersion(opts.MinAPIVersion),
		now:        now,
	}
}

type startRequest struct {
	UserID string `json:"userId"`
}

type startResponse struct {
	SessionToken string         `json:"sessionToken"`
	Subtotal     backend.Amount `json:"subtotal"`
	FinalTotal   backend.Amount `json:"finalTotal"`
}

// Start opens a checkout session for userID.
// A missing user or a response without a token is a fatal session error.
func (m *Manager) Start(ctx context.Context, userID string) (*model.CheckoutSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, model.NewSessionError("no authenticated user")
	}

	var resp startResponse
	var header http.Header
	if err := m.backend.Do(ctx, http.MethodPost, "/checkout/start",
		startRequest{UserID: userID}, &resp, backend.WithResponseHeaders(&header)); err != nil {
		return nil, err
	}
	if resp.SessionToken == "" {
		return nil, model.NewSessionError("checkout backend returned no session token")
	}

	m.checkVersion(ctx, header.Get(VersionHeader))

	return &model.CheckoutSession{
		Token:             resp.SessionToken,
		UserID:            userID,
		StartedAt:         m.now(),
		BackendSubtotal:   resp.Subtotal.Cents(),
		BackendFinalTotal: resp.FinalTotal.Cents(),
	}, nil
}

// checkVersion logs backends older than the configured minimum.
// Version skew is not fatal: the wire contract is additive.
func (m *Manager) checkVersion(ctx context.Context, announced string) {
	if m.minVersion == "" || announced == "" {
		return
	}
	v := normalizeVersion(announced)
	if !semver.IsValid(v) {
		m.logger.WarnContext(ctx, "backend announced unparseable api version",
			slog.String("version", announced))
		return
	}
	if semver.Compare(v, m.minVersion) < 0 {
		m.logger.WarnContext(ctx, "backend api version below minimum",
			slog.String("version", v),
			slog.String("min_version", m.minVersion),
		)
	}
}

// normalizeVersion adds the "v" prefix semver expects.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ValidVersion reports whether v is a usable minimum API version.
func ValidVersion(v string) bool {
	return v == "" || semver.IsValid(normalizeVersion(v))
}

// === Completion ===

type addressPayload struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	TaxID      string `json:"cpf"`
	PostalCode string `json:"cep"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
}

type paymentPayload struct {
	Method    string         `json:"method"`
	PaymentID string         `json:"paymentId"`
	Status    string         `json:"status"`
	Amount    backend.Amount `json:"amount"`
}

type linePayload struct {
	ProductID string         `json:"productId"`
	Name      string         `json:"name"`
	UnitPrice backend.Amount `json:"unitPrice"`
	Quantity  int            `json:"quantity"`
}

type totalsPayload struct {
	Subtotal      backend.Amount `json:"subtotal"`
	ShippingTotal backend.Amount `json:"shippingTotal"`
	DiscountTotal backend.Amount `json:"discountTotal"`
	TaxTotal      backend.Amount `json:"taxTotal"`
	FinalTotal    backend.Amount `json:"finalTotal"`
}

type completeRequest struct {
	SessionToken    string         `json:"sessionToken"`
	UserID          string         `json:"userId"`
	ShippingAddress addressPayload `json:"shippingAddress"`
	ShippingMethod  string         `json:"shippingMethod"`
	PaymentData     paymentPayload `json:"paymentData"`
	CartLineItems   []linePayload  `json:"cartLineItems"`
	Totals          totalsPayload  `json:"totals"`
	CouponCode      string         `json:"couponCode,omitempty"`
}

type completeResponse struct {
	Order struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"order"`
}

// Complete persists the order. The session token is sent as the
// Idempotency-Key so a retried completion returns the same order.
func (m *Manager) Complete(ctx context.Context, req model.FinalizeRequest) (*model.Order, error) {
	if req.SessionToken == "" {
		return nil, model.NewSessionError("checkout session token missing")
	}

	var resp completeResponse
	if err := m.backend.Do(ctx, http.MethodPost, "/checkout/complete",
		buildCompleteRequest(req), &resp,
		backend.WithIdempotencyKey(req.SessionToken),
		backend.WithSessionToken(req.SessionToken),
	); err != nil {
		return nil, err
	}
	if resp.Order.ID == "" {
		return nil, model.NewUpstreamMessageError("checkout backend returned no order", http.StatusOK)
	}

	createdAt := resp.Order.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.now()
	}

	items := make([]model.CartLine, len(req.Lines))
	copy(items, req.Lines)

	return &model.Order{
		ID:              resp.Order.ID,
		CreatedAt:       createdAt,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentOutcome:  req.Payment,
		Totals:          req.Totals,
	}, nil
}

func buildCompleteRequest(req model.FinalizeRequest) completeRequest {
	a := req.ShippingAddress
	lines := make([]linePayload, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, linePayload{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: backend.Amount(l.UnitPrice),
			Quantity:  l.Quantity,
		})
	}
	return completeRequest{
		SessionToken: req.SessionToken,
		UserID:       req.UserID,
		ShippingAddress: addressPayload{
			Name:       a.Name,
			Email:      a.Email,
			Phone:      a.Phone,
			TaxID:      a.TaxID,
			PostalCode: a.PostalCode,
			Street:     a.Street,
			Number:     a.Number,
			Complement: a.Complement,
			District:   a.District,
			City:       a.City,
			State:      a.State,
		},
		ShippingMethod: req.ShippingOption.ID,
		PaymentData: paymentPayload{
			Method:    string(req.Payment.Method),
			PaymentID: req.Payment.PaymentID,
			Status:    req.Payment.Status,
			Amount:    backend.Amount(req.Payment.Amount),
		},
		CartLineItems: lines,
		Totals: totalsPayload{
			Subtotal:      backend.Amount(req.Totals.Subtotal),
			ShippingTotal: backend.Amount(req.Totals.ShippingTotal),
			DiscountTotal: backend.Amount(req.Totals.DiscountTotal),
			TaxTotal:      backend.Amount(req.Totals.TaxTotal),
			FinalTotal:    backend.Amount(req.Totals.FinalTotal),
		},
		CouponCode: req.CouponCode,
	}
}
