// Package coupon applies promotional codes through the checkout backend.
package coupon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/model"
)

// Doer is the backend call surface used by the coupon client.
type Doer interface {
	Do(ctx context.Context, method, path string, in, out any, opts ...backend.Option) error
}

// Client applies coupon codes.
type Client struct {
	backend Doer
	logger  *slog.Logger
}

// NewClient creates a coupon client over a backend client.
func NewClient(b Doer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{backend: b, logger: logger}
}

type applyRequest struct {
	SessionToken string         `json:"sessionToken"`
	UserID       string         `json:"userId"`
	CouponCode   string         `json:"couponCode"`
	Subtotal     backend.Amount `json:"subtotal"`
}

type applyResponse struct {
	DiscountAmount backend.Amount `json:"discountAmount"`
	FreeShipping   bool           `json:"freeShipping"`
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply submits req.Code against req.Subtotal. Any backend refusal is
// returned as a COUPON_REJECTED error carrying the backend's message;
// only session-level failures stay fatal.
func (c *Client) Apply(ctx context.Context, req model.CouponRequest) (*model.CouponResult, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, model.NewValidationError("coupon_code", "must not be empty")
	}
	if req.SessionToken == "" {
		return nil, model.NewSessionError("checkout session token missing")
	}

	var resp applyResponse
	err := c.backend.Do(ctx, http.MethodPost, "/checkout/apply-coupon", applyRequest{
		SessionToken: req.SessionToken,
		UserID:       req.UserID,
		CouponCode:   code,
		Subtotal:     backend.Amount(req.Subtotal),
	}, &resp, backend.WithSessionToken(req.SessionToken))
	if err != nil {
		if model.IsFatal(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		msg := backend.MessageOf(err)
		c.logger.InfoContext(ctx, "coupon rejected",
			slog.String("code", code),
			slog.String("reason", msg),
		)
		rejected := model.NewCouponError(msg)
		rejected.Err = errors.Join(model.ErrCouponRejected, err)
		return nil, rejected
	}

	discount := resp.DiscountAmount.Cents()
	if discount < 0 {
		discount = 0
	}
	return &model.CouponResult{
		Code:           code,
		DiscountAmount: discount,
		FreeShipping:   resp.FreeShipping,
	}, nil
}
