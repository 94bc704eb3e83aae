// Package payment validates payment selections and charges them through
// the backend payment gateway.
//
// Card data is exchanged for an opaque token before any charge; the
// charge request itself never carries a PAN or CVV. Instant transfers
// are charged at a fixed percentage discount.
package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/model"
)

// Doer is the backend call surface used by the gateway.
type Doer interface {
	Do(ctx context.Context, method, path string, in, out any, opts ...backend.Option) error
}

// Gateway charges payment selections.
type Gateway struct {
	backend         Doer
	instantDiscount decimal.Decimal
	rules           Rules
	logger          *slog.Logger
	now             func() time.Time
	newKey          func() string
}

// Config configures a Gateway.
type Config struct {
	// InstantDiscountPercent is taken off instant-transfer charges (5 = 5%).
	InstantDiscountPercent decimal.Decimal
	Rules                  Rules
	Logger                 *slog.Logger
	Now                    func() time.Time
}

// NewGateway creates a payment gateway client.
func NewGateway(b Doer, cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		backend:         b,
		instantDiscount: cfg.InstantDiscountPercent,
		rules:           cfg.Rules,
		logger:          logger,
		now:             now,
		newKey:          uuid.NewString,
	}
}

// Validate checks sel against the gateway's rules at the current time.
func (g *Gateway) Validate(sel model.PaymentSelection) error {
	return Validate(sel, g.now(), g.rules)
}

// ChargeAmount returns what the gateway will actually charge for sel
// given the checkout's final total.
func (g *Gateway) ChargeAmount(sel model.PaymentSelection, finalTotal int64) int64 {
	if _, ok := sel.(model.InstantPayment); ok {
		return model.ApplyPercentOff(finalTotal, g.instantDiscount)
	}
	return finalTotal
}

// === Tokenization ===

type tokenRequest struct {
	PAN         string `json:"pan"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holderName"`
}

type tokenResponse struct {
	Token          string `json:"token"`
	FirstSixDigits string `json:"firstSixDigits"`
}

// CardToken is the opaque stand-in for raw card data.
type CardToken struct {
	Token          string
	FirstSixDigits string
}

// Tokenize exchanges raw card data for a single-use token.
func (g *Gateway) Tokenize(ctx context.Context, card model.CardPayment) (*CardToken, error) {
	month, year, ok := parseExpiry(card.Expiry)
	if !ok {
		return nil, model.NewValidationError("expiry", "must be MM/YY")
	}

	var resp tokenResponse
	err := g.backend.Do(ctx, http.MethodPost, "/payments/card-token", tokenRequest{
		PAN:         strings.ReplaceAll(card.PAN, " ", ""),
		ExpiryMonth: fmt.Sprintf("%02d", month),
		ExpiryYear:  fmt.Sprintf("%04d", year),
		CVV:         card.CVV,
		HolderName:  strings.TrimSpace(card.HolderName),
	}, &resp)
	if err != nil {
		return nil, g.paymentError(ctx, model.MethodCard, err)
	}
	if resp.Token == "" {
		return nil, g.paymentError(ctx, model.MethodCard, errors.New("card could not be tokenized"))
	}
	return &CardToken{Token: resp.Token, FirstSixDigits: resp.FirstSixDigits}, nil
}

// === Charge ===

type payerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"cpf"`
	Phone string `json:"phone,omitempty"`
}

type processRequest struct {
	Method       string         `json:"method"`
	Amount       backend.Amount `json:"amount"`
	Token        string         `json:"token,omitempty"`
	TaxID        string         `json:"taxId,omitempty"`
	Installments int            `json:"installments,omitempty"`
	Brand        string         `json:"brand,omitempty"`
	PayerInfo    payerPayload   `json:"payerInfo"`
}

type processResponse struct {
	Success   bool   `json:"success"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`

	QRCode     string     `json:"qrCode,omitempty"`
	QRCodeText string     `json:"qrCodeText,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`

	AuthorizationCode string `json:"authorizationCode,omitempty"`

	Barcode       string     `json:"barcode,omitempty"`
	DigitableLine string     `json:"digitableLine,omitempty"`
	BoletoURL     string     `json:"boletoUrl,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
}

// Charge validates the selection, shapes the method-specific request
// and submits it. Each call carries its own idempotency key unless the
// caller supplies one, so a retried charge is a new attempt.
func (g *Gateway) Charge(ctx context.Context, req model.ChargeRequest) (*model.PaymentOutcome, error) {
	if err := g.Validate(req.Selection); err != nil {
		return nil, err
	}
	if req.Amount < 0 {
		return nil, model.NewValidationError("amount", "must not be negative")
	}

	b := &requestBuilder{ctx: ctx, gateway: g, amount: req.Amount, payer: req.Payer}
	if err := req.Selection.Accept(b); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = g.newKey()
	}

	var resp processResponse
	if err := g.backend.Do(ctx, http.MethodPost, "/payments/process", b.req, &resp,
		backend.WithIdempotencyKey(key)); err != nil {
		return nil, g.paymentError(ctx, req.Selection.Method(), err)
	}
	if !resp.Success {
		msg := firstNonEmpty(resp.Message, resp.Error, "payment was not approved")
		return nil, g.paymentError(ctx, req.Selection.Method(), errors.New(msg))
	}

	outcome := &model.PaymentOutcome{
		Success:           true,
		PaymentID:         resp.PaymentID,
		Status:            resp.Status,
		Method:            req.Selection.Method(),
		Amount:            b.req.Amount.Cents(),
		QRCode:            resp.QRCode,
		QRCodeText:        resp.QRCodeText,
		ExpiresAt:         resp.ExpiresAt,
		AuthorizationCode: resp.AuthorizationCode,
		Barcode:           resp.Barcode,
		DigitableLine:     resp.DigitableLine,
		VoucherURL:        resp.BoletoURL,
		DueDate:           resp.DueDate,
	}
	if card, ok := req.Selection.(model.CardPayment); ok {
		outcome.Brand = b.brand
		outcome.Installments = card.InstallmentCount
		outcome.LastFour = strings.TrimPrefix(card.Masked(), "**** ")
	}
	return outcome, nil
}

// requestBuilder maps each selection variant to the gateway's request shape.
type requestBuilder struct {
	ctx     context.Context
	gateway *Gateway
	amount  int64
	payer   model.Payer

	req   processRequest
	brand model.CardBrand
}

func (b *requestBuilder) payerInfo() payerPayload {
	return payerPayload{
		Name:  b.payer.Name,
		Email: b.payer.Email,
		TaxID: b.payer.TaxID,
		Phone: b.payer.Phone,
	}
}

func (b *requestBuilder) VisitInstant(p model.InstantPayment) error {
	b.req = processRequest{
		Method:    "pix",
		Amount:    backend.Amount(model.ApplyPercentOff(b.amount, b.gateway.instantDiscount)),
		TaxID:     brdoc.Digits(p.TaxID),
		PayerInfo: b.payerInfo(),
	}
	return nil
}

func (b *requestBuilder) VisitCard(p model.CardPayment) error {
	token, err := b.gateway.Tokenize(b.ctx, p)
	if err != nil {
		return err
	}
	b.brand = DetectBrand(p.PAN)
	method := "credit_card"
	if p.IsDebit {
		method = "debit_card"
	}
	b.req = processRequest{
		Method:       method,
		Amount:       backend.Amount(b.amount),
		Token:        token.Token,
		Installments: p.InstallmentCount,
		Brand:        string(b.brand),
		PayerInfo:    b.payerInfo(),
	}
	return nil
}

func (b *requestBuilder) VisitVoucher(p model.VoucherPayment) error {
	b.req = processRequest{
		Method:    "boleto",
		Amount:    backend.Amount(b.amount),
		TaxID:     brdoc.Digits(p.TaxID),
		PayerInfo: b.payerInfo(),
	}
	return nil
}

// paymentError turns a gateway failure into a PAYMENT_ERROR carrying a
// human-readable message. Fatal session errors pass through untouched.
func (g *Gateway) paymentError(ctx context.Context, method model.PaymentMethod, err error) error {
	if model.IsFatal(err) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := backend.MessageOf(err)
	g.logger.WarnContext(ctx, "payment failed",
		slog.String("method", string(method)),
		slog.String("reason", msg),
	)
	payErr := model.NewPaymentError(msg)
	payErr.Err = errors.Join(model.ErrPaymentFailed, err)
	return payErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
