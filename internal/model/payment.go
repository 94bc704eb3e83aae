package model

import "time"

// PaymentMethod names the gateway method a selection maps to.
type PaymentMethod string

const (
	MethodInstant PaymentMethod = "instant" // PIX instant transfer
	MethodCard    PaymentMethod = "card"
	MethodVoucher PaymentMethod = "voucher" // boleto
)

// CardBrand is derived from the PAN's leading digits, never from user input.
type CardBrand string

const (
	BrandVisa       CardBrand = "visa"
	BrandMastercard CardBrand = "mastercard"
	BrandAmex       CardBrand = "amex"
	BrandElo        CardBrand = "elo"
	BrandHipercard  CardBrand = "hipercard"
	BrandDiners     CardBrand = "diners"
	BrandDiscover   CardBrand = "discover"
	BrandJCB        CardBrand = "jcb"
	BrandUnknown    CardBrand = "unknown"
)

// PaymentSelection is a closed sum type over InstantPayment, CardPayment
// and VoucherPayment. The unexported method keeps other packages from
// adding variants; Accept dispatches to exactly one PaymentVisitor method.
type PaymentSelection interface {
	Method() PaymentMethod
	Accept(v PaymentVisitor) error
	isPaymentSelection()
}

// PaymentVisitor handles every PaymentSelection variant.
// A new variant adds a method here, which breaks every visitor until handled.
type PaymentVisitor interface {
	VisitInstant(p InstantPayment) error
	VisitCard(p CardPayment) error
	VisitVoucher(p VoucherPayment) error
}

// InstantPayment is a discount-eligible instant transfer.
type InstantPayment struct {
	TaxID string `json:"tax_id"`
}

// CardPayment carries raw card data. It never leaves the process:
// the gateway client exchanges it for a token before charging.
type CardPayment struct {
	PAN              string `json:"pan"`
	HolderName       string `json:"holder_name"`
	Expiry           string `json:"expiry"` // MM/YY
	CVV              string `json:"cvv"`
	InstallmentCount int    `json:"installment_count"`
	IsDebit          bool   `json:"is_debit"`
}

// VoucherPayment is a deferred-payment boleto.
type VoucherPayment struct {
	TaxID string `json:"tax_id,omitempty"`
}

func (InstantPayment) Method() PaymentMethod { return MethodInstant }
func (CardPayment) Method() PaymentMethod    { return MethodCard }
func (VoucherPayment) Method() PaymentMethod { return MethodVoucher }

func (p InstantPayment) Accept(v PaymentVisitor) error { return v.VisitInstant(p) }
func (p CardPayment) Accept(v PaymentVisitor) error    { return v.VisitCard(p) }
func (p VoucherPayment) Accept(v PaymentVisitor) error { return v.VisitVoucher(p) }

func (InstantPayment) isPaymentSelection() {}
func (CardPayment) isPaymentSelection()    {}
func (VoucherPayment) isPaymentSelection() {}

// Masked returns the last four PAN digits for display.
func (p CardPayment) Masked() string {
	digits := make([]byte, 0, len(p.PAN))
	for i := 0; i < len(p.PAN); i++ {
		if p.PAN[i] >= '0' && p.PAN[i] <= '9' {
			digits = append(digits, p.PAN[i])
		}
	}
	if len(digits) < 4 {
		return "****"
	}
	return "**** " + string(digits[len(digits)-4:])
}

// Payer identifies who pays, sent along with every charge.
type Payer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
	Phone string `json:"phone,omitempty"`
}

// PayerFromAddress builds payer info from the shipping step data.
func PayerFromAddress(a ShippingAddress) Payer {
	return Payer{Name: a.Name, Email: a.Email, TaxID: a.TaxID, Phone: a.Phone}
}

// ChargeRequest asks the gateway to charge Amount using Selection.
// Amount is the checkout FinalTotal; method-specific adjustments
// (the instant discount) are applied by the gateway client.
type ChargeRequest struct {
	Selection      PaymentSelection
	Amount         int64 // cents
	Payer          Payer
	IdempotencyKey string
}

// PaymentOutcome is the result of a successful gateway call.
type PaymentOutcome struct {
	Success   bool          `json:"success"`
	PaymentID string        `json:"payment_id"`
	Status    string        `json:"status"`
	Method    PaymentMethod `json:"method"`
	Amount    int64         `json:"amount"` // cents actually charged

	// Instant transfer
	QRCode     string     `json:"qr_code,omitempty"`
	QRCodeText string     `json:"qr_code_text,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	// Card
	Brand             CardBrand `json:"brand,omitempty"`
	LastFour          string    `json:"last_four,omitempty"`
	Installments      int       `json:"installments,omitempty"`
	AuthorizationCode string    `json:"authorization_code,omitempty"`

	// Voucher
	Barcode       string     `json:"barcode,omitempty"`
	DigitableLine string     `json:"digitable_line,omitempty"`
	VoucherURL    string     `json:"voucher_url,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}
