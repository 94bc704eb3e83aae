package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/model"
)

// Rules are the merchant-configurable parts of payment validation.
type Rules struct {
	MaxInstallments     int  // card installments allowed; 0 means 12
	RequireVoucherTaxID bool // boleto issuers that need the payer's CPF
}

func (r Rules) maxInstallments() int {
	if r.MaxInstallments <= 0 {
		return 12
	}
	return r.MaxInstallments
}

// Validate checks a payment selection locally. It never touches the
// network; the first failing field is returned as a validation error.
func Validate(sel model.PaymentSelection, now time.Time, rules Rules) error {
	if sel == nil {
		return model.NewValidationError("payment_method", "is required")
	}
	return sel.Accept(&validator{now: now, rules: rules})
}

type validator struct {
	now   time.Time
	rules Rules
}

func (v *validator) VisitInstant(p model.InstantPayment) error {
	if strings.TrimSpace(p.TaxID) == "" {
		return model.NewValidationError("tax_id", "is required for instant transfer")
	}
	return checkTaxIDChars(p.TaxID)
}

func (v *validator) VisitCard(p model.CardPayment) error {
	pan := strings.ReplaceAll(p.PAN, " ", "")
	if !brdoc.IsDigits(pan) {
		return model.NewValidationError("card_number", "must contain only digits")
	}
	if len(pan) < 13 || len(pan) > 19 {
		return model.NewValidationError("card_number", "must have between 13 and 19 digits")
	}
	if strings.TrimSpace(p.HolderName) == "" {
		return model.NewValidationError("holder_name", "is required")
	}
	if err := checkExpiry(p.Expiry, v.now); err != nil {
		return err
	}
	if len(p.CVV) < 3 || len(p.CVV) > 4 || !brdoc.IsDigits(p.CVV) {
		return model.NewValidationError("cvv", "must have 3 or 4 digits")
	}

	max := v.rules.maxInstallments()
	if p.IsDebit && p.InstallmentCount != 1 {
		return model.NewValidationError("installments", "debit cards take a single installment")
	}
	if p.InstallmentCount < 1 || p.InstallmentCount > max {
		return model.NewValidationError("installments", fmt.Sprintf("must be between 1 and %d", max))
	}
	return nil
}

func (v *validator) VisitVoucher(p model.VoucherPayment) error {
	if strings.TrimSpace(p.TaxID) == "" {
		if v.rules.RequireVoucherTaxID {
			return model.NewValidationError("tax_id", "is required for boleto")
		}
		return nil
	}
	return checkTaxIDChars(p.TaxID)
}

// checkTaxIDChars requires digits once dots, dashes, slashes and
// spaces are stripped.
func checkTaxIDChars(taxID string) error {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '/', ' ':
			return -1
		}
		return r
	}, taxID)
	if !brdoc.IsDigits(stripped) {
		return model.NewValidationError("tax_id", "must contain only digits")
	}
	return nil
}

// parseExpiry splits "MM/YY" into month and four-digit year.
func parseExpiry(expiry string) (month, year int, ok bool) {
	expiry = strings.TrimSpace(expiry)
	if len(expiry) != 5 || expiry[2] != '/' {
		return 0, 0, false
	}
	mm, yy := expiry[:2], expiry[3:]
	if !brdoc.IsDigits(mm) || !brdoc.IsDigits(yy) {
		return 0, 0, false
	}
	month, _ = strconv.Atoi(mm)
	year, _ = strconv.Atoi(yy)
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return month, 2000 + year, true
}

// checkExpiry accepts cards valid through the end of their expiry month.
func checkExpiry(expiry string, now time.Time) error {
	month, year, ok := parseExpiry(expiry)
	if !ok {
		return model.NewValidationError("expiry", "must be MM/YY")
	}
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return model.NewValidationError("expiry", "card has expired")
	}
	return nil
}
