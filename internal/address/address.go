// Package address validates and normalizes Brazilian shipping addresses
// and looks up postal codes for auto-fill.
package address

import (
	"net/mail"
	"strings"

	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/model"
)

// fieldCheck validates one field of an address.
type fieldCheck struct {
	field string
	check func(a model.ShippingAddress) string // returns a reason, or "" when valid
}

// checks run in form order so the first error matches the first
// invalid input the buyer sees.
var checks = []fieldCheck{
	{"name", func(a model.ShippingAddress) string {
		name := strings.TrimSpace(a.Name)
		if len(strings.Fields(name)) < 2 && len([]rune(name)) < 3 {
			return "must have at least 3 characters"
		}
		return ""
	}},
	{"email", func(a model.ShippingAddress) string {
		email := strings.TrimSpace(a.Email)
		if email == "" {
			return "is required"
		}
		parsed, err := mail.ParseAddress(email)
		if err != nil || parsed.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
			return "is not a valid email address"
		}
		return ""
	}},
	{"phone", func(a model.ShippingAddress) string {
		if !brdoc.ValidPhone(a.Phone) {
			return "must be a valid phone number with area code"
		}
		return ""
	}},
	{"tax_id", func(a model.ShippingAddress) string {
		if !brdoc.ValidCPF(a.TaxID) {
			return "is not a valid CPF"
		}
		return ""
	}},
	{"postal_code", func(a model.ShippingAddress) string {
		if !brdoc.ValidCEP(a.PostalCode) {
			return "must have 8 digits"
		}
		return ""
	}},
	{"street", required(func(a model.ShippingAddress) string { return a.Street })},
	{"number", required(func(a model.ShippingAddress) string { return a.Number })},
	{"district", required(func(a model.ShippingAddress) string { return a.District })},
	{"city", required(func(a model.ShippingAddress) string { return a.City })},
	{"state", func(a model.ShippingAddress) string {
		if !brdoc.ValidUF(a.State) {
			return "must be a valid two-letter state code"
		}
		return ""
	}},
}

func required(get func(model.ShippingAddress) string) func(model.ShippingAddress) string {
	return func(a model.ShippingAddress) string {
		if strings.TrimSpace(get(a)) == "" {
			return "is required"
		}
		return ""
	}
}

// Validate returns a field-scoped validation error for the first
// invalid field, or nil. Complement is optional.
func Validate(a model.ShippingAddress) error {
	for _, c := range checks {
		if reason := c.check(a); reason != "" {
			return model.NewValidationError(c.field, reason)
		}
	}
	return nil
}

// ValidateAll returns a validation error for every invalid field.
func ValidateAll(a model.ShippingAddress) []*model.APIError {
	var errs []*model.APIError
	for _, c := range checks {
		if reason := c.check(a); reason != "" {
			errs = append(errs, model.NewValidationError(c.field, reason))
		}
	}
	return errs
}

// Normalize trims every field, applies the national masks to tax id,
// phone and postal code, and upper-cases the state.
func Normalize(a model.ShippingAddress) model.ShippingAddress {
	return model.ShippingAddress{
		Name:       strings.Join(strings.Fields(a.Name), " "),
		Email:      strings.ToLower(strings.TrimSpace(a.Email)),
		Phone:      brdoc.MaskPhone(a.Phone),
		TaxID:      brdoc.MaskCPF(a.TaxID),
		PostalCode: brdoc.MaskCEP(a.PostalCode),
		Street:     strings.TrimSpace(a.Street),
		Number:     strings.TrimSpace(a.Number),
		Complement: strings.TrimSpace(a.Complement),
		District:   strings.TrimSpace(a.District),
		City:       strings.TrimSpace(a.City),
		State:      strings.ToUpper(strings.TrimSpace(a.State)),
	}
}

// SamePostalCode reports whether two postal codes name the same CEP,
// ignoring formatting.
func SamePostalCode(a, b string) bool {
	return brdoc.Digits(a) == brdoc.Digits(b)
}

// AutoFill copies lookup results into the empty fields of a.
// Fields the buyer already typed are never overwritten.
func AutoFill(a model.ShippingAddress, l model.PostalLookup) model.ShippingAddress {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
		}
	}
	fill(&a.Street, l.Street)
	fill(&a.District, l.District)
	fill(&a.City, l.City)
	fill(&a.State, l.State)
	if strings.TrimSpace(a.PostalCode) == "" {
		a.PostalCode = brdoc.MaskCEP(l.PostalCode)
	}
	return a
}
