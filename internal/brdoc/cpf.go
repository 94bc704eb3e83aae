// Package brdoc validates and formats Brazilian personal documents and
// contact fields: CPF tax ids, CEP postal codes, phone numbers and UFs.
package brdoc

import "strings"

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// IsDigits reports whether s is non-empty and made only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidCPF checks an 11-digit CPF, formatted or not.
// Rejects sequences of one repeated digit and any id failing
// either of the two weighted check digits.
func ValidCPF(s string) bool {
	d := Digits(s)
	if len(d) != 11 {
		return false
	}
	if allEqual(d) {
		return false
	}
	return cpfCheckDigit(d[:9], 10) == d[9]-'0' &&
		cpfCheckDigit(d[:10], 11) == d[10]-'0'
}

// cpfCheckDigit runs one weighted pass: weights start at startWeight
// and decrease to 2.
func cpfCheckDigit(digits string, startWeight int) byte {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (startWeight - i)
	}
	r := (sum * 10) % 11
	if r == 10 {
		r = 0
	}
	return byte(r)
}

func allEqual(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// ValidCEP checks an 8-digit postal code, formatted or not.
func ValidCEP(s string) bool {
	d := Digits(s)
	return len(d) == 8 && d != "00000000"
}

// ValidPhone checks a national number with area code: 10 digits for
// landlines, 11 digits for mobiles (which start with 9 after the DDD).
func ValidPhone(s string) bool {
	d := Digits(s)
	if len(d) != 10 && len(d) != 11 {
		return false
	}
	if d[0] == '0' || d[1] == '0' {
		return false
	}
	if len(d) == 11 && d[2] != '9' {
		return false
	}
	return true
}

var federativeUnits = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true,
	"DF": true, "ES": true, "GO": true, "MA": true, "MT": true, "MS": true,
	"MG": true, "PA": true, "PB": true, "PR": true, "PE": true, "PI": true,
	"RJ": true, "RN": true, "RS": true, "RO": true, "RR": true, "SC": true,
	"SP": true, "SE": true, "TO": true,
}

// ValidUF checks a two-letter federative unit code, case-insensitively.
func ValidUF(s string) bool {
	return federativeUnits[strings.ToUpper(strings.TrimSpace(s))]
}
