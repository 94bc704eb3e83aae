package brdoc

import "strings"

// Masks format progressively, like an input mask on a form field:
// partial input gets as much of the pattern as it can fill, and
// extra digits are dropped. '#' marks a digit slot.
const (
	cpfPattern      = "###.###.###-##"
	cepPattern      = "#####-###"
	landlinePattern = "(##) ####-####"
	mobilePattern   = "(##) #####-####"
)

// MaskCPF formats a CPF as 000.000.000-00.
func MaskCPF(s string) string {
	return applyMask(Digits(s), cpfPattern)
}

// MaskCEP formats a postal code as 00000-000.
func MaskCEP(s string) string {
	return applyMask(Digits(s), cepPattern)
}

// MaskPhone formats a phone as (00) 0000-0000 or (00) 00000-0000,
// choosing the mobile pattern once an eleventh digit is typed.
func MaskPhone(s string) string {
	d := Digits(s)
	if len(d) > 10 {
		return applyMask(d, mobilePattern)
	}
	return applyMask(d, landlinePattern)
}

func applyMask(digits, pattern string) string {
	if digits == "" {
		return ""
	}
	var b strings.Builder
	di := 0
	for i := 0; i < len(pattern) && di < len(digits); i++ {
		if pattern[i] == '#' {
			b.WriteByte(digits[di])
			di++
			continue
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}
