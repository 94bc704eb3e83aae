package shipping

import "coffee-checkout/internal/model"

// FallbackVersion identifies the fallback rate table. Bump it whenever
// the prices or lead times below change so logs and orders show which
// table a buyer was quoted from.
const FallbackVersion = "2024.1"

var fallbackQuotes = [...]model.ShippingOption{
	{
		ID:              "economy",
		CarrierService:  "PAC",
		DisplayName:     "Econômico (PAC)",
		Price:           1590,
		ETABusinessDays: 7,
	},
	{
		ID:              "express",
		CarrierService:  "SEDEX",
		DisplayName:     "Expresso (SEDEX)",
		Price:           2590,
		ETABusinessDays: 3,
	},
}

// FallbackQuotes returns a fresh copy of the fixed fallback options.
func FallbackQuotes() []model.ShippingOption {
	out := make([]model.ShippingOption, len(fallbackQuotes))
	copy(out, fallbackQuotes[:])
	return out
}
