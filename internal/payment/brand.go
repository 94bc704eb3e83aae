package payment

import (
	"strconv"

	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/model"
)

// binRange matches PANs whose first len(lo) digits fall in [lo, hi].
type binRange struct {
	lo, hi string
	brand  model.CardBrand
}

// brandTable is checked in order. Domestic brands come first because
// their BINs sit inside ranges the international brands also claim
// (Elo inside Visa and Discover, Hipercard inside Diners).
var brandTable = []binRange{
	// Elo
	{"401178", "401179", model.BrandElo},
	{"431274", "431274", model.BrandElo},
	{"438935", "438935", model.BrandElo},
	{"451416", "451416", model.BrandElo},
	{"457393", "457393", model.BrandElo},
	{"457631", "457632", model.BrandElo},
	{"504175", "504175", model.BrandElo},
	{"506699", "506778", model.BrandElo},
	{"509000", "509999", model.BrandElo},
	{"627780", "627780", model.BrandElo},
	{"636297", "636297", model.BrandElo},
	{"636368", "636368", model.BrandElo},
	{"650031", "650033", model.BrandElo},
	{"650035", "650051", model.BrandElo},
	{"650405", "650439", model.BrandElo},
	{"650485", "650538", model.BrandElo},
	{"650541", "650598", model.BrandElo},
	{"650700", "650718", model.BrandElo},
	{"650720", "650727", model.BrandElo},
	{"650901", "650920", model.BrandElo},
	{"651652", "651679", model.BrandElo},
	{"655000", "655019", model.BrandElo},
	{"655021", "655058", model.BrandElo},

	// Hipercard
	{"606282", "606282", model.BrandHipercard},
	{"384100", "384100", model.BrandHipercard},
	{"384140", "384140", model.BrandHipercard},
	{"384160", "384160", model.BrandHipercard},

	{"34", "34", model.BrandAmex},
	{"37", "37", model.BrandAmex},

	{"300", "305", model.BrandDiners},
	{"36", "36", model.BrandDiners},
	{"38", "39", model.BrandDiners},

	{"6011", "6011", model.BrandDiscover},
	{"622126", "622925", model.BrandDiscover},
	{"644", "649", model.BrandDiscover},
	{"65", "65", model.BrandDiscover},

	{"3528", "3589", model.BrandJCB},

	{"51", "55", model.BrandMastercard},
	{"2221", "2720", model.BrandMastercard},

	{"4", "4", model.BrandVisa},
}

// DetectBrand derives the card brand from the PAN's leading digits.
// Formatting characters are ignored; unknown prefixes yield BrandUnknown.
func DetectBrand(pan string) model.CardBrand {
	digits := brdoc.Digits(pan)
	for _, r := range brandTable {
		n := len(r.lo)
		if len(digits) < n {
			continue
		}
		prefix, err := strconv.Atoi(digits[:n])
		if err != nil {
			continue
		}
		lo, _ := strconv.Atoi(r.lo)
		hi, _ := strconv.Atoi(r.hi)
		if prefix >= lo && prefix <= hi {
			return r.brand
		}
	}
	return model.BrandUnknown
}
