package bin

import (
	"github.com/mstgnz/vpos/provider"
)

// Heuristic guesses the brand from the first digit only. The bank stays
// unknown. Local scheme cards (leading 9) are assumed to be domestic.
func Heuristic(prefix, localCountry string) *provider.BinInfo {
	info := &provider.BinInfo{
		Bin:    prefix,
		Brand:  "Unknown",
		Type:   provider.CardUnknown,
		Source: "heuristic",
	}
	if prefix == "" {
		return info
	}

	switch prefix[0] {
	case '4':
		info.Brand = "Visa"
	case '5':
		info.Brand = "Mastercard"
	case '3':
		info.Brand = "Amex"
	case '6':
		info.Brand = "Discover"
	case '9':
		info.Brand = "Troy"
		info.Country = localCountry
	case '2':
		info.Brand = "Mir"
	}
	return info
}
