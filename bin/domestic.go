package bin

import (
	"fmt"
	"strings"

	"github.com/mstgnz/vpos/infra/config"
	"github.com/mstgnz/vpos/provider"
)

// IsDomestic reports whether the card was issued in localCountry
func IsDomestic(info *provider.BinInfo, localCountry string) bool {
	return info != nil && info.Country != "" && strings.EqualFold(info.Country, localCountry)
}

// AllowedCurrency rejects charging a domestic card in anything but the
// local currency. Foreign and unclassified cards may use any currency.
func AllowedCurrency(info *provider.BinInfo, currency string, cfg *config.AppConfig) error {
	if IsDomestic(info, cfg.LocalCountry) && !strings.EqualFold(currency, cfg.LocalCurrency) {
		return provider.NewError(provider.KindValidation, "DOMESTIC_CARD_CURRENCY",
			fmt.Sprintf("cards issued in %s can only be charged in %s", cfg.LocalCountry, cfg.LocalCurrency))
	}
	return nil
}
