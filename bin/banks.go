package bin

import (
	"strings"
)

var turkishFold = strings.NewReplacer(
	"ı", "i", "İ", "i", "ş", "s", "Ş", "s", "ğ", "g", "Ğ", "g",
	"ü", "u", "Ü", "u", "ö", "o", "Ö", "o", "ç", "c", "Ç", "c",
)

// issuer name fragments, checked in order with more specific names first.
// Names are folded to lower case ASCII and padded with spaces.
var bankAliases = []struct {
	fragment string
	code     string
}{
	{"vakif katilim", "vakifkatilim"},
	{"vakifkatilim", "vakifkatilim"},
	{"ziraat katilim", "ziraatkatilim"},
	{"kuveyt turk", "kuveytturk"},
	{"kuveytturk", "kuveytturk"},
	{"turkiye finans", "turkiyefinans"},
	{"albaraka", "albaraka"},
	{"akbank", "akbank"},
	{"garanti", "garanti"},
	{"is bankasi", "isbank"},
	{"isbank", "isbank"},
	{"yapi kredi", "yapikredi"},
	{"yapi ve kredi", "yapikredi"},
	{"yapikredi", "yapikredi"},
	{"vakiflar", "vakifbank"},
	{"vakifbank", "vakifbank"},
	{"ziraat", "ziraat"},
	{"halk", "halkbank"},
	{"finansbank", "qnb"},
	{" qnb", "qnb"},
	{"denizbank", "denizbank"},
	{" teb ", "teb"},
	{"ekonomi bankasi", "teb"},
	{" ing ", "ingbank"},
	{"ingbank", "ingbank"},
	{"seker", "sekerbank"},
	{"anadolubank", "anadolubank"},
	{"odea", "odeabank"},
	{"hsbc", "hsbc"},
	{"fibabanka", "fibabanka"},
	{"alternatif", "alternatifbank"},
}

// NormalizeBankCode maps an issuer name as reported by BIN data sources to
// the gateway's bank code. Unknown names yield "".
func NormalizeBankCode(name string) string {
	n := strings.ToLower(turkishFold.Replace(name))
	n = strings.NewReplacer(".", " ", ",", " ", "-", " ").Replace(n)
	n = " " + strings.Join(strings.Fields(n), " ") + " "
	for _, alias := range bankAliases {
		if strings.Contains(n, alias.fragment) {
			return alias.code
		}
	}
	return ""
}

var defaultFamilies = map[string]string{
	"akbank":        "Axess",
	"garanti":       "Bonus",
	"isbank":        "Maximum",
	"yapikredi":     "World",
	"vakifbank":     "World",
	"anadolubank":   "World",
	"albaraka":      "World",
	"ziraat":        "Bankkart",
	"halkbank":      "Paraf",
	"qnb":           "CardFinans",
	"denizbank":     "Bonus",
	"teb":           "Bonus",
	"ingbank":       "Bonus",
	"sekerbank":     "Bonus",
	"odeabank":      "Bonus",
	"turkiyefinans": "Bonus",
	"hsbc":          "Advantage",
	"kuveytturk":    "SaglamKart",
	"fibabanka":     "Axess",
}

// DefaultFamily returns the loyalty program family a bank's credit cards
// belong to
func DefaultFamily(bankCode string) string {
	return defaultFamilies[bankCode]
}
