package nestpay

import "github.com/mstgnz/vpos/provider"

func init() {
	provider.Register(ID, New,
		"isbank", "halkbank", "ziraat", "teb", "anadolubank", "sekerbank", "ingbank", "asseco", "payten")
}
