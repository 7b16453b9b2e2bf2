package denizbank

import "github.com/mstgnz/vpos/provider"

func init() {
	provider.Register(ID, New, "deniz", "intervpos")
}
