package vakifbank

import "github.com/mstgnz/vpos/provider"

func init() {
	provider.Register(ID, New, "vakif")
}
