package kuveytturk

import "github.com/mstgnz/vpos/provider"

func init() {
	provider.Register(ID, New, "kuveyt")
}
