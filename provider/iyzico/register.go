package iyzico

import "github.com/mstgnz/vpos/provider"

// Register iyzico with the adapter registry
func init() {
	provider.Register(ID, New, "iyzipay")
}
