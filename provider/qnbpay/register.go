package qnbpay

import "github.com/mstgnz/vpos/provider"

func init() {
	provider.Register(ID, New, "qnb", "finansbank", "payfor")
}
