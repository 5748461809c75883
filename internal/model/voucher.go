package model

import "github.com/ethereum/go-ethereum/common"

// Voucher captures ERC20 identity of a community currency.
type Voucher struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
}
