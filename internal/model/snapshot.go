package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenValue carries an on-chain amount with its presentation forms.
// Raw is authoritative. Formatted is the display string (two places, three
// significant figures for dust), Units the exact decimal, Value a float for charts.
type TokenValue struct {
	Raw       *big.Int `json:"raw"`
	Formatted string   `json:"formatted"`
	Units     string   `json:"units"`
	Value     float64  `json:"value"`
}

// Capacity summarizes how full a voucher's slot in the pool is, valued in the
// pool's reference unit through the price index.
type Capacity struct {
	FillPercentage  float64 `json:"fill_percentage"`
	Holding         float64 `json:"holding"`
	Limit           float64 `json:"limit"`
	AvailableCredit float64 `json:"available_credit"`
}

// AssetSnapshot is the per-voucher state of a pool as seen by a viewer.
// Nil monetary fields mean the value was not loaded and must not be read as zero.
type AssetSnapshot struct {
	Address     common.Address `json:"address"`
	Symbol      string         `json:"symbol,omitempty"`
	Name        string         `json:"name,omitempty"`
	Decimals    *uint8         `json:"decimals,omitempty"`
	PriceIndex  *big.Int       `json:"price_index,omitempty"`
	Allowance   *TokenValue    `json:"allowance,omitempty"`
	UserBalance *TokenValue    `json:"user_balance,omitempty"`
	PoolBalance *TokenValue    `json:"pool_balance,omitempty"`
	Limit       *TokenValue    `json:"limit,omitempty"`
	SwapLimit   *TokenValue    `json:"swap_limit,omitempty"`
	Capacity    *Capacity      `json:"capacity,omitempty"`
}

// Loaded reports whether decimals were resolved, which gates every monetary field.
func (a AssetSnapshot) Loaded() bool {
	return a.Decimals != nil
}

// PoolSnapshot is one consistent view of a pool and its member vouchers.
type PoolSnapshot struct {
	Pool     Pool            `json:"pool"`
	Viewer   *common.Address `json:"viewer,omitempty"`
	Vouchers []AssetSnapshot `json:"vouchers"`
}

// Voucher returns the snapshot for the given voucher address.
func (s *PoolSnapshot) Voucher(address common.Address) (AssetSnapshot, bool) {
	for _, v := range s.Vouchers {
		if v.Address == address {
			return v, true
		}
	}
	return AssetSnapshot{}, false
}
