package pricing

import (
	"fmt"
	"math/big"

	"voucherPools/internal/amount"
	"voucherPools/internal/model"
)

// Quote is the priced outcome of swapping an amount of one voucher for another.
type Quote struct {
	In              model.TokenValue  `json:"in"`
	Out             model.TokenValue  `json:"out"`
	OutAfterFee     model.TokenValue  `json:"out_after_fee"`
	Rate            float64           `json:"rate"`
	MaxIn           *model.TokenValue `json:"max_in,omitempty"`
	ExceedsCapacity bool              `json:"exceeds_capacity"`
}

// QuoteSwap prices a swap of input units of `from` into `to` inside a pool.
func QuoteSwap(input string, from, to model.AssetSnapshot, feePpm *big.Int) (Quote, error) {
	fromSide, ok := SideOf(from)
	if !ok {
		return Quote{}, fmt.Errorf("decimals not loaded for %s", from.Address.Hex())
	}
	toSide, ok := SideOf(to)
	if !ok {
		return Quote{}, fmt.Errorf("decimals not loaded for %s", to.Address.Hex())
	}

	raw, err := amount.Parse(input, fromSide.Decimals)
	if err != nil {
		return Quote{}, err
	}
	out, err := ConvertRaw(raw, fromSide, toSide)
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{
		In:          amount.NewTokenValue(raw, fromSide.Decimals),
		Out:         out,
		OutAfterFee: amount.NewTokenValue(ApplyFee(out.Raw, feePpm), toSide.Decimals),
		Rate:        ExchangeRate(fromSide.PriceIndex, toSide.PriceIndex),
	}

	maxIn, err := MaxSwapInput(from, to)
	if err == nil && maxIn != nil {
		value := amount.NewTokenValue(maxIn, fromSide.Decimals)
		quote.MaxIn = &value
	}
	if to.SwapLimit != nil && out.Raw.Cmp(to.SwapLimit.Raw) > 0 {
		quote.ExceedsCapacity = true
	}
	return quote, nil
}

// MaxSwapInput is the largest raw amount of `from` that fits both the viewer's
// balance and the remaining capacity of `to`, or nil when either is not loaded.
func MaxSwapInput(from, to model.AssetSnapshot) (*big.Int, error) {
	fromSide, ok := SideOf(from)
	if !ok || from.UserBalance == nil {
		return nil, nil
	}
	toSide, ok := SideOf(to)
	if !ok || to.SwapLimit == nil {
		return nil, nil
	}

	capacity := to.SwapLimit.Raw
	if capacity.Sign() < 0 {
		capacity = new(big.Int)
	}
	capacityInFrom, err := ConvertRaw(capacity, toSide, fromSide)
	if err != nil {
		return nil, err
	}
	if from.UserBalance.Raw.Cmp(capacityInFrom.Raw) < 0 {
		return new(big.Int).Set(from.UserBalance.Raw), nil
	}
	return capacityInFrom.Raw, nil
}
