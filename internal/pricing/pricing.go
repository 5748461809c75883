// Package pricing holds pure exchange and capacity computations over
// already-fetched pool state. Nothing here performs I/O.
package pricing

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"voucherPools/internal/amount"
	"voucherPools/internal/model"
)

// BasePriceIndex is the parity value of a quoter price index.
const BasePriceIndex = 10000

const ppmDenominator = 1_000_000

var baseIndex = big.NewInt(BasePriceIndex)

// Side is the part of a voucher snapshot needed to price it.
type Side struct {
	Decimals   uint8
	PriceIndex *big.Int
}

// SideOf extracts the pricing side of a snapshot; false when decimals are not loaded.
func SideOf(a model.AssetSnapshot) (Side, bool) {
	if a.Decimals == nil {
		return Side{}, false
	}
	return Side{Decimals: *a.Decimals, PriceIndex: a.PriceIndex}, true
}

// EffectivePriceIndex treats an unset (nil or zero) price index as parity.
func EffectivePriceIndex(raw *big.Int) *big.Int {
	if raw == nil || raw.Sign() == 0 {
		return new(big.Int).Set(baseIndex)
	}
	return new(big.Int).Set(raw)
}

// ExchangeRate is priceIndex(from) / priceIndex(to) as a float.
// Precision loss from the float division is accepted for quoting.
func ExchangeRate(from, to *big.Int) float64 {
	num, _ := new(big.Float).SetInt(EffectivePriceIndex(from)).Float64()
	den, _ := new(big.Float).SetInt(EffectivePriceIndex(to)).Float64()
	return num / den
}

// Convert expresses a decimal amount of `from` in units of `to`.
func Convert(input string, from, to Side) (model.TokenValue, error) {
	raw, err := amount.Parse(input, from.Decimals)
	if err != nil {
		return model.TokenValue{}, err
	}
	return ConvertRaw(raw, from, to)
}

// ConvertRaw is Convert for an amount already in raw `from` units.
func ConvertRaw(raw *big.Int, from, to Side) (model.TokenValue, error) {
	if raw == nil || raw.Sign() < 0 {
		return model.TokenValue{}, fmt.Errorf("%w: negative or missing amount", model.ErrInvalidAmount)
	}
	value := amount.ToFloat(raw, from.Decimals) * ExchangeRate(from.PriceIndex, to.PriceIndex)
	out, err := amount.FromFloat(value, to.Decimals)
	if err != nil {
		return model.TokenValue{}, err
	}
	return amount.NewTokenValue(out, to.Decimals), nil
}

// SwapCapacity is max(0, limit - poolBalance); nil when either input is not loaded.
func SwapCapacity(limit, poolBalance *big.Int) *big.Int {
	if limit == nil || poolBalance == nil {
		return nil
	}
	capacity := new(big.Int).Sub(limit, poolBalance)
	if capacity.Sign() < 0 {
		capacity.SetInt64(0)
	}
	return capacity
}

// HoldingInDefaultUnits is the pool balance valued in the pool's reference unit.
func HoldingInDefaultUnits(a model.AssetSnapshot) (float64, bool) {
	if a.PoolBalance == nil {
		return 0, false
	}
	return a.PoolBalance.Value * indexRatio(a.PriceIndex), true
}

// LimitInDefaultUnits is the limit valued in the pool's reference unit.
func LimitInDefaultUnits(a model.AssetSnapshot) (float64, bool) {
	if a.Limit == nil {
		return 0, false
	}
	return a.Limit.Value * indexRatio(a.PriceIndex), true
}

// AvailableCreditInDefaultUnits is limit minus holding, both in reference units.
func AvailableCreditInDefaultUnits(a model.AssetSnapshot) (float64, bool) {
	limit, ok := LimitInDefaultUnits(a)
	if !ok {
		return 0, false
	}
	holding, ok := HoldingInDefaultUnits(a)
	if !ok {
		return 0, false
	}
	return limit - holding, true
}

// CapacityOf summarizes a loaded voucher's limit usage, or nil when the
// limit or pool balance is missing.
func CapacityOf(a model.AssetSnapshot) *model.Capacity {
	holding, ok := HoldingInDefaultUnits(a)
	if !ok {
		return nil
	}
	limit, ok := LimitInDefaultUnits(a)
	if !ok {
		return nil
	}
	credit, _ := AvailableCreditInDefaultUnits(a)
	return &model.Capacity{
		FillPercentage:  FillPercentage(a.Limit.Raw, a.PoolBalance.Raw),
		Holding:         holding,
		Limit:           limit,
		AvailableCredit: credit,
	}
}

// FillPercentage is the remaining headroom (limit - balance) / limit * 100,
// zero for an unset limit.
func FillPercentage(limit, poolBalance *big.Int) float64 {
	if limit == nil || poolBalance == nil || limit.Sign() == 0 {
		return 0
	}
	headroom := new(big.Rat).SetFrac(new(big.Int).Sub(limit, poolBalance), limit)
	headroom.Mul(headroom, big.NewRat(100, 1))
	pct, _ := headroom.Float64()
	return pct
}

// SortMostEmptyFirst orders vouchers by ascending poolBalance/limit.
// An undefined ratio (limit zero or not loaded) sorts first; two undefined
// ratios compare equal so their relative order is kept.
func SortMostEmptyFirst(vouchers []model.AssetSnapshot) {
	sort.SliceStable(vouchers, func(i, j int) bool {
		ri, rj := fillRatio(vouchers[i]), fillRatio(vouchers[j])
		switch {
		case math.IsNaN(ri) && math.IsNaN(rj):
			return false
		case math.IsNaN(ri):
			return true
		case math.IsNaN(rj):
			return false
		}
		return ri < rj
	})
}

// ApplyFee deducts a parts-per-million fee from an output amount.
func ApplyFee(out, feePpm *big.Int) *big.Int {
	if out == nil {
		return nil
	}
	if feePpm == nil || feePpm.Sign() == 0 {
		return new(big.Int).Set(out)
	}
	fee := new(big.Int).Mul(out, feePpm)
	fee.Quo(fee, big.NewInt(ppmDenominator))
	return fee.Sub(out, fee)
}

func fillRatio(a model.AssetSnapshot) float64 {
	if a.Limit == nil || a.PoolBalance == nil || a.Limit.Raw.Sign() == 0 {
		return math.NaN()
	}
	ratio, _ := new(big.Rat).SetFrac(a.PoolBalance.Raw, a.Limit.Raw).Float64()
	return ratio
}

func indexRatio(raw *big.Int) float64 {
	idx, _ := new(big.Float).SetInt(EffectivePriceIndex(raw)).Float64()
	return idx / BasePriceIndex
}
