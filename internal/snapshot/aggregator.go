// Package snapshot aggregates a pool's on-chain state into one consistent view.
package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voucherPools/internal/amount"
	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/metrics"
	"voucherPools/internal/model"
	"voucherPools/internal/pricing"
)

const (
	stagePool     = "pool"
	stageMembers  = "members"
	stageVouchers = "vouchers"
)

// Per-voucher fields, queried in this order for every member.
const (
	fieldSymbol      = "symbol"
	fieldName        = "name"
	fieldDecimals    = "decimals"
	fieldAllowance   = "allowance"
	fieldPriceIndex  = "priceIndex"
	fieldUserBalance = "userBalance"
	fieldPoolBalance = "poolBalance"
	fieldLimit       = "limit"
)

// Aggregator builds pool snapshots from batched reads.
type Aggregator struct {
	reader  ledger.Reader
	abis    *contracts.Set
	cache   *VoucherCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewAggregator returns an Aggregator. A nil cache gets a private one.
func NewAggregator(reader ledger.Reader, cache *VoucherCache, m *metrics.Metrics, logger *zap.Logger) (*Aggregator, error) {
	if reader == nil {
		return nil, fmt.Errorf("ledger reader is nil")
	}
	abis, err := contracts.ABIs()
	if err != nil {
		return nil, fmt.Errorf("parse abis: %w", err)
	}
	if cache == nil {
		cache = NewVoucherCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{reader: reader, abis: abis, cache: cache, metrics: m, logger: logger}, nil
}

// Snapshot reads the pool, its members and every member's state. Viewer
// dependent fields are only requested when viewer is not nil.
func (a *Aggregator) Snapshot(ctx context.Context, poolAddress common.Address, viewer *common.Address) (*model.PoolSnapshot, error) {
	start := time.Now()
	snap, err := a.snapshot(ctx, poolAddress, viewer)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	a.metrics.Snapshot(outcome, time.Since(start))
	return snap, err
}

func (a *Aggregator) snapshot(ctx context.Context, poolAddress common.Address, viewer *common.Address) (*model.PoolSnapshot, error) {
	pool, err := a.Pool(ctx, poolAddress)
	if err != nil {
		return nil, err
	}

	members, err := a.Members(ctx, pool.Registry)
	if err != nil {
		return nil, err
	}

	vouchers, err := a.vouchers(ctx, pool, members, viewer)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("snapshot built",
		zap.String("pool", pool.Address.Hex()),
		zap.Int("vouchers", len(vouchers)),
		zap.Bool("viewer", viewer != nil),
	)

	return &model.PoolSnapshot{Pool: pool, Viewer: viewer, Vouchers: vouchers}, nil
}

// Pool reads the pool's fixed fields in one round trip.
func (a *Aggregator) Pool(ctx context.Context, poolAddress common.Address) (model.Pool, error) {
	call := func(method string) ledger.Call {
		return ledger.Call{Address: poolAddress, ABI: a.abis.SwapPool, Method: method}
	}
	batch := ledger.NewBatch()
	for _, method := range []string{
		contracts.MethodOwner,
		contracts.MethodName,
		contracts.MethodSymbol,
		contracts.MethodQuoter,
		contracts.MethodFeePpm,
		contracts.MethodFeeAddress,
		contracts.MethodTokenLimiter,
		contracts.MethodTokenRegistry,
	} {
		batch.Add(method, call(method))
	}
	a.metrics.Batch(stagePool, batch.Len())

	results, err := batch.Exec(ctx, a.reader)
	if err != nil {
		return model.Pool{}, &model.AggregationError{Stage: stagePool, Err: err}
	}

	pool := model.Pool{Address: poolAddress}
	decoders := []func() error{
		func() (err error) { pool.Owner, err = results.Address(contracts.MethodOwner); return },
		func() (err error) { pool.Name, err = results.String(contracts.MethodName); return },
		func() (err error) { pool.Symbol, err = results.String(contracts.MethodSymbol); return },
		func() (err error) { pool.Quoter, err = results.Address(contracts.MethodQuoter); return },
		func() (err error) { pool.FeePpm, err = results.BigInt(contracts.MethodFeePpm); return },
		func() (err error) { pool.FeeAddress, err = results.Address(contracts.MethodFeeAddress); return },
		func() (err error) { pool.Limiter, err = results.Address(contracts.MethodTokenLimiter); return },
		func() (err error) { pool.Registry, err = results.Address(contracts.MethodTokenRegistry); return },
	}
	for _, decode := range decoders {
		if err := decode(); err != nil {
			return model.Pool{}, &model.AggregationError{Stage: stagePool, Err: err}
		}
	}
	return pool, nil
}

// Members enumerates the registry's vouchers in insertion order.
func (a *Aggregator) Members(ctx context.Context, registry common.Address) ([]common.Address, error) {
	values, err := a.reader.Read(ctx, ledger.Call{Address: registry, ABI: a.abis.TokenIndex, Method: contracts.MethodEntryCount})
	if err != nil {
		return nil, &model.AggregationError{Stage: stageMembers, Err: err}
	}
	if len(values) == 0 {
		return nil, &model.AggregationError{Stage: stageMembers, Err: fmt.Errorf("empty entryCount result")}
	}
	count, err := ledger.AsBigInt(values[0])
	if err != nil {
		return nil, &model.AggregationError{Stage: stageMembers, Err: err}
	}
	if !count.IsInt64() {
		return nil, &model.AggregationError{Stage: stageMembers, Err: fmt.Errorf("entry count overflow: %s", count)}
	}

	n := int(count.Int64())
	batch := ledger.NewBatch()
	for i := 0; i < n; i++ {
		batch.Add(entryKey(i), ledger.Call{
			Address: registry,
			ABI:     a.abis.TokenIndex,
			Method:  contracts.MethodEntry,
			Args:    []interface{}{big.NewInt(int64(i))},
		})
	}
	a.metrics.Batch(stageMembers, batch.Len())

	results, err := batch.Exec(ctx, a.reader)
	if err != nil {
		return nil, &model.AggregationError{Stage: stageMembers, Err: err}
	}

	members := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		address, err := results.Address(entryKey(i))
		if err != nil {
			return nil, &model.AggregationError{Stage: stageMembers, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		members = append(members, address)
	}
	return members, nil
}

// Describe returns a voucher's identity, reading it only on a cache miss.
func (a *Aggregator) Describe(ctx context.Context, token common.Address) (model.Voucher, error) {
	if voucher, ok := a.cache.Get(token); ok {
		return voucher, nil
	}
	batch := ledger.NewBatch()
	for _, method := range []string{contracts.MethodSymbol, contracts.MethodName, contracts.MethodDecimals} {
		batch.Add(method, ledger.Call{Address: token, ABI: a.abis.ERC20, Method: method})
	}
	results, err := batch.Exec(ctx, a.reader)
	if err != nil {
		return model.Voucher{}, &model.AggregationError{Stage: stageVouchers, Err: err}
	}
	decimals, err := results.Uint8(contracts.MethodDecimals)
	if err != nil {
		return model.Voucher{}, fmt.Errorf("voucher %s decimals: %w", token.Hex(), err)
	}
	voucher := model.Voucher{Address: token, Decimals: decimals}
	voucher.Symbol, _ = results.String(contracts.MethodSymbol)
	voucher.Name, _ = results.String(contracts.MethodName)
	a.cache.Set(voucher)
	return voucher, nil
}

func (a *Aggregator) vouchers(ctx context.Context, pool model.Pool, members []common.Address, viewer *common.Address) ([]model.AssetSnapshot, error) {
	batch := ledger.NewBatch()
	for _, token := range members {
		erc20 := func(method string, args ...interface{}) ledger.Call {
			return ledger.Call{Address: token, ABI: a.abis.ERC20, Method: method, Args: args}
		}
		batch.Add(ledger.Key(fieldSymbol, token), erc20(contracts.MethodSymbol))
		batch.Add(ledger.Key(fieldName, token), erc20(contracts.MethodName))
		batch.Add(ledger.Key(fieldDecimals, token), erc20(contracts.MethodDecimals))
		if viewer != nil {
			batch.Add(ledger.Key(fieldAllowance, token), erc20(contracts.MethodAllowance, *viewer, pool.Address))
		}
		batch.Add(ledger.Key(fieldPriceIndex, token), ledger.Call{
			Address: pool.Quoter,
			ABI:     a.abis.Quoter,
			Method:  contracts.MethodPriceIndex,
			Args:    []interface{}{token},
		})
		if viewer != nil {
			batch.Add(ledger.Key(fieldUserBalance, token), erc20(contracts.MethodBalanceOf, *viewer))
		}
		batch.Add(ledger.Key(fieldPoolBalance, token), erc20(contracts.MethodBalanceOf, pool.Address))
		batch.Add(ledger.Key(fieldLimit, token), ledger.Call{
			Address: pool.Limiter,
			ABI:     a.abis.Limiter,
			Method:  contracts.MethodLimitOf,
			Args:    []interface{}{token, pool.Address},
		})
	}
	a.metrics.Batch(stageVouchers, batch.Len())

	results, err := batch.Exec(ctx, a.reader)
	if err != nil {
		return nil, &model.AggregationError{Stage: stageVouchers, Err: err}
	}

	out := make([]model.AssetSnapshot, 0, len(members))
	for _, token := range members {
		out = append(out, a.decodeVoucher(token, results))
	}
	return out, nil
}

func (a *Aggregator) decodeVoucher(token common.Address, results ledger.Results) model.AssetSnapshot {
	asset := model.AssetSnapshot{Address: token}
	cached, hasCached := a.cache.Get(token)

	if symbol, err := results.String(ledger.Key(fieldSymbol, token)); err == nil {
		asset.Symbol = symbol
	} else if hasCached {
		asset.Symbol = cached.Symbol
	}
	if name, err := results.String(ledger.Key(fieldName, token)); err == nil {
		asset.Name = name
	} else if hasCached {
		asset.Name = cached.Name
	}

	if decimals, err := results.Uint8(ledger.Key(fieldDecimals, token)); err == nil {
		asset.Decimals = &decimals
		if !hasCached {
			a.cache.Set(model.Voucher{Address: token, Symbol: asset.Symbol, Name: asset.Name, Decimals: decimals})
		}
	} else if hasCached {
		decimals := cached.Decimals
		asset.Decimals = &decimals
	} else {
		a.logger.Debug("decimals unavailable", zap.String("voucher", token.Hex()), zap.Error(err))
	}

	if index, err := results.BigInt(ledger.Key(fieldPriceIndex, token)); err == nil {
		asset.PriceIndex = index
	}

	if asset.Decimals == nil {
		return asset
	}
	decimals := *asset.Decimals

	value := func(field string) *model.TokenValue {
		raw, err := results.BigInt(ledger.Key(field, token))
		if err != nil {
			return nil
		}
		v := amount.NewTokenValue(raw, decimals)
		return &v
	}
	asset.Allowance = value(fieldAllowance)
	asset.UserBalance = value(fieldUserBalance)
	asset.PoolBalance = value(fieldPoolBalance)
	asset.Limit = value(fieldLimit)

	if asset.Limit != nil && asset.PoolBalance != nil {
		capacity := amount.NewTokenValue(pricing.SwapCapacity(asset.Limit.Raw, asset.PoolBalance.Raw), decimals)
		asset.SwapLimit = &capacity
		asset.Capacity = pricing.CapacityOf(asset)
	}
	return asset
}

func entryKey(i int) string {
	return fmt.Sprintf("entry:%d", i)
}
