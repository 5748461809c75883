package snapshot

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger/ledgertest"
	"voucherPools/internal/model"
)

var (
	poolAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	limiterAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	quoterAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	viewerAddr   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	tokenA       = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	tokenB       = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func newFakePool(t *testing.T) *ledgertest.Fake {
	t.Helper()
	fake := ledgertest.New(ownerAddr)

	fake.Stub(poolAddr, contracts.MethodOwner, nil, ownerAddr)
	fake.Stub(poolAddr, contracts.MethodName, nil, "Kilifi Pool")
	fake.Stub(poolAddr, contracts.MethodSymbol, nil, "KLF")
	fake.Stub(poolAddr, contracts.MethodQuoter, nil, quoterAddr)
	fake.Stub(poolAddr, contracts.MethodFeePpm, nil, big.NewInt(10_000))
	fake.Stub(poolAddr, contracts.MethodFeeAddress, nil, ownerAddr)
	fake.Stub(poolAddr, contracts.MethodTokenLimiter, nil, limiterAddr)
	fake.Stub(poolAddr, contracts.MethodTokenRegistry, nil, registryAddr)

	fake.Stub(registryAddr, contracts.MethodEntryCount, nil, big.NewInt(2))
	fake.Stub(registryAddr, contracts.MethodEntry, []interface{}{big.NewInt(0)}, tokenA)
	fake.Stub(registryAddr, contracts.MethodEntry, []interface{}{big.NewInt(1)}, tokenB)

	fake.Stub(tokenA, contracts.MethodSymbol, nil, "SRF")
	fake.Stub(tokenA, contracts.MethodName, nil, "Sarafu")
	fake.Stub(tokenA, contracts.MethodDecimals, nil, uint8(6))
	fake.Stub(tokenA, contracts.MethodAllowance, []interface{}{viewerAddr, poolAddr}, big.NewInt(5))
	fake.Stub(quoterAddr, contracts.MethodPriceIndex, []interface{}{tokenA}, big.NewInt(20_000))
	fake.Stub(tokenA, contracts.MethodBalanceOf, []interface{}{viewerAddr}, big.NewInt(7_000_000))
	fake.Stub(tokenA, contracts.MethodBalanceOf, []interface{}{poolAddr}, big.NewInt(400_000_000))
	fake.Stub(limiterAddr, contracts.MethodLimitOf, []interface{}{tokenA, poolAddr}, big.NewInt(1_000_000_000))

	fake.Stub(tokenB, contracts.MethodSymbol, nil, "BRK")
	fake.Stub(tokenB, contracts.MethodName, nil, "Broken")
	fake.StubErr(tokenB, contracts.MethodDecimals, nil, errors.New("execution reverted"))
	fake.Stub(quoterAddr, contracts.MethodPriceIndex, []interface{}{tokenB}, big.NewInt(0))
	fake.Stub(tokenB, contracts.MethodBalanceOf, []interface{}{poolAddr}, big.NewInt(1))
	fake.Stub(limiterAddr, contracts.MethodLimitOf, []interface{}{tokenB, poolAddr}, big.NewInt(1))

	return fake
}

func newAggregator(t *testing.T, fake *ledgertest.Fake, cache *VoucherCache) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(fake, cache, nil, nil)
	require.NoError(t, err)
	return agg
}

func TestSnapshotWithViewer(t *testing.T) {
	fake := newFakePool(t)
	agg := newAggregator(t, fake, nil)
	viewer := viewerAddr

	snap, err := agg.Snapshot(context.Background(), poolAddr, &viewer)
	require.NoError(t, err)

	assert.Equal(t, []int{8, 2, 16}, fake.BatchSizes, "pool fields, entries, then 8 fields per voucher")
	assert.Equal(t, "Kilifi Pool", snap.Pool.Name)
	assert.Equal(t, registryAddr, snap.Pool.Registry)
	assert.Equal(t, "10000", snap.Pool.FeePpm.String())
	require.Len(t, snap.Vouchers, 2)
	assert.Equal(t, tokenA, snap.Vouchers[0].Address)
	assert.Equal(t, tokenB, snap.Vouchers[1].Address)

	a := snap.Vouchers[0]
	require.NotNil(t, a.Decimals)
	assert.Equal(t, uint8(6), *a.Decimals)
	assert.Equal(t, "SRF", a.Symbol)
	assert.Equal(t, "20000", a.PriceIndex.String())
	assert.Equal(t, "5", a.Allowance.Raw.String())
	assert.Equal(t, "7.00", a.UserBalance.Formatted)
	assert.Equal(t, "400000000", a.PoolBalance.Raw.String())
	assert.Equal(t, "1000000000", a.Limit.Raw.String())
	require.NotNil(t, a.SwapLimit)
	assert.Equal(t, "600000000", a.SwapLimit.Raw.String())
	assert.Equal(t, "600.00", a.SwapLimit.Formatted)
	assert.Equal(t, "400.00", a.PoolBalance.Formatted)
	assert.Equal(t, "1000.00", a.Limit.Formatted)
	assert.Equal(t, "0.000005", a.Allowance.Units)
	assert.Equal(t, "0.00000500", a.Allowance.Formatted)

	require.NotNil(t, a.Capacity)
	assert.InDelta(t, 60.0, a.Capacity.FillPercentage, 1e-9)
	assert.InDelta(t, 800.0, a.Capacity.Holding, 1e-9)
	assert.InDelta(t, 2000.0, a.Capacity.Limit, 1e-9)
	assert.InDelta(t, 1200.0, a.Capacity.AvailableCredit, 1e-9)
}

func TestSnapshotDisplayTruncates(t *testing.T) {
	fake := newFakePool(t)
	viewer := viewerAddr
	fake.Stub(tokenA, contracts.MethodBalanceOf, []interface{}{viewerAddr}, big.NewInt(3_999_999))
	agg := newAggregator(t, fake, nil)

	snap, err := agg.Snapshot(context.Background(), poolAddr, &viewer)
	require.NoError(t, err)
	a, ok := snap.Voucher(tokenA)
	require.True(t, ok)
	assert.Equal(t, "3.99", a.UserBalance.Formatted)
	assert.Equal(t, "3.999999", a.UserBalance.Units)
}

func TestSnapshotMissingDecimalsLeavesValuesUndefined(t *testing.T) {
	fake := newFakePool(t)
	agg := newAggregator(t, fake, nil)

	snap, err := agg.Snapshot(context.Background(), poolAddr, nil)
	require.NoError(t, err)

	b, ok := snap.Voucher(tokenB)
	require.True(t, ok)
	assert.False(t, b.Loaded())
	assert.Equal(t, "BRK", b.Symbol)
	assert.Nil(t, b.PoolBalance)
	assert.Nil(t, b.Limit)
	assert.Nil(t, b.SwapLimit)
	assert.Nil(t, b.Allowance)
	assert.Equal(t, "0", b.PriceIndex.String(), "raw index is kept; parity applies at pricing time")
}

func TestSnapshotWithoutViewerOmitsViewerCalls(t *testing.T) {
	fake := newFakePool(t)
	agg := newAggregator(t, fake, nil)

	snap, err := agg.Snapshot(context.Background(), poolAddr, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{8, 2, 12}, fake.BatchSizes)
	for _, call := range fake.Reads {
		assert.NotEqual(t, contracts.MethodAllowance, call.Method)
		if call.Method == contracts.MethodBalanceOf {
			assert.Equal(t, []interface{}{poolAddr}, call.Args)
		}
	}
	a, _ := snap.Voucher(tokenA)
	assert.Nil(t, a.UserBalance)
	assert.Nil(t, a.Allowance)
	assert.NotNil(t, a.PoolBalance)
}

func TestSnapshotBatchFailure(t *testing.T) {
	fake := newFakePool(t)
	fake.BatchErr = errors.New("connection reset")
	agg := newAggregator(t, fake, nil)

	snap, err := agg.Snapshot(context.Background(), poolAddr, nil)
	assert.Nil(t, snap)

	var aggErr *model.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, stagePool, aggErr.Stage)
	assert.ErrorIs(t, err, fake.BatchErr)
}

func TestSnapshotMalformedBatch(t *testing.T) {
	fake := newFakePool(t)
	fake.ShortBatch = true
	agg := newAggregator(t, fake, nil)

	_, err := agg.Snapshot(context.Background(), poolAddr, nil)
	var aggErr *model.AggregationError
	assert.ErrorAs(t, err, &aggErr)
}

func TestSnapshotPoolFieldErrorFails(t *testing.T) {
	fake := newFakePool(t)
	fake.StubErr(poolAddr, contracts.MethodTokenLimiter, nil, errors.New("execution reverted"))
	agg := newAggregator(t, fake, nil)

	_, err := agg.Snapshot(context.Background(), poolAddr, nil)
	var aggErr *model.AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, stagePool, aggErr.Stage)
}

func TestSnapshotUsesCachedDecimals(t *testing.T) {
	fake := newFakePool(t)
	cache := NewVoucherCache()
	agg := newAggregator(t, fake, cache)

	_, err := agg.Snapshot(context.Background(), poolAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	fake.StubErr(tokenA, contracts.MethodDecimals, nil, errors.New("rate limited"))
	snap, err := agg.Snapshot(context.Background(), poolAddr, nil)
	require.NoError(t, err)

	a, _ := snap.Voucher(tokenA)
	require.NotNil(t, a.Decimals)
	assert.Equal(t, uint8(6), *a.Decimals)
	assert.NotNil(t, a.PoolBalance)
}

func TestDescribeCachesVoucher(t *testing.T) {
	fake := newFakePool(t)
	agg := newAggregator(t, fake, nil)

	voucher, err := agg.Describe(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, "SRF", voucher.Symbol)
	assert.Equal(t, uint8(6), voucher.Decimals)

	_, err = agg.Describe(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, fake.BatchSizes, "second lookup is served from cache")

	_, err = agg.Describe(context.Background(), tokenB)
	assert.Error(t, err)
}
