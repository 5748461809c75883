package sequencer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/ledger/ledgertest"
	"voucherPools/internal/model"
)

var (
	wallet  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	poolA   = common.HexToAddress("0x0000000000000000000000000000000000000A00")
	tokenA  = common.HexToAddress("0x000000000000000000000000000000000000000A")
	tokenB  = common.HexToAddress("0x000000000000000000000000000000000000000b")
	limiter = common.HexToAddress("0x0000000000000000000000000000000000000C01")
	quoter  = common.HexToAddress("0x0000000000000000000000000000000000000C02")
	reg     = common.HexToAddress("0x0000000000000000000000000000000000000C03")
)

func testPool() model.Pool {
	return model.Pool{Address: poolA, Limiter: limiter, Quoter: quoter, Registry: reg}
}

func newSequencer(t *testing.T, fake *ledgertest.Fake, notes *[]Notification) *Sequencer {
	t.Helper()
	opts := Options{Policy: ledger.ReceiptPolicy{Confirmations: 2, RetryCount: 5}}
	if notes != nil {
		opts.OnProgress = func(n Notification) { *notes = append(*notes, n) }
	}
	s, err := New(fake, opts)
	require.NoError(t, err)
	return s
}

func TestSwapOrder(t *testing.T) {
	fake := ledgertest.New(wallet)
	var notes []Notification
	s := newSequencer(t, fake, &notes)

	res, err := s.Swap(context.Background(), SwapRequest{Pool: poolA, In: tokenA, Out: tokenB, Amount: big.NewInt(1000)})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, FlowSwap, res.Flow)

	assert.Equal(t, []string{"write:approve", "wait", "write:approve", "wait", "write:withdraw", "wait"}, fake.OpLog())
	require.Len(t, fake.Writes, 3)

	reset := fake.Writes[0]
	assert.Equal(t, tokenA, reset.Address)
	assert.Equal(t, []interface{}{poolA, new(big.Int)}, reset.Args)

	set := fake.Writes[1]
	assert.Equal(t, 0, set.Args[1].(*big.Int).Cmp(big.NewInt(1005)), "allowance carries the swap buffer")

	swap := fake.Writes[2]
	assert.Equal(t, poolA, swap.Address)
	assert.Equal(t, contracts.MethodSwap, swap.Method)
	assert.Equal(t, []interface{}{tokenB, tokenA, big.NewInt(1000)}, swap.Args)

	assert.Equal(t, fake.Waits[2], res.TxHash)
	for _, p := range fake.Policies {
		assert.Equal(t, uint64(2), p.Confirmations)
	}

	last := notes[len(notes)-1]
	assert.Equal(t, model.StatusSuccess, last.Status)
	assert.Equal(t, res.TxHash, last.TxHash)
	for _, n := range notes[:len(notes)-1] {
		assert.Equal(t, model.StatusLoading, n.Status)
	}
}

func TestDonateHasNoBuffer(t *testing.T) {
	fake := ledgertest.New(wallet)
	s := newSequencer(t, fake, nil)

	_, err := s.Donate(context.Background(), DonateRequest{Pool: poolA, Token: tokenA, Amount: big.NewInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, []string{"approve", "approve", "deposit"}, fake.WriteMethods())
	assert.Equal(t, 0, fake.Writes[1].Args[1].(*big.Int).Cmp(big.NewInt(1000)))
	assert.Equal(t, []interface{}{tokenA, big.NewInt(1000)}, fake.Writes[2].Args)
}

func TestAllowanceFailureSkipsExecute(t *testing.T) {
	fake := ledgertest.New(wallet)
	writes := 0
	fake.FailWrite = func(call ledger.Call) error {
		writes++
		if writes == 2 {
			return errors.New("user rejected")
		}
		return nil
	}
	var notes []Notification
	s := newSequencer(t, fake, &notes)

	_, err := s.Swap(context.Background(), SwapRequest{Pool: poolA, In: tokenA, Out: tokenB, Amount: big.NewInt(10)})
	var seqErr *model.SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, "set allowance", seqErr.Step)
	assert.Equal(t, []string{"approve"}, fake.WriteMethods())
	assert.NotContains(t, fake.OpLog(), "write:withdraw")

	last := notes[len(notes)-1]
	assert.Equal(t, model.StatusError, last.Status)
}

func TestRevertedReceiptAborts(t *testing.T) {
	fake := ledgertest.New(wallet)
	fake.Revert = func(hash common.Hash) bool { return hash == common.BigToHash(big.NewInt(1)) }
	s := newSequencer(t, fake, nil)

	_, err := s.Donate(context.Background(), DonateRequest{Pool: poolA, Token: tokenA, Amount: big.NewInt(10)})
	require.ErrorIs(t, err, model.ErrReverted)
	assert.Len(t, fake.Writes, 1)
}

func TestReceiptTimeoutAborts(t *testing.T) {
	fake := ledgertest.New(wallet)
	fake.FailWait = func(common.Hash) error { return model.ErrReceiptTimeout }
	s := newSequencer(t, fake, nil)

	_, err := s.Withdraw(context.Background(), WithdrawRequest{Pool: poolA, Token: tokenA, Amount: big.NewInt(10)})
	require.ErrorIs(t, err, model.ErrReceiptTimeout)
	var seqErr *model.SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, FlowWithdraw, seqErr.Flow)
	assert.Equal(t, []string{contracts.MethodWithdraw}, fake.WriteMethods())
}

func TestInvalidInputIssuesNothing(t *testing.T) {
	fake := ledgertest.New(wallet)
	s := newSequencer(t, fake, nil)
	ctx := context.Background()

	_, err := s.Swap(ctx, SwapRequest{Pool: poolA, In: tokenA, Out: tokenB, Amount: big.NewInt(0)})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	_, err = s.Donate(ctx, DonateRequest{Pool: common.Address{}, Token: tokenA, Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, model.ErrInvalidAddress)
	_, err = s.UpdateLimit(ctx, UpdateLimitRequest{Pool: testPool(), Token: tokenA})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.Empty(t, fake.OpLog())
}

func TestAddVoucherOrder(t *testing.T) {
	fake := ledgertest.New(wallet)
	s := newSequencer(t, fake, nil)

	_, err := s.AddVoucher(context.Background(), AddVoucherRequest{
		Pool: testPool(), Token: tokenA, Limit: big.NewInt(500), PriceIndex: big.NewInt(20000),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"write:add", "write:setLimitFor", "wait", "write:setPriceIndexValue", "wait"}, fake.OpLog())
	assert.Equal(t, reg, fake.Writes[0].Address)
	assert.Equal(t, []interface{}{tokenA, poolA, big.NewInt(500)}, fake.Writes[1].Args)
	assert.Equal(t, quoter, fake.Writes[2].Address)
}

func TestUnchangedValuesSkip(t *testing.T) {
	fake := ledgertest.New(wallet)
	var notes []Notification
	s := newSequencer(t, fake, &notes)
	ctx := context.Background()
	pool := testPool()
	feeAddr := common.HexToAddress("0x00000000000000000000000000000000000000fe")

	results := make([]Result, 0, 5)
	for _, run := range []func() (Result, error){
		func() (Result, error) {
			return s.UpdateLimit(ctx, UpdateLimitRequest{Pool: pool, Token: tokenA, Limit: big.NewInt(7), Observed: big.NewInt(7)})
		},
		func() (Result, error) {
			return s.UpdateRate(ctx, UpdateRateRequest{Pool: pool, Token: tokenA, PriceIndex: big.NewInt(10000), Observed: big.NewInt(10000)})
		},
		func() (Result, error) {
			return s.UpdateFee(ctx, UpdateFeeRequest{Pool: pool, FeePpm: big.NewInt(5000), Observed: big.NewInt(5000)})
		},
		func() (Result, error) {
			return s.UpdateFeeAddress(ctx, UpdateFeeAddressRequest{Pool: pool, FeeAddress: feeAddr, Observed: &feeAddr})
		},
		func() (Result, error) {
			q := quoter
			return s.SetQuoter(ctx, SetQuoterRequest{Pool: pool, Quoter: quoter, Observed: &q})
		},
	} {
		res, err := run()
		require.NoError(t, err)
		results = append(results, res)
	}
	for _, res := range results {
		assert.True(t, res.Skipped, res.Flow)
	}
	assert.Empty(t, fake.OpLog())
	for _, n := range notes {
		assert.Equal(t, model.ErrNoOpSkipped.Error(), n.Message)
	}
}

func TestChangedValuesWrite(t *testing.T) {
	fake := ledgertest.New(wallet)
	s := newSequencer(t, fake, nil)
	ctx := context.Background()

	res, err := s.UpdateLimit(ctx, UpdateLimitRequest{Pool: testPool(), Token: tokenA, Limit: big.NewInt(8), Observed: big.NewInt(7)})
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	// unknown observed values always write
	_, err = s.UpdateRate(ctx, UpdateRateRequest{Pool: testPool(), Token: tokenA, PriceIndex: big.NewInt(0)})
	require.NoError(t, err)

	_, err = s.RemoveVoucher(ctx, RemoveVoucherRequest{Pool: testPool(), Token: tokenA})
	require.NoError(t, err)

	assert.Equal(t, []string{"setLimitFor", "setPriceIndexValue", "remove"}, fake.WriteMethods())
}
