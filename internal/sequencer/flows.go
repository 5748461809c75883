package sequencer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/model"
)

// SwapRequest exchanges Amount of In for the equivalent amount of Out.
type SwapRequest struct {
	Pool   common.Address
	In     common.Address
	Out    common.Address
	Amount *big.Int
}

// Swap approves the pool for the buffered input amount and executes the swap.
func (s *Sequencer) Swap(ctx context.Context, req SwapRequest) (Result, error) {
	if err := firstErr(
		requireAddress("pool", req.Pool),
		requireAddress("input voucher", req.In),
		requireAddress("output voucher", req.Out),
		requirePositive("amount", req.Amount),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowSwap, zap.String("pool", req.Pool.Hex()), zap.String("in", req.In.Hex()), zap.String("out", req.Out.Hex()))

	allowance := new(big.Int).Mul(req.Amount, swapBufferNum)
	allowance.Quo(allowance, swapBufferDen)
	if err := r.approve(req.In, req.Pool, allowance); err != nil {
		return Result{}, err
	}
	hash, err := r.send("swap", s.poolCall(req.Pool, contracts.MethodSwap, req.Out, req.In, req.Amount), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// DonateRequest deposits Amount of Token into the pool.
type DonateRequest struct {
	Pool   common.Address
	Token  common.Address
	Amount *big.Int
}

func (s *Sequencer) Donate(ctx context.Context, req DonateRequest) (Result, error) {
	if err := firstErr(
		requireAddress("pool", req.Pool),
		requireAddress("voucher", req.Token),
		requirePositive("amount", req.Amount),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowDonate, zap.String("pool", req.Pool.Hex()), zap.String("voucher", req.Token.Hex()))

	if err := r.approve(req.Token, req.Pool, req.Amount); err != nil {
		return Result{}, err
	}
	hash, err := r.send("deposit", s.poolCall(req.Pool, contracts.MethodDeposit, req.Token, req.Amount), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// WithdrawRequest moves Amount of Token out of the pool to the owner.
type WithdrawRequest struct {
	Pool   common.Address
	Token  common.Address
	Amount *big.Int
}

func (s *Sequencer) Withdraw(ctx context.Context, req WithdrawRequest) (Result, error) {
	if err := firstErr(
		requireAddress("pool", req.Pool),
		requireAddress("voucher", req.Token),
		requirePositive("amount", req.Amount),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowWithdraw, zap.String("pool", req.Pool.Hex()), zap.String("voucher", req.Token.Hex()))

	hash, err := r.send("withdraw", s.poolCall(req.Pool, contracts.MethodWithdraw, req.Token, req.Amount), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// AddVoucherRequest registers Token in the pool with an initial limit and
// price index. Pool must carry the registry, limiter and quoter addresses.
type AddVoucherRequest struct {
	Pool       model.Pool
	Token      common.Address
	Limit      *big.Int
	PriceIndex *big.Int
}

// AddVoucher submits the registry insertion without waiting for it; the limit
// and rate writes that follow are each confirmed before moving on.
func (s *Sequencer) AddVoucher(ctx context.Context, req AddVoucherRequest) (Result, error) {
	if err := firstErr(
		requireAddress("registry", req.Pool.Registry),
		requireAddress("limiter", req.Pool.Limiter),
		requireAddress("quoter", req.Pool.Quoter),
		requireAddress("voucher", req.Token),
		requireNonNegative("limit", req.Limit),
		requireNonNegative("price index", req.PriceIndex),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowAddVoucher, zap.String("pool", req.Pool.Address.Hex()), zap.String("voucher", req.Token.Hex()))

	if _, err := r.send("register voucher", ledger.Call{
		Address: req.Pool.Registry,
		ABI:     s.abis.TokenIndex,
		Method:  contracts.MethodAdd,
		Args:    []interface{}{req.Token},
	}, false); err != nil {
		return Result{}, err
	}
	if _, err := r.send("set limit", s.limitCall(req.Pool, req.Token, req.Limit), true); err != nil {
		return Result{}, err
	}
	hash, err := r.send("set exchange rate", s.rateCall(req.Pool, req.Token, req.PriceIndex), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// RemoveVoucherRequest drops Token from the pool's registry.
type RemoveVoucherRequest struct {
	Pool  model.Pool
	Token common.Address
}

func (s *Sequencer) RemoveVoucher(ctx context.Context, req RemoveVoucherRequest) (Result, error) {
	if err := firstErr(
		requireAddress("registry", req.Pool.Registry),
		requireAddress("voucher", req.Token),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowRemoveVoucher, zap.String("pool", req.Pool.Address.Hex()), zap.String("voucher", req.Token.Hex()))

	hash, err := r.send("remove voucher", ledger.Call{
		Address: req.Pool.Registry,
		ABI:     s.abis.TokenIndex,
		Method:  contracts.MethodRemove,
		Args:    []interface{}{req.Token},
	}, true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// UpdateLimitRequest sets the pool's limit for Token. Observed is the limit
// from the caller's last snapshot; nil means unknown and always writes.
type UpdateLimitRequest struct {
	Pool     model.Pool
	Token    common.Address
	Limit    *big.Int
	Observed *big.Int
}

func (s *Sequencer) UpdateLimit(ctx context.Context, req UpdateLimitRequest) (Result, error) {
	if err := firstErr(
		requireAddress("limiter", req.Pool.Limiter),
		requireAddress("voucher", req.Token),
		requireNonNegative("limit", req.Limit),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowUpdateLimit, zap.String("pool", req.Pool.Address.Hex()), zap.String("voucher", req.Token.Hex()))
	if sameInt(req.Observed, req.Limit) {
		return r.skipped(), nil
	}
	hash, err := r.send("set limit", s.limitCall(req.Pool, req.Token, req.Limit), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// UpdateRateRequest sets the quoter's price index for Token. Observed is the
// raw on-chain value, before zero is read as the base index.
type UpdateRateRequest struct {
	Pool       model.Pool
	Token      common.Address
	PriceIndex *big.Int
	Observed   *big.Int
}

func (s *Sequencer) UpdateRate(ctx context.Context, req UpdateRateRequest) (Result, error) {
	if err := firstErr(
		requireAddress("quoter", req.Pool.Quoter),
		requireAddress("voucher", req.Token),
		requireNonNegative("price index", req.PriceIndex),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowUpdateRate, zap.String("pool", req.Pool.Address.Hex()), zap.String("voucher", req.Token.Hex()))
	if sameInt(req.Observed, req.PriceIndex) {
		return r.skipped(), nil
	}
	hash, err := r.send("set exchange rate", s.rateCall(req.Pool, req.Token, req.PriceIndex), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// UpdateFeeRequest sets the pool fee in parts per million.
type UpdateFeeRequest struct {
	Pool     model.Pool
	FeePpm   *big.Int
	Observed *big.Int
}

func (s *Sequencer) UpdateFee(ctx context.Context, req UpdateFeeRequest) (Result, error) {
	if err := firstErr(
		requireAddress("pool", req.Pool.Address),
		requireNonNegative("fee", req.FeePpm),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowUpdateFee, zap.String("pool", req.Pool.Address.Hex()))
	if sameInt(req.Observed, req.FeePpm) {
		return r.skipped(), nil
	}
	hash, err := r.send("set fee", s.poolCall(req.Pool.Address, contracts.MethodSetFee, req.FeePpm), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// UpdateFeeAddressRequest sets the address collecting pool fees.
type UpdateFeeAddressRequest struct {
	Pool       model.Pool
	FeeAddress common.Address
	Observed   *common.Address
}

func (s *Sequencer) UpdateFeeAddress(ctx context.Context, req UpdateFeeAddressRequest) (Result, error) {
	if err := firstErr(
		requireAddress("pool", req.Pool.Address),
		requireAddress("fee address", req.FeeAddress),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowUpdateFeeAddress, zap.String("pool", req.Pool.Address.Hex()))
	if req.Observed != nil && *req.Observed == req.FeeAddress {
		return r.skipped(), nil
	}
	hash, err := r.send("set fee address", s.poolCall(req.Pool.Address, contracts.MethodSetFeeAddress, req.FeeAddress), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

// SetQuoterRequest points the pool at a different price quoter.
type SetQuoterRequest struct {
	Pool     model.Pool
	Quoter   common.Address
	Observed *common.Address
}

func (s *Sequencer) SetQuoter(ctx context.Context, req SetQuoterRequest) (Result, error) {
	if err := firstErr(
		requireAddress("pool", req.Pool.Address),
		requireAddress("quoter", req.Quoter),
	); err != nil {
		return Result{}, err
	}
	r := s.start(ctx, FlowSetQuoter, zap.String("pool", req.Pool.Address.Hex()))
	if req.Observed != nil && *req.Observed == req.Quoter {
		return r.skipped(), nil
	}
	hash, err := r.send("set quoter", s.poolCall(req.Pool.Address, contracts.MethodSetQuoter, req.Quoter), true)
	if err != nil {
		return Result{}, err
	}
	return r.done(hash), nil
}

func (s *Sequencer) limitCall(pool model.Pool, token common.Address, limit *big.Int) ledger.Call {
	return ledger.Call{
		Address: pool.Limiter,
		ABI:     s.abis.Limiter,
		Method:  contracts.MethodSetLimitFor,
		Args:    []interface{}{token, pool.Address, limit},
	}
}

func (s *Sequencer) rateCall(pool model.Pool, token common.Address, priceIndex *big.Int) ledger.Call {
	return ledger.Call{
		Address: pool.Quoter,
		ABI:     s.abis.Quoter,
		Method:  contracts.MethodSetPriceIndex,
		Args:    []interface{}{token, priceIndex},
	}
}

func sameInt(observed, requested *big.Int) bool {
	return observed != nil && requested != nil && observed.Cmp(requested) == 0
}
