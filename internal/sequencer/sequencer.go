// Package sequencer runs the ordered multi-transaction flows a wallet performs
// against a swap pool. Steps run strictly in order; the first failure aborts
// the flow and nothing already confirmed is undone.
//
// Two flows issued concurrently from the same wallet against the same voucher
// race on the allowance. Callers must not run them in parallel.
package sequencer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/metrics"
	"voucherPools/internal/model"
)

const (
	FlowSwap             = "swap"
	FlowDonate           = "donate"
	FlowWithdraw         = "withdraw"
	FlowAddVoucher       = "add voucher"
	FlowRemoveVoucher    = "remove voucher"
	FlowUpdateLimit      = "update limit"
	FlowUpdateRate       = "update exchange rate"
	FlowUpdateFee        = "update fee"
	FlowUpdateFeeAddress = "update fee address"
	FlowSetQuoter        = "set quoter"
)

// Swap approvals are inflated by 1005/1000 so demurrage applied between the
// approval and the swap does not leave the allowance short.
var (
	swapBufferNum = big.NewInt(1005)
	swapBufferDen = big.NewInt(1000)
)

// Notification is a progress record of a running flow. Only the terminal
// success or error record is meaningful to callers.
type Notification struct {
	Flow    string
	Step    string
	Status  model.ProgressStatus
	TxHash  common.Hash
	Message string
}

// Result is the outcome of a completed flow.
type Result struct {
	Flow   string
	TxHash common.Hash
	// Skipped is set when the requested value already matched chain state
	// and no transaction was sent.
	Skipped bool
}

// Options configure a Sequencer.
type Options struct {
	// Policy bounds every receipt wait; zero means ledger.DefaultReceiptPolicy.
	Policy     ledger.ReceiptPolicy
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	OnProgress func(Notification)
}

// Sequencer executes user and owner flows against a ledger.
type Sequencer struct {
	ledger     ledger.Client
	abis       *contracts.Set
	policy     ledger.ReceiptPolicy
	metrics    *metrics.Metrics
	logger     *zap.Logger
	onProgress func(Notification)
}

func New(client ledger.Client, opts Options) (*Sequencer, error) {
	if client == nil {
		return nil, fmt.Errorf("ledger client is nil")
	}
	abis, err := contracts.ABIs()
	if err != nil {
		return nil, fmt.Errorf("parse abis: %w", err)
	}
	if opts.Policy == (ledger.ReceiptPolicy{}) {
		opts.Policy = ledger.DefaultReceiptPolicy
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sequencer{
		ledger:     client,
		abis:       abis,
		policy:     opts.Policy,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		onProgress: opts.OnProgress,
	}, nil
}

// run tracks one flow invocation.
type run struct {
	s    *Sequencer
	ctx  context.Context
	flow string
	log  *zap.Logger
}

func (s *Sequencer) start(ctx context.Context, flow string, fields ...zap.Field) *run {
	log := s.logger.With(append([]zap.Field{zap.String("flow", flow)}, fields...)...)
	log.Info("flow start")
	return &run{s: s, ctx: ctx, flow: flow, log: log}
}

func (r *run) notify(n Notification) {
	n.Flow = r.flow
	if r.s.onProgress != nil {
		r.s.onProgress(n)
	}
}

// send submits call and waits for its receipt when wait is set.
func (r *run) send(step string, call ledger.Call, wait bool) (common.Hash, error) {
	r.notify(Notification{Step: step, Status: model.StatusLoading, Message: step})
	hash, err := r.s.ledger.WriteContract(r.ctx, call)
	if err != nil {
		return common.Hash{}, r.fail(step, err)
	}
	r.log.Debug("step submitted", zap.String("step", step), zap.String("tx", hash.Hex()))
	if !wait {
		return hash, nil
	}
	if err := r.wait(step, hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (r *run) wait(step string, hash common.Hash) error {
	receipt, err := r.s.ledger.WaitForReceipt(r.ctx, hash, r.s.policy)
	if err != nil {
		return r.fail(step, err)
	}
	if !receipt.Success {
		return r.fail(step, fmt.Errorf("%w: %s", model.ErrReverted, hash.Hex()))
	}
	return nil
}

func (r *run) fail(step string, err error) error {
	seqErr := &model.SequenceError{Flow: r.flow, Step: step, Err: err}
	r.log.Warn("flow aborted", zap.String("step", step), zap.Error(err))
	r.s.metrics.Flow(r.flow, "aborted")
	r.notify(Notification{Step: step, Status: model.StatusError, Message: seqErr.Error()})
	return seqErr
}

func (r *run) done(hash common.Hash) Result {
	r.log.Info("flow complete", zap.String("tx", hash.Hex()))
	r.s.metrics.Flow(r.flow, "success")
	r.notify(Notification{Status: model.StatusSuccess, TxHash: hash, Message: r.flow + " complete"})
	return Result{Flow: r.flow, TxHash: hash}
}

func (r *run) skipped() Result {
	r.log.Info("flow skipped", zap.String("reason", model.ErrNoOpSkipped.Error()))
	r.s.metrics.Flow(r.flow, "skipped")
	r.notify(Notification{Status: model.StatusSuccess, Message: model.ErrNoOpSkipped.Error()})
	return Result{Flow: r.flow, Skipped: true}
}

// approve resets the pool's allowance to zero before setting value, so a
// left-over allowance from an earlier run never stays in effect.
func (r *run) approve(token, spender common.Address, value *big.Int) error {
	approve := func(v *big.Int) ledger.Call {
		return ledger.Call{
			Address: token,
			ABI:     r.s.abis.ERC20,
			Method:  contracts.MethodApprove,
			Args:    []interface{}{spender, v},
		}
	}
	if _, err := r.send("reset allowance", approve(new(big.Int)), true); err != nil {
		return err
	}
	if _, err := r.send("set allowance", approve(value), true); err != nil {
		return err
	}
	return nil
}

func (s *Sequencer) poolCall(pool common.Address, method string, args ...interface{}) ledger.Call {
	return ledger.Call{Address: pool, ABI: s.abis.SwapPool, Method: method, Args: args}
}

func requireAddress(name string, address common.Address) error {
	if address == (common.Address{}) {
		return fmt.Errorf("%w: %s is the zero address", model.ErrInvalidAddress, name)
	}
	return nil
}

func requirePositive(name string, value *big.Int) error {
	if value == nil || value.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive", model.ErrInvalidAmount, name)
	}
	return nil
}

func requireNonNegative(name string, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return fmt.Errorf("%w: %s must not be negative", model.ErrInvalidAmount, name)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
