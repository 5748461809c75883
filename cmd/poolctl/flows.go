package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voucherPools/internal/amount"
	"voucherPools/internal/model"
	"voucherPools/internal/pricing"
	"voucherPools/internal/sequencer"
)

// flowFunc runs one sequencer flow with a wired app.
type flowFunc func(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error)

func newFlowCmd(use, short string, flags []string, run flowFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			seq, err := a.sequencer()
			if err != nil {
				return err
			}
			res, err := run(ctx, a, seq, cmd)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	for _, name := range flags {
		cmd.Flags().String(name, "", flagUsage[name])
	}
	return cmd
}

var flagUsage = map[string]string{
	"from":        "input voucher address",
	"to":          "output voucher address",
	"voucher":     "voucher address",
	"amount":      "amount in voucher units",
	"limit":       "limit in voucher units",
	"price-index": "raw price index, 10000 is parity",
	"fee-ppm":     "fee in parts per million",
	"address":     "fee recipient address",
	"quoter":      "quoter address",
}

func newFlowCmds() []*cobra.Command {
	return []*cobra.Command{
		newFlowCmd("swap", "Swap one pool voucher for another", []string{"from", "to", "amount"}, runSwap),
		newFlowCmd("donate", "Deposit vouchers into a pool", []string{"voucher", "amount"}, runDonate),
		newFlowCmd("withdraw", "Withdraw vouchers from a pool as its owner", []string{"voucher", "amount"}, runWithdraw),
		newFlowCmd("add-voucher", "Add a voucher to a pool with a limit and price index", []string{"voucher", "limit", "price-index"}, runAddVoucher),
		newFlowCmd("remove-voucher", "Remove a voucher from a pool", []string{"voucher"}, runRemoveVoucher),
		newFlowCmd("set-limit", "Change a voucher's pool limit", []string{"voucher", "limit"}, runSetLimit),
		newFlowCmd("set-rate", "Change a voucher's price index", []string{"voucher", "price-index"}, runSetRate),
		newFlowCmd("set-fee", "Change the pool fee", []string{"fee-ppm"}, runSetFee),
		newFlowCmd("set-fee-address", "Change the pool fee recipient", []string{"address"}, runSetFeeAddress),
		newFlowCmd("set-quoter", "Point the pool at another quoter", []string{"quoter"}, runSetQuoter),
	}
}

func str(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func runSwap(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	snap, err := a.snapshotFor(ctx, cmd, true)
	if err != nil {
		return sequencer.Result{}, err
	}
	from, err := member(snap, str(cmd, "from"))
	if err != nil {
		return sequencer.Result{}, err
	}
	to, err := member(snap, str(cmd, "to"))
	if err != nil {
		return sequencer.Result{}, err
	}
	quote, err := pricing.QuoteSwap(str(cmd, "amount"), from, to, snap.Pool.FeePpm)
	if err != nil {
		return sequencer.Result{}, err
	}
	if quote.ExceedsCapacity {
		a.logger.Warn("swap exceeds pool capacity", zap.String("out", quote.Out.Formatted))
	}
	return seq.Swap(ctx, sequencer.SwapRequest{
		Pool:   snap.Pool.Address,
		In:     from.Address,
		Out:    to.Address,
		Amount: quote.In.Raw,
	})
}

func runDonate(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	snap, asset, raw, err := a.memberAmount(ctx, cmd, "amount")
	if err != nil {
		return sequencer.Result{}, err
	}
	return seq.Donate(ctx, sequencer.DonateRequest{Pool: snap.Pool.Address, Token: asset.Address, Amount: raw})
}

func runWithdraw(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	snap, asset, raw, err := a.memberAmount(ctx, cmd, "amount")
	if err != nil {
		return sequencer.Result{}, err
	}
	return seq.Withdraw(ctx, sequencer.WithdrawRequest{Pool: snap.Pool.Address, Token: asset.Address, Amount: raw})
}

func runAddVoucher(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	pool, err := a.pool(ctx, cmd)
	if err != nil {
		return sequencer.Result{}, err
	}
	token, err := model.ParseAddress(str(cmd, "voucher"))
	if err != nil {
		return sequencer.Result{}, err
	}
	agg, err := a.aggregator()
	if err != nil {
		return sequencer.Result{}, err
	}
	voucher, err := agg.Describe(ctx, token)
	if err != nil {
		return sequencer.Result{}, err
	}
	limit, err := amount.Parse(str(cmd, "limit"), voucher.Decimals)
	if err != nil {
		return sequencer.Result{}, err
	}
	index, err := parseInt(str(cmd, "price-index"))
	if err != nil {
		return sequencer.Result{}, err
	}
	return seq.AddVoucher(ctx, sequencer.AddVoucherRequest{Pool: pool, Token: token, Limit: limit, PriceIndex: index})
}

func runRemoveVoucher(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	pool, err := a.pool(ctx, cmd)
	if err != nil {
		return sequencer.Result{}, err
	}
	token, err := model.ParseAddress(str(cmd, "voucher"))
	if err != nil {
		return sequencer.Result{}, err
	}
	return seq.RemoveVoucher(ctx, sequencer.RemoveVoucherRequest{Pool: pool, Token: token})
}

func runSetLimit(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	snap, asset, limit, err := a.memberAmount(ctx, cmd, "limit")
	if err != nil {
		return sequencer.Result{}, err
	}
	req := sequencer.UpdateLimitRequest{Pool: snap.Pool, Token: asset.Address, Limit: limit}
	if asset.Limit != nil {
		req.Observed = asset.Limit.Raw
	}
	return seq.UpdateLimit(ctx, req)
}

func runSetRate(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	snap, err := a.snapshotFor(ctx, cmd, false)
	if err != nil {
		return sequencer.Result{}, err
	}
	asset, err := member(snap, str(cmd, "voucher"))
	if err != nil {
		return sequencer.Result{}, err
	}
	index, err := parseInt(str(cmd, "price-index"))
	if err != nil {
		return sequencer.Result{}, err
	}
	return seq.UpdateRate(ctx, sequencer.UpdateRateRequest{
		Pool: snap.Pool, Token: asset.Address, PriceIndex: index, Observed: asset.PriceIndex,
	})
}

func runSetFee(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	pool, err := a.pool(ctx, cmd)
	if err != nil {
		return sequencer.Result{}, err
	}
	fee, err := parseInt(str(cmd, "fee-ppm"))
	if err != nil {
		return sequencer.Result{}, err
	}
	return seq.UpdateFee(ctx, sequencer.UpdateFeeRequest{Pool: pool, FeePpm: fee, Observed: pool.FeePpm})
}

func runSetFeeAddress(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	pool, err := a.pool(ctx, cmd)
	if err != nil {
		return sequencer.Result{}, err
	}
	address, err := model.ParseAddress(str(cmd, "address"))
	if err != nil {
		return sequencer.Result{}, err
	}
	observed := pool.FeeAddress
	return seq.UpdateFeeAddress(ctx, sequencer.UpdateFeeAddressRequest{Pool: pool, FeeAddress: address, Observed: &observed})
}

func runSetQuoter(ctx context.Context, a *app, seq *sequencer.Sequencer, cmd *cobra.Command) (sequencer.Result, error) {
	pool, err := a.pool(ctx, cmd)
	if err != nil {
		return sequencer.Result{}, err
	}
	quoter, err := model.ParseAddress(str(cmd, "quoter"))
	if err != nil {
		return sequencer.Result{}, err
	}
	observed := pool.Quoter
	return seq.SetQuoter(ctx, sequencer.SetQuoterRequest{Pool: pool, Quoter: quoter, Observed: &observed})
}

// snapshotFor reads the --pool snapshot, viewed by the signer when asked.
func (a *app) snapshotFor(ctx context.Context, cmd *cobra.Command, asSigner bool) (*model.PoolSnapshot, error) {
	viewer := ""
	if asSigner {
		if from := signer(a); from != nil {
			viewer = from.Hex()
		}
	}
	return a.snapshot(ctx, str(cmd, "pool"), viewer)
}

// memberAmount resolves --voucher in the pool and parses flag in its decimals.
func (a *app) memberAmount(ctx context.Context, cmd *cobra.Command, flag string) (*model.PoolSnapshot, model.AssetSnapshot, *big.Int, error) {
	snap, err := a.snapshotFor(ctx, cmd, false)
	if err != nil {
		return nil, model.AssetSnapshot{}, nil, err
	}
	asset, err := member(snap, str(cmd, "voucher"))
	if err != nil {
		return nil, model.AssetSnapshot{}, nil, err
	}
	raw, err := amount.Parse(str(cmd, flag), *asset.Decimals)
	if err != nil {
		return nil, model.AssetSnapshot{}, nil, fmt.Errorf("%s: %w", flag, err)
	}
	return snap, asset, raw, nil
}

func (a *app) pool(ctx context.Context, cmd *cobra.Command) (model.Pool, error) {
	address, err := model.ParseAddress(str(cmd, "pool"))
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool: %w", err)
	}
	agg, err := a.aggregator()
	if err != nil {
		return model.Pool{}, err
	}
	return agg.Pool(ctx, address)
}

func parseInt(input string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(input, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAmount, input)
	}
	return value, nil
}
