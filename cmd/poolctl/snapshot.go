package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"voucherPools/internal/model"
	"voucherPools/internal/pricing"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the aggregated state of a pool",
		RunE:  runSnapshot,
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("viewer", "", "optional viewer address for balances and allowances")
	cmd.Flags().Bool("most-empty-first", false, "sort vouchers by fill ratio")
	return cmd
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	poolFlag, _ := cmd.Flags().GetString("pool")
	viewerFlag, _ := cmd.Flags().GetString("viewer")
	snap, err := a.snapshot(ctx, poolFlag, viewerFlag)
	if err != nil {
		return err
	}
	if sorted, _ := cmd.Flags().GetBool("most-empty-first"); sorted {
		pricing.SortMostEmptyFirst(snap.Vouchers)
	}
	return printJSON(snap)
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap between two pool vouchers",
		RunE:  runQuote,
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("viewer", "", "optional viewer address, enables the max input")
	cmd.Flags().String("from", "", "input voucher address")
	cmd.Flags().String("to", "", "output voucher address")
	cmd.Flags().String("amount", "", "input amount in voucher units")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f := cmd.Flags()
	poolFlag, _ := f.GetString("pool")
	viewerFlag, _ := f.GetString("viewer")
	fromFlag, _ := f.GetString("from")
	toFlag, _ := f.GetString("to")
	input, _ := f.GetString("amount")

	snap, err := a.snapshot(ctx, poolFlag, viewerFlag)
	if err != nil {
		return err
	}
	from, err := member(snap, fromFlag)
	if err != nil {
		return err
	}
	to, err := member(snap, toFlag)
	if err != nil {
		return err
	}
	quote, err := pricing.QuoteSwap(input, from, to, snap.Pool.FeePpm)
	if err != nil {
		return err
	}
	return printJSON(quote)
}

func (a *app) snapshot(ctx context.Context, poolInput, viewerInput string) (*model.PoolSnapshot, error) {
	pool, err := model.ParseAddress(poolInput)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	viewer, err := model.ParseOptionalAddress(viewerInput)
	if err != nil {
		return nil, fmt.Errorf("viewer: %w", err)
	}
	agg, err := a.aggregator()
	if err != nil {
		return nil, err
	}
	return agg.Snapshot(ctx, pool, viewer)
}

// member finds a voucher in the snapshot; it must be loaded to be priced.
func member(snap *model.PoolSnapshot, input string) (model.AssetSnapshot, error) {
	address, err := model.ParseAddress(input)
	if err != nil {
		return model.AssetSnapshot{}, err
	}
	asset, ok := snap.Voucher(address)
	if !ok {
		return model.AssetSnapshot{}, fmt.Errorf("voucher %s is not in pool %s", address.Hex(), snap.Pool.Address.Hex())
	}
	if !asset.Loaded() {
		return model.AssetSnapshot{}, fmt.Errorf("voucher %s decimals could not be read", address.Hex())
	}
	return asset, nil
}

func signer(a *app) *common.Address {
	from := a.client.From()
	if from == (common.Address{}) {
		return nil
	}
	return &from
}
