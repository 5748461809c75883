package deploy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
	"voucherPools/internal/model"
)

// Step names, as reported in errors and metrics.
const (
	StepDeployRegistry    = "deploy registry"
	StepAddWriter         = "add registry writer"
	StepDeployLimiter     = "deploy limiter"
	StepDeployPool        = "deploy pool"
	StepDeployQuoter      = "deploy quoter"
	StepBindQuoter        = "bind quoter"
	StepPersistMetadata   = "persist metadata"
	StepRegisterPool      = "register pool"
	StepTransferOwnership = "transfer ownership"
)

// state carries addresses from one step to the next.
type state struct {
	req        Request
	deployment Deployment
	// completed is the number of steps done, transferred the ownership
	// transfers done inside the last step.
	completed   int
	transferred int
	save        func()
}

type step struct {
	name    string
	message string
	run     func(ctx context.Context, st *state) error
}

func (s *Saga) steps() []step {
	return []step{
		{StepDeployRegistry, "Deploying voucher registry", s.deployRegistry},
		{StepAddWriter, "Authorizing owner on voucher registry", s.addWriter},
		{StepDeployLimiter, "Deploying limiter", s.deployLimiter},
		{StepDeployPool, "Deploying swap pool", s.deployPool},
		{StepDeployQuoter, "Deploying price quoter", s.deployQuoter},
		{StepBindQuoter, "Binding quoter to pool", s.bindQuoter},
		{StepPersistMetadata, "Saving pool metadata", s.persistMetadata},
		{StepRegisterPool, "Registering pool in pool index", s.registerPool},
		{StepTransferOwnership, "Transferring ownership to owner", s.transferOwnership},
	}
}

func (s *Saga) deployRegistry(ctx context.Context, st *state) (err error) {
	st.deployment.Registry, err = s.ledger.DeployContract(ctx, s.artifacts.TokenIndex)
	return err
}

func (s *Saga) addWriter(ctx context.Context, st *state) error {
	return s.transact(ctx, ledger.Call{
		Address: st.deployment.Registry,
		ABI:     s.abis.TokenIndex,
		Method:  contracts.MethodAddWriter,
		Args:    []interface{}{st.deployment.Owner},
	})
}

func (s *Saga) deployLimiter(ctx context.Context, st *state) (err error) {
	st.deployment.Limiter, err = s.ledger.DeployContract(ctx, s.artifacts.Limiter)
	return err
}

func (s *Saga) deployPool(ctx context.Context, st *state) (err error) {
	meta := st.deployment.Metadata
	st.deployment.Pool, err = s.ledger.DeployContract(ctx, s.artifacts.SwapPool,
		meta.Name, meta.Symbol, st.req.Decimals, st.deployment.Registry, st.deployment.Limiter)
	if err == nil {
		st.deployment.Metadata.Address = st.deployment.Pool
	}
	return err
}

func (s *Saga) deployQuoter(ctx context.Context, st *state) (err error) {
	st.deployment.Quoter, err = s.ledger.DeployContract(ctx, s.artifacts.Quoter)
	return err
}

func (s *Saga) bindQuoter(ctx context.Context, st *state) error {
	return s.transact(ctx, ledger.Call{
		Address: st.deployment.Pool,
		ABI:     s.abis.SwapPool,
		Method:  contracts.MethodSetQuoter,
		Args:    []interface{}{st.deployment.Quoter},
	})
}

func (s *Saga) persistMetadata(ctx context.Context, st *state) error {
	return s.store.InsertPool(ctx, st.deployment.Metadata)
}

func (s *Saga) registerPool(ctx context.Context, st *state) error {
	return s.transact(ctx, ledger.Call{
		Address: s.poolIndex,
		ABI:     s.abis.PoolIndex,
		Method:  contracts.MethodAdd,
		Args:    []interface{}{st.deployment.Pool},
	})
}

// transferOwnership hands over registry, limiter, pool and quoter in that order.
func (s *Saga) transferOwnership(ctx context.Context, st *state) error {
	d := st.deployment
	for _, target := range []struct {
		label   string
		address common.Address
		abi     *abi.ABI
	}{
		{"registry", d.Registry, s.abis.TokenIndex},
		{"limiter", d.Limiter, s.abis.Limiter},
		{"pool", d.Pool, s.abis.SwapPool},
		{"quoter", d.Quoter, s.abis.Quoter},
	}[st.transferred:] {
		call := ledger.Call{
			Address: target.address,
			ABI:     target.abi,
			Method:  contracts.MethodTransferOwnership,
			Args:    []interface{}{d.Owner},
		}
		if err := s.transact(ctx, call); err != nil {
			return fmt.Errorf("%s: %w", target.label, err)
		}
		st.transferred++
		st.save()
	}
	return nil
}

// transact submits call and waits for a successful receipt.
func (s *Saga) transact(ctx context.Context, call ledger.Call) error {
	hash, err := s.ledger.WriteContract(ctx, call)
	if err != nil {
		return err
	}
	receipt, err := s.ledger.WaitForReceipt(ctx, hash, s.policy)
	if err != nil {
		return err
	}
	if !receipt.Success {
		return fmt.Errorf("%w: %s", model.ErrReverted, hash.Hex())
	}
	return nil
}
