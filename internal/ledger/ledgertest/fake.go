// Package ledgertest provides an in-memory ledger.Client that records calls.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
)

// Deploy records one contract deployment.
type Deploy struct {
	Name    string
	Args    []interface{}
	Address common.Address
}

// Fake is a scripted ledger. Reads are answered from stubs; writes, deploys
// and receipt waits succeed unless a Fail hook returns an error.
type Fake struct {
	mu sync.Mutex

	Signer common.Address

	// BatchErr fails every BatchRead round trip.
	BatchErr error
	// ShortBatch drops the last result of every batch.
	ShortBatch bool

	FailWrite  func(call ledger.Call) error
	FailDeploy func(name string) error
	FailWait   func(hash common.Hash) error
	// Revert makes the receipt of hash report a failed status.
	Revert func(hash common.Hash) bool

	BatchSizes []int
	Reads      []ledger.Call
	Writes     []ledger.Call
	Deploys    []Deploy
	Waits      []common.Hash
	Policies   []ledger.ReceiptPolicy
	// Ops is the ordered log of every mutating operation.
	Ops []string

	stubs    map[string]ledger.Result
	nextAddr uint64
	nextTx   uint64
}

var _ ledger.Client = (*Fake)(nil)

func New(signer common.Address) *Fake {
	return &Fake{Signer: signer, stubs: make(map[string]ledger.Result), nextAddr: 0x1000}
}

func stubKey(address common.Address, method string, args []interface{}) string {
	return fmt.Sprintf("%s.%s%v", address.Hex(), method, args)
}

// Stub answers reads of method on address with args.
func (f *Fake) Stub(address common.Address, method string, args []interface{}, values ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[stubKey(address, method, args)] = ledger.Result{Values: values}
}

// StubErr makes reads of method on address with args fail.
func (f *Fake) StubErr(address common.Address, method string, args []interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs[stubKey(address, method, args)] = ledger.Result{Err: err}
}

func (f *Fake) answer(call ledger.Call) ledger.Result {
	res, ok := f.stubs[stubKey(call.Address, call.Method, call.Args)]
	if !ok {
		return ledger.Result{Err: fmt.Errorf("execution reverted: no stub for %s", stubKey(call.Address, call.Method, call.Args))}
	}
	return res
}

func (f *Fake) BatchRead(_ context.Context, calls []ledger.Call) ([]ledger.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BatchSizes = append(f.BatchSizes, len(calls))
	f.Reads = append(f.Reads, calls...)
	if f.BatchErr != nil {
		return nil, f.BatchErr
	}
	out := make([]ledger.Result, 0, len(calls))
	for _, call := range calls {
		out = append(out, f.answer(call))
	}
	if f.ShortBatch && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *Fake) Read(_ context.Context, call ledger.Call) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads = append(f.Reads, call)
	res := f.answer(call)
	return res.Values, res.Err
}

func (f *Fake) DeployContract(_ context.Context, artifact contracts.Artifact, args ...interface{}) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = append(f.Ops, "deploy:"+artifact.Name)
	if f.FailDeploy != nil {
		if err := f.FailDeploy(artifact.Name); err != nil {
			return common.Address{}, err
		}
	}
	f.nextAddr++
	address := common.BigToAddress(new(big.Int).SetUint64(f.nextAddr))
	f.Deploys = append(f.Deploys, Deploy{Name: artifact.Name, Args: args, Address: address})
	return address, nil
}

func (f *Fake) WriteContract(_ context.Context, call ledger.Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = append(f.Ops, "write:"+call.Method)
	if f.FailWrite != nil {
		if err := f.FailWrite(call); err != nil {
			return common.Hash{}, err
		}
	}
	f.Writes = append(f.Writes, call)
	f.nextTx++
	return common.BigToHash(new(big.Int).SetUint64(f.nextTx)), nil
}

func (f *Fake) WaitForReceipt(_ context.Context, tx common.Hash, policy ledger.ReceiptPolicy) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = append(f.Ops, "wait")
	f.Waits = append(f.Waits, tx)
	f.Policies = append(f.Policies, policy)
	if f.FailWait != nil {
		if err := f.FailWait(tx); err != nil {
			return ledger.Receipt{}, err
		}
	}
	success := f.Revert == nil || !f.Revert(tx)
	return ledger.Receipt{TxHash: tx, Success: success, BlockNumber: f.nextTx}, nil
}

func (f *Fake) From() common.Address {
	return f.Signer
}

// WriteMethods returns the method names of every successful write, in order.
func (f *Fake) WriteMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Writes))
	for _, w := range f.Writes {
		out = append(out, w.Method)
	}
	return out
}

// OpLog returns a copy of the operation log.
func (f *Fake) OpLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Ops))
	copy(out, f.Ops)
	return out
}
