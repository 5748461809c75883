// Package ledger defines the surface the engine consumes from the chain.
package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"voucherPools/internal/contracts"
)

// Call is one contract method invocation.
type Call struct {
	Address common.Address
	ABI     *abi.ABI
	Method  string
	Args    []interface{}
}

// Result is the outcome of one call inside a batch.
type Result struct {
	Values []interface{}
	Err    error
}

// ReceiptPolicy bounds a receipt wait.
type ReceiptPolicy struct {
	Confirmations   uint64
	RetryCount      int
	RetryDelay      time.Duration
	PollingInterval time.Duration
}

// DefaultReceiptPolicy is used when a pool has no configured policy.
var DefaultReceiptPolicy = ReceiptPolicy{
	Confirmations:   1,
	RetryCount:      30,
	RetryDelay:      2 * time.Second,
	PollingInterval: time.Second,
}

// Receipt is the terminal status of a mined transaction.
type Receipt struct {
	TxHash          common.Hash
	Success         bool
	BlockNumber     uint64
	ContractAddress *common.Address
}

// Reader executes read-only calls.
type Reader interface {
	// BatchRead returns one Result per call, aligned with calls.
	// A non-nil error means the whole round trip failed.
	BatchRead(ctx context.Context, calls []Call) ([]Result, error)
	Read(ctx context.Context, call Call) ([]interface{}, error)
}

// Writer submits transactions from the client's signing identity.
type Writer interface {
	// DeployContract returns once the deployment is mined.
	DeployContract(ctx context.Context, artifact contracts.Artifact, args ...interface{}) (common.Address, error)
	WriteContract(ctx context.Context, call Call) (common.Hash, error)
	WaitForReceipt(ctx context.Context, tx common.Hash, policy ReceiptPolicy) (Receipt, error)
	// From is the address transactions are signed with.
	From() common.Address
}

// Client is the full ledger surface.
type Client interface {
	Reader
	Writer
}
