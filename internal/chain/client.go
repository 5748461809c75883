package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"voucherPools/internal/contracts"
	"voucherPools/internal/ledger"
)

// ErrNoSigner is returned by writes on a client built without a private key.
var ErrNoSigner = errors.New("no signing key configured")

// Config holds chain connection settings.
type Config struct {
	RPCURL     string
	PrivateKey string
	// ChainID is queried from the node when zero.
	ChainID uint64
	// RateLimit caps RPC requests per second; zero disables limiting.
	RateLimit int
	// BatchLimit caps eth_calls per JSON-RPC batch request.
	BatchLimit   int
	MaxRetries   int
	RetryBackoff time.Duration
	// DeployPolicy bounds the wait for a deployment receipt.
	DeployPolicy ledger.ReceiptPolicy
}

// Client wraps go-ethereum RPC and implements ledger.Client.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   ratelimit.Limiter
	logger    *zap.Logger

	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	batchLimit   int
	maxRetries   int
	retryBackoff time.Duration
	deployPolicy ledger.ReceiptPolicy
}

const defaultBatchLimit = 100

var _ ledger.Client = (*Client)(nil)

// NewClient dials the RPC URL and loads the signing key when one is given.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpcClient:    rpcClient,
		ethClient:    ethclient.NewClient(rpcClient),
		limiter:      ratelimit.NewUnlimited(),
		logger:       logger,
		batchLimit:   cfg.BatchLimit,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		deployPolicy: cfg.DeployPolicy,
	}
	if cfg.RateLimit > 0 {
		c.limiter = ratelimit.New(cfg.RateLimit)
	}
	if c.batchLimit <= 0 {
		c.batchLimit = defaultBatchLimit
	}
	if c.deployPolicy == (ledger.ReceiptPolicy{}) {
		c.deployPolicy = ledger.DefaultReceiptPolicy
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	if cfg.ChainID != 0 {
		c.chainID = new(big.Int).SetUint64(cfg.ChainID)
	} else {
		chainID, err := c.ethClient.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		c.chainID = chainID
	}

	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// From returns the signing address, or the zero address for a read-only client.
func (c *Client) From() common.Address {
	return c.from
}

// ChainID returns the chain ID transactions are signed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BatchRead sends the calls as JSON-RPC batches of eth_call requests, split
// at the configured batch limit. Results stay aligned with calls.
func (c *Client) BatchRead(ctx context.Context, calls []ledger.Call) ([]ledger.Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	elems := make([]rpc.BatchElem, len(calls))
	outs := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		data, err := pack(call)
		if err != nil {
			return nil, err
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args:   []interface{}{toCallArg(call.Address, data), "latest"},
			Result: &outs[i],
		}
	}

	spans, err := splitSpans(len(elems), c.batchLimit)
	if err != nil {
		return nil, err
	}
	for _, sp := range spans {
		chunk := elems[sp.From:sp.To]
		err := withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
			c.limiter.Take()
			for i := range chunk {
				chunk[i].Error = nil
			}
			err := c.rpcClient.BatchCallContext(ctx, chunk)
			if err != nil {
				c.logger.Warn("batch call failed", zap.Int("calls", len(chunk)), zap.Error(err))
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("batch call: %w", err)
		}
	}

	results := make([]ledger.Result, len(calls))
	for i, call := range calls {
		if elems[i].Error != nil {
			results[i] = ledger.Result{Err: elems[i].Error}
			continue
		}
		values, err := call.ABI.Unpack(call.Method, outs[i])
		if err != nil {
			results[i] = ledger.Result{Err: fmt.Errorf("unpack %s: %w", call.Method, err)}
			continue
		}
		results[i] = ledger.Result{Values: values}
	}
	return results, nil
}

// Read performs a single eth_call and unpacks its outputs.
func (c *Client) Read(ctx context.Context, call ledger.Call) ([]interface{}, error) {
	data, err := pack(call)
	if err != nil {
		return nil, err
	}

	var resp []byte
	err = withRetry(ctx, c.maxRetries, c.retryBackoff, func(ctx context.Context) error {
		c.limiter.Take()
		var err error
		resp, err = c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &call.Address, Data: data}, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", call.Method, err)
	}

	values, err := call.ABI.Unpack(call.Method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", call.Method, err)
	}
	return values, nil
}

// DeployContract submits a contract creation and waits for it to be mined.
func (c *Client) DeployContract(ctx context.Context, artifact contracts.Artifact, args ...interface{}) (common.Address, error) {
	if artifact.ABI == nil || len(artifact.Bytecode) == 0 {
		return common.Address{}, fmt.Errorf("artifact %s is incomplete", artifact.Name)
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Address{}, err
	}

	c.limiter.Take()
	address, tx, _, err := bind.DeployContract(opts, *artifact.ABI, artifact.Bytecode, c.ethClient, args...)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: %w", artifact.Name, err)
	}
	c.logger.Debug("deployment submitted", zap.String("contract", artifact.Name), zap.String("tx", tx.Hash().Hex()), zap.String("address", address.Hex()))

	receipt, err := c.WaitForReceipt(ctx, tx.Hash(), c.deployPolicy)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: %w", artifact.Name, err)
	}
	if !receipt.Success {
		return common.Address{}, fmt.Errorf("deploy %s: %w", artifact.Name, errReverted(tx.Hash()))
	}
	if receipt.ContractAddress != nil {
		address = *receipt.ContractAddress
	}

	c.limiter.Take()
	code, err := c.ethClient.CodeAt(ctx, address, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("deploy %s: code at %s: %w", artifact.Name, address.Hex(), err)
	}
	if len(code) == 0 {
		return common.Address{}, fmt.Errorf("deploy %s: %w", artifact.Name, bind.ErrNoCodeAfterDeploy)
	}
	return address, nil
}

// WriteContract signs and submits a contract method call.
func (c *Client) WriteContract(ctx context.Context, call ledger.Call) (common.Hash, error) {
	if call.ABI == nil {
		return common.Hash{}, fmt.Errorf("call %s: abi is nil", call.Method)
	}
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	c.limiter.Take()
	bound := bind.NewBoundContract(call.Address, *call.ABI, c.ethClient, c.ethClient, c.ethClient)
	tx, err := bound.Transact(opts, call.Method, call.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("transact %s: %w", call.Method, err)
	}
	c.logger.Debug("transaction submitted", zap.String("method", call.Method), zap.String("to", call.Address.Hex()), zap.String("tx", tx.Hash().Hex()))
	return tx.Hash(), nil
}

// WaitForReceipt polls for a receipt within the policy's retry budget.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, policy ledger.ReceiptPolicy) (ledger.Receipt, error) {
	fetch := func(ctx context.Context) (*ledger.Receipt, error) {
		c.limiter.Take()
		receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return nil, nil
			}
			return nil, err
		}
		out := &ledger.Receipt{
			TxHash:      hash,
			Success:     receipt.Status == 1,
			BlockNumber: receipt.BlockNumber.Uint64(),
		}
		if receipt.ContractAddress != (common.Address{}) {
			address := receipt.ContractAddress
			out.ContractAddress = &address
		}
		return out, nil
	}
	latest := func(ctx context.Context) (uint64, error) {
		c.limiter.Take()
		return c.ethClient.BlockNumber(ctx)
	}
	return pollReceipt(ctx, fetch, latest, policy, c.logger.With(zap.String("tx", hash.Hex())))
}

func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

func pack(call ledger.Call) ([]byte, error) {
	if call.ABI == nil {
		return nil, fmt.Errorf("pack %s: abi is nil", call.Method)
	}
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", call.Method, err)
	}
	return data, nil
}

func toCallArg(to common.Address, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
}
