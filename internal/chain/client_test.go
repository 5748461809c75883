package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"voucherPools/internal/ledger"
)

// An http endpoint is dialed lazily, so a configured chain id needs no node.
func newOfflineClient(t *testing.T, key string) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), Config{RPCURL: "http://127.0.0.1:1", ChainID: 42, PrivateKey: key}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestClientConfiguredChainID(t *testing.T) {
	c := newOfflineClient(t, "")
	id := c.ChainID()
	if id.Int64() != 42 {
		t.Fatalf("chain id = %s", id)
	}
	id.SetInt64(7)
	if c.ChainID().Int64() != 42 {
		t.Fatalf("ChainID must return a copy")
	}
	if c.batchLimit != defaultBatchLimit || c.deployPolicy != ledger.DefaultReceiptPolicy {
		t.Fatalf("defaults not applied: limit=%d policy=%+v", c.batchLimit, c.deployPolicy)
	}
}

func TestClientSignerAddress(t *testing.T) {
	// Well-known test key; address derived by go-ethereum.
	c := newOfflineClient(t, "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	if want := common.HexToAddress("0x71562b71999873DB5b286dF957af199Ec94617F7"); c.From() != want {
		t.Fatalf("from = %s, want %s", c.From().Hex(), want.Hex())
	}
}

func TestClientWithoutKeyCannotWrite(t *testing.T) {
	c := newOfflineClient(t, "")
	if c.From() != (common.Address{}) {
		t.Fatalf("read-only client has signer %s", c.From().Hex())
	}
	_, err := c.WriteContract(context.Background(), ledger.Call{ABI: nil, Method: "approve"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, err := c.transactOpts(context.Background()); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
}
