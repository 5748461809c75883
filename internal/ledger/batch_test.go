package ledger_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucherPools/internal/ledger"
	"voucherPools/internal/ledger/ledgertest"
)

func TestBatchKeyedResults(t *testing.T) {
	fake := ledgertest.New(common.Address{})
	token := common.HexToAddress("0xaa")
	fake.Stub(token, "symbol", nil, "SRF")
	fake.Stub(token, "decimals", nil, uint8(6))

	batch := ledger.NewBatch()
	batch.Add(ledger.Key("symbol", token), ledger.Call{Address: token, Method: "symbol"})
	batch.Add(ledger.Key("decimals", token), ledger.Call{Address: token, Method: "decimals"})
	batch.Add(ledger.Key("name", token), ledger.Call{Address: token, Method: "name"})

	results, err := batch.Exec(context.Background(), fake)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, fake.BatchSizes)

	symbol, err := results.String(ledger.Key("symbol", token))
	require.NoError(t, err)
	assert.Equal(t, "SRF", symbol)

	decimals, err := results.Uint8(ledger.Key("decimals", token))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), decimals)

	_, err = results.String(ledger.Key("name", token))
	assert.Error(t, err, "unstubbed call must surface its own error")
}

func TestBatchReplacesDuplicateKey(t *testing.T) {
	batch := ledger.NewBatch()
	batch.Add("a", ledger.Call{Method: "first"})
	batch.Add("a", ledger.Call{Method: "second"})
	require.Equal(t, 1, batch.Len())

	fake := ledgertest.New(common.Address{})
	_, err := batch.Exec(context.Background(), fake)
	require.NoError(t, err)
	require.Len(t, fake.Reads, 1)
	assert.Equal(t, "second", fake.Reads[0].Method)
}

func TestBatchShapeMismatch(t *testing.T) {
	fake := ledgertest.New(common.Address{})
	fake.ShortBatch = true

	batch := ledger.NewBatch()
	batch.Add("a", ledger.Call{Method: "a"})
	batch.Add("b", ledger.Call{Method: "b"})
	_, err := batch.Exec(context.Background(), fake)
	assert.Error(t, err)
}

func TestBatchTransportError(t *testing.T) {
	fake := ledgertest.New(common.Address{})
	fake.BatchErr = errors.New("connection refused")

	batch := ledger.NewBatch()
	batch.Add("a", ledger.Call{Method: "a"})
	_, err := batch.Exec(context.Background(), fake)
	assert.ErrorIs(t, err, fake.BatchErr)
}

func TestValueConversions(t *testing.T) {
	n, err := ledger.AsBigInt(uint64(42))
	require.NoError(t, err)
	assert.Equal(t, "42", n.String())

	_, err = ledger.AsUint8(big.NewInt(300))
	assert.Error(t, err)
	for _, wide := range []interface{}{uint16(300), uint32(256), uint64(1 << 40)} {
		_, err = ledger.AsUint8(wide)
		assert.Error(t, err, "%T %v must not truncate", wide, wide)
	}
	d, err := ledger.AsUint8(uint64(18))
	require.NoError(t, err)
	assert.Equal(t, uint8(18), d)

	var raw [32]byte
	copy(raw[:], "SRF")
	s, err := ledger.AsString(raw)
	require.NoError(t, err)
	assert.Equal(t, "SRF", s)

	_, err = ledger.AsAddress("0x01")
	assert.Error(t, err)
}
