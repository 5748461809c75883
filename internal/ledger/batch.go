package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Batch collects keyed calls sent in one round trip. Results are looked up by
// key, so callers never decode by position.
type Batch struct {
	keys  []string
	calls []Call
	index map[string]int
}

func NewBatch() *Batch {
	return &Batch{index: make(map[string]int)}
}

// Key names a per-address field inside a batch.
func Key(field string, address common.Address) string {
	return field + ":" + address.Hex()
}

// Add queues a call under key. Adding the same key twice replaces the call.
func (b *Batch) Add(key string, call Call) {
	if i, ok := b.index[key]; ok {
		b.calls[i] = call
		return
	}
	b.index[key] = len(b.calls)
	b.keys = append(b.keys, key)
	b.calls = append(b.calls, call)
}

func (b *Batch) Len() int {
	return len(b.calls)
}

// Exec sends the batch and returns the results keyed by call key.
func (b *Batch) Exec(ctx context.Context, reader Reader) (Results, error) {
	if len(b.calls) == 0 {
		return Results{}, nil
	}
	results, err := reader.BatchRead(ctx, b.calls)
	if err != nil {
		return nil, err
	}
	if len(results) != len(b.calls) {
		return nil, fmt.Errorf("batch returned %d results for %d calls", len(results), len(b.calls))
	}
	out := make(Results, len(results))
	for i, key := range b.keys {
		out[key] = results[i]
	}
	return out, nil
}

// Results maps call keys to their results.
type Results map[string]Result

// Values returns the decoded outputs for key or the call's error.
func (r Results) Values(key string) ([]interface{}, error) {
	res, ok := r[key]
	if !ok {
		return nil, fmt.Errorf("no result for %s", key)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if len(res.Values) == 0 {
		return nil, fmt.Errorf("empty result for %s", key)
	}
	return res.Values, nil
}

// Address decodes the first output of key as an address.
func (r Results) Address(key string) (common.Address, error) {
	values, err := r.Values(key)
	if err != nil {
		return common.Address{}, err
	}
	return AsAddress(values[0])
}

// BigInt decodes the first output of key as an integer.
func (r Results) BigInt(key string) (*big.Int, error) {
	values, err := r.Values(key)
	if err != nil {
		return nil, err
	}
	return AsBigInt(values[0])
}

// Uint8 decodes the first output of key as a uint8.
func (r Results) Uint8(key string) (uint8, error) {
	values, err := r.Values(key)
	if err != nil {
		return 0, err
	}
	return AsUint8(values[0])
}

// String decodes the first output of key as a string.
func (r Results) String(key string) (string, error) {
	values, err := r.Values(key)
	if err != nil {
		return "", err
	}
	return AsString(values[0])
}
