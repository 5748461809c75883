package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"voucherPools/internal/ledger"
	"voucherPools/internal/model"
)

func TestPollReceiptFoundAfterRetries(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (*ledger.Receipt, error) {
		calls++
		if calls < 3 {
			return nil, nil
		}
		return &ledger.Receipt{Success: true, BlockNumber: 10}, nil
	}
	head := func(context.Context) (uint64, error) { return 10, nil }

	got, err := pollReceipt(context.Background(), fetch, head, ledger.ReceiptPolicy{RetryCount: 5, Confirmations: 1}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Success || calls != 3 {
		t.Fatalf("unexpected result: %+v after %d calls", got, calls)
	}
}

func TestPollReceiptTimeout(t *testing.T) {
	calls := 0
	fetch := func(context.Context) (*ledger.Receipt, error) {
		calls++
		return nil, nil
	}

	_, err := pollReceipt(context.Background(), fetch, nil, ledger.ReceiptPolicy{RetryCount: 2}, nil)
	if !errors.Is(err, model.ErrReceiptTimeout) {
		t.Fatalf("expected ErrReceiptTimeout, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestPollReceiptWaitsForConfirmations(t *testing.T) {
	heads := []uint64{10, 11, 12}
	fetch := func(context.Context) (*ledger.Receipt, error) {
		return &ledger.Receipt{Success: true, BlockNumber: 10}, nil
	}
	i := 0
	head := func(context.Context) (uint64, error) {
		h := heads[i]
		i++
		return h, nil
	}

	got, err := pollReceipt(context.Background(), fetch, head, ledger.ReceiptPolicy{RetryCount: 5, Confirmations: 3}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BlockNumber != 10 || i != 3 {
		t.Fatalf("expected confirmation at head 12, polled %d heads", i)
	}
}

func TestPollReceiptRevertedReturnsImmediately(t *testing.T) {
	fetch := func(context.Context) (*ledger.Receipt, error) {
		return &ledger.Receipt{Success: false, BlockNumber: 4}, nil
	}
	got, err := pollReceipt(context.Background(), fetch, nil, ledger.ReceiptPolicy{Confirmations: 5}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Success {
		t.Fatalf("expected reverted receipt")
	}
}

func TestPollReceiptContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(context.Context) (*ledger.Receipt, error) {
		cancel()
		return nil, errors.New("temporary")
	}
	_, err := pollReceipt(ctx, fetch, nil, ledger.ReceiptPolicy{RetryCount: 10, RetryDelay: time.Hour}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got %v after %d", err, calls)
	}
}

func TestWithRetryStopsOnRevert(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("execution reverted: not owner")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected single attempt, got %d (%v)", calls, err)
	}
}
