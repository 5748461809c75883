package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"voucherPools/internal/ledger"
	"voucherPools/internal/model"
)

type receiptFetcher func(ctx context.Context) (*ledger.Receipt, error)

type headFetcher func(ctx context.Context) (uint64, error)

// pollReceipt waits until the receipt exists with enough confirmations.
// Every unsuccessful poll, whether the receipt is missing, the node errored or
// confirmations are still short, consumes one retry; running out of retries
// returns ErrReceiptTimeout.
func pollReceipt(ctx context.Context, fetch receiptFetcher, head headFetcher, policy ledger.ReceiptPolicy, logger *zap.Logger) (ledger.Receipt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.RetryCount < 0 {
		policy.RetryCount = 0
	}
	confirmations := policy.Confirmations
	if confirmations == 0 {
		confirmations = 1
	}

	for attempt := 0; ; attempt++ {
		delay := policy.RetryDelay

		receipt, err := fetch(ctx)
		switch {
		case err != nil:
			logger.Warn("receipt fetch failed", zap.Int("attempt", attempt), zap.Error(err))
		case receipt == nil:
			logger.Debug("receipt not found", zap.Int("attempt", attempt))
		case !receipt.Success:
			return *receipt, nil
		default:
			if confirmations == 1 {
				return *receipt, nil
			}
			latest, err := head(ctx)
			if err != nil {
				logger.Warn("block number fetch failed", zap.Error(err))
			} else if latest >= receipt.BlockNumber && latest-receipt.BlockNumber+1 >= confirmations {
				return *receipt, nil
			}
			delay = policy.PollingInterval
		}

		if attempt >= policy.RetryCount {
			return ledger.Receipt{}, fmt.Errorf("%w after %d attempts", model.ErrReceiptTimeout, attempt+1)
		}

		if err := sleep(ctx, delay); err != nil {
			return ledger.Receipt{}, err
		}
	}
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errReverted(hash common.Hash) error {
	return fmt.Errorf("%w: %s", model.ErrReverted, hash.Hex())
}
