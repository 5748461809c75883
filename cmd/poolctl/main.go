package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"voucherPools/internal/chain"
	"voucherPools/internal/config"
	"voucherPools/internal/ledger"
	"voucherPools/internal/metrics"
	"voucherPools/internal/model"
	"voucherPools/internal/sequencer"
	"voucherPools/internal/snapshot"
	"voucherPools/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Deploy, inspect and operate voucher swap pools",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "JSON-RPC URL")
	flags.String("private-key", "", "hex signing key for transactions")
	flags.Uint64("chain-id", 0, "chain id, 0 queries the node")
	flags.Uint64("confirmations", ledger.DefaultReceiptPolicy.Confirmations, "confirmations to wait for")
	flags.Int("retry-count", ledger.DefaultReceiptPolicy.RetryCount, "receipt polls before giving up")
	flags.Duration("retry-delay", ledger.DefaultReceiptPolicy.RetryDelay, "delay between receipt polls")
	flags.Duration("polling-interval", ledger.DefaultReceiptPolicy.PollingInterval, "delay between confirmation checks")
	flags.Int("rpc-rate", 0, "max RPC requests per second, 0 is unlimited")
	flags.Int("rpc-batch-limit", 100, "max eth_calls per JSON-RPC batch")
	flags.Int("max-retries", 5, "maximum retry attempts for reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("events-out", "", "append progress events to this JSONL file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this rotated file")

	root.AddCommand(
		newDeployCmd(),
		newSnapshotCmd(),
		newQuoteCmd(),
		newServeCmd(),
		newMetadataCmd(),
	)
	root.AddCommand(newFlowCmds()...)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	client   *chain.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	events   *storage.JsonlStorage
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	client, err := chain.NewClient(ctx, cfg.Chain(), logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	logger.Debug("rpc connected",
		zap.String("chain_id", client.ChainID().String()),
		zap.String("signer", client.From().Hex()),
	)

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		registry: registry,
		metrics:  metrics.New(registry),
		events:   storage.NewJsonlStorage(cfg.EventsOut),
	}, nil
}

func (a *app) Close() {
	a.client.Close()
	_ = a.logger.Sync()
}

func (a *app) aggregator() (*snapshot.Aggregator, error) {
	return snapshot.NewAggregator(a.client, snapshot.NewVoucherCache(), a.metrics, a.logger)
}

func (a *app) sequencer() (*sequencer.Sequencer, error) {
	return sequencer.New(a.client, sequencer.Options{
		Policy:  a.cfg.ReceiptPolicy(),
		Metrics: a.metrics,
		Logger:  a.logger,
		OnProgress: func(n sequencer.Notification) {
			rec := storage.EventRecord{
				Time:    time.Now().UTC(),
				Source:  n.Flow,
				Message: n.Message,
				Status:  n.Status,
			}
			if n.TxHash != (common.Hash{}) {
				rec.TxHash = n.TxHash.Hex()
			}
			if n.Status == model.StatusError {
				rec.Error = n.Message
			}
			a.record(rec)
		},
	})
}

func (a *app) record(rec storage.EventRecord) {
	if err := a.events.PutEvents([]storage.EventRecord{rec}); err != nil {
		a.logger.Warn("record event", zap.Error(err))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil || file == "" {
		return logger, err
	}

	rotated := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotated, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}
