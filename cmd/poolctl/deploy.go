package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voucherPools/internal/contracts"
	"voucherPools/internal/deploy"
	"voucherPools/internal/model"
	"voucherPools/internal/notify"
	"voucherPools/internal/storage"
	"voucherPools/internal/storage/postgres"
)

func addDeployFlags(cmd *cobra.Command) {
	cmd.Flags().String("artifacts-dir", "./artifacts", "directory with <Contract>.bin bytecode files")
	cmd.Flags().String("pool-index", "", "global pool index address")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for pool metadata")
	cmd.Flags().StringSlice("discord-webhooks", nil, "Discord webhook URLs (comma-separated)")
	cmd.Flags().String("pool-url", "", "pool page URL template, %s is the pool address")
}

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a new swap pool and hand it to its owner",
		RunE:  runDeploy,
	}
	addDeployFlags(cmd)
	cmd.Flags().String("name", "", "pool name")
	cmd.Flags().String("symbol", "", "pool symbol")
	cmd.Flags().Uint8("decimals", 6, "pool decimals")
	cmd.Flags().String("description", "", "pool description")
	cmd.Flags().String("banner-url", "", "pool banner image URL")
	cmd.Flags().StringSlice("tags", nil, "pool tags (comma-separated)")
	cmd.Flags().String("owner", "", "address that receives ownership")
	cmd.Flags().String("checkpoint", "./data/deploy-checkpoint.json", "deployment progress file, empty disables it")
	cmd.Flags().Bool("resume", false, "continue the deployment recorded in --checkpoint")
	return cmd
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	f := cmd.Flags()
	checkpointPath, _ := f.GetString("checkpoint")
	saga, closeSaga, err := a.saga(ctx, deploy.NewCheckpointStore(checkpointPath))
	if err != nil {
		return err
	}
	defer closeSaga()

	emit := func(ev model.ProgressEvent) {
		a.record(storage.FromProgress("deploy", ev))
		_ = printJSON(ev)
	}
	var pool common.Address
	if resume, _ := f.GetBool("resume"); resume {
		pool, err = saga.Resume(ctx, emit)
	} else {
		req := deploy.Request{}
		req.Name, _ = f.GetString("name")
		req.Symbol, _ = f.GetString("symbol")
		req.Decimals, _ = f.GetUint8("decimals")
		req.Description, _ = f.GetString("description")
		req.BannerURL, _ = f.GetString("banner-url")
		req.Tags, _ = f.GetStringSlice("tags")
		req.Owner, _ = f.GetString("owner")
		pool, err = saga.Run(ctx, req, emit)
	}
	saga.Wait()
	if err != nil {
		return err
	}
	a.logger.Info("pool ready", zap.String("pool", pool.Hex()))
	return nil
}

// saga wires the deployment saga; the returned func releases the metadata store.
func (a *app) saga(ctx context.Context, checkpoints *deploy.CheckpointStore) (*deploy.Saga, func(), error) {
	poolIndex, err := model.ParseAddress(a.cfg.PoolIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("pool-index: %w", err)
	}
	artifacts, err := contracts.LoadArtifacts(a.cfg.ArtifactsDir)
	if err != nil {
		return nil, nil, err
	}
	store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	var notifier deploy.Notifier
	if len(a.cfg.DiscordWebhooks) > 0 {
		notifier = notify.NewDiscord(a.cfg.DiscordWebhooks, notify.Options{
			PoolURL: a.cfg.PoolURL,
			Logger:  a.logger,
		})
	}

	saga, err := deploy.NewSaga(a.client, artifacts, store, deploy.Options{
		PoolIndex:   poolIndex,
		Policy:      a.cfg.ReceiptPolicy(),
		Notifier:    notifier,
		Checkpoints: checkpoints,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return saga, store.Close, nil
}
