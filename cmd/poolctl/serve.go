package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voucherPools/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve snapshots, quotes, deployments and metrics over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().Bool("enable-deploy", false, "accept deployments on /deploy")
	addDeployFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	agg, err := a.aggregator()
	if err != nil {
		return err
	}
	opts := api.Options{
		Gatherer: a.registry,
		Events:   a.events,
		Logger:   a.logger,
	}
	if enabled, _ := cmd.Flags().GetBool("enable-deploy"); enabled {
		saga, closeSaga, err := a.saga(ctx, nil)
		if err != nil {
			return err
		}
		defer closeSaga()
		defer saga.Wait()
		opts.Deployer = saga
	}

	a.logger.Info("serve start", zap.String("listen", a.cfg.Listen), zap.Bool("deploy", opts.Deployer != nil))
	return api.NewServer(agg, opts).ListenAndServe(ctx, a.cfg.Listen)
}
