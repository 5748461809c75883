package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"voucherPools/internal/config"
	"voucherPools/internal/model"
	"voucherPools/internal/storage/postgres"
)

// metadataStore is the part of the Postgres store the metadata commands edit.
type metadataStore interface {
	GetPool(ctx context.Context, pool common.Address) (model.PoolMetadata, error)
	UpdatePool(ctx context.Context, meta model.PoolMetadata) error
	AddTags(ctx context.Context, pool common.Address, tags []string) error
	RemoveTags(ctx context.Context, pool common.Address, tags []string) error
	DeletePool(ctx context.Context, pool common.Address) error
}

type metadataFunc func(ctx context.Context, store metadataStore, pool common.Address, flags *pflag.FlagSet) (interface{}, error)

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Inspect and edit off-chain pool metadata",
	}

	update := newMetadataSubCmd("update", "Change a pool's name, symbol, description or banner", runMetadataUpdate)
	update.Flags().String("name", "", "pool name")
	update.Flags().String("symbol", "", "pool symbol")
	update.Flags().String("description", "", "pool description")
	update.Flags().String("banner-url", "", "pool banner image URL")

	tag := newMetadataSubCmd("tag", "Add tags to a pool", runMetadataTag)
	tag.Flags().StringSlice("tags", nil, "tags to add (comma-separated)")
	untag := newMetadataSubCmd("untag", "Remove tags from a pool", runMetadataUntag)
	untag.Flags().StringSlice("tags", nil, "tags to remove (comma-separated)")

	cmd.AddCommand(
		newMetadataSubCmd("show", "Print a pool's metadata", runMetadataShow),
		update,
		tag,
		untag,
		newMetadataSubCmd("delete", "Delete a pool's metadata; the contracts are untouched", runMetadataDelete),
	)
	return cmd
}

// newMetadataSubCmd needs only Postgres, so it skips the RPC wiring of newApp.
func newMetadataSubCmd(use, short string, run metadataFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfgFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			pool, err := model.ParseAddress(str(cmd, "pool"))
			if err != nil {
				return fmt.Errorf("pool: %w", err)
			}
			store, err := postgres.NewStore(ctx, cfg.PGDSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer store.Close()

			out, err := run(ctx, store, pool, cmd.Flags())
			if err != nil {
				return err
			}
			logger.Info("metadata "+use, zap.String("pool", pool.Hex()))
			return printJSON(out)
		},
	}
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for pool metadata")
	return cmd
}

func runMetadataShow(ctx context.Context, store metadataStore, pool common.Address, _ *pflag.FlagSet) (interface{}, error) {
	return store.GetPool(ctx, pool)
}

// runMetadataUpdate rewrites only the fields whose flags were given.
func runMetadataUpdate(ctx context.Context, store metadataStore, pool common.Address, flags *pflag.FlagSet) (interface{}, error) {
	meta, err := store.GetPool(ctx, pool)
	if err != nil {
		return nil, err
	}
	if err := applyMetadataFlags(&meta, flags); err != nil {
		return nil, err
	}
	if err := store.UpdatePool(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func runMetadataTag(ctx context.Context, store metadataStore, pool common.Address, flags *pflag.FlagSet) (interface{}, error) {
	tags, err := tagsFlag(flags)
	if err != nil {
		return nil, err
	}
	if err := store.AddTags(ctx, pool, tags); err != nil {
		return nil, err
	}
	return store.GetPool(ctx, pool)
}

func runMetadataUntag(ctx context.Context, store metadataStore, pool common.Address, flags *pflag.FlagSet) (interface{}, error) {
	tags, err := tagsFlag(flags)
	if err != nil {
		return nil, err
	}
	if err := store.RemoveTags(ctx, pool, tags); err != nil {
		return nil, err
	}
	return store.GetPool(ctx, pool)
}

type deletedPool struct {
	Pool    common.Address `json:"pool"`
	Deleted bool           `json:"deleted"`
}

func runMetadataDelete(ctx context.Context, store metadataStore, pool common.Address, _ *pflag.FlagSet) (interface{}, error) {
	if err := store.DeletePool(ctx, pool); err != nil {
		return nil, err
	}
	return deletedPool{Pool: pool, Deleted: true}, nil
}

func applyMetadataFlags(meta *model.PoolMetadata, flags *pflag.FlagSet) error {
	changed := false
	for _, field := range []struct {
		flag     string
		dst      *string
		required bool
	}{
		{"name", &meta.Name, true},
		{"symbol", &meta.Symbol, true},
		{"description", &meta.Description, false},
		{"banner-url", &meta.BannerURL, false},
	} {
		if !flags.Changed(field.flag) {
			continue
		}
		value, _ := flags.GetString(field.flag)
		value = strings.TrimSpace(value)
		if field.required && value == "" {
			return fmt.Errorf("%s must not be empty", field.flag)
		}
		*field.dst = value
		changed = true
	}
	if !changed {
		return errors.New("nothing to update: pass --name, --symbol, --description or --banner-url")
	}
	return nil
}

func tagsFlag(flags *pflag.FlagSet) ([]string, error) {
	tags, _ := flags.GetStringSlice("tags")
	tags = model.NormalizeTags(tags)
	if len(tags) == 0 {
		return nil, errors.New("--tags is required")
	}
	return tags, nil
}
