package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"voucherPools/internal/chain"
	"voucherPools/internal/ledger"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	PrivateKey      string
	ChainID         uint64
	ArtifactsDir    string
	PoolIndex       string
	PGDSN           string
	DiscordWebhooks []string
	PoolURL         string
	Confirmations   uint64
	RetryCount      int
	RetryDelay      time.Duration
	PollingInterval time.Duration
	RPCRate         int
	RPCBatchLimit   int
	MaxRetries      int
	RetryBackoff    time.Duration
	LogLevel        string
	LogFile         string
	Listen          string
	EventsOut       string
}

// ReceiptPolicy is the configured receipt wait.
func (c Config) ReceiptPolicy() ledger.ReceiptPolicy {
	return ledger.ReceiptPolicy{
		Confirmations:   c.Confirmations,
		RetryCount:      c.RetryCount,
		RetryDelay:      c.RetryDelay,
		PollingInterval: c.PollingInterval,
	}
}

// Chain returns the chain client settings.
func (c Config) Chain() chain.Config {
	return chain.Config{
		RPCURL:       c.RPCURL,
		PrivateKey:   c.PrivateKey,
		ChainID:      c.ChainID,
		RateLimit:    c.RPCRate,
		BatchLimit:   c.RPCBatchLimit,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		DeployPolicy: c.ReceiptPolicy(),
	}
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := ledger.DefaultReceiptPolicy
	v.SetDefault("artifacts-dir", "./artifacts")
	v.SetDefault("confirmations", def.Confirmations)
	v.SetDefault("retry-count", def.RetryCount)
	v.SetDefault("retry-delay", def.RetryDelay)
	v.SetDefault("polling-interval", def.PollingInterval)
	v.SetDefault("rpc-rate", 0)
	v.SetDefault("rpc-batch-limit", 100)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
	v.SetDefault("listen", ":8080")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		PrivateKey:      v.GetString("private-key"),
		ChainID:         v.GetUint64("chain-id"),
		ArtifactsDir:    v.GetString("artifacts-dir"),
		PoolIndex:       v.GetString("pool-index"),
		PGDSN:           v.GetString("pg-dsn"),
		DiscordWebhooks: getStringSlice(v, "discord-webhooks"),
		PoolURL:         v.GetString("pool-url"),
		Confirmations:   v.GetUint64("confirmations"),
		RetryCount:      v.GetInt("retry-count"),
		RetryDelay:      v.GetDuration("retry-delay"),
		PollingInterval: v.GetDuration("polling-interval"),
		RPCRate:         v.GetInt("rpc-rate"),
		RPCBatchLimit:   v.GetInt("rpc-batch-limit"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LogLevel:        v.GetString("log-level"),
		LogFile:         v.GetString("log-file"),
		Listen:          v.GetString("listen"),
		EventsOut:       v.GetString("events-out"),
	}

	if cfg.RetryCount < 0 {
		return Config{}, fmt.Errorf("retry-count must not be negative")
	}
	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
