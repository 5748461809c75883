package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Confirmations != 1 || cfg.RetryCount != 30 {
		t.Fatalf("unexpected receipt defaults: %+v", cfg.ReceiptPolicy())
	}
	if cfg.Listen != ":8080" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	content := "rpc: http://file\nconfirmations: 3\ndiscord-webhooks:\n  - https://a\n  - https://b\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("POOLS_RETRY_DELAY", "3s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	if err := flags.Parse([]string{"--rpc", "http://flag"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURL != "http://flag" {
		t.Fatalf("flag should win, got %s", cfg.RPCURL)
	}
	if cfg.Confirmations != 3 {
		t.Fatalf("file confirmations = %d", cfg.Confirmations)
	}
	if cfg.RetryDelay != 3*time.Second {
		t.Fatalf("env retry delay = %s", cfg.RetryDelay)
	}
	if len(cfg.DiscordWebhooks) != 2 {
		t.Fatalf("webhooks = %v", cfg.DiscordWebhooks)
	}
	if cfg.Chain().DeployPolicy.Confirmations != 3 {
		t.Fatalf("deploy policy not derived from config")
	}
}

func TestSplitAndClean(t *testing.T) {
	got := splitAndClean(" https://a, ,https://b ")
	if len(got) != 2 || got[0] != "https://a" || got[1] != "https://b" {
		t.Fatalf("splitAndClean = %v", got)
	}
}
