package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "development" {
		t.Errorf("expected env=development, got %s", cfg.Env)
	}

	if cfg.Relayer.URL != "wss://relayer.tessera.markets/ws" {
		t.Errorf("unexpected relayer url: %s", cfg.Relayer.URL)
	}

	if cfg.Chain.ID != 8453 {
		t.Errorf("expected chain id 8453, got %d", cfg.Chain.ID)
	}

	if cfg.Vault.PollInterval != 15*time.Second {
		t.Errorf("expected 15s poll interval, got %v", cfg.Vault.PollInterval)
	}

	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis addr localhost:6379, got %s", cfg.Redis.Addr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("TESSERA_ENV", "production")
	os.Setenv("TESSERA_RELAYER_URL", "wss://staging.example/ws")
	os.Setenv("TESSERA_CHAIN_RESOLVER_ADDRESS", "0x9999999999999999999999999999999999999999")
	defer os.Unsetenv("TESSERA_ENV")
	defer os.Unsetenv("TESSERA_RELAYER_URL")
	defer os.Unsetenv("TESSERA_CHAIN_RESOLVER_ADDRESS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("expected env=production, got %s", cfg.Env)
	}

	if cfg.Relayer.URL != "wss://staging.example/ws" {
		t.Errorf("unexpected relayer url: %s", cfg.Relayer.URL)
	}

	if cfg.Chain.ResolverAddress != "0x9999999999999999999999999999999999999999" {
		t.Errorf("unexpected resolver address: %s", cfg.Chain.ResolverAddress)
	}
}

func TestLoadRejectsEmptyRelayerURL(t *testing.T) {
	os.Setenv("TESSERA_RELAYER_URL", "   ")
	defer os.Unsetenv("TESSERA_RELAYER_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for blank relayer url")
	}
}
