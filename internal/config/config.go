package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Env     string `mapstructure:"env"`
	Relayer RelayerConfig
	Chain   ChainConfig
	Vault   VaultConfig
	Redis   RedisConfig
	Signer  SignerConfig
}

// RelayerConfig holds the relayer endpoints.
type RelayerConfig struct {
	URL      string `mapstructure:"url"`       // WebSocket endpoint
	QuoteURL string `mapstructure:"quote_url"` // REST fallback for vault quotes
}

// ChainConfig holds on-chain addresses and the RPC endpoint.
type ChainConfig struct {
	ID              int64  `mapstructure:"id"`
	RPCURL          string `mapstructure:"rpc_url"`
	ResolverAddress string `mapstructure:"resolver_address"`
	MarketAddress   string `mapstructure:"market_address"` // prediction-market contract (nonces)
}

// VaultConfig identifies the vault whose quotes are tracked.
type VaultConfig struct {
	Address      string        `mapstructure:"address"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SignerConfig holds the wallet key used for quote publishing. An empty
// key means the process runs watch-only.
type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

var ErrMissingRelayerURL = errors.New("relayer url is required")

// Load reads configuration from environment variables prefixed with TESSERA_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TESSERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")

	// Relayer defaults
	v.SetDefault("relayer.url", "wss://relayer.tessera.markets/ws")
	v.SetDefault("relayer.quote_url", "")

	// Chain defaults (Base mainnet)
	v.SetDefault("chain.id", 8453)
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.resolver_address", "")
	v.SetDefault("chain.market_address", "")

	// Vault defaults
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.poll_interval", 15*time.Second)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Signer defaults
	v.SetDefault("signer.private_key", "")

	cfg := &Config{}

	cfg.Env = v.GetString("env")

	cfg.Relayer = RelayerConfig{
		URL:      v.GetString("relayer.url"),
		QuoteURL: v.GetString("relayer.quote_url"),
	}

	cfg.Chain = ChainConfig{
		ID:              v.GetInt64("chain.id"),
		RPCURL:          v.GetString("chain.rpc_url"),
		ResolverAddress: v.GetString("chain.resolver_address"),
		MarketAddress:   v.GetString("chain.market_address"),
	}

	cfg.Vault = VaultConfig{
		Address:      v.GetString("vault.address"),
		PollInterval: v.GetDuration("vault.poll_interval"),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}

	cfg.Signer = SignerConfig{
		PrivateKey: v.GetString("signer.private_key"),
	}

	if strings.TrimSpace(cfg.Relayer.URL) == "" {
		return nil, ErrMissingRelayerURL
	}

	return cfg, nil
}
