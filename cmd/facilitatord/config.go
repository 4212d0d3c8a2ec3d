package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the daemon configuration, loaded from config.yml and overridden
// by X402-prefixed environment variables.
type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Solana struct {
		Network string `mapstructure:"network"`
		RPCURL  string `mapstructure:"rpc_url"`

		// FeePayerKey is a base58 private key; FeePayerKeygenFile points at a
		// solana-keygen JSON file. One of the two funds transaction fees.
		FeePayerKey        string `mapstructure:"fee_payer_key"`
		FeePayerKeygenFile string `mapstructure:"fee_payer_keygen_file"`
	} `mapstructure:"solana"`

	Replay struct {
		RedisURL  string        `mapstructure:"redis_url"`
		Retention time.Duration `mapstructure:"retention"`
	} `mapstructure:"replay"`

	Receipts struct {
		Path              string        `mapstructure:"path"`
		ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
		ReconcileMaxAge   time.Duration `mapstructure:"reconcile_max_age"`
	} `mapstructure:"receipts"`

	Gateway struct {
		ChallengeTTL      time.Duration          `mapstructure:"challenge_ttl"`
		MaxTimeoutSeconds int                    `mapstructure:"max_timeout_seconds"`
		WebhookURL        string                 `mapstructure:"webhook_url"`
		Routes            map[string]RouteConfig `mapstructure:"routes"`
	} `mapstructure:"gateway"`
}

// RouteConfig prices one protected route.
type RouteConfig struct {
	Asset  string `mapstructure:"asset"`
	Amount string `mapstructure:"amount"`
	PayTo  string `mapstructure:"pay_to"`
}

func loadConfig(path string) (*Config, error) {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix("X402")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8402")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("replay.retention", time.Hour)
	v.SetDefault("receipts.reconcile_interval", 30*time.Second)
	v.SetDefault("receipts.reconcile_max_age", 10*time.Minute)
	v.SetDefault("gateway.challenge_ttl", 5*time.Minute)
	v.SetDefault("gateway.max_timeout_seconds", 60)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; environment and defaults carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Solana.Network == "" {
		return nil, fmt.Errorf("solana.network is required")
	}

	return &cfg, nil
}
