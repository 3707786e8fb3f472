package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL           string   `mapstructure:"REDIS_URL"`
	AuthIssuer         string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey     string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	MasterKey          string   `mapstructure:"MASTER_KEY"`
	ChainGatewayURL    string   `mapstructure:"CHAIN_GATEWAY_URL"`
	ChainGatewaySecret string   `mapstructure:"CHAIN_GATEWAY_SECRET"`
	IPFSAPIURL         string   `mapstructure:"IPFS_API_URL"`
	RateLimitRPS       float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int      `mapstructure:"RATE_LIMIT_BURST"`
	ReconcileInterval  string   `mapstructure:"RECONCILE_INTERVAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("RECONCILE_INTERVAL", "15s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
		"AUTH_SIGNING_KEY", "CORS_ORIGINS", "MASTER_KEY",
		"CHAIN_GATEWAY_URL", "CHAIN_GATEWAY_SECRET", "IPFS_API_URL",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RECONCILE_INTERVAL",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a real
// JWT issuer (or explicit signing key) and the key-vault master key are
// required; the master key must be a 64-character hex string (32 bytes).
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AuthIssuer == "" && c.AuthSigningKey == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set in production; " +
				"refusing to start without authentication configuration")
		}
		if c.MasterKey == "" {
			return fmt.Errorf("MASTER_KEY is required in production")
		}
		if c.ChainGatewayURL == "" {
			return fmt.Errorf("CHAIN_GATEWAY_URL is required in production")
		}
	}

	if c.MasterKey != "" {
		keyBytes, err := hex.DecodeString(c.MasterKey)
		if err != nil {
			return fmt.Errorf("MASTER_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("MASTER_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	return nil
}
