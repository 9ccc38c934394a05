// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Solana   SolanaConfig   `mapstructure:"solana"`
	Game     GameConfig     `mapstructure:"game"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the leaderboard cache configuration. An empty address
// disables the cache; leaderboards then fall back to Postgres queries.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SolanaConfig holds chain client and reconciler configuration.
// Token amounts are in base units (the mint has 6 decimals), SOL amounts in
// lamports. Matching in the reconciler is amount-exact.
type SolanaConfig struct {
	RPCURL              string `mapstructure:"rpc_url"`
	WSURL               string `mapstructure:"ws_url"`
	TokenMint           string `mapstructure:"token_mint"`
	DepositTokenAccount string `mapstructure:"deposit_token_account"`
	AdminAddress        string `mapstructure:"admin_address"`
	AdminPrivateKey     string `mapstructure:"admin_private_key"`
	LinkAmountTokens    uint64 `mapstructure:"link_amount_tokens"`
	HolderMinTokens     uint64 `mapstructure:"holder_min_tokens"`
	PaidAccessLamports  uint64 `mapstructure:"paid_access_lamports"`
}

// GameConfig holds gameplay and daily-cycle configuration.
type GameConfig struct {
	FreePlaysPerDay   int   `mapstructure:"free_plays_per_day"`
	PointsPerObstacle int64 `mapstructure:"points_per_obstacle"`
	DailyRewardTokens int64 `mapstructure:"daily_reward_tokens"`
	PaidAccessHours   int   `mapstructure:"paid_access_hours"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, SOLANA_RPC_URL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pumpshie")
	v.SetDefault("database.name", "pumpshie")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.ws_url", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("solana.link_amount_tokens", 1_000_000) // 1 token at 6 decimals
	v.SetDefault("solana.holder_min_tokens", 100_000_000_000)
	v.SetDefault("solana.paid_access_lamports", 5_000_000) // 0.005 SOL

	v.SetDefault("game.free_plays_per_day", 10)
	v.SetDefault("game.points_per_obstacle", 5000)
	v.SetDefault("game.daily_reward_tokens", 126000)
	v.SetDefault("game.paid_access_hours", 24)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
