// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/launchpad/internal/exchange"
	"github.com/rovshanmuradov/launchpad/internal/logger"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// EnvPrefix prefixes every environment override, e.g. LAUNCHPAD_ADMIN.
const EnvPrefix = "LAUNCHPAD"

type Config struct {
	Admin             string          `mapstructure:"admin"`
	Platform          string          `mapstructure:"platform"`
	EcosystemTreasury string          `mapstructure:"ecosystem_treasury"`
	Exchange          exchange.Params `mapstructure:"exchange"`
	Logging           logger.Config   `mapstructure:"logging"`
	Storage           StorageConfig   `mapstructure:"storage"`
	Metrics           MetricsConfig   `mapstructure:"metrics"`
	Indexer           IndexerConfig   `mapstructure:"indexer"`
	API               APIConfig       `mapstructure:"api"`
}

type StorageConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	PostgresURL  string `mapstructure:"postgres_url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type APIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Listen            string        `mapstructure:"listen"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type IndexerConfig struct {
	BufferSize      int           `mapstructure:"buffer_size"`
	MaxRetries      uint          `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	// PublishTimeout is how long a commit waits for room on a full event
	// queue. Zero never waits.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

const (
	DefaultPlatform        = "launchpad"
	DefaultMetricsListen   = ":9090"
	DefaultAPIListen       = ":8080"
	DefaultReadHeaderTO    = 5 * time.Second
	DefaultShutdownTO      = 10 * time.Second
	DefaultBufferSize      = 1024
	DefaultMaxRetries      = 5
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
	DefaultPublishTimeout  = 5 * time.Second
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
)

func defaults() map[string]interface{} {
	p := exchange.DefaultParams()
	log := logger.DefaultConfig()
	return map[string]interface{}{
		"platform": DefaultPlatform,

		"exchange.fees.total_bps":                 uint64(p.Fees.TotalBps),
		"exchange.fees.creator_bps":               uint64(p.Fees.CreatorBps),
		"exchange.fees.platform_bps":              uint64(p.Fees.PlatformBps),
		"exchange.fees.treasury_bps":              uint64(p.Fees.TreasuryBps),
		"exchange.curve.base_price":               p.Curve.BasePrice,
		"exchange.curve.coefficient":              p.Curve.Coefficient,
		"exchange.max_hold_bps":                   uint64(p.MaxHoldBps),
		"exchange.max_hold_min_supply":            p.MaxHoldMinSupply,
		"exchange.post_threshold":                 p.PostThreshold,
		"exchange.profile_threshold":              p.ProfileThreshold,
		"exchange.max_individual_reservation_bps": uint64(p.MaxIndividualReserveBp),
		"exchange.auto_launch_allowed":            p.AutoLaunchAllowed,
		"exchange.auto_launch_period":             p.AutoLaunchPeriod,
		"exchange.auto_launch_max_per_period":     p.AutoLaunchMaxPerPeriod,

		"logging.file":         log.LogFile,
		"logging.max_size_mb":  log.MaxSize,
		"logging.max_age_days": log.MaxAge,
		"logging.max_backups":  log.MaxBackups,
		"logging.compress":     log.Compress,
		"logging.development":  log.Development,
		"logging.pretty":       log.Pretty,

		"storage.enabled":        false,
		"storage.max_open_conns": DefaultMaxOpenConns,
		"storage.max_idle_conns": DefaultMaxIdleConns,

		"metrics.enabled": false,
		"metrics.listen":  DefaultMetricsListen,

		"api.enabled":             false,
		"api.listen":              DefaultAPIListen,
		"api.allowed_origins":     []string{"*"},
		"api.read_header_timeout": DefaultReadHeaderTO,
		"api.shutdown_timeout":    DefaultShutdownTO,

		"indexer.buffer_size":      DefaultBufferSize,
		"indexer.max_retries":      DefaultMaxRetries,
		"indexer.initial_interval": DefaultInitialInterval,
		"indexer.max_interval":     DefaultMaxInterval,
		"indexer.publish_timeout":  DefaultPublishTimeout,
	}
}

// LoadConfig reads the file at path, applies defaults and LAUNCHPAD_*
// environment overrides, and validates the result. An empty path loads
// defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

// ExchangeParams returns the initial exchange parameters.
func (c *Config) ExchangeParams() exchange.Params {
	return c.Exchange
}

// AdminAddress returns the configured admin principal.
func (c *Config) AdminAddress() types.Address {
	return types.Address(c.Admin)
}

// EcosystemTreasuryAddress returns the address receiving the treasury fee.
func (c *Config) EcosystemTreasuryAddress() types.Address {
	return types.Address(c.EcosystemTreasury)
}

func validateConfig(cfg *Config) error {
	if cfg.Admin == "" {
		return errors.New("missing admin in configuration")
	}
	if cfg.Platform == "" {
		return errors.New("missing platform in configuration")
	}
	if cfg.EcosystemTreasury == "" {
		return errors.New("missing ecosystem_treasury in configuration")
	}
	if err := cfg.Exchange.Validate(); err != nil {
		return fmt.Errorf("invalid exchange section: %w", err)
	}
	if cfg.Storage.Enabled {
		if cfg.Storage.PostgresURL == "" {
			return errors.New("storage is enabled but postgres_url is empty")
		}
		if err := validateURLWithCache(cfg.Storage.PostgresURL, "postgres"); err != nil {
			return fmt.Errorf("invalid postgres_url: %w", err)
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return errors.New("metrics are enabled but listen is empty")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return errors.New("api is enabled but listen is empty")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Indexer.BufferSize <= 0 {
		return errors.New("invalid indexer buffer_size")
	}
	if cfg.Indexer.InitialInterval <= 0 || cfg.Indexer.MaxInterval < cfg.Indexer.InitialInterval {
		return errors.New("invalid indexer retry intervals")
	}
	if cfg.Indexer.PublishTimeout < 0 {
		return errors.New("invalid indexer publish_timeout")
	}
	if cfg.API.ReadHeaderTimeout < 0 || cfg.API.ShutdownTimeout < 0 {
		return errors.New("invalid api timeouts")
	}
	if cfg.Storage.MaxOpenConns < 0 || cfg.Storage.MaxIdleConns < 0 {
		return errors.New("invalid storage connection limits")
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// loadEnvironmentVariables applies overrides for keys that have no default,
// which AutomaticEnv alone does not surface to Unmarshal.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	if admin := v.GetString("ADMIN"); admin != "" {
		cfg.Admin = admin
	}
	if treasury := v.GetString("ECOSYSTEM_TREASURY"); treasury != "" {
		cfg.EcosystemTreasury = treasury
	}
	if dsn := v.GetString("STORAGE_POSTGRES_URL"); dsn != "" {
		cfg.Storage.PostgresURL = dsn
	}
}
