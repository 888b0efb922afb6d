package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Auth    AuthConfig    `yaml:"auth" mapstructure:"auth"`
	Scorer  ScorerConfig  `yaml:"scorer" mapstructure:"scorer"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32       `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32       `yaml:"min_conns" mapstructure:"min_conns"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig controls backoff for transient storage errors on reads and
// on the startup connection.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst   int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// AuthConfig configures bearer token issuance.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours" mapstructure:"token_ttl_hours"`
}

// ScorerConfig holds the recommendation weights and the token accrual rate.
type ScorerConfig struct {
	SustainabilityWeight float64 `yaml:"sustainability_weight" mapstructure:"sustainability_weight"`
	CarbonWeight         float64 `yaml:"carbon_weight" mapstructure:"carbon_weight"`
	PreferenceBonus      float64 `yaml:"preference_bonus" mapstructure:"preference_bonus"`
	TopN                 int     `yaml:"top_n" mapstructure:"top_n"`
	TokenRate            float64 `yaml:"token_rate" mapstructure:"token_rate"`
}

// CatalogConfig configures catalog listings.
type CatalogConfig struct {
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GREENSHOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "greenshop.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.retry.max_attempts", 3)
	v.SetDefault("store.retry.initial_backoff_ms", 200)
	v.SetDefault("store.retry.max_backoff_ms", 5000)
	v.SetDefault("store.retry.multiplier", 2.0)
	v.SetDefault("store.retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("server.write_timeout_secs", 30)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_hours", 720)
	v.SetDefault("scorer.sustainability_weight", 50.0)
	v.SetDefault("scorer.carbon_weight", 30.0)
	v.SetDefault("scorer.preference_bonus", 20.0)
	v.SetDefault("scorer.top_n", 5)
	v.SetDefault("scorer.token_rate", 0.1)
	v.SetDefault("catalog.page_size", 12)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a given command needs. Mode is "cli" for
// store-only commands or "serve", which also requires a JWT secret.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "cli", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres (GREENSHOP_STORE_DATABASE_URL)")
	}
	if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		errs = append(errs, "store.min_conns must be <= store.max_conns")
	}

	if mode == "serve" {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "auth.jwt_secret is required (GREENSHOP_AUTH_JWT_SECRET)")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	}

	if c.Catalog.PageSize <= 0 {
		errs = append(errs, "catalog.page_size must be > 0")
	}

	errs = append(errs, c.Scorer.problems()...)

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s ScorerConfig) problems() []string {
	var errs []string
	for name, w := range map[string]float64{
		"scorer.sustainability_weight": s.SustainabilityWeight,
		"scorer.carbon_weight":         s.CarbonWeight,
		"scorer.preference_bonus":      s.PreferenceBonus,
	} {
		if w < 0 || math.IsNaN(w) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	if s.TopN <= 0 {
		errs = append(errs, "scorer.top_n must be > 0")
	}
	if s.TokenRate <= 0 {
		errs = append(errs, "scorer.token_rate must be > 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
