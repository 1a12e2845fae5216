package config

import (
	"fmt"
	"strings"

	"github.com/sellos-next/internal/logger"

	"github.com/spf13/viper"
)

// Config is the application configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Phone    PhoneConfig    `mapstructure:"phone"`
	Wallet   WalletConfig   `mapstructure:"wallet"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles write endpoints per client.
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig holds log file and rotation settings.
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions converts log settings into logger options.
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig holds connection pool settings.
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig holds database driver and DSN settings.
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// PhoneConfig holds the locale rules for phone canonicalization.
type PhoneConfig struct {
	CountryCode    string `mapstructure:"country_code"`
	NationalLength int    `mapstructure:"national_length"`
}

// WalletConfig groups both wallet provider configurations.
type WalletConfig struct {
	Apple  AppleWalletConfig  `mapstructure:"apple"`
	Google GoogleWalletConfig `mapstructure:"google"`
}

// AppleWalletConfig holds the PKPass signing material and identifiers.
type AppleWalletConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	PassTypeIdentifier string `mapstructure:"pass_type_identifier"`
	TeamIdentifier     string `mapstructure:"team_identifier"`
	OrganizationName   string `mapstructure:"organization_name"`
	CertificatePath    string `mapstructure:"certificate_path"`
	PrivateKeyPath     string `mapstructure:"private_key_path"`
	WWDRPath           string `mapstructure:"wwdr_path"`
	AssetsDir          string `mapstructure:"assets_dir"`
}

// GoogleWalletConfig holds the hosted loyalty object settings.
type GoogleWalletConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	IssuerID            string `mapstructure:"issuer_id"`
	ClassSuffix         string `mapstructure:"class_suffix"`
	ServiceAccountEmail string `mapstructure:"service_account_email"`
	PrivateKeyPath      string `mapstructure:"private_key_path"`
	APIBaseURL          string `mapstructure:"api_base_url"`
	ObjectHashTTLHours  int    `mapstructure:"object_hash_ttl_hours"`
}

// Load reads config.yml plus environment overrides.
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/sellos.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "sellos")
	viper.SetDefault("queue.enabled", false)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default": 10,
	})
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 600)
	viper.SetDefault("phone.country_code", "52")
	viper.SetDefault("phone.national_length", 10)
	viper.SetDefault("wallet.apple.enabled", false)
	viper.SetDefault("wallet.apple.pass_type_identifier", "")
	viper.SetDefault("wallet.apple.team_identifier", "")
	viper.SetDefault("wallet.apple.organization_name", "")
	viper.SetDefault("wallet.apple.certificate_path", "")
	viper.SetDefault("wallet.apple.private_key_path", "")
	viper.SetDefault("wallet.apple.wwdr_path", "")
	viper.SetDefault("wallet.apple.assets_dir", "./assets/pass")
	viper.SetDefault("wallet.google.enabled", false)
	viper.SetDefault("wallet.google.issuer_id", "")
	viper.SetDefault("wallet.google.class_suffix", "loyalty")
	viper.SetDefault("wallet.google.service_account_email", "")
	viper.SetDefault("wallet.google.private_key_path", "")
	viper.SetDefault("wallet.google.api_base_url", "https://walletobjects.googleapis.com/walletobjects/v1")
	viper.SetDefault("wallet.google.object_hash_ttl_hours", 72)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("config parse failed: %w", err))
	}

	return &cfg
}
