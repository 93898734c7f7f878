package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // calendar windows must resolve zones on hosts without a zoneinfo database

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig         `mapstructure:"server"`
	Database   DatabaseConfig       `mapstructure:"database"`
	Redis      RedisConfig          `mapstructure:"redis"`
	Kafka      KafkaConfig          `mapstructure:"kafka"`
	Storage    StorageConfig        `mapstructure:"storage"`
	Ledger     LedgerConfig         `mapstructure:"ledger"`
	Fees       map[string]FeeConfig `mapstructure:"fees"`
	Upgrade    UpgradeConfig        `mapstructure:"upgrade"`
	Settlement SettlementConfig     `mapstructure:"settlement"`
	Bank       CollaboratorConfig   `mapstructure:"bank"`
	KYC        KYCConfig            `mapstructure:"kyc"`
	JWT        JWTConfig            `mapstructure:"jwt"`
	AES        AESConfig            `mapstructure:"aes"`
	Log        LogConfig            `mapstructure:"log"`
	Metrics    MetricsConfig        `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	SettlementTopic string   `mapstructure:"settlement_topic"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

// LedgerConfig holds money rules. Amounts are major-unit decimal strings ("5000.00").
type LedgerConfig struct {
	Currency            string            `mapstructure:"currency"`
	MinorUnits          int32             `mapstructure:"minor_units"`
	Timezone            string            `mapstructure:"timezone"`
	MinimumAmount       string            `mapstructure:"minimum_amount"`
	MaximumAmount       string            `mapstructure:"maximum_amount"`
	ChannelMaximums     map[string]string `mapstructure:"channel_maximums"`
	CountDirections     []string          `mapstructure:"count_directions"`
	DefaultDailyLimit   string            `mapstructure:"default_daily_limit"`
	DefaultMonthlyLimit string            `mapstructure:"default_monthly_limit"`
	IdempotencyTTL      time.Duration     `mapstructure:"idempotency_ttl"`
}

// Location resolves the business timezone used for calendar limit windows.
func (l LedgerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", l.Timezone, err)
	}
	return loc, nil
}

// ToMinor converts a major-unit decimal string into integer minor units.
func (l LedgerConfig) ToMinor(amount string) (int64, error) {
	return ToMinor(amount, l.MinorUnits)
}

// ToMinor converts "12.50" with 2 minor units into 1250. Sub-minor precision is rejected.
func ToMinor(amount string, minorUnits int32) (int64, error) {
	if strings.TrimSpace(amount) == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", amount)
	}
	shifted := d.Shift(minorUnits)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", amount, minorUnits)
	}
	return shifted.IntPart(), nil
}

// FeeConfig is a per-channel fee: fixed major-unit amount plus a percentage of the payment.
type FeeConfig struct {
	Fixed   string `mapstructure:"fixed"`
	Percent string `mapstructure:"percent"`
}

type UpgradeConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	StepTimeout     time.Duration `mapstructure:"step_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
}

type SettlementConfig struct {
	Transport       string        `mapstructure:"transport"` // kafka, http, log
	Endpoint        string        `mapstructure:"endpoint"`
	Secret          string        `mapstructure:"secret"`
	Timeout         time.Duration `mapstructure:"timeout"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     uint          `mapstructure:"max_attempts"`
	RetryAfter      time.Duration `mapstructure:"retry_after"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// CollaboratorConfig describes an HTTP collaborator. Driver "fake" selects the in-process double.
type CollaboratorConfig struct {
	Driver  string        `mapstructure:"driver"` // http, fake
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type KYCConfig struct {
	CollaboratorConfig `mapstructure:",squash"`
	WebhookSecret      string `mapstructure:"webhook_secret"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// defaultFees mirrors the published channel tariff.
var defaultFees = map[string]FeeConfig{
	"phantom_wallet": {Fixed: "0", Percent: "0"},
	"qr_code":        {Fixed: "0", Percent: "0"},
	"ussd":           {Fixed: "1.50", Percent: "0"},
	"mobile_money":   {Fixed: "2.50", Percent: "0"},
	"eft":            {Fixed: "5.00", Percent: "0"},
	"card":           {Fixed: "1.00", Percent: "1.5"},
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PWL_ (Phantom Wallet Ledger).
// Nested keys use underscore: PWL_DATABASE_HOST, PWL_LEDGER_TIMEZONE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "phantom_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.settlement_topic", "ledger.settlements")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("ledger.currency", "BWP")
	v.SetDefault("ledger.minor_units", 2)
	v.SetDefault("ledger.timezone", "Africa/Gaborone")
	v.SetDefault("ledger.minimum_amount", "1.00")
	v.SetDefault("ledger.maximum_amount", "5000.00")
	v.SetDefault("ledger.channel_maximums", map[string]string{})
	v.SetDefault("ledger.count_directions", []string{"credit", "debit"})
	v.SetDefault("ledger.default_daily_limit", "10000.00")
	v.SetDefault("ledger.default_monthly_limit", "50000.00")
	v.SetDefault("ledger.idempotency_ttl", "24h")
	for channel, fee := range defaultFees {
		v.SetDefault("fees."+channel+".fixed", fee.Fixed)
		v.SetDefault("fees."+channel+".percent", fee.Percent)
	}
	v.SetDefault("upgrade.initial_interval", "500ms")
	v.SetDefault("upgrade.max_interval", "30s")
	v.SetDefault("upgrade.max_attempts", 5)
	v.SetDefault("upgrade.step_timeout", "15s")
	v.SetDefault("upgrade.poll_interval", "1m")
	v.SetDefault("upgrade.batch_size", 50)
	v.SetDefault("settlement.transport", "log")
	v.SetDefault("settlement.endpoint", "")
	v.SetDefault("settlement.secret", "")
	v.SetDefault("settlement.timeout", "10s")
	v.SetDefault("settlement.initial_interval", "1s")
	v.SetDefault("settlement.max_interval", "1m")
	v.SetDefault("settlement.max_attempts", 5)
	v.SetDefault("settlement.retry_after", "10m")
	v.SetDefault("settlement.poll_interval", "1m")
	v.SetDefault("settlement.batch_size", 100)
	v.SetDefault("bank.driver", "fake")
	v.SetDefault("bank.base_url", "")
	v.SetDefault("bank.api_key", "")
	v.SetDefault("bank.timeout", "10s")
	v.SetDefault("kyc.driver", "fake")
	v.SetDefault("kyc.base_url", "")
	v.SetDefault("kyc.api_key", "")
	v.SetDefault("kyc.timeout", "10s")
	v.SetDefault("kyc.webhook_secret", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "phantom-ledger")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PWL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the ledger cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Ledger.Location(); err != nil {
		return err
	}
	for _, key := range []string{c.Ledger.MinimumAmount, c.Ledger.MaximumAmount, c.Ledger.DefaultDailyLimit, c.Ledger.DefaultMonthlyLimit} {
		if _, err := c.Ledger.ToMinor(key); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	for channel, maximum := range c.Ledger.ChannelMaximums {
		if _, err := c.Ledger.ToMinor(maximum); err != nil {
			return fmt.Errorf("ledger.channel_maximums.%s: %w", channel, err)
		}
	}
	for _, d := range c.Ledger.CountDirections {
		if d != "credit" && d != "debit" {
			return fmt.Errorf("ledger.count_directions: unknown direction %q", d)
		}
	}
	for channel, fee := range c.Fees {
		if _, err := c.Ledger.ToMinor(fee.Fixed); err != nil {
			return fmt.Errorf("fees.%s.fixed: %w", channel, err)
		}
		if fee.Percent != "" {
			if _, err := decimal.NewFromString(fee.Percent); err != nil {
				return fmt.Errorf("fees.%s.percent: %w", channel, err)
			}
		}
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch c.Settlement.Transport {
	case "kafka", "http", "log":
	default:
		return fmt.Errorf("settlement.transport: unknown transport %q", c.Settlement.Transport)
	}
	return nil
}
