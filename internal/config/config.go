package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Billing   BillingConfig   `yaml:"billing"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	TxTimeoutSeconds       int    `yaml:"tx_timeout_seconds"`
	Isolation              string `yaml:"isolation"` // "read_committed" or "serializable"
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text" or "tint"
}

// BillingConfig contains bill generation and payment settings
type BillingConfig struct {
	DefaultDueDays       int           `yaml:"default_due_days"`
	BillNumberPrefix     string        `yaml:"bill_number_prefix"`
	PaymentNumberPrefix  string        `yaml:"payment_number_prefix"`
	BillableReadingTypes []string      `yaml:"billable_reading_types"`
	BulkConcurrency      int           `yaml:"bulk_concurrency"`
	PendingBatchSize     int           `yaml:"pending_batch_size"`
	LateFee              LateFeeConfig `yaml:"late_fee"`
}

// LateFeeConfig selects the late fee strategy. Amounts are decimal strings.
type LateFeeConfig struct {
	Strategy     string `yaml:"strategy"` // "none", "flat", "percentage", "daily"
	FlatAmount   string `yaml:"flat_amount"`
	Percentage   string `yaml:"percentage"` // percent of principal outstanding, e.g. "2"
	DailyAmount  string `yaml:"daily_amount"`
	MaxAmount    string `yaml:"max_amount"` // empty = uncapped
	GraceDays    int    `yaml:"grace_days"`
	ApplyOnSweep bool   `yaml:"apply_on_sweep"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	Timezone             string `yaml:"timezone"`
	MarkOverdueBills     string `yaml:"mark_overdue_bills"`
	GeneratePendingBills string `yaml:"generate_pending_bills"`
}

// MetricsConfig controls the /metrics and /healthz listener
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// EventsConfig contains Kafka publisher settings
type EventsConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	ClientID     string   `yaml:"client_id"`
	RequiredAcks string   `yaml:"required_acks"`
	RetryMax     int      `yaml:"retry_max"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, applies environment overrides and validates it
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Billing
	if val := os.Getenv("BILLING_DEFAULT_DUE_DAYS"); val != "" {
		fmt.Sscanf(val, "%d", &c.Billing.DefaultDueDays)
	}
	if val := os.Getenv("LATE_FEE_STRATEGY"); val != "" {
		c.Billing.LateFee.Strategy = val
	}

	// Scheduler
	if val := os.Getenv("SCHEDULER_TIMEZONE"); val != "" {
		c.Scheduler.Timezone = val
	}

	// Metrics
	if val := os.Getenv("METRICS_ADDRESS"); val != "" {
		c.Metrics.Address = val
	}

	// Events
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Events.Brokers = strings.Split(val, ",")
	}
	if val := os.Getenv("KAFKA_TOPIC"); val != "" {
		c.Events.Topic = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeMinutes == 0 {
		c.Database.ConnMaxLifetimeMinutes = 30
	}
	if c.Database.TxTimeoutSeconds == 0 {
		c.Database.TxTimeoutSeconds = 10
	}
	switch c.Database.Isolation {
	case "":
		c.Database.Isolation = "read_committed"
	case "read_committed", "serializable":
	default:
		return fmt.Errorf("invalid database isolation: %s", c.Database.Isolation)
	}

	if err := c.Billing.validate(); err != nil {
		return err
	}

	// Scheduler defaults
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Local"
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}
	if c.Scheduler.MarkOverdueBills == "" {
		c.Scheduler.MarkOverdueBills = "0 0 1 * * *" // Daily at 1 AM
	}
	if c.Scheduler.GeneratePendingBills == "" {
		c.Scheduler.GeneratePendingBills = "0 0 0 * * *" // Daily at midnight
	}

	// Metrics defaults
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9102"
	}

	// Events validation
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("kafka brokers must be specified when events are enabled")
		}
		if c.Events.Topic == "" {
			return fmt.Errorf("kafka topic must be specified when events are enabled")
		}
	}
	if c.Events.ClientID == "" {
		c.Events.ClientID = "utilbill"
	}
	if c.Events.RequiredAcks == "" {
		c.Events.RequiredAcks = "all"
	}
	if c.Events.RetryMax == 0 {
		c.Events.RetryMax = 3
	}

	return nil
}

func (b *BillingConfig) validate() error {
	if b.DefaultDueDays == 0 {
		b.DefaultDueDays = 30
	}
	if b.DefaultDueDays < 0 {
		return fmt.Errorf("default due days must be positive: %d", b.DefaultDueDays)
	}
	if b.BillNumberPrefix == "" {
		b.BillNumberPrefix = "BILL"
	}
	if b.PaymentNumberPrefix == "" {
		b.PaymentNumberPrefix = "PAY"
	}
	if len(b.BillableReadingTypes) == 0 {
		b.BillableReadingTypes = []string{"ACTUAL"}
	}
	for _, t := range b.BillableReadingTypes {
		switch strings.ToUpper(t) {
		case "ACTUAL", "ESTIMATED", "CUSTOMER_SUBMITTED":
		default:
			return fmt.Errorf("invalid billable reading type: %s", t)
		}
	}
	if b.BulkConcurrency <= 0 {
		b.BulkConcurrency = 4
	}
	if b.PendingBatchSize <= 0 {
		b.PendingBatchSize = 500
	}

	lf := &b.LateFee
	if lf.Strategy == "" {
		lf.Strategy = "percentage"
		if lf.Percentage == "" {
			lf.Percentage = "2"
		}
		if lf.MaxAmount == "" {
			lf.MaxAmount = "500"
		}
	}
	if lf.GraceDays < 0 {
		return fmt.Errorf("late fee grace days must not be negative: %d", lf.GraceDays)
	}

	required := map[string]string{
		"flat":       lf.FlatAmount,
		"percentage": lf.Percentage,
		"daily":      lf.DailyAmount,
	}
	switch lf.Strategy {
	case "none":
	case "flat", "percentage", "daily":
		if required[lf.Strategy] == "" {
			return fmt.Errorf("late fee strategy %s requires an amount", lf.Strategy)
		}
	default:
		return fmt.Errorf("invalid late fee strategy: %s", lf.Strategy)
	}

	for name, v := range map[string]string{
		"flat_amount":  lf.FlatAmount,
		"percentage":   lf.Percentage,
		"daily_amount": lf.DailyAmount,
		"max_amount":   lf.MaxAmount,
	} {
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid late fee %s %q: %w", name, v, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("late fee %s must not be negative: %s", name, v)
		}
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// TxTimeout returns the per-transaction timeout
func (c *DatabaseConfig) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutSeconds) * time.Second
}

// ConnMaxLifetime returns the maximum lifetime of a pooled connection
func (c *DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// Location returns the scheduler time zone. Validate guarantees it loads.
func (c *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
