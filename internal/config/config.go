// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DataSourceSQLite = "sqlite"
	DataSourceDemo   = "demo"

	ChatBackendSQLite = "sqlite"
	ChatBackendBadger = "badger"
	ChatBackendDemo   = "demo"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type ChatConfig struct {
	Backend          string `yaml:"backend"`
	BadgerDir        string `yaml:"badger_dir"`
	MaxMessageLength int    `yaml:"max_message_length"`
	PageSize         int    `yaml:"page_size"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	RetentionDays    int    `yaml:"retention_days"`
	MediaDir         string `yaml:"media_dir"`
	MaxImageBytes    int64  `yaml:"max_image_bytes"`
}

type GeocodingConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheTTLHours  int    `yaml:"cache_ttl_hours"`
}

type EmailConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type SchedulerConfig struct {
	GeocodePruneCron string `yaml:"geocode_prune_cron"`
	RetentionCron    string `yaml:"retention_cron"`
	DigestCron       string `yaml:"digest_cron"`
}

type RateLimitConfig struct {
	MessageCooldownMillis int  `yaml:"message_cooldown_ms"`
	MessageMaxPerMinute   int  `yaml:"message_max_per_minute"`
	GeocodeMaxIPPerHour   int  `yaml:"geocode_max_ip_per_hour"`
	TrustProxy            bool `yaml:"trust_proxy"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Data struct {
		Source string `yaml:"source"`
	} `yaml:"data"`

	Chat      ChatConfig      `yaml:"chat"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Data.Source == "" {
		c.Data.Source = DataSourceSQLite
	}
	if c.Chat.Backend == "" {
		c.Chat.Backend = ChatBackendSQLite
		if c.Data.Source == DataSourceDemo {
			c.Chat.Backend = ChatBackendDemo
		}
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if c.Chat.PageSize == 0 {
		c.Chat.PageSize = 50
	}
	if c.Chat.SubscriberBuffer == 0 {
		c.Chat.SubscriberBuffer = 32
	}
	if c.Chat.MediaDir == "" {
		c.Chat.MediaDir = "data/media"
	}
	if c.Chat.MaxImageBytes == 0 {
		c.Chat.MaxImageBytes = 5 << 20
	}
	if c.Geocoding.UserAgent == "" {
		c.Geocoding.UserAgent = "leaguely/1.0"
	}
	if c.Geocoding.TimeoutSeconds == 0 {
		c.Geocoding.TimeoutSeconds = 10
	}
	if c.Geocoding.CacheTTLHours == 0 {
		c.Geocoding.CacheTTLHours = 24 * 30
	}
	if c.Scheduler.GeocodePruneCron == "" {
		c.Scheduler.GeocodePruneCron = "15 3 * * *"
	}
	if c.Scheduler.RetentionCron == "" {
		c.Scheduler.RetentionCron = "45 3 * * *"
	}
	if c.Scheduler.DigestCron == "" {
		c.Scheduler.DigestCron = "0 18 * * *"
	}
	if c.RateLimit.MessageCooldownMillis == 0 {
		c.RateLimit.MessageCooldownMillis = 500
	}
	if c.RateLimit.MessageMaxPerMinute == 0 {
		c.RateLimit.MessageMaxPerMinute = 30
	}
	if c.RateLimit.GeocodeMaxIPPerHour == 0 {
		c.RateLimit.GeocodeMaxIPPerHour = 60
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Data.Source {
	case DataSourceSQLite, DataSourceDemo:
	default:
		return fmt.Errorf("unsupported data source: %s", c.Data.Source)
	}

	switch c.Chat.Backend {
	case ChatBackendSQLite, ChatBackendDemo:
	case ChatBackendBadger:
		if c.Chat.BadgerDir == "" {
			return fmt.Errorf("chat badger_dir is required for badger backend")
		}
	default:
		return fmt.Errorf("unsupported chat backend: %s", c.Chat.Backend)
	}

	// Chat tables reference the users table, which stays empty for demo data.
	if c.Data.Source == DataSourceDemo && c.Chat.Backend == ChatBackendSQLite {
		return fmt.Errorf("chat backend sqlite requires data source sqlite; use demo or badger with demo data")
	}

	if c.Chat.MaxMessageLength < 0 || c.Chat.PageSize < 0 || c.Chat.RetentionDays < 0 {
		return fmt.Errorf("chat limits must not be negative")
	}

	return nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// GeocodingEnabled reports whether a geocoding endpoint is configured.
func (c *Config) GeocodingEnabled() bool {
	return c.Geocoding.BaseURL != ""
}

// EmailEnabled reports whether SES delivery is fully configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.Region != "" && c.Email.Sender != "" &&
		c.Email.AccessKeyID != "" && c.Email.SecretAccessKey != ""
}

func (c GeocodingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c GeocodingConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

func (c RateLimitConfig) MessageCooldown() time.Duration {
	return time.Duration(c.MessageCooldownMillis) * time.Millisecond
}
