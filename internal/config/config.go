package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the jobalert daemon and CLI.
type Config struct {
	Database     DatabaseConfig
	Scheduler    SchedulerConfig
	Fetch        FetchConfig
	Notification NotificationConfig
	Lock         LockConfig
	Admin        AdminConfig
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, connection URL for postgres
}

// SchedulerConfig controls trigger timing and check execution.
type SchedulerConfig struct {
	Location            *time.Location
	MaxConcurrentChecks int
	CheckTimeout        time.Duration
}

// FetchConfig controls outbound career-page requests.
type FetchConfig struct {
	Timeout        time.Duration
	MaxConcurrent  int   // process-wide cap on in-flight fetches
	CompanyFanout  int   // companies of one alert scraped at once
	MaxBodyBytes   int64 // larger responses are truncated
	UserAgent      string
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// NotificationConfig controls which transport delivers digests.
type NotificationConfig struct {
	Type         string     `yaml:"type"`          // "smtp", "slack" or "log"
	WebhookURL   string     `yaml:"webhook_url"`   // required if type is "slack"
	DashboardURL string     `yaml:"dashboard_url"` // linked from the digest footer
	SMTP         SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds mail submission settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	TLS      string `yaml:"tls"` // mandatory, opportunistic, none or ssl
}

// LockConfig enables the cross-process check lock.
type LockConfig struct {
	RedisAddr string // empty disables the lock
	TTL       time.Duration
}

// AdminConfig controls the admin API.
type AdminConfig struct {
	Addr string `yaml:"addr"` // daemon listen address, empty disables the API
	URL  string `yaml:"url"`  // where CLI alert edits send schedule hooks, empty disables hooks
}

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultFrom      = `"Job Alert Bot" <alerts@jobalertbot.com>`
)

// rawConfig is used for YAML unmarshaling (snake_case fields and duration as string).
type rawConfig struct {
	Database     DatabaseConfig     `yaml:"database"`
	Scheduler    rawSchedulerConfig `yaml:"scheduler"`
	Fetch        rawFetchConfig     `yaml:"fetch"`
	Notification NotificationConfig `yaml:"notification"`
	Lock         rawLockConfig      `yaml:"lock"`
	Admin        AdminConfig        `yaml:"admin"`
}

type rawSchedulerConfig struct {
	Timezone            string `yaml:"timezone"`
	MaxConcurrentChecks *int   `yaml:"max_concurrent_checks"`
	CheckTimeout        string `yaml:"check_timeout"`
}

type rawFetchConfig struct {
	Timeout        string `yaml:"timeout"`
	MaxConcurrent  *int   `yaml:"max_concurrent"`
	CompanyFanout  *int   `yaml:"company_fanout"`
	MaxBodyBytes   *int64 `yaml:"max_body_bytes"`
	UserAgent      string `yaml:"user_agent"`
	MaxRetries     *int   `yaml:"max_retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

type rawLockConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	TTL       string `yaml:"ttl"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	tz := raw.Scheduler.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler.timezone %q: %w", tz, err)
	}

	checkTimeout, err := parseDuration("scheduler.check_timeout", raw.Scheduler.CheckTimeout, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("fetch.timeout", raw.Fetch.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("fetch.retry_base_delay", raw.Fetch.RetryBaseDelay, 2*time.Second)
	if err != nil {
		return nil, err
	}
	lockTTL, err := parseDuration("lock.ttl", raw.Lock.TTL, 15*time.Minute)
	if err != nil {
		return nil, err
	}

	userAgent := raw.Fetch.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	notification := raw.Notification
	if notification.Type == "" {
		notification.Type = "log"
	}
	if notification.DashboardURL == "" {
		notification.DashboardURL = "http://localhost:3000"
	}
	if notification.SMTP.Port == 0 {
		notification.SMTP.Port = 587
	}
	if notification.SMTP.From == "" {
		notification.SMTP.From = defaultFrom
	}
	if notification.SMTP.TLS == "" {
		notification.SMTP.TLS = "mandatory"
	}

	db := raw.Database
	if db.Driver == "" {
		db.Driver = "sqlite"
	}
	if db.Driver == "sqlite" && db.DSN == "" {
		db.DSN = "jobalert.db"
	}

	cfg := &Config{
		Database: db,
		Scheduler: SchedulerConfig{
			Location:            loc,
			MaxConcurrentChecks: intOr(raw.Scheduler.MaxConcurrentChecks, 4),
			CheckTimeout:        checkTimeout,
		},
		Fetch: FetchConfig{
			Timeout:        fetchTimeout,
			MaxConcurrent:  intOr(raw.Fetch.MaxConcurrent, 8),
			CompanyFanout:  intOr(raw.Fetch.CompanyFanout, 4),
			MaxBodyBytes:   int64Or(raw.Fetch.MaxBodyBytes, 5<<20),
			UserAgent:      userAgent,
			MaxRetries:     intOr(raw.Fetch.MaxRetries, 1),
			RetryBaseDelay: retryDelay,
		},
		Notification: notification,
		Lock: LockConfig{
			RedisAddr: raw.Lock.RedisAddr,
			TTL:       lockTTL,
		},
		Admin: raw.Admin,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"postgres\", got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if cfg.Scheduler.MaxConcurrentChecks <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_checks must be positive, got %d", cfg.Scheduler.MaxConcurrentChecks)
	}
	if cfg.Scheduler.CheckTimeout <= 0 {
		return fmt.Errorf("scheduler.check_timeout must be positive, got %v", cfg.Scheduler.CheckTimeout)
	}

	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxConcurrent <= 0 {
		return fmt.Errorf("fetch.max_concurrent must be positive, got %d", cfg.Fetch.MaxConcurrent)
	}
	if cfg.Fetch.CompanyFanout <= 0 {
		return fmt.Errorf("fetch.company_fanout must be positive, got %d", cfg.Fetch.CompanyFanout)
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be positive, got %d", cfg.Fetch.MaxBodyBytes)
	}
	if cfg.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got %d", cfg.Fetch.MaxRetries)
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
			return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
		}
	case "smtp":
		smtp := cfg.Notification.SMTP
		if smtp.Host == "" {
			return fmt.Errorf("notification.smtp.host is required when type is \"smtp\"")
		}
		if smtp.Port <= 0 || smtp.Port > 65535 {
			return fmt.Errorf("notification.smtp.port must be between 1 and 65535, got %d", smtp.Port)
		}
		switch smtp.TLS {
		case "mandatory", "opportunistic", "none", "ssl":
		default:
			return fmt.Errorf("notification.smtp.tls must be mandatory, opportunistic, none or ssl, got %q", smtp.TLS)
		}
	default:
		return fmt.Errorf("notification.type must be \"smtp\", \"slack\" or \"log\", got %q", cfg.Notification.Type)
	}

	if cfg.Lock.RedisAddr != "" && cfg.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %v", cfg.Lock.TTL)
	}

	return nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func int64Or(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}
