package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AdminConfig struct {
	APIKey        string        `yaml:"api_key"`
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookie  bool          `yaml:"secure_cookie"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`

	// CatalogTTL bounds how long a cached title or price may be shown after
	// an edit. Checkout never reads the cache.
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
}

// BkashConfig holds the tokenized checkout credentials and endpoints.
// Endpoint URLs default to BaseURL + the standard path.
type BkashConfig struct {
	Mode        string `yaml:"mode"` // live|local; local uses an in-memory gateway
	BaseURL     string `yaml:"base_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	AppKey      string `yaml:"app_key"`
	AppSecret   string `yaml:"app_secret"`
	GrantURL    string `yaml:"grant_url"`
	RefreshURL  string `yaml:"refresh_url"`
	CreateURL   string `yaml:"create_url"`
	ExecuteURL  string `yaml:"execute_url"`
	QueryURL    string `yaml:"query_url"`
	RefundURL   string `yaml:"refund_url"`
	CallbackURL string `yaml:"callback_url"`

	RequestTimeout    time.Duration `yaml:"request_timeout"`
	TokenMargin       time.Duration `yaml:"token_margin"`
	TokenWarmInterval time.Duration `yaml:"token_warm_interval"`
}

type PaymentConfig struct {
	FrontendURL     string        `yaml:"frontend_url"` // payer is redirected here after the callback
	CronSecret      string        `yaml:"cron_secret"`
	RateLimit       int           `yaml:"rate_limit"` // initiations per user per window
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	BatchSize         int           `yaml:"batch_size"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
}

type MailConfig struct {
	Driver   string `yaml:"driver"` // smtp|log
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	Language string `yaml:"language"` // en|bn
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Bkash     BkashConfig     `yaml:"bkash"`
	Payment   PaymentConfig   `yaml:"payment"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`
	Mail      MailConfig      `yaml:"mail"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, and validates. A missing file is allowed when everything comes
// from the environment.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env only
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.URL, "DATABASE_URL")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.Redis.Password, "REDIS_PASSWORD")
	set(&cfg.Bkash.BaseURL, "BKASH_BASE_URL")
	set(&cfg.Bkash.Username, "BKASH_USERNAME")
	set(&cfg.Bkash.Password, "BKASH_PASSWORD")
	set(&cfg.Bkash.AppKey, "BKASH_APP_KEY")
	set(&cfg.Bkash.AppSecret, "BKASH_APP_SECRET")
	set(&cfg.Bkash.GrantURL, "BKASH_GRANT_URL")
	set(&cfg.Bkash.RefreshURL, "BKASH_REFRESH_URL")
	set(&cfg.Bkash.CreateURL, "BKASH_CREATE_URL")
	set(&cfg.Bkash.ExecuteURL, "BKASH_EXECUTE_URL")
	set(&cfg.Bkash.QueryURL, "BKASH_QUERY_URL")
	set(&cfg.Bkash.RefundURL, "BKASH_REFUND_URL")
	set(&cfg.Bkash.CallbackURL, "BKASH_CALLBACK_URL")
	set(&cfg.Payment.CronSecret, "CRON_SECRET")
	set(&cfg.Payment.FrontendURL, "FRONTEND_URL")
	set(&cfg.Admin.APIKey, "ADMIN_API_KEY")
	set(&cfg.Admin.SessionSecret, "ADMIN_SESSION_SECRET")
	set(&cfg.Mail.Password, "SMTP_PASSWORD")
	set(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.RequestTimeout = orDefault(cfg.HTTP.RequestTimeout, 30*time.Second)
	cfg.HTTP.ShutdownTimeout = orDefault(cfg.HTTP.ShutdownTimeout, 10*time.Second)
	cfg.Admin.SessionTTL = orDefault(cfg.Admin.SessionTTL, 30*time.Minute)
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = orDefault(cfg.Redis.TTL, time.Hour)
	cfg.Redis.CatalogTTL = orDefault(cfg.Redis.CatalogTTL, 5*time.Minute)

	if cfg.Bkash.Mode == "" {
		cfg.Bkash.Mode = "live"
	}
	base := strings.TrimRight(cfg.Bkash.BaseURL, "/")
	endpoint := func(dst *string, path string) {
		if *dst == "" && base != "" {
			*dst = base + path
		}
	}
	endpoint(&cfg.Bkash.GrantURL, "/tokenized/checkout/token/grant")
	endpoint(&cfg.Bkash.RefreshURL, "/tokenized/checkout/token/refresh")
	endpoint(&cfg.Bkash.CreateURL, "/tokenized/checkout/create")
	endpoint(&cfg.Bkash.ExecuteURL, "/tokenized/checkout/execute")
	endpoint(&cfg.Bkash.QueryURL, "/tokenized/checkout/payment/status")
	endpoint(&cfg.Bkash.RefundURL, "/tokenized/checkout/payment/refund")
	cfg.Bkash.RequestTimeout = orDefault(cfg.Bkash.RequestTimeout, 15*time.Second)
	cfg.Bkash.TokenMargin = orDefault(cfg.Bkash.TokenMargin, 60*time.Second)

	if cfg.Payment.RateLimit <= 0 {
		cfg.Payment.RateLimit = 10
	}
	cfg.Payment.RateLimitWindow = orDefault(cfg.Payment.RateLimitWindow, 10*time.Minute)

	cfg.Scheduler.ReconcileInterval = orDefault(cfg.Scheduler.ReconcileInterval, 5*time.Minute)
	cfg.Scheduler.StaleAfter = orDefault(cfg.Scheduler.StaleAfter, 30*time.Minute)
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
	if cfg.Mail.Driver == "" {
		cfg.Mail.Driver = "log"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.Language == "" {
		cfg.Mail.Language = "en"
	}
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var missing []string
	req := func(v, name string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	req(c.Database.URL, "database.url")
	req(c.Redis.URL, "redis.url")
	if c.Bkash.Mode == "live" {
		req(c.Bkash.BaseURL, "bkash.base_url")
		req(c.Bkash.Username, "bkash.username")
		req(c.Bkash.Password, "bkash.password")
		req(c.Bkash.AppKey, "bkash.app_key")
		req(c.Bkash.AppSecret, "bkash.app_secret")
		req(c.Bkash.GrantURL, "bkash.grant_url")
		req(c.Bkash.CreateURL, "bkash.create_url")
		req(c.Bkash.ExecuteURL, "bkash.execute_url")
	}
	req(c.Bkash.CallbackURL, "bkash.callback_url")
	req(c.Payment.CronSecret, "payment.cron_secret")
	if c.Mail.Driver == "smtp" {
		req(c.Mail.Host, "mail.host")
		req(c.Mail.From, "mail.from")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Bkash.Mode != "live" && c.Bkash.Mode != "local" {
		return fmt.Errorf("bkash.mode must be live or local, got %q", c.Bkash.Mode)
	}
	if c.Mail.Driver != "smtp" && c.Mail.Driver != "log" {
		return fmt.Errorf("mail.driver must be smtp or log, got %q", c.Mail.Driver)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
