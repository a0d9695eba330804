// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxWebhookBytes int64         `yaml:"max_webhook_bytes"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	AdminAPIKey string `yaml:"admin_api_key"`
}

type GeoConfig struct {
	// Headers set by the edge proxy, checked in order.
	TrustedHeaders []string `yaml:"trusted_headers"`
	DefaultCountry string   `yaml:"default_country"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

type RazorpayConfig struct {
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	Stripe         StripeConfig   `yaml:"stripe"`
	Razorpay       RazorpayConfig `yaml:"razorpay"`
	GatewayTimeout time.Duration  `yaml:"gateway_timeout"`
	DedupeTTL      time.Duration  `yaml:"dedupe_ttl"`
	DedupeBackend  string         `yaml:"dedupe_backend"` // redis|postgres
}

type CheckoutConfig struct {
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type ReconcilerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Interval       time.Duration `yaml:"interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	BatchSize      int           `yaml:"batch_size"`
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Workers  int            `yaml:"workers"`
	Queue    int            `yaml:"queue"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Geo        GeoConfig        `yaml:"geo"`
	Payment    PaymentConfig    `yaml:"payment"`
	Checkout   CheckoutConfig   `yaml:"checkout"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Notify     NotifyConfig     `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when every required value
// comes from the environment), applies .env and environment overrides, then defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is a local-development convenience; absence is fine.
	_ = godotenv.Load(".env")

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	switch cfg.Payment.DedupeBackend {
	case "redis", "postgres":
	default:
		return nil, fmt.Errorf("payment.dedupe_backend must be redis or postgres, got %q", cfg.Payment.DedupeBackend)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"DATABASE_URL", &cfg.Database.URL},
		{"REDIS_URL", &cfg.Redis.URL},
		{"JWT_SECRET", &cfg.Auth.JWTSecret},
		{"ADMIN_API_KEY", &cfg.Auth.AdminAPIKey},
		{"STRIPE_SECRET_KEY", &cfg.Payment.Stripe.SecretKey},
		{"STRIPE_WEBHOOK_SECRET", &cfg.Payment.Stripe.WebhookSecret},
		{"FRONT_SUCCESS_URL", &cfg.Payment.Stripe.SuccessURL},
		{"FRONT_CANCEL_URL", &cfg.Payment.Stripe.CancelURL},
		{"RAZORPAY_KEY_ID", &cfg.Payment.Razorpay.KeyID},
		{"RAZORPAY_KEY_SECRET", &cfg.Payment.Razorpay.KeySecret},
		{"RAZORPAY_WEBHOOK_SECRET", &cfg.Payment.Razorpay.WebhookSecret},
		{"TELEGRAM_BOT_TOKEN", &cfg.Notify.Telegram.Token},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	cfg.Server.ReadTimeout = orDuration(cfg.Server.ReadTimeout, 15*time.Second)
	cfg.Server.WriteTimeout = orDuration(cfg.Server.WriteTimeout, 30*time.Second)
	cfg.Server.RequestTimeout = orDuration(cfg.Server.RequestTimeout, 25*time.Second)
	cfg.Server.ShutdownTimeout = orDuration(cfg.Server.ShutdownTimeout, 10*time.Second)
	if cfg.Server.MaxWebhookBytes <= 0 {
		cfg.Server.MaxWebhookBytes = 1 << 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	cfg.Redis.TTL = orDuration(cfg.Redis.TTL, time.Hour)

	if len(cfg.Geo.TrustedHeaders) == 0 {
		cfg.Geo.TrustedHeaders = []string{"cf-ipcountry", "x-country-code"}
	}

	cfg.Payment.GatewayTimeout = orDuration(cfg.Payment.GatewayTimeout, 15*time.Second)
	cfg.Payment.DedupeTTL = orDuration(cfg.Payment.DedupeTTL, 24*time.Hour)
	cfg.Payment.DedupeBackend = strings.ToLower(strings.TrimSpace(cfg.Payment.DedupeBackend))
	if cfg.Payment.DedupeBackend == "" {
		cfg.Payment.DedupeBackend = "redis"
	}

	if cfg.Checkout.RateLimit <= 0 {
		cfg.Checkout.RateLimit = 10
	}
	cfg.Checkout.RateWindow = orDuration(cfg.Checkout.RateWindow, time.Minute)

	cfg.Reconciler.Interval = orDuration(cfg.Reconciler.Interval, 5*time.Minute)
	cfg.Reconciler.StaleAfter = orDuration(cfg.Reconciler.StaleAfter, 15*time.Minute)
	cfg.Reconciler.ExpiryInterval = orDuration(cfg.Reconciler.ExpiryInterval, time.Hour)
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 50
	}

	if cfg.Notify.Workers <= 0 {
		cfg.Notify.Workers = 2
	}
	if cfg.Notify.Queue <= 0 {
		cfg.Notify.Queue = 64
	}
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
