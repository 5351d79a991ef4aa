package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the server, the worker and the CLI tools
type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	// Stripe
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	// Settlement behaviour
	AppOrigin        string        `mapstructure:"APP_ORIGIN"`
	DefaultCurrency  string        `mapstructure:"DEFAULT_CURRENCY"`
	DefaultFeeType   string        `mapstructure:"DEFAULT_FEE_TYPE"`
	DuplicateWindow  time.Duration `mapstructure:"DUPLICATE_WINDOW"`
	ConsistencyDelay time.Duration `mapstructure:"CONSISTENCY_DELAY"`
	RateLimit        float64       `mapstructure:"RATE_LIMIT"`

	// Admin console auth
	AdminUser               string `mapstructure:"ADMIN_USER"`
	AdminPassword           string `mapstructure:"ADMIN_PASSWORD"`
	FirebaseCredentialsPath string `mapstructure:"FIREBASE_CREDENTIALS_PATH"`

	// Notifications
	SMTPHost    string `mapstructure:"SMTP_HOST"`
	SMTPPort    string `mapstructure:"SMTP_PORT"`
	SMTPUser    string `mapstructure:"SMTP_USER"`
	SMTPPass    string `mapstructure:"SMTP_PASS"`
	EmailFrom   string `mapstructure:"EMAIL_FROM"`
	WahaBaseURL string `mapstructure:"WAHA_BASE_URL"`
	WahaAPIKey  string `mapstructure:"WAHA_API_KEY"`

	// Worker
	WorkerInterval time.Duration `mapstructure:"WORKER_INTERVAL"`
}

var defaults = map[string]interface{}{
	"PORT":                      "8080",
	"ENV":                       "development",
	"DATABASE_URL":              "",
	"REDIS_URL":                 "",
	"STRIPE_SECRET_KEY":         "",
	"STRIPE_WEBHOOK_SECRET":     "",
	"APP_ORIGIN":                "http://localhost:3000",
	"DEFAULT_CURRENCY":          "inr",
	"DEFAULT_FEE_TYPE":          "Monthly Rent",
	"DUPLICATE_WINDOW":          "10m",
	"CONSISTENCY_DELAY":         "2s",
	"RATE_LIMIT":                10.0,
	"ADMIN_USER":                "admin",
	"ADMIN_PASSWORD":            "",
	"FIREBASE_CREDENTIALS_PATH": "",
	"SMTP_HOST":                 "",
	"SMTP_PORT":                 "587",
	"SMTP_USER":                 "",
	"SMTP_PASS":                 "",
	"EMAIL_FROM":                "",
	"WAHA_BASE_URL":             "http://waha:3000",
	"WAHA_API_KEY":              "",
	"WORKER_INTERVAL":           "5m",
}

// Load reads the optional .env file and then resolves every key from the
// environment, falling back to the defaults above.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.DefaultCurrency = strings.ToLower(cfg.DefaultCurrency)
	cfg.AppOrigin = strings.TrimRight(cfg.AppOrigin, "/")

	if cfg.DuplicateWindow < 0 || cfg.ConsistencyDelay < 0 {
		return nil, fmt.Errorf("DUPLICATE_WINDOW and CONSISTENCY_DELAY must not be negative")
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs with ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequireDatabase returns an error when DATABASE_URL is missing
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	return nil
}
