// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/text/currency"
)

const (
	BackendDatabase = "database"
	BackendSupabase = "supabase"
)

// Config holds every setting the application reads at startup.
type Config struct {
	AppPort string
	Backend string

	SupabaseURL           string
	SupabaseAnonKey       string
	SupabaseJWTSecret     string
	SupabasePlaceOrderRPC string
	// SupabaseServiceKey bypasses row level security. Only the reconciler
	// uses it; without it the sweep is disabled on the supabase backend.
	SupabaseServiceKey string
	MenuImagesBucket   string

	DatabaseDriver string
	DatabaseDSN    string
	JWTSecret      string
	TokenTTL       time.Duration
	ImagesDir      string
	PublicBaseURL  string

	RabbitMQURL  string
	RedisURL     string
	MenuCacheTTL time.Duration

	OrderStepTimeout  time.Duration
	OrderCompensate   bool
	ReconcileSchedule string
	ReconcileGrace    time.Duration
	// SessionSweepSchedule ends expired sessions and frees their carts.
	SessionSweepSchedule string

	Currency currency.Unit

	LogLevel  string
	LogFormat string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("BACKEND", BackendDatabase)
	v.SetDefault("MENU_IMAGES_BUCKET", "menu-images")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "file:cardapio.db?cache=shared")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("IMAGES_DIR", "./data/images")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("MENU_CACHE_TTL", "1m")
	v.SetDefault("ORDER_STEP_TIMEOUT", "15s")
	v.SetDefault("ORDER_COMPENSATE", true)
	v.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	v.SetDefault("RECONCILE_GRACE", "10m")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("CURRENCY", "BRL")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	unit, err := currency.ParseISO(v.GetString("CURRENCY"))
	if err != nil {
		return Config{}, fmt.Errorf("CURRENCY[%s] is not valid: %w", v.GetString("CURRENCY"), err)
	}

	cfg := Config{
		AppPort:               v.GetString("APP_PORT"),
		Backend:               strings.ToLower(v.GetString("BACKEND")),
		SupabaseURL:           v.GetString("SUPABASE_URL"),
		SupabaseAnonKey:       v.GetString("SUPABASE_ANON_KEY"),
		SupabaseJWTSecret:     v.GetString("SUPABASE_JWT_SECRET"),
		SupabasePlaceOrderRPC: v.GetString("SUPABASE_PLACE_ORDER_RPC"),
		SupabaseServiceKey:    v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		MenuImagesBucket:      v.GetString("MENU_IMAGES_BUCKET"),
		DatabaseDriver:        strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:           v.GetString("DATABASE_DSN"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		TokenTTL:              v.GetDuration("TOKEN_TTL"),
		ImagesDir:             v.GetString("IMAGES_DIR"),
		PublicBaseURL:         strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		RabbitMQURL:           v.GetString("RABBITMQ_URL"),
		RedisURL:              v.GetString("REDIS_URL"),
		MenuCacheTTL:          v.GetDuration("MENU_CACHE_TTL"),
		OrderStepTimeout:      v.GetDuration("ORDER_STEP_TIMEOUT"),
		OrderCompensate:       v.GetBool("ORDER_COMPENSATE"),
		ReconcileSchedule:     v.GetString("RECONCILE_SCHEDULE"),
		ReconcileGrace:        v.GetDuration("RECONCILE_GRACE"),
		SessionSweepSchedule:  v.GetString("SESSION_SWEEP_SCHEDULE"),
		Currency:              unit,
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings required by the selected backend.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			errs = append(errs, errors.New("SUPABASE_URL is required"))
		}
		if c.SupabaseAnonKey == "" {
			errs = append(errs, errors.New("SUPABASE_ANON_KEY is required"))
		}
		if c.SupabaseJWTSecret == "" {
			errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required"))
		}
	case BackendDatabase:
		if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
			errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver))
		}
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required"))
		}
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("BACKEND must be %s or %s, got %q", BackendDatabase, BackendSupabase, c.Backend))
	}

	if c.OrderStepTimeout <= 0 {
		errs = append(errs, errors.New("ORDER_STEP_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// TokenSecret returns the HMAC secret used to verify access tokens.
func (c Config) TokenSecret() string {
	if c.Backend == BackendSupabase {
		return c.SupabaseJWTSecret
	}
	return c.JWTSecret
}
