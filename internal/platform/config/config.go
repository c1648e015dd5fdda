package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultHTTPTimeout     = 10 * time.Second
	defaultDataSchema      = "public"
	defaultCartStorageKey  = "optima_cart"
	defaultStartingPoints  = 1000
	defaultTier            = "Silver"
	defaultNotificationTTL = 4 * time.Second
	defaultHomeRoute       = "dashboard"
	defaultLocale          = "en"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Identity      IdentityConfig
	Data          DataConfig
	Cart          CartConfig
	Loyalty       LoyaltyConfig
	Notifications NotificationConfig
	Pages         PageConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// IdentityConfig points at the hosted identity provider.
type IdentityConfig struct {
	BaseURL            string
	APIKey             string
	JWTSecret          string
	RecoverRedirectURL string
	Timeout            time.Duration
}

// DataConfig points at the hosted relational data API.
type DataConfig struct {
	BaseURL string
	APIKey  string
	Schema  string
	Timeout time.Duration
}

// CartConfig controls the durable cart snapshot store.
type CartConfig struct {
	StorePath  string
	StorageKey string
}

// LoyaltyConfig holds programme defaults applied to new profiles.
type LoyaltyConfig struct {
	StartingPoints int64
	DefaultTier    string
	Locale         string
}

// NotificationConfig controls transient notification expiry.
type NotificationConfig struct {
	TTL time.Duration
}

// PageConfig holds navigation defaults.
type PageConfig struct {
	HomeRoute string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Identity: IdentityConfig{
			BaseURL:            stringWithDefault(lookup, "API_IDENTITY_BASE_URL", ""),
			APIKey:             stringWithDefault(lookup, "API_IDENTITY_API_KEY", ""),
			JWTSecret:          stringWithDefault(lookup, "API_IDENTITY_JWT_SECRET", ""),
			RecoverRedirectURL: stringWithDefault(lookup, "API_IDENTITY_RECOVER_REDIRECT_URL", ""),
			Timeout:            durationWithDefault(lookup, "API_IDENTITY_TIMEOUT", defaultHTTPTimeout),
		},
		Data: DataConfig{
			BaseURL: stringWithDefault(lookup, "API_DATA_BASE_URL", ""),
			APIKey:  stringWithDefault(lookup, "API_DATA_API_KEY", ""),
			Schema:  stringWithDefault(lookup, "API_DATA_SCHEMA", defaultDataSchema),
			Timeout: durationWithDefault(lookup, "API_DATA_TIMEOUT", defaultHTTPTimeout),
		},
		Cart: CartConfig{
			StorePath:  stringWithDefault(lookup, "API_CART_STORE_PATH", ""),
			StorageKey: stringWithDefault(lookup, "API_CART_STORAGE_KEY", defaultCartStorageKey),
		},
		Loyalty: LoyaltyConfig{
			StartingPoints: int64(intWithDefault(lookup, "API_LOYALTY_STARTING_POINTS", defaultStartingPoints)),
			DefaultTier:    stringWithDefault(lookup, "API_LOYALTY_DEFAULT_TIER", defaultTier),
			Locale:         stringWithDefault(lookup, "API_LOYALTY_LOCALE", defaultLocale),
		},
		Notifications: NotificationConfig{
			TTL: durationWithDefault(lookup, "API_NOTIFICATION_TTL", defaultNotificationTTL),
		},
		Pages: PageConfig{
			HomeRoute: stringWithDefault(lookup, "API_PAGES_HOME_ROUTE", defaultHomeRoute),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Identity.BaseURL == "" {
		missing = append(missing, "Identity.BaseURL")
	}
	if cfg.Identity.JWTSecret == "" {
		missing = append(missing, "Identity.JWTSecret")
	}
	if cfg.Data.BaseURL == "" {
		missing = append(missing, "Data.BaseURL")
	}
	if cfg.Cart.StorePath == "" {
		missing = append(missing, "Cart.StorePath")
	}
	if cfg.Loyalty.StartingPoints < 0 {
		missing = append(missing, "Loyalty.StartingPoints")
	}
	if cfg.Notifications.TTL <= 0 {
		missing = append(missing, "Notifications.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
