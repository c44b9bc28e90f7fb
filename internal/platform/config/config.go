package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultEnvFile                 = ".env"
	defaultPort                    = "8080"
	defaultReadTimeout             = 15 * time.Second
	defaultWriteTimeout            = 30 * time.Second
	defaultIdleTimeout             = 120 * time.Second
	defaultEnvironment             = "local"
	defaultOrderAPIBaseURL         = "http://localhost:5000/api/v1"
	defaultOrderAPITimeout         = 10 * time.Second
	defaultRedisCartTTL            = 24 * time.Hour
	defaultCurrentOrdersCollection = "currentOrders"
	defaultOrderTrackingInterval   = 3 * time.Second
	defaultNotificationInterval    = 5 * time.Second
	defaultPollTimeout             = 10 * time.Second
	defaultPlatformFeeRate         = "0.05"
	defaultTimezone                = "America/Sao_Paulo"
	defaultCatalogCacheTTL         = time.Minute
	defaultSessionHeader           = "X-Session-ID"
)

var defaultAdminRoles = []string{"owner", "admin"}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	OrderAPI  OrderAPIConfig
	Redis     RedisConfig
	Firestore FirestoreConfig
	Firebase  FirebaseConfig
	PubSub    PubSubConfig
	Polling   PollingConfig
	Pricing   PricingConfig
	Coupons   CouponsConfig
	Catalog   CatalogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	Environment   string
	SessionHeader string
	AdminRoles    []string
}

// OrderAPIConfig points at the upstream Order/Catalog REST API.
type OrderAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RedisConfig configures the session cart store. An empty Addr selects the in-memory store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// FirestoreConfig stores database parameters. An empty ProjectID selects the in-memory
// current-order store.
type FirestoreConfig struct {
	ProjectID               string
	EmulatorHost            string
	CurrentOrdersCollection string
}

// FirebaseConfig stores Firebase project settings used for admin authentication.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// PubSubConfig configures notification fan-out. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID          string
	NotificationsTopic string
}

// PollingConfig controls the background pollers.
type PollingConfig struct {
	OrderTrackingInterval time.Duration
	NotificationInterval  time.Duration
	RequestTimeout        time.Duration
}

// PricingConfig holds checkout pricing parameters.
type PricingConfig struct {
	PlatformFeeRate decimal.Decimal
	Timezone        string
	Location        *time.Location
}

// CouponsConfig optionally replaces the built-in coupon table with rules from a YAML file.
type CouponsConfig struct {
	File  string
	Rules []CouponRule
}

// CouponRule is one coupon entry as written in the coupon file.
type CouponRule struct {
	Code              string  `yaml:"code"`
	Kind              string  `yaml:"kind"`
	Value             float64 `yaml:"value"`
	Label             string  `yaml:"label"`
	WaivesDeliveryFee bool    `yaml:"waivesDeliveryFee"`
}

// CatalogConfig controls catalog read caching.
type CatalogConfig struct {
	CacheTTL time.Duration
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

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			system[strings.TrimSpace(key)] = value
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the dotenv file path. An empty path disables dotenv loading.
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
// environment variables and the optional coupon file.
func Load(ctx context.Context, opts ...Option) (Config, error) {
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

	var invalid []string

	cfg := Config{
		Server: ServerConfig{
			Port:          stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:   durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:  durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:   durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			Environment:   strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
			SessionHeader: stringWithDefault(lookup, "API_SESSION_HEADER", defaultSessionHeader),
			AdminRoles:    csvWithDefault(lookup, "API_ADMIN_ROLES", defaultAdminRoles),
		},
		OrderAPI: OrderAPIConfig{
			BaseURL: stringWithDefault(lookup, "API_ORDER_API_BASE_URL", defaultOrderAPIBaseURL),
			Timeout: durationWithDefault(lookup, "API_ORDER_API_TIMEOUT", defaultOrderAPITimeout),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
			CartTTL:  durationWithDefault(lookup, "API_REDIS_CART_TTL", defaultRedisCartTTL),
		},
		Firestore: FirestoreConfig{
			ProjectID:               stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost:            stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
			CurrentOrdersCollection: stringWithDefault(lookup, "API_FIRESTORE_CURRENT_ORDERS_COLLECTION", defaultCurrentOrdersCollection),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:          stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			NotificationsTopic: stringWithDefault(lookup, "API_PUBSUB_NOTIFICATIONS_TOPIC", ""),
		},
		Polling: PollingConfig{
			OrderTrackingInterval: durationWithDefault(lookup, "API_POLL_ORDER_TRACKING_INTERVAL", defaultOrderTrackingInterval),
			NotificationInterval:  durationWithDefault(lookup, "API_POLL_NOTIFICATION_INTERVAL", defaultNotificationInterval),
			RequestTimeout:        durationWithDefault(lookup, "API_POLL_REQUEST_TIMEOUT", defaultPollTimeout),
		},
		Pricing: PricingConfig{
			Timezone: stringWithDefault(lookup, "API_PRICING_TIMEZONE", defaultTimezone),
		},
		Coupons: CouponsConfig{
			File: stringWithDefault(lookup, "API_COUPONS_FILE", ""),
		},
		Catalog: CatalogConfig{
			CacheTTL: durationWithDefault(lookup, "API_CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
		},
	}

	rate, err := decimal.NewFromString(stringWithDefault(lookup, "API_PRICING_PLATFORM_FEE_RATE", defaultPlatformFeeRate))
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		invalid = append(invalid, "Pricing.PlatformFeeRate")
	}
	cfg.Pricing.PlatformFeeRate = rate

	loc, err := time.LoadLocation(cfg.Pricing.Timezone)
	if err != nil {
		invalid = append(invalid, "Pricing.Timezone")
		loc = time.UTC
	}
	cfg.Pricing.Location = loc

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if cfg.Coupons.File != "" {
		rules, err := LoadCouponFile(cfg.Coupons.File)
		if err != nil {
			return Config{}, err
		}
		cfg.Coupons.Rules = rules
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadCouponFile reads coupon rules from a YAML document of the form
//
//	coupons:
//	  - code: BEMVINDO
//	    kind: fixed
//	    value: 5
//	    label: R$ 5,00 de desconto
func LoadCouponFile(path string) ([]CouponRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read coupon file %s: %w", path, err)
	}
	var doc struct {
		Coupons []CouponRule `yaml:"coupons"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: failed parsing coupon file %s: %w", path, err)
	}

	var bad []string
	for i, rule := range doc.Coupons {
		if strings.TrimSpace(rule.Code) == "" {
			bad = append(bad, fmt.Sprintf("Coupons[%d].Code", i))
		}
		switch strings.ToLower(rule.Kind) {
		case "percentage":
			if rule.Value <= 0 || rule.Value > 1 {
				bad = append(bad, fmt.Sprintf("Coupons[%d].Value", i))
			}
		case "fixed":
			if !rule.WaivesDeliveryFee && rule.Value <= 0 {
				bad = append(bad, fmt.Sprintf("Coupons[%d].Value", i))
			}
		default:
			bad = append(bad, fmt.Sprintf("Coupons[%d].Kind", i))
		}
	}
	if len(bad) > 0 {
		return nil, &ValidationError{fields: bad}
	}
	return doc.Coupons, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Server.SessionHeader) == "" {
		missing = append(missing, "Server.SessionHeader")
	}
	if strings.TrimSpace(cfg.OrderAPI.BaseURL) == "" {
		missing = append(missing, "OrderAPI.BaseURL")
	}
	if cfg.Firebase.ProjectID == "" && cfg.Server.Environment != defaultEnvironment {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.CartTTL <= 0 {
		missing = append(missing, "Redis.CartTTL")
	}
	if cfg.Polling.OrderTrackingInterval <= 0 {
		missing = append(missing, "Polling.OrderTrackingInterval")
	}
	if cfg.Polling.NotificationInterval <= 0 {
		missing = append(missing, "Polling.NotificationInterval")
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
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
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

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return append([]string(nil), fallback...)
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
