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
	defaultEnvFile = ".env"

	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	defaultLogLevel = "info"

	defaultNotificationTopic   = "order-notifications"
	defaultNotificationTimeout = 10 * time.Second

	defaultListPageSize    = 10
	defaultListMaxPageSize = 100
	defaultSearchScanLimit = 1000
)

// Config aggregates every runtime setting the API process needs.
type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Notifications NotificationConfig
	Gateway       GatewayConfig
	Orders        OrdersConfig
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string
}

// FirebaseConfig identifies the Firebase project used for token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig identifies the Firestore database backing the order store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// NotificationConfig configures the Pub/Sub topic that downstream e-mail and
// QR workers consume.
type NotificationConfig struct {
	ProjectID      string
	Topic          string
	PublishTimeout time.Duration
}

// GatewayConfig carries the external payment gateway credentials. The secret
// is optional; when empty, confirmation signatures are recorded unverified.
type GatewayConfig struct {
	KeySecret string
}

// OrdersConfig carries the tunable pieces of the order lifecycle policy.
type OrdersConfig struct {
	// OwnerCancellableStatuses lists the statuses from which the order owner
	// may cancel. Staff additionally cancel from StaffCancellableStatuses.
	OwnerCancellableStatuses []string
	StaffCancellableStatuses []string
	DefaultCurrency          string
	ListPageSize             int
	ListMaxPageSize          int
	// SearchScanLimit bounds how many order documents a staff text search may
	// scan; totals reported for searches are computed within this window.
	SearchScanLimit int
}

// ValidationError reports configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields returns the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises loader behaviour.
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

// Load assembles the application configuration by combining defaults, .env
// overrides, and environment variables.
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
		Logging: LoggingConfig{
			Level: stringWithDefault(lookup, "API_LOG_LEVEL", defaultLogLevel),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Notifications: NotificationConfig{
			ProjectID:      stringWithDefault(lookup, "API_NOTIFICATIONS_PROJECT_ID", ""),
			Topic:          stringWithDefault(lookup, "API_NOTIFICATIONS_TOPIC", defaultNotificationTopic),
			PublishTimeout: durationWithDefault(lookup, "API_NOTIFICATIONS_PUBLISH_TIMEOUT", defaultNotificationTimeout),
		},
		Gateway: GatewayConfig{
			KeySecret: stringWithDefault(lookup, "API_GATEWAY_KEY_SECRET", ""),
		},
		Orders: OrdersConfig{
			OwnerCancellableStatuses: csvWithDefault(lookup, "API_ORDERS_OWNER_CANCELLABLE", "pending"),
			StaffCancellableStatuses: csvWithDefault(lookup, "API_ORDERS_STAFF_CANCELLABLE", "pending,paid"),
			DefaultCurrency:          stringWithDefault(lookup, "API_ORDERS_DEFAULT_CURRENCY", "INR"),
			ListPageSize:             intWithDefault(lookup, "API_ORDERS_LIST_PAGE_SIZE", defaultListPageSize),
			ListMaxPageSize:          intWithDefault(lookup, "API_ORDERS_LIST_MAX_PAGE_SIZE", defaultListMaxPageSize),
			SearchScanLimit:          intWithDefault(lookup, "API_ORDERS_SEARCH_SCAN_LIMIT", defaultSearchScanLimit),
		},
	}

	// Firestore and Pub/Sub projects default to the Firebase project.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifications.ProjectID == "" {
		cfg.Notifications.ProjectID = cfg.Firebase.ProjectID
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
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Notifications.Topic == "" {
		missing = append(missing, "Notifications.Topic")
	}
	if cfg.Orders.ListPageSize <= 0 {
		missing = append(missing, "Orders.ListPageSize")
	}
	if cfg.Orders.ListMaxPageSize < cfg.Orders.ListPageSize {
		missing = append(missing, "Orders.ListMaxPageSize")
	}
	if cfg.Orders.SearchScanLimit <= 0 {
		missing = append(missing, "Orders.SearchScanLimit")
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

func csvWithDefault(lookup func(string) (string, bool), key, fallback string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = fallback
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
