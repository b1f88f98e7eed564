package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server        ServerConfig
	App           AppConfig
	Auth          AuthConfig
	DocStore      DocStoreConfig
	Cache         CacheConfig
	Organizations OrganizationsConfig
	Notify        NotifyConfig
	Geocode       GeocodeConfig
	Sweep         SweepConfig
	Matching      MatchingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"ecotrace-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	// PublicBaseURL prefixes the scannable QR URL (…/scan?data=m|p|s).
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080/scan"`
}

// AuthConfig holds request authentication settings.
type AuthConfig struct {
	// Comma-separated static keys. Staff keys unlock manufacturer, recycler
	// and admin routes.
	StaffAPIKeys string `envconfig:"STAFF_API_KEYS" default:""`
	// Session tokens are issued elsewhere and looked up in Redis.
	TokenKeyPrefix string `envconfig:"TOKEN_KEY_PREFIX" default:"ecotrace:token"`
}

// DocStoreConfig selects and configures the document store backend.
type DocStoreConfig struct {
	Type string `envconfig:"DOCSTORE_TYPE" default:"sqlite"` // memory, sqlite, postgres, or mongodb
	Path string `envconfig:"DOCSTORE_PATH" default:"./data/ecotrace.db"`
	// PostgreSQL settings
	Host     string `envconfig:"DOCSTORE_HOST" default:"localhost"`
	Port     int    `envconfig:"DOCSTORE_PORT" default:"5432"`
	Name     string `envconfig:"DOCSTORE_NAME" default:"ecotrace"`
	User     string `envconfig:"DOCSTORE_USER" default:"postgres"`
	Password string `envconfig:"DOCSTORE_PASS" default:""`
	SSLMode  string `envconfig:"DOCSTORE_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"ecotrace"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"documents"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// OrganizationsConfig selects where recycler organization names come from.
type OrganizationsConfig struct {
	Source string `envconfig:"ORG_SOURCE" default:"docstore"` // docstore or mysql
	// MySQL settings
	Host     string `envconfig:"ORG_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"ORG_DB_PORT" default:"3306"`
	Name     string `envconfig:"ORG_DB_NAME" default:"ecotrace"`
	User     string `envconfig:"ORG_DB_USER" default:"root"`
	Password string `envconfig:"ORG_DB_PASS" default:""`
}

// NotifyConfig holds SMTP settings for rejection emails.
type NotifyConfig struct {
	SMTPHost string `envconfig:"SMTP_HOST" default:""`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER" default:""`
	SMTPPass string `envconfig:"SMTP_PASS" default:""`
	From     string `envconfig:"SMTP_FROM" default:""`
}

// GeocodeConfig holds reverse geocoding settings.
type GeocodeConfig struct {
	Enabled   bool          `envconfig:"GEOCODE_ENABLED" default:"false"`
	BaseURL   string        `envconfig:"GEOCODE_BASE_URL" default:"https://nominatim.openstreetmap.org"`
	UserAgent string        `envconfig:"GEOCODE_USER_AGENT" default:"ecotrace-api/1.0"`
	Timeout   time.Duration `envconfig:"GEOCODE_TIMEOUT" default:"5s"`
	CacheTTL  time.Duration `envconfig:"GEOCODE_CACHE_TTL" default:"24h"`
}

// SweepConfig controls the scan-record verification sweep.
type SweepConfig struct {
	Enabled  bool          `envconfig:"SWEEP_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
}

// MatchingConfig holds recycler matching defaults.
type MatchingConfig struct {
	MaxDistanceKm float64 `envconfig:"MATCH_MAX_DISTANCE_KM" default:"500"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// StaffKeys returns the configured staff API keys.
func (a *AuthConfig) StaffKeys() []string {
	var keys []string
	for _, k := range strings.Split(a.StaffAPIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// PostgresDSN returns the PostgreSQL connection string.
func (d *DocStoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name.
func (o *OrganizationsConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		o.User, o.Password, o.Host, o.Port, o.Name)
}

// Configured reports whether SMTP delivery is possible.
func (n *NotifyConfig) Configured() bool {
	return n.SMTPHost != "" && n.SMTPUser != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.DocStore.Type {
	case "memory", "sqlite", "postgres", "mongodb":
	default:
		return nil, fmt.Errorf("failed to load config: unknown DOCSTORE_TYPE %q", cfg.DocStore.Type)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
