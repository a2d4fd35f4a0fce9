package config

import (
	"fmt"
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
	Server    ServerConfig
	App       AppConfig
	Cache     CacheConfig
	ListingDB ListingDBConfig
	Quota     QuotaConfig
	PlanDB    PlanDBConfig
	Valuation ValuationConfig
	Intake    IntakeConfig
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
	Name        string   `envconfig:"APP_NAME" default:"carvalue-api"`
	Environment string   `envconfig:"APP_ENV" default:"development"`
	Debug       bool     `envconfig:"APP_DEBUG" default:"false"`
	Version     string   `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKeys     []string `envconfig:"API_KEYS"` // comma separated; empty disables auth
}

// CacheConfig holds valuation cache settings.
type CacheConfig struct {
	Enabled bool          `envconfig:"CACHE_ENABLED" default:"true"`
	Type    string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL     time.Duration `envconfig:"CACHE_TTL" default:"30m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ListingDBConfig holds listing store settings.
type ListingDBConfig struct {
	Type string `envconfig:"LISTING_DB_TYPE" default:"sqlite"` // sqlite, postgres, mysql or mongodb
	Path string `envconfig:"LISTING_DB_PATH" default:"./data/listings.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"LISTING_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"LISTING_DB_PORT" default:"5432"`
	Name     string `envconfig:"LISTING_DB_NAME" default:"carvalue"`
	User     string `envconfig:"LISTING_DB_USER" default:"postgres"`
	Password string `envconfig:"LISTING_DB_PASS" default:""`
	SSLMode  string `envconfig:"LISTING_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"carvalue"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"listings"`

	Retention time.Duration `envconfig:"LISTING_RETENTION" default:"0"` // 0 keeps listings forever
}

// QuotaConfig holds quota tracker settings.
type QuotaConfig struct {
	Store         string            `envconfig:"QUOTA_STORE" default:"memory"` // memory, redis or dynamodb
	DynamoTable   string            `envconfig:"QUOTA_DYNAMODB_TABLE" default:"carvalue-quota"`
	PlanOverrides map[string]string `envconfig:"PLAN_OVERRIDES"` // identity:plan,identity:plan
}

// PlanDBConfig holds the optional MySQL subscriptions database.
type PlanDBConfig struct {
	Enabled  bool   `envconfig:"PLAN_DB_ENABLED" default:"false"`
	Host     string `envconfig:"PLAN_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"PLAN_DB_PORT" default:"3306"`
	Name     string `envconfig:"PLAN_DB_NAME" default:"carvalue"`
	User     string `envconfig:"PLAN_DB_USER" default:"root"`
	Password string `envconfig:"PLAN_DB_PASS" default:""`
}

// ValuationConfig holds comparable selection and engine tuning.
type ValuationConfig struct {
	MileageTolerance   float64       `envconfig:"MILEAGE_TOLERANCE" default:"0.15"`
	MinSample          int           `envconfig:"MIN_SAMPLE" default:"5"`
	OutlierFloor       int           `envconfig:"OUTLIER_FLOOR" default:"4"`
	OpportunityPercent float64       `envconfig:"OPPORTUNITY_PERCENT" default:"15"`
	OpportunitySpread  float64       `envconfig:"OPPORTUNITY_MAX_DISPERSION" default:"12"`
	NegotiablePercent  float64       `envconfig:"NEGOTIABLE_PERCENT" default:"8"`
	Timeout            time.Duration `envconfig:"EVALUATION_TIMEOUT" default:"10s"`
}

// IntakeConfig holds intake conversation settings.
type IntakeConfig struct {
	Store           string        `envconfig:"INTAKE_STORE" default:"memory"` // memory or redis
	TTL             time.Duration `envconfig:"INTAKE_TTL" default:"30m"`
	CleanupInterval time.Duration `envconfig:"INTAKE_CLEANUP_INTERVAL" default:"5m"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (l *ListingDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		l.User, l.Password, l.Host, l.Port, l.Name, l.SSLMode)
}

// MySQLDSN returns the MySQL data source name for the listing store.
func (l *ListingDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		l.User, l.Password, l.Host, l.Port, l.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DSN returns the MySQL data source name for the subscriptions database.
func (d *PlanDBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate rejects settings the valuation pipeline cannot work with.
func (c *Config) Validate() error {
	v := c.Valuation
	if v.MileageTolerance <= 0 || v.MileageTolerance >= 1 {
		return fmt.Errorf("MILEAGE_TOLERANCE must be in (0, 1), got %v", v.MileageTolerance)
	}
	if v.MinSample < 1 {
		return fmt.Errorf("MIN_SAMPLE must be positive, got %d", v.MinSample)
	}
	if v.OutlierFloor < 1 || v.OutlierFloor > v.MinSample {
		return fmt.Errorf("OUTLIER_FLOOR must be in [1, MIN_SAMPLE], got %d", v.OutlierFloor)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.Cache.TTL)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
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
