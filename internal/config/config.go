package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port           int    `env:"PORT" envDefault:"5000"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	FrontendOrigin string `env:"FRONTEND_ORIGIN" envDefault:"http://localhost:2025"`

	// Database configuration
	DBDriver     string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost       string `env:"DB_HOST" envDefault:"localhost"`
	DBPort       int    `env:"DB_PORT" envDefault:"5432"`
	DBUser       string `env:"DB_USER" envDefault:"postgres"`
	DBPassword   string `env:"DB_PASSWORD"`
	DBName       string `env:"DB_NAME" envDefault:"mi_25"`
	DBSSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	DBSQLitePath string `env:"DB_SQLITE_PATH" envDefault:"passes.db"`

	// Credentials
	JWTSecret string        `env:"JWT_SECRET" envDefault:"access-pass-secret"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`

	// File storage
	UploadDir string `env:"UPLOAD_DIR" envDefault:"uploads"`
	PassDir   string `env:"PASS_DIR" envDefault:"passes"`

	// Registration verifier
	VerifierURL     string        `env:"VERIFIER_URL" envDefault:"https://edith-app.moodi.org"`
	VerifierTimeout time.Duration `env:"VERIFIER_TIMEOUT" envDefault:"10s"`

	// Upload limits
	IDNumberMinLength int   `env:"ID_NUMBER_MIN_LENGTH" envDefault:"4"`
	MaxPhotoBytes     int64 `env:"MAX_PHOTO_BYTES" envDefault:"5242880"`
	MaxPassBytes      int64 `env:"MAX_PASS_BYTES" envDefault:"10485760"`
	PassMaxWidth      int   `env:"PASS_MAX_WIDTH" envDefault:"1200"`
	PassJPEGQuality   int   `env:"PASS_JPEG_QUALITY" envDefault:"80"`

	// Redis backs the optional /check rate limit
	RedisURI        string        `env:"REDIS_URI"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	CheckRateLimit  int           `env:"CHECK_RATE_LIMIT" envDefault:"0"`
	CheckRateWindow time.Duration `env:"CHECK_RATE_WINDOW" envDefault:"1m"`

	// Optional MongoDB audit trail
	AuditMongoURI      string `env:"AUDIT_MONGODB_URI"`
	AuditMongoDatabase string `env:"AUDIT_MONGODB_DATABASE" envDefault:"access_pass"`
	AuditCollection    string `env:"AUDIT_COLLECTION" envDefault:"audit_logs"`
	AuditBufferSize    int    `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`

	// Tracing configuration
	TracingEnabled     bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint    string  `env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`
	TracingSampleRatio float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1"`
	ServiceVersion     string  `env:"SERVICE_VERSION" envDefault:"dev"`
}

// LoadConfig loads configuration from the environment, reading an optional
// .env file first. Variables already present in the environment win.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: must be %s or %s", c.DBDriver, DriverPostgres, DriverSQLite)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("invalid TOKEN_TTL: %s", c.TokenTTL)
	}
	if c.IDNumberMinLength < 1 {
		return fmt.Errorf("invalid ID_NUMBER_MIN_LENGTH: %d", c.IDNumberMinLength)
	}
	if c.MaxPhotoBytes <= 0 || c.MaxPassBytes <= 0 {
		return errors.New("MAX_PHOTO_BYTES and MAX_PASS_BYTES must be positive")
	}
	if c.PassMaxWidth <= 0 {
		return fmt.Errorf("invalid PASS_MAX_WIDTH: %d", c.PassMaxWidth)
	}
	if c.PassJPEGQuality < 1 || c.PassJPEGQuality > 100 {
		return fmt.Errorf("invalid PASS_JPEG_QUALITY: %d", c.PassJPEGQuality)
	}
	if c.CheckRateLimit < 0 {
		return fmt.Errorf("invalid CHECK_RATE_LIMIT: %d", c.CheckRateLimit)
	}
	if c.CheckRateLimit > 0 && c.RedisURI == "" {
		return errors.New("CHECK_RATE_LIMIT requires REDIS_URI")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("invalid TRACING_SAMPLE_RATIO: %g", c.TracingSampleRatio)
	}
	if _, err := url.ParseRequestURI(c.VerifierURL); err != nil {
		return fmt.Errorf("invalid VERIFIER_URL: %w", err)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DatabaseDSN returns the data source name for database/sql
func (c *Config) DatabaseDSN() string {
	if c.DBDriver == DriverSQLite {
		return "file:" + c.DBSQLitePath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	return c.postgresURL("postgres")
}

// MigrationURL returns the golang-migrate database URL
func (c *Config) MigrationURL() string {
	if c.DBDriver == DriverSQLite {
		return "sqlite://" + c.DBSQLitePath
	}
	return c.postgresURL("pgx5")
}

func (c *Config) postgresURL(scheme string) string {
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + strconv.Itoa(c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
