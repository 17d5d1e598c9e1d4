// Package config loads the portal configuration.
//
// Sources, lowest priority first:
//  1. built-in defaults
//  2. config.yaml (optional, ./ or ./configs or /etc/exeat)
//  3. configs/.env (optional, loaded into the process environment)
//  4. environment variables, nested keys joined by "_" (DATABASE_HOST, EXEAT_INSTITUTION_CODE)
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"exeat/internal/model"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Exeat    ExeatConfig    `mapstructure:"exeat"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

// DatabaseConfig selects the Request Store backend and holds PostgreSQL settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`

	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslmode,
	)
}

// MongoConfig contains MongoDB settings used when database.driver is "mongo".
type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// AuthConfig contains token settings for the local identity provider.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	Issuer        string        `mapstructure:"issuer"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	// EmailDomain restricts student signups; empty accepts any domain.
	EmailDomain   string        `mapstructure:"email_domain"`
}

// ExeatConfig holds the workflow and intake rules.
type ExeatConfig struct {
	InstitutionCode        string `mapstructure:"institution_code"`
	CommentMaxLength       int    `mapstructure:"comment_max_length"`
	PurposeMinLength       int    `mapstructure:"purpose_min_length"`
	PurposeMaxLength       int    `mapstructure:"purpose_max_length"`
	ContactMinLength       int    `mapstructure:"contact_min_length"`
	ContactMaxLength       int    `mapstructure:"contact_max_length"`
	RequireConsentDocument bool   `mapstructure:"require_consent_document"`
	MaxConflictRetries     int    `mapstructure:"max_conflict_retries"`
}

// StorageConfig configures the consent document store.
type StorageConfig struct {
	ConsentDir          string   `mapstructure:"consent_dir"`
	MaxUploadBytes      int64    `mapstructure:"max_upload_bytes"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// SeedConfig lists the staff accounts provisioned by cmd/seed.
type SeedConfig struct {
	Staff []StaffAccount `mapstructure:"staff"`
}

// StaffAccount is one porter, hod or dsa account.
type StaffAccount struct {
	Email    string `mapstructure:"email"`
	FullName string `mapstructure:"full_name"`
	Role     string `mapstructure:"role"`
	Password string `mapstructure:"password"`
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/exeat")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be one of postgres, mongo, memory (got %q)", c.Database.Driver)
	}
	if c.Database.Driver == DriverMongo && c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required when database.driver is mongo")
	}

	if code := c.Exeat.InstitutionCode; !model.ValidInstitutionCode(code) {
		return fmt.Errorf("exeat.institution_code must be upper-case ASCII letters and digits (got %q)", code)
	}
	if c.Exeat.CommentMaxLength <= 0 {
		return fmt.Errorf("exeat.comment_max_length must be positive")
	}
	if c.Exeat.PurposeMinLength <= 0 || c.Exeat.PurposeMaxLength < c.Exeat.PurposeMinLength {
		return fmt.Errorf("exeat.purpose length bounds are invalid")
	}
	if c.Exeat.ContactMinLength <= 0 || c.Exeat.ContactMaxLength < c.Exeat.ContactMinLength {
		return fmt.Errorf("exeat.contact length bounds are invalid")
	}
	if c.Exeat.MaxConflictRetries < 0 {
		return fmt.Errorf("exeat.max_conflict_retries must not be negative")
	}

	if c.Server.Mode == "release" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters in release mode")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("auth token lifetimes must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:9002"})

	// Database
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "exeat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)

	// Mongo
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "exeat")
	v.SetDefault("mongo.timeout", "10s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Auth
	v.SetDefault("auth.jwt_secret", "dev-only-exeat-secret-change-me")
	v.SetDefault("auth.issuer", "exeat-portal")
	v.SetDefault("auth.access_ttl", "24h")
	v.SetDefault("auth.refresh_ttl", "168h")
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.email_domain", "mtu.edu.ng")

	// Exeat workflow
	v.SetDefault("exeat.institution_code", "MTU")
	v.SetDefault("exeat.comment_max_length", 300)
	v.SetDefault("exeat.purpose_min_length", 5)
	v.SetDefault("exeat.purpose_max_length", 200)
	v.SetDefault("exeat.contact_min_length", 10)
	v.SetDefault("exeat.contact_max_length", 150)
	v.SetDefault("exeat.require_consent_document", true)
	v.SetDefault("exeat.max_conflict_retries", 3)

	// Storage
	v.SetDefault("storage.consent_dir", "./data/consents")
	v.SetDefault("storage.max_upload_bytes", 5<<20)
	v.SetDefault("storage.allowed_content_types", []string{"image/jpeg", "image/png", "application/pdf"})

	// Worker
	v.SetDefault("worker.pool_size", 32)
}
