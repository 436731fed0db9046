// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// devSecretKey is used when SECRET_KEY is unset outside production so local
// development works without a .env file.
const devSecretKey = "dev-secret-key-do-not-use-in-production!!"

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Debug relaxes cookie security (no Secure flag) and enables verbose logs.
	Debug bool `env:"DEBUG" envDefault:"false"`

	// Port is the HTTP listen port (default: 8000).
	Port int `env:"PORT" envDefault:"8000"`

	// ServerHost is the public-facing origin of this API, used to build the
	// OAuth redirect URI.
	ServerHost string `env:"SERVER_HOST" envDefault:"http://localhost:8000"`

	// APIPrefix is the versioned route prefix (default: "/api/v1").
	APIPrefix string `env:"API_V1_STR" envDefault:"/api/v1"`

	// FrontendURL is the web client origin used in emailed links.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// CORSOrigins lists the origins allowed to call the API with credentials.
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8000"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For / X-Real-IP headers
	// are honored when resolving the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," envDefault:"127.0.0.0/8,::1/128,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"db/migrations"`

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds token, password and bootstrap settings.
	Auth AuthConfig

	// Google holds the OAuth client registration.
	Google GoogleConfig

	// Mail holds transactional email settings.
	Mail MailConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format.
	// If no port is specified, 3306 is appended automatically.
	Host string `env:"DB_HOST" envDefault:"localhost:3306"`

	User     string `env:"DB_USER" envDefault:"mealbuddy"`
	Password string `env:"DB_PASSWORD" envDefault:"mealbuddy"`
	Name     string `env:"DB_NAME" envDefault:"mealbuddy"`

	// URL bypasses the individual fields when set.
	URL string `env:"DATABASE_URL"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	// ConnectAttempts bounds the startup ping retries.
	ConnectAttempts uint `env:"DB_CONNECT_ATTEMPTS" envDefault:"10"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// Report matched rather than changed rows so "no such user" checks on
	// UPDATE don't misfire when values are unchanged.
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey signs access tokens. Must be 32+ characters in production.
	SecretKey string `env:"SECRET_KEY"`

	// Algorithm is the JWT HMAC algorithm: HS256, HS384 or HS512.
	Algorithm string `env:"JWT_ALGORITHM" envDefault:"HS256"`

	// AccessTokenMinutes is the access token and cookie lifetime.
	AccessTokenMinutes int `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`

	// BcryptCost is the bcrypt work factor. Zero means bcrypt.DefaultCost.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"0"`

	// EmailTokenHours is the lifetime of verification and reset tokens.
	EmailTokenHours int `env:"EMAIL_TOKEN_EXPIRE_HOURS" envDefault:"24"`

	// FirstSuperuserEmail and FirstSuperuserPassword seed an admin account
	// when both are set.
	FirstSuperuserEmail    string `env:"FIRST_SUPERUSER_EMAIL"`
	FirstSuperuserPassword string `env:"FIRST_SUPERUSER_PASSWORD"`
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

// EmailTokenTTL returns the verification/reset token lifetime.
func (a AuthConfig) EmailTokenTTL() time.Duration {
	return time.Duration(a.EmailTokenHours) * time.Hour
}

// GoogleConfig holds Google OAuth client settings.
type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// HTTPTimeout bounds the code exchange and userinfo round-trips.
	HTTPTimeout time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether Google login is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// MailConfig holds Postmark credentials. When the server token is empty,
// mail is written to the log instead.
type MailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	FromEmail            string `env:"EMAILS_FROM_EMAIL" envDefault:"noreply@mealbuddy.app"`
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first if present.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks cross-field constraints and fills the dev-only secret.
func (c *Config) validate() error {
	if c.IsProduction() {
		if c.Auth.SecretKey == "" {
			return errors.New("SECRET_KEY is required in production")
		}
		if len(c.Auth.SecretKey) < 32 {
			return errors.New("SECRET_KEY must be at least 32 characters in production")
		}
		if c.Debug {
			return errors.New("DEBUG must be false in production")
		}
	}

	if c.Auth.SecretKey == "" {
		c.Auth.SecretKey = devSecretKey
	}

	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.Auth.Algorithm)
	}

	if c.Auth.AccessTokenMinutes <= 0 {
		return errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.Auth.EmailTokenHours <= 0 {
		return errors.New("EMAIL_TOKEN_EXPIRE_HOURS must be positive")
	}

	c.ServerHost = strings.TrimRight(c.ServerHost, "/")
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	if !strings.HasPrefix(c.APIPrefix, "/") {
		c.APIPrefix = "/" + c.APIPrefix
	}

	return nil
}

// IsProduction returns true for "production" or "prod" in any case.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// SecureCookies reports whether session cookies carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return !c.Debug
}

// OAuthRedirectURL is the callback registered with Google.
func (c *Config) OAuthRedirectURL() string {
	return c.ServerHost + c.APIPrefix + "/auth/google-callback"
}
