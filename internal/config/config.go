package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Env         string
	Port        string
	DatabaseDSN string
	LogLevel    string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration

	CORSAllowedOrigins []string
	AllowSignup        bool
	EmailDomain        string

	Storage StorageConfig

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	MaxLoginAttempts int
	LockoutDuration  time.Duration

	TodoistAPIToken  string
	TodoistProjectID string
	TodoistBaseURL   string

	WarrantySweepSchedule string
	QRSize                int
}

// StorageConfig selects where rendered QR codes are published.
type StorageConfig struct {
	Driver        string // "local" or "s3"
	LocalDir      string
	PublicBaseURL string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3PublicURL   string
}

func Load() *Config {
	// A missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()

	config := &Config{
		Env:         getEnv("ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseDSN: os.Getenv("DB_DSN"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		JWTSecret:   getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:   getEnv("JWT_ISS", "itam-api"),
		JWTAudience: getEnv("JWT_AUD", "itam-api"),
		JWTExpiry:   getDuration("JWT_EXPIRY", 24*time.Hour),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		AllowSignup:        getEnv("ALLOW_SIGNUP", "false") == "true",
		EmailDomain:        strings.TrimPrefix(os.Getenv("EMAIL_DOMAIN"), "@"),

		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalDir:      getEnv("STORAGE_LOCAL_DIR", "./data/qrcodes"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			S3Bucket:      getEnv("S3_BUCKET", "asset-qrcodes"),
			S3Region:      getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:    os.Getenv("S3_ENDPOINT"),
			S3PublicURL:   strings.TrimRight(os.Getenv("S3_PUBLIC_URL"), "/"),
		},

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),
		MaxLoginAttempts: getInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutDuration:  getDuration("LOCKOUT_DURATION", 15*time.Minute),

		TodoistAPIToken:  os.Getenv("TODOIST_API_TOKEN"),
		TodoistProjectID: os.Getenv("TODOIST_PROJECT_ID"),
		TodoistBaseURL:   strings.TrimRight(getEnv("TODOIST_BASE_URL", "https://api.todoist.com/rest/v2"), "/"),

		WarrantySweepSchedule: getEnvAllowEmpty("WARRANTY_SWEEP_SCHEDULE", "@daily"),
		QRSize:                getInt("QR_SIZE", 256),
	}

	return config
}

// Validate checks the settings the server cannot run safely without.
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be changed in production"))
	}
	if c.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISS is required"))
	}
	if c.JWTAudience == "" {
		errs = append(errs, errors.New("JWT_AUD is required"))
	}
	if c.JWTExpiry < time.Minute || c.JWTExpiry > 30*24*time.Hour {
		errs = append(errs, fmt.Errorf("JWT_EXPIRY must be between 1m and 720h, got %v", c.JWTExpiry))
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("STORAGE_LOCAL_DIR is required for the local storage driver"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be local or s3, got %q", c.Storage.Driver))
	}

	if c.MaxLoginAttempts <= 0 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS must be positive"))
	}
	if c.QRSize < 64 {
		errs = append(errs, errors.New("QR_SIZE must be at least 64"))
	}

	return errors.Join(errs...)
}

// LoadAndValidate loads the configuration and fails fast on invalid settings.
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SupportConfigured reports whether support tickets can be forwarded.
func (c *Config) SupportConfigured() bool {
	return c.TodoistAPIToken != "" && c.TodoistProjectID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty treats an explicitly empty variable as a value.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
