// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the API server and homecarectl.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// JWTSecret is the HMAC key bearer tokens are verified with. Required.
	JWTSecret string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// BaseFee is snapshotted onto every drafted visit, in cents.
	BaseFee int64

	// TaxRateBps is the tax rate applied at release, in basis points (1300 = 13%).
	TaxRateBps int64

	// Currency is the ISO code charges are made in.
	Currency string

	// PaymentClaimTTL is how long a release attempt holds a visit before
	// another attempt may take over.
	PaymentClaimTTL time.Duration

	// MercadoPagoAccessToken is required unless PaymentGatewayMock is set.
	MercadoPagoAccessToken string

	// PaymentGatewayMock selects the in-memory gateway.
	PaymentGatewayMock bool

	// AMQPURL enables lifecycle event publishing when non-empty.
	AMQPURL string

	// AMQPExchange is the topic exchange events are published to.
	AMQPExchange string

	// MigrateOnStart applies pending migrations before serving.
	MigrateOnStart bool
}

// Load reads configuration from environment variables and returns a Config.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win over the file.
// Returns an error listing every required variable that is not set and every
// variable that could not be parsed.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var (
		missing []string
		invalid []string
	)
	p := parser{invalid: &invalid}

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		CORSOrigins:            splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		MaxBodyBytes:           p.int64("MAX_BODY_BYTES", 1<<20),
		BaseFee:                p.int64("BASE_FEE_CENTS", 1000),
		TaxRateBps:             p.int64("TAX_RATE_BPS", 1300),
		Currency:               getEnv("CURRENCY", "CAD"),
		PaymentClaimTTL:        p.duration("PAYMENT_CLAIM_TTL", 2*time.Minute),
		MercadoPagoAccessToken: os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
		PaymentGatewayMock:     p.bool("PAYMENT_GATEWAY_MOCK", false),
		AMQPURL:                os.Getenv("AMQP_URL"),
		AMQPExchange:           getEnv("AMQP_EXCHANGE", "visits"),
		MigrateOnStart:         p.bool("MIGRATE_ON_START", false),
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if !cfg.PaymentGatewayMock && cfg.MercadoPagoAccessToken == "" {
		missing = append(missing, "MERCADOPAGO_ACCESS_TOKEN")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parser reads typed variables, recording the names of unparsable ones.
type parser struct {
	invalid *[]string
}

func (p parser) int64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		*p.invalid = append(*p.invalid, key)
		return fallback
	}
	return n
}

func (p parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*p.invalid = append(*p.invalid, key)
		return fallback
	}
	return b
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*p.invalid = append(*p.invalid, key)
		return fallback
	}
	return d
}

// DatabaseURL returns DATABASE_URL after loading .env, for tools such as
// homecarectl that need nothing else from the environment.
func DatabaseURL() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("load .env: %w", err)
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "", errors.New("required environment variables not set: DATABASE_URL")
	}
	return dsn, nil
}
