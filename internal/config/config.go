// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration.  Each field corresponds to
// an environment variable.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	StoreDriver  string // "mysql" or "memory"
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret shared with the authentication provider
	AccessTTLMin int    // lifetime of locally issued dev tokens in minutes
}

// Load reads .env (when present) and the environment.  Required variables
// are enforced by must(); every missing or malformed variable is reported
// in the returned error.  Database variables are only required for the
// mysql store driver.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env file is not an error

	var e envReader
	cfg := Config{
		Env:          e.must("APP_ENV"),
		Port:         e.must("APP_PORT"),
		StoreDriver:  strings.ToLower(envStr("STORE_DRIVER", "mysql")),
		JWTSecret:    e.must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 15),
	}
	switch cfg.StoreDriver {
	case "mysql":
		cfg.DBUser = e.must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = e.must("DB_HOST")
		cfg.DBPort = e.mustInt("DB_PORT")
		cfg.DBName = e.must("DB_NAME")
	case "memory":
	default:
		e.fail(fmt.Errorf("STORE_DRIVER must be mysql or memory, got %q", cfg.StoreDriver))
	}
	return cfg, e.err()
}

// envReader collects errors for required variables so all of them are
// reported at once.
type envReader struct {
	errs []error
}

func (e *envReader) fail(err error) { e.errs = append(e.errs, err) }

// must retrieves the value of a required environment variable.
func (e *envReader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		e.fail(fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

// mustInt is like must but also checks the value is an integer.  The
// string form is returned since ports are used as strings.
func (e *envReader) mustInt(key string) string {
	s := e.must(key)
	if s == "" {
		return s
	}
	if _, err := strconv.Atoi(s); err != nil {
		e.fail(fmt.Errorf("invalid int for %s: %q", key, s))
	}
	return s
}

func (e *envReader) err() error { return errors.Join(e.errs...) }
