package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/userdir/internal/handlers"
	"github.com/nkiryanov/userdir/internal/handlers/middleware"
	"github.com/nkiryanov/userdir/internal/logger"
	"github.com/nkiryanov/userdir/internal/service/auth/accesstoken"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = "15m"
	defaultRefreshTTL    = "7d"
	defaultSessionTTL    = "7d"
	defaultPurgeInterval = "10m"
	defaultCORSOrigins   = "http://localhost:5173"

	ephemeralSecretBytes = 32
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key to sign access tokens with
	// Required in prod, generated on every start in dev if empty
	SecretKey string

	// Environment: dev or prod
	Environment string

	// Lifetimes, like "15m" or "7d"
	AccessTTL  string
	RefreshTTL string
	SessionTTL string

	// How often expired sessions are purged
	PurgeInterval string

	// Comma separated keys for x-api-key header
	APIKeys string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	FacebookAppID       string
	FacebookAppSecret   string
	FacebookCallbackURL string

	// Where oauth callbacks land
	FrontendURL string

	// Comma separated origins allowed by CORS
	CORSOrigins string

	// Set by Validate when the secret key was generated
	EphemeralSecret bool
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		SessionTTL:    defaultSessionTTL,
		PurgeInterval: defaultPurgeInterval,
		FrontendURL:   handlers.DefaultFrontendURL,
		CORSOrigins:   defaultCORSOrigins,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"ACCESS_TTL":            setString(&c.AccessTTL),
		"REFRESH_TTL":           setString(&c.RefreshTTL),
		"SESSION_TTL":           setString(&c.SessionTTL),
		"PURGE_INTERVAL":        setString(&c.PurgeInterval),
		"GOOGLE_CLIENT_ID":      setString(&c.GoogleClientID),
		"GOOGLE_CLIENT_SECRET":  setString(&c.GoogleClientSecret),
		"GOOGLE_REDIRECT_URI":   setString(&c.GoogleRedirectURI),
		"FACEBOOK_APP_ID":       setString(&c.FacebookAppID),
		"FACEBOOK_APP_SECRET":   setString(&c.FacebookAppSecret),
		"FACEBOOK_CALLBACK_URL": setString(&c.FacebookCallbackURL),
		"FRONTEND_URL":          setString(&c.FrontendURL),
		"CORS_ORIGINS":          setString(&c.CORSOrigins),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}

	// Single API_KEY is accepted when the list is not set
	if keys := getenv("API_KEYS"); keys != "" {
		c.APIKeys = keys
	} else if key := getenv("API_KEY"); key != "" {
		c.APIKeys = key
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("userdir", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign access tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.StringVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.StringVar(&c.SessionTTL, "session-ttl", c.SessionTTL, "Session lifetime")
	fs.StringVar(&c.PurgeInterval, "purge-interval", c.PurgeInterval, "How often expired sessions are purged")
	fs.StringVar(&c.APIKeys, "api-keys", c.APIKeys, "Comma separated API keys")
	fs.StringVar(&c.FrontendURL, "frontend-url", c.FrontendURL, "Where oauth callbacks redirect to")
	fs.StringVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Comma separated CORS origins")

	return fs.Parse(args)
}

// Validate fails closed. Secret key is generated only in dev
func (c *Config) Validate() error {
	switch c.Environment {
	case logger.EnvDevelopment, logger.EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.DatabaseDSN == "" {
		return errors.New("database connection string is required")
	}

	for name, value := range map[string]string{
		"access ttl":     c.AccessTTL,
		"refresh ttl":    c.RefreshTTL,
		"session ttl":    c.SessionTTL,
		"purge interval": c.PurgeInterval,
	} {
		d, err := accesstoken.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.SecretKey == "" {
		if c.Environment == logger.EnvProduction {
			return errors.New("secret key is required in prod")
		}

		b := make([]byte, ephemeralSecretBytes)
		if _, err := rand.Read(b); err != nil {
			return fmt.Errorf("can't generate secret key. Err: %w", err)
		}
		c.SecretKey = hex.EncodeToString(b)
		c.EphemeralSecret = true
	}

	return nil
}

func (c *Config) Secure() bool {
	return c.Environment == logger.EnvProduction
}

func (c *Config) ttl(value string) time.Duration {
	d, _ := accesstoken.ParseDuration(value)
	return d
}

func (c *Config) apiKeys() []string {
	return middleware.ParseAPIKeys(c.APIKeys)
}

func (c *Config) corsOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
