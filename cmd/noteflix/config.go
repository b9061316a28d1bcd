package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/noteflix/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultIssuer          = "noteflix"
	defaultAudience        = "noteflix-clients"
	defaultAccessTokenTTL  = 60 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultStoreTimeout    = 5 * time.Second

	// Minimal secret key length in production, bytes
	minProdSecretKeyLen = 32
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Access tokens are signed with HMAC, so this key is used for that purpose
	SecretKey string

	// Environment: dev or prod
	Environment string

	// Access token 'iss' and 'aud' claims
	Issuer   string
	Audience string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Upper bound of storage work of every auth operation
	StoreTimeout time.Duration

	// Origins allowed to make cross origin requests in production
	AllowedOrigins []string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		Issuer:          defaultIssuer,
		Audience:        defaultAudience,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		StoreTimeout:    defaultStoreTimeout,
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
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			var items []string
			for item := range strings.SplitSeq(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*o = items
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"JWT_ISSUER":           setString(&c.Issuer),
		"JWT_AUDIENCE":         setString(&c.Audience),
		"ACCESS_TOKEN_TTL":     setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":    setDuration(&c.RefreshTokenTTL),
		"STORE_TIMEOUT":        setDuration(&c.StoreTimeout),
		"CORS_ALLOWED_ORIGINS": setList(&c.AllowedOrigins),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s value. Err: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("noteflix", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign access tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.Issuer, "issuer", c.Issuer, "Access token issuer")
	fs.StringVar(&c.Audience, "audience", c.Audience, "Access token audience")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.StoreTimeout, "store-timeout", c.StoreTimeout, "Database timeout of every auth operation")
	fs.StringSliceVar(&c.AllowedOrigins, "cors-origins", c.AllowedOrigins, "Origins allowed to make cross origin requests")

	return fs.Parse(args)
}

// Validate config is complete and consistent
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN must be set"))
	}

	switch {
	case c.SecretKey == "":
		errs = append(errs, errors.New("secret key must be set"))
	case c.Environment == logger.EnvProduction && len(c.SecretKey) < minProdSecretKeyLen:
		errs = append(errs, fmt.Errorf("secret key must be at least %d bytes long in production", minProdSecretKeyLen))
	}

	if c.Environment != logger.EnvDevelopment && c.Environment != logger.EnvProduction {
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}

	for name, d := range map[string]time.Duration{
		"access token TTL":  c.AccessTokenTTL,
		"refresh token TTL": c.RefreshTokenTTL,
		"store timeout":     c.StoreTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	return errors.Join(errs...)
}
