// Package config assembles the service configuration from defaults, an
// optional .env file, command-line flags, and environment variables (the
// environment wins), and validates the result.
package config

import (
	"flag"
	"fmt"
	"log"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/linkcutapp/linkcut/internal/shortcode"
)

// Config holds every tunable of the service.
type Config struct {
	RunAddr      string `env:"SERVER_ADDRESS" validate:"hostname_port"`
	ShortURLBase string `env:"BASE_URL" validate:"url"`
	LogLevel     string `env:"LOG_LEVEL" validate:"loglevel"`

	DatabaseDSN         string        `env:"DATABASE_DSN"`
	SQLiteDBPath        string        `env:"SQLITE_STORAGE_PATH"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT"`

	JWTSecret       string        `env:"JWT_SECRET" validate:"required,min=16"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"`

	ShortCodeLength int `env:"SHORT_CODE_LENGTH" validate:"min=6,max=8"`

	ClickQueueCapacity int           `env:"CLICK_QUEUE_CAPACITY" validate:"min=1"`
	ClickFlushInterval time.Duration `env:"CLICK_FLUSH_INTERVAL"`

	TrustedSubnet string `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	ShortURLBase:        "http://localhost:8080",
	LogLevel:            "info",
	DBConnectionTimeout: 10 * time.Second,
	JWTSecret:           "development-only-secret",
	AccessTokenTTL:      15 * time.Minute,
	RefreshTokenTTL:     720 * time.Hour,
	ShortCodeLength:     shortcode.DefaultLength,
	ClickQueueCapacity:  1024,
	ClickFlushInterval:  2 * time.Second,
}

// InitOption customizes New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips flag.Parse; tests use it to avoid consuming
// the test binary's own flags.
func WithDisableFlagsParsing(disable bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disable
	}
}

// New builds and validates the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := defaultConfig

	if !options.disableFlagsParsing {
		flag.StringVar(&values.RunAddr, "a", values.RunAddr, "address and port to run server")
		flag.StringVar(&values.ShortURLBase, "b", values.ShortURLBase, "base address of shortened URLs")
		flag.StringVar(&values.LogLevel, "l", values.LogLevel, "logger level")
		flag.StringVar(&values.DatabaseDSN, "d", values.DatabaseDSN, "PostgreSQL connection string")
		flag.StringVar(&values.SQLiteDBPath, "f", values.SQLiteDBPath, "SQLite database file path")
		flag.StringVar(&values.TrustedSubnet, "t", values.TrustedSubnet, "trusted subnet (CIDR) for internal stats")
		flag.Parse()
	}

	if err := env.Parse(&values); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := validate(&values); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &values, nil
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func validate(values *Config) error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}

	return validate.Struct(values)
}
