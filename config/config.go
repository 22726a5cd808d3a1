// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"encoding/base64"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	BackendRedis    = "redis"
	BackendDynamo   = "dynamo"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	DevMode           bool          `mapstructure:"DEV_MODE"`
	HostPort          string        `mapstructure:"HOST_PORT"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	StoreBackend      string        `mapstructure:"STORE_BACKEND"`
	StorePingInterval time.Duration `mapstructure:"STORE_PING_INTERVAL"`
	RedisEndpoint     string        `mapstructure:"REDIS_ENDPOINT"`
	DynamoDBEndpoint  string        `mapstructure:"DYNAMODB_ENDPOINT"`
	DynamoDBTable     string        `mapstructure:"DYNAMODB_TABLE"`
	SQLDSN            string        `mapstructure:"SQL_DSN"`
	SQSEndpoint       string        `mapstructure:"SQS_ENDPOINT"`
	ModerationQueue   string        `mapstructure:"SQS_MODERATION_QUEUE"`
	EVMRPCURL         string        `mapstructure:"EVM_RPC_URL"`
	TokenContract     string        `mapstructure:"TOKEN_CONTRACT"`
	TokenDecimals     int           `mapstructure:"TOKEN_DECIMALS"`
	QuotaEnforcement  string        `mapstructure:"QUOTA_ENFORCEMENT"`
	AdminJWTSecret    string        `mapstructure:"ADMIN_JWT_SECRET"`
	AllowedOrigins    string        `mapstructure:"ALLOWED_ORIGINS"`
}

var defaults = map[string]any{
	"DEV_MODE":             false,
	"HOST_PORT":            "8080",
	"LOG_LEVEL":            "info",
	"STORE_BACKEND":        BackendRedis,
	"STORE_PING_INTERVAL":  "10s",
	"REDIS_ENDPOINT":       "localhost:6379",
	"DYNAMODB_ENDPOINT":    "",
	"DYNAMODB_TABLE":       "PixelCanvas",
	"SQL_DSN":              "",
	"SQS_ENDPOINT":         "",
	"SQS_MODERATION_QUEUE": "ClearWalletPixelsQueue",
	"EVM_RPC_URL":          "",
	"TOKEN_CONTRACT":       "",
	"TOKEN_DECIMALS":       18,
	"QUOTA_ENFORCEMENT":    "client",
	"ADMIN_JWT_SECRET":     "",
	"ALLOWED_ORIGINS":      "",
}

// Load reads envFiles (missing files are ignored) and then the process
// environment, which takes precedence.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return Config{}, eris.Wrapf(err, "load %s", file)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key); err != nil {
			return Config{}, eris.Wrapf(err, "bind %s", key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "decode config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendRedis, BackendDynamo:
	case BackendSQLite, BackendPostgres:
		if c.SQLDSN == "" {
			return eris.Errorf("SQL_DSN is required for the %s backend", c.StoreBackend)
		}
	default:
		return eris.Errorf("unknown STORE_BACKEND '%s'", c.StoreBackend)
	}

	switch c.QuotaEnforcement {
	case "client", "server":
	default:
		return eris.Errorf("unknown QUOTA_ENFORCEMENT '%s'", c.QuotaEnforcement)
	}

	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return eris.Errorf("TOKEN_DECIMALS out of range: %d", c.TokenDecimals)
	}
	if _, err := c.JWTSecret(); err != nil {
		return err
	}
	return nil
}

// JWTSecret decodes ADMIN_JWT_SECRET. An empty secret disables admin routes.
func (c Config) JWTSecret() ([]byte, error) {
	if c.AdminJWTSecret == "" {
		return nil, nil
	}
	secret, err := base64.StdEncoding.DecodeString(c.AdminJWTSecret)
	if err != nil {
		return nil, eris.Wrap(err, "ADMIN_JWT_SECRET is not valid base64")
	}
	return secret, nil
}

func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// SetupLogger configures the global zerolog logger: human-readable output in
// dev mode, JSON otherwise.
func (c Config) SetupLogger() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if c.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
