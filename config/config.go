package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	extErrors "github.com/pkg/errors"
)

// Environment is the type for defining the running environment
type Environment string

// define constants
const (
	EnvDevelopment Environment = "Dev"
	EnvProduction  Environment = "Prod"
)

// Stripe holds the payment gateway credentials
type Stripe struct {
	Key           string `validate:"required"`
	URL           string `validate:"omitempty,url"`
	WebhookSecret string
	MaxRetries    int64 `validate:"gte=0"`
}

// ERP holds the back-office REST API settings
type ERP struct {
	BaseURL     string `validate:"required,url"`
	APIKey      string `validate:"required"`
	ReadRetries uint64
}

// Zeebe holds the workflow gateway settings
type Zeebe struct {
	Address    string `validate:"required"`
	Plaintext  bool
	MessageTTL time.Duration `validate:"gte=0"`
}

// Provider is a single enrichment data source
type Provider struct {
	URL string `validate:"omitempty,url"`
	Key string
}

// Config is the process-wide configuration. It is read once at startup and passed by value.
type Config struct {
	Environment Environment

	ListenAddr    string `validate:"required"`
	PostgresURI   string `validate:"required"`
	RedisURI      string
	RedisPassword string
	AMQPURI       string
	JWTSigningKey string `validate:"required,min=16"`

	CallTimeout      time.Duration `validate:"gt=0"`
	LockTTL          time.Duration `validate:"gt=0"`
	RecoveryInterval time.Duration `validate:"gt=0"`
	RecoveryGrace    time.Duration `validate:"gt=0"`

	Stripe Stripe
	ERP    ERP
	Zeebe  Zeebe

	LinkedIn Provider
	Clearbit Provider
	Hunter   Provider
}

// DotFile returns the .env file to load for the given ENV value
func DotFile(env string) (string, Environment) {
	if env == "production" {
		return ".env.production", EnvProduction
	}
	return ".env.development", EnvDevelopment
}

// Load reads the dotFile (if present) into the environment, then builds and validates a Config
func Load(dotFile string, env Environment) (Config, error) {
	if dotFile != "" {
		if err := godotenv.Load(dotFile); err != nil && !os.IsNotExist(err) {
			return Config{}, extErrors.Wrap(err, "Cannot load configurations from .env")
		}
	}

	var err error
	cfg := Config{
		Environment:   env,
		ListenAddr:    getString("LISTEN_ADDR", ":42069"),
		PostgresURI:   os.Getenv("POSTGRES_URI"),
		RedisURI:      os.Getenv("REDIS_URI"),
		RedisPassword: os.Getenv("REDIS_PW"),
		AMQPURI:       os.Getenv("AMQP_URI"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Stripe: Stripe{
			Key:           os.Getenv("STRIPE_KEY"),
			URL:           os.Getenv("STRIPE_API_URL"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		ERP: ERP{
			BaseURL: os.Getenv("ERP_BASE_URL"),
			APIKey:  os.Getenv("ERP_API_KEY"),
		},
		Zeebe: Zeebe{
			Address: os.Getenv("ZEEBE_ADDRESS"),
		},
		LinkedIn: Provider{URL: os.Getenv("LINKEDIN_URL"), Key: os.Getenv("LINKEDIN_KEY")},
		Clearbit: Provider{URL: os.Getenv("CLEARBIT_URL"), Key: os.Getenv("CLEARBIT_KEY")},
		Hunter:   Provider{URL: os.Getenv("HUNTER_URL"), Key: os.Getenv("HUNTER_KEY")},
	}

	if cfg.CallTimeout, err = getDuration("CALL_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = getDuration("LOCK_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RecoveryInterval, err = getDuration("RECOVERY_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RecoveryGrace, err = getDuration("RECOVERY_GRACE", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Zeebe.MessageTTL, err = getDuration("ZEEBE_MESSAGE_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Zeebe.Plaintext, err = getBool("ZEEBE_PLAINTEXT", false); err != nil {
		return Config{}, err
	}
	if cfg.Stripe.MaxRetries, err = getInt("STRIPE_MAX_RETRIES", 0); err != nil {
		return Config{}, err
	}
	readRetries, err := getInt("ERP_READ_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	cfg.ERP.ReadRetries = uint64(readRetries)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, extErrors.Wrap(err, "Invalid configuration")
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, extErrors.Wrapf(err, "Cannot parse %s", key)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, extErrors.Wrapf(err, "Cannot parse %s", key)
	}
	return b, nil
}

func getInt(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, extErrors.Wrapf(err, "Cannot parse %s", key)
	}
	return i, nil
}
