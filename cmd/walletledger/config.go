package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/service/gateway/manual"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultPublicURL    = "http://localhost:8000"
	defaultS3Region     = "ap-south-1"
	defaultS3Bucket     = "walletledger-screenshots"
	defaultPollInterval = 30 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis used to drop repeated webhook deliveries; optional
	RedisAddr string

	// Secret key
	// Access tokens are signed by the auth server with this key
	SecretKey string

	// Environment
	Environment string

	// URL the service is reachable from the internet; callbacks and redirects are built on it
	PublicURL string

	// Payment providers
	UPIAPIURL           string
	UPIAPIKey           string
	HostedCheckoutURL   string
	HostedWebhookSecret string
	DefaultProvider     string
	DisabledProviders   []string

	// Screenshot storage
	S3Bucket   string
	S3Region   string
	S3Endpoint string

	// Amount bounds
	WithdrawMin decimal.Decimal
	WithdrawMax decimal.Decimal
	PaymentMin  decimal.Decimal
	PaymentMax  decimal.Decimal

	// How often pollable providers are asked about pending payments
	PollInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		PublicURL:       defaultPublicURL,
		DefaultProvider: manual.Name,
		S3Bucket:        defaultS3Bucket,
		S3Region:        defaultS3Region,
		WithdrawMin:     decimal.NewFromInt(100),
		WithdrawMax:     decimal.NewFromInt(100_000),
		PaymentMin:      decimal.NewFromInt(100),
		PaymentMax:      decimal.NewFromInt(100_000),
		PollInterval:    defaultPollInterval,
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
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = splitList(value)
			}
			return nil
		}
	}
	setDecimal := func(o *decimal.Decimal) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := decimal.NewFromString(value)
			if err != nil {
				return err
			}
			*o = d
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

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":           setString(&c.ListenAddr),
		"DATABASE_URI":          setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":         setString(&c.RedisAddr),
		"SECRET_KEY":            setString(&c.SecretKey),
		"LOG_LEVEL":             setString(&c.LogLevel),
		"ENVIRONMENT":           setString(&c.Environment),
		"PUBLIC_URL":            setString(&c.PublicURL),
		"UPI_API_URL":           setString(&c.UPIAPIURL),
		"UPI_API_KEY":           setString(&c.UPIAPIKey),
		"HOSTED_CHECKOUT_URL":   setString(&c.HostedCheckoutURL),
		"HOSTED_WEBHOOK_SECRET": setString(&c.HostedWebhookSecret),
		"DEFAULT_PROVIDER":      setString(&c.DefaultProvider),
		"PROVIDERS_DISABLED":    setList(&c.DisabledProviders),
		"S3_BUCKET":             setString(&c.S3Bucket),
		"S3_REGION":             setString(&c.S3Region),
		"S3_ENDPOINT":           setString(&c.S3Endpoint),
		"WITHDRAW_MIN":          setDecimal(&c.WithdrawMin),
		"WITHDRAW_MAX":          setDecimal(&c.WithdrawMax),
		"PAYMENT_MIN":           setDecimal(&c.PaymentMin),
		"PAYMENT_MAX":           setDecimal(&c.PaymentMax),
		"POLL_INTERVAL":         setDuration(&c.PollInterval),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("walletledger", pflag.ContinueOnError)

	var withdrawMin, withdrawMax, paymentMin, paymentMax string

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisAddr, "redis", "r", c.RedisAddr, "Redis address for webhook deduplication")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.PublicURL, "public-url", c.PublicURL, "Public URL of the service")
	fs.StringVar(&c.UPIAPIURL, "upi-api-url", c.UPIAPIURL, "UPI gateway API URL")
	fs.StringVar(&c.UPIAPIKey, "upi-api-key", c.UPIAPIKey, "UPI gateway API key")
	fs.StringVar(&c.HostedCheckoutURL, "hosted-checkout-url", c.HostedCheckoutURL, "Hosted checkout page URL")
	fs.StringVar(&c.HostedWebhookSecret, "hosted-webhook-secret", c.HostedWebhookSecret, "Hosted checkout webhook secret")
	fs.StringVar(&c.DefaultProvider, "default-provider", c.DefaultProvider, "Provider used when request names none")
	fs.StringSliceVar(&c.DisabledProviders, "providers-disabled", c.DisabledProviders, "Providers switched off")
	fs.StringVar(&c.S3Bucket, "s3-bucket", c.S3Bucket, "Bucket for deposit screenshots")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "Bucket region")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", c.S3Endpoint, "Custom S3 endpoint")
	fs.StringVar(&withdrawMin, "withdraw-min", c.WithdrawMin.String(), "Minimal withdrawal amount")
	fs.StringVar(&withdrawMax, "withdraw-max", c.WithdrawMax.String(), "Maximal withdrawal amount")
	fs.StringVar(&paymentMin, "payment-min", c.PaymentMin.String(), "Minimal payment amount")
	fs.StringVar(&paymentMax, "payment-max", c.PaymentMax.String(), "Maximal payment amount")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Pending payments poll interval")

	if err := fs.Parse(args); err != nil {
		return err
	}

	bounds := []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"withdraw-min", withdrawMin, &c.WithdrawMin},
		{"withdraw-max", withdrawMax, &c.WithdrawMax},
		{"payment-min", paymentMin, &c.PaymentMin},
		{"payment-max", paymentMax, &c.PaymentMax},
	}
	for _, b := range bounds {
		d, err := decimal.NewFromString(b.value)
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", b.name, err)
		}
		*b.dst = d
	}

	return nil
}

// Validate reports options the service can't start without
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("database connection string is required")
	}
	if c.SecretKey == "" {
		return errors.New("secret key is required")
	}
	if c.WithdrawMin.GreaterThan(c.WithdrawMax) || c.PaymentMin.GreaterThan(c.PaymentMax) {
		return errors.New("minimal amount must not exceed maximal")
	}
	return nil
}

func splitList(value string) []string {
	var list []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}
