package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string `validate:"required"`
	Port   string `validate:"required"`
	// RedisURL backs the notification replay guard, rate limits and the task queue.
	RedisURL string `validate:"required,url"`

	SmartPay SmartPay
	Notify   Notify
	Gateway  Gateway
	Worker   Worker
	Obs      Obs
	Security Security

	CORSAllowedOrigins []string
}

// SmartPay configures the outbound client.
type SmartPay struct {
	MerchantID          string        `validate:"required"`
	SignKey             string        `validate:"required"`
	APIURL              string        `validate:"required,url"`
	Timeout             time.Duration `validate:"gt=0"`
	BreakerMinRequests  int           `validate:"gte=1"`
	BreakerFailureRatio float64       `validate:"gt=0,lte=1"`
	BreakerOpenFor      time.Duration `validate:"gt=0"`
}

// Notify configures the inbound notification receiver.
type Notify struct {
	ReplayTTL    time.Duration `validate:"gt=0"`
	MaxBodyBytes int64         `validate:"gt=0"`
	// RateLimit uses the ulule formatted rate, e.g. "600-M".
	RateLimit string `validate:"required"`
}

// Gateway configures the authenticated payment API.
type Gateway struct {
	JWTSecret   string `validate:"required,min=16"`
	JWTIssuer   string
	JWTAudience string
	RateLimit   string `validate:"required"`
}

// Worker configures the notification task consumer.
type Worker struct {
	Concurrency int `validate:"gte=1"`
}

// Obs configures logging, metrics and tracing.
type Obs struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string `validate:"required"`
	MetricsEnabled   bool
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64 `validate:"gte=0,lte=1"`
	PprofEnabled     bool
	PprofUser        string
	PprofPass        string
}

// Security configures response hardening.
type Security struct {
	EnableHSTS            bool
	HSTSMaxAge            int `validate:"gte=0"`
	HSTSIncludeSubdomains bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		SmartPay: SmartPay{
			MerchantID:          strings.TrimSpace(k.String("SMARTPAY_MERCHANT_ID")),
			SignKey:             k.String("SMARTPAY_SIGN_KEY"),
			APIURL:              valueOrDefault(k.String("SMARTPAY_API_URL"), smartpay.DefaultAPIURL),
			Timeout:             parseDuration(k.String("SMARTPAY_TIMEOUT"), "10s"),
			BreakerMinRequests:  parseInt(k.String("SMARTPAY_BREAKER_MIN_REQUESTS"), 20),
			BreakerFailureRatio: parseFloat(k.String("SMARTPAY_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:      parseDuration(k.String("SMARTPAY_BREAKER_OPEN_FOR"), "30s"),
		},
		Notify: Notify{
			ReplayTTL:    parseDuration(k.String("NOTIFY_REPLAY_TTL"), "24h"),
			MaxBodyBytes: int64(parseInt(k.String("NOTIFY_MAX_BODY_BYTES"), 64<<10)),
			RateLimit:    valueOrDefault(k.String("NOTIFY_RATE_LIMIT"), "600-M"),
		},
		Gateway: Gateway{
			JWTSecret:   k.String("GATEWAY_JWT_SECRET"),
			JWTIssuer:   strings.TrimSpace(k.String("GATEWAY_JWT_ISSUER")),
			JWTAudience: strings.TrimSpace(k.String("GATEWAY_JWT_AUDIENCE")),
			RateLimit:   valueOrDefault(k.String("GATEWAY_RATE_LIMIT"), "120-M"),
		},
		Worker: Worker{
			Concurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
		},
		Security: Security{
			EnableHSTS:            parseBool(k.String("SECURITY_ENABLE_HSTS"), false),
			HSTSMaxAge:            parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 31536000),
			HSTSIncludeSubdomains: parseBool(k.String("SECURITY_HSTS_INCLUDE_SUBDOMAINS"), false),
		},
		Obs: Obs{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "smartpay"),
			MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			PprofEnabled:     parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, describe(err)
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

var envNames = map[string]string{
	"Config.AppEnv":                       "APP_ENV",
	"Config.Port":                         "PORT",
	"Config.RedisURL":                     "REDIS_URL",
	"Config.SmartPay.MerchantID":          "SMARTPAY_MERCHANT_ID",
	"Config.SmartPay.SignKey":             "SMARTPAY_SIGN_KEY",
	"Config.SmartPay.APIURL":              "SMARTPAY_API_URL",
	"Config.SmartPay.Timeout":             "SMARTPAY_TIMEOUT",
	"Config.SmartPay.BreakerMinRequests":  "SMARTPAY_BREAKER_MIN_REQUESTS",
	"Config.SmartPay.BreakerFailureRatio": "SMARTPAY_BREAKER_FAILURE_RATIO",
	"Config.SmartPay.BreakerOpenFor":      "SMARTPAY_BREAKER_OPEN_FOR",
	"Config.Notify.ReplayTTL":             "NOTIFY_REPLAY_TTL",
	"Config.Notify.MaxBodyBytes":          "NOTIFY_MAX_BODY_BYTES",
	"Config.Notify.RateLimit":             "NOTIFY_RATE_LIMIT",
	"Config.Gateway.JWTSecret":            "GATEWAY_JWT_SECRET",
	"Config.Gateway.RateLimit":            "GATEWAY_RATE_LIMIT",
	"Config.Worker.Concurrency":           "WORKER_CONCURRENCY",
	"Config.Obs.MetricsNamespace":         "OBS_METRICS_NAMESPACE",
	"Config.Obs.SamplingRatio":            "OBS_TRACING_SAMPLING_RATIO",
}

// describe turns validator output into messages naming environment variables.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name, ok := envNames[fe.Namespace()]
		if !ok {
			name = fe.Namespace()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s %s)", name, fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	d, err := time.ParseDuration(valueOrDefault(value, fallback))
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
// An empty value unsets the variable for the duration of the load.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
