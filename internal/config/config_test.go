package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/smartpay-gateway/internal/config"
	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":            "redis://localhost:6379/0",
		"SMARTPAY_MERCHANT_ID": "M1",
		"SMARTPAY_SIGN_KEY":    "secret",
		"GATEWAY_JWT_SECRET":   "0123456789abcdef0123",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, smartpay.DefaultAPIURL, cfg.SmartPay.APIURL)
	require.Equal(t, 10*time.Second, cfg.SmartPay.Timeout)
	require.Equal(t, 20, cfg.SmartPay.BreakerMinRequests)
	require.Equal(t, 0.5, cfg.SmartPay.BreakerFailureRatio)
	require.Equal(t, 24*time.Hour, cfg.Notify.ReplayTTL)
	require.Equal(t, int64(64<<10), cfg.Notify.MaxBodyBytes)
	require.Equal(t, "600-M", cfg.Notify.RateLimit)
	require.Equal(t, "120-M", cfg.Gateway.RateLimit)
	require.Equal(t, 10, cfg.Worker.Concurrency)
	require.Equal(t, "smartpay", cfg.Obs.MetricsNamespace)
	require.True(t, cfg.Obs.MetricsEnabled)
	require.False(t, cfg.Obs.PprofEnabled)
	require.False(t, cfg.Security.EnableHSTS)
	require.Equal(t, 31536000, cfg.Security.HSTSMaxAge)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = ":9090"
	env["SMARTPAY_API_URL"] = "https://sandbox.smartpay.test/api"
	env["SMARTPAY_TIMEOUT"] = "3s"
	env["SMARTPAY_BREAKER_FAILURE_RATIO"] = "0.25"
	env["NOTIFY_REPLAY_TTL"] = "bogus"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example, ,https://b.example"
	env["OBS_ENABLE_PROMETHEUS"] = "off"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "https://sandbox.smartpay.test/api", cfg.SmartPay.APIURL)
	require.Equal(t, 3*time.Second, cfg.SmartPay.Timeout)
	require.Equal(t, 0.25, cfg.SmartPay.BreakerFailureRatio)
	require.Equal(t, 24*time.Hour, cfg.Notify.ReplayTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.Obs.MetricsEnabled)
}

func TestLoadRequiresCredentials(t *testing.T) {
	env := baseEnv()
	env["SMARTPAY_MERCHANT_ID"] = ""
	env["SMARTPAY_SIGN_KEY"] = ""

	_, err := config.LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SMARTPAY_MERCHANT_ID is required")
	require.Contains(t, err.Error(), "SMARTPAY_SIGN_KEY is required")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := baseEnv()
	env["SMARTPAY_BREAKER_FAILURE_RATIO"] = "1.5"
	env["GATEWAY_JWT_SECRET"] = "short"

	_, err := config.LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SMARTPAY_BREAKER_FAILURE_RATIO is invalid")
	require.Contains(t, err.Error(), "GATEWAY_JWT_SECRET is invalid")
}

func TestMustLoad(t *testing.T) {
	for key, value := range baseEnv() {
		t.Setenv(key, value)
	}
	t.Setenv("SMARTPAY_API_URL", "")

	var cfg *config.Config
	require.NotPanics(t, func() { cfg = config.MustLoad() })
	require.Equal(t, "M1", cfg.SmartPay.MerchantID)
	require.Equal(t, smartpay.DefaultAPIURL, cfg.SmartPay.APIURL)

	t.Setenv("SMARTPAY_SIGN_KEY", "")
	require.Panics(t, func() { config.MustLoad() })
}
