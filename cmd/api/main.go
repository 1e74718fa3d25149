package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/smartpay-gateway/internal/auth"
	"github.com/noah-isme/smartpay-gateway/internal/config"
	"github.com/noah-isme/smartpay-gateway/internal/health"
	"github.com/noah-isme/smartpay-gateway/internal/notify"
	"github.com/noah-isme/smartpay-gateway/internal/obs"
	"github.com/noah-isme/smartpay-gateway/internal/payment"
	"github.com/noah-isme/smartpay-gateway/internal/ratelimit"
	"github.com/noah-isme/smartpay-gateway/internal/resilience"
	"github.com/noah-isme/smartpay-gateway/internal/signing"
	"github.com/noah-isme/smartpay-gateway/internal/smartpay"
)

func main() {
	cfg := config.MustLoad()

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "smartpay-gateway",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "smartpay",
		MinRequests:  cfg.SmartPay.BreakerMinRequests,
		FailureRatio: cfg.SmartPay.BreakerFailureRatio,
		OpenFor:      cfg.SmartPay.BreakerOpenFor,
		Logger:       logger,
	})
	client, err := smartpay.New(smartpay.Config{
		Credentials: smartpay.Credentials{MerchantID: cfg.SmartPay.MerchantID, SignKey: cfg.SmartPay.SignKey},
		APIURL:      cfg.SmartPay.APIURL,
		Transport:   smartpay.NewHTTPTransport(nil, breaker, cfg.SmartPay.Timeout),
		Logger:      logger.With().Str("component", "smartpay").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise smartpay client")
	}
	logger.Info().Stringer("credentials", client.Credentials()).Str("api_url", cfg.SmartPay.APIURL).Msg("smartpay client ready")

	tokens, err := auth.NewTokens(auth.TokensConfig{
		Secret:   cfg.Gateway.JWTSecret,
		Issuer:   cfg.Gateway.JWTIssuer,
		Audience: cfg.Gateway.JWTAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise gateway tokens")
	}

	limitStore, err := ratelimit.NewRedisStore(redisClient, "smartpay:ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limit store")
	}
	gatewayLimiter, err := ratelimit.NewFixedWindow(limitStore, cfg.Gateway.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse gateway rate limit")
	}
	notifyLimiter, err := ratelimit.NewFixedWindow(limitStore, cfg.Notify.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse notify rate limit")
	}

	queueOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse task queue redis url")
	}
	taskClient := asynq.NewClient(queueOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	notifyHandler := notify.Handler{
		Verifier:     signing.Verifier{Key: cfg.SmartPay.SignKey},
		Replay:       notify.RedisReplayGuard{Client: redisClient, Prefix: "smartpay:notify:"},
		ReplayTTL:    cfg.Notify.ReplayTTL,
		MaxBodyBytes: cfg.Notify.MaxBodyBytes,
		Dispatcher:   notify.TaskEnqueuer{Client: taskClient, Queue: notify.QueueName, MaxRetry: 10, Retention: cfg.Notify.ReplayTTL},
		Logger:       logger.With().Str("component", "notify").Logger(),
	}

	router := newRouter(routerDeps{
		cfg:            cfg,
		logger:         logger,
		tracing:        tracingEnabled,
		payments:       &payment.Handler{Payments: client, Logger: logger},
		notify:         notifyHandler,
		health:         health.Handler{Probes: []health.Probe{health.RedisProbe(redisClient, 300*time.Millisecond)}},
		authMiddleware: auth.Middleware{Tokens: tokens},
		gatewayLimit: ratelimit.Handler{
			Limiter: gatewayLimiter,
			Key:     ratelimit.BySubject,
			OnError: limiterErrorLogger(logger, "gateway"),
		},
		notifyLimit: ratelimit.Handler{
			Limiter: notifyLimiter,
			Key:     ratelimit.ByClientIP,
			OnError: limiterErrorLogger(logger, "notify"),
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func limiterErrorLogger(logger zerolog.Logger, scope string) func(error) {
	return func(err error) {
		logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
	}
}
