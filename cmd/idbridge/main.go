package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/unionco/idbridge/pkg/api"
	"github.com/unionco/idbridge/pkg/authflow"
	"github.com/unionco/idbridge/pkg/cognito"
	"github.com/unionco/idbridge/pkg/config"
	"github.com/unionco/idbridge/pkg/federation"
	"github.com/unionco/idbridge/pkg/identity"
	"github.com/unionco/idbridge/pkg/middleware"
	"github.com/unionco/idbridge/pkg/observability"
	"github.com/unionco/idbridge/pkg/validators"

	"github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Bridge exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		observability.ShutdownOTel(shutdownCtx, providers, logger)
	}()

	store, err := identity.Open(cfg.Store.Driver, cfg.Store.DSN, cfg.Store.DefaultGroup)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.WithField("driver", cfg.Store.Driver).Info("User store ready")

	idp, err := cognito.NewClient(ctx, cfg.Cognito.Region, cfg.Cognito.ClientID,
		cfg.Cognito.ClientSecret, cfg.Cognito.UserPoolID, logger)
	if err != nil {
		return err
	}

	orchestrator := authflow.NewOrchestrator(idp, logger, metrics)
	reconciler := identity.NewReconciler(store, logger, metrics)

	toggles := config.NewToggles(cfg.Validators.JWTEnabled, cfg.Validators.SAMLEnabled)
	if cfg.Validators.TogglesFile != "" {
		if err := toggles.LoadFromFile(cfg.Validators.TogglesFile); err != nil {
			logger.WithError(err).Warn("Failed to load validator toggles file, using configured defaults")
		}
		if err := toggles.Watch(cfg.Validators.TogglesFile, logger, ctx.Done()); err != nil {
			return err
		}
	}

	scheduler := cron.New()

	var jwtValidator *validators.JWTValidator
	if cfg.Cognito.JWKSURL != "" {
		keys, err := validators.NewKeySet(cfg.Cognito.JWKSURL, logger, validators.KeySetOptions{
			CacheSize:    cfg.Cognito.KeyCacheSize,
			MissCooldown: cfg.Cognito.KeyMissCooldown,
			Metrics:      metrics,
		})
		if err != nil {
			return err
		}

		if _, err := scheduler.AddFunc(cfg.Cognito.KeyRefreshSchedule, func() {
			if err := keys.RefreshAll(context.Background()); err != nil {
				logger.WithError(err).Warn("Scheduled key set refresh failed")
			}
		}); err != nil {
			return err
		}

		jwtValidator = validators.NewJWTValidator(keys, logger)
	}

	var samlValidator *validators.SAMLValidator
	if cfg.Validators.SAMLCertificate != "" {
		samlValidator, err = validators.NewSAMLValidator(validators.SAMLConfig{
			Certificate: cfg.Validators.SAMLCertificate,
			IssuerURL:   cfg.Validators.SAMLIssuer,
			AudienceURL: cfg.Validators.SAMLAudience,
			ACSURL:      cfg.Server.BaseURL + "/saml/acs",
			LoginURL:    cfg.Validators.SAMLLoginURL,
		}, logger)
		if err != nil {
			return err
		}
	}

	registry := validators.NewRegistry(jwtValidator, samlValidator, toggles, reconciler, logger, metrics)

	var federated *federation.Login
	if cfg.Federation.Enabled {
		federated, err = federation.NewLogin(ctx, federation.Config{
			IssuerURL:    cfg.Federation.IssuerURL,
			ClientID:     cfg.Cognito.ClientID,
			ClientSecret: cfg.Cognito.ClientSecret,
			RedirectURL:  cfg.Federation.RedirectURL,
			Scopes:       cfg.Federation.Scopes,
		}, reconciler, logger)
		if err != nil {
			return err
		}
	}

	loginLimit, redisClient := buildLoginRateLimit(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	server := api.NewServer(api.Options{
		Orchestrator:   orchestrator,
		Registry:       registry,
		SAML:           samlValidator,
		Federated:      federated,
		Logger:         logger,
		Metrics:        metrics,
		LoginRateLimit: loginLimit,
	})

	scheduler.Start()
	defer scheduler.Stop()

	mainSrv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server.Router(), "idbridge"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthSrv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthHandler(store, redisClient, metrics),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", mainSrv.Addr).Info("Identity bridge listening")
		if err := mainSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthSrv.Addr).Info("Health server listening")
		if err := healthSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := mainSrv.Shutdown(shutdownCtx)
		if herr := healthSrv.Shutdown(shutdownCtx); err == nil {
			err = herr
		}
		return err
	})

	return g.Wait()
}

// buildLoginRateLimit selects the limiter for credential endpoints: Redis
// when configured, in-process otherwise. The Redis client is returned so the
// caller can close it on shutdown.
func buildLoginRateLimit(ctx context.Context, cfg *config.Config, logger *observability.Logger) (func(http.Handler) http.Handler, *redis.Client) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}

	limitCfg := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		WindowDuration:    cfg.RateLimit.WindowDuration,
		BurstSize:         middleware.DefaultRateLimitConfig().BurstSize,
	}

	if cfg.RateLimit.RedisURL != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisURL,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, rate limiting will fail open")
		}

		limiter := middleware.NewDistributedRateLimiter(client, limitCfg, "idbridge:ratelimit")
		return middleware.DistributedRateLimit(limiter, logger), client
	}

	limiter := middleware.NewRateLimiter(limitCfg)
	limiter.StartCleanup(ctx)
	return middleware.RateLimit(limiter), nil
}

func healthHandler(store *identity.SQLStore, redisClient *redis.Client, metrics *observability.Metrics) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", metrics.Handler())
	return mux
}
