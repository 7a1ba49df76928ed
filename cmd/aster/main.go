package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/internal/handlers"
	"github.com/Ramsey-B/aster/pkg/accounts"
	"github.com/Ramsey-B/aster/pkg/daycache"
	"github.com/Ramsey-B/aster/pkg/health"
	"github.com/Ramsey-B/aster/pkg/httpclient"
	"github.com/Ramsey-B/aster/pkg/middleware"
	"github.com/Ramsey-B/aster/pkg/orchestrator"
	"github.com/Ramsey-B/aster/pkg/providers"
	"github.com/Ramsey-B/aster/pkg/ratelimit"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/scheduler"
	"github.com/Ramsey-B/aster/pkg/session"
	"github.com/Ramsey-B/aster/pkg/tokens"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// version is overridden at build time via ldflags
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func run(cfg config.Config, logger ectologger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, tracing.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("tracing shutdown failed")
			}
		}()
	}

	// Day store
	db, err := sqlx.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open day store at %s: %w", cfg.DatabasePath, err)
	}
	defer db.Close()

	dayStore, err := daycache.NewSQLiteStore(db, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize day store: %w", err)
	}

	// Credential store
	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to credential store: %w", err)
	}
	defer redisClient.Close()

	tokenStore := tokens.NewRedisStore(redisClient, logger)

	// Token refresh
	endpoints := tokens.DefaultOAuthEndpoints()
	endpoints.GitHubClientID = cfg.GitHubClientID
	endpoints.GitHubClientSecret = cfg.GitHubClientSecret
	endpoints.AzureDevOpsClientID = cfg.AzureDevOpsClientID
	endpoints.AzureDevOpsClientSecret = cfg.AzureDevOpsClientSecret

	httpClient := httpclient.NewClient(httpclient.DefaultConfig(), logger)
	exchanger := tokens.NewHTTPExchanger(httpClient, endpoints, logger)
	refresh := tokens.NewCoordinator(tokenStore, exchanger, logger)

	// Provider adapters and orchestration
	adapters := orchestrator.Adapters{
		GitHub:      providers.NewGitHub(httpClient, "", logger),
		AzureDevOps: providers.NewAzureDevOps(httpClient, "", logger),
		Calendar:    providers.NewCalendar(httpClient, logger),
	}
	orch := orchestrator.New(adapters, tokenStore, refresh, ratelimit.NewManager(logger), logger)

	// Accounts and session
	accountStore, err := accounts.NewStore(cfg.AccountsPath, cfg.HeatmapWindowDays)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	sess := session.New()

	// The account store doubles as the window source so the synced range
	// always tracks the heatmap preference.
	coordinator := daycache.NewCoordinator(orch, dayStore, sess, accountStore, logger, daycache.Config{
		CycleTimeout: cfg.CycleTimeout,
		TodayMaxAge:  cfg.TodayMaxAge,
	})

	sched := scheduler.NewScheduler(coordinator, accountStore, scheduler.Config{
		Interval: cfg.RefreshInterval,
		Debounce: cfg.RefreshDebounce,
	}, logger)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("scheduler shutdown failed")
		}
	}()

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	checker := health.NewChecker(db, redisClient.Redis(), sess, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	handlers.NewSessionHandler(sess, sched, coordinator, accountStore, logger).RegisterRoutes(api)
	handlers.NewAccountHandler(accountStore, logger).RegisterRoutes(api)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
		checker.SetReady(true)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
