package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"signalhub/internal/api"
	"signalhub/internal/api/handlers"
	"signalhub/internal/cache"
	"signalhub/internal/config"
	"signalhub/internal/jobs"
	"signalhub/internal/repository"
	"signalhub/internal/service"
	"signalhub/internal/stats"
	"signalhub/internal/websocket"
	"signalhub/pkg/crypto"
	"signalhub/pkg/ratelimit"
	"signalhub/pkg/retry"
	"signalhub/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server failed", utils.Err(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	db, err := initDatabase(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	if cfg.Database.AutoMigrate {
		applied, err := repository.Migrate(ctx, db)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", utils.Int("count", applied))
	}

	// Инициализация репозиториев
	signalRepo := repository.NewSignalRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	// WebSocket hub
	hub := websocket.NewHub()
	hub.SetAllowedOrigins(cfg.Server.CORSOrigins)
	go hub.Run()
	defer hub.Stop()

	// Инициализация сервисов
	aggregator := stats.NewAggregator(stats.WithTopSymbols(cfg.Stats.TopSymbols))
	statsService := service.NewStatsService(signalRepo, aggregator, service.StatsOptions{
		DefaultPeriodDays: cfg.Stats.DefaultPeriodDays,
		RecentLimit:       cfg.Stats.RecentLimit,
		CacheTTL:          cfg.Stats.CacheTTL,
	})
	statsService.SetWebSocketHub(hub)

	signalService := service.NewSignalService(signalRepo)
	signalService.SetWebSocketHub(hub)
	signalService.SetStatsInvalidator(statsService)

	authService := service.NewAuthService(adminRepo, sessionRepo, crypto.NewPasswordHasher(0), cfg.Security.SessionTTL())

	healthChecks := map[string]handlers.Pinger{"database": db}

	// Кеш статистики (опционально)
	if cfg.Redis.URL != "" {
		rdb, err := initRedis(ctx, cfg.Redis.URL, log)
		if err != nil {
			return err
		}
		defer rdb.Close()

		statsService.SetCache(cache.NewRedisStatsCache(rdb))
		healthChecks["redis"] = handlers.PingerFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		log.Info("stats cache enabled", utils.Any("ttl", cfg.Stats.CacheTTL))
	}

	if cfg.Security.WebhookSecret == "" {
		log.Warn("TRADINGVIEW_WEBHOOK_SECRET is not set, webhook accepts unsigned alerts")
	}
	if cfg.Security.EAAPIKey == "" {
		log.Warn("EA_API_KEY is not set, EA routes are open")
	}

	webhookLimiter := ratelimit.NewKeyedLimiter(cfg.RateLimit.WebhookRate, cfg.RateLimit.WebhookBurst)
	loginLimiter := ratelimit.NewKeyedLimiter(cfg.RateLimit.LoginRate, cfg.RateLimit.LoginBurst)

	// Фоновые задачи
	runner := jobs.New(ctx, cfg.Jobs.Timeout)
	err = jobs.Register(runner, jobs.Deps{
		Sessions: authService,
		Stats:    statsService,
		Signals:  signalService,
		Limiters: []*ratelimit.KeyedLimiter{webhookLimiter, loginLimiter},
	}, jobs.Schedules{
		SessionCleanup:  cfg.Jobs.SessionCleanupCron,
		StatsRefresh:    cfg.Stats.RefreshCron,
		LimiterCleanup:  cfg.Jobs.LimiterCleanupCron,
		SignalPurge:     cfg.Jobs.SignalPurgeCron,
		LimiterIdle:     cfg.RateLimit.IdleTimeout,
		SignalRetention: cfg.Jobs.Retention(),
	})
	if err != nil {
		return err
	}
	runner.Start()
	defer runner.Stop()

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		SignalService:  signalService,
		StatsService:   statsService,
		AuthService:    authService,
		Hub:            hub,
		WebhookSecret:  cfg.Security.WebhookSecret,
		EAAPIKey:       cfg.Security.EAAPIKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
		SecureCookie:   cfg.Security.SecureCookie || cfg.Server.UseHTTPS,
		WebhookLimiter: webhookLimiter,
		LoginLimiter:   loginLimiter,
		HealthChecks:   healthChecks,
	}

	// HTTP сервер
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", utils.String("addr", server.Addr), utils.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// initDatabase создает подключение к базе данных.
// Ping повторяется с backoff: Postgres может стартовать одновременно с сервисом.
func initDatabase(ctx context.Context, cfg *config.Config, log *utils.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	rc := retry.StartupConfig()
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready", utils.Int("attempt", attempt), utils.Err(err), utils.Any("retry_in", delay))
	}
	err = retry.Do(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			// таймаут одной попытки не должен останавливать повторы
			return fmt.Errorf("ping: %s", err.Error())
		}
		return nil
	}, rc)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initRedis подключается к Redis с теми же повторами, что и БД
func initRedis(ctx context.Context, url string, log *utils.Logger) (*redis.Client, error) {
	if _, err := cache.ParseOptions(url); err != nil {
		return nil, err
	}

	rc := retry.StartupConfig()
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("redis not ready", utils.Int("attempt", attempt), utils.Err(err), utils.Any("retry_in", delay))
	}
	rdb, err := retry.DoWithResult(ctx, func(ctx context.Context) (*redis.Client, error) {
		return cache.Connect(ctx, url)
	}, rc)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}
