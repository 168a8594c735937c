package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/digsafe/permit-service/internal/api/http"
	"github.com/digsafe/permit-service/internal/api/http/handlers"
	"github.com/digsafe/permit-service/internal/auth"
	"github.com/digsafe/permit-service/internal/cache"
	"github.com/digsafe/permit-service/internal/config"
	"github.com/digsafe/permit-service/internal/events"
	"github.com/digsafe/permit-service/internal/observability"
	"github.com/digsafe/permit-service/internal/persistence"
	"github.com/digsafe/permit-service/internal/repository"
	"github.com/digsafe/permit-service/internal/service"
	"github.com/digsafe/permit-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	alertRepo := repository.NewAlertRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	statsCache := cache.New(redis.Client)

	authService := service.NewAuthService(cfg.Auth, userRepo)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		AlertRepo:  alertRepo,
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
		Cache:      statsCache,
		Logger:     logger,
	})
	alertService := service.NewAlertService(alertRepo, ticketRepo)
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	monitor := worker.NewExpirationMonitor(cfg.Monitor, worker.MonitorDependencies{
		TicketRepo: ticketRepo,
		AlertRepo:  alertRepo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Alerts:         handlers.NewAlertsHandler(alertService),
		Monitor:        handlers.NewMonitorHandler(monitor, metrics),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
