package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"matchly_backend/database"
	"matchly_backend/internal/config"
	"matchly_backend/internal/logger"
	"matchly_backend/internal/notify"
	"matchly_backend/internal/repositories"
	"matchly_backend/internal/routes"
	"matchly_backend/ws"
)

// Run - точка сборки ядра доставки уведомлений
func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...")
	gormDB, err := database.ConnectGorm()
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Migration failed", "error", err)
	}
	logger.Info("Database connected")

	coordinator, ginRouter := setupCore(cfg, gormDB)

	// Планировщики стартуют до того, как эндпоинт начнет принимать апгрейды
	coordinator.Startup()

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    address,
		Handler: ginRouter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info(fmt.Sprintf("Server starting on %s", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Сначала ядро (планировщики, in-flight, соединения), потом листенер
	coordinator.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}

// setupCore собирает реестр, диспетчер, fallback-очередь и планировщики
func setupCore(cfg *config.Config, gormDB *gorm.DB) (*notify.Coordinator, *gin.Engine) {
	pendingRepo := repositories.NewPendingDeliveryRepository(gormDB)
	recordRepo := repositories.NewNotificationRecordRepository(gormDB)

	registry := ws.NewRegistry()
	queue := notify.NewFallbackQueue(pendingRepo, time.Duration(cfg.Notify.RetentionDays)*24*time.Hour, cfg.SweepInterval())
	queue.SetRecordCleaner(recordRepo)
	dispatcher := notify.NewDispatcher(registry, queue)

	// Общие платформенные уведомления: дайджест матчей, low-activity
	platformScheduler := notify.NewScheduler(
		"platform_notifications",
		cfg.DigestInterval(),
		cfg.NotifyJitter(),
		notify.PlatformDue(gormDB),
		dispatcher,
		recordRepo,
	)

	// Жизненный цикл подписок: более короткий интервал под биллинг
	subscriptionScheduler := notify.NewScheduler(
		"subscription_jobs",
		cfg.SubscriptionInterval(),
		cfg.NotifyJitter(),
		notify.SubscriptionDue(gormDB),
		dispatcher,
		recordRepo,
	)

	coordinator := notify.NewCoordinator(
		registry,
		dispatcher,
		queue,
		cfg.ShutdownGrace(),
		platformScheduler,
		subscriptionScheduler,
	)

	wsHandler := ws.NewWebSocketHandler(
		registry,
		coordinator.Accepting,
		cfg.WS.MaxConnectionsPerUser,
		ws.ClientOptions{
			SendBuffer:   cfg.WS.SendBuffer,
			WriteTimeout: cfg.WriteTimeout(),
			PongTimeout:  cfg.PongTimeout(),
		},
	)

	if cfg.Server.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	routes.RegisterRoutes(ginRouter, wsHandler)

	return coordinator, ginRouter
}
