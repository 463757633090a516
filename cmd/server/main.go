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

	"campus_live/internal/config"
	"campus_live/internal/gateway"
	"campus_live/internal/handler"
	"campus_live/internal/middleware"
	"campus_live/internal/repository"
	"campus_live/internal/service"
	"campus_live/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Брокер: NATS при заданном URL, иначе внутрипроцессный fan-out
	var broker gateway.Broker
	if cfg.NATS.URL != "" {
		broker, err = gateway.NewNATSBroker(cfg.NATS.URL, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to NATS", "error", err)
		}
		appLogger.Info("NATS connection established", "url", cfg.NATS.URL)
	} else {
		broker = gateway.NewLocalBroker()
		appLogger.Info("NATS URL not set, using in-process broker")
	}

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, cfg, appLogger)

	// Инициализация сервисов
	services := service.NewServices(repos, cfg, appLogger)

	// Координатор реального времени
	registry := gateway.NewRegistry(appLogger)
	coordinator := gateway.NewCoordinator(registry, broker, services, repos.Presence, cfg, appLogger)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(repos.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, coordinator, dbPool, rdb, broker, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	// Соединения закрываются, брошенные live-встречи завершаются системой
	coordinator.Shutdown(ctx)

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)
	router.GET("/ready", handlers.Health.Ready)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Публичные endpoints
		public := v1.Group("/auth")
		{
			public.POST("/register", rateLimitMiddleware.Limit(), handlers.Auth.Register)
			public.POST("/login", rateLimitMiddleware.Limit(), handlers.Auth.Login)
			public.POST("/refresh", handlers.Auth.RefreshToken)
			public.POST("/logout", handlers.Auth.Logout)
		}

		// Защищенные endpoints
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			meetings := protected.Group("/meetings")
			{
				meetings.POST("", handlers.Meeting.Create)
				meetings.GET("", handlers.Meeting.List)
				meetings.GET("/:id", handlers.Meeting.Get)
				meetings.POST("/:id/cancel", handlers.Meeting.Cancel)
			}
		}
	}

	// WebSocket endpoint: вся realtime-семантика идёт через координатор
	router.GET("/ws", handlers.WebSocket.Connect)

	return router
}
