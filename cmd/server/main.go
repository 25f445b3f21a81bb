package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/alhassanaraouf/the360insights-sub001/internal/api/handlers"
	"github.com/alhassanaraouf/the360insights-sub001/internal/config"
	"github.com/alhassanaraouf/the360insights-sub001/internal/points"
	"github.com/alhassanaraouf/the360insights-sub001/internal/providers"
	"github.com/alhassanaraouf/the360insights-sub001/internal/services"
	"github.com/alhassanaraouf/the360insights-sub001/internal/storage"
	"github.com/alhassanaraouf/the360insights-sub001/pkg/database"
	"github.com/alhassanaraouf/the360insights-sub001/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logger with service context
	structuredLogger := logger.InitLogger("info", cfg.IsDevelopment())
	logger.WithService(cfg.ServiceName).WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting G-Ranking Service")

	// Setup Gin mode
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.NewRankingServiceConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := storage.NewStore(db.DB, structuredLogger)
	if err := store.AutoMigrate(); err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to migrate database: %v", err)
	}

	// Connect to Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize core services
	pointsTable := points.NewTable(structuredLogger)
	cacheService := services.NewCacheService(redisClient, structuredLogger)
	strategyClient := services.NewStrategyClient(cfg, structuredLogger)
	strategyClient.SetCacheService(cacheService)
	calculator := services.NewRankUpCalculator(store, strategyClient, pointsTable, cfg, structuredLogger)

	scProvider := providers.NewSimplyCompeteProvider(cfg.SimplyCompeteBaseURL, cfg.SimplyCompeteCookie, structuredLogger)
	syncService := services.NewCompetitionSyncService(store, scProvider, pointsTable, structuredLogger)

	// Schedule background competition sync and cache housekeeping
	scheduler := cron.New()
	if cfg.EnableBackgroundSync {
		_, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
			if _, err := syncService.SyncCompetitions(context.Background()); err != nil {
				structuredLogger.WithError(err).Error("Scheduled competition sync failed")
			}
			purged, err := store.PurgeExpiredCalculations(context.Background(), time.Now())
			if err != nil {
				structuredLogger.WithError(err).Error("Failed to purge expired calculations")
			} else if purged > 0 {
				structuredLogger.WithField("purged", purged).Info("Purged expired cached calculations")
			}
		})
		if err != nil {
			logger.WithService(cfg.ServiceName).Fatalf("Invalid sync schedule %q: %v", cfg.SyncSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Initialize router
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	// Initialize handlers
	rankUpHandler := handlers.NewRankUpHandler(calculator, structuredLogger)
	competitionHandler := handlers.NewCompetitionHandler(store, syncService, structuredLogger)
	healthHandler := handlers.NewHealthHandler(db, redisClient, strategyClient, structuredLogger)

	// Setup API routes
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/rank-up/calculate", rankUpHandler.Calculate)
		apiV1.GET("/competitions", competitionHandler.List)
		apiV1.GET("/competitions/sync", competitionHandler.Sync)
		apiV1.GET("/competitions/:id/participants/sync", competitionHandler.SyncParticipants)
	}

	// Health check endpoints (support both GET and HEAD)
	router.GET("/health", healthHandler.GetHealth)
	router.HEAD("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.HEAD("/ready", healthHandler.GetReady)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.WithService(cfg.ServiceName).WithField("port", cfg.Port).Info("G-Ranking service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService(cfg.ServiceName).Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService(cfg.ServiceName).Info("Shutting down G-Ranking service...")

	// The server has 5 seconds to finish the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithService(cfg.ServiceName).Fatalf("G-Ranking service forced to shutdown: %v", err)
	}

	logger.WithService(cfg.ServiceName).Info("G-Ranking service exited")
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithHTTPContext(c.Request.Method, c.Request.URL.Path, c.Request.UserAgent()).
			WithFields(logrus.Fields{
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   c.ClientIP(),
			}).Info("Request completed")
	}
}
