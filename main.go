package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"twse_alert_backend/config"
	"twse_alert_backend/models"
	"twse_alert_backend/routes"
	"twse_alert_backend/scheduler"
	"twse_alert_backend/services/history"
	"twse_alert_backend/services/notify"
	"twse_alert_backend/services/quotes"
	"twse_alert_backend/services/storage"
	"twse_alert_backend/services/watchlist"
)

func main() {
	log.Println("==============================================")
	log.Println("  TWSE Watchlist Alert Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Open the watchlist store backend
	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open watchlist store: %v", err)
	}
	defer kv.Close()

	store := watchlist.NewStore(kv)
	log.Printf("Watchlist loaded: %d items (backend: %s)", len(store.GetAll()), cfg.StoreBackend)

	// Optional alert history database
	var historyService *history.Service
	if cfg.HistoryEnabled() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("History database unavailable, continuing without it: %v", err)
		} else if err := models.MigrateAlertHistoryModels(db); err != nil {
			log.Printf("History migration failed, continuing without it: %v", err)
		} else {
			historyService = history.NewService(db)
		}
	}

	// Notification sinks: process log plus the WebSocket hub
	hub := notify.NewHub()
	sink := notify.Multi{notify.LogNotifier{}, hub}

	// Monitoring engine
	quoteClient := quotes.NewClient()
	engine := watchlist.NewEngine(
		store,
		quoteClient.GetRealtimeQuotes,
		sink,
		historyRecorder(historyService),
		watchlist.SystemClock{},
		watchlist.EngineConfig{
			PollInterval: cfg.PollInterval,
			Location:     cfg.MarketLocation(),
			SoundEnabled: cfg.AlertSound,
			SoundFile:    cfg.AlertSoundFile,
		},
	)
	engine.OnStatus(hub.PublishStatus)
	engine.Start()

	// Daily trigger reset and history cleanup
	jobScheduler := scheduler.NewScheduler(store, historyService, cfg.MarketLocation(), cfg.ResetTime)
	jobScheduler.Start()

	// HTTP server
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())
	routes.SetupRoutes(router, store, engine, hub, historyService)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, engine, jobScheduler, hub)
}

// openStore selects the persistence backend from configuration.
func openStore(cfg *config.Config) (storage.KeyValueStore, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case "mongo":
		return storage.NewMongoStore(cfg.MongoURI)
	default:
		return storage.NewFileStore(cfg.WatchlistDir)
	}
}

// historyRecorder adapts the optional history service to the engine's
// recorder interface; a nil service means recording is disabled.
func historyRecorder(svc *history.Service) watchlist.HistoryRecorder {
	if svc == nil {
		return nil
	}
	return svc
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, engine *watchlist.Engine, jobScheduler *scheduler.Scheduler, hub *notify.Hub) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop background work first
	engine.Stop()
	jobScheduler.Stop()
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("History database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
