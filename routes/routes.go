package routes

import (
	"github.com/gin-gonic/gin"

	"twse_alert_backend/config"
	"twse_alert_backend/controllers"
	"twse_alert_backend/middleware"
	"twse_alert_backend/services/history"
	"twse_alert_backend/services/notify"
	"twse_alert_backend/services/watchlist"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, store *watchlist.Store, engine *watchlist.Engine, hub *notify.Hub, hist *history.Service) {
	watchlistController := controllers.NewWatchlistController(store, engine, hist)

	auth := middleware.JWTAuth(config.AppConfig.JWTSecret)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Watchlist routes
		wl := api.Group("/watchlist")
		{
			wl.GET("", watchlistController.GetWatchlist)
			wl.GET("/:id", watchlistController.GetWatchItem)
			wl.POST("", auth, watchlistController.AddWatchItem)
			wl.PUT("/:id", auth, watchlistController.UpdateWatchItem)
			wl.DELETE("/:id", auth, watchlistController.RemoveWatchItem)
		}

		// Monitor control routes
		monitor := api.Group("/monitor")
		{
			monitor.GET("/status", watchlistController.MonitorStatus)
			monitor.POST("/start", auth, watchlistController.StartMonitor)
			monitor.POST("/stop", auth, watchlistController.StopMonitor)
			monitor.POST("/check", auth, watchlistController.CheckNow)
		}

		// Alert history
		api.GET("/alerts/history", watchlistController.GetAlertHistory)
	}

	// WebSocket stream of alerts and monitor status
	router.GET("/ws", func(c *gin.Context) {
		hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "TWSE Watchlist Alert API is running",
		})
	})
}
