package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/realtime"
)

func NewRouter(basePath string, logger *logging.Logger, h *Handler, hub *realtime.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(basePath)
	{
		// Pipeline runs
		api.POST("/runs", h.QueueRun)
		api.GET("/runs", h.ListRuns)

		// Alerts
		api.GET("/alerts", h.ListAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.DELETE("/alerts", h.DeleteAlerts)

		// Bulletins
		api.GET("/bulletins/:id", h.GetBulletin)
		api.POST("/bulletins/:id/dispatch", h.DispatchBulletin)
		api.GET("/bulletins/:id/disseminations", h.ListDisseminations)

		// Channel groups
		api.POST("/channel-groups", h.CreateChannelGroup)
		api.GET("/channel-groups", h.ListChannelGroups)
		api.DELETE("/channel-groups/:id", h.DeleteChannelGroup)

		if hub != nil {
			api.GET("/ws", gin.WrapF(hub.ServeWS))
		}
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}
