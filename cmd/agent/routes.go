package main

import (
	"database/sql"
	"net/http"
	"time"

	"pushtalk-agent/internal/httpapi"
	"pushtalk-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Push relay webhook (public).
	// NOTE: This endpoint should be protected by relay signature validation in production.
	r.POST("/push/incoming", h.HandlePush)

	// Shell pairing: loopback-only token issuance for the /v1 surface.
	r.POST("/pair/token", h.PairToken)

	// protected control surface for the shell
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/call", h.GetCall)
		v1.POST("/call/leave", h.Leave)
		v1.POST("/call/mute", h.Mute)
		v1.POST("/call/unmute", h.Unmute)

		app := v1.Group("/app")
		{
			app.POST("/foreground", h.Foreground)
			app.POST("/background", h.Background)
		}
	}
}
