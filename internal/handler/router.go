// Package api provides the HTTP routes and handlers for the card pool service
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"giftvault/server/internal/repository"
	core "giftvault/server/internal/service"
	"giftvault/server/pkg/config"
)

// startTime records service start for the health endpoint uptime
var startTime = time.Now()

// Dependencies holds all dependencies required by the API handlers
type Dependencies struct {
	Config      *config.Config
	Registry    *core.Registry
	Store       *core.FileStore
	Replenisher *core.Replenisher
	Ledger      *core.EventLedger
	Archive     *repository.CardArchive
	Stats       *core.StatsCollector
}

// SetupRouter configures all API routes
func SetupRouter(r *gin.Engine, deps *Dependencies) {
	poolHandler := NewPoolHandler(deps)
	adminHandler := NewAdminHandler(deps)

	// Health endpoint (public, also the keep-warm target)
	r.GET("/health", poolHandler.Health)

	// Auth routes (public)
	authHandler := NewAuthHandler(&deps.Config.Auth)
	r.POST("/api/auth/login", authHandler.Login)

	// Pool routes (require JWT)
	apiGroup := r.Group("/api")
	apiGroup.Use(AuthMiddleware(deps.Config.Auth.SecretKey))
	{
		apiGroup.GET("/pools", poolHandler.Inspect)
		apiGroup.GET("/pools/:tier", poolHandler.InspectTier)
		apiGroup.POST("/cards/consume", poolHandler.Consume)
	}

	// Admin routes (require JWT)
	adminGroup := r.Group("/api/admin")
	adminGroup.Use(AuthMiddleware(deps.Config.Auth.SecretKey))
	{
		adminGroup.POST("/init", adminHandler.Init)
		adminGroup.POST("/pools/:tier/add-one", adminHandler.AddOne)
		adminGroup.POST("/pools/:tier/fill", adminHandler.Fill)
		adminGroup.GET("/events", adminHandler.Events)
	}

	// WebSocket routes (no auth, read-only stats)
	wsHandler := NewWebSocketHandler(deps.Registry, deps.Stats)
	r.GET("/ws/pool-status", wsHandler.PoolStatus)
}
