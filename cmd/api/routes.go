package main

import (
	"callnote-relay/internal/directory"
	"callnote-relay/internal/relay"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic; handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, dir directory.Handlers, rel relay.Handler) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: OpenPhone signs webhooks; signature validation belongs here
	// before exposing this endpoint publicly.
	r.POST("/webhooks/openphone", rel.HandleWebhook)

	// Directory API. The UI consuming it is served elsewhere, hence the
	// permissive CORS on this group.
	mappings := r.Group("/mappings")
	mappings.Use(directory.CORS())
	{
		mappings.GET("", dir.List)
		mappings.GET("/count", dir.Count)
		mappings.GET("/:phone", dir.GetByPhone)
		mappings.POST("", dir.Save)
		mappings.POST("/lookup", dir.Lookup)
		mappings.DELETE("/:phone", dir.Delete)
		mappings.OPTIONS("", func(c *gin.Context) {})
		mappings.OPTIONS("/:phone", func(c *gin.Context) {})
	}
}
