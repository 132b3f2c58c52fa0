package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/presence"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, registry *presence.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/connections", func(c *gin.Context) {
		participantID := c.Query("participant_id")
		if participantID == "" {
			c.JSON(http.StatusOK, gin.H{"active": registry.Count()})
			return
		}
		_, connected := registry.Lookup(participantID)
		status := "disconnected"
		if connected {
			status = "connected"
		}
		c.JSON(http.StatusOK, gin.H{"participant_id": participantID, "status": status})
	})
}
