package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/x402-payments-router/internal/db"
)

// HealthzHandler is the liveness probe: returns 200 as long as the
// process is serving.
func HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// ReadyzHandler is the readiness probe: the service is ready once the
// database answers a ping and the scanner has completed at least one
// full reconciliation cycle, so no expired record predating this process
// is still waiting to be swept.
func (h *Handler) ReadyzHandler(c *gin.Context) {
	if db.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "database not initialized",
		})
		return
	}

	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "database unreachable",
			"error":   err.Error(),
		})
		return
	}

	var cycles uint64
	if h.Scanner != nil {
		cycles = h.Scanner.Cycles()
		if cycles == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": "waiting for first reconciliation cycle",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"type":   "readiness",
		"cycles": cycles,
	})
}
