package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pileworks/bom-service/internal/database"
)

// HealthResponse reports service liveness plus the state of the session
// store backend.
type HealthResponse struct {
	Status       string `json:"status"`
	SessionStore string `json:"sessionStore,omitempty"`
	Database     string `json:"database"`
}

// HealthCheck reports liveness. The database is only probed when the
// postgres session store is in use; the memory and file stores have nothing
// to ping.
// GET /health
func HealthCheck(c *gin.Context) {
	response := HealthResponse{Status: "ok"}
	if cfg != nil {
		response.SessionStore = cfg.Session.Store
	}

	if database.Pool() == nil {
		response.Database = "not configured"
		c.JSON(http.StatusOK, response)
		return
	}

	if err := database.Status(c.Request.Context()); err != nil {
		response.Database = "disconnected"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	response.Database = "connected"

	c.JSON(http.StatusOK, response)
}
