package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLiveness handles GET /health/live: process liveness probe.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready: readiness probe with a document
// store check.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	if s.db == nil {
		checks["database"] = "not configured"
		allHealthy = false
	} else if err := s.db.Ping(c.Request.Context(), nil); err != nil {
		checks["database"] = "error"
		allHealthy = false
	} else {
		checks["database"] = "ok"
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
	})
}
