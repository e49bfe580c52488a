package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sitefoundry.io/foreman/internal/maintenance"
	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
)

// maintenanceRequest is the POST /maintenance body.
type maintenanceRequest struct {
	Job string `json:"job"`
}

// PostMaintenance handles POST /maintenance: cron-triggered job run,
// authenticated by a shared bearer secret rather than a user JWT.
func (s *Server) PostMaintenance(c *gin.Context) {
	if !s.cronAuthorized(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"code":    apperrors.CodeAuthFailed,
			"message": "invalid cron secret",
		})
		return
	}

	req := maintenanceRequest{Job: string(maintenance.JobFull)}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apperrors.ErrValidationf("invalid request body: %v", err))
			return
		}
	}

	record, err := s.maintenance.Run(c.Request.Context(), maintenance.JobType(req.Job))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": record.Success,
		"job":     record,
	})
}

// GetMaintenance handles GET /maintenance: schedule, health and run history.
func (s *Server) GetMaintenance(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  s.maintenance.Status(),
	})
}

func (s *Server) cronAuthorized(c *gin.Context) bool {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.cronSecret)) == 1
}
