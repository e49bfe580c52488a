package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
	"sitefoundry.io/foreman/internal/resolver"
)

// GetRecipients handles GET /recipients: resolve the notification audience
// for a tenant and optional project. Resolution failures degrade to a
// 200-with-errors envelope; only a missing clientId is a caller error.
func (s *Server) GetRecipients(c *gin.Context) {
	clientID := c.Query("clientId")
	if clientID == "" {
		_ = c.Error(apperrors.ErrValidationf("clientId query parameter is required"))
		return
	}

	skipCache, _ := strconv.ParseBool(c.DefaultQuery("skipCache", "false"))

	result := s.resolver.Resolve(c.Request.Context(), resolver.Request{
		ClientID:  clientID,
		ProjectID: c.Query("projectId"),
		SkipCache: skipCache,
	})

	c.JSON(http.StatusOK, gin.H{
		"success":            len(result.Recipients) > 0,
		"source":             result.Source,
		"recipients":         result.Recipients,
		"errors":             result.Errors,
		"recipientCount":     result.RecipientCount,
		"deduplicationCount": result.DeduplicationCount,
		"resolutionTimeMs":   result.ResolutionTime.Milliseconds(),
	})
}

// DeleteRecipients handles DELETE /recipients: clear the resolution cache,
// scoped to a tenant when clientId is supplied.
func (s *Server) DeleteRecipients(c *gin.Context) {
	cleared := s.resolver.Cache().Clear(c.Query("clientId"))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cleared": cleared,
	})
}

// HeadRecipients handles HEAD /recipients: expose cache size as a header.
func (s *Server) HeadRecipients(c *gin.Context) {
	c.Header("X-Cache-Size", strconv.Itoa(s.resolver.Cache().Size()))
	c.Status(http.StatusOK)
}
