package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
	"sitefoundry.io/foreman/internal/retry"
)

// GetRetryStatus handles GET /retry[?notificationId]: queue snapshot.
func (s *Server) GetRetryStatus(c *gin.Context) {
	status := s.retries.Status(c.Query("notificationId"))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  status,
	})
}

// retryActionRequest is the POST /retry body.
type retryActionRequest struct {
	Action         string `json:"action" binding:"required"`
	NotificationID string `json:"notificationId,omitempty"`
}

// PostRetryAction handles POST /retry: operator queue controls.
func (s *Server) PostRetryAction(c *gin.Context) {
	var req retryActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ErrValidationf("invalid request body: %v", err))
		return
	}

	switch req.Action {
	case "process_queue":
		summary := s.retries.ProcessQueue(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})

	case "force_retry":
		if req.NotificationID == "" {
			_ = c.Error(apperrors.ErrValidationf("notificationId is required for force_retry"))
			return
		}
		summary, err := s.retries.ForceRetry(c.Request.Context(), req.NotificationID)
		if err != nil {
			_ = c.Error(apperrors.NotFound(apperrors.CodeRetryNotFound, err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})

	case "clear_retries":
		if req.NotificationID == "" {
			_ = c.Error(apperrors.ErrValidationf("notificationId is required for clear_retries"))
			return
		}
		if !s.retries.ClearRetries(req.NotificationID) {
			_ = c.Error(apperrors.NotFound(apperrors.CodeRetryNotFound, "retry entry not found"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "cleared": 1})

	case "clear_all":
		c.JSON(http.StatusOK, gin.H{"success": true, "cleared": s.retries.ClearAll()})

	default:
		_ = c.Error(apperrors.ErrValidationf("unknown action %q", req.Action))
	}
}

// retryConfigRequest is the PUT /retry body. Durations are milliseconds.
type retryConfigRequest struct {
	MaxAttempts      int    `json:"maxAttempts"`
	BaseDelayMs      int64  `json:"baseDelayMs"`
	MaxDelayMs       int64  `json:"maxDelayMs"`
	Jitter           string `json:"jitter"`
	BreakerThreshold uint32 `json:"breakerThreshold"`
	BreakerResetMs   int64  `json:"breakerResetMs"`
	QueueIntervalMs  int64  `json:"queueIntervalMs"`
}

// PutRetryConfig handles PUT /retry: update backoff and breaker settings.
func (s *Server) PutRetryConfig(c *gin.Context) {
	var req retryConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ErrValidationf("invalid request body: %v", err))
		return
	}

	cfg := retry.Config{
		MaxAttempts:      req.MaxAttempts,
		BaseDelay:        time.Duration(req.BaseDelayMs) * time.Millisecond,
		MaxDelay:         time.Duration(req.MaxDelayMs) * time.Millisecond,
		Jitter:           retry.JitterStrategy(req.Jitter),
		BreakerThreshold: req.BreakerThreshold,
		BreakerReset:     time.Duration(req.BreakerResetMs) * time.Millisecond,
		QueueInterval:    time.Duration(req.QueueIntervalMs) * time.Millisecond,
	}
	if err := s.retries.UpdateConfig(cfg); err != nil {
		_ = c.Error(apperrors.ErrValidationf("%v", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteRetries handles DELETE /retry[?notificationId]: clear one entry or
// the whole queue.
func (s *Server) DeleteRetries(c *gin.Context) {
	if id := c.Query("notificationId"); id != "" {
		if !s.retries.ClearRetries(id) {
			_ = c.Error(apperrors.NotFound(apperrors.CodeRetryNotFound, "retry entry not found"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "cleared": 1})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cleared": s.retries.ClearAll()})
}
