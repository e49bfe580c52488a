package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sitefoundry.io/foreman/internal/domain"
	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
)

// dispatchRequest is the POST /notifications/dispatch body: a raw domain
// event to fan out. Used by the sibling services that own the CRUD surfaces.
type dispatchRequest struct {
	Category   string            `json:"category" binding:"required"`
	Action     string            `json:"action" binding:"required"`
	ActorName  string            `json:"actorName"`
	TargetName string            `json:"targetName"`
	ClientID   string            `json:"clientId" binding:"required"`
	ProjectID  string            `json:"projectId,omitempty"`
	Quantity   float64           `json:"quantity,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	Message    string            `json:"message,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// PostDispatch handles POST /notifications/dispatch: run the full pipeline
// for one domain event and return the delivery summary.
func (s *Server) PostDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ErrValidationf("invalid request body: %v", err))
		return
	}

	event := domain.ActivityEvent{
		Category:   domain.Category(req.Category),
		Action:     domain.Action(req.Action),
		ActorName:  req.ActorName,
		TargetName: req.TargetName,
		ClientID:   req.ClientID,
		ProjectID:  req.ProjectID,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		Message:    req.Message,
		Data:       req.Data,
	}

	result := s.notifier.OnActivityLogged(c.Request.Context(), event)

	c.JSON(http.StatusOK, gin.H{
		"success":          result.Success,
		"notificationId":   result.NotificationID,
		"recipientCount":   result.RecipientCount,
		"deliveredCount":   result.DeliveredCount,
		"failedCount":      result.FailedCount,
		"errors":           result.Errors,
		"processingTimeMs": result.ProcessingTime.Milliseconds(),
	})
}
