package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sitefoundry.io/foreman/internal/api/middleware"
	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
	"sitefoundry.io/foreman/internal/token"
)

// PostPushToken handles POST /push-token: register or refresh a device
// token. The bearer token's subject must match the registering user id.
func (s *Server) PostPushToken(c *gin.Context) {
	var reg token.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		_ = c.Error(apperrors.ErrValidationf("invalid request body: %v", err))
		return
	}
	if reg.UserID == "" || reg.Token == "" {
		_ = c.Error(apperrors.ErrValidationf("userId and token are required"))
		return
	}

	if actor := actorFromCtx(c); actor != reg.UserID {
		_ = c.Error(apperrors.Forbidden(apperrors.CodeUserMismatch,
			"authenticated user may only register their own tokens"))
		return
	}

	if field := middleware.FirstUnsafe(map[string]string{
		"deviceId":   reg.DeviceID,
		"deviceName": reg.DeviceName,
		"appVersion": reg.AppVersion,
	}); field != "" {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeUnsafeInput,
			"field "+field+" contains disallowed content"))
		return
	}

	rec, err := s.tokens.Register(c.Request.Context(), reg)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeTokenValidation,
			"token rejected", http.StatusUnprocessableEntity))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"token":   rec,
	})
}

// GetPushTokens handles GET /push-token?userId: list a user's registered
// tokens. The token value itself is withheld by the document's JSON shape.
func (s *Server) GetPushTokens(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		_ = c.Error(apperrors.ErrValidationf("userId query parameter is required"))
		return
	}

	records, err := s.tokens.ListForUser(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(apperrors.ErrAPI(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tokens":  records,
		"count":   len(records),
	})
}

// DeletePushToken handles DELETE /push-token?tokenId|token|userId and
// deactivates all matching tokens.
func (s *Server) DeletePushToken(c *gin.Context) {
	filter := token.DeactivateFilter{
		TokenID: c.Query("tokenId"),
		Token:   c.Query("token"),
		UserID:  c.Query("userId"),
	}
	if filter.TokenID == "" && filter.Token == "" && filter.UserID == "" {
		_ = c.Error(apperrors.ErrValidationf("one of tokenId, token or userId is required"))
		return
	}

	deactivated, err := s.tokens.Deactivate(c.Request.Context(), filter, "deactivated by "+actorFromCtx(c))
	if err != nil {
		_ = c.Error(apperrors.ErrAPI(err))
		return
	}
	if deactivated == 0 {
		_ = c.Error(apperrors.NotFound(apperrors.CodePushTokenNotFound, "no matching tokens"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"deactivated": deactivated,
	})
}
