package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "sitefoundry.io/foreman/internal/pkg/errors"
)

// JWTClaims defines custom JWT claims for Foreman accounts.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT signing configuration.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	ExpiresIn  time.Duration
}

// GenerateToken creates a signed JWT for the given account.
func GenerateToken(cfg JWTConfig, userID, userType, clientID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)

	claims := JWTClaims{
		UserID:   userID,
		UserType: userType,
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// JWTAuth returns a Gin middleware that validates Bearer tokens and populates context.
func JWTAuth(signingKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, apperrors.CodeAuthFailed, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, apperrors.CodeAuthFailed, "invalid authorization header format")
			return
		}

		tokenString := parts[1]
		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthorized(c, apperrors.CodeTokenExpired, "token expired")
				return
			}
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid token")
			return
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok || !token.Valid {
			abortUnauthorized(c, apperrors.CodeTokenInvalid, "invalid token claims")
			return
		}

		// Populate context for downstream handlers.
		c.Set("user_id", claims.UserID)
		c.Set("user_type", claims.UserType)
		c.Set("client_id", claims.ClientID)
		c.Request = c.Request.WithContext(
			SetUserContext(c.Request.Context(), claims.UserID, claims.UserType, claims.ClientID),
		)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"code":    code,
		"message": message,
	})
}
