package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key-1234567890123456")

func authRouter(key []byte) (*gin.Engine, *JWTClaims) {
	captured := &JWTClaims{}
	router := gin.New()
	router.Use(JWTAuth(key))
	router.GET("/me", func(c *gin.Context) {
		captured.UserID = GetUserID(c.Request.Context())
		captured.UserType = GetUserType(c.Request.Context())
		captured.ClientID = GetClientID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router, captured
}

func TestJWTAuth_ValidToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "foreman", ExpiresIn: time.Hour}
	token, _, err := GenerateToken(cfg, "u-1", "staff", "c-9")
	require.NoError(t, err)

	router, captured := authRouter(testSigningKey)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", captured.UserID)
	assert.Equal(t, "staff", captured.UserType)
	assert.Equal(t, "c-9", captured.ClientID)
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	router, _ := authRouter(testSigningKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_WrongKey(t *testing.T) {
	cfg := JWTConfig{SigningKey: []byte("another-signing-key-9876543210987654"), Issuer: "foreman", ExpiresIn: time.Hour}
	token, _, err := GenerateToken(cfg, "u-1", "staff", "c-9")
	require.NoError(t, err)

	router, _ := authRouter(testSigningKey)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "foreman", ExpiresIn: -time.Minute}
	token, _, err := GenerateToken(cfg, "u-1", "staff", "c-9")
	require.NoError(t, err)

	router, _ := authRouter(testSigningKey)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_EXPIRED")
}

func TestJWTAuth_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	router, _ := authRouter(testSigningKey)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
