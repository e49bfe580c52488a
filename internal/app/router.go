package app

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sitefoundry.io/foreman/internal/api/handlers"
	"sitefoundry.io/foreman/internal/api/middleware"
	"sitefoundry.io/foreman/internal/config"
)

// Public routes that do NOT require JWT authentication. The maintenance
// endpoint carries its own cron-secret check instead of a user JWT.
var publicPrefixes = []string{
	"/api/v1/health/",
	"/api/v1/maintenance",
}

func newRouter(cfg *config.Config, server *handlers.Server, rateLimiter *middleware.RateLimiter, signingKey []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: false,
	}))
	router.Use(jwtSkipPublic(signingKey))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/recipients", server.GetRecipients)
		v1.DELETE("/recipients", server.DeleteRecipients)
		v1.HEAD("/recipients", server.HeadRecipients)

		v1.POST("/push-token", rateLimiter.Middleware(), server.PostPushToken)
		v1.GET("/push-token", server.GetPushTokens)
		v1.DELETE("/push-token", server.DeletePushToken)

		v1.GET("/retry", server.GetRetryStatus)
		v1.POST("/retry", server.PostRetryAction)
		v1.PUT("/retry", server.PutRetryConfig)
		v1.DELETE("/retry", server.DeleteRetries)

		v1.POST("/maintenance", server.PostMaintenance)
		v1.GET("/maintenance", server.GetMaintenance)

		v1.POST("/notifications/dispatch", server.PostDispatch)

		v1.GET("/health/live", server.GetLiveness)
		v1.GET("/health/ready", server.GetReadiness)
	}

	return router
}

// jwtSkipPublic returns middleware that applies JWT auth only on non-public routes.
func jwtSkipPublic(signingKey []byte) gin.HandlerFunc {
	jwtMw := middleware.JWTAuth(signingKey)
	return func(c *gin.Context) {
		for _, prefix := range publicPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}
		jwtMw(c)
	}
}
