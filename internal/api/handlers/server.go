// Package handlers implements the notification pipeline's HTTP surfaces:
// recipient resolution, push token registration, retry control and
// maintenance triggering.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"sitefoundry.io/foreman/internal/api/middleware"
	"sitefoundry.io/foreman/internal/maintenance"
	"sitefoundry.io/foreman/internal/notify"
	"sitefoundry.io/foreman/internal/resolver"
	"sitefoundry.io/foreman/internal/retry"
	"sitefoundry.io/foreman/internal/token"
)

// Pinger is the readiness probe surface of the document store client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// Server implements all API handlers.
type Server struct {
	tokens      *token.Gateway
	resolver    *resolver.Resolver
	retries     *retry.Manager
	maintenance *maintenance.Scheduler
	notifier    *notify.Notifier
	db          Pinger
	jwtCfg      middleware.JWTConfig
	cronSecret  string
}

// ServerDeps holds all dependencies for creating a Server. Manual DI.
type ServerDeps struct {
	Tokens      *token.Gateway
	Resolver    *resolver.Resolver
	Retries     *retry.Manager
	Maintenance *maintenance.Scheduler
	Notifier    *notify.Notifier
	DB          Pinger
	JWTCfg      middleware.JWTConfig
	CronSecret  string
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		tokens:      deps.Tokens,
		resolver:    deps.Resolver,
		retries:     deps.Retries,
		maintenance: deps.Maintenance,
		notifier:    deps.Notifier,
		db:          deps.DB,
		jwtCfg:      deps.JWTCfg,
		cronSecret:  deps.CronSecret,
	}
}

// actorFromCtx extracts the authenticated user ID from the request context.
func actorFromCtx(c *gin.Context) string {
	if uid := c.GetString("user_id"); uid != "" {
		return uid
	}
	return "anonymous"
}
