// Package app is the composition root. Bootstrap stays orchestration-only:
// it builds the dependency graph and wires it, nothing else.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"sitefoundry.io/foreman/internal/activity"
	"sitefoundry.io/foreman/internal/api/handlers"
	"sitefoundry.io/foreman/internal/api/middleware"
	"sitefoundry.io/foreman/internal/config"
	"sitefoundry.io/foreman/internal/dispatch"
	"sitefoundry.io/foreman/internal/infrastructure"
	"sitefoundry.io/foreman/internal/maintenance"
	"sitefoundry.io/foreman/internal/notify"
	"sitefoundry.io/foreman/internal/pkg/worker"
	"sitefoundry.io/foreman/internal/resolver"
	"sitefoundry.io/foreman/internal/retry"
	"sitefoundry.io/foreman/internal/token"
)

// Application holds composed application dependencies.
type Application struct {
	Config      *config.Config
	Router      *gin.Engine
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Retries     *retry.Manager
	Maintenance *maintenance.Scheduler
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("init document store: %w", err)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DeliveryPoolSize: cfg.Worker.DeliveryPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	validator := token.NewValidator()
	tokenRepo := token.NewMongoRepository(db.Collection(infrastructure.CollPushTokens))
	tokens := token.NewGateway(tokenRepo, validator)

	directory := resolver.NewMongoDirectory(
		db.Collection(infrastructure.CollAdmins),
		db.Collection(infrastructure.CollStaffs),
		db.Collection(infrastructure.CollProjects),
	)
	recipientResolver := resolver.New(directory, resolver.NewCache(), resolver.Options{
		PrimaryTimeout:   cfg.Resolver.PrimaryTimeout,
		FallbackTimeout:  cfg.Resolver.FallbackTimeout,
		PrimaryCacheTTL:  cfg.Resolver.PrimaryCacheTTL,
		FallbackCacheTTL: cfg.Resolver.FallbackCacheTTL,
	})

	pushGateway := dispatch.NewHTTPGateway(cfg.Push.GatewayURL, cfg.Push.AccessToken, cfg.Push.RequestTimeout)
	dispatcher := dispatch.New(pushGateway, tokens, dispatch.Config{
		BatchSize:  cfg.Push.BatchSize,
		BatchDelay: cfg.Push.BatchDelay,
		Defaults: dispatch.Options{
			Sound:    cfg.Push.DefaultSound,
			Priority: cfg.Push.DefaultPriority,
			TTL:      cfg.Push.DefaultTTL,
		},
	})

	retries := retry.NewManager(dispatcher, pools, retry.Config{
		MaxAttempts:      cfg.Retry.MaxAttempts,
		BaseDelay:        cfg.Retry.BaseDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
		Jitter:           retry.JitterStrategy(cfg.Retry.Jitter),
		BreakerThreshold: cfg.Retry.BreakerThreshold,
		BreakerReset:     cfg.Retry.BreakerReset,
		QueueInterval:    cfg.Retry.QueueInterval,
	})

	scheduler := maintenance.NewScheduler(tokenRepo, validator, pools, maintenance.Config{
		Interval:       cfg.Maintenance.Interval,
		TokenMaxAge:    cfg.Maintenance.TokenMaxAge,
		DeleteInactive: cfg.Maintenance.DeleteInactive,
		HistorySize:    cfg.Maintenance.HistorySize,
	})

	sink := activity.NewSink(cfg.Activity.SinkURL, cfg.Activity.RequestTimeout, pools)
	notifier := notify.New(recipientResolver, dispatcher, retries, sink)

	jwtCfg := middleware.JWTConfig{SigningKey: []byte(cfg.Security.JWTSigningKey)}
	server := handlers.NewServer(handlers.ServerDeps{
		Tokens:      tokens,
		Resolver:    recipientResolver,
		Retries:     retries,
		Maintenance: scheduler,
		Notifier:    notifier,
		DB:          db.Client,
		JWTCfg:      jwtCfg,
		CronSecret:  cfg.Security.CronSecret,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	return &Application{
		Config:      cfg,
		Router:      newRouter(cfg, server, rateLimiter, jwtCfg.SigningKey),
		DB:          db,
		Pools:       pools,
		Retries:     retries,
		Maintenance: scheduler,
	}, nil
}
