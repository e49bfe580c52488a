// Package worker provides goroutine pool management.
//
// Naked goroutines are forbidden in this codebase; all concurrency goes
// through a pool with context propagation.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection.
type Pools struct {
	// General serves short-lived request-scoped tasks (activity log posts,
	// token bookkeeping writes).
	General *Pool

	// Delivery serves push-gateway batch sends and retry processing, which
	// hold an HTTP connection open longer.
	Delivery *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	GeneralPoolSize  int
	DeliveryPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:  100,
		DeliveryPoolSize: 20,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	// Unified panic recovery
	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	deliveryAnts, err := ants.NewPool(cfg.DeliveryPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second), // gateway batches are longer-lived
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Delivery:      &Pool{pool: deliveryAnts, name: "delivery"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task.
// The task receives the caller's context and SHOULD check ctx.Done() at blocking points.
// If context is already cancelled, returns ctx.Err() immediately without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	// Fast path: check if context is already cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.pool.Submit(func() {
		// Check context again inside worker (may have been cancelled while queued)
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
}

// SubmitDetached submits a detached background task.
// Detached tasks use the service lifecycle context instead of a request context.
// Use this for fire-and-forget work (activity log sink, retry queue drains) that
// should survive request cancellation but still respect graceful shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	var pool *Pool
	switch poolName {
	case "delivery":
		pool = p.Delivery
	default:
		pool = p.General
	}

	return pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", poolName),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
}

// Shutdown gracefully shuts down all pools with a timeout.
// Cancels service context first, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Delivery.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Delivery pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		"delivery": map[string]int{
			"running": p.Delivery.pool.Running(),
			"free":    p.Delivery.pool.Free(),
			"cap":     p.Delivery.pool.Cap(),
		},
	}
}
