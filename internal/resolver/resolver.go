package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/domain"
	"sitefoundry.io/foreman/internal/pkg/logger"
)

// Source tells callers which stage produced the recipient set.
type Source string

const (
	SourceCache    Source = "CACHE"
	SourcePrimary  Source = "PRIMARY"
	SourceFallback Source = "FALLBACK"
	SourceNone     Source = "NONE"
)

// Request parameterizes one resolution.
type Request struct {
	ClientID  string
	ProjectID string
	SkipCache bool
}

// Result is the outcome of one resolution request. Stage errors accumulate in
// Errors instead of being raised; a fully failed resolution still returns a
// Result with SourceNone and zero recipients.
type Result struct {
	Source             Source             `json:"source"`
	Recipients         []domain.Recipient `json:"recipients"`
	Errors             []string           `json:"errors,omitempty"`
	RecipientCount     int                `json:"recipientCount"`
	DeduplicationCount int                `json:"deduplicationCount"`
	ResolutionTime     time.Duration      `json:"-"`
}

// Options tunes stage deadlines and cache TTLs.
type Options struct {
	PrimaryTimeout   time.Duration
	FallbackTimeout  time.Duration
	PrimaryCacheTTL  time.Duration
	FallbackCacheTTL time.Duration
}

// DefaultOptions mirror the production configuration defaults.
func DefaultOptions() Options {
	return Options{
		PrimaryTimeout:   5 * time.Second,
		FallbackTimeout:  3 * time.Second,
		PrimaryCacheTTL:  5 * time.Minute,
		FallbackCacheTTL: 2 * time.Minute,
	}
}

// Resolver walks the CACHE_CHECK, PRIMARY, FALLBACK stages in order per request.
type Resolver struct {
	directory Directory
	cache     *Cache
	opts      Options
}

// New creates a resolver.
func New(directory Directory, cache *Cache, opts Options) *Resolver {
	if opts.PrimaryTimeout <= 0 {
		opts = DefaultOptions()
	}
	return &Resolver{directory: directory, cache: cache, opts: opts}
}

// Cache exposes the resolution cache for the admin endpoints.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve determines the recipient set for a tenant and optional project.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	start := time.Now()
	result := Result{Source: SourceNone}

	if !req.SkipCache {
		if recipients, dedup, ok := r.cache.Get(req.ClientID, req.ProjectID); ok {
			result.Source = SourceCache
			result.Recipients = recipients
			result.RecipientCount = len(recipients)
			result.DeduplicationCount = dedup
			result.ResolutionTime = time.Since(start)
			return result
		}
	}

	recipients, dedup, err := r.resolvePrimary(ctx, req.ClientID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		logger.Warn("primary recipient resolution failed",
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
	}

	if err == nil && len(recipients) > 0 {
		r.cache.Set(req.ClientID, req.ProjectID, recipients, dedup, r.opts.PrimaryCacheTTL)
		result.Source = SourcePrimary
		result.Recipients = recipients
		result.RecipientCount = len(recipients)
		result.DeduplicationCount = dedup
		result.ResolutionTime = time.Since(start)
		return result
	}

	// Fallback: project-assigned staff, only when a project id was supplied.
	if req.ProjectID == "" {
		result.ResolutionTime = time.Since(start)
		return result
	}

	fallback, fbErr := r.resolveFallback(ctx, req.ProjectID)
	if fbErr != nil {
		result.Errors = append(result.Errors, fbErr.Error())
		logger.Error("fallback recipient resolution failed",
			zap.String("client_id", req.ClientID),
			zap.String("project_id", req.ProjectID),
			zap.Error(fbErr),
		)
		result.ResolutionTime = time.Since(start)
		return result
	}

	if len(fallback) > 0 {
		r.cache.Set(req.ClientID, req.ProjectID, fallback, 0, r.opts.FallbackCacheTTL)
		result.Source = SourceFallback
		result.Recipients = fallback
		result.RecipientCount = len(fallback)
	}
	result.ResolutionTime = time.Since(start)
	return result
}

// resolvePrimary merges the admin and staff directories for the tenant.
// Admins are processed first, so on a user id collision the admin entry wins;
// collapsed entries are reported as the deduplication count.
func (r *Resolver) resolvePrimary(ctx context.Context, clientID string) ([]domain.Recipient, int, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.opts.PrimaryTimeout)
	defer cancel()

	admins, err := r.directory.AdminsByClient(stageCtx, clientID)
	if err != nil {
		return nil, 0, stageError("primary", err)
	}

	staff, err := r.directory.StaffByClient(stageCtx, clientID)
	if err != nil {
		return nil, 0, stageError("primary", err)
	}

	merged := make(map[string]struct{}, len(admins)+len(staff))
	recipients := make([]domain.Recipient, 0, len(admins)+len(staff))
	dedup := 0
	for _, rec := range append(admins, staff...) {
		if _, exists := merged[rec.UserID]; exists {
			dedup++
			continue
		}
		merged[rec.UserID] = struct{}{}
		if !rec.IsActive {
			continue
		}
		recipients = append(recipients, rec)
	}

	return recipients, dedup, nil
}

func (r *Resolver) resolveFallback(ctx context.Context, projectID string) ([]domain.Recipient, error) {
	stageCtx, cancel := context.WithTimeout(ctx, r.opts.FallbackTimeout)
	defer cancel()

	recipients, err := r.directory.ProjectAssignedStaff(stageCtx, projectID)
	if err != nil {
		return nil, stageError("fallback", err)
	}
	return recipients, nil
}

// stageError tags deadline errors as timeouts so callers can distinguish a
// slow store from a failing one.
func stageError(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s stage timed out: %w", stage, err)
	}
	return fmt.Errorf("%s stage failed: %w", stage, err)
}
