// Package maintenance runs the periodic token upkeep job: stale-token
// cleanup, health score refresh, and usage analytics.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/pkg/errors"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/pkg/worker"
	"sitefoundry.io/foreman/internal/token"
)

// JobType selects which phases a run executes.
type JobType string

const (
	JobFull      JobType = "full"
	JobCleanup   JobType = "cleanup"
	JobHealth    JobType = "health"
	JobAnalytics JobType = "analytics"
)

// ValidJobType reports whether the operator-supplied job type is known.
func ValidJobType(t JobType) bool {
	switch t {
	case JobFull, JobCleanup, JobHealth, JobAnalytics:
		return true
	}
	return false
}

// PhaseResult records one phase of a run. Phases are isolated: a failed
// phase records its error and the job moves on.
type PhaseResult struct {
	Name     string                 `json:"name"`
	Success  bool                   `json:"success"`
	Error    string                 `json:"error,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Duration time.Duration          `json:"durationMs"`
}

// JobRecord is one completed run, kept in the bounded history.
type JobRecord struct {
	ID         string        `json:"id"`
	Type       JobType       `json:"type"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Phases     []PhaseResult `json:"phases"`
	Success    bool          `json:"success"`
}

// Config tunes the scheduler.
type Config struct {
	Interval       time.Duration
	TokenMaxAge    time.Duration
	DeleteInactive time.Duration
	HistorySize    int
}

// Status is the operator view of the scheduler.
type Status struct {
	Running  bool        `json:"running"`
	Interval string      `json:"interval"`
	LastRun  *JobRecord  `json:"lastRun,omitempty"`
	History  []JobRecord `json:"history"`
}

// Scheduler owns the maintenance job. Exactly one run at a time per process;
// there is no cross-process lock, so horizontally scaled deployments may run
// duplicate maintenance.
type Scheduler struct {
	repo      token.Repository
	validator *token.Validator
	pools     *worker.Pools
	cfg       Config

	running atomic.Bool

	mu      sync.Mutex
	history []JobRecord

	stopOnce sync.Once
	stop     chan struct{}

	now func() time.Time
}

// NewScheduler creates a maintenance scheduler. Call Start for periodic runs.
func NewScheduler(repo token.Repository, validator *token.Validator, pools *worker.Pools, cfg Config) *Scheduler {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 20
	}
	return &Scheduler{
		repo:      repo,
		validator: validator,
		pools:     pools,
		cfg:       cfg,
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

// Run executes the requested job. Returns CodeJobAlreadyRunning if a run is
// already in flight.
func (s *Scheduler) Run(ctx context.Context, jobType JobType) (JobRecord, error) {
	if !ValidJobType(jobType) {
		return JobRecord{}, errors.ErrValidationf("unknown maintenance job type %q", jobType)
	}
	if !s.running.CompareAndSwap(false, true) {
		return JobRecord{}, errors.New(errors.CodeJobAlreadyRunning, "maintenance job already in progress", 409)
	}
	defer s.running.Store(false)

	record := JobRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      jobType,
		StartedAt: s.now(),
	}

	if jobType == JobFull || jobType == JobCleanup {
		record.Phases = append(record.Phases, s.runPhase(ctx, "cleanup", s.cleanup))
	}
	if jobType == JobFull || jobType == JobHealth {
		record.Phases = append(record.Phases, s.runPhase(ctx, "health", s.refreshHealth))
	}
	if jobType == JobFull || jobType == JobAnalytics {
		record.Phases = append(record.Phases, s.runPhase(ctx, "analytics", s.analytics))
	}

	record.FinishedAt = s.now()
	record.Success = true
	for _, phase := range record.Phases {
		if !phase.Success {
			record.Success = false
		}
	}

	s.appendHistory(record)
	logger.Info("maintenance job finished",
		zap.String("job_id", record.ID),
		zap.String("type", string(jobType)),
		zap.Bool("success", record.Success),
		zap.Duration("duration", record.FinishedAt.Sub(record.StartedAt)),
	)
	return record, nil
}

// Status reports the current scheduler state and bounded run history.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:  s.running.Load(),
		Interval: s.cfg.Interval.String(),
		History:  append([]JobRecord(nil), s.history...),
	}
	if len(s.history) > 0 {
		last := s.history[len(s.history)-1]
		status.LastRun = &last
	}
	return status
}

// Start launches the periodic full run on the worker pool.
func (s *Scheduler) Start() error {
	return s.pools.SubmitDetached("general", func(ctx context.Context) {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.Run(ctx, JobFull); err != nil {
					logger.Warn("scheduled maintenance run skipped", zap.Error(err))
				}
			}
		}
	})
}

// Stop ends the periodic runs.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) runPhase(ctx context.Context, name string, phase func(context.Context) (map[string]interface{}, error)) PhaseResult {
	start := s.now()
	details, err := phase(ctx)
	result := PhaseResult{
		Name:     name,
		Success:  err == nil,
		Details:  details,
		Duration: s.now().Sub(start),
	}
	if err != nil {
		result.Error = err.Error()
		logger.Error("maintenance phase failed",
			zap.String("phase", name),
			zap.Error(err),
		)
	}
	return result
}

// cleanup deactivates long-unused tokens and hard-deletes tokens that have
// already been inactive past the longer threshold.
func (s *Scheduler) cleanup(ctx context.Context) (map[string]interface{}, error) {
	now := s.now()

	deactivated, err := s.repo.DeactivateUnusedSince(ctx, now.Add(-s.cfg.TokenMaxAge), "unused past max age")
	if err != nil {
		return nil, fmt.Errorf("deactivate stale tokens: %w", err)
	}

	deleted, err := s.repo.DeleteInactiveSince(ctx, now.Add(-s.cfg.DeleteInactive))
	if err != nil {
		return map[string]interface{}{"deactivated": deactivated}, fmt.Errorf("delete inactive tokens: %w", err)
	}

	return map[string]interface{}{
		"deactivated": deactivated,
		"deleted":     deleted,
	}, nil
}

// refreshHealth recomputes the health score of every active token.
func (s *Scheduler) refreshHealth(ctx context.Context) (map[string]interface{}, error) {
	records, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active tokens: %w", err)
	}

	now := s.now()
	updated, failed := 0, 0
	for _, rec := range records {
		score := s.validator.HealthScore(rec, now)
		if score == rec.HealthScore {
			continue
		}
		if err := s.repo.UpdateHealthScore(ctx, rec.Token, score); err != nil {
			failed++
			continue
		}
		updated++
	}

	return map[string]interface{}{
		"scanned": len(records),
		"updated": updated,
		"failed":  failed,
	}, nil
}

// analytics aggregates token counts by platform, user type and age bucket,
// plus a recent-usage trend.
func (s *Scheduler) analytics(ctx context.Context) (map[string]interface{}, error) {
	records, err := s.repo.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token records: %w", err)
	}

	now := s.now()
	byPlatform := map[string]int{}
	byUserType := map[string]int{}
	byAge := map[string]int{}
	active, usedLast7d := 0, 0

	for _, rec := range records {
		byPlatform[string(rec.Platform)]++
		byUserType[string(rec.UserType)]++
		byAge[ageBucket(now.Sub(rec.CreatedAt))]++
		if rec.IsActive {
			active++
		}
		if now.Sub(rec.LastUsed) <= 7*24*time.Hour {
			usedLast7d++
		}
	}

	return map[string]interface{}{
		"total":      len(records),
		"active":     active,
		"byPlatform": byPlatform,
		"byUserType": byUserType,
		"byAge":      byAge,
		"usedLast7d": usedLast7d,
	}, nil
}

func ageBucket(age time.Duration) string {
	switch {
	case age <= 7*24*time.Hour:
		return "week"
	case age <= 30*24*time.Hour:
		return "month"
	case age <= 90*24*time.Hour:
		return "quarter"
	default:
		return "older"
	}
}

func (s *Scheduler) appendHistory(record JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, record)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}
