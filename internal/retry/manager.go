package retry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/composer"
	"sitefoundry.io/foreman/internal/dispatch"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/pkg/worker"
)

// defaultDestination keys the circuit breaker when a batch has no tenant id.
const defaultDestination = "push-gateway"

// FailedNotification is one queued redelivery unit.
type FailedNotification struct {
	ID          string            `json:"id"`
	Destination string            `json:"destination"`
	UserIDs     []string          `json:"userIds"`
	Content     composer.Content  `json:"content"`
	Opts        *dispatch.Options `json:"-"`
	LastError   string            `json:"lastError"`
	Attempt     int               `json:"attempt"`
	NextRetryAt time.Time         `json:"nextRetryAt"`
	CreatedAt   time.Time         `json:"createdAt"`

	lastDelay time.Duration
}

// Sender delivers a queued batch. Implemented by the dispatcher.
type Sender interface {
	SendToUsers(ctx context.Context, userIDs []string, content composer.Content, opts *dispatch.Options) dispatch.Result
}

// Config tunes backoff, attempt limits and the circuit breaker.
type Config struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	Jitter           JitterStrategy
	BreakerThreshold uint32
	BreakerReset     time.Duration
	QueueInterval    time.Duration
}

// DefaultConfig mirrors the production configuration defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		BaseDelay:        2 * time.Second,
		MaxDelay:         5 * time.Minute,
		Jitter:           JitterEqual,
		BreakerThreshold: 5,
		BreakerReset:     time.Minute,
		QueueInterval:    30 * time.Second,
	}
}

// ProcessSummary reports one queue drain.
type ProcessSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Requeued  int `json:"requeued"`
	Dropped   int `json:"dropped"`
	Skipped   int `json:"skipped"`
}

// ItemStatus is the operator-facing view of one queued item.
type ItemStatus struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Recipients  int       `json:"recipients"`
	Attempt     int       `json:"attempt"`
	LastError   string    `json:"lastError"`
	NextRetryAt time.Time `json:"nextRetryAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Status is the full queue snapshot for the operator endpoint.
type Status struct {
	QueueSize int               `json:"queueSize"`
	Items     []ItemStatus      `json:"items"`
	Breakers  map[string]string `json:"breakers"`
	Config    Config            `json:"config"`
}

// Manager owns the in-memory retry queue. Constructor-injected, one per
// process; the queue does not survive restarts.
type Manager struct {
	sender Sender
	pools  *worker.Pools

	mu       sync.Mutex
	queue    map[string]*FailedNotification
	backoff  Backoff
	cfg      Config
	breakers map[string]*gobreaker.CircuitBreaker

	stopOnce sync.Once
	stop     chan struct{}

	now func() time.Time
}

// NewManager creates a retry manager. Call Start to enable the periodic drain.
func NewManager(sender Sender, pools *worker.Pools, cfg Config) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		sender:   sender,
		pools:    pools,
		queue:    make(map[string]*FailedNotification),
		backoff:  NewBackoff(cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter),
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Enqueue schedules a failed batch for redelivery and returns its queue id.
func (m *Manager) Enqueue(destination string, userIDs []string, content composer.Content, opts *dispatch.Options, cause string) *FailedNotification {
	if destination == "" {
		destination = defaultDestination
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delay := m.backoff.Delay(1, 0)
	item := &FailedNotification{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Destination: destination,
		UserIDs:     userIDs,
		Content:     content,
		Opts:        opts,
		LastError:   cause,
		Attempt:     0,
		NextRetryAt: m.now().Add(delay),
		CreatedAt:   m.now(),
		lastDelay:   delay,
	}
	m.queue[item.ID] = item

	logger.Info("notification queued for retry",
		zap.String("retry_id", item.ID),
		zap.String("destination", destination),
		zap.Int("recipients", len(userIDs)),
		zap.Duration("first_delay", delay),
	)
	return item
}

// ProcessQueue attempts every due item once. Items whose destination breaker
// is open are skipped without consuming an attempt.
func (m *Manager) ProcessQueue(ctx context.Context) ProcessSummary {
	due := m.takeDue(m.now())

	var summary ProcessSummary
	for _, item := range due {
		summary.Processed++
		m.attempt(ctx, item, &summary)
	}
	if summary.Processed > 0 {
		logger.Info("retry queue drained",
			zap.Int("processed", summary.Processed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("requeued", summary.Requeued),
			zap.Int("dropped", summary.Dropped),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary
}

// ForceRetry immediately attempts one item regardless of its schedule.
func (m *Manager) ForceRetry(ctx context.Context, id string) (ProcessSummary, error) {
	m.mu.Lock()
	item, ok := m.queue[id]
	if ok {
		delete(m.queue, id)
	}
	m.mu.Unlock()
	if !ok {
		return ProcessSummary{}, fmt.Errorf("retry %s not found", id)
	}

	summary := ProcessSummary{Processed: 1}
	m.attempt(ctx, item, &summary)
	return summary, nil
}

// ClearRetries removes one item from the queue.
func (m *Manager) ClearRetries(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[id]; !ok {
		return false
	}
	delete(m.queue, id)
	return true
}

// ClearAll empties the queue and returns how many items were dropped.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.queue)
	m.queue = make(map[string]*FailedNotification)
	return n
}

// UpdateConfig applies new backoff and breaker settings. Existing breakers
// are discarded so new thresholds take effect; queued items keep their
// current schedule.
func (m *Manager) UpdateConfig(cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		return errors.New("maxAttempts must be positive")
	}
	switch cfg.Jitter {
	case JitterNone, JitterFull, JitterEqual, JitterDecorrelated:
	default:
		return fmt.Errorf("unknown jitter strategy %q", cfg.Jitter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.backoff = NewBackoff(cfg.BaseDelay, cfg.MaxDelay, cfg.Jitter)
	m.breakers = make(map[string]*gobreaker.CircuitBreaker)
	return nil
}

// Status snapshots the queue for the operator endpoint. A non-empty id
// filters to that single item.
func (m *Manager) Status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		QueueSize: len(m.queue),
		Breakers:  make(map[string]string, len(m.breakers)),
		Config:    m.cfg,
	}
	for dest, cb := range m.breakers {
		status.Breakers[dest] = cb.State().String()
	}
	for _, item := range m.queue {
		if id != "" && item.ID != id {
			continue
		}
		status.Items = append(status.Items, ItemStatus{
			ID:          item.ID,
			Destination: item.Destination,
			Recipients:  len(item.UserIDs),
			Attempt:     item.Attempt,
			LastError:   item.LastError,
			NextRetryAt: item.NextRetryAt,
			CreatedAt:   item.CreatedAt,
		})
	}
	sort.Slice(status.Items, func(i, j int) bool {
		return status.Items[i].NextRetryAt.Before(status.Items[j].NextRetryAt)
	})
	return status
}

// Start launches the periodic queue drain on the worker pool. Safe to call
// once; Stop or pool shutdown ends the loop.
func (m *Manager) Start() error {
	return m.pools.SubmitDetached("delivery", func(ctx context.Context) {
		ticker := time.NewTicker(m.cfg.QueueInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.ProcessQueue(ctx)
			}
		}
	})
}

// Stop ends the periodic drain. Queued items stay until the process exits.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// takeDue removes and returns all items whose schedule has elapsed.
func (m *Manager) takeDue(now time.Time) []*FailedNotification {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*FailedNotification
	for id, item := range m.queue {
		if !item.NextRetryAt.After(now) {
			due = append(due, item)
			delete(m.queue, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	return due
}

// attempt runs one delivery attempt through the destination's breaker and
// either drops, finishes, or requeues the item.
func (m *Manager) attempt(ctx context.Context, item *FailedNotification, summary *ProcessSummary) {
	cb := m.breakerFor(item.Destination)

	_, err := cb.Execute(func() (interface{}, error) {
		res := m.sender.SendToUsers(ctx, item.UserIDs, item.Content, item.Opts)
		if !res.Success {
			return nil, fmt.Errorf("redelivery failed: %d errors", len(res.Errors))
		}
		return res, nil
	})

	if err == nil {
		summary.Succeeded++
		logger.Info("retry succeeded",
			zap.String("retry_id", item.ID),
			zap.Int("attempt", item.Attempt+1),
		)
		return
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Short-circuited: requeue without consuming an attempt.
		summary.Skipped++
		m.requeue(item, item.Attempt, err)
		return
	}

	nextAttempt := item.Attempt + 1
	if nextAttempt >= m.cfg.MaxAttempts {
		summary.Dropped++
		logger.Warn("retry exhausted, dropping notification",
			zap.String("retry_id", item.ID),
			zap.String("destination", item.Destination),
			zap.Int("attempts", nextAttempt),
			zap.Error(err),
		)
		return
	}

	summary.Requeued++
	m.requeue(item, nextAttempt, err)
}

func (m *Manager) requeue(item *FailedNotification, attempt int, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delay := m.backoff.Delay(attempt+1, item.lastDelay)
	item.Attempt = attempt
	item.LastError = cause.Error()
	item.NextRetryAt = m.now().Add(delay)
	item.lastDelay = delay
	m.queue[item.ID] = item
}

func (m *Manager) breakerFor(destination string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[destination]; ok {
		return cb
	}
	threshold := m.cfg.BreakerThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    destination,
		Timeout: m.cfg.BreakerReset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("destination", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	m.breakers[destination] = cb
	return cb
}
