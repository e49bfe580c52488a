// Package activity posts domain events to the external activity-log sink.
// Delivery is fire-and-forget: failures are logged, never surfaced to the
// mutation that triggered them.
package activity

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/domain"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/pkg/worker"
)

// Sink posts activity events over HTTP through the worker pool.
type Sink struct {
	url    string
	client *http.Client
	pools  *worker.Pools
}

// NewSink creates an activity sink. An empty url disables posting entirely.
func NewSink(url string, timeout time.Duration, pools *worker.Pools) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		pools:  pools,
	}
}

// Enabled reports whether a sink URL is configured.
func (s *Sink) Enabled() bool {
	return s.url != ""
}

// Record submits the event for background delivery and returns immediately.
func (s *Sink) Record(event domain.ActivityEvent) {
	if !s.Enabled() {
		return
	}

	payload, err := event.ToJSON()
	if err != nil {
		logger.Warn("activity event not serializable",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
		return
	}

	err = s.pools.SubmitDetached("general", func(ctx context.Context) {
		s.post(ctx, event.EventID, payload)
	})
	if err != nil {
		logger.Warn("activity post not scheduled",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func (s *Sink) post(ctx context.Context, eventID string, payload []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		logger.Warn("activity post request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn("activity post failed",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn("activity sink rejected event",
			zap.String("event_id", eventID),
			zap.Int("status", resp.StatusCode),
		)
	}
}
