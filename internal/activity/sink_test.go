package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sitefoundry.io/foreman/internal/domain"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/pkg/worker"
)

func newTestPools(t *testing.T) *worker.Pools {
	t.Helper()
	_ = logger.Init("error", "console")
	pools, err := worker.NewPools(context.Background(), worker.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	t.Cleanup(pools.Shutdown)
	return pools
}

func TestRecordPostsEventInBackground(t *testing.T) {
	received := make(chan domain.ActivityEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event domain.ActivityEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decode event: %v", err)
		}
		received <- event
	}))
	defer srv.Close()

	sink := NewSink(srv.URL, time.Second, newTestPools(t))
	sink.Record(domain.ActivityEvent{
		EventID:  "ev-7",
		Category: domain.CategoryMaterial,
		Action:   domain.ActionUsed,
	})

	select {
	case event := <-received:
		if event.EventID != "ev-7" {
			t.Fatalf("EventID = %q, want ev-7", event.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink never posted the event")
	}
}

func TestRecordDisabledWithoutURL(t *testing.T) {
	sink := NewSink("", time.Second, newTestPools(t))
	if sink.Enabled() {
		t.Fatal("Enabled() = true with empty url")
	}
	// Must be a no-op, not a panic.
	sink.Record(domain.ActivityEvent{EventID: "ev-1"})
}

func TestRecordSurvivesSinkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewSink(srv.URL, time.Second, newTestPools(t))
	// Failure is logged, not raised; nothing to assert beyond no panic.
	sink.Record(domain.ActivityEvent{EventID: "ev-2"})
	time.Sleep(100 * time.Millisecond)
}
