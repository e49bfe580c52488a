// Package notify is the pipeline facade: compose a domain event, resolve its
// recipients, dispatch to their devices, and queue retries on failure.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/activity"
	"sitefoundry.io/foreman/internal/composer"
	"sitefoundry.io/foreman/internal/dispatch"
	"sitefoundry.io/foreman/internal/domain"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/resolver"
	"sitefoundry.io/foreman/internal/retry"
)

// Result summarizes one notification attempt. Logged, never persisted.
type Result struct {
	Success        bool          `json:"success"`
	NotificationID string        `json:"notificationId"`
	RecipientCount int           `json:"recipientCount"`
	DeliveredCount int           `json:"deliveredCount"`
	FailedCount    int           `json:"failedCount"`
	Errors         []string      `json:"errors,omitempty"`
	ProcessingTime time.Duration `json:"-"`
}

// Resolver is the recipient resolution surface the notifier needs.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) resolver.Result
}

// Dispatcher is the delivery surface the notifier needs.
type Dispatcher interface {
	SendToUsers(ctx context.Context, userIDs []string, content composer.Content, opts *dispatch.Options) dispatch.Result
}

// RetryQueue accepts failed batches for redelivery.
type RetryQueue interface {
	Enqueue(destination string, userIDs []string, content composer.Content, opts *dispatch.Options, cause string) *retry.FailedNotification
}

// Notifier wires the pipeline stages together.
type Notifier struct {
	resolver   Resolver
	dispatcher Dispatcher
	retries    RetryQueue
	sink       *activity.Sink
}

// New creates a notifier. The sink may be nil when activity logging is off.
func New(res Resolver, disp Dispatcher, retries RetryQueue, sink *activity.Sink) *Notifier {
	return &Notifier{resolver: res, dispatcher: disp, retries: retries, sink: sink}
}

// Dispatch fans one domain event out to every resolved recipient's devices.
// Failures degrade to a logged result; callers never see an error.
func (n *Notifier) Dispatch(ctx context.Context, event domain.ActivityEvent) Result {
	start := time.Now()
	result := Result{NotificationID: uuid.Must(uuid.NewV7()).String()}

	if n.sink != nil {
		n.sink.Record(event)
	}

	content := composer.Compose(event)

	resolution := n.resolver.Resolve(ctx, resolver.Request{
		ClientID:  event.ClientID,
		ProjectID: event.ProjectID,
	})
	result.Errors = append(result.Errors, resolution.Errors...)
	result.RecipientCount = resolution.RecipientCount

	if resolution.RecipientCount == 0 {
		result.Errors = append(result.Errors, "no recipients resolved")
		result.ProcessingTime = time.Since(start)
		n.logResult(event, result, string(resolution.Source))
		return result
	}

	userIDs := make([]string, 0, len(resolution.Recipients))
	for _, rec := range resolution.Recipients {
		userIDs = append(userIDs, rec.UserID)
	}

	delivery := n.dispatcher.SendToUsers(ctx, userIDs, content, nil)
	result.Success = delivery.Success
	result.DeliveredCount = delivery.MessagesSent
	result.FailedCount = len(delivery.Errors)
	result.Errors = append(result.Errors, delivery.Errors...)

	// A fully failed send is requeued as one unit. Partial failures are not:
	// re-sending the whole batch would duplicate delivered notifications.
	if !delivery.Success && n.retries != nil {
		cause := "delivery failed"
		if len(delivery.Errors) > 0 {
			cause = delivery.Errors[0]
		}
		item := n.retries.Enqueue(event.ClientID, userIDs, content, nil, cause)
		logger.Info("notification queued for retry",
			zap.String("notification_id", result.NotificationID),
			zap.String("retry_id", item.ID),
		)
	}

	result.ProcessingTime = time.Since(start)
	n.logResult(event, result, string(resolution.Source))
	return result
}

// OnMaterialsUsed notifies a tenant that materials were consumed on a project.
func (n *Notifier) OnMaterialsUsed(ctx context.Context, clientID, projectID, actorName, materialName string, quantity float64, unit string) Result {
	return n.Dispatch(ctx, newEvent(domain.ActivityEvent{
		Category:   domain.CategoryMaterial,
		Action:     domain.ActionUsed,
		ActorName:  actorName,
		TargetName: materialName,
		ClientID:   clientID,
		ProjectID:  projectID,
		Quantity:   quantity,
		Unit:       unit,
	}))
}

// OnStaffAssigned notifies a tenant that a staff member joined a project.
func (n *Notifier) OnStaffAssigned(ctx context.Context, clientID, projectID, actorName, staffName string) Result {
	return n.Dispatch(ctx, newEvent(domain.ActivityEvent{
		Category:   domain.CategoryStaff,
		Action:     domain.ActionAssigned,
		ActorName:  actorName,
		TargetName: staffName,
		ClientID:   clientID,
		ProjectID:  projectID,
	}))
}

// OnProjectCompleted notifies a tenant that a project reached completion.
func (n *Notifier) OnProjectCompleted(ctx context.Context, clientID, projectID, actorName, projectName string) Result {
	return n.Dispatch(ctx, newEvent(domain.ActivityEvent{
		Category:   domain.CategoryProject,
		Action:     domain.ActionCompleted,
		ActorName:  actorName,
		TargetName: projectName,
		ClientID:   clientID,
		ProjectID:  projectID,
	}))
}

// OnActivityLogged fans out an arbitrary activity event, for callers that
// build the event themselves. A missing EventID or CreatedAt is filled in.
func (n *Notifier) OnActivityLogged(ctx context.Context, event domain.ActivityEvent) Result {
	if event.EventID == "" {
		event.EventID = uuid.Must(uuid.NewV7()).String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return n.Dispatch(ctx, event)
}

func newEvent(event domain.ActivityEvent) domain.ActivityEvent {
	event.EventID = uuid.Must(uuid.NewV7()).String()
	event.CreatedAt = time.Now().UTC()
	return event
}

func (n *Notifier) logResult(event domain.ActivityEvent, result Result, source string) {
	logger.Info("notification processed",
		zap.String("notification_id", result.NotificationID),
		zap.String("category", string(event.Category)),
		zap.String("action", string(event.Action)),
		zap.String("client_id", event.ClientID),
		zap.String("source", source),
		zap.Bool("success", result.Success),
		zap.Int("recipients", result.RecipientCount),
		zap.Int("delivered", result.DeliveredCount),
		zap.Int("failed", result.FailedCount),
		zap.Duration("processing_time", result.ProcessingTime),
	)
}
