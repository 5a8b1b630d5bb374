package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/events"
	"github.com/helixir/review-generation-service/internal/observability"
)

// EventActivities provides the Temporal activity for publishing job
// lifecycle events to Kafka. The workflow invokes it fire-and-forget: a
// publish failure surfaces in metrics and logs but never fails a job.
type EventActivities struct {
	publisher events.Publisher
	metrics   *observability.Metrics
}

// NewEventActivities creates a new EventActivities with the given publisher.
// The metrics parameter may be nil (metrics recording will be skipped).
func NewEventActivities(publisher events.Publisher, metrics *observability.Metrics) *EventActivities {
	return &EventActivities{
		publisher: publisher,
		metrics:   metrics,
	}
}

// PublishEvent publishes one job lifecycle event.
func (a *EventActivities) PublishEvent(ctx context.Context, input PublishEventInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("publishing job event",
		"eventType", input.EventType,
		"jobID", input.JobID,
	)

	err := a.publisher.Publish(ctx, domain.JobEvent{
		EventType:  input.EventType,
		JobID:      input.JobID,
		TrackingID: input.TrackingID,
		UserID:     input.UserID,
		Topic:      input.Topic,
		Payload:    input.Payload,
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.EventsFailed.Inc()
		}
		return fmt.Errorf("publish event %s: %w", input.EventType, err)
	}

	if a.metrics != nil {
		a.metrics.EventsPublished.WithLabelValues(input.EventType).Inc()
	}
	return nil
}
