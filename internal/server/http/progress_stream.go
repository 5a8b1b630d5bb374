package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/temporal"
)

const (
	// sseQueryInterval is how often we poll the job store for authoritative state.
	sseQueryInterval = 2 * time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string            `json:"event_type"`
	JobID     string            `json:"job_id"`
	Status    string            `json:"status"`
	Stage     string            `json:"stage,omitempty"`
	Progress  *progressResponse `json:"progress,omitempty"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// streamProgress handles GET /reviews/{jobID}/progress (SSE).
// The job store is the authoritative source; while the job is running the
// workflow is also queried for a fresher in-memory progress snapshot.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadUserJob(w, r)
	if !ok {
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// If already terminal, send one event and close.
	if job.Status.IsTerminal() {
		sendSSEEvent(w, flusher, s.buildJobEvent("completed", job, "review is in terminal state"))
		return
	}

	sendSSEEvent(w, flusher, s.buildJobEvent("stream_started", job, "progress stream started"))

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	ticker := time.NewTicker(sseQueryInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadlineTimer.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				JobID:     job.TrackingID.String(),
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			current, pollErr := s.jobRepo.Get(ctx, job.ID)
			if pollErr != nil {
				s.logger.Error().Err(pollErr).Str("job_id", job.ID.String()).Msg("failed to poll job status")
				continue
			}

			if current.Status.IsTerminal() {
				sendSSEEvent(w, flusher, s.buildJobEvent("completed", current,
					"review completed with status: "+string(current.Status)))
				return
			}

			event := s.buildJobEvent("progress_update", current, "status: "+string(current.Status))
			s.overlayWorkflowProgress(ctx, current, event.Progress)
			sendSSEEvent(w, flusher, event)
		}
	}
}

// buildJobEvent assembles an SSE event from the persisted job state.
func (s *Server) buildJobEvent(eventType string, job *domain.ReviewJob, message string) sseEvent {
	event := sseEvent{
		EventType: eventType,
		JobID:     job.TrackingID.String(),
		Status:    string(job.Status),
		Progress:  buildProgressData(job),
		Message:   message,
		Timestamp: time.Now(),
	}
	if job.CurrentStage != nil {
		event.Stage = string(*job.CurrentStage)
	}
	return event
}

// overlayWorkflowProgress refreshes the persisted percent with the workflow's
// in-memory snapshot. Best-effort: the persisted state already trails reality
// by at most one checkpoint, so query failures are ignored.
func (s *Server) overlayWorkflowProgress(ctx context.Context, job *domain.ReviewJob, progress *progressResponse) {
	if job.Status != domain.JobStatusRunning || job.WorkflowID == "" {
		return
	}

	var snapshot struct {
		Percent float64 `json:"percent"`
	}
	if err := s.workflowClient.QueryWorkflow(ctx, job.WorkflowID, job.RunID, temporal.QueryProgress, &snapshot); err != nil {
		return
	}
	if snapshot.Percent > progress.Percent {
		progress.Percent = snapshot.Percent
	}
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
