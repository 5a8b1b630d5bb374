package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/temporal"
)

// parseSSEEvents extracts the JSON payloads from an SSE response body.
func parseSSEEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event sseEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestStreamProgress_TerminalJob(t *testing.T) {
	job := newTestJob("user-1", domain.JobStatusFinished)
	job.ProgressPercent = 100
	job.Counters = domain.Counters{Found: 10, Downloaded: 9, Extracted: 9, Summarized: 8}

	jobRepo := &fakeJobRepo{getByTrackingFn: trackingLookup(job)}
	srv := newTestServer(&fakeWorkflowClient{}, jobRepo, &fakePaperRepo{})

	rr := serveHTTP(srv, newAPIRequest(http.MethodGet, "/api/v1/reviews/"+job.TrackingID.String()+"/progress", "user-1", ""))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	events := parseSSEEvents(t, rr.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "completed", events[0].EventType)
	assert.Equal(t, "finished", events[0].Status)
	assert.Equal(t, job.TrackingID.String(), events[0].JobID)
	require.NotNil(t, events[0].Progress)
	assert.InDelta(t, 100, events[0].Progress.Percent, 0.001)
	assert.Equal(t, 8, events[0].Progress.Summarized)
}

func TestStreamProgress_UnknownJob(t *testing.T) {
	srv := newTestServer(&fakeWorkflowClient{}, &fakeJobRepo{}, &fakePaperRepo{})

	rr := serveHTTP(srv, newAPIRequest(http.MethodGet, "/api/v1/reviews/"+newTestJob("user-1", domain.JobStatusPending).TrackingID.String()+"/progress", "user-1", ""))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildJobEvent(t *testing.T) {
	srv := newTestServer(&fakeWorkflowClient{}, &fakeJobRepo{}, &fakePaperRepo{})

	job := newTestJob("user-1", domain.JobStatusRunning)
	event := srv.buildJobEvent("progress_update", job, "status: running")

	assert.Equal(t, "progress_update", event.EventType)
	assert.Equal(t, job.TrackingID.String(), event.JobID)
	assert.Equal(t, "running", event.Status)
	assert.Equal(t, "downloading", event.Stage)
	require.NotNil(t, event.Progress)
	assert.Equal(t, 4, event.Progress.Downloaded)
	assert.False(t, event.Timestamp.IsZero())
}

func TestOverlayWorkflowProgress(t *testing.T) {
	t.Run("adopts fresher workflow percent", func(t *testing.T) {
		wf := &fakeWorkflowClient{
			queryFn: func(_ context.Context, workflowID, runID, queryType string, result interface{}) error {
				assert.Equal(t, temporal.QueryProgress, queryType)
				raw := `{"percent": 40}`
				return json.Unmarshal([]byte(raw), result)
			},
		}
		srv := newTestServer(wf, &fakeJobRepo{}, &fakePaperRepo{})

		job := newTestJob("user-1", domain.JobStatusRunning)
		progress := buildProgressData(job)
		srv.overlayWorkflowProgress(context.Background(), job, progress)

		assert.InDelta(t, 40, progress.Percent, 0.001)
	})

	t.Run("keeps persisted percent when query fails", func(t *testing.T) {
		wf := &fakeWorkflowClient{
			queryFn: func(context.Context, string, string, string, interface{}) error {
				return errors.New("workflow not found")
			},
		}
		srv := newTestServer(wf, &fakeJobRepo{}, &fakePaperRepo{})

		job := newTestJob("user-1", domain.JobStatusRunning)
		progress := buildProgressData(job)
		srv.overlayWorkflowProgress(context.Background(), job, progress)

		assert.InDelta(t, 15, progress.Percent, 0.001)
	})

	t.Run("keeps persisted percent when workflow trails the checkpoint", func(t *testing.T) {
		wf := &fakeWorkflowClient{
			queryFn: func(_ context.Context, _, _, _ string, result interface{}) error {
				return json.Unmarshal([]byte(`{"percent": 5}`), result)
			},
		}
		srv := newTestServer(wf, &fakeJobRepo{}, &fakePaperRepo{})

		job := newTestJob("user-1", domain.JobStatusRunning)
		progress := buildProgressData(job)
		srv.overlayWorkflowProgress(context.Background(), job, progress)

		assert.InDelta(t, 15, progress.Percent, 0.001)
	})

	t.Run("skips non-running jobs", func(t *testing.T) {
		queried := false
		wf := &fakeWorkflowClient{
			queryFn: func(context.Context, string, string, string, interface{}) error {
				queried = true
				return nil
			},
		}
		srv := newTestServer(wf, &fakeJobRepo{}, &fakePaperRepo{})

		job := newTestJob("user-1", domain.JobStatusPending)
		srv.overlayWorkflowProgress(context.Background(), job, buildProgressData(job))

		assert.False(t, queried)
	})
}
