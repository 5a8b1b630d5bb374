package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-generation-service/internal/domain"
)

func TestListReviewPapers(t *testing.T) {
	job := newTestJob("user-1", domain.JobStatusRunning)
	year := 2023

	papers := []*domain.Paper{
		{
			ID:         uuid.New(),
			OpenAlexID: "W1001",
			DOI:        "10.1000/xyz",
			Title:      "Advances in Gene Editing",
			Authors:    []string{"Jane Smith", "Wei Chen"},
			Year:       &year,
			SourceURL:  "https://openalex.org/W1001",
			PDFURL:     "https://example.org/1001.pdf",
			Summary:    strings.Repeat("Substantive findings about gene editing. ", 5),
		},
		{
			ID:         uuid.New(),
			OpenAlexID: "W1002",
			Title:      "A Paper Without Summary",
		},
	}

	t.Run("returns papers in candidate-set order", func(t *testing.T) {
		var requestedJobID uuid.UUID
		paperRepo := &fakePaperRepo{
			listByJobFn: func(_ context.Context, jobID uuid.UUID) ([]*domain.Paper, error) {
				requestedJobID = jobID
				return papers, nil
			},
		}
		jobRepo := &fakeJobRepo{getByTrackingFn: trackingLookup(job)}
		srv := newTestServer(&fakeWorkflowClient{}, jobRepo, paperRepo)

		rr := serveHTTP(srv, newAPIRequest(http.MethodGet, "/api/v1/reviews/"+job.TrackingID.String()+"/papers", "user-1", ""))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, job.ID, requestedJobID)

		var resp listPapersResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.Len(t, resp.Papers, 2)
		assert.Equal(t, 2, resp.TotalCount)

		first := resp.Papers[0]
		assert.Equal(t, "W1001", first.OpenAlexID)
		assert.Equal(t, "Advances in Gene Editing", first.Title)
		assert.Equal(t, []string{"Jane Smith", "Wei Chen"}, first.Authors)
		require.NotNil(t, first.Year)
		assert.Equal(t, 2023, *first.Year)
		assert.True(t, first.Summarized)

		assert.False(t, resp.Papers[1].Summarized)
	})

	t.Run("empty candidate set", func(t *testing.T) {
		jobRepo := &fakeJobRepo{getByTrackingFn: trackingLookup(job)}
		srv := newTestServer(&fakeWorkflowClient{}, jobRepo, &fakePaperRepo{})

		rr := serveHTTP(srv, newAPIRequest(http.MethodGet, "/api/v1/reviews/"+job.TrackingID.String()+"/papers", "user-1", ""))

		require.Equal(t, http.StatusOK, rr.Code)

		var resp listPapersResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Empty(t, resp.Papers)
		assert.Zero(t, resp.TotalCount)
	})

	t.Run("other user's job returns 404", func(t *testing.T) {
		jobRepo := &fakeJobRepo{getByTrackingFn: trackingLookup(job)}
		srv := newTestServer(&fakeWorkflowClient{}, jobRepo, &fakePaperRepo{})

		rr := serveHTTP(srv, newAPIRequest(http.MethodGet, "/api/v1/reviews/"+job.TrackingID.String()+"/papers", "user-2", ""))

		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}
