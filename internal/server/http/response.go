package httpserver

import (
	"strings"
	"time"

	"github.com/helixir/review-generation-service/internal/domain"
)

// Response types for JSON serialization.

type submitReviewResponse struct {
	JobID      string    `json:"job_id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	Message    string    `json:"message"`
}

type jobStatusResponse struct {
	JobID        string            `json:"job_id"`
	Topic        string            `json:"topic"`
	Status       string            `json:"status"`
	Stage        string            `json:"stage,omitempty"`
	Progress     *progressResponse `json:"progress,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Duration     string            `json:"duration,omitempty"`
}

type progressResponse struct {
	Percent     float64 `json:"percent"`
	Found       int     `json:"found"`
	Downloaded  int     `json:"downloaded"`
	Extracted   int     `json:"extracted"`
	Summarized  int     `json:"summarized"`
	TotalTarget int     `json:"total_target,omitempty"`
}

type jobResultResponse struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	Result      string     `json:"result"`
	WordCount   int        `json:"word_count"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type jobSummaryResponse struct {
	JobID       string     `json:"job_id"`
	Topic       string     `json:"topic"`
	Status      string     `json:"status"`
	Percent     float64    `json:"percent"`
	Found       int        `json:"found"`
	Summarized  int        `json:"summarized"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

type listJobsResponse struct {
	Reviews       []jobSummaryResponse `json:"reviews"`
	NextPageToken string               `json:"next_page_token,omitempty"`
	TotalCount    int                  `json:"total_count"`
}

type cancelReviewResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type paperResponse struct {
	ID         string   `json:"id"`
	OpenAlexID string   `json:"openalex_id"`
	DOI        string   `json:"doi,omitempty"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	Year       *int     `json:"year,omitempty"`
	SourceURL  string   `json:"source_url,omitempty"`
	PdfURL     string   `json:"pdf_url,omitempty"`
	Summarized bool     `json:"summarized"`
}

type listPapersResponse struct {
	Papers     []paperResponse `json:"papers"`
	TotalCount int             `json:"total_count"`
}

// Converter functions

func jobToStatusResponse(j *domain.ReviewJob) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:        j.TrackingID.String(),
		Topic:        j.Topic,
		Status:       string(j.Status),
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		Progress:     buildProgressData(j),
	}
	if j.CurrentStage != nil {
		resp.Stage = string(*j.CurrentStage)
	}
	resp.Duration = jobDuration(j)
	return resp
}

func buildProgressData(j *domain.ReviewJob) *progressResponse {
	resp := &progressResponse{
		Percent:    j.ProgressPercent,
		Found:      j.Counters.Found,
		Downloaded: j.Counters.Downloaded,
		Extracted:  j.Counters.Extracted,
		Summarized: j.Counters.Summarized,
	}
	if j.TotalTarget != nil {
		resp.TotalTarget = *j.TotalTarget
	}
	return resp
}

func jobToSummary(j *domain.ReviewJob) jobSummaryResponse {
	return jobSummaryResponse{
		JobID:       j.TrackingID.String(),
		Topic:       j.Topic,
		Status:      string(j.Status),
		Percent:     j.ProgressPercent,
		Found:       j.Counters.Found,
		Summarized:  j.Counters.Summarized,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
		Duration:    jobDuration(j),
	}
}

func jobToResultResponse(j *domain.ReviewJob) jobResultResponse {
	return jobResultResponse{
		JobID:       j.TrackingID.String(),
		Status:      string(j.Status),
		Result:      j.Result,
		WordCount:   len(strings.Fields(j.Result)),
		CompletedAt: j.CompletedAt,
	}
}

func paperToResponse(p *domain.Paper) paperResponse {
	return paperResponse{
		ID:         p.ID.String(),
		OpenAlexID: p.OpenAlexID,
		DOI:        p.DOI,
		Title:      p.Title,
		Authors:    p.Authors,
		Year:       p.Year,
		SourceURL:  p.SourceURL,
		PdfURL:     p.PDFURL,
		Summarized: p.HasUsableSummary(),
	}
}

// jobDuration returns the wall-clock runtime of a job, or "" before it starts.
func jobDuration(j *domain.ReviewJob) string {
	if j.StartedAt == nil {
		return ""
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	if d := end.Sub(*j.StartedAt); d > 0 {
		return d.Round(time.Millisecond).String()
	}
	return ""
}
