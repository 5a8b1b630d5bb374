package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/review-generation-service/internal/domain"
	"github.com/helixir/review-generation-service/internal/repository"
	"github.com/helixir/review-generation-service/internal/temporal"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies
)

// submitReviewRequest is the JSON request body for submitting a review job.
type submitReviewRequest struct {
	Topic     string `json:"topic" validate:"required,min=3,max=10000"`
	Prompt    string `json:"prompt,omitempty" validate:"max=10000"`
	MaxPapers *int   `json:"max_papers,omitempty" validate:"omitempty,min=1,max=30"`
}

// submitReview handles POST /reviews.
// It creates a new review job and starts the Temporal workflow.
func (s *Server) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req submitReviewRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	req.Topic = strings.TrimSpace(req.Topic)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	// Enforce the per-user concurrent job quota at submission time.
	active, err := s.jobRepo.CountActiveByUser(ctx, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if active >= s.maxActiveJobs {
		writeDomainError(w, &domain.QuotaExceededError{UserID: userID, Limit: s.maxActiveJobs})
		return
	}

	now := time.Now()
	job := &domain.ReviewJob{
		ID:         uuid.New(),
		TrackingID: uuid.New(),
		UserID:     userID,
		Topic:      req.Topic,
		Prompt:     req.Prompt,
		Status:     domain.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		writeDomainError(w, err)
		return
	}

	input := temporal.ReviewJobWorkflowInput{
		JobID:      job.ID,
		TrackingID: job.TrackingID,
		UserID:     userID,
		Topic:      req.Topic,
		Prompt:     req.Prompt,
	}
	if req.MaxPapers != nil {
		input.MaxPapers = *req.MaxPapers
	}

	workflowID, _, err := s.workflowClient.StartReviewJobWorkflow(ctx, s.workflowFunc, input)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to start review workflow")
		// The job would otherwise sit in pending forever.
		if failErr := s.jobRepo.Fail(ctx, job.ID, "failed to enqueue review workflow"); failErr != nil {
			s.logger.Error().Err(failErr).Str("job_id", job.ID.String()).Msg("failed to mark unstartable job failed")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitReviewResponse{
		JobID:      job.TrackingID.String(),
		WorkflowID: workflowID,
		Status:     string(domain.JobStatusPending),
		CreatedAt:  now,
		Message:    "review job accepted",
	})
}

// getReviewStatus handles GET /reviews/{jobID}.
func (s *Server) getReviewStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadUserJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, jobToStatusResponse(job))
}

// getReviewResult handles GET /reviews/{jobID}/result.
// The result is only available once the job has finished.
func (s *Server) getReviewResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadUserJob(w, r)
	if !ok {
		return
	}

	switch job.Status {
	case domain.JobStatusFinished:
		writeJSON(w, http.StatusOK, jobToResultResponse(job))
	case domain.JobStatusFailed:
		writeError(w, http.StatusConflict, "review failed: "+job.ErrorMessage)
	case domain.JobStatusCanceled:
		writeError(w, http.StatusConflict, "review was canceled")
	default:
		writeError(w, http.StatusConflict, fmt.Sprintf("review is not finished (status: %s)", job.Status))
	}
}

// cancelReview handles POST /reviews/{jobID}/cancel.
// Cancellation is persisted first so the canceled state is immediately
// visible; workflow teardown is best-effort and happens after.
func (s *Server) cancelReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, ok := s.loadUserJob(w, r)
	if !ok {
		return
	}

	if job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "review is already in terminal state")
		return
	}

	if err := s.jobRepo.Cancel(ctx, job.ID); err != nil {
		writeDomainError(w, err)
		return
	}

	workflowID := job.WorkflowID
	if workflowID == "" {
		workflowID = temporal.WorkflowIDForJob(job.ID)
	}
	if err := s.workflowClient.CancelWorkflow(ctx, workflowID, job.RunID); err != nil && !temporal.IsWorkflowNotFound(err) {
		s.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("best-effort workflow cancel failed")
	}

	writeJSON(w, http.StatusOK, cancelReviewResponse{
		Success: true,
		Message: "cancellation requested",
		Status:  string(domain.JobStatusCanceled),
	})
}

// listReviews handles GET /reviews.
// It returns a paginated list of the caller's review jobs, newest first.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	limit, offset := parsePaginationParams(r)

	filter := repository.JobFilter{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		filter.Status = []domain.JobStatus{domain.JobStatus(statusParam)}
	}

	jobs, totalCount, err := s.jobRepo.List(ctx, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]jobSummaryResponse, len(jobs))
	for i, j := range jobs {
		summaries[i] = jobToSummary(j)
	}

	writeJSON(w, http.StatusOK, listJobsResponse{
		Reviews:       summaries,
		NextPageToken: encodePageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// loadUserJob resolves the {jobID} path parameter to a job owned by the
// calling user. Jobs belonging to other users are reported as not found so
// tracking IDs cannot be probed across users.
func (s *Server) loadUserJob(w http.ResponseWriter, r *http.Request) (*domain.ReviewJob, bool) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	trackingID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return nil, false
	}

	job, err := s.jobRepo.GetByTrackingID(ctx, trackingID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if job.UserID != userID {
		writeError(w, http.StatusNotFound, "resource not found")
		return nil, false
	}
	return job, true
}

// writeDomainError maps domain and temporal errors to appropriate HTTP status
// codes and writes a JSON error response. Internal error details are not
// leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrJobTerminal):
		writeError(w, http.StatusConflict, "review is already in terminal state")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, temporal.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "workflow not found")
	case errors.Is(err, temporal.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, "workflow already started")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// validationMessage renders the first field violation of a validator error
// into a client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return field + " is required"
		case "min":
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max":
			return fmt.Sprintf("%s must be at most %s", field, fe.Param())
		default:
			return field + " is invalid"
		}
	}
	return "invalid request"
}

// parseUUID parses a UUID from a string, writing a 400 error response if
// invalid. The parse error details are not included to avoid echoing
// potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query
// parameters, applying default and maximum bounds to the page size.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodePageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodePageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
