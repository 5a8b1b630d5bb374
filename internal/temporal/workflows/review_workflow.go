// Package workflows defines the Temporal workflow driving the review job
// pipeline.
package workflows

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/review-generation-service/internal/domain"
	jtemporal "github.com/helixir/review-generation-service/internal/temporal"
	"github.com/helixir/review-generation-service/internal/temporal/activities"
)

// Re-export signal/query names from the parent temporal package so workflow
// code and tests can reference them without the extra import.
const (
	SignalCancel  = jtemporal.SignalCancel
	QueryProgress = jtemporal.QueryProgress
)

// Activity timeout constants.
const (
	searchActivityTimeout   = 5 * time.Minute
	downloadActivityTimeout = 3 * time.Minute
	extractActivityTimeout  = 2 * time.Minute
	llmActivityTimeout      = 3 * time.Minute
	statusActivityTimeout   = 30 * time.Second
)

// Pipeline defaults applied when the input leaves them zero.
const (
	defaultMaxPapers = 30
	defaultBatchSize = 5
)

// ReviewJobWorkflowInput is an alias for the shared input type defined in
// the parent temporal package.
type ReviewJobWorkflowInput = jtemporal.ReviewJobWorkflowInput

// ReviewJobWorkflowResult contains the final accounting of a review job
// workflow. The review text itself is persisted by the complete transition,
// not returned through workflow history.
type ReviewJobWorkflowResult struct {
	// JobID is the job identifier.
	JobID uuid.UUID

	// Status is the final job status.
	Status string

	// Counters holds the final per-stage document counters.
	Counters domain.Counters

	// Synthesized is the number of documents that fed the final review.
	Synthesized int

	// WordCount is the final review length in words.
	WordCount int

	// Duration is the total workflow execution time in seconds.
	Duration float64
}

// jobProgress is the workflow's in-memory progress snapshot, exposed via the
// QueryProgress query handler.
type jobProgress struct {
	Status      string
	Stage       string
	Counters    domain.Counters
	TotalTarget int
	Percent     float64
}

// errJobCanceledExternally marks the case where a status guard rejected a
// write because the server already moved the job to a terminal state. The
// workflow stops without touching the job further.
var errJobCanceledExternally = errors.New("job canceled externally")

// ReviewJobWorkflow orchestrates one review generation job through its five
// stages: searching, downloading, extracting, summarizing, and generating.
//
// The workflow owns ordering and progress arithmetic; every side effect runs
// in an activity. Per-document activities are idempotent over fill-once
// persistence, so Temporal's at-least-once execution and full workflow
// re-invocation both resume where the previous run stopped: already-cached
// PDFs, extracted text, and summaries (including sentinels) are skipped.
//
// Downloading and extracting fan out in windows of BatchSize concurrent
// activity futures with a barrier per window; futures are always resolved in
// start order to keep replay deterministic. Summarizing is sequential
// because the generation provider is the bottleneck. Per-document failures
// never fail the job — only zero usable documents at the generating stage
// does.
//
// The workflow answers the "progress" query and honors the "cancel" signal;
// cancellation persists the canceled state best-effort and stops.
func ReviewJobWorkflow(ctx workflow.Context, input ReviewJobWorkflowInput) (*ReviewJobWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)
	info := workflow.GetInfo(ctx)

	maxPapers := input.MaxPapers
	if maxPapers <= 0 {
		maxPapers = defaultMaxPapers
	}
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	progress := &jobProgress{
		Status: string(domain.JobStatusPending),
	}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (*jobProgress, error) {
		return progress, nil
	}); err != nil {
		return nil, fmt.Errorf("register progress query handler: %w", err)
	}

	// Cancel signal handling: the signal flips the cancellable context that
	// all stage activities run under.
	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	signalCh := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		signalCh.Receive(gCtx, nil)
		logger.Info("received cancel signal", "jobID", input.JobID)
		cancelFunc()
	})

	var statusAct *activities.StatusActivities
	var searchAct *activities.SearchActivities
	var paperAct *activities.PaperActivities
	var reviewAct *activities.ReviewActivities
	var eventAct *activities.EventActivities

	statusOpts := workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	}
	statusCtx := workflow.WithActivityOptions(cancelCtx, statusOpts)

	searchCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: searchActivityTimeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	downloadCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: downloadActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	extractCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: extractActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	llmCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: llmActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    2,
		},
	})

	eventCtx := workflow.WithActivityOptions(cancelCtx, statusOpts)

	publishEvent := func(evCtx workflow.Context, eventType string, payload map[string]interface{}) {
		// Fire-and-forget: publishing must never fail the job.
		_ = workflow.ExecuteActivity(evCtx, eventAct.PublishEvent, activities.PublishEventInput{
			EventType:  eventType,
			JobID:      input.JobID,
			TrackingID: input.TrackingID,
			UserID:     input.UserID,
			Topic:      input.Topic,
			Payload:    payload,
		}).Get(evCtx, nil)
	}

	var counters domain.Counters
	totalTarget := 0

	persistCounters := func(stage domain.Stage) error {
		pct := domain.ComputeProgress(counters, totalTarget, domain.StageRef(stage))
		progress.Counters = counters
		progress.Percent = pct
		err := workflow.ExecuteActivity(statusCtx, statusAct.SetCounters, activities.SetCountersInput{
			JobID:    input.JobID,
			Counters: counters,
			Progress: pct,
		}).Get(cancelCtx, nil)
		if activities.IsJobTerminalError(err) {
			return errJobCanceledExternally
		}
		return err
	}

	setStage := func(stage domain.Stage) error {
		progress.Stage = string(stage)
		err := workflow.ExecuteActivity(statusCtx, statusAct.SetStage, activities.SetStageInput{
			JobID: input.JobID,
			Stage: stage,
		}).Get(cancelCtx, nil)
		if activities.IsJobTerminalError(err) {
			return errJobCanceledExternally
		}
		return err
	}

	// handleStop routes every abnormal exit. Cancellation (signal, external
	// terminal transition, or workflow cancel) persists canceled best-effort
	// on a disconnected context; anything else persists the failure reason.
	handleStop := func(cause error) (*ReviewJobWorkflowResult, error) {
		detachedCtx, _ := workflow.NewDisconnectedContext(ctx)
		detachedStatus := workflow.WithActivityOptions(detachedCtx, statusOpts)

		canceled := temporal.IsCanceledError(cause) ||
			errors.Is(cause, workflow.ErrCanceled) ||
			errors.Is(cause, errJobCanceledExternally)

		if canceled {
			logger.Info("workflow canceled", "jobID", input.JobID)
			progress.Status = string(domain.JobStatusCanceled)
			_ = workflow.ExecuteActivity(detachedStatus, statusAct.CancelJob, activities.CancelJobInput{
				JobID: input.JobID,
			}).Get(detachedCtx, nil)
			publishEvent(detachedStatus, domain.EventJobCanceled, nil)
			return nil, temporal.NewCanceledError("job canceled")
		}

		logger.Error("workflow failed", "jobID", input.JobID, "error", cause)
		progress.Status = string(domain.JobStatusFailed)
		_ = workflow.ExecuteActivity(detachedStatus, statusAct.FailJob, activities.FailJobInput{
			JobID:        input.JobID,
			ErrorMessage: cause.Error(),
		}).Get(detachedCtx, nil)
		publishEvent(detachedStatus, domain.EventJobFailed, map[string]interface{}{
			"error": cause.Error(),
		})
		return nil, cause
	}

	// -------------------------------------------------------------------
	// Start: pending -> running
	// -------------------------------------------------------------------

	err := workflow.ExecuteActivity(statusCtx, statusAct.MarkRunning, activities.MarkRunningInput{
		JobID:      input.JobID,
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
	}).Get(cancelCtx, nil)
	if activities.IsJobTerminalError(err) {
		return handleStop(errJobCanceledExternally)
	}
	if err != nil {
		return handleStop(fmt.Errorf("mark running: %w", err))
	}
	progress.Status = string(domain.JobStatusRunning)

	publishEvent(eventCtx, domain.EventJobStarted, map[string]interface{}{
		"topic": input.Topic,
	})

	// -------------------------------------------------------------------
	// Stage 1: searching
	// -------------------------------------------------------------------

	if err := setStage(domain.StageSearching); err != nil {
		return handleStop(err)
	}

	var searchOut activities.SearchPapersOutput
	err = workflow.ExecuteActivity(searchCtx, searchAct.SearchPapers, activities.SearchPapersInput{
		JobID:     input.JobID,
		Topic:     input.Topic,
		MaxPapers: maxPapers,
	}).Get(cancelCtx, &searchOut)
	if err != nil {
		return handleStop(fmt.Errorf("searching: %w", err))
	}

	papers := searchOut.Papers
	totalTarget = searchOut.Found
	counters.Found = searchOut.Found
	progress.TotalTarget = totalTarget

	err = workflow.ExecuteActivity(statusCtx, statusAct.SetTotalTarget, activities.SetTotalTargetInput{
		JobID: input.JobID,
		Total: totalTarget,
	}).Get(cancelCtx, nil)
	if activities.IsJobTerminalError(err) {
		return handleStop(errJobCanceledExternally)
	}
	if err != nil {
		return handleStop(fmt.Errorf("set total target: %w", err))
	}
	if err := persistCounters(domain.StageSearching); err != nil {
		return handleStop(err)
	}

	logger.Info("search stage completed", "jobID", input.JobID, "found", totalTarget)

	// -------------------------------------------------------------------
	// Stage 2: downloading (windowed fan-out)
	// -------------------------------------------------------------------

	if err := setStage(domain.StageDownloading); err != nil {
		return handleStop(err)
	}

	for _, window := range windows(indexesWhere(papers, func(p activities.PaperRef) bool {
		return p.HasPDF || p.HasPDFURL
	}), batchSize) {
		futures := make([]workflow.Future, 0, len(window))
		for _, idx := range window {
			futures = append(futures, workflow.ExecuteActivity(downloadCtx, paperAct.DownloadPaper, activities.DownloadPaperInput{
				PaperID: papers[idx].PaperID,
			}))
		}

		// Barrier: resolve the whole window, in start order, before the
		// next window begins.
		for i, future := range futures {
			idx := window[i]
			var out activities.DownloadPaperOutput
			if err := future.Get(cancelCtx, &out); err != nil {
				if temporal.IsCanceledError(err) || errors.Is(err, workflow.ErrCanceled) {
					return handleStop(err)
				}
				logger.Warn("paper download failed",
					"jobID", input.JobID,
					"paperID", papers[idx].PaperID,
					"error", err,
				)
				continue
			}
			if out.Downloaded {
				papers[idx].HasPDF = true
				counters.Downloaded++
			}
		}

		if err := persistCounters(domain.StageDownloading); err != nil {
			return handleStop(err)
		}
	}

	logger.Info("download stage completed", "jobID", input.JobID, "downloaded", counters.Downloaded)

	// -------------------------------------------------------------------
	// Stage 3: extracting (windowed fan-out)
	// -------------------------------------------------------------------

	if err := setStage(domain.StageExtracting); err != nil {
		return handleStop(err)
	}

	for _, window := range windows(indexesWhere(papers, func(p activities.PaperRef) bool {
		return p.HasText || p.HasPDF
	}), batchSize) {
		futures := make([]workflow.Future, 0, len(window))
		for _, idx := range window {
			futures = append(futures, workflow.ExecuteActivity(extractCtx, paperAct.ExtractPaper, activities.ExtractPaperInput{
				PaperID: papers[idx].PaperID,
			}))
		}

		for i, future := range futures {
			idx := window[i]
			var out activities.ExtractPaperOutput
			if err := future.Get(cancelCtx, &out); err != nil {
				if temporal.IsCanceledError(err) || errors.Is(err, workflow.ErrCanceled) {
					return handleStop(err)
				}
				logger.Warn("paper extraction failed",
					"jobID", input.JobID,
					"paperID", papers[idx].PaperID,
					"error", err,
				)
				continue
			}
			if out.Extracted {
				papers[idx].HasText = true
				counters.Extracted++
			}
		}

		if err := persistCounters(domain.StageExtracting); err != nil {
			return handleStop(err)
		}
	}

	logger.Info("extract stage completed", "jobID", input.JobID, "extracted", counters.Extracted)

	// -------------------------------------------------------------------
	// Stage 4: summarizing (sequential, provider-bound)
	// -------------------------------------------------------------------

	if err := setStage(domain.StageSummarizing); err != nil {
		return handleStop(err)
	}

	for idx := range papers {
		if !papers[idx].HasText && !papers[idx].HasSummary {
			continue
		}

		var out activities.SummarizePaperOutput
		err := workflow.ExecuteActivity(llmCtx, paperAct.SummarizePaper, activities.SummarizePaperInput{
			PaperID: papers[idx].PaperID,
			Prompt:  input.Prompt,
		}).Get(cancelCtx, &out)
		if err != nil {
			if temporal.IsCanceledError(err) || errors.Is(err, workflow.ErrCanceled) {
				return handleStop(err)
			}
			logger.Warn("paper summarization failed",
				"jobID", input.JobID,
				"paperID", papers[idx].PaperID,
				"error", err,
			)
			continue
		}
		if out.Summarized {
			papers[idx].HasSummary = true
			counters.Summarized++
			if err := persistCounters(domain.StageSummarizing); err != nil {
				return handleStop(err)
			}
		}
	}

	logger.Info("summarize stage completed", "jobID", input.JobID, "summarized", counters.Summarized)

	// -------------------------------------------------------------------
	// Stage 5: generating
	// -------------------------------------------------------------------

	if err := setStage(domain.StageGenerating); err != nil {
		return handleStop(err)
	}
	if err := persistCounters(domain.StageGenerating); err != nil {
		return handleStop(err)
	}

	var sourcesOut activities.ListSourcesOutput
	err = workflow.ExecuteActivity(statusCtx, reviewAct.ListSources, activities.ListSourcesInput{
		JobID: input.JobID,
	}).Get(cancelCtx, &sourcesOut)
	if err != nil {
		return handleStop(fmt.Errorf("list sources: %w", err))
	}

	if len(sourcesOut.Sources) == 0 {
		return handleStop(fmt.Errorf(
			"no documents could be processed: found %d, downloaded %d, extracted %d, summarized %d",
			counters.Found, counters.Downloaded, counters.Extracted, counters.Summarized,
		))
	}

	var finalOut activities.GenerateReviewOutput
	if len(sourcesOut.Sources) <= batchSize {
		// Small jobs synthesize directly from all summaries in one call.
		err = workflow.ExecuteActivity(llmCtx, reviewAct.GenerateReview, activities.GenerateReviewInput{
			Prompt:    input.Prompt,
			Sources:   sourcesOut.Sources,
			Processed: len(sourcesOut.Sources),
			Found:     counters.Found,
		}).Get(cancelCtx, &finalOut)
		if err != nil {
			return handleStop(fmt.Errorf("generating: %w", err))
		}
	} else {
		batches := windowSources(sourcesOut.Sources, batchSize)
		sections := make([]string, 0, len(batches))
		for i, batch := range batches {
			var sectionOut activities.GenerateSectionOutput
			err := workflow.ExecuteActivity(llmCtx, reviewAct.GenerateSection, activities.GenerateSectionInput{
				Prompt:  input.Prompt,
				Sources: batch,
				Index:   i + 1,
				Total:   len(batches),
			}).Get(cancelCtx, &sectionOut)
			if err != nil {
				if temporal.IsCanceledError(err) || errors.Is(err, workflow.ErrCanceled) {
					return handleStop(err)
				}
				// A lost section costs coverage, not the job.
				logger.Warn("section generation failed, dropping batch",
					"jobID", input.JobID,
					"section", i+1,
					"error", err,
				)
				continue
			}
			sections = append(sections, sectionOut.Text)
		}

		if len(sections) == 0 {
			return handleStop(fmt.Errorf("generating: all %d section calls failed", len(batches)))
		}

		err = workflow.ExecuteActivity(llmCtx, reviewAct.GenerateReview, activities.GenerateReviewInput{
			Prompt:    input.Prompt,
			Sources:   sourcesOut.Sources,
			Sections:  sections,
			Processed: len(sourcesOut.Sources),
			Found:     counters.Found,
		}).Get(cancelCtx, &finalOut)
		if err != nil {
			return handleStop(fmt.Errorf("generating: %w", err))
		}
	}

	// -------------------------------------------------------------------
	// Complete: running -> finished
	// -------------------------------------------------------------------

	err = workflow.ExecuteActivity(statusCtx, statusAct.CompleteJob, activities.CompleteJobInput{
		JobID:  input.JobID,
		Result: finalOut.Text,
	}).Get(cancelCtx, nil)
	if activities.IsJobTerminalError(err) {
		return handleStop(errJobCanceledExternally)
	}
	if err != nil {
		return handleStop(fmt.Errorf("complete job: %w", err))
	}

	progress.Status = string(domain.JobStatusFinished)
	progress.Stage = ""
	progress.Percent = 100

	duration := workflow.Now(ctx).Sub(startTime).Seconds()
	publishEvent(eventCtx, domain.EventJobFinished, map[string]interface{}{
		"found":      counters.Found,
		"downloaded": counters.Downloaded,
		"extracted":  counters.Extracted,
		"summarized": counters.Summarized,
		"words":      finalOut.WordCount,
		"duration":   duration,
	})

	logger.Info("review job workflow completed",
		"jobID", input.JobID,
		"found", counters.Found,
		"summarized", counters.Summarized,
		"words", finalOut.WordCount,
		"duration", duration,
	)

	return &ReviewJobWorkflowResult{
		JobID:       input.JobID,
		Status:      string(domain.JobStatusFinished),
		Counters:    counters,
		Synthesized: len(sourcesOut.Sources),
		WordCount:   finalOut.WordCount,
		Duration:    duration,
	}, nil
}

// indexesWhere returns the indexes of papers matching pred, in input order.
func indexesWhere(papers []activities.PaperRef, pred func(activities.PaperRef) bool) []int {
	var out []int
	for i, p := range papers {
		if pred(p) {
			out = append(out, i)
		}
	}
	return out
}

// windows splits indexes into consecutive slices of at most size.
func windows(indexes []int, size int) [][]int {
	if len(indexes) == 0 {
		return nil
	}
	var out [][]int
	for start := 0; start < len(indexes); start += size {
		end := start + size
		if end > len(indexes) {
			end = len(indexes)
		}
		out = append(out, indexes[start:end])
	}
	return out
}

// windowSources splits sources into consecutive batches of at most size.
func windowSources(sources []activities.SynthesisSource, size int) [][]activities.SynthesisSource {
	var out [][]activities.SynthesisSource
	for start := 0; start < len(sources); start += size {
		end := start + size
		if end > len(sources) {
			end = len(sources)
		}
		out = append(out, sources[start:end])
	}
	return out
}
