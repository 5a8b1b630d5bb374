package domain

// Stage weights for progress computation. Each stage owns a fixed share of
// the total work; the shares sum to 100.
const (
	WeightSearching   = 5.0
	WeightDownloading = 25.0
	WeightExtracting  = 25.0
	WeightSummarizing = 30.0
	WeightGenerating  = 15.0

	// MaxRunningProgress caps the computed progress of a non-terminal job.
	// Only the terminal success transition may report 100.
	MaxRunningProgress = 99.0
)

// ComputeProgress returns the weighted progress percentage for a running job.
//
// Search contributes its full weight once any candidate has been found.
// Download, extract, and summarize earn partial credit proportional to
// counter/totalTarget. Generate contributes its full weight only once that
// stage has been reached. The result is capped at MaxRunningProgress; the
// orchestrator sets 100 explicitly on the finished transition.
func ComputeProgress(c Counters, totalTarget int, stage *Stage) float64 {
	if totalTarget <= 0 {
		return 0
	}

	progress := 0.0
	target := float64(totalTarget)

	if c.Found > 0 {
		progress += WeightSearching
	}
	if c.Downloaded > 0 {
		progress += float64(c.Downloaded) / target * WeightDownloading
	}
	if c.Extracted > 0 {
		progress += float64(c.Extracted) / target * WeightExtracting
	}
	if c.Summarized > 0 {
		progress += float64(c.Summarized) / target * WeightSummarizing
	}
	if stage != nil && *stage == StageGenerating {
		progress += WeightGenerating
	}

	if progress > MaxRunningProgress {
		progress = MaxRunningProgress
	}
	return progress
}
