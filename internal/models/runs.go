package models

import "time"

// RunStats aggregates a set of workflow runs
type RunStats struct {
	Total           int           `json:"total"`
	Completed       int           `json:"completed"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	InProgress      int           `json:"inProgress"`
	SuccessRate     float64       `json:"successRate"`
	AverageDuration time.Duration `json:"averageDuration"`
}

// SummarizeRuns computes completion counts, success rate and mean duration of completed runs
func SummarizeRuns(runs []WorkflowRun) RunStats {
	stats := RunStats{Total: len(runs)}
	var total time.Duration
	var timed int

	for _, run := range runs {
		if run.Status != "completed" {
			stats.InProgress++
			continue
		}
		stats.Completed++
		switch run.Conclusion {
		case "success":
			stats.Succeeded++
		case "failure", "timed_out", "startup_failure":
			stats.Failed++
		}

		start := run.StartedAt
		if start.IsZero() {
			start = run.CreatedAt
		}
		if d := run.UpdatedAt.Sub(start); d > 0 {
			total += d
			timed++
		}
	}

	if stats.Completed > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Completed)
	}
	if timed > 0 {
		stats.AverageDuration = total / time.Duration(timed)
	}
	return stats
}
