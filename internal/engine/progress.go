package engine

import (
	"time"

	"github.com/maxkimambo/energy-etl/internal/logger"
	"github.com/maxkimambo/energy-etl/internal/progress"
	"github.com/maxkimambo/energy-etl/internal/runstate"
)

// logProgress periodically logs execution progress until finished is closed
func (x *execution) logProgress(finished <-chan struct{}) {
	if x.config.ProgressInterval <= 0 {
		return
	}
	ticker := time.NewTicker(x.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-finished:
			return
		case <-ticker.C:
			if x.reporter.ShouldReport() {
				logger.User.Info(x.reporter.Report(x.buildProgressInfo()))
			}
		}
	}
}

// buildProgressInfo creates detailed progress information
func (x *execution) buildProgressInfo() progress.ProgressInfo {
	x.mu.Lock()
	defer x.mu.Unlock()

	info := progress.ProgressInfo{
		Pipeline:      x.trigger.Pipeline,
		RunKey:        x.trigger.RunKey,
		TotalTasks:    len(x.run.Tasks),
		ElapsedTime:   x.reporter.Elapsed(),
		KindBreakdown: make(map[string]progress.KindStats),
	}

	for _, id := range x.graph.TopologicalOrder() {
		state := x.run.Tasks[id]
		stats := info.KindBreakdown[state.Kind]
		stats.Total++

		switch {
		case state.Status == runstate.StatusSucceeded:
			stats.Completed++
			info.CompletedTasks++
		case state.Status == runstate.StatusFailed:
			stats.Failed++
			info.FailedTasks++
			info.CompletedTasks++
		case state.Status.IsSkipped():
			stats.Skipped++
			info.SkippedTasks++
			info.CompletedTasks++
		case state.Status == runstate.StatusRunning:
			stats.Running++
			stats.RunningTasks = append(stats.RunningTasks, id)
			info.RunningTasks++
		default:
			stats.Pending++
		}
		info.KindBreakdown[state.Kind] = stats
	}

	info.EstimatedTimeLeft = progress.CalculateETA(info.CompletedTasks, info.TotalTasks, info.ElapsedTime)
	return info
}

// logFinalProgress logs the final summary of the run
func (x *execution) logFinalProgress(run *runstate.RunInstance, elapsed time.Duration) {
	counts := run.Counts()
	skipped := counts[runstate.StatusSkipped] + counts[runstate.StatusUpstreamFailed]

	switch run.Outcome {
	case runstate.OutcomeSucceeded:
		logger.User.Successf("Run %s succeeded: %d tasks in %s",
			run.RunKey, len(run.Tasks), progress.FormatDuration(elapsed))
	default:
		logger.User.Errorf("Run %s %s: %d succeeded, %d failed, %d skipped in %s",
			run.RunKey, run.Outcome, counts[runstate.StatusSucceeded], counts[runstate.StatusFailed],
			skipped, progress.FormatDuration(elapsed))
	}

	logger.Op.WithFields(map[string]interface{}{
		"pipeline":     run.Pipeline,
		"run_key":      run.RunKey,
		"execution_id": run.ExecutionID,
		"outcome":      run.Outcome,
		"succeeded":    counts[runstate.StatusSucceeded],
		"failed":       counts[runstate.StatusFailed],
		"skipped":      skipped,
		"duration":     elapsed,
	}).Info("Run finished")
}
