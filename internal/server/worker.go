package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/bouncepath/internal/pathfind"
	"github.com/cwbudde/bouncepath/internal/runner"
)

// runJob executes a job with the shared runner. The job ID doubles as the
// run ID, so its checkpoint can be resumed from the CLI.
func runJob(ctx context.Context, jm *JobManager, r *runner.Runner, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	broadcastState(jm, jobID)

	slog.Info("Starting job", "job_id", jobID, "fields", job.Config.Potential.Fields)

	cfg := job.Config
	outcome, err := r.Run(ctx, jobID, &cfg, func(step pathfind.Step) {
		recordProgress(jm, jobID, step)
	})

	if outcome != nil && outcome.Result != nil {
		result := outcome.Result
		jm.UpdateJob(jobID, func(j *Job) {
			j.Improvements = result.Improvements
			j.BestAction = result.Action
			j.CurvedAction = result.CurvedAction
			j.StraightAction = result.StraightAction
			j.Weights = append([]float64(nil), result.Weights...)
			j.Errors = append([]float64(nil), result.Errors...)
			j.Converged = result.Converged
		})
	}

	switch {
	case errors.Is(err, context.Canceled):
		markJobCancelled(jm, jobID)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", outcome.Elapsed,
		"action", outcome.Result.Action,
		"improvements", outcome.Result.Improvements)
	broadcastState(jm, jobID)
	return nil
}

func recordProgress(jm *JobManager, jobID string, step pathfind.Step) {
	now := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.Improvements = step.Improvement
		j.BestAction = step.Action
		j.Weights = append([]float64(nil), step.Weights...)
		j.Errors = append([]float64(nil), step.Errors...)
		j.Progress = append(j.Progress, ProgressPoint{
			Improvement: step.Improvement,
			Action:      step.Action,
			Weights:     append([]float64(nil), step.Weights...),
			Timestamp:   now,
		})
	})
	broadcastState(jm, jobID)
}

func broadcastState(jm *JobManager, jobID string) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:        job.ID,
		State:        job.State,
		Improvements: job.Improvements,
		BestAction:   job.BestAction,
		Timestamp:    time.Now(),
	})
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastState(jm, jobID)
}
