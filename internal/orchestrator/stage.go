package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/inqsweep/internal/runner"
	"github.com/lamim/inqsweep/internal/selector"
	"github.com/lamim/inqsweep/pkg/models"
)

// outcome is a runner result tagged with the handle it belongs to
type outcome struct {
	index  int
	result runner.Outcome
	closed bool // channel closed without delivering
}

// runStage submits every planned trial without waiting, then blocks until
// all of them are terminal. Only after the barrier are failures inspected.
func (o *Orchestrator) runStage(
	ctx context.Context,
	logger *slog.Logger,
	stage models.Stage,
	structure models.Structure,
	plan []plannedTrial,
	skipped []models.KMeshEntry,
) (models.StageResult, error) {
	stageStart := time.Now()
	stageName := stage.String()
	logger = logger.With("stage", stageName)

	result := models.StageResult{
		Stage:   stage,
		Handles: make([]models.TrialHandle, len(plan)),
		Skipped: skipped,
	}

	if len(plan) == 0 {
		o.metrics.RecordStage(stageName, time.Since(stageStart), false, 0, "")
		return result, fmt.Errorf("%s stage: %w: %w", stageName, ErrNoTrials, selector.ErrNoCandidates)
	}

	// Fan-out: outcomes are forwarded into one buffered channel so the
	// forwarders never block on the barrier.
	outcomes := make(chan outcome, len(plan))
	pending := 0

	for i, p := range plan {
		h := &result.Handles[i]
		*h = models.TrialHandle{
			Label:  p.label,
			Stage:  stage,
			Value:  p.value,
			Mesh:   p.mesh,
			Status: models.TrialPending,
		}

		trial := runner.Trial{
			SweepID:    o.sweepID,
			Stage:      stage,
			Label:      p.label,
			Structure:  structure,
			Parameters: p.params,
		}

		h.SubmittedAt = time.Now()
		ch, err := o.runner.Submit(ctx, trial)
		if err != nil {
			o.finishHandle(logger, h, runner.Outcome{Err: fmt.Errorf("submission failed: %w", err)})
			continue
		}
		h.Status = models.TrialRunning
		o.stats.Submitted++
		pending++

		logger.Debug("Trial submitted", "label", p.label, "value", p.value.String())

		go func(index int, ch <-chan runner.Outcome) {
			r, ok := <-ch
			outcomes <- outcome{index: index, result: r, closed: !ok}
		}(i, ch)
	}

	logger.Info("Stage submitted", "trials", len(plan), "running", pending, "skipped", len(skipped))
	o.metrics.SetInFlight(stageName, pending)
	o.publish(models.SweepSnapshot{Phase: phaseOf(stage), Stage: stage, Trials: copyHandles(result.Handles)})

	// Fan-in barrier
	bar := o.newBar(len(plan), fmt.Sprintf("Stage %d (%s)", stage, stageName))
	_ = bar.Add(len(plan) - pending)

	for pending > 0 {
		select {
		case out := <-outcomes:
			r := out.result
			if out.closed {
				r = runner.Outcome{Err: fmt.Errorf("runner closed without an outcome")}
			}
			o.finishHandle(logger, &result.Handles[out.index], r)
			pending--
			o.metrics.SetInFlight(stageName, pending)
			_ = bar.Add(1)
			o.publish(models.SweepSnapshot{Phase: phaseOf(stage), Stage: stage, Trials: copyHandles(result.Handles)})
		case <-ctx.Done():
			_ = bar.Exit()
			logger.Warn("Stage cancelled", "outstanding", pending)
			return result, ctx.Err()
		}
	}
	_ = bar.Finish()

	// Records in submission order
	for i := range result.Handles {
		o.records = append(o.records, o.record(&result.Handles[i]))
	}

	for i := range result.Handles {
		h := &result.Handles[i]
		if h.Status == models.TrialFailed {
			o.metrics.RecordStage(stageName, time.Since(stageStart), false, 0, "")
			return result, &StageFailure{Stage: stage, Label: h.Label, Reason: h.FailureReason}
		}
	}

	candidates := make([]selector.Candidate, 0, len(result.Handles))
	for _, h := range result.Handles {
		energy, _ := h.Result.TotalEnergy()
		candidates = append(candidates, selector.Candidate{Label: h.Label, Energy: energy, Value: h.Value})
	}
	best, err := selector.Best(candidates)
	if err != nil {
		return result, fmt.Errorf("%s stage: %w", stageName, err)
	}
	selected := best.Value
	result.Selected = &selected

	o.metrics.RecordStage(stageName, time.Since(stageStart), true, selected.Value, selected.Unit)
	logger.Info("Stage selected",
		"label", best.Label,
		"value", selected.String(),
		"total_energy_ev", best.Energy)

	return result, nil
}

// finishHandle moves h to its terminal status. A success without a finite
// total energy cannot take part in selection and counts as a failure.
func (o *Orchestrator) finishHandle(logger *slog.Logger, h *models.TrialHandle, r runner.Outcome) {
	h.FinishedAt = time.Now()

	switch {
	case r.Err != nil:
		h.Status = models.TrialFailed
		h.FailureReason = r.Err.Error()
	case !hasTotalEnergy(r.Result):
		h.Status = models.TrialFailed
		h.FailureReason = "missing total energy"
	case !hasFiniteEnergy(r.Result):
		h.Status = models.TrialFailed
		h.FailureReason = "non-finite total energy"
	default:
		h.Status = models.TrialSucceeded
		h.Result = r.Result
	}

	duration := h.FinishedAt.Sub(h.SubmittedAt)
	success := h.Status == models.TrialSucceeded
	if success {
		o.stats.SuccessCount++
		logger.Info("Trial succeeded", "label", h.Label, "duration", duration)
	} else {
		o.stats.FailureCount++
		logger.Error("Trial failed", "label", h.Label, "reason", h.FailureReason)
	}
	if finished := o.stats.SuccessCount + o.stats.FailureCount; finished > 0 {
		runtime := o.stats.AverageRuntime*time.Duration(finished-1) + duration
		o.stats.AverageRuntime = runtime / time.Duration(finished)
	}
	o.metrics.RecordTrial(h.Stage.String(), duration, success)

	if o.recorder != nil {
		if err := o.recorder.WriteRecord(o.record(h)); err != nil {
			logger.Error("Failed to write trial record", "label", h.Label, "error", err)
		}
	}
	if o.checkpointMgr != nil {
		if err := o.checkpointMgr.MarkTrialFinished(h.Label, h.Status, o.stats); err != nil {
			logger.Warn("Failed to checkpoint trial", "label", h.Label, "error", err)
		}
	}
}

func (o *Orchestrator) record(h *models.TrialHandle) models.TrialRecord {
	rec := models.TrialRecord{
		SweepID:       o.sweepID,
		Stage:         h.Stage.String(),
		Label:         h.Label,
		Value:         h.Value.String(),
		Mesh:          h.Mesh,
		Status:        h.Status,
		FailureReason: h.FailureReason,
	}
	if energy, ok := h.Result.TotalEnergy(); ok {
		rec.TotalEnergyEV = &energy
	}
	if !h.FinishedAt.IsZero() && !h.SubmittedAt.IsZero() {
		rec.Duration = h.FinishedAt.Sub(h.SubmittedAt).Round(time.Millisecond).String()
	}
	return rec
}

func (o *Orchestrator) newBar(n int, desc string) *progressbar.ProgressBar {
	if o.showProgress {
		return progressbar.Default(int64(n), desc)
	}
	return progressbar.DefaultSilent(int64(n), desc)
}

func hasTotalEnergy(r *models.TrialResult) bool {
	_, ok := r.TotalEnergy()
	return ok
}

func hasFiniteEnergy(r *models.TrialResult) bool {
	e, _ := r.TotalEnergy()
	return !math.IsNaN(e) && !math.IsInf(e, 0)
}

func phaseOf(stage models.Stage) models.CheckpointPhase {
	if stage == models.StageCutoff {
		return models.PhaseCutoff
	}
	return models.PhaseKSpacing
}

func copyHandles(handles []models.TrialHandle) []models.TrialHandle {
	return append([]models.TrialHandle(nil), handles...)
}
