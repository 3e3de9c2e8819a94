package checkpoint

import (
	"fmt"

	"github.com/lamim/inqsweep/internal/config"
	"github.com/lamim/inqsweep/pkg/models"
)

// ValidateCheckpoint verifies checkpoint is compatible with current config
func ValidateCheckpoint(cp *models.Checkpoint, cfg *config.Config) error {
	expectedHash := computeConfigHash(cfg)
	if cp.ConfigHash != expectedHash {
		return fmt.Errorf("checkpoint config mismatch: checkpoint was created with different sweep inputs (hash: %s vs %s)", cp.ConfigHash, expectedHash)
	}

	if cp.CurrentPhase == models.PhaseComplete {
		return fmt.Errorf("checkpoint is already complete, nothing to resume")
	}

	if cp.CutoffComplete && (cp.CutoffStage == nil || cp.CutoffStage.Selected == nil) {
		return fmt.Errorf("checkpoint marks the cutoff stage complete but has no selected cutoff")
	}

	return nil
}

// CompletedCutoff returns the recorded stage-1 result, if it finished.
func CompletedCutoff(cp *models.Checkpoint) (*models.StageResult, []models.TrialRecord, bool) {
	if cp == nil || !cp.CutoffComplete || cp.CutoffStage == nil || cp.CutoffStage.Selected == nil {
		return nil, nil, false
	}
	return cp.CutoffStage, cp.CutoffTrials, true
}

// GetFinishedCount returns the number of trials that reached a terminal status
func GetFinishedCount(cp *models.Checkpoint) int {
	return len(cp.FinishedTrials)
}

// GetFailedCount returns the number of failed trials recorded
func GetFailedCount(cp *models.Checkpoint) int {
	n := 0
	for _, status := range cp.FinishedTrials {
		if status == models.TrialFailed {
			n++
		}
	}
	return n
}

// Describe is a one-line summary for listings
func Describe(cp *models.Checkpoint) string {
	switch cp.CurrentPhase {
	case models.PhaseFailed:
		return fmt.Sprintf("failed in %s stage at %s", cp.FailedStage, cp.FailedLabel)
	case models.PhaseKSpacing:
		if cp.CutoffStage != nil && cp.CutoffStage.Selected != nil {
			return fmt.Sprintf("cutoff %s selected, kspacing pending", cp.CutoffStage.Selected)
		}
	case models.PhaseComplete:
		if cp.KSpacingStage != nil && cp.KSpacingStage.Selected != nil && cp.CutoffStage != nil && cp.CutoffStage.Selected != nil {
			return fmt.Sprintf("complete: cutoff %s, kspacing %s", cp.CutoffStage.Selected, cp.KSpacingStage.Selected)
		}
	}
	return string(cp.CurrentPhase)
}
