package models

import "time"

// CheckpointPhase represents the current phase of a sweep
type CheckpointPhase string

const (
	PhaseCutoff   CheckpointPhase = "cutoff"
	PhaseKSpacing CheckpointPhase = "kspacing"
	PhaseComplete CheckpointPhase = "complete"
	PhaseFailed   CheckpointPhase = "failed"
)

// Checkpoint represents the saved state of a sweep session
type Checkpoint struct {
	// Session identification
	SessionID   string    `json:"session_id"` // sweep id, reused on resume
	CreatedAt   time.Time `json:"created_at"`
	LastSavedAt time.Time `json:"last_saved_at"`

	CurrentPhase CheckpointPhase `json:"current_phase"`

	// Stage 1: once complete the selected cutoff is fixed for stage 2
	CutoffComplete bool          `json:"cutoff_complete"`
	CutoffStage    *StageResult  `json:"cutoff_stage,omitempty"`
	CutoffTrials   []TrialRecord `json:"cutoff_trials,omitempty"`

	// Stage 2
	KSpacingComplete bool         `json:"kspacing_complete"`
	KSpacingStage    *StageResult `json:"kspacing_stage,omitempty"`

	// Trials that reached a terminal state, by label (informational; stages rerun whole)
	FinishedTrials map[TrialLabel]TrialStatus `json:"finished_trials"`

	FailedStage Stage      `json:"failed_stage,omitempty"`
	FailedLabel TrialLabel `json:"failed_label,omitempty"`

	Stats SweepStats `json:"stats"`

	// Hash of the sweep inputs, so a resume against a different config is refused
	ConfigHash string `json:"config_hash"`
}
