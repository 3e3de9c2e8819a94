package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quantity is a numeric value with a unit, as written by the user.
// Raw keeps the literal so it can be handed to the engine unchanged.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Raw   string  `json:"raw"`
}

// ParseQuantity parses "<number>" or "<number> <unit>". A bare number gets defaultUnit.
func ParseQuantity(s, defaultUnit string) (Quantity, error) {
	raw := strings.TrimSpace(s)
	fields := strings.Fields(raw)
	if len(fields) == 0 || len(fields) > 2 {
		return Quantity{}, fmt.Errorf("invalid quantity %q: expected \"<value>\" or \"<value> <unit>\"", s)
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}

	q := Quantity{Value: value, Unit: defaultUnit, Raw: raw}
	if len(fields) == 2 {
		q.Unit = fields[1]
	}
	return q, nil
}

// NewQuantity builds a quantity from a float; Raw uses the shortest representation.
func NewQuantity(value float64, unit string) Quantity {
	raw := strconv.FormatFloat(value, 'f', -1, 64)
	if unit != "" {
		raw += " " + unit
	}
	return Quantity{Value: value, Unit: unit, Raw: raw}
}

func (q Quantity) String() string {
	if q.Raw != "" {
		return q.Raw
	}
	if q.Unit == "" {
		return strconv.FormatFloat(q.Value, 'f', -1, 64)
	}
	return strconv.FormatFloat(q.Value, 'f', -1, 64) + " " + q.Unit
}

// SweepSpec is the ordered list of values trialled for one parameter.
type SweepSpec []Quantity

// Clone returns a copy so the caller's slice can't change under a running sweep.
func (s SweepSpec) Clone() SweepSpec {
	return append(SweepSpec(nil), s...)
}

// Lattice holds the three cell vectors as rows, in angstrom.
type Lattice [3][3]float64

// Site is one atom in fractional coordinates.
type Site struct {
	Symbol     string     `json:"symbol" toml:"symbol"`
	Fractional [3]float64 `json:"fractional" toml:"fractional"`
}

// Structure is the periodic system under study.
type Structure struct {
	Cell  Lattice `json:"cell" toml:"cell"`
	Sites []Site  `json:"sites" toml:"sites"`
}

// KMesh is a Monkhorst-Pack style grid; every component is positive.
type KMesh [3]int

func (m KMesh) String() string {
	return fmt.Sprintf("%dx%dx%d", m[0], m[1], m[2])
}

// KMeshEntry pairs a spacing with the mesh it derives to.
type KMeshEntry struct {
	Spacing Quantity `json:"spacing"`
	Mesh    KMesh    `json:"mesh"`
}

// Stage identifies a sweep stage.
type Stage int

const (
	StageCutoff   Stage = 1
	StageKSpacing Stage = 2
)

func (s Stage) String() string {
	switch s {
	case StageCutoff:
		return "cutoff"
	case StageKSpacing:
		return "kspacing"
	default:
		return fmt.Sprintf("stage-%d", int(s))
	}
}

// TrialLabel identifies one trial inside a stage.
type TrialLabel string

// TrialStatus is the lifecycle state of a trial.
type TrialStatus string

const (
	TrialPending   TrialStatus = "pending"
	TrialRunning   TrialStatus = "running"
	TrialSucceeded TrialStatus = "succeeded"
	TrialFailed    TrialStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s TrialStatus) Terminal() bool {
	return s == TrialSucceeded || s == TrialFailed
}

// TrialResult is the parsed output of a successful trial.
// Quantities maps a category ("energy") to named scalars ("total"), energies in eV.
type TrialResult struct {
	Quantities map[string]map[string]float64 `json:"quantities"`
	Forces     [][3]float64                  `json:"forces,omitempty"`
}

// TotalEnergy returns energy.total if the engine reported it.
func (r *TrialResult) TotalEnergy() (float64, bool) {
	if r == nil {
		return 0, false
	}
	energy, ok := r.Quantities["energy"]
	if !ok {
		return 0, false
	}
	total, ok := energy["total"]
	return total, ok
}

// TrialHandle tracks one submitted trial for the lifetime of its stage.
type TrialHandle struct {
	Label         TrialLabel   `json:"label"`
	Stage         Stage        `json:"stage"`
	Value         Quantity     `json:"value"`
	Mesh          *KMesh       `json:"mesh,omitempty"`
	Status        TrialStatus  `json:"status"`
	Result        *TrialResult `json:"result,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	FinishedAt    time.Time    `json:"finished_at"`
}

// StageResult summarises a finished stage. Selected is nil when the stage failed.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Handles  []TrialHandle `json:"handles"`
	Skipped  []KMeshEntry  `json:"skipped,omitempty"`
	Selected *Quantity     `json:"selected,omitempty"`
}

// SuggestedParameters is the final output of a sweep.
type SuggestedParameters struct {
	EnergyCutoff Quantity `json:"energy_cutoff"`
	KSpacing     Quantity `json:"kspacing"`
}

// TrialRecord is one row of the audit table.
type TrialRecord struct {
	SweepID       string      `json:"sweep_id"`
	Stage         string      `json:"stage"`
	Label         TrialLabel  `json:"label"`
	Value         string      `json:"value"`
	Mesh          *KMesh      `json:"mesh,omitempty"`
	Status        TrialStatus `json:"status"`
	TotalEnergyEV *float64    `json:"total_energy_ev,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	Duration      string      `json:"duration"`
}

// SweepReport is returned by a successful sweep.
type SweepReport struct {
	SweepID   string              `json:"sweep_id"`
	Suggested SuggestedParameters `json:"suggested"`
	Stages    []StageResult       `json:"stages"`
	Trials    []TrialRecord       `json:"trials"`
}

// SweepStats tracks counters for a sweep session.
type SweepStats struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Submitted      int           `json:"submitted"`
	SuccessCount   int           `json:"success_count"`
	FailureCount   int           `json:"failure_count"`
	SkippedCount   int           `json:"skipped_count"`
	TotalDuration  time.Duration `json:"total_duration"`
	AverageRuntime time.Duration `json:"average_runtime"`
}

// SweepSnapshot is a point-in-time view of a running sweep, published for status readers.
type SweepSnapshot struct {
	SweepID        string               `json:"sweep_id"`
	Phase          CheckpointPhase      `json:"phase"`
	Stage          Stage                `json:"stage"`
	Trials         []TrialHandle        `json:"trials"`
	SelectedCutoff *Quantity            `json:"selected_cutoff,omitempty"`
	Suggested      *SuggestedParameters `json:"suggested,omitempty"`
	Failure        string               `json:"failure,omitempty"`
	Stats          SweepStats           `json:"stats"`
	UpdatedAt      time.Time            `json:"updated_at"`
}
