// Package orchestrator runs the two-stage convergence sweep: energy cutoff
// first, then k-point spacing at the selected cutoff.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/inqsweep/internal/checkpoint"
	"github.com/lamim/inqsweep/internal/kmesh"
	"github.com/lamim/inqsweep/internal/metrics"
	"github.com/lamim/inqsweep/internal/params"
	"github.com/lamim/inqsweep/internal/runner"
	"github.com/lamim/inqsweep/pkg/models"
)

// MeshDeriver maps a spacing to a k-point mesh for the given cell.
type MeshDeriver func(lattice models.Lattice, spacing float64) (models.KMesh, error)

// Recorder receives one record per terminal trial.
type Recorder interface {
	WriteRecord(record models.TrialRecord) error
}

// Publisher receives sweep snapshots as trials progress.
type Publisher interface {
	Publish(snapshot models.SweepSnapshot)
}

// Orchestrator manages the convergence sweep
type Orchestrator struct {
	runner        runner.Runner
	logger        *slog.Logger
	checkpointMgr *checkpoint.Manager
	resumeMode    bool
	metrics       *metrics.Collector
	recorder      Recorder
	publisher     Publisher
	deriveMesh    MeshDeriver
	sweepID       string
	showProgress  bool

	stats   *models.SweepStats
	records []models.TrialRecord
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger (default: slog.Default())
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithCheckpoint records progress through mgr. With resume set, a cutoff
// stage already recorded by mgr is not rerun.
func WithCheckpoint(mgr *checkpoint.Manager, resume bool) Option {
	return func(o *Orchestrator) {
		o.checkpointMgr = mgr
		o.resumeMode = resume
	}
}

// WithMetrics records trial and stage metrics
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithRecorder streams trial records as they finish
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPublisher publishes snapshots for status readers
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMeshDeriver replaces kmesh.Derive
func WithMeshDeriver(d MeshDeriver) Option {
	return func(o *Orchestrator) { o.deriveMesh = d }
}

// WithSweepID fixes the sweep id instead of generating one
func WithSweepID(id string) Option {
	return func(o *Orchestrator) { o.sweepID = id }
}

// WithProgress toggles the per-stage progress bar
func WithProgress(show bool) Option {
	return func(o *Orchestrator) { o.showProgress = show }
}

// New creates a new orchestrator
func New(r runner.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:       r,
		logger:       slog.Default(),
		deriveMesh:   kmesh.Derive,
		showProgress: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes both stages and returns the suggested parameters.
// The sweep lists and baseline are copied; callers may reuse them.
func (o *Orchestrator) Run(
	ctx context.Context,
	structure models.Structure,
	energySpec models.SweepSpec,
	kspacingSpec models.SweepSpec,
	baseline params.Parameters,
) (*models.SweepReport, error) {
	energySpec = energySpec.Clone()
	kspacingSpec = kspacingSpec.Clone()
	baseline = baseline.Clone()

	o.stats = &models.SweepStats{StartTime: time.Now()}
	o.records = nil

	var resumed *models.StageResult
	if o.checkpointMgr != nil {
		cp := o.checkpointMgr.GetCheckpoint()
		if o.sweepID == "" {
			o.sweepID = cp.SessionID
		}
		if o.resumeMode {
			// Keep counters from the previous run
			o.stats = &cp.Stats
			o.stats.StartTime = time.Now()
			if stage, records, ok := checkpoint.CompletedCutoff(cp); ok {
				resumed = stage
				o.records = append(o.records, records...)
			}
		}
	}
	if o.sweepID == "" {
		o.sweepID = uuid.New().String()
	}

	logger := o.logger.With("sweep_id", o.sweepID)
	logger.Info("Starting convergence sweep",
		"energy_cutoffs", len(energySpec),
		"kspacings", len(kspacingSpec),
		"resume_mode", o.resumeMode)

	// Stage 1: energy cutoff
	var cutoffStage models.StageResult
	if resumed != nil {
		cutoffStage = *resumed
		logger.Info("Resuming with recorded cutoff, skipping stage 1", "cutoff", cutoffStage.Selected)
	} else {
		plan, err := o.planCutoff(energySpec, baseline)
		if err != nil {
			return nil, err
		}
		cutoffStage, err = o.runStage(ctx, logger, models.StageCutoff, structure, plan, nil)
		if err != nil {
			return nil, o.fail(err)
		}
		if o.checkpointMgr != nil {
			if err := o.checkpointMgr.MarkCutoffComplete(cutoffStage, o.records, o.stats); err != nil {
				logger.Warn("Failed to checkpoint cutoff stage", "error", err)
			}
		}
	}
	cutoff := *cutoffStage.Selected
	logger.Info("Cutoff stage complete", "selected_cutoff", cutoff.String())

	// Stage 2: k-point spacing at the selected cutoff
	plan, skipped, err := o.planKSpacing(logger, structure, kspacingSpec, baseline.WithCutoff(cutoff))
	if err != nil {
		return nil, err
	}
	kspacingStage, err := o.runStage(ctx, logger, models.StageKSpacing, structure, plan, skipped)
	if err != nil {
		return nil, o.fail(err)
	}
	kspacing := *kspacingStage.Selected

	o.finishStats()
	if o.checkpointMgr != nil {
		if err := o.checkpointMgr.MarkComplete(kspacingStage, o.stats); err != nil {
			logger.Warn("Failed to checkpoint completion", "error", err)
		}
	}

	report := &models.SweepReport{
		SweepID: o.sweepID,
		Suggested: models.SuggestedParameters{
			EnergyCutoff: cutoff,
			KSpacing:     kspacing,
		},
		Stages: []models.StageResult{cutoffStage, kspacingStage},
		Trials: append([]models.TrialRecord(nil), o.records...),
	}

	o.publish(models.SweepSnapshot{
		Phase:          models.PhaseComplete,
		Stage:          models.StageKSpacing,
		Trials:         kspacingStage.Handles,
		SelectedCutoff: &cutoff,
		Suggested:      &report.Suggested,
	})

	logger.Info("Convergence sweep complete",
		"energy_cutoff", cutoff.String(),
		"kspacing", kspacing.String(),
		"trials", o.stats.Submitted,
		"skipped", o.stats.SkippedCount,
		"duration", o.stats.TotalDuration)

	return report, nil
}

// GetStats returns the counters of the last run
func (o *Orchestrator) GetStats() *models.SweepStats {
	return o.stats
}

// fail records a stage failure in the checkpoint before returning err
func (o *Orchestrator) fail(err error) error {
	o.finishStats()
	if sf, ok := AsStageFailure(err); ok {
		if o.checkpointMgr != nil {
			if cerr := o.checkpointMgr.MarkFailed(sf.Stage, sf.Label, o.stats); cerr != nil {
				o.logger.Warn("Failed to checkpoint stage failure", "error", cerr)
			}
		}
		o.publish(models.SweepSnapshot{
			Phase:   models.PhaseFailed,
			Stage:   sf.Stage,
			Failure: sf.Error(),
		})
	}
	return err
}

func (o *Orchestrator) finishStats() {
	o.stats.EndTime = time.Now()
	o.stats.TotalDuration = o.stats.EndTime.Sub(o.stats.StartTime)
}

func (o *Orchestrator) publish(s models.SweepSnapshot) {
	if o.publisher == nil {
		return
	}
	s.SweepID = o.sweepID
	s.Stats = *o.stats
	s.UpdatedAt = time.Now()
	o.publisher.Publish(s)
}

// plannedTrial is a trial resolved but not yet submitted
type plannedTrial struct {
	label  models.TrialLabel
	value  models.Quantity
	mesh   *models.KMesh
	params params.Parameters
}

func (o *Orchestrator) planCutoff(energySpec models.SweepSpec, baseline params.Parameters) ([]plannedTrial, error) {
	plan := make([]plannedTrial, 0, len(energySpec))
	seen := make(map[models.TrialLabel]bool, len(energySpec))
	for _, cutoff := range energySpec {
		label := cutoffLabel(cutoff)
		if seen[label] {
			return nil, fmt.Errorf("cutoff stage: duplicate trial label %s", label)
		}
		seen[label] = true
		plan = append(plan, plannedTrial{
			label:  label,
			value:  cutoff,
			params: baseline.WithCutoff(cutoff),
		})
	}
	return plan, nil
}

// planKSpacing derives a mesh per spacing and drops spacings whose mesh was
// already planned; the first spacing producing a mesh wins.
func (o *Orchestrator) planKSpacing(
	logger *slog.Logger,
	structure models.Structure,
	kspacingSpec models.SweepSpec,
	base params.Parameters,
) ([]plannedTrial, []models.KMeshEntry, error) {
	entries := make([]models.KMeshEntry, 0, len(kspacingSpec))
	for _, spacing := range kspacingSpec {
		mesh, err := o.deriveMesh(structure.Cell, spacing.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("kspacing stage: derive mesh for %s: %w", spacing, err)
		}
		entries = append(entries, models.KMeshEntry{Spacing: spacing, Mesh: mesh})
	}

	unique, skipped := kmesh.Dedup(entries)
	for _, entry := range skipped {
		logger.Info("Skipping spacing with an already submitted mesh",
			"kspacing", entry.Spacing.String(),
			"mesh", entry.Mesh.String())
		o.metrics.RecordSkipped(models.StageKSpacing.String())
	}
	o.stats.SkippedCount += len(skipped)

	plan := make([]plannedTrial, 0, len(unique))
	seen := make(map[models.TrialLabel]bool, len(unique))
	for _, entry := range unique {
		label := kspacingLabel(entry.Spacing)
		if seen[label] {
			return nil, nil, fmt.Errorf("kspacing stage: duplicate trial label %s", label)
		}
		seen[label] = true
		mesh := entry.Mesh
		plan = append(plan, plannedTrial{
			label:  label,
			value:  entry.Spacing,
			mesh:   &mesh,
			params: base.WithGrid(mesh),
		})
	}
	return plan, skipped, nil
}
