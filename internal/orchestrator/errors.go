package orchestrator

import (
	"errors"
	"fmt"

	"github.com/lamim/inqsweep/internal/engine"
	"github.com/lamim/inqsweep/pkg/models"
)

// ErrNoTrials means a stage had nothing to submit. It is always reported
// together with selector.ErrNoCandidates.
var ErrNoTrials = errors.New("no trials to run")

// StageFailure reports the first trial, in submission order, that failed a stage.
type StageFailure struct {
	Stage  models.Stage
	Label  models.TrialLabel
	Reason string
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s stage failed: trial %s: %s", e.Stage, e.Label, e.Reason)
}

// ExitCode is the engine-level code surfaced for any failed stage.
func (e *StageFailure) ExitCode() engine.ExitCode {
	return engine.CalculationFailed
}

// AsStageFailure unwraps err to a *StageFailure.
func AsStageFailure(err error) (*StageFailure, bool) {
	var sf *StageFailure
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}
