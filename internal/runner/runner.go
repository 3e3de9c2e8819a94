// Package runner executes trials. The orchestrator only sees the Runner
// interface; how and where a trial runs is decided here.
package runner

import (
	"context"
	"fmt"

	"github.com/lamim/inqsweep/internal/params"
	"github.com/lamim/inqsweep/pkg/models"
)

// Trial is a fully resolved unit of work.
type Trial struct {
	SweepID    string
	Stage      models.Stage
	Label      models.TrialLabel
	Structure  models.Structure
	Parameters params.Parameters
}

// Outcome is the terminal report of a trial: a result, or Err describing the failure.
type Outcome struct {
	Result *models.TrialResult
	Err    error
}

// Runner starts trials asynchronously. A nil error from Submit acknowledges
// the submission; exactly one Outcome is then delivered on the channel.
type Runner interface {
	Submit(ctx context.Context, trial Trial) (<-chan Outcome, error)
}

// FuncRunner adapts a blocking function into a Runner. Each call runs in its own goroutine.
type FuncRunner func(ctx context.Context, trial Trial) (*models.TrialResult, error)

func (f FuncRunner) Submit(ctx context.Context, trial Trial) (<-chan Outcome, error) {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- Outcome{Err: fmt.Errorf("trial %s panicked: %v", trial.Label, r)}
			}
		}()
		result, err := f(ctx, trial)
		out <- Outcome{Result: result, Err: err}
	}()
	return out, nil
}
