package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lamim/inqsweep/internal/engine"
	"github.com/lamim/inqsweep/internal/metrics"
)

// RetryRunner resubmits failed trials to an inner runner. Input errors
// (exit codes 201 and 202) are never retried since they fail identically.
type RetryRunner struct {
	inner      Runner
	maxRetries int
	delay      time.Duration
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// NewRetryRunner wraps inner. maxRetries counts attempts after the first.
func NewRetryRunner(inner Runner, maxRetries int, delay time.Duration, logger *slog.Logger, collector *metrics.Collector) *RetryRunner {
	return &RetryRunner{
		inner:      inner,
		maxRetries: maxRetries,
		delay:      delay,
		logger:     logger,
		metrics:    collector,
	}
}

func (r *RetryRunner) Submit(ctx context.Context, trial Trial) (<-chan Outcome, error) {
	first, err := r.inner.Submit(ctx, trial)
	if err != nil {
		return nil, err
	}

	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		out <- r.follow(ctx, trial, first)
	}()
	return out, nil
}

func (r *RetryRunner) follow(ctx context.Context, trial Trial, ch <-chan Outcome) Outcome {
	for attempt := 0; ; attempt++ {
		var outcome Outcome
		select {
		case o, ok := <-ch:
			if !ok {
				o = Outcome{Err: fmt.Errorf("runner closed trial %s without an outcome", trial.Label)}
			}
			outcome = o
		case <-ctx.Done():
			return Outcome{Err: ctx.Err()}
		}

		if outcome.Err == nil || attempt >= r.maxRetries || !retryable(outcome.Err) {
			return outcome
		}

		r.logger.Warn("Retrying trial",
			"label", trial.Label,
			"attempt", attempt+1,
			"max_retries", r.maxRetries,
			"error", outcome.Err)
		r.metrics.IncrementRetries()

		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return Outcome{Err: ctx.Err()}
		}

		next, err := r.inner.Submit(ctx, trial)
		if err != nil {
			return Outcome{Err: fmt.Errorf("resubmit %s: %w", trial.Label, err)}
		}
		ch = next
	}
}

func retryable(err error) bool {
	code, ok := engine.CodeOf(err)
	if !ok {
		return true
	}
	switch code {
	case engine.IncorrectInputParameter, engine.NoRunTypeSpecified, engine.OutputParsingFailed:
		return false
	}
	return true
}
