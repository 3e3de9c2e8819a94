package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/lamim/inqsweep/internal/engine"
	"github.com/lamim/inqsweep/internal/metrics"
	"github.com/lamim/inqsweep/pkg/models"
)

// LocalConfig configures a LocalRunner.
type LocalConfig struct {
	// Shell interprets the rendered script, e.g. "bash".
	Shell string
	// Launcher optionally prefixes the shell, e.g. ["srun", "-n1"].
	Launcher []string
	// WorkDir is the root under which each trial gets <sweep>/<label>/.
	WorkDir           string
	Concurrency       int
	LaunchesPerMinute int
	// Timeout bounds a single trial; zero means no limit.
	Timeout time.Duration
	// CleanWorkdir removes the trial directory after its output is parsed.
	CleanWorkdir bool
	// Env is appended to the process environment of every trial.
	Env []string
}

// LocalRunner runs each trial as a child process on this host.
type LocalRunner struct {
	cfg     LocalConfig
	slots   chan struct{}
	limiter *launchLimiter
	logger  *slog.Logger
	metrics *metrics.Collector
	wg      sync.WaitGroup
}

// NewLocalRunner creates a runner. Concurrency below one is treated as one.
func NewLocalRunner(cfg LocalConfig, logger *slog.Logger, collector *metrics.Collector) *LocalRunner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	return &LocalRunner{
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.Concurrency),
		limiter: newLaunchLimiter(cfg.LaunchesPerMinute, logger),
		logger:  logger,
		metrics: collector,
	}
}

// TrialDir returns the working directory used for a trial.
func (r *LocalRunner) TrialDir(trial Trial) string {
	return filepath.Join(r.cfg.WorkDir, trial.SweepID, string(trial.Label))
}

// Submit writes the trial script and starts it in the background.
// Rendering and filesystem errors are returned synchronously.
func (r *LocalRunner) Submit(ctx context.Context, trial Trial) (<-chan Outcome, error) {
	script, err := engine.RenderScript(trial.Structure, trial.Parameters)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", trial.Label, err)
	}

	dir := r.TrialDir(trial)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trial directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, engine.InputFilename), []byte(script), 0644); err != nil {
		return nil, fmt.Errorf("failed to write input script: %w", err)
	}

	out := make(chan Outcome, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)
		out <- r.execute(ctx, dir, trial)
	}()

	return out, nil
}

// Wait blocks until every submitted trial has delivered its outcome.
func (r *LocalRunner) Wait() {
	r.wg.Wait()
}

func (r *LocalRunner) execute(ctx context.Context, dir string, trial Trial) Outcome {
	waitStart := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return Outcome{Err: fmt.Errorf("launch limiter: %w", err)}
	}
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	}
	defer func() { <-r.slots }()
	r.metrics.RecordLaunchWait(time.Since(waitStart))

	runErr := r.run(ctx, dir)

	result, err := r.collect(dir, runErr)
	if err != nil {
		r.logger.Warn("Trial failed",
			"label", trial.Label,
			"dir", dir,
			"error", err)
		return Outcome{Err: err}
	}

	if r.cfg.CleanWorkdir {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("Failed to clean trial directory", "dir", dir, "error", err)
		}
	}
	return Outcome{Result: result}
}

func (r *LocalRunner) run(ctx context.Context, dir string) error {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	stdout, err := os.Create(filepath.Join(dir, engine.OutputFilename))
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(filepath.Join(dir, engine.ErrorFilename))
	if err != nil {
		return fmt.Errorf("failed to create error file: %w", err)
	}
	defer stderr.Close()

	argv := append(append([]string{}, r.cfg.Launcher...), r.cfg.Shell, engine.InputFilename)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), r.cfg.Env...)

	return cmd.Run()
}

// collect reads the output file and maps problems onto engine exit codes.
func (r *LocalRunner) collect(dir string, runErr error) (*models.TrialResult, error) {
	data, err := os.ReadFile(filepath.Join(dir, engine.OutputFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.Errorf(engine.MissingOutputFiles, "%s not found in %s", engine.OutputFilename, dir)
		}
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	output := string(data)
	if !engine.IsComplete(output) {
		if runErr != nil {
			return nil, &engine.CodeError{Code: engine.OutputStdoutIncomplete, Err: runErr}
		}
		return nil, engine.Errorf(engine.OutputStdoutIncomplete, "last line is not %q", engine.Sentinel)
	}
	if runErr != nil {
		return nil, &engine.CodeError{Code: engine.CalculationFailed, Err: runErr}
	}

	return engine.ParseOutput(output)
}
