package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lamim/inqsweep/internal/checkpoint"
	"github.com/lamim/inqsweep/internal/config"
	"github.com/lamim/inqsweep/internal/metrics"
	"github.com/lamim/inqsweep/internal/orchestrator"
	"github.com/lamim/inqsweep/internal/runner"
	"github.com/lamim/inqsweep/internal/status"
	"github.com/lamim/inqsweep/internal/writer"
	"github.com/lamim/inqsweep/pkg/models"
)

const shutdownTimeout = 5 * time.Second

func runSweep(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if statusAddr != "" {
		cfg.Status.Addr = statusAddr
		if err := cfg.ValidateInputs(); err != nil {
			return fmt.Errorf("invalid --status-addr: %w", err)
		}
	}

	// Bind before any session state exists so a busy address fails fast
	var statusLn net.Listener
	if cfg.Status.Addr != "" {
		statusLn, err = status.Listen(cfg.Status.Addr)
		if err != nil {
			return err
		}
		defer statusLn.Close()
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	resumeMode := cfg.Sweep.ResumeFromSession != ""

	sessionMgr, err := writer.NewSessionManager(slog.Default(), cfg.Sweep.OutputDir, cfg.Sweep.ResumeFromSession)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	logger, logFile, err := writer.SetupLogger(sessionMgr, logLevel, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		_ = logFile.Sync()
		_ = logFile.Close()
	}()
	sessionMgr.SetLogger(logger)

	logger.Info("inqsweep starting",
		"version", Version,
		"config", configPath,
		"session_dir", sessionMgr.GetSessionDir(),
		"resume_mode", resumeMode)

	if !resumeMode {
		if err := sessionMgr.BackupConfig(configPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, secrets, sessionMgr, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var checkpointMgr *checkpoint.Manager
	if resumeMode {
		existing, err := checkpoint.Load(ctx, store, logger)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if err := checkpoint.ValidateCheckpoint(existing, cfg); err != nil {
			return fmt.Errorf("checkpoint validation failed: %w", err)
		}
		checkpointMgr = checkpoint.NewManagerFromCheckpoint(store, existing, cfg, logger)
		logger.Info("Loaded checkpoint",
			"state", checkpoint.Describe(existing),
			"finished_trials", checkpoint.GetFinishedCount(existing))
	} else {
		checkpointMgr = checkpoint.NewManager(store, cfg, logger)
	}
	defer func() {
		if err := checkpointMgr.Close(); err != nil {
			logger.Error("Failed to close checkpoint manager", "error", err)
		}
	}()

	collector := metrics.NewCollector(logger)

	workDir := cfg.Runner.WorkDir
	if workDir == "" {
		workDir = filepath.Join(sessionMgr.GetSessionDir(), "trials")
	}
	local := runner.NewLocalRunner(runner.LocalConfig{
		Shell:             cfg.Runner.Shell,
		Launcher:          cfg.Launcher(),
		WorkDir:           workDir,
		Concurrency:       cfg.Sweep.Concurrency,
		LaunchesPerMinute: cfg.Runner.LaunchesPerMinute,
		Timeout:           cfg.Timeout(),
		CleanWorkdir:      cfg.Sweep.CleanWorkdir,
	}, logger, collector)
	defer local.Wait()

	var trialRunner runner.Runner = local
	if cfg.Runner.MaxRetries > 0 {
		trialRunner = runner.NewRetryRunner(local, cfg.Runner.MaxRetries, cfg.RetryDelay(), logger, collector)
	}

	trialWriter, err := writer.NewTrialWriter(sessionMgr, logger)
	if err != nil {
		return fmt.Errorf("failed to create trial writer: %w", err)
	}
	defer func() {
		if err := trialWriter.Close(); err != nil {
			logger.Error("Failed to close trial writer", "error", err)
		}
	}()

	tracker := status.NewTracker()
	orch := orchestrator.New(trialRunner,
		orchestrator.WithLogger(logger),
		orchestrator.WithCheckpoint(checkpointMgr, resumeMode),
		orchestrator.WithMetrics(collector),
		orchestrator.WithRecorder(trialWriter),
		orchestrator.WithPublisher(tracker),
	)

	// The status server lives exactly as long as the sweep
	g, gctx := errgroup.WithContext(ctx)
	sweepCtx, sweepDone := context.WithCancel(gctx)
	defer sweepDone()

	if statusLn != nil {
		srv := status.NewServer(cfg.Status.Addr, tracker, logger)
		g.Go(func() error { return srv.Serve(statusLn) })
		g.Go(func() error {
			<-sweepCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var (
		report *models.SweepReport
		runErr error
	)
	g.Go(func() error {
		defer sweepDone()
		report, runErr = orch.Run(sweepCtx, cfg.Structure, cfg.EnergySpec(), cfg.KSpacingSpec(), cfg.Parameters)
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Status server failed", "error", err)
		// The server's failure cancelled the sweep; report it, not the cancellation
		if runErr == nil || (errors.Is(runErr, context.Canceled) && ctx.Err() == nil) {
			runErr = err
		}
	}

	summary := writer.Summary{
		SweepID: checkpointMgr.SessionID(),
		Session: sessionMgr.GetSessionName(),
		Stats:   *orch.GetStats(),
	}
	if report != nil {
		summary.SweepID = report.SweepID
		summary.Suggested = &report.Suggested
		summary.Stages = report.Stages
	}

	switch {
	case runErr == nil:
		summary.Outcome = writer.OutcomeComplete
	case errors.Is(runErr, context.Canceled):
		summary.Outcome = writer.OutcomeCancelled
		summary.Failure = runErr.Error()
	default:
		summary.Outcome = writer.OutcomeFailed
		summary.Failure = runErr.Error()
		if sf, ok := orchestrator.AsStageFailure(runErr); ok {
			summary.ExitCode = sf.ExitCode().Status
		}
	}
	if err := writer.WriteSummary(sessionMgr, summary); err != nil {
		logger.Error("Failed to write summary", "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Sweep interrupted, resume from checkpoint",
				"session_dir", sessionMgr.GetSessionName(),
				"resume_command", fmt.Sprintf("Set resume_from_session = %q in config.toml", sessionMgr.GetSessionName()))
			return fmt.Errorf("sweep interrupted (resume by setting resume_from_session in config)")
		}
		if sf, ok := orchestrator.AsStageFailure(runErr); ok {
			return fmt.Errorf("%s: %w", sf.ExitCode(), runErr)
		}
		return fmt.Errorf("sweep failed: %w", runErr)
	}

	stats := orch.GetStats()
	logger.Info("Sweep complete",
		"submitted", stats.Submitted,
		"successful", stats.SuccessCount,
		"skipped", stats.SkippedCount,
		"records", trialWriter.Count(),
		"duration", stats.TotalDuration,
		"session_dir", sessionMgr.GetSessionDir())

	fmt.Println()
	fmt.Println("Suggested parameters:")
	fmt.Printf("  energy cutoff:  %s\n", report.Suggested.EnergyCutoff)
	fmt.Printf("  k-spacing:      %s\n", report.Suggested.KSpacing)
	return nil
}

// openStore picks the checkpoint backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, secrets *config.Secrets, sessionMgr *writer.SessionManager, logger *slog.Logger) (checkpoint.Store, func(), error) {
	if cfg.Checkpoint.Backend != config.BackendRedis {
		return checkpoint.NewFileStore(sessionMgr.GetSessionDir()), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Checkpoint.RedisAddr,
		Password: secrets.RedisPassword,
		DB:       cfg.Checkpoint.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Checkpoint.RedisAddr, err)
	}

	store := checkpoint.NewRedisStore(client, sessionMgr.GetSessionName(), cfg.TTL())
	logger.Info("Using redis checkpoint store", "location", store.Location(), "ttl", cfg.TTL())

	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", "error", err)
		}
	}, nil
}

// loadEnvFile sets KEY=VALUE pairs from path, skipping blank lines and comments
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		if err := os.Setenv(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}
