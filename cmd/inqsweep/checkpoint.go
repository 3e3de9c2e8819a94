package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lamim/inqsweep/internal/checkpoint"
	"github.com/lamim/inqsweep/internal/config"
	"github.com/lamim/inqsweep/internal/writer"
	"github.com/lamim/inqsweep/pkg/models"
)

const listParallelism = 8

type sessionInfo struct {
	name string
	cp   *models.Checkpoint
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedisClient() (*redis.Client, error) {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	return redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: secrets.RedisPassword,
	}), nil
}

// listCheckpoints lists all available checkpoint sessions
func listCheckpoints(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	var (
		names []string
		open  func(name string) checkpoint.Store
	)

	if redisAddr != "" {
		client, err := newRedisClient()
		if err != nil {
			return err
		}
		defer client.Close()

		sessions, err := checkpoint.ListRedisSessions(ctx, client)
		if err != nil {
			return err
		}
		names = sessions
		open = func(name string) checkpoint.Store { return checkpoint.NewRedisStore(client, name, 0) }
	} else {
		entries, err := os.ReadDir(outputDir)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No output directory found. Run a sweep first.")
				return nil
			}
			return fmt.Errorf("failed to read output directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), "session_") {
				names = append(names, entry.Name())
			}
		}
		open = func(name string) checkpoint.Store {
			return checkpoint.NewFileStore(filepath.Join(outputDir, name))
		}
	}

	if len(names) == 0 {
		fmt.Println("No session directories found.")
		return nil
	}
	sort.Strings(names)

	sessions := make([]sessionInfo, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listParallelism)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			sessions[i].name = name
			cp, err := open(name).Load(gctx)
			switch {
			case err == nil:
				sessions[i].cp = cp
			case errors.Is(err, checkpoint.ErrNotFound):
			default:
				// An unreadable checkpoint is listed, not fatal
				sessions[i].cp = &models.Checkpoint{CurrentPhase: models.CheckpointPhase("unreadable")}
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Println("Available sessions:")
	fmt.Println()
	fmt.Printf("%-35s %-12s %-10s %s\n", "SESSION", "CHECKPOINT", "TRIALS", "STATE")
	fmt.Println(strings.Repeat("-", 90))

	for _, s := range sessions {
		if s.cp == nil {
			fmt.Printf("%-35s %-12s %-10s %s\n", s.name, "No", "-", "N/A")
			continue
		}
		fmt.Printf("%-35s %-12s %-10d %s\n", s.name, "Yes", checkpoint.GetFinishedCount(s.cp), checkpoint.Describe(s.cp))
	}

	return nil
}

// openSessionStore validates sessionDir and opens its checkpoint store on
// the selected backend. The returned func releases it.
func openSessionStore(sessionDir string) (checkpoint.Store, func(), error) {
	if err := writer.ValidateSessionPath(outputDir, sessionDir); err != nil {
		return nil, nil, fmt.Errorf("invalid session directory: %w", err)
	}

	if redisAddr != "" {
		client, err := newRedisClient()
		if err != nil {
			return nil, nil, err
		}
		return checkpoint.NewRedisStore(client, sessionDir, 0), func() { _ = client.Close() }, nil
	}

	fullPath := filepath.Join(outputDir, sessionDir)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("session directory not found: %s", sessionDir)
	}
	return checkpoint.NewFileStore(fullPath), func() {}, nil
}

// inspectCheckpoint displays detailed information about a checkpoint
func inspectCheckpoint(cmd *cobra.Command, args []string) error {
	sessionDir := args[0]

	store, release, err := openSessionStore(sessionDir)
	if err != nil {
		return err
	}
	defer release()

	cp, err := checkpoint.Load(cmd.Context(), store, quietLogger())
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	fmt.Printf("Checkpoint Information for: %s\n", sessionDir)
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Session ID:          %s\n", cp.SessionID)
	fmt.Printf("Location:            %s\n", store.Location())
	fmt.Printf("Created At:          %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last Saved At:       %s\n", cp.LastSavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Current Phase:       %s\n", cp.CurrentPhase)
	fmt.Printf("State:               %s\n", checkpoint.Describe(cp))
	fmt.Printf("Config Hash:         %s\n", cp.ConfigHash)
	fmt.Println()

	fmt.Println("Stage Progress:")
	fmt.Printf("  Cutoff:            %s", statusStr(cp.CutoffComplete))
	if cp.CutoffStage != nil && cp.CutoffStage.Selected != nil {
		fmt.Printf(" (selected %s from %d trials)", cp.CutoffStage.Selected, len(cp.CutoffStage.Handles))
	}
	fmt.Println()
	fmt.Printf("  K-spacing:         %s", statusStr(cp.KSpacingComplete))
	if cp.KSpacingStage != nil && cp.KSpacingStage.Selected != nil {
		fmt.Printf(" (selected %s, %d skipped)", cp.KSpacingStage.Selected, len(cp.KSpacingStage.Skipped))
	}
	fmt.Println()
	fmt.Printf("  Finished trials:   %d (%d failed)\n", checkpoint.GetFinishedCount(cp), checkpoint.GetFailedCount(cp))
	fmt.Println()

	fmt.Println("Statistics:")
	fmt.Printf("  Submitted:         %d\n", cp.Stats.Submitted)
	fmt.Printf("  Successful:        %d\n", cp.Stats.SuccessCount)
	fmt.Printf("  Failed:            %d\n", cp.Stats.FailureCount)
	fmt.Printf("  Skipped:           %d\n", cp.Stats.SkippedCount)
	fmt.Printf("  Total Duration:    %s\n", cp.Stats.TotalDuration)
	if cp.Stats.SuccessCount > 0 {
		fmt.Printf("  Average Runtime:   %s\n", cp.Stats.AverageRuntime)
	}
	fmt.Println()

	summary, err := writer.ReadSummary(filepath.Join(outputDir, sessionDir, writer.SummaryFilename))
	switch {
	case err == nil:
		fmt.Println("Summary:")
		fmt.Printf("  Outcome:           %s\n", summary.Outcome)
		if summary.Suggested != nil {
			fmt.Printf("  Energy cutoff:     %s\n", summary.Suggested.EnergyCutoff)
			fmt.Printf("  K-spacing:         %s\n", summary.Suggested.KSpacing)
		}
		if summary.Failure != "" {
			fmt.Printf("  Failure:           %s\n", summary.Failure)
		}
		fmt.Println()
	case !os.IsNotExist(err):
		fmt.Printf("Summary unreadable: %v\n\n", err)
	}

	if cp.CurrentPhase != models.PhaseComplete {
		fmt.Println("To resume this session:")
		fmt.Printf("  Set resume_from_session = \"%s\" in config.toml\n", sessionDir)
	} else {
		fmt.Println("This session is complete.")
	}

	return nil
}

// deleteCheckpoint removes a session's stored checkpoint. Results and logs
// in the session directory are kept.
func deleteCheckpoint(cmd *cobra.Command, args []string) error {
	sessionDir := args[0]

	store, release, err := openSessionStore(sessionDir)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := store.Delete(ctx); err != nil {
		return err
	}
	fmt.Printf("Deleted checkpoint %s\n", store.Location())
	return nil
}

func statusStr(complete bool) string {
	if complete {
		return "Complete"
	}
	return "Pending"
}
