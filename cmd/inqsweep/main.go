package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	statusAddr string
	outputDir  string
	redisAddr  string
	cutoffFlag string
	kspacing   float64
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "inqsweep",
		Short: "inqsweep - INQ convergence sweeps",
		Long: `inqsweep finds converged INQ parameters for a structure by sweeping
the plane-wave energy cutoff and then the k-point spacing.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the convergence sweep",
		Long: `Run the two-stage convergence sweep:
1. Run every energy cutoff and select the lowest total energy
2. Run every distinct k-point mesh at that cutoff and select again`,
		RunE: runSweep,
	}
	runCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	runCmd.Flags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	runCmd.Flags().StringVar(&statusAddr, "status-addr", "", "Serve sweep status on this address (overrides [status] addr)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	kmeshCmd := &cobra.Command{
		Use:   "kmesh",
		Short: "Print the k-point mesh of every configured spacing",
		Long:  "Derive meshes for the configured k-spacings and mark spacings that stage 2 would skip",
		RunE:  printMeshes,
	}
	kmeshCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")

	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Print the engine script for the baseline parameters",
		RunE:  printScript,
	}
	scriptCmd.Flags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	scriptCmd.Flags().StringVar(&cutoffFlag, "cutoff", "", `Energy cutoff, e.g. "10 Ha" (default: first configured cutoff)`)
	scriptCmd.Flags().Float64Var(&kspacing, "kspacing", 0, "Sample the mesh derived from this spacing in 1/A")

	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints",
		Long:  "Inspect and delete sweep checkpoints for resuming interrupted sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all available checkpoint sessions",
		RunE:  listCheckpoints,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Inspect a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectCheckpoint,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session-dir>",
		Short: "Delete a stored checkpoint",
		Long:  "Delete a session's checkpoint so it can no longer be resumed. Results and logs are kept.",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteCheckpoint,
	}

	for _, cmd := range []*cobra.Command{listCmd, inspectCmd, deleteCmd} {
		cmd.Flags().StringVar(&outputDir, "output-dir", "output", "Parent directory of session directories")
		cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Read checkpoints from this Redis server instead of the output directory")
	}

	checkpointCmd.AddCommand(listCmd)
	checkpointCmd.AddCommand(inspectCmd)
	checkpointCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(kmeshCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(checkpointCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
