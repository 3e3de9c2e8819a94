package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lamim/inqsweep/internal/config"
	"github.com/lamim/inqsweep/internal/engine"
	"github.com/lamim/inqsweep/internal/kmesh"
	"github.com/lamim/inqsweep/internal/params"
	"github.com/lamim/inqsweep/pkg/models"
)

// printMeshes is a dry run of the stage-2 dedup
func printMeshes(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	entries, err := kmesh.Entries(cfg.Structure.Cell, cfg.KSpacingSpec())
	if err != nil {
		return fmt.Errorf("failed to derive meshes: %w", err)
	}

	first := make(map[models.KMesh]models.Quantity, len(entries))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KSPACING\tMESH\tTRIAL")
	for _, e := range entries {
		trial := "run"
		if prev, ok := first[e.Mesh]; ok {
			trial = fmt.Sprintf("skip (same mesh as %s)", prev)
		} else {
			first[e.Mesh] = e.Spacing
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Spacing, e.Mesh, trial)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	unique, skipped := kmesh.Dedup(entries)
	fmt.Printf("\n%d trial(s), %d spacing(s) skipped\n", len(unique), len(skipped))
	return nil
}

// printScript renders the script the runner would execute for one trial
func printScript(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cutoff := cfg.EnergySpec()[0]
	if cutoffFlag != "" {
		q, err := models.ParseQuantity(cutoffFlag, "Ha")
		if err != nil {
			return err
		}
		if err := params.ValidateCutoff(*params.Q(q)); err != nil {
			return err
		}
		cutoff = q
	}
	p := cfg.Parameters.WithCutoff(cutoff)

	if kspacing != 0 {
		mesh, err := kmesh.Derive(cfg.Structure.Cell, kspacing)
		if err != nil {
			return fmt.Errorf("failed to derive mesh: %w", err)
		}
		p = p.WithGrid(mesh)
	}

	script, err := engine.RenderScript(cfg.Structure, p)
	if err != nil {
		return err
	}
	fmt.Print(script)
	if !strings.HasSuffix(script, "\n") {
		fmt.Println()
	}
	return nil
}
