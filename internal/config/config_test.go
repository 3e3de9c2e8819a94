package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lamim/inqsweep/internal/params"
	"github.com/lamim/inqsweep/pkg/models"
)

const sampleConfig = `
[sweep]
energy_cutoffs = ["8 Ha", "10 Ha", "12 Ha"]
kspacings = [0.2, 0.15, 0.1]
concurrency = 2

[structure]
cell = [[0.0, 2.715, 2.715], [2.715, 0.0, 2.715], [2.715, 2.715, 0.0]]

[[structure.sites]]
symbol = "Si"
fractional = [0.0, 0.0, 0.0]

[[structure.sites]]
symbol = "Si"
fractional = [0.25, 0.25, 0.25]

[parameters.electrons]
extra-states = 3

[parameters.theory]
functional = "pbe"

[parameters.results]
ground-state = ["energy"]

[parameters.run]
type = "ground-state"

[runner]
max_retries = 1
timeout_seconds = 3600
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{
		Sweep: SweepConfig{
			EnergyCutoffs: []params.Quantity{
				*params.Q(models.NewQuantity(8, "Ha")),
				*params.Q(models.NewQuantity(10, "Ha")),
			},
			KSpacings: []float64{0.2, 0.1},
		},
		Structure: models.Structure{
			Cell:  models.Lattice{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}},
			Sites: []models.Site{{Symbol: "H"}},
		},
		Parameters: params.Parameters{Run: params.Run{Type: params.RunGroundState}},
	}
	applyDefaults(&cfg)
	return cfg
}

func TestLoad(t *testing.T) {
	cfg, secrets, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if secrets == nil {
		t.Fatal("Load() returned nil secrets")
	}

	wantEnergy := []string{"8 Ha", "10 Ha", "12 Ha"}
	var gotEnergy []string
	for _, q := range cfg.EnergySpec() {
		gotEnergy = append(gotEnergy, q.String())
	}
	if diff := cmp.Diff(wantEnergy, gotEnergy); diff != "" {
		t.Errorf("EnergySpec() mismatch (-want +got):\n%s", diff)
	}

	spacings := cfg.KSpacingSpec()
	if len(spacings) != 3 || spacings[2].Value != 0.1 || spacings[2].Unit != KSpacingUnit {
		t.Errorf("KSpacingSpec() = %+v", spacings)
	}

	if len(cfg.Structure.Sites) != 2 || cfg.Structure.Sites[1].Fractional[0] != 0.25 {
		t.Errorf("Structure.Sites = %+v", cfg.Structure.Sites)
	}
	if cfg.Structure.Cell[1][0] != 2.715 {
		t.Errorf("Structure.Cell = %v", cfg.Structure.Cell)
	}
	if cfg.Parameters.Theory == nil || cfg.Parameters.Theory.Functional != "pbe" {
		t.Errorf("Parameters.Theory = %+v", cfg.Parameters.Theory)
	}

	// Defaults
	if cfg.Runner.Shell != "bash" {
		t.Errorf("Runner.Shell = %q, want bash", cfg.Runner.Shell)
	}
	if cfg.Checkpoint.Backend != BackendFile {
		t.Errorf("Checkpoint.Backend = %q, want %q", cfg.Checkpoint.Backend, BackendFile)
	}
	if cfg.Sweep.OutputDir != "output" {
		t.Errorf("Sweep.OutputDir = %q, want output", cfg.Sweep.OutputDir)
	}
	if cfg.Timeout() != time.Hour {
		t.Errorf("Timeout() = %v, want 1h", cfg.Timeout())
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("INQSWEEP_CONCURRENCY", "7")
	t.Setenv("INQSWEEP_RUNNER_COMMAND", "srun -n 1")
	t.Setenv("INQSWEEP_STATUS_ADDR", "127.0.0.1:9100")
	t.Setenv("INQSWEEP_REDIS_PASSWORD", "hunter2")

	cfg, secrets, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sweep.Concurrency != 7 {
		t.Errorf("Sweep.Concurrency = %d, want 7", cfg.Sweep.Concurrency)
	}
	if diff := cmp.Diff([]string{"srun", "-n", "1"}, cfg.Launcher()); diff != "" {
		t.Errorf("Launcher() mismatch (-want +got):\n%s", diff)
	}
	if cfg.Status.Addr != "127.0.0.1:9100" {
		t.Errorf("Status.Addr = %q", cfg.Status.Addr)
	}
	if secrets.RedisPassword != "hunter2" {
		t.Errorf("RedisPassword = %q", secrets.RedisPassword)
	}
}

func TestLoadProtocol(t *testing.T) {
	data := strings.Replace(sampleConfig, "[parameters.electrons]", "[parameters]\nprotocol = \"fast\"\n\n[parameters.electrons]", 1)

	cfg, _, err := Load(writeConfig(t, data))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p := cfg.Parameters
	if p.Protocol != params.ProtocolFast {
		t.Errorf("Parameters.Protocol = %q, want fast", p.Protocol)
	}
	// extra-states is set in the file and must survive the preset
	if p.Electrons == nil || p.Electrons.ExtraStates == nil || *p.Electrons.ExtraStates != 3 {
		t.Errorf("Parameters.Electrons = %+v, want extra-states 3", p.Electrons)
	}
	if p.GroundState == nil || p.GroundState.MaxSteps == nil || *p.GroundState.MaxSteps != 100 {
		t.Errorf("Parameters.GroundState = %+v, want fast preset max-steps", p.GroundState)
	}

	bad := strings.Replace(sampleConfig, "[parameters.electrons]", "[parameters]\nprotocol = \"sloppy\"\n\n[parameters.electrons]", 1)
	if _, _, err := Load(writeConfig(t, bad)); err == nil {
		t.Error("Load() expected error for unknown protocol")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
	if _, _, err := Load(writeConfig(t, "[sweep\n")); err == nil {
		t.Error("Load() expected error for malformed TOML")
	}
	if _, _, err := Load(writeConfig(t, "[sweep]\nenergy_cutoffs = [\"ten Ha\"]\n")); err == nil {
		t.Error("Load() expected error for unparseable quantity")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "no cutoffs",
			mutate:  func(c *Config) { c.Sweep.EnergyCutoffs = nil },
			wantErr: true,
		},
		{
			name: "duplicate cutoff",
			mutate: func(c *Config) {
				c.Sweep.EnergyCutoffs = append(c.Sweep.EnergyCutoffs, *params.Q(models.NewQuantity(8, "Ha")))
			},
			wantErr: true,
		},
		{
			name: "cutoff without unit",
			mutate: func(c *Config) {
				c.Sweep.EnergyCutoffs = []params.Quantity{*params.Q(models.NewQuantity(8, ""))}
			},
			wantErr: true,
		},
		{
			name:    "no kspacings",
			mutate:  func(c *Config) { c.Sweep.KSpacings = nil },
			wantErr: true,
		},
		{
			name:    "negative kspacing",
			mutate:  func(c *Config) { c.Sweep.KSpacings = []float64{0.2, -0.1} },
			wantErr: true,
		},
		{
			name:    "duplicate kspacing",
			mutate:  func(c *Config) { c.Sweep.KSpacings = []float64{0.2, 0.2} },
			wantErr: true,
		},
		{
			name:    "kspacing too fine for the cell",
			mutate:  func(c *Config) { c.Sweep.KSpacings = []float64{0.2, 1e-9} },
			wantErr: true,
		},
		{
			name:    "concurrency too high",
			mutate:  func(c *Config) { c.Sweep.Concurrency = MaxConcurrency + 1 },
			wantErr: true,
		},
		{
			name:    "no sites",
			mutate:  func(c *Config) { c.Structure.Sites = nil },
			wantErr: true,
		},
		{
			name:    "singular cell",
			mutate:  func(c *Config) { c.Structure.Cell = models.Lattice{{1, 0, 0}, {2, 0, 0}, {0, 0, 1}} },
			wantErr: true,
		},
		{
			name:    "no run type",
			mutate:  func(c *Config) { c.Parameters.Run.Type = "" },
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Runner.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Checkpoint.Backend = "etcd" },
			wantErr: true,
		},
		{
			name:    "redis without address",
			mutate:  func(c *Config) { c.Checkpoint.Backend = BackendRedis },
			wantErr: true,
		},
		{
			name: "redis with address",
			mutate: func(c *Config) {
				c.Checkpoint.Backend = BackendRedis
				c.Checkpoint.RedisAddr = "localhost:6379"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
