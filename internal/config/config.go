package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lamim/inqsweep/internal/kmesh"
	"github.com/lamim/inqsweep/internal/params"
	"github.com/lamim/inqsweep/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Sweep      SweepConfig       `toml:"sweep"`
	Structure  models.Structure  `toml:"structure"`
	Parameters params.Parameters `toml:"parameters"` // Baseline engine parameters shared by every trial
	Runner     RunnerConfig      `toml:"runner"`
	Checkpoint CheckpointConfig  `toml:"checkpoint"`
	Status     StatusConfig      `toml:"status"`
}

// SweepConfig holds the values trialled by each stage
type SweepConfig struct {
	EnergyCutoffs       []params.Quantity `toml:"energy_cutoffs"`       // e.g. ["8 Ha", "10 Ha"]
	KSpacings           []float64         `toml:"kspacings"`            // 1/angstrom
	Concurrency         int               `toml:"concurrency"`          // Max trials running at once (default: 4)
	OutputDir           string            `toml:"output_dir"`           // Parent of session directories (default: output)
	EnableCheckpointing bool              `toml:"enable_checkpointing"` // Enable checkpoint/resume support
	ResumeFromSession   string            `toml:"resume_from_session"`  // Session directory to resume from (e.g., "session_2025-10-27T12-34-56")
	CleanWorkdir        bool              `toml:"clean_workdir"`        // Remove trial directories once parsed
}

// RunnerConfig controls how trials are executed
type RunnerConfig struct {
	Command           string `toml:"command"` // Optional launcher prefix, e.g. "srun -n 1"
	Shell             string `toml:"shell"`   // Interpreter for the rendered script (default: bash)
	WorkDir           string `toml:"workdir"` // Root of per-trial directories (default: <session>/trials)
	MaxRetries        int    `toml:"max_retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
	LaunchesPerMinute int    `toml:"launches_per_minute"` // 0 = unthrottled
	TimeoutSeconds    int    `toml:"timeout_seconds"`     // 0 = no timeout
}

// CheckpointConfig selects where checkpoints are stored
type CheckpointConfig struct {
	Backend   string `toml:"backend"` // file or redis (default: file)
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	TTLHours  int    `toml:"ttl_hours"` // Redis key expiry (default: 168)
}

// StatusConfig configures the optional HTTP status server
type StatusConfig struct {
	Addr string `toml:"addr"` // Empty disables the server
}

// Secrets holds sensitive credentials loaded from environment variables
type Secrets struct {
	RedisPassword string `env:"INQSWEEP_REDIS_PASSWORD"`
}

const (
	// MaxConcurrency is the maximum allowed concurrency
	MaxConcurrency = 256
	// MaxSweepValues bounds each stage's sweep list
	MaxSweepValues = 64

	BackendFile  = "file"
	BackendRedis = "redis"

	// KSpacingUnit is attached to bare k-spacing values
	KSpacingUnit = "1/A"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validateSweep(); err != nil {
		return err
	}

	if len(c.Structure.Sites) == 0 {
		return fmt.Errorf("structure.sites must contain at least one site")
	}
	if _, err := kmesh.Reciprocal(c.Structure.Cell); err != nil {
		return fmt.Errorf("structure.cell: %w", err)
	}
	if _, err := kmesh.Entries(c.Structure.Cell, c.KSpacingSpec()); err != nil {
		return fmt.Errorf("sweep.kspacings: %w", err)
	}

	if err := c.Parameters.Validate(); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	if err := c.Parameters.ValidateRun(); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}

	if c.Runner.MaxRetries < 0 {
		return fmt.Errorf("runner.max_retries must be non-negative")
	}
	if c.Runner.RetryDelaySeconds < 0 {
		return fmt.Errorf("runner.retry_delay_seconds must be non-negative")
	}
	if c.Runner.LaunchesPerMinute < 0 {
		return fmt.Errorf("runner.launches_per_minute must be non-negative")
	}
	if c.Runner.TimeoutSeconds < 0 {
		return fmt.Errorf("runner.timeout_seconds must be non-negative")
	}
	if strings.TrimSpace(c.Runner.Shell) == "" {
		return fmt.Errorf("runner.shell is required")
	}

	switch c.Checkpoint.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("checkpoint.redis_addr is required for the redis backend")
		}
		if c.Checkpoint.RedisDB < 0 {
			return fmt.Errorf("checkpoint.redis_db must be non-negative")
		}
	default:
		return fmt.Errorf("checkpoint.backend must be one of: file, redis (got %s)", c.Checkpoint.Backend)
	}
	if c.Checkpoint.TTLHours < 0 {
		return fmt.Errorf("checkpoint.ttl_hours must be non-negative")
	}

	return nil
}

func (c *Config) validateSweep() error {
	if len(c.Sweep.EnergyCutoffs) == 0 {
		return fmt.Errorf("sweep.energy_cutoffs must contain at least one value")
	}
	if len(c.Sweep.EnergyCutoffs) > MaxSweepValues {
		return fmt.Errorf("sweep.energy_cutoffs must not exceed %d values (got %d)", MaxSweepValues, len(c.Sweep.EnergyCutoffs))
	}
	seen := make(map[string]bool, len(c.Sweep.EnergyCutoffs))
	for i, q := range c.Sweep.EnergyCutoffs {
		if err := params.ValidateCutoff(q); err != nil {
			return fmt.Errorf("sweep.energy_cutoffs[%d]: %w", i, err)
		}
		key := fmt.Sprintf("%g %s", q.Value, q.Unit)
		if seen[key] {
			return fmt.Errorf("sweep.energy_cutoffs[%d]: duplicate value %s", i, q)
		}
		seen[key] = true
	}

	if len(c.Sweep.KSpacings) == 0 {
		return fmt.Errorf("sweep.kspacings must contain at least one value")
	}
	if len(c.Sweep.KSpacings) > MaxSweepValues {
		return fmt.Errorf("sweep.kspacings must not exceed %d values (got %d)", MaxSweepValues, len(c.Sweep.KSpacings))
	}
	spacings := make(map[float64]bool, len(c.Sweep.KSpacings))
	for i, s := range c.Sweep.KSpacings {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("sweep.kspacings[%d] must be a positive number (got %v)", i, s)
		}
		if spacings[s] {
			return fmt.Errorf("sweep.kspacings[%d]: duplicate value %v", i, s)
		}
		spacings[s] = true
	}

	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("sweep.concurrency must be at least 1")
	}
	if c.Sweep.Concurrency > MaxConcurrency {
		return fmt.Errorf("sweep.concurrency must not exceed %d (got %d)", MaxConcurrency, c.Sweep.Concurrency)
	}

	return nil
}

// EnergySpec returns the stage-1 sweep values in configured order
func (c *Config) EnergySpec() models.SweepSpec {
	spec := make(models.SweepSpec, len(c.Sweep.EnergyCutoffs))
	for i, q := range c.Sweep.EnergyCutoffs {
		spec[i] = q.Quantity
	}
	return spec
}

// KSpacingSpec returns the stage-2 sweep values in configured order
func (c *Config) KSpacingSpec() models.SweepSpec {
	spec := make(models.SweepSpec, len(c.Sweep.KSpacings))
	for i, s := range c.Sweep.KSpacings {
		spec[i] = models.NewQuantity(s, KSpacingUnit)
	}
	return spec
}

// RetryDelay returns the fixed backoff between trial attempts
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Runner.RetryDelaySeconds) * time.Second
}

// Timeout returns the per-trial timeout; zero means none
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Runner.TimeoutSeconds) * time.Second
}

// TTL returns the redis checkpoint expiry
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Checkpoint.TTLHours) * time.Hour
}

// Launcher splits runner.command into argv
func (c *Config) Launcher() []string {
	return strings.Fields(c.Runner.Command)
}
