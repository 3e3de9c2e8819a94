package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"github.com/pelletier/go-toml/v2"
)

// Overrides are runtime knobs that may be set from the environment
// without editing the config file.
type Overrides struct {
	RunnerCommand string `env:"INQSWEEP_RUNNER_COMMAND"`
	WorkDir       string `env:"INQSWEEP_WORKDIR"`
	Concurrency   int    `env:"INQSWEEP_CONCURRENCY"`
	RedisAddr     string `env:"INQSWEEP_REDIS_ADDR"`
	StatusAddr    string `env:"INQSWEEP_STATUS_ADDR"`
}

// Load reads and parses the configuration file and environment variables
func Load(configPath string) (*Config, *Secrets, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse TOML
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment wins over the file
	var overrides Overrides
	if err := env.Parse(&overrides); err != nil {
		return nil, nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	applyOverrides(&cfg, overrides)

	// Apply defaults
	applyDefaults(&cfg)

	// Protocol presets sit underneath explicit [parameters] keys
	merged, err := cfg.Parameters.ApplyProtocol()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: parameters: %w", err)
	}
	cfg.Parameters = merged

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input security validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	// Load secrets from environment
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	return &cfg, secrets, nil
}

// LoadSecrets reads credentials from the environment
func LoadSecrets() (*Secrets, error) {
	var secrets Secrets
	if err := env.Parse(&secrets); err != nil {
		return nil, err
	}
	return &secrets, nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.RunnerCommand != "" {
		cfg.Runner.Command = o.RunnerCommand
	}
	if o.WorkDir != "" {
		cfg.Runner.WorkDir = o.WorkDir
	}
	if o.Concurrency != 0 {
		cfg.Sweep.Concurrency = o.Concurrency
	}
	if o.RedisAddr != "" {
		cfg.Checkpoint.RedisAddr = o.RedisAddr
	}
	if o.StatusAddr != "" {
		cfg.Status.Addr = o.StatusAddr
	}
}
