package config

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Sweep defaults
	if cfg.Sweep.Concurrency == 0 {
		cfg.Sweep.Concurrency = 4
	}
	if cfg.Sweep.OutputDir == "" {
		cfg.Sweep.OutputDir = "output"
	}

	// Runner defaults
	if cfg.Runner.Shell == "" {
		cfg.Runner.Shell = "bash"
	}
	if cfg.Runner.RetryDelaySeconds == 0 {
		cfg.Runner.RetryDelaySeconds = 10
	}
	// NOTE: max_retries stays 0 when unset; engine failures are usually deterministic

	// Checkpoint defaults
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = BackendFile
	}
	if cfg.Checkpoint.TTLHours == 0 {
		cfg.Checkpoint.TTLHours = 24 * 7
	}
}
