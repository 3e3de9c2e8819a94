package config

import (
	"fmt"
	"net"
	"unicode"
)

const (
	// MaxCommandLength is the maximum allowed length for runner.command and runner.shell
	MaxCommandLength = 512

	// MaxPathLength is the maximum allowed length for configured paths
	MaxPathLength = 4096

	// MaxSymbolLength bounds a site's chemical symbol
	MaxSymbolLength = 8
)

// ValidateInputs performs additional security validation on user-controllable fields.
// Everything checked here ends up on a command line or in a filesystem path.
func (c *Config) ValidateInputs() error {
	if err := validateText("runner.command", c.Runner.Command, MaxCommandLength); err != nil {
		return err
	}
	if err := validateText("runner.shell", c.Runner.Shell, MaxCommandLength); err != nil {
		return err
	}
	if err := validateText("runner.workdir", c.Runner.WorkDir, MaxPathLength); err != nil {
		return err
	}
	if err := validateText("sweep.output_dir", c.Sweep.OutputDir, MaxPathLength); err != nil {
		return err
	}

	for i, site := range c.Structure.Sites {
		if err := validateSymbol(site.Symbol); err != nil {
			return fmt.Errorf("structure.sites[%d]: %w", i, err)
		}
	}

	if c.Status.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			return fmt.Errorf("status.addr is invalid: %w", err)
		}
	}
	if c.Checkpoint.Backend == BackendRedis {
		if _, _, err := net.SplitHostPort(c.Checkpoint.RedisAddr); err != nil {
			return fmt.Errorf("checkpoint.redis_addr is invalid: %w", err)
		}
	}

	return nil
}

func validateText(field, value string, maxLen int) error {
	if len(value) > maxLen {
		return fmt.Errorf("%s exceeds maximum length of %d characters (got %d)", field, maxLen, len(value))
	}
	if containsControlChars(value) {
		return fmt.Errorf("%s contains invalid control characters", field)
	}
	return nil
}

// validateSymbol accepts element-like symbols such as "Si" or "H1"
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(symbol) > MaxSymbolLength {
		return fmt.Errorf("symbol %q exceeds maximum length of %d", symbol, MaxSymbolLength)
	}
	for i, r := range symbol {
		if i == 0 && !unicode.IsLetter(r) {
			return fmt.Errorf("symbol %q must start with a letter", symbol)
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("symbol %q contains invalid character %q", symbol, r)
		}
	}
	return nil
}

// containsControlChars checks if a string contains any control characters
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
