package main

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# runner overrides\r\nINQSWEEP_CONCURRENCY=8\n\nINQSWEEP_RUNNER_COMMAND=\"srun -n 1\"\nINQSWEEP_WORKDIR = '/scratch/inq'\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"INQSWEEP_CONCURRENCY", "INQSWEEP_RUNNER_COMMAND", "INQSWEEP_WORKDIR"} {
		t.Setenv(key, "")
	}

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}

	want := map[string]string{
		"INQSWEEP_CONCURRENCY":    "8",
		"INQSWEEP_RUNNER_COMMAND": "srun -n 1",
		"INQSWEEP_WORKDIR":        "/scratch/inq",
	}
	for key, value := range want {
		if got := os.Getenv(key); got != value {
			t.Errorf("%s = %q, want %q", key, got, value)
		}
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); !os.IsNotExist(err) {
		t.Errorf("loadEnvFile() error = %v, want not-exist", err)
	}
}

func TestRunSweepStatusAddrInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	dir := t.TempDir()
	out := filepath.Join(dir, "output")
	data := `
[sweep]
energy_cutoffs = ["8 Ha", "10 Ha"]
kspacings = [0.2]
output_dir = "` + filepath.ToSlash(out) + `"

[structure]
cell = [[5.0, 0.0, 0.0], [0.0, 5.0, 0.0], [0.0, 0.0, 5.0]]

[[structure.sites]]
symbol = "H"
fractional = [0.0, 0.0, 0.0]

[parameters.run]
type = "ground-state"
`
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	configPath, envFile, statusAddr = path, "", busy.Addr().String()
	t.Cleanup(func() { configPath, envFile, statusAddr = "config.toml", ".env", "" })

	err = runSweep(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "bind") {
		t.Fatalf("runSweep() error = %v, want bind failure", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output directory created before the bind failed: %v", err)
	}
}
