package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSession = "session_2025-10-30T14-30-00"

func TestValidateSessionPathOutputDirs(t *testing.T) {
	root := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	target := filepath.Join(root, "scratch", "inq")
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "latest")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tests := []struct {
		name      string
		outputDir string
	}{
		{"default relative", "output"},
		{"nested relative", filepath.Join("runs", "si", "diamond")},
		{"dot prefixed", "./output"},
		{"trailing separator", "output" + string(filepath.Separator)},
		{"absolute", target},
		{"symlinked", link},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSessionManager(testLogger(), tt.outputDir, "")
			if err != nil {
				t.Fatalf("NewSessionManager() error = %v", err)
			}
			if err := ValidateSessionPath(tt.outputDir, sm.GetSessionName()); err != nil {
				t.Errorf("generated session %s rejected: %v", sm.GetSessionName(), err)
			}
			if err := ValidateSessionPath(tt.outputDir, sampleSession); err != nil {
				t.Errorf("ValidateSessionPath(%q) = %v", sampleSession, err)
			}
		})
	}
}

// Names a user might paste into resume_from_session or pass to
// "checkpoint inspect" that must not resolve to a session.
func TestValidateSessionPathRejects(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "output")
	sessionDir := filepath.Join(outputDir, sampleSession)

	tests := []struct {
		name    string
		session string
		want    string
	}{
		{"empty resume_from_session", "", "cannot be empty"},
		{"session_dir from the log", sessionDir, "must be relative"},
		{"parent of output", "..", "path traversal"},
		{"sibling output dir", "../output2/" + sampleSession, "path traversal"},
		{"trial workdir", sampleSession + "/trials", "without path separators"},
		{"windows trial workdir", sampleSession + `\trials`, "without path separators"},
		{"trials subdir name", "trials", "invalid session name format"},
		{"config backup", "config.toml.bak", "invalid session name format"},
		{"redis key", "inqsweep:checkpoint:" + sampleSession, "invalid session name format"},
		{"date only", "session_2025-10-30", "invalid session name format"},
		{"colon time", "session_2025-10-30T14:30:00", "invalid session name format"},
		{"trailing space", sampleSession + " ", "invalid session name format"},
		{"trailing newline", sampleSession + "\n", "invalid session name format"},
		{"nul suffix", sampleSession + "\x00", "invalid session name format"},
		{"upper case prefix", "Session_2025-10-30T14-30-00", "invalid session name format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionPath(outputDir, tt.session)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ValidateSessionPath(%q) error = %v, want substring %q", tt.session, err, tt.want)
			}
		})
	}
}

func TestResumeRejectsUnsafeNameWithoutCreatingDirs(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "output")

	if _, err := NewSessionManager(testLogger(), outputDir, "../"+sampleSession); err == nil {
		t.Fatal("NewSessionManager() accepted a session outside the output directory")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "output" {
			t.Errorf("unexpected entry %s created next to the output directory", e.Name())
		}
	}
}
