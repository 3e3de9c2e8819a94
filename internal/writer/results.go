package writer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/lamim/inqsweep/pkg/models"
)

// TrialWriter appends one JSON line per finished trial. It is safe for
// concurrent use and satisfies the orchestrator's Recorder interface.
type TrialWriter struct {
	file   *os.File
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewTrialWriter opens the session's trials.jsonl. Resumed sessions
// append to the existing file.
func NewTrialWriter(sessionMgr *SessionManager, logger *slog.Logger) (*TrialWriter, error) {
	path := sessionMgr.GetTrialsPath()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trials file: %w", err)
	}

	logger.Info("Opened trials file", "path", path)

	return &TrialWriter{
		file:   file,
		logger: logger,
	}, nil
}

// WriteRecord writes a single record
func (tw *TrialWriter) WriteRecord(record models.TrialRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tw.mu.Lock()
	defer tw.mu.Unlock()

	if _, err := tw.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	tw.count++
	return nil
}

// Count returns the number of records written by this writer
func (tw *TrialWriter) Count() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.count
}

// Close closes the trials file
func (tw *TrialWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.file.Sync(); err != nil {
		tw.logger.Warn("Failed to sync trials file", "error", err)
	}

	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trials file: %w", err)
	}

	tw.logger.Info("Closed trials file", "records", tw.count)
	return nil
}

// Sweep outcomes recorded in the summary
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Summary is the final state of a sweep written to summary.json
type Summary struct {
	SweepID   string                      `json:"sweep_id"`
	Session   string                      `json:"session"`
	Outcome   string                      `json:"outcome"`
	Suggested *models.SuggestedParameters `json:"suggested,omitempty"`
	Failure   string                      `json:"failure,omitempty"`
	ExitCode  int                         `json:"exit_code,omitempty"`
	Stages    []models.StageResult        `json:"stages,omitempty"`
	Stats     models.SweepStats           `json:"stats"`
}

// WriteSummary writes s to the session's summary.json, replacing any
// previous summary atomically.
func WriteSummary(sessionMgr *SessionManager, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	path := sessionMgr.GetSummaryPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename summary: %w", err)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &s, nil
}
