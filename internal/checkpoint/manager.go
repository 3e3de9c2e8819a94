package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/inqsweep/internal/config"
	"github.com/lamim/inqsweep/pkg/models"
)

// storeTimeout bounds one checkpoint write or read.
const storeTimeout = 10 * time.Second

// Manager handles checkpoint operations with async write support
type Manager struct {
	store      Store
	checkpoint *models.Checkpoint
	mu         sync.RWMutex
	logger     *slog.Logger
	enabled    bool

	// Async write support
	seq         uint64 // Snapshot counter, guarded by mu
	writeChan   chan snapshot
	writeMu     sync.Mutex
	written     uint64 // Highest seq persisted, guarded by writeMu
	writeWg     sync.WaitGroup
	stopWriter  chan struct{}
	writerError error
	errorMu     sync.Mutex
}

// NewManager creates a new checkpoint manager with a fresh session id
func NewManager(store Store, cfg *config.Config, logger *slog.Logger) *Manager {
	cp := &models.Checkpoint{
		SessionID:      uuid.New().String(),
		CreatedAt:      time.Now(),
		CurrentPhase:   models.PhaseCutoff,
		FinishedTrials: make(map[models.TrialLabel]models.TrialStatus),
		ConfigHash:     computeConfigHash(cfg),
	}
	return newManager(store, cp, cfg, logger)
}

// NewManagerFromCheckpoint creates a manager from existing checkpoint
func NewManagerFromCheckpoint(store Store, cp *models.Checkpoint, cfg *config.Config, logger *slog.Logger) *Manager {
	if cp.FinishedTrials == nil {
		cp.FinishedTrials = make(map[models.TrialLabel]models.TrialStatus)
	}
	return newManager(store, cp, cfg, logger)
}

func newManager(store Store, cp *models.Checkpoint, cfg *config.Config, logger *slog.Logger) *Manager {
	m := &Manager{
		store:      store,
		checkpoint: cp,
		logger:     logger,
		enabled:    cfg.Sweep.EnableCheckpointing,
		writeChan:  make(chan snapshot, 10), // Buffer up to 10 pending writes
		stopWriter: make(chan struct{}),
	}

	if m.enabled {
		m.startAsyncWriter()
	}

	return m
}

// startAsyncWriter starts the background writer goroutine
func (m *Manager) startAsyncWriter() {
	m.writeWg.Add(1)
	go func() {
		defer m.writeWg.Done()
		for {
			select {
			case s := <-m.writeChan:
				if err := m.write(s); err != nil {
					m.errorMu.Lock()
					m.writerError = err
					m.errorMu.Unlock()
					m.logger.Error("Failed to write checkpoint", "error", err)
				}
			case <-m.stopWriter:
				// Drain remaining writes before stopping
				for len(m.writeChan) > 0 {
					s := <-m.writeChan
					if err := m.write(s); err != nil {
						m.logger.Error("Failed to write checkpoint during shutdown", "error", err)
					}
				}
				return
			}
		}
	}()
}

// snapshot is a checkpoint copy tagged with its position in save order.
type snapshot struct {
	cp  *models.Checkpoint
	seq uint64
}

// write persists s unless a newer snapshot already reached the store.
func (m *Manager) write(s snapshot) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if s.seq <= m.written {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := m.store.Save(ctx, s.cp); err != nil {
		return err
	}
	m.written = s.seq
	m.logger.Debug("Checkpoint saved", "location", m.store.Location(), "phase", s.cp.CurrentPhase)
	return nil
}

func (m *Manager) takeSnapshot() snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.checkpoint.LastSavedAt = time.Now()
	return snapshot{cp: m.copyCheckpoint(), seq: m.seq}
}

// Save queues checkpoint for async write
func (m *Manager) Save() error {
	if !m.enabled {
		return nil
	}

	s := m.takeSnapshot()

	select {
	case m.writeChan <- s:
		return nil
	default:
		m.logger.Warn("Checkpoint write buffer full, writing synchronously")
		return m.write(s)
	}
}

// SaveSync performs synchronous checkpoint write
func (m *Manager) SaveSync() error {
	if !m.enabled {
		return nil
	}

	return m.write(m.takeSnapshot())
}

// copyCheckpoint creates a deep copy of the checkpoint. Stage results are
// never mutated once recorded, so their handles are shared.
func (m *Manager) copyCheckpoint() *models.Checkpoint {
	cp := *m.checkpoint
	cp.CutoffTrials = append([]models.TrialRecord(nil), m.checkpoint.CutoffTrials...)
	if m.checkpoint.CutoffStage != nil {
		stage := *m.checkpoint.CutoffStage
		cp.CutoffStage = &stage
	}
	if m.checkpoint.KSpacingStage != nil {
		stage := *m.checkpoint.KSpacingStage
		cp.KSpacingStage = &stage
	}
	cp.FinishedTrials = make(map[models.TrialLabel]models.TrialStatus, len(m.checkpoint.FinishedTrials))
	for k, v := range m.checkpoint.FinishedTrials {
		cp.FinishedTrials[k] = v
	}
	return &cp
}

// Load reads a checkpoint from the store
func Load(ctx context.Context, store Store, logger *slog.Logger) (*models.Checkpoint, error) {
	cp, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Checkpoint loaded",
		"session_id", cp.SessionID,
		"phase", cp.CurrentPhase,
		"finished_trials", len(cp.FinishedTrials))

	return cp, nil
}

// SessionID returns the sweep id recorded in the checkpoint
func (m *Manager) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoint.SessionID
}

// MarkTrialFinished records a terminal trial (async)
func (m *Manager) MarkTrialFinished(label models.TrialLabel, status models.TrialStatus, stats *models.SweepStats) error {
	if !m.enabled {
		return nil
	}
	if !status.Terminal() {
		return fmt.Errorf("trial %s: status %q is not terminal", label, status)
	}

	m.mu.Lock()
	m.checkpoint.FinishedTrials[label] = status
	m.checkpoint.Stats = *stats
	m.mu.Unlock()

	return m.Save()
}

// MarkCutoffComplete records the stage-1 selection so a resume can skip it
func (m *Manager) MarkCutoffComplete(stage models.StageResult, records []models.TrialRecord, stats *models.SweepStats) error {
	m.mu.Lock()
	m.checkpoint.CutoffComplete = true
	m.checkpoint.CutoffStage = &stage
	m.checkpoint.CutoffTrials = append([]models.TrialRecord(nil), records...)
	m.checkpoint.CurrentPhase = models.PhaseKSpacing
	m.checkpoint.FailedStage = 0
	m.checkpoint.FailedLabel = ""
	m.checkpoint.Stats = *stats
	m.mu.Unlock()

	return m.SaveSync() // Use sync for phase transitions
}

// MarkFailed records the trial that failed a stage
func (m *Manager) MarkFailed(stage models.Stage, label models.TrialLabel, stats *models.SweepStats) error {
	m.mu.Lock()
	m.checkpoint.CurrentPhase = models.PhaseFailed
	m.checkpoint.FailedStage = stage
	m.checkpoint.FailedLabel = label
	m.checkpoint.Stats = *stats
	m.mu.Unlock()

	return m.SaveSync()
}

// MarkComplete marks the sweep as complete
func (m *Manager) MarkComplete(stage models.StageResult, stats *models.SweepStats) error {
	m.mu.Lock()
	m.checkpoint.KSpacingComplete = true
	m.checkpoint.KSpacingStage = &stage
	m.checkpoint.CurrentPhase = models.PhaseComplete
	m.checkpoint.Stats = *stats
	m.mu.Unlock()

	return m.SaveSync() // Use sync for final checkpoint
}

// GetCheckpoint returns a read-only copy of the current checkpoint
func (m *Manager) GetCheckpoint() *models.Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyCheckpoint()
}

// Close stops the async writer and waits for pending writes
func (m *Manager) Close() error {
	if !m.enabled {
		return nil
	}

	close(m.stopWriter)
	m.writeWg.Wait()

	m.errorMu.Lock()
	defer m.errorMu.Unlock()
	return m.writerError
}

// computeConfigHash covers every input that changes trial results
func computeConfigHash(cfg *config.Config) string {
	energies := make([]string, 0, len(cfg.Sweep.EnergyCutoffs))
	for _, q := range cfg.Sweep.EnergyCutoffs {
		energies = append(energies, fmt.Sprintf("%g %s", q.Value, q.Unit))
	}

	lines := make([]string, 0)
	for _, l := range cfg.Parameters.Lines() {
		lines = append(lines, l.String())
	}
	for _, l := range cfg.Parameters.ResultQueries() {
		lines = append(lines, l.String())
	}

	data, _ := json.Marshal(struct {
		Energies  []string
		Spacings  []float64
		Structure models.Structure
		Lines     []string
		Run       string
	}{energies, cfg.Sweep.KSpacings, cfg.Structure, lines, cfg.Parameters.Run.Type})

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash[:8]) // First 8 bytes
}
