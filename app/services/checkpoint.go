package services

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/place-matcher/app/models"
)

// CheckpointTracker owns the persisted ProgressState. Every mutation is
// written through a temp file and an atomic rename, so a crash mid-save never
// leaves a half-written checkpoint behind. The mutex makes reads from the ops
// endpoint's goroutine safe against the resolver's writes.
type CheckpointTracker struct {
	path   string
	mu     sync.Mutex
	state  *models.ProgressState
	logger *zap.Logger
}

// NewCheckpointTracker loads the checkpoint at path. A missing file starts a
// fresh run. An unreadable file is quarantined (renamed aside with a .corrupt
// suffix) and the run restarts from the beginning - corruption costs rework,
// never a crash loop.
func NewCheckpointTracker(path string, logger *zap.Logger) (*CheckpointTracker, error) {
	ct := &CheckpointTracker{path: path, logger: logger}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		ct.state = models.NewProgressState()
		return ct, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	state := models.NewProgressState()
	if err := json.Unmarshal(raw, state); err != nil {
		quarantine := path + ".corrupt.json"
		if renameErr := os.Rename(path, quarantine); renameErr != nil {
			return nil, fmt.Errorf("quarantine corrupt checkpoint: %w", renameErr)
		}
		logger.Warn("checkpoint corrupt, quarantined and restarting from 0",
			zap.String("quarantine", quarantine),
			zap.Error(err))
		state = models.NewProgressState()
		state.RecordError(-1, fmt.Sprintf("corrupt checkpoint quarantined: %v", err))
	}

	ct.state = state
	return ct, nil
}

// State exposes a snapshot of the current progress for the ops endpoint. The
// error list is copied so later appends cannot reach into the snapshot.
func (ct *CheckpointTracker) State() models.ProgressState {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	snapshot := *ct.state
	snapshot.Errors = append([]models.ProgressError{}, ct.state.Errors...)
	return snapshot
}

// NextIndex is where a (resumed) run should begin.
func (ct *CheckpointTracker) NextIndex() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.state.LastProcessedIndex + 1
}

// Advance marks index as fully processed and persists.
func (ct *CheckpointTracker) Advance(index int) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.state.LastProcessedIndex = index
	return ct.save()
}

// LogError appends a per-record failure to the error log and persists. The
// caller still Advances the index afterwards - errors never stall the run.
func (ct *CheckpointTracker) LogError(index int, message string) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.state.RecordError(index, message)
	return ct.save()
}

func (ct *CheckpointTracker) save() error {
	raw, err := json.MarshalIndent(ct.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmp := ct.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, ct.path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}
