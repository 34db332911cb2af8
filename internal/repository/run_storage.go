package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/veranemoloko/fusionctl/internal/domain"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
)

// RunStorage keeps runs in memory and mirrors them to a JSON state file.
// Every write replaces the file atomically.
type RunStorage struct {
	mu     sync.RWMutex
	runs   map[string]*domain.Run
	file   string
	logger *slog.Logger
}

// NewRunStorage creates a RunStorage and restores runs from filePath if it exists.
func NewRunStorage(filePath string, logger *slog.Logger) (*RunStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo := &RunStorage{
		runs:   make(map[string]*domain.Run),
		file:   filepath.Clean(filePath),
		logger: logger,
	}

	if err := repo.restoreRuns(); err != nil {
		return nil, fmt.Errorf("failed to load state from file: %w", err)
	}

	logger.Debug("run history initialized", "file_path", repo.file, "runs_count", len(repo.runs))
	return repo, nil
}

func (r *RunStorage) restoreRuns() error {
	data, err := os.ReadFile(r.file)
	if os.IsNotExist(err) {
		r.logger.Debug("state file does not exist, starting with empty history", "file_path", r.file)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		r.logger.Warn("state file is empty", "file_path", r.file)
		return nil
	}

	var runs []*domain.Run
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	for _, run := range runs {
		r.runs[run.ID] = run
	}
	return nil
}

// persistRuns must be called with r.mu held.
func (r *RunStorage) persistRuns() error {
	data, err := json.MarshalIndent(r.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal runs: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.file), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tempFile := r.file + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempFile, r.file); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	r.logger.Debug("state saved to file", "runs_count", len(r.runs), "file_path", r.file)
	return nil
}

func (r *RunStorage) sortedLocked() []*domain.Run {
	runs := make([]*domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs
}

// CreateRun adds a new run and persists it.
func (r *RunStorage) CreateRun(ctx context.Context, run *domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == "" {
		return fmt.Errorf("%w: run id is required", errpkg.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	r.runs[run.ID] = run

	if err := r.persistRuns(); err != nil {
		return fmt.Errorf("failed to save state after creating run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *RunStorage) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	run, exists := r.runs[id]
	r.mu.RUnlock()

	if !exists {
		return nil, errpkg.ErrRunNotFound
	}
	return run, nil
}

// UpdateRun replaces an existing run and persists it.
func (r *RunStorage) UpdateRun(ctx context.Context, run *domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; !exists {
		return errpkg.ErrRunNotFound
	}
	run.UpdatedAt = time.Now()
	r.runs[run.ID] = run

	if err := r.persistRuns(); err != nil {
		return fmt.Errorf("failed to save state after updating run: %w", err)
	}

	r.logger.Debug("run updated", "run_id", run.ID, "state", run.State)
	return nil
}

// ListRuns returns all runs, oldest first.
func (r *RunStorage) ListRuns(ctx context.Context) ([]*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(), nil
}

// GetRunsByState returns all runs in the given state, oldest first.
func (r *RunStorage) GetRunsByState(ctx context.Context, state domain.RunState) ([]*domain.Run, error) {
	runs, err := r.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	var filtered []*domain.Run
	for _, run := range runs {
		if run.State == state {
			filtered = append(filtered, run)
		}
	}
	return filtered, nil
}
