package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veranemoloko/fusionctl/internal/domain"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
	"github.com/veranemoloko/fusionctl/internal/repository/migrations"
)

// SQLiteStorage keeps run history in a SQLite database. Each run is stored as
// a JSON document next to the columns used for filtering and ordering.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) the database at dbPath and applies the
// schema migrations.
func NewSQLiteStorage(dbPath string, logger *slog.Logger) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: db path is required", errpkg.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sqlite run history initialized", "db_path", dbPath)
	return &SQLiteStorage{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error { return s.db.Close() }

// CreateRun inserts a new run.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *domain.Run) error {
	if run.ID == "" {
		return fmt.Errorf("%w: run id is required", errpkg.ErrInvalidInput)
	}

	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT INTO runs (id, state, task_id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.State, run.TaskID, string(data),
		run.CreatedAt.UnixNano(), run.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: run %s already exists", errpkg.ErrInvalidInput, run.ID)
		}
		return fmt.Errorf("could not insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errpkg.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("could not query run: %w", err)
	}
	return decodeRun(data)
}

// UpdateRun replaces an existing run.
func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *domain.Run) error {
	run.UpdatedAt = time.Now()
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `UPDATE runs SET state = ?, task_id = ?, data = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, run.State, run.TaskID, string(data), run.UpdatedAt.UnixNano(), run.ID)
	if err != nil {
		return fmt.Errorf("could not update run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not update run: %w", err)
	}
	if n == 0 {
		return errpkg.ErrRunNotFound
	}

	s.logger.Debug("run updated", "run_id", run.ID, "state", run.State)
	return nil
}

// ListRuns returns all runs, oldest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context) ([]*domain.Run, error) {
	return s.queryRuns(ctx, `SELECT data FROM runs ORDER BY created_at, id`)
}

// GetRunsByState returns all runs in the given state, oldest first.
func (s *SQLiteStorage) GetRunsByState(ctx context.Context, state domain.RunState) ([]*domain.Run, error) {
	return s.queryRuns(ctx, `SELECT data FROM runs WHERE state = ? ORDER BY created_at, id`, state)
}

func (s *SQLiteStorage) queryRuns(ctx context.Context, query string, args ...any) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("could not scan run: %w", err)
		}
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate runs: %w", err)
	}
	return runs, nil
}

func decodeRun(data string) (*domain.Run, error) {
	var run domain.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}
