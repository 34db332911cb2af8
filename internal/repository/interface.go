package repository

import (
	"context"

	"github.com/veranemoloko/fusionctl/internal/domain"
)

// RunRepo defines the interface for run history storage.
type RunRepo interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	UpdateRun(ctx context.Context, run *domain.Run) error
	ListRuns(ctx context.Context) ([]*domain.Run, error)
	GetRunsByState(ctx context.Context, state domain.RunState) ([]*domain.Run, error)
}

var (
	_ RunRepo = (*RunStorage)(nil)
	_ RunRepo = (*SQLiteStorage)(nil)
)
