package main

import (
	"io"
	"log/slog"

	"github.com/veranemoloko/fusionctl/internal/client"
	cfgpkg "github.com/veranemoloko/fusionctl/internal/config"
	"github.com/veranemoloko/fusionctl/internal/poller"
	repo "github.com/veranemoloko/fusionctl/internal/repository"
	svc "github.com/veranemoloko/fusionctl/internal/service"
	"github.com/veranemoloko/fusionctl/internal/storage"
	"github.com/veranemoloko/fusionctl/internal/worker"
)

// App carries the loaded configuration to commands and builds their
// dependencies on demand.
type App struct {
	cfg    *cfgpkg.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (a *App) client() (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:          a.cfg.BaseURL,
		APIKey:           a.cfg.APIKey,
		TeamID:           a.cfg.TeamID,
		ClientHeaderName: a.cfg.ClientHeaderName,
		ClientHeader:     a.cfg.ClientHeader,
		Timeout:          a.cfg.HTTPTimeout,
		Logger:           a.logger,
	})
}

func (a *App) poller(c *client.Client) *poller.Poller {
	return poller.New(c, poller.Config{
		Interval:   a.cfg.PollInterval,
		Timeout:    a.cfg.PollTimeout,
		Retries:    a.cfg.PollRetries,
		RetryDelay: a.cfg.PollRetryDelay,
		Logger:     a.logger,
	})
}

// runs opens the configured run history. The returned close func releases
// the backend.
func (a *App) runs() (repo.RunRepo, func(), error) {
	if a.cfg.StateBackend == "sqlite" {
		db, err := repo.NewSQLiteStorage(a.cfg.StateDB, a.logger)
		if err != nil {
			return nil, func() {}, err
		}
		return db, func() { _ = db.Close() }, nil
	}

	store, err := repo.NewRunStorage(a.cfg.StateFile, a.logger)
	if err != nil {
		return nil, func() {}, err
	}
	return store, func() {}, nil
}

func (a *App) workflow() (*svc.WorkflowService, func(), error) {
	c, err := a.client()
	if err != nil {
		return nil, func() {}, err
	}

	runs, closeRuns, err := a.runs()
	if err != nil {
		return nil, closeRuns, err
	}

	downloads := worker.NewDownloadWorker(storage.NewFileStorage("."), c, a.cfg.DownloadConcurrency, a.logger)
	return svc.NewWorkflowService(c, a.poller(c), downloads, runs, a.logger), closeRuns, nil
}
