package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/fusionctl/internal/domain"
	errpkg "github.com/veranemoloko/fusionctl/internal/errors"
)

// RunReader exposes the recorded workflow runs.
type RunReader interface {
	ListRuns(ctx context.Context) ([]*domain.Run, error)
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	GetRunsByState(ctx context.Context, state domain.RunState) ([]*domain.Run, error)
}

type listRunsQuery struct {
	State string `validate:"omitempty,oneof=running succeeded failed"`
}

// RunHandler handles HTTP requests for run history.
type RunHandler struct {
	runs      RunReader
	validator *validator.Validate
	logger    *slog.Logger
}

// NewRunHandler creates a new RunHandler with the provided reader and logger.
func NewRunHandler(runs RunReader, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runs:      runs,
		validator: validator.New(),
		logger:    logger,
	}
}

// ListRuns handles GET /runs, optionally filtered by ?state=.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := listRunsQuery{State: r.URL.Query().Get("state")}
	if err := h.validator.Struct(query); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, "invalid state filter")
		return
	}

	var (
		runs []*domain.Run
		err  error
	)
	if query.State != "" {
		runs, err = h.runs.GetRunsByState(ctx, domain.RunState(query.State))
	} else {
		runs, err = h.runs.ListRuns(ctx)
	}
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]domain.RunResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, domain.NewRunResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

// GetRun handles GET /runs/{runID}.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, errpkg.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get run", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, domain.NewRunResponse(run))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
