package domain

import (
	"time"
)

// RunResponse is the JSON shape served for a run.
type RunResponse struct {
	ID        string           `json:"run_id"`
	State     RunState         `json:"state"`
	TaskID    string           `json:"task_id,omitempty"`
	Steps     []*WorkflowStep  `json:"steps"`
	Downloads []DownloadResult `json:"downloads,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewRunResponse maps a run onto its response shape.
func NewRunResponse(r *Run) RunResponse {
	return RunResponse{
		ID:        r.ID,
		State:     r.State,
		TaskID:    r.TaskID,
		Steps:     r.Steps,
		Downloads: r.Downloads,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
