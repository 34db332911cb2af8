package domain

import "time"

type StepName string

const (
	StepUpload   StepName = "upload"
	StepBuild    StepName = "build"
	StepSign     StepName = "sign"
	StepDownload StepName = "download"
)

// WorkflowStep is one stage of a run. InputTaskID names the task this step
// depends on; it is empty for steps that start from a raw artifact.
type WorkflowStep struct {
	Name        StepName       `json:"name"`
	Action      string         `json:"action,omitempty"`
	InputTaskID string         `json:"input_task_id,omitempty"`
	Overrides   map[string]any `json:"overrides,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	Status      StepStatus     `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	FinishedAt  time.Time      `json:"finished_at,omitempty"`
}

// Ready reports whether the step's input dependency has completed. A step
// without a dependency is always ready.
func (s *WorkflowStep) Ready(dependency *WorkflowStep) bool {
	if dependency == nil {
		return true
	}
	return dependency.Status == StepStatusCompleted && dependency.TaskID != ""
}

// DownloadResult reports a single artifact fetch.
type DownloadResult struct {
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	BytesRead int64  `json:"bytes_read"`
}

// Run records one workflow invocation.
type Run struct {
	ID          string           `json:"id"`
	AppID       string           `json:"app_id,omitempty"`
	FusionSetID string           `json:"fusion_set_id"`
	TaskID      string           `json:"task_id,omitempty"`
	State       RunState         `json:"state"`
	Steps       []*WorkflowStep  `json:"steps"`
	Downloads   []DownloadResult `json:"downloads,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Step returns the named step, or nil.
func (r *Run) Step(name StepName) *WorkflowStep {
	for _, s := range r.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}
