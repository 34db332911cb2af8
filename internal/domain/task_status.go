package domain

// TaskStatus represents the state of a remote task as reported by the service.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusProgress  TaskStatus = "progress"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further transition can happen. Unknown
// values are terminal: the poller only keeps waiting on queued or progress.
func (s TaskStatus) IsTerminal() bool {
	return s != TaskStatusQueued && s != TaskStatusProgress
}

// StepStatus represents the state of a single workflow step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// RunState represents the overall outcome of a workflow run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateSucceeded RunState = "succeeded"
	RunStateFailed    RunState = "failed"
)
