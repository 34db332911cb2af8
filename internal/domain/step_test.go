package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatusQueued.IsTerminal())
	assert.False(t, TaskStatusProgress.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatus("cancelled").IsTerminal())
}

func TestWorkflowStep_Ready(t *testing.T) {
	build := &WorkflowStep{Name: StepBuild, Status: StepStatusInProgress, TaskID: "T1"}
	sign := &WorkflowStep{Name: StepSign}

	assert.True(t, sign.Ready(nil))
	assert.False(t, sign.Ready(build))

	build.Status = StepStatusCompleted
	assert.True(t, sign.Ready(build))

	build.TaskID = ""
	assert.False(t, sign.Ready(build))
}

func TestRun_Step(t *testing.T) {
	run := &Run{Steps: []*WorkflowStep{{Name: StepUpload}, {Name: StepBuild}}}

	assert.Equal(t, StepBuild, run.Step(StepBuild).Name)
	assert.Nil(t, run.Step(StepSign))
}
