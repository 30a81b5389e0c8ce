package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserbridge/internal/core"
	"browserbridge/internal/store"
)

func TestControllerSubmitDefaults(t *testing.T) {
	ctx := context.Background()
	agent := newStubAgent(nil, nil)
	h := newHarness(t, agent)

	task, err := h.control.Submit(ctx, store.DefaultScope, SubmitRequest{Instruction: "  check the weather  "})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "check the weather", task.Instruction)
	assert.Equal(t, "openai", task.Provider)
	assert.Equal(t, core.StatusCreated, task.Status)
	assert.Equal(t, "/live/"+task.ID, task.LiveURL)

	agent.finish()
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusFinished)
}

func TestControllerSubmitRejectsEmptyInstruction(t *testing.T) {
	h := newHarness(t, newStubAgent(nil, nil))

	_, err := h.control.Submit(context.Background(), store.DefaultScope, SubmitRequest{Instruction: "   "})
	require.Error(t, err)
}

func TestControllerObserveAddsProgressMarker(t *testing.T) {
	ctx := context.Background()
	agent := newStubAgent(nil, nil)
	h := newHarness(t, agent)

	task, err := h.control.Submit(ctx, store.DefaultScope, SubmitRequest{Instruction: "slow job"})
	require.NoError(t, err)
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusRunning)

	first, err := h.control.Observe(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	require.Len(t, first.Steps, 1)
	assert.Equal(t, "Progress check 1", first.Steps[0].NextGoal)
	assert.Equal(t, "In progress", first.Steps[0].EvaluationPreviousGoal)

	second, err := h.control.Observe(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	require.Len(t, second.Steps, 2)
	assert.Equal(t, "Progress check 2", second.Steps[1].NextGoal)

	agent.finish()
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusFinished)

	// Observing a terminal task reads without mutating.
	after, err := h.control.Observe(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Len(t, after.Steps, 2)
}

func TestControllerGetIsPure(t *testing.T) {
	ctx := context.Background()
	agent := newStubAgent(nil, nil)
	h := newHarness(t, agent)

	task, err := h.control.Submit(ctx, store.DefaultScope, SubmitRequest{Instruction: "slow job"})
	require.NoError(t, err)
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusRunning)

	got, err := h.control.Get(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Steps)

	agent.finish()
}

func TestControllerStopWithoutHandle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newStubAgent(nil, nil))

	// Create a document directly; no agent ever runs for it.
	task := &core.Task{ID: "orphan", Instruction: "x", Status: core.StatusRunning}
	require.NoError(t, h.store.Create(ctx, store.DefaultScope, task))

	message, err := h.control.Stop(ctx, store.DefaultScope, "orphan")
	require.NoError(t, err)
	assert.Equal(t, "Task stopped (no agent found)", message)

	got, err := h.store.Get(ctx, store.DefaultScope, "orphan")
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestControllerStopTerminalIsInformational(t *testing.T) {
	ctx := context.Background()
	agent := newStubAgent(nil, nil)
	h := newHarness(t, agent)

	task, err := h.control.Submit(ctx, store.DefaultScope, SubmitRequest{Instruction: "quick job"})
	require.NoError(t, err)
	agent.finish()
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusFinished)

	message, err := h.control.Stop(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task already in terminal state: finished", message)

	got, err := h.store.Get(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFinished, got.Status)
}

func TestControllerStopUnknownTask(t *testing.T) {
	h := newHarness(t, newStubAgent(nil, nil))

	_, err := h.control.Stop(context.Background(), store.DefaultScope, "missing")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestControllerPauseResume(t *testing.T) {
	ctx := context.Background()
	agent := newStubAgent(nil, nil)
	h := newHarness(t, agent)

	task, err := h.control.Submit(ctx, store.DefaultScope, SubmitRequest{Instruction: "pausable job"})
	require.NoError(t, err)
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusRunning)

	// Resume before pause is a no-op with the current status in the message.
	message, err := h.control.Resume(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task not paused: running", message)

	message, err = h.control.Pause(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task paused", message)
	assert.True(t, agent.paused.Load())
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusPaused)

	// Pausing twice reports the paused state without mutating.
	message, err = h.control.Pause(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task not running: paused", message)

	message, err = h.control.Resume(ctx, store.DefaultScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Task resumed", message)
	assert.False(t, agent.paused.Load())
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusRunning)

	agent.finish()
	waitForStatus(t, h.store, store.DefaultScope, task.ID, core.StatusFinished)
}

func TestControllerScopeIsolation(t *testing.T) {
	ctx := context.Background()
	agent := newStubAgent(nil, nil)
	h := newHarness(t, agent)

	task, err := h.control.Submit(ctx, "alice", SubmitRequest{Instruction: "alice's job"})
	require.NoError(t, err)

	_, err = h.control.Get(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	_, err = h.control.Stop(ctx, "bob", task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	agent.finish()
	waitForStatus(t, h.store, "alice", task.ID, core.StatusFinished)
}
