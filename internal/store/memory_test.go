package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserbridge/internal/core"
)

func newTask(id string) *core.Task {
	return &core.Task{
		ID:          id,
		Instruction: "open example.com",
		Provider:    "openai",
		Status:      core.StatusCreated,
		CreatedAt:   time.Now().UTC(),
		Steps:       []core.Step{},
		Media:       []core.MediaEntry{},
		LiveURL:     "/live/" + id,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	task := newTask("t1")
	require.NoError(t, m.Create(ctx, DefaultScope, task))

	got, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, core.StatusCreated, got.Status)

	// Duplicate ids are refused.
	err = m.Create(ctx, DefaultScope, newTask("t1"))
	assert.ErrorIs(t, err, ErrTaskExists)

	_, err = m.Get(ctx, DefaultScope, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, DefaultScope, newTask("t1")))

	got, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	got.Status = core.StatusFailed
	got.Steps = append(got.Steps, core.Step{Number: 99})

	fresh, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCreated, fresh.Status)
	assert.Empty(t, fresh.Steps)
}

func TestMemoryTerminalStatusIsImmutable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, DefaultScope, newTask("t1")))

	require.NoError(t, m.MarkFinished(ctx, DefaultScope, "t1", core.StatusFinished))

	err := m.UpdateStatus(ctx, DefaultScope, "t1", core.StatusRunning)
	assert.ErrorIs(t, err, ErrTerminalState)

	got, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFinished, got.Status)
}

func TestMemoryMarkFinishedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, DefaultScope, newTask("t1")))

	require.NoError(t, m.MarkFinished(ctx, DefaultScope, "t1", core.StatusStopped))
	first, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	require.NotNil(t, first.FinishedAt)

	// A second terminal transition neither changes the status nor the
	// completion timestamp.
	require.NoError(t, m.MarkFinished(ctx, DefaultScope, "t1", core.StatusFailed))
	second, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusStopped, second.Status)
	assert.Equal(t, first.FinishedAt, second.FinishedAt)
}

func TestMemoryOutputSurvivesFailure(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, DefaultScope, newTask("t1")))

	require.NoError(t, m.SetOutput(ctx, DefaultScope, "t1", "partial result"))
	require.NoError(t, m.SetError(ctx, DefaultScope, "t1", "boom"))
	require.NoError(t, m.MarkFinished(ctx, DefaultScope, "t1", core.StatusFailed))

	got, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	require.NotNil(t, got.Output)
	assert.Equal(t, "partial result", *got.Output)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
}

func TestMemoryAppendStepAndMedia(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, DefaultScope, newTask("t1")))

	for i := 1; i <= 3; i++ {
		require.NoError(t, m.AddStep(ctx, DefaultScope, "t1", core.Step{Number: i, NextGoal: fmt.Sprintf("step %d", i)}))
	}
	require.NoError(t, m.AddMedia(ctx, DefaultScope, "t1", core.MediaEntry{
		Filename: "final.png", Type: core.MediaTypeScreenshot, URL: "/media/t1/final.png",
	}))

	got, err := m.Get(ctx, DefaultScope, "t1")
	require.NoError(t, err)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, "step 3", got.Steps[2].NextGoal)
	require.Len(t, got.Media, 1)
	assert.Equal(t, core.MediaTypeScreenshot, got.Media[0].Type)
}

func TestMemoryScopeIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, "alice", newTask("t1")))

	_, err := m.Get(ctx, "bob", "t1")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	exists, err := m.Exists(ctx, "bob", "t1")
	require.NoError(t, err)
	assert.False(t, exists)

	// Same id may exist independently in another scope.
	require.NoError(t, m.Create(ctx, "bob", newTask("t1")))
	require.NoError(t, m.MarkFinished(ctx, "bob", "t1", core.StatusFailed))

	aliceTask, err := m.Get(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCreated, aliceTask.Status)
}

func TestMemoryListPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		task := newTask(fmt.Sprintf("t%d", i))
		task.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, m.Create(ctx, DefaultScope, task))
	}

	page, err := m.List(ctx, DefaultScope, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Tasks, 2)
	// Newest first.
	assert.Equal(t, "t4", page.Tasks[0].ID)
	assert.Equal(t, "t3", page.Tasks[1].ID)

	last, err := m.List(ctx, DefaultScope, 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Tasks, 1)
	assert.Equal(t, "t0", last.Tasks[0].ID)

	// Out-of-range pages come back empty, not as errors.
	empty, err := m.List(ctx, DefaultScope, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, empty.Tasks)
}
