package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"browserbridge/internal/config"
	"browserbridge/internal/core"
	"browserbridge/internal/media"
	"browserbridge/internal/store"
)

// SubmitRequest is a request to run a new automation task.
type SubmitRequest struct {
	Instruction     string
	Provider        string
	SaveBrowserData bool
	Headful         *bool
	UseCustomChrome *bool
}

// Controller implements the task control operations on top of the store and
// the executor. It is the single entry point for every serving surface;
// HTTP and MCP handlers only translate their wire formats to these calls.
type Controller struct {
	cfg     *config.Config
	store   store.Store
	handles *store.HandleRegistry
	media   *media.Pipeline
	exec    *Executor
	logger  *slog.Logger
}

func NewController(cfg *config.Config, st store.Store, handles *store.HandleRegistry,
	pipeline *media.Pipeline, exec *Executor, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		store:   st,
		handles: handles,
		media:   pipeline,
		exec:    exec,
		logger:  logger,
	}
}

// Submit creates a task document and launches its background execution.
func (c *Controller) Submit(ctx context.Context, scope string, req SubmitRequest) (*core.Task, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		return nil, fmt.Errorf("task instruction is required")
	}

	provider := req.Provider
	if provider == "" {
		provider = c.cfg.Provider.Default
	}

	id := core.NewID()
	task := &core.Task{
		ID:          id,
		Instruction: instruction,
		Provider:    provider,
		Status:      core.StatusCreated,
		CreatedAt:   time.Now().UTC(),
		Steps:       []core.Step{},
		Media:       []core.MediaEntry{},
		Browser: core.BrowserConfig{
			Headful:         req.Headful,
			UseCustomChrome: req.UseCustomChrome,
		},
		SaveBrowserData: req.SaveBrowserData,
		LiveURL:         "/live/" + id,
	}

	if err := c.store.Create(ctx, scope, task); err != nil {
		return nil, err
	}

	c.logger.Info("task submitted", "task_id", id, "scope", scope, "provider", provider)
	c.exec.Launch(scope, task.Clone())
	return task, nil
}

// Get returns the task document without side effects.
func (c *Controller) Get(ctx context.Context, scope, id string) (*core.Task, error) {
	return c.store.Get(ctx, scope, id)
}

// Observe returns the task document after recording a progress marker and
// capturing the current page. Polling a running task therefore leaves a
// visible trail on the document; Get is the side-effect-free read.
func (c *Controller) Observe(ctx context.Context, scope, id string) (*core.Task, error) {
	task, err := c.store.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	if task.Status == core.StatusRunning {
		step := core.Step{
			Number:                 len(task.Steps) + 1,
			Timestamp:              time.Now().UTC(),
			NextGoal:               fmt.Sprintf("Progress check %d", len(task.Steps)+1),
			EvaluationPreviousGoal: "In progress",
		}
		if err := c.store.AddStep(ctx, scope, id, step); err != nil {
			c.logger.Warn("progress marker not recorded", "task_id", id, "error", err)
		}
	}

	c.media.Capture(ctx, c.handles.Get(scope, id), scope, id)

	return c.store.Get(ctx, scope, id)
}

// Stop requests termination of a task. With a live agent the task moves to
// stopping and finalizes asynchronously; without one it is finalized here.
// Stopping an already terminal task is informational, not an error.
func (c *Controller) Stop(ctx context.Context, scope, id string) (string, error) {
	task, err := c.store.Get(ctx, scope, id)
	if err != nil {
		return "", err
	}
	if task.Status.Terminal() {
		return fmt.Sprintf("Task already in terminal state: %s", task.Status), nil
	}

	if agent := c.handles.Get(scope, id); agent != nil {
		// Record stopping before signaling so the agent's terminal
		// transition cannot race this update.
		if err := c.store.UpdateStatus(ctx, scope, id, core.StatusStopping); err != nil {
			if errors.Is(err, store.ErrTerminalState) {
				return c.currentStateMessage(ctx, scope, id, "Task already in terminal state: %s")
			}
			return "", err
		}
		agent.Stop()
		return "Task stopping", nil
	}

	// No live agent, likely a restart orphan. Finalize synchronously.
	if err := c.store.MarkFinished(ctx, scope, id, core.StatusStopped); err != nil {
		return "", err
	}
	return "Task stopped (no agent found)", nil
}

// Pause suspends a running task at its next step boundary.
func (c *Controller) Pause(ctx context.Context, scope, id string) (string, error) {
	task, err := c.store.Get(ctx, scope, id)
	if err != nil {
		return "", err
	}
	if task.Status != core.StatusRunning {
		return fmt.Sprintf("Task not running: %s", task.Status), nil
	}

	agent := c.handles.Get(scope, id)
	if agent == nil {
		return "Task could not be paused (no agent found)", nil
	}
	if err := c.store.UpdateStatus(ctx, scope, id, core.StatusPaused); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			return c.currentStateMessage(ctx, scope, id, "Task not running: %s")
		}
		return "", err
	}
	agent.Pause()
	return "Task paused", nil
}

func (c *Controller) currentStateMessage(ctx context.Context, scope, id, format string) (string, error) {
	task, err := c.store.Get(ctx, scope, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, task.Status), nil
}

// Resume continues a paused task.
func (c *Controller) Resume(ctx context.Context, scope, id string) (string, error) {
	task, err := c.store.Get(ctx, scope, id)
	if err != nil {
		return "", err
	}
	if task.Status != core.StatusPaused {
		return fmt.Sprintf("Task not paused: %s", task.Status), nil
	}

	agent := c.handles.Get(scope, id)
	if agent == nil {
		return "Task could not be resumed (no agent found)", nil
	}
	if err := c.store.UpdateStatus(ctx, scope, id, core.StatusRunning); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			return c.currentStateMessage(ctx, scope, id, "Task not paused: %s")
		}
		return "", err
	}
	agent.Resume()
	return "Task resumed", nil
}

// List returns one page of the scope's tasks, newest first.
func (c *Controller) List(ctx context.Context, scope string, page, perPage int) (*store.TaskPage, error) {
	return c.store.List(ctx, scope, page, perPage)
}

// Media returns the recorded media entries for a terminal task.
func (c *Controller) Media(ctx context.Context, scope, id string) ([]core.MediaEntry, error) {
	return c.media.List(ctx, scope, id)
}

// MediaFiles lists the files present in a task's media directory.
func (c *Controller) MediaFiles(taskID string) ([]media.FileInfo, error) {
	return c.media.FileInfos(taskID)
}

// MediaDir returns the on-disk media directory for a task.
func (c *Controller) MediaDir(taskID string) string {
	return c.media.TaskDir(taskID)
}

// Exists reports whether a task exists within the scope.
func (c *Controller) Exists(ctx context.Context, scope, id string) (bool, error) {
	return c.store.Exists(ctx, scope, id)
}
