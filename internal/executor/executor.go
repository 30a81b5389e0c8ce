// Package executor runs submitted tasks to completion in the background and
// exposes the control operations (submit, observe, stop, pause, resume) that
// the HTTP and MCP surfaces share.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"

	"browserbridge/internal/config"
	"browserbridge/internal/core"
	"browserbridge/internal/engine"
	"browserbridge/internal/media"
	"browserbridge/internal/notify"
	"browserbridge/internal/store"
)

// ProviderResolver builds a model client for a provider key.
type ProviderResolver interface {
	Resolve(ctx context.Context, key string) (llms.Model, error)
}

// AgentFactory constructs an automation agent for one task. A nil opts asks
// the agent for its default browser session.
type AgentFactory func(model llms.Model, instruction string, sensitive map[string]string, opts *engine.Options) engine.Agent

// Executor launches one goroutine per task and owns the full execution
// lifecycle: status transitions, media capture, browser data collection and
// cleanup. Every task ends in exactly one terminal status.
type Executor struct {
	cfg       *config.Config
	store     store.Store
	handles   *store.HandleRegistry
	media     *media.Pipeline
	providers ProviderResolver
	notifier  notify.Notifier
	newAgent  AgentFactory
	logger    *slog.Logger

	// baseCtx bounds every task run; cancelling it asks all running agents
	// to unwind.
	baseCtx context.Context
}

func New(ctx context.Context, cfg *config.Config, st store.Store, handles *store.HandleRegistry,
	pipeline *media.Pipeline, providers ProviderResolver, notifier notify.Notifier,
	newAgent AgentFactory, logger *slog.Logger) *Executor {
	if newAgent == nil {
		newAgent = func(model llms.Model, instruction string, sensitive map[string]string, opts *engine.Options) engine.Agent {
			return engine.NewChromeAgent(model, instruction, sensitive, opts)
		}
	}
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}
	return &Executor{
		cfg:       cfg,
		store:     st,
		handles:   handles,
		media:     pipeline,
		providers: providers,
		notifier:  notifier,
		newAgent:  newAgent,
		logger:    logger,
		baseCtx:   ctx,
	}
}

// Launch starts background execution for a freshly created task.
func (e *Executor) Launch(scope string, task *core.Task) {
	go e.execute(scope, task)
}

func (e *Executor) execute(scope string, task *core.Task) {
	ctx := e.baseCtx
	id := task.ID
	logger := e.logger.With("task_id", id, "scope", scope)

	recordPanic := func() {
		if r := recover(); r != nil {
			logger.Error("task execution panicked", "panic", r)
			e.fail(ctx, scope, id, fmt.Sprintf("internal error: %v", r))
		}
	}
	defer recordPanic()

	if err := e.store.UpdateStatus(ctx, scope, id, core.StatusRunning); err != nil {
		// A stop that raced the launch already finalized the document.
		logger.Warn("task not started", "error", err)
		return
	}

	model, err := e.providers.Resolve(ctx, task.Provider)
	if err != nil {
		logger.Error("provider unavailable", "provider", task.Provider, "error", err)
		e.fail(ctx, scope, id, fmt.Sprintf("provider %s unavailable: %v", task.Provider, err))
		return
	}

	if _, err := e.media.EnsureTaskDir(id); err != nil {
		logger.Warn("media directory unavailable", "error", err)
	}

	agent := e.newAgent(model, task.Instruction, e.cfg.Sensitive, e.browserOptions(task))

	e.handles.Set(scope, id, agent)
	defer e.handles.Remove(scope, id)
	defer e.cleanup(ctx, agent, scope, id, logger)
	// Re-armed after cleanup so a panicking run is already marked failed when
	// the final capture fires.
	defer recordPanic()

	onStep := func(stepCtx context.Context, ag engine.Agent, step engine.HistoryStep) {
		if err := e.store.AddStep(stepCtx, scope, id, core.Step{
			Number:                 step.Number,
			Timestamp:              step.Timestamp,
			NextGoal:               step.NextGoal,
			EvaluationPreviousGoal: step.EvaluationPreviousGoal,
		}); err != nil {
			logger.Warn("step not recorded", "step", step.Number, "error", err)
		}
		e.media.Capture(stepCtx, ag, scope, id)
	}

	result, runErr := agent.Run(ctx, onStep)

	switch {
	case errors.Is(runErr, engine.ErrStopped):
		if err := e.store.MarkFinished(ctx, scope, id, core.StatusStopped); err != nil {
			logger.Warn("stop not recorded", "error", err)
		}
		logger.Info("task stopped")
		e.notify(ctx, "Task stopped", task.Instruction)
	case runErr != nil:
		logger.Error("task failed", "error", runErr)
		e.fail(ctx, scope, id, runErr.Error())
		e.notify(ctx, "Task failed", runErr.Error())
	default:
		if err := e.store.MarkFinished(ctx, scope, id, core.StatusFinished); err != nil {
			logger.Warn("finish not recorded", "error", err)
		}
		output := formatResult(result)
		if err := e.store.SetOutput(ctx, scope, id, output); err != nil {
			logger.Warn("output not recorded", "error", err)
		}
		logger.Info("task finished")
		e.notify(ctx, "Task finished", output)
	}

	if task.SaveBrowserData {
		e.collectBrowserData(ctx, agent, scope, id, logger)
	}
}

// browserOptions merges the process browser defaults with the task's
// overrides. A request may flip headful mode or opt out of the custom Chrome
// binary, but the executable and profile paths themselves come only from
// process configuration.
func (e *Executor) browserOptions(task *core.Task) *engine.Options {
	headful := e.cfg.Browser.Headful
	if task.Browser.Headful != nil {
		headful = *task.Browser.Headful
	}

	chromePath := e.cfg.Browser.ChromePath
	userDataDir := e.cfg.Browser.ChromeUserData
	if task.Browser.UseCustomChrome != nil && !*task.Browser.UseCustomChrome {
		chromePath = ""
		userDataDir = ""
	}

	if headful && chromePath == "" {
		// Nothing to customize; let the agent build its default session.
		return nil
	}
	return &engine.Options{
		Headless:    !headful,
		ChromePath:  chromePath,
		UserDataDir: userDataDir,
	}
}

// cleanup captures the final page and closes the browser. It runs after the
// terminal status is recorded so the capture is named for the outcome.
func (e *Executor) cleanup(ctx context.Context, agent engine.Agent, scope, id string, logger *slog.Logger) {
	e.media.Capture(ctx, agent, scope, id)
	if session := agent.Session(); session != nil {
		if err := session.Close(ctx); err != nil {
			logger.Warn("browser session close failed", "error", err)
		}
	}
}

func (e *Executor) fail(ctx context.Context, scope, id, message string) {
	if err := e.store.SetError(ctx, scope, id, message); err != nil {
		e.logger.Warn("error not recorded", "task_id", id, "error", err)
	}
	if err := e.store.MarkFinished(ctx, scope, id, core.StatusFailed); err != nil {
		e.logger.Warn("failure not recorded", "task_id", id, "error", err)
	}
}

// collectBrowserData reads session cookies onto the task document. Capture is
// best-effort: the document records the failure instead of losing the task.
func (e *Executor) collectBrowserData(ctx context.Context, agent engine.Agent, scope, id string, logger *slog.Logger) {
	data := &core.BrowserData{Cookies: []engine.Cookie{}}

	session := agent.Session()
	switch {
	case session == nil:
		data.Error = "browser session no longer available"
	case session.CookieAccess() == nil:
		data.Error = "browser session does not expose cookies"
	default:
		cookies, err := session.CookieAccess().Cookies(ctx)
		if err != nil {
			data.Error = fmt.Sprintf("cookie retrieval failed: %v", err)
		} else {
			data.Cookies = cookies
		}
	}

	if err := e.store.Update(ctx, scope, id, store.TaskPatch{BrowserData: data}); err != nil {
		logger.Warn("browser data not recorded", "error", err)
	}
}

func (e *Executor) notify(ctx context.Context, title, body string) {
	if err := e.notifier.Send(ctx, title, body); err != nil {
		e.logger.Warn("notification failed", "error", err)
	}
}

func formatResult(result any) string {
	if history, ok := result.(*engine.History); ok {
		return history.FinalResult()
	}
	if result == nil {
		return ""
	}
	return fmt.Sprint(result)
}
