// Package engine defines the capability contracts of the browser automation
// engine and provides a chromedp-backed implementation. The orchestrator
// depends only on these interfaces, never on a concrete engine.
package engine

import (
	"context"
	"errors"
)

// ErrStopped is returned by Agent.Run when the job unwound in response to a
// Stop signal rather than finishing on its own.
var ErrStopped = errors.New("agent stopped")

// StepFunc is invoked at each step boundary of a running agent with the step
// that just completed. Callbacks must not fail the job; implementations are
// expected to swallow their own errors.
type StepFunc func(ctx context.Context, agent Agent, step HistoryStep)

// Agent is a live automation job. Run executes the job to completion and is
// called at most once; Stop, Pause and Resume may be called concurrently
// with Run and are observed cooperatively at step boundaries.
type Agent interface {
	// Run drives the job and returns its result object. The result is
	// typically a *History; callers should fall back to a string
	// conversion when it is not.
	Run(ctx context.Context, onStep StepFunc) (any, error)
	Stop()
	Pause()
	Resume()
	// Session returns the browser session owned by the job, or nil when no
	// session exists yet (or any more).
	Session() Session
}

// Session is a live browser session bound to exactly one job.
type Session interface {
	// TakeScreenshot returns encoded PNG image bytes.
	TakeScreenshot(ctx context.Context, fullPage bool) ([]byte, error)
	CurrentURL(ctx context.Context) (string, error)
	// CookieAccess returns the session's cookie accessor, resolved once at
	// session construction, or nil when cookie retrieval is unsupported.
	CookieAccess() CookieAccess
	Close(ctx context.Context) error
}

// CookieAccess retrieves cookies from a browser session. Adapters declare
// their variant (direct, page-level or context-level) upfront instead of
// being probed on every call.
type CookieAccess interface {
	Cookies(ctx context.Context) ([]Cookie, error)
}

// Cookie is a captured browser cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
}

// Options configures an explicitly constructed browser session. A nil
// *Options tells the agent to use its own default session instead of
// spawning a customized one.
type Options struct {
	Headless    bool
	ChromePath  string
	UserDataDir string
}
