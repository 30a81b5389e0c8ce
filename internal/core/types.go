package core

import (
	"time"

	"browserbridge/internal/engine"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	StatusCreated  TaskStatus = "created"
	StatusRunning  TaskStatus = "running"
	StatusFinished TaskStatus = "finished"
	StatusStopped  TaskStatus = "stopped"
	StatusPaused   TaskStatus = "paused"
	StatusFailed   TaskStatus = "failed"
	StatusStopping TaskStatus = "stopping"
)

// Terminal reports whether no further transitions are permitted.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// MediaType values for media entries.
const (
	MediaTypeScreenshot = "screenshot"
	MediaTypeRecording  = "recording"
	MediaTypeUnknown    = "unknown"
)

// Task is one submitted automation job and its accumulated state.
type Task struct {
	ID              string        `json:"id"`
	Instruction     string        `json:"task"`
	Provider        string        `json:"ai_provider"`
	Status          TaskStatus    `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	FinishedAt      *time.Time    `json:"finished_at"`
	Output          *string       `json:"output"`
	Error           *string       `json:"error"`
	Steps           []Step        `json:"steps"`
	Media           []MediaEntry  `json:"media"`
	Browser         BrowserConfig `json:"browser_config"`
	SaveBrowserData bool          `json:"save_browser_data"`
	BrowserData     *BrowserData  `json:"browser_data,omitempty"`
	LiveURL         string        `json:"live_url"`
}

// Clone returns a deep copy so callers can read without racing mutators.
func (t *Task) Clone() *Task {
	clone := *t
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		clone.FinishedAt = &finished
	}
	if t.Output != nil {
		output := *t.Output
		clone.Output = &output
	}
	if t.Error != nil {
		errText := *t.Error
		clone.Error = &errText
	}
	clone.Steps = append([]Step(nil), t.Steps...)
	clone.Media = append([]MediaEntry(nil), t.Media...)
	if t.Browser.Headful != nil {
		headful := *t.Browser.Headful
		clone.Browser.Headful = &headful
	}
	if t.Browser.UseCustomChrome != nil {
		custom := *t.Browser.UseCustomChrome
		clone.Browser.UseCustomChrome = &custom
	}
	if t.BrowserData != nil {
		data := *t.BrowserData
		data.Cookies = append([]engine.Cookie(nil), t.BrowserData.Cookies...)
		clone.BrowserData = &data
	}
	return &clone
}

// Step is an append-only progress marker for a running task.
type Step struct {
	Number                 int       `json:"step"`
	Timestamp              time.Time `json:"timestamp"`
	NextGoal               string    `json:"next_goal"`
	EvaluationPreviousGoal string    `json:"evaluation_previous_goal"`
}

// MediaEntry describes one captured artifact.
type MediaEntry struct {
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// BrowserConfig carries per-task browser overrides. Nil means "use the
// process default". Chrome executable and profile paths are deliberately
// absent; those come only from process configuration.
type BrowserConfig struct {
	Headful         *bool `json:"headful"`
	UseCustomChrome *bool `json:"use_custom_chrome"`
}

// BrowserData holds captured session data. Capture is best-effort: on
// failure Cookies is empty and Error records why.
type BrowserData struct {
	Cookies []engine.Cookie `json:"cookies"`
	Error   string          `json:"error,omitempty"`
}
