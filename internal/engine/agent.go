package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/tmc/langchaingo/llms"
)

const (
	maxSteps       = 25
	maxPageContent = 8000
	pauseInterval  = 200 * time.Millisecond
)

const systemPromptTemplate = `You are a browser automation agent. You control a real browser to complete the user's task.

Respond with a single JSON object and nothing else:
{"action": "...", "url": "...", "selector": "...", "text": "...", "result": "...", "next_goal": "...", "evaluation_previous_goal": "..."}

Actions:
- navigate: open "url"
- click: click the element matching CSS "selector"
- type: type "text" into the element matching "selector"
- scroll: scroll to the bottom of the page
- wait: wait for "selector" to become visible
- done: task finished; put the final answer in "result"

Always fill "next_goal" with what you are about to do and "evaluation_previous_goal" with a short judgement of the previous step.%s`

// ChromeAgent drives a chromedp session with an LLM deciding each step.
type ChromeAgent struct {
	model       llms.Model
	instruction string
	opts        *Options
	sensitive   map[string]string
	history     *History

	mu      sync.Mutex
	session *chromeSession

	stopped atomic.Bool
	paused  atomic.Bool
}

// NewChromeAgent builds an agent for one instruction. A nil opts defers the
// browser session to the engine default. Sensitive values are substituted
// into typed text by placeholder name and are never exposed to the model.
func NewChromeAgent(model llms.Model, instruction string, sensitive map[string]string, opts *Options) *ChromeAgent {
	return &ChromeAgent{
		model:       model,
		instruction: instruction,
		opts:        opts,
		sensitive:   sensitive,
		history:     &History{},
	}
}

func (a *ChromeAgent) Stop()   { a.stopped.Store(true) }
func (a *ChromeAgent) Pause()  { a.paused.Store(true) }
func (a *ChromeAgent) Resume() { a.paused.Store(false) }

// Session returns the live browser session, or nil before launch and after
// close.
func (a *ChromeAgent) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	return a.session
}

// agentAction is the JSON contract between the model and the step executor.
type agentAction struct {
	Action                 string `json:"action"`
	URL                    string `json:"url,omitempty"`
	Selector               string `json:"selector,omitempty"`
	Text                   string `json:"text,omitempty"`
	Result                 string `json:"result,omitempty"`
	NextGoal               string `json:"next_goal,omitempty"`
	EvaluationPreviousGoal string `json:"evaluation_previous_goal,omitempty"`
}

// Run executes the step loop until the model reports done, the step budget
// is exhausted, or a stop signal is observed at a step boundary.
func (a *ChromeAgent) Run(ctx context.Context, onStep StepFunc) (any, error) {
	if err := a.ensureSession(); err != nil {
		return nil, err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, "Task: "+a.instruction),
	}

	for step := 1; step <= maxSteps; step++ {
		if err := a.waitWhilePaused(ctx); err != nil {
			return a.history, err
		}
		if a.stopped.Load() {
			return a.history, ErrStopped
		}

		url, page := a.observePage(ctx)
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
			fmt.Sprintf("Current URL: %s\nPage content:\n%s", url, page)))

		resp, err := a.model.GenerateContent(ctx, messages)
		if err != nil {
			return a.history, fmt.Errorf("generate step %d: %w", step, err)
		}
		if len(resp.Choices) == 0 {
			return a.history, fmt.Errorf("generate step %d: empty response", step)
		}
		raw := resp.Choices[0].Content
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, raw))

		action, err := parseAction(raw)
		if err != nil {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
				"Your previous response was not valid JSON. Respond with a single JSON action object."))
			continue
		}

		recorded := a.history.append(HistoryStep{
			Timestamp:              time.Now().UTC(),
			URL:                    url,
			NextGoal:               action.NextGoal,
			EvaluationPreviousGoal: action.EvaluationPreviousGoal,
		})

		if action.Action == "done" {
			a.history.setFinal(action.Result)
			if onStep != nil {
				onStep(ctx, a, recorded)
			}
			return a.history, nil
		}

		if err := a.perform(ctx, action); err != nil {
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
				fmt.Sprintf("Action %q failed: %v. Choose a different approach.", action.Action, err)))
		}
		if onStep != nil {
			onStep(ctx, a, recorded)
		}

		messages = trimConversation(messages)
	}

	return a.history, fmt.Errorf("agent exceeded %d steps without finishing", maxSteps)
}

func (a *ChromeAgent) ensureSession() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return nil
	}
	session, err := newChromeSession(a.opts)
	if err != nil {
		return err
	}
	a.session = session
	return nil
}

func (a *ChromeAgent) systemPrompt() string {
	if len(a.sensitive) == 0 {
		return fmt.Sprintf(systemPromptTemplate, "")
	}
	keys := make([]string, 0, len(a.sensitive))
	for key := range a.sensitive {
		keys = append(keys, "{"+key+"}")
	}
	sort.Strings(keys)
	note := fmt.Sprintf("\n\nCredential placeholders available for \"type\" actions: %s. Use the placeholder verbatim; the real value is substituted outside the conversation.",
		strings.Join(keys, ", "))
	return fmt.Sprintf(systemPromptTemplate, note)
}

// observePage reads the current URL and a truncated text rendering of the
// page. Failures degrade to empty observations rather than failing the run.
func (a *ChromeAgent) observePage(ctx context.Context) (string, string) {
	url, err := a.session.CurrentURL(ctx)
	if err != nil {
		url = "unknown"
	}
	var text string
	err = a.session.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text))
	if err != nil {
		text = ""
	}
	if len(text) > maxPageContent {
		text = text[:maxPageContent] + "\n... (truncated)"
	}
	return url, text
}

func (a *ChromeAgent) perform(ctx context.Context, action agentAction) error {
	switch action.Action {
	case "navigate":
		if action.URL == "" {
			return fmt.Errorf("navigate requires a url")
		}
		return a.session.run(ctx, chromedp.Navigate(action.URL))
	case "click":
		if action.Selector == "" {
			return fmt.Errorf("click requires a selector")
		}
		return a.session.run(ctx, chromedp.Click(action.Selector, chromedp.ByQuery))
	case "type":
		if action.Selector == "" || action.Text == "" {
			return fmt.Errorf("type requires a selector and text")
		}
		return a.session.run(ctx, chromedp.SendKeys(action.Selector, a.substituteSensitive(action.Text), chromedp.ByQuery))
	case "scroll":
		return a.session.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
	case "wait":
		if action.Selector == "" {
			return fmt.Errorf("wait requires a selector")
		}
		return a.session.run(ctx, chromedp.WaitVisible(action.Selector, chromedp.ByQuery))
	default:
		return fmt.Errorf("unknown action %q", action.Action)
	}
}

func (a *ChromeAgent) substituteSensitive(text string) string {
	for key, value := range a.sensitive {
		text = strings.ReplaceAll(text, "{"+key+"}", value)
	}
	return text
}

func (a *ChromeAgent) waitWhilePaused(ctx context.Context) error {
	for a.paused.Load() {
		if a.stopped.Load() {
			return ErrStopped
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pauseInterval):
		}
	}
	return nil
}

// parseAction tolerates markdown fences around the model's JSON output.
func parseAction(raw string) (agentAction, error) {
	trimmed := strings.TrimSpace(raw)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	var action agentAction
	if err := json.Unmarshal([]byte(trimmed), &action); err != nil {
		return agentAction{}, fmt.Errorf("parse action: %w", err)
	}
	if action.Action == "" {
		return agentAction{}, fmt.Errorf("parse action: missing action field")
	}
	return action, nil
}

func trimConversation(messages []llms.MessageContent) []llms.MessageContent {
	// Keep the system prompt, the task, and the most recent exchanges.
	const keepRecent = 12
	if len(messages) <= 2+keepRecent {
		return messages
	}
	trimmed := make([]llms.MessageContent, 0, 2+keepRecent)
	trimmed = append(trimmed, messages[:2]...)
	trimmed = append(trimmed, messages[len(messages)-keepRecent:]...)
	return trimmed
}
