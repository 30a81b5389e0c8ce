package engine

import (
	"sync"
	"time"
)

// HistoryStep records one completed agent step.
type HistoryStep struct {
	Number                 int       `json:"number"`
	Timestamp              time.Time `json:"timestamp"`
	URL                    string    `json:"url"`
	NextGoal               string    `json:"next_goal"`
	EvaluationPreviousGoal string    `json:"evaluation_previous_goal"`
}

// History is the structured result object of an agent run.
type History struct {
	mu    sync.Mutex
	steps []HistoryStep
	final string
}

func (h *History) append(step HistoryStep) HistoryStep {
	h.mu.Lock()
	defer h.mu.Unlock()
	step.Number = len(h.steps) + 1
	h.steps = append(h.steps, step)
	return step
}

func (h *History) setFinal(result string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.final = result
}

// Steps returns a copy of the recorded steps.
func (h *History) Steps() []HistoryStep {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryStep, len(h.steps))
	copy(out, h.steps)
	return out
}

// FinalResult returns the textual result of the run. When the job never
// produced an explicit result, the goal of the last completed step is
// returned instead.
func (h *History) FinalResult() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.final != "" {
		return h.final
	}
	if len(h.steps) > 0 {
		return h.steps[len(h.steps)-1].NextGoal
	}
	return ""
}
