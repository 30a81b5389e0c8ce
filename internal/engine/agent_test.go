package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestParseAction(t *testing.T) {
	action, err := parseAction(`{"action":"navigate","url":"https://example.com","next_goal":"open the site"}`)
	require.NoError(t, err)
	assert.Equal(t, "navigate", action.Action)
	assert.Equal(t, "https://example.com", action.URL)
	assert.Equal(t, "open the site", action.NextGoal)
}

func TestParseActionToleratesFences(t *testing.T) {
	raw := "```json\n{\"action\": \"click\", \"selector\": \"#submit\"}\n```"
	action, err := parseAction(raw)
	require.NoError(t, err)
	assert.Equal(t, "click", action.Action)
	assert.Equal(t, "#submit", action.Selector)
}

func TestParseActionToleratesSurroundingText(t *testing.T) {
	raw := `Sure, here is the next step: {"action":"done","result":"42"} as requested.`
	action, err := parseAction(raw)
	require.NoError(t, err)
	assert.Equal(t, "done", action.Action)
	assert.Equal(t, "42", action.Result)
}

func TestParseActionRejectsGarbage(t *testing.T) {
	_, err := parseAction("I have no idea what to do")
	require.Error(t, err)

	_, err = parseAction(`{"url":"https://example.com"}`)
	require.Error(t, err, "missing action field must be rejected")
}

func TestHistoryNumbersSteps(t *testing.T) {
	h := &History{}
	first := h.append(HistoryStep{NextGoal: "a"})
	second := h.append(HistoryStep{NextGoal: "b"})

	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 2, second.Number)

	steps := h.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "b", steps[1].NextGoal)
}

func TestHistoryFinalResultFallback(t *testing.T) {
	h := &History{}
	assert.Equal(t, "", h.FinalResult())

	h.append(HistoryStep{NextGoal: "almost there", Timestamp: time.Now()})
	assert.Equal(t, "almost there", h.FinalResult())

	h.setFinal("the answer")
	assert.Equal(t, "the answer", h.FinalResult())
}

func TestSubstituteSensitive(t *testing.T) {
	agent := NewChromeAgent(nil, "login", map[string]string{
		"X_USERNAME": "alice@example.com",
		"X_PASSWORD": "hunter2",
	}, nil)

	out := agent.substituteSensitive("user {X_USERNAME} pass {X_PASSWORD} literal {X_OTHER}")
	assert.Equal(t, "user alice@example.com pass hunter2 literal {X_OTHER}", out)
}

func TestSystemPromptMentionsPlaceholdersOnly(t *testing.T) {
	agent := NewChromeAgent(nil, "login", map[string]string{"X_TOKEN": "supersecret"}, nil)

	prompt := agent.systemPrompt()
	assert.Contains(t, prompt, "{X_TOKEN}")
	assert.NotContains(t, prompt, "supersecret")
}

func TestTrimConversationKeepsAnchors(t *testing.T) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "system"),
		llms.TextParts(llms.ChatMessageTypeHuman, "task"),
	}
	for i := 0; i < 30; i++ {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, "step"))
	}

	trimmed := trimConversation(messages)
	require.Len(t, trimmed, 14)
	assert.Equal(t, "system", textOf(trimmed[0]))
	assert.Equal(t, "task", textOf(trimmed[1]))
}

func textOf(message llms.MessageContent) string {
	for _, part := range message.Parts {
		if text, ok := part.(llms.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
