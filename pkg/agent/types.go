package agent

import (
	"errors"
	"strings"

	"github.com/prasetya/wisma/pkg/tools"
)

var (
	// ErrModel wraps failures of the model endpoint. Transient for the
	// session: the turn fails but the session stays usable.
	ErrModel = errors.New("model error")

	// ErrTool wraps failures of tool discovery or a runaway tool loop.
	ErrTool = errors.New("tool error")
)

// Message is one turn in a conversation.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// TokenUsage tracks token consumption for one completion.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Request carries one completion request to a provider.
type Request struct {
	Model        string
	Messages     []Message
	Tools        []tools.ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Response is a provider's completion result.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// IsRetryable reports whether a provider error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	for _, marker := range []string{
		"ECONNRESET", "ETIMEDOUT", "connection reset",
		"429", "rate limit",
		"500", "502", "503", "504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
