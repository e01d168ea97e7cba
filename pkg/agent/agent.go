package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prasetya/wisma/pkg/tools"
	"github.com/rs/zerolog"
)

const (
	defaultMaxHistory   = 100
	defaultMaxToolTurns = 10
	defaultMaxRetries   = 3
)

// Toolset is the tool surface an agent may invoke. tools.CapabilitySet
// satisfies it; tests substitute fakes.
type Toolset interface {
	Tools(ctx context.Context) ([]tools.ToolSpec, error)
	Call(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Params configures a new agent.
type Params struct {
	Username     string
	Provider     string // inferred from Model when empty
	Model        string
	APIKey       string // literal, or "$NAME" env reference
	BaseURL      string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	MaxHistory   int
	MaxToolTurns int
	Logger       zerolog.Logger
}

// Agent is one user's conversational agent. The model binding, system
// prompt, and toolset are immutable; only the bounded history evolves.
// Run is serialized by the session layer and never runs concurrently.
type Agent struct {
	username     string
	model        string
	system       string
	temperature  float64
	maxTokens    int
	maxHistory   int
	maxToolTurns int
	provider     Provider
	toolset      Toolset
	logger       zerolog.Logger

	mu      sync.Mutex
	history []Message
	closed  bool
}

// New builds an agent bound to a model endpoint and a toolset. The API key
// is resolved here (ErrCredential on failure); model reachability is checked
// lazily on the first turn.
func New(params Params, toolset Toolset) (*Agent, error) {
	if params.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if params.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey, err := ResolveAPIKey(params.APIKey)
	if err != nil {
		return nil, err
	}

	providerName := params.Provider
	if providerName == "" {
		providerName = InferProvider(params.Model)
	}
	provider, err := NewProvider(providerName, apiKey, params.BaseURL)
	if err != nil {
		return nil, err
	}

	maxHistory := params.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	maxToolTurns := params.MaxToolTurns
	if maxToolTurns <= 0 {
		maxToolTurns = defaultMaxToolTurns
	}

	return &Agent{
		username:     params.Username,
		model:        params.Model,
		system:       params.SystemPrompt,
		temperature:  params.Temperature,
		maxTokens:    params.MaxTokens,
		maxHistory:   maxHistory,
		maxToolTurns: maxToolTurns,
		provider:     provider,
		toolset:      toolset,
		logger:       params.Logger.With().Str("username", params.Username).Logger(),
	}, nil
}

// Model returns the bound model name.
func (a *Agent) Model() string { return a.model }

// SystemPrompt returns the bound system prompt.
func (a *Agent) SystemPrompt() string { return a.system }

// Run executes one chat turn: prompt in, final assistant text out. Tool
// calls requested by the model are executed against the toolset, feeding
// results back until the model answers in plain text.
func (a *Agent) Run(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", fmt.Errorf("agent is closed")
	}
	working := make([]Message, len(a.history), len(a.history)+2)
	copy(working, a.history)
	a.mu.Unlock()

	specs, err := a.toolset.Tools(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: list tools: %v", ErrTool, err)
	}

	working = append(working, Message{Role: "user", Content: prompt})

	for turn := 0; turn < a.maxToolTurns; turn++ {
		resp, err := a.complete(ctx, working, specs)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrModel, err)
		}

		if len(resp.ToolCalls) == 0 {
			a.remember(prompt, resp.Content)
			return resp.Content, nil
		}

		working = append(working, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			start := time.Now()
			output, err := a.toolset.Call(ctx, call.Name, call.Arguments)
			if err != nil {
				// Tool failures go back to the model as results so it can
				// recover or report them; the turn itself continues.
				a.logger.Warn().
					Str("tool", call.Name).
					Dur("elapsed", time.Since(start)).
					Err(err).
					Msg("Tool call failed")
				output = fmt.Sprintf("tool error: %v", err)
			} else {
				a.logger.Debug().
					Str("tool", call.Name).
					Dur("elapsed", time.Since(start)).
					Msg("Tool call completed")
			}
			working = append(working, Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("%w: tool loop exceeded %d turns", ErrTool, a.maxToolTurns)
}

// complete calls the provider with bounded retries on transient failures.
func (a *Agent) complete(ctx context.Context, messages []Message, specs []tools.ToolSpec) (*Response, error) {
	req := Request{
		Model:        a.model,
		Messages:     messages,
		Tools:        specs,
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
		SystemPrompt: a.system,
	}

	var lastErr error
	for attempt := 0; attempt < defaultMaxRetries; attempt++ {
		resp, err := a.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == defaultMaxRetries-1 {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		a.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying model call")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// remember appends the completed exchange to the bounded history window.
func (a *Agent) remember(prompt, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.history = append(a.history,
		Message{Role: "user", Content: prompt},
		Message{Role: "assistant", Content: reply},
	)
	if len(a.history) > a.maxHistory {
		a.history = append([]Message(nil), a.history[len(a.history)-a.maxHistory:]...)
	}
}

// HistoryLen returns the number of retained history messages.
func (a *Agent) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// Close discards the conversation history. Idempotent; the providers and
// tool handles are owned elsewhere and are not touched.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.history = nil
	return nil
}
