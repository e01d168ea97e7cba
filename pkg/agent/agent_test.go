package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prasetya/wisma/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	responses []*Response
	errs      []error
	calls     int
	requests  []Request
}

func (p *fakeProvider) Complete(_ context.Context, req Request) (*Response, error) {
	i := p.calls
	p.calls++
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &Response{Content: "ok"}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

type fakeToolset struct {
	specs    []tools.ToolSpec
	results  map[string]string
	callErr  error
	listErr  error
	invoked  []string
}

func (ts *fakeToolset) Tools(context.Context) ([]tools.ToolSpec, error) {
	return ts.specs, ts.listErr
}

func (ts *fakeToolset) Call(_ context.Context, name string, _ map[string]interface{}) (string, error) {
	ts.invoked = append(ts.invoked, name)
	if ts.callErr != nil {
		return "", ts.callErr
	}
	return ts.results[name], nil
}

func newTestAgent(t *testing.T, provider Provider, toolset Toolset) *Agent {
	t.Helper()
	ag, err := New(Params{
		Username:     "alice",
		Model:        "gpt-4o",
		APIKey:       "sk-test",
		SystemPrompt: "be helpful",
		Logger:       zerolog.Nop(),
	}, toolset)
	require.NoError(t, err)
	ag.provider = provider
	return ag
}

func TestAgent_RunPlainReply(t *testing.T) {
	provider := &fakeProvider{responses: []*Response{{Content: "hi alice"}}}
	ag := newTestAgent(t, provider, &fakeToolset{})

	reply, err := ag.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi alice", reply)

	// One exchange remembered: user prompt plus assistant reply.
	assert.Equal(t, 2, ag.HistoryLen())

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "be helpful", provider.requests[0].SystemPrompt)
	last := provider.requests[0].Messages[len(provider.requests[0].Messages)-1]
	assert.Equal(t, "hello", last.Content)
}

func TestAgent_RunToolLoop(t *testing.T) {
	provider := &fakeProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "t1", Name: "read_file", Arguments: map[string]interface{}{"path": "/x"}}}},
		{Content: "the file says hi"},
	}}
	toolset := &fakeToolset{
		specs:   []tools.ToolSpec{{Name: "read_file"}},
		results: map[string]string{"read_file": "hi"},
	}
	ag := newTestAgent(t, provider, toolset)

	reply, err := ag.Run(context.Background(), "read /x")
	require.NoError(t, err)
	assert.Equal(t, "the file says hi", reply)
	assert.Equal(t, []string{"read_file"}, toolset.invoked)

	// The second completion saw the assistant tool call and its result.
	second := provider.requests[1].Messages
	assert.Equal(t, "assistant", second[len(second)-2].Role)
	assert.Equal(t, "tool", second[len(second)-1].Role)
	assert.Equal(t, "hi", second[len(second)-1].Content)
}

func TestAgent_ToolFailureFedBack(t *testing.T) {
	provider := &fakeProvider{responses: []*Response{
		{ToolCalls: []ToolCall{{ID: "t1", Name: "read_file"}}},
		{Content: "could not read it"},
	}}
	toolset := &fakeToolset{
		specs:   []tools.ToolSpec{{Name: "read_file"}},
		callErr: errors.New("permission denied"),
	}
	ag := newTestAgent(t, provider, toolset)

	reply, err := ag.Run(context.Background(), "read /x")
	require.NoError(t, err)
	assert.Equal(t, "could not read it", reply)

	second := provider.requests[1].Messages
	assert.Contains(t, second[len(second)-1].Content, "permission denied")
}

func TestAgent_ModelError(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("invalid api key")}}
	ag := newTestAgent(t, provider, &fakeToolset{})

	_, err := ag.Run(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrModel)

	// The failed turn is not remembered; the session stays usable.
	assert.Equal(t, 0, ag.HistoryLen())
}

func TestAgent_RetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{
		errs:      []error{errors.New("503 service unavailable"), nil},
		responses: []*Response{nil, {Content: "recovered"}},
	}
	ag := newTestAgent(t, provider, &fakeToolset{})

	reply, err := ag.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, 2, provider.calls)
}

func TestAgent_ToolListFailure(t *testing.T) {
	ag := newTestAgent(t, &fakeProvider{}, &fakeToolset{listErr: errors.New("provider gone")})

	_, err := ag.Run(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrTool)
}

func TestAgent_ToolLoopBounded(t *testing.T) {
	// The model keeps asking for tools forever.
	responses := make([]*Response, 0, 16)
	for i := 0; i < 16; i++ {
		responses = append(responses, &Response{
			ToolCalls: []ToolCall{{ID: fmt.Sprintf("t%d", i), Name: "read_file"}},
		})
	}
	toolset := &fakeToolset{
		specs:   []tools.ToolSpec{{Name: "read_file"}},
		results: map[string]string{"read_file": "x"},
	}
	ag := newTestAgent(t, &fakeProvider{responses: responses}, toolset)

	_, err := ag.Run(context.Background(), "loop")
	assert.ErrorIs(t, err, ErrTool)
}

func TestAgent_HistoryBounded(t *testing.T) {
	provider := &fakeProvider{}
	ag := newTestAgent(t, provider, &fakeToolset{})
	ag.maxHistory = 4

	for i := 0; i < 10; i++ {
		_, err := ag.Run(context.Background(), fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, ag.HistoryLen())
}

func TestAgent_CloseIdempotent(t *testing.T) {
	ag := newTestAgent(t, &fakeProvider{}, &fakeToolset{})

	require.NoError(t, ag.Close())
	require.NoError(t, ag.Close())

	_, err := ag.Run(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNew_CredentialError(t *testing.T) {
	_, err := New(Params{
		Username: "alice",
		Model:    "gpt-4o",
		APIKey:   "$WISMA_TEST_MISSING_KEY",
		Logger:   zerolog.Nop(),
	}, &fakeToolset{})
	assert.ErrorIs(t, err, ErrCredential)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("429 too many requests")))
	assert.True(t, IsRetryable(errors.New("got 502 from upstream")))
	assert.False(t, IsRetryable(errors.New("invalid api key")))
	assert.False(t, IsRetryable(nil))
}
