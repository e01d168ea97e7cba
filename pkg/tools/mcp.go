package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultCallTimeout = 30 * time.Second

// JSON-RPC framing for the MCP stdio transport.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ToolSpec describes one tool exposed by a provider, in the shape the model
// providers expect for function calling.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// MCPClient speaks the MCP stdio protocol to one tool provider process.
// Start and Stop are idempotent; Stop on a never-started or already-stopped
// client is a no-op.
type MCPClient struct {
	name    string
	command string
	args    []string
	env     map[string]string
	timeout time.Duration

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	nextID    int
	pending   map[int]chan *rpcResponse
	stopped   bool
	toolCache []ToolSpec
}

// NewMCPClient creates a client for one provider process. The process is not
// started until Start is called.
func NewMCPClient(name, command string, args []string, env map[string]string) *MCPClient {
	return &MCPClient{
		name:    name,
		command: command,
		args:    args,
		env:     env,
		timeout: defaultCallTimeout,
		pending: make(map[int]chan *rpcResponse),
	}
}

// Start launches the provider process and performs the initialize handshake.
func (c *MCPClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("mcp provider %s: already stopped", c.name)
	}
	if c.cmd != nil {
		c.mu.Unlock()
		return nil
	}

	cmd := exec.Command(c.command, c.args...)
	cmd.Env = os.Environ()
	for k, v := range c.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("mcp provider %s: %w", c.name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("mcp provider %s: %w", c.name, err)
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("mcp provider %s: %w", c.name, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.mu.Unlock()

	go c.listen(bufio.NewScanner(stdout))

	if err := c.initialize(ctx); err != nil {
		_ = c.Stop()
		return fmt.Errorf("mcp provider %s: initialize: %w", c.name, err)
	}
	return nil
}

func (c *MCPClient) listen(scanner *bufio.Scanner) {
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var resp rpcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Warn().Str("provider", c.name).Err(err).Msg("Unparseable MCP response line")
			continue
		}

		id, ok := resp.ID.(float64)
		if !ok {
			continue // notification, nothing waiting
		}

		c.mu.Lock()
		ch, exists := c.pending[int(id)]
		if exists {
			delete(c.pending, int(id))
		}
		c.mu.Unlock()
		if exists {
			ch <- &resp
		}
	}
}

func (c *MCPClient) initialize(ctx context.Context) error {
	_, err := c.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "wisma",
			"version": "0.1.0",
		},
	})
	return err
}

func (c *MCPClient) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	if c.stopped || c.stdin == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("provider not running")
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		c.forget(id)
		return nil, err
	}
	if _, err := stdin.Write(append(data, '\n')); err != nil {
		c.forget(id)
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("provider stopped")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-time.After(c.timeout):
		c.forget(id)
		return nil, fmt.Errorf("request timeout after %s", c.timeout)
	}
}

// forget drops a pending request whose response will never be consumed, so
// abandoned calls do not accumulate entries until Stop.
func (c *MCPClient) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Tools lists the provider's tools. The list is fetched once and cached; a
// provider's tool surface does not change within its lifetime.
func (c *MCPClient) Tools(ctx context.Context) ([]ToolSpec, error) {
	c.mu.Lock()
	cached := c.toolCache
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("mcp provider %s: %w", c.name, err)
	}

	var list struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return nil, fmt.Errorf("mcp provider %s: %w", c.name, err)
	}

	specs := make([]ToolSpec, 0, len(list.Tools))
	for _, t := range list.Tools {
		spec := ToolSpec{Name: t.Name, Description: t.Description}
		if len(t.InputSchema) > 0 {
			var schema map[string]interface{}
			if err := json.Unmarshal(t.InputSchema, &schema); err == nil {
				spec.InputSchema = schema
			}
		}
		if spec.InputSchema == nil {
			spec.InputSchema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		specs = append(specs, spec)
	}

	c.mu.Lock()
	c.toolCache = specs
	c.mu.Unlock()
	return specs, nil
}

// CallTool invokes one tool and flattens the MCP content blocks to text.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp provider %s: tool %s: %w", c.name, name, err)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		// Providers are allowed to return arbitrary result shapes.
		return string(resp.Result), nil
	}

	text := ""
	for _, block := range result.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("mcp provider %s: tool %s: %s", c.name, name, text)
	}
	if text == "" {
		return string(resp.Result), nil
	}
	return text, nil
}

// Stop terminates the provider process. Safe to call concurrently and more
// than once; never errors on a provider that was not running.
func (c *MCPClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}

	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if err := c.cmd.Process.Kill(); err != nil {
		log.Debug().Str("provider", c.name).Err(err).Msg("Provider process already gone")
	}
	go func(cmd *exec.Cmd) { _ = cmd.Wait() }(c.cmd)
	return nil
}
